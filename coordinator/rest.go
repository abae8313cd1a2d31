package coordinator

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sharedcode/xfer"
	"github.com/sharedcode/xfer/auth"
)

// NewRouter wires the coordinator endpoints onto a gin engine. /transfer
// requires a valid bearer credential; the rest are open.
func NewRouter(svc *Service, verifier auth.Verifier) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "service": "xfer-api"})
	})
	router.GET("/metrics", func(c *gin.Context) {
		c.String(http.StatusOK, svc.Metrics().Render())
	})

	router.GET("/transactions/:txn_id", func(c *gin.Context) {
		entry, err := svc.Lookup(c.Request.Context(), c.Param("txn_id"))
		if err != nil {
			c.JSON(statusOf(err), gin.H{"detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, entry)
	})

	router.POST("/transfer", verifier.Middleware(), func(c *gin.Context) {
		var req xfer.TransferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		result, err := svc.Transfer(c.Request.Context(), req)
		if err != nil {
			c.JSON(statusOf(err), gin.H{"detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	})

	return router
}

func statusOf(err error) int {
	switch xfer.CodeOf(err) {
	case xfer.ValidationError:
		return http.StatusBadRequest
	case xfer.AuthError:
		return http.StatusUnauthorized
	case xfer.NotFound:
		return http.StatusNotFound
	case xfer.PairBusy:
		return http.StatusLocked
	case xfer.TransactionAborted, xfer.InsufficientFunds:
		return http.StatusConflict
	case xfer.DependencyError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
