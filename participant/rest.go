package participant

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sharedcode/xfer"
)

type prepareIn struct {
	TransactionID     string `json:"transaction_id" binding:"required"`
	Amount            int64  `json:"amount"`
	Direction         string `json:"direction"`
	CrashAfterPrepare bool   `json:"crash_after_prepare"`
}

type txnIn struct {
	TransactionID string `json:"transaction_id" binding:"required"`
}

// NewRouter wires the participant endpoints onto a gin engine.
func NewRouter(svc *Service) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "account": svc.Account()})
	})
	router.GET("/metrics", func(c *gin.Context) {
		c.String(http.StatusOK, svc.Metrics().Render(svc.Balance()))
	})
	router.GET("/balance", func(c *gin.Context) {
		state := svc.Balance()
		c.JSON(http.StatusOK, gin.H{
			"account":  state.Account,
			"balance":  state.Balance,
			"holds":    state.Holds,
			"pendings": state.Pendings,
		})
	})

	router.POST("/prepare", func(c *gin.Context) {
		var in prepareIn
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		if err := svc.Prepare(in.TransactionID, in.Amount, xfer.Direction(in.Direction), in.CrashAfterPrepare); err != nil {
			c.JSON(statusOf(err), gin.H{"detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"prepared": true})
	})

	router.POST("/commit", func(c *gin.Context) {
		var in txnIn
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		if err := svc.Commit(in.TransactionID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"committed": true})
	})

	router.POST("/rollback", func(c *gin.Context) {
		var in txnIn
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		if err := svc.Rollback(in.TransactionID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"rolled_back": true})
	})

	return router
}

func statusOf(err error) int {
	switch xfer.CodeOf(err) {
	case xfer.ValidationError:
		return http.StatusBadRequest
	case xfer.InsufficientFunds:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
