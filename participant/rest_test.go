package participant

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestParticipantEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newTestService(t, 1000)
	router := NewRouter(svc)

	w := doJSON(router, http.MethodPost, "/prepare",
		`{"transaction_id":"t1","amount":100,"direction":"debit"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("prepare: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Idempotent replay over the wire.
	w = doJSON(router, http.MethodPost, "/prepare",
		`{"transaction_id":"t1","amount":100,"direction":"debit"}`)
	if w.Code != http.StatusOK {
		t.Errorf("replayed prepare: expected 200, got %d", w.Code)
	}

	w = doJSON(router, http.MethodPost, "/commit", `{"transaction_id":"t1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("commit: expected 200, got %d", w.Code)
	}

	w = doJSON(router, http.MethodGet, "/balance", "")
	if w.Code != http.StatusOK {
		t.Fatalf("balance: expected 200, got %d", w.Code)
	}
	var body struct {
		Account  string           `json:"account"`
		Balance  int64            `json:"balance"`
		Holds    map[string]int64 `json:"holds"`
		Pendings map[string]int64 `json:"pendings"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad balance body: %v", err)
	}
	if body.Account != "A" || body.Balance != 900 || len(body.Holds) != 0 {
		t.Errorf("unexpected balance body: %+v", body)
	}
}

func TestParticipantEndpointErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newTestService(t, 50)
	router := NewRouter(svc)

	if w := doJSON(router, http.MethodPost, "/prepare",
		`{"transaction_id":"t1","amount":100,"direction":"sideways"}`); w.Code != http.StatusBadRequest {
		t.Errorf("bad direction: expected 400, got %d", w.Code)
	}
	if w := doJSON(router, http.MethodPost, "/prepare",
		`{"transaction_id":"t1","amount":100,"direction":"debit"}`); w.Code != http.StatusConflict {
		t.Errorf("insufficient funds: expected 409, got %d", w.Code)
	}
	if w := doJSON(router, http.MethodPost, "/prepare", `{"amount":100,"direction":"debit"}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing transaction_id: expected 400, got %d", w.Code)
	}
	// Rollback always answers 200, even for unknown transactions.
	if w := doJSON(router, http.MethodPost, "/rollback", `{"transaction_id":"nope"}`); w.Code != http.StatusOK {
		t.Errorf("rollback: expected 200, got %d", w.Code)
	}

	w := doJSON(router, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "balance 50") {
		t.Errorf("metrics: got %d: %s", w.Code, w.Body.String())
	}
}
