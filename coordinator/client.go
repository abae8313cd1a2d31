package coordinator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sharedcode/xfer"
	"github.com/sharedcode/xfer/encoding"
)

// Participants is the RPC surface the coordinator drives. Implementations
// never retry; every call is a single attempt with a bounded timeout.
type Participants interface {
	// Prepare asks the named participant to record a hold or pending
	// credit for the transaction.
	Prepare(ctx context.Context, name, txnID string, amount int64, direction xfer.Direction, crashAfterPrepare bool) error
	// Commit asks the named participant to apply and clear the entry.
	Commit(ctx context.Context, name, txnID string) error
	// Rollback asks the named participant to drop the entry.
	Rollback(ctx context.Context, name, txnID string) error
	// Names lists the participant directory.
	Names() []string
	// Has reports whether name is in the directory.
	Has(name string) bool
}

type httpParticipants struct {
	urls map[string]string
	hc   *http.Client
}

// NewHTTPParticipants returns a Participants client over HTTP/JSON. urls
// maps account names to participant base URLs.
func NewHTTPParticipants(urls map[string]string, callTimeout time.Duration) Participants {
	return &httpParticipants{
		urls: urls,
		hc:   &http.Client{Timeout: callTimeout},
	}
}

func (p *httpParticipants) Names() []string {
	names := make([]string, 0, len(p.urls))
	for n := range p.urls {
		names = append(names, n)
	}
	return names
}

func (p *httpParticipants) Has(name string) bool {
	_, ok := p.urls[name]
	return ok
}

func (p *httpParticipants) Prepare(ctx context.Context, name, txnID string, amount int64, direction xfer.Direction, crashAfterPrepare bool) error {
	body := map[string]any{
		"transaction_id": txnID,
		"amount":         amount,
		"direction":      string(direction),
	}
	if crashAfterPrepare {
		body["crash_after_prepare"] = true
	}
	return p.post(ctx, name, "/prepare", body)
}

func (p *httpParticipants) Commit(ctx context.Context, name, txnID string) error {
	return p.post(ctx, name, "/commit", map[string]any{"transaction_id": txnID})
}

func (p *httpParticipants) Rollback(ctx context.Context, name, txnID string) error {
	return p.post(ctx, name, "/rollback", map[string]any{"transaction_id": txnID})
}

func (p *httpParticipants) post(ctx context.Context, name, path string, body any) error {
	url, ok := p.urls[name]
	if !ok {
		return xfer.Errorf(xfer.ValidationError, "unknown participant %q", name)
	}
	ba, err := encoding.DefaultMarshaler.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+path, bytes.NewReader(ba))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.hc.Do(req)
	if err != nil {
		return xfer.Errorf(xfer.DependencyError, "%s %s at %s: %v", path, name, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	detail := readDetail(resp.Body)
	switch resp.StatusCode {
	case http.StatusConflict:
		return xfer.Errorf(xfer.InsufficientFunds, "%s failed at %s: %s", path, name, detail)
	case http.StatusBadRequest:
		return xfer.Errorf(xfer.ValidationError, "%s rejected at %s: %s", path, name, detail)
	default:
		return xfer.Errorf(xfer.DependencyError, "%s at %s returned %d: %s", path, name, resp.StatusCode, detail)
	}
}

func readDetail(r io.Reader) string {
	ba, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(ba) == 0 {
		return "(no detail)"
	}
	var m map[string]any
	if err := encoding.DefaultMarshaler.Unmarshal(ba, &m); err == nil {
		if d, ok := m["detail"].(string); ok {
			return d
		}
	}
	return fmt.Sprintf("%s", ba)
}
