package hits

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/ignite/promo-gateway/internal/domain"
	"github.com/ignite/promo-gateway/internal/pkg/httpretry"
)

// Forwarder relays persisted hits to an external measurement endpoint
// (a collector in front of GA4 or similar). Forwarding is best-effort:
// a failure is logged and the hit stays persisted locally. A nil
// Forwarder is valid and forwards nothing.
type Forwarder struct {
	client httpretry.HTTPDoer
	url    string
}

// NewForwarder returns a forwarder posting to url, or nil when url is
// empty.
func NewForwarder(url string) *Forwarder {
	if url == "" {
		return nil
	}
	return &Forwarder{
		client: httpretry.NewRetryClient(nil, 2),
		url:    url,
	}
}

// ForwardHit posts one hit to the measurement endpoint.
func (f *Forwarder) ForwardHit(ctx context.Context, hit domain.Hit) {
	if f == nil {
		return
	}

	body, err := json.Marshal(hit)
	if err != nil {
		log.Printf("[Hits] forward marshal: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		log.Printf("[Hits] forward request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		log.Printf("[Hits] forward to %s failed: %v", f.url, err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		log.Printf("[Hits] forward to %s returned %d", f.url, resp.StatusCode)
	}
}
