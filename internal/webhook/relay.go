package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/segmentio/ksuid"

	"github.com/dhernos/dynpages/internal/netguard"
)

const (
	UserAgent       = "DynamicPages-Webhook/1.0"
	DeliveryHeader  = "X-Webhook-Delivery"
	truncatedMarker = "... (truncated)"
)

var (
	ErrTimeout   = errors.New("webhook request timed out")
	ErrExecution = errors.New("webhook request failed")
)

// Delivery is the relayed upstream response.
type Delivery struct {
	ID         string            `json:"deliveryId"`
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Body       string            `json:"response"`
	Truncated  bool              `json:"truncated"`
	Headers    map[string]string `json:"headers"`
}

type RelayOptions struct {
	Timeout          time.Duration
	MaxResponseBytes int
	BlockPrivate     bool
	// Transport overrides the guarded default transport.
	Transport http.RoundTripper
}

// Relay posts JSON payloads to webhook URLs. It never retries.
type Relay struct {
	client  *http.Client
	timeout time.Duration
	maxBody int
}

func NewRelay(opts RelayOptions) *Relay {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = 1_000_000
	}
	transport := opts.Transport
	if transport == nil {
		transport = netguard.Transport(opts.BlockPrivate)
	}
	return &Relay{
		client: &http.Client{
			Transport:     transport,
			CheckRedirect: netguard.CheckRedirect,
		},
		timeout: opts.Timeout,
		maxBody: opts.MaxResponseBytes,
	}
}

func (r *Relay) Timeout() time.Duration {
	return r.timeout
}

// Execute validates target and posts payload to it. Validation failures are
// returned before any connection is attempted.
func (r *Relay) Execute(ctx context.Context, target string, payload json.RawMessage) (*Delivery, error) {
	u, err := netguard.ParseHTTPURL(target)
	if err != nil {
		return nil, err
	}

	body := bytes.TrimSpace(payload)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		body = []byte("{}")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	deliveryID := ksuid.New().String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecution, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(DeliveryHeader, deliveryID)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, r.classify(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, int64(r.maxBody)+1))
	if err != nil {
		return nil, r.classify(ctx, err)
	}

	d := &Delivery{
		ID:         deliveryID,
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Headers:    flattenHeaders(resp.Header),
	}
	if len(raw) > r.maxBody {
		d.Body = truncateUTF8(raw, r.maxBody) + truncatedMarker
		d.Truncated = true
	} else {
		d.Body = string(raw)
	}
	return d, nil
}

func (r *Relay) classify(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w after %s", ErrTimeout, r.timeout)
	}
	return fmt.Errorf("%w: %w", ErrExecution, err)
}

func statusText(resp *http.Response) string {
	if text, ok := strings.CutPrefix(resp.Status, fmt.Sprintf("%d ", resp.StatusCode)); ok {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	return out
}

// truncateUTF8 cuts b to at most n bytes without ending in a partial rune.
func truncateUTF8(b []byte, n int) string {
	b = b[:n]
	for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
		r, size := utf8.DecodeLastRune(b)
		if r != utf8.RuneError || size > 1 {
			break
		}
		b = b[:len(b)-1]
	}
	return string(b)
}
