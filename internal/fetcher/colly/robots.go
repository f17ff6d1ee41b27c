package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/typetrace/fontinspector/internal/inspector"
	"github.com/typetrace/fontinspector/internal/metrics"
)

const (
	robotsFallbackReasonTLSHandshake = "TLS handshake timeout"

	robotsCacheTTL = 15 * time.Minute
)

var robotsRetryBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

type cachedRobots struct {
	statusCode int
	header     http.Header
	body       []byte
	fetchedAt  time.Time
}

// robotsCacheTransport caches robots.txt responses per origin so collector
// clones do not re-probe the same host on every fetch.
type robotsCacheTransport struct {
	base  http.RoundTripper
	mu    sync.Mutex
	cache map[string]*cachedRobots
}

// NewRobotsCacheTransport wraps base with a per-origin robots.txt cache.
func NewRobotsCacheTransport(base http.RoundTripper) http.RoundTripper {
	return &robotsCacheTransport{
		base:  base,
		cache: make(map[string]*cachedRobots),
	}
}

func (t *robotsCacheTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("robots cache transport received nil request")
	}
	if !isRobotsTxtRequest(req) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("robots cache base roundtrip: %w", err)
		}
		return resp, nil
	}

	key := req.URL.Scheme + "://" + req.URL.Host
	t.mu.Lock()
	entry, ok := t.cache[key]
	t.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < robotsCacheTTL {
		return cachedResponse(req, entry), nil
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("robots probe roundtrip: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close robots body: %w", closeErr)
	}

	entry = &cachedRobots{
		statusCode: resp.StatusCode,
		header:     resp.Header.Clone(),
		body:       body,
		fetchedAt:  time.Now(),
	}
	t.mu.Lock()
	t.cache[key] = entry
	t.mu.Unlock()

	return cachedResponse(req, entry), nil
}

func cachedResponse(req *http.Request, entry *cachedRobots) *http.Response {
	return &http.Response{
		StatusCode:    entry.statusCode,
		Status:        http.StatusText(entry.statusCode),
		Body:          io.NopCloser(bytes.NewReader(entry.body)),
		ContentLength: int64(len(entry.body)),
		Header:        entry.header.Clone(),
		Request:       req,
	}
}

type robotsAwareTransport struct {
	base  http.RoundTripper
	state *robotsProbeState
}

func (t *robotsAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("robots transport received nil request")
	}
	if t.state == nil || !isRobotsTxtRequest(req) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("robots transport base roundtrip: %w", err)
		}
		return resp, nil
	}
	return t.state.roundTripWithRetry(req, t.base)
}

func isRobotsTxtRequest(req *http.Request) bool {
	if req == nil || req.URL == nil {
		return false
	}
	return strings.EqualFold(req.URL.Path, "/robots.txt")
}

type robotsProbeState struct {
	status inspector.RobotsStatus
	reason string
}

func newRobotsProbeState() *robotsProbeState {
	return &robotsProbeState{}
}

func (s *robotsProbeState) apply(resp *inspector.FetchResponse) {
	if s == nil || resp == nil || s.status == inspector.RobotsStatusUnknown {
		return
	}
	resp.RobotsStatus = s.status
	resp.RobotsReason = s.reason
}

func (s *robotsProbeState) roundTripWithRetry(req *http.Request, base http.RoundTripper) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request passed to roundTripWithRetry")
	}
	maxAttempts := len(robotsRetryBackoff) + 1
	for attempt := 0; attempt < maxAttempts; attempt++ {
		cloneReq := cloneRequest(req)
		resp, err := base.RoundTrip(cloneReq)
		if err == nil {
			return resp, nil
		}
		if !isTransientTLSError(err) {
			return nil, fmt.Errorf("robots roundtrip non-transient: %w", err)
		}
		if attempt == maxAttempts-1 {
			s.markIndeterminate(robotsFallbackReasonTLSHandshake)
			return syntheticRobotsAllowAllResponse(req), nil
		}
		if err := sleepWithContext(req.Context(), robotsRetryBackoff[attempt]); err != nil {
			return nil, fmt.Errorf("robots roundtrip backoff sleep: %w", err)
		}
	}
	return nil, fmt.Errorf("robots roundtrip exhausted retries")
}

func (s *robotsProbeState) markIndeterminate(reason string) {
	if s.status == inspector.RobotsStatusIndeterminate {
		return
	}
	s.status = inspector.RobotsStatusIndeterminate
	s.reason = reason
	metrics.ObserveProbeTLSHandshakeTimeout()
}

func cloneRequest(req *http.Request) *http.Request {
	if req == nil {
		return nil
	}
	clone := req.Clone(req.Context())
	clone.Body = req.Body
	return clone
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("robots backoff sleep context: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func syntheticRobotsAllowAllResponse(req *http.Request) *http.Response {
	const body = "User-agent: *\nAllow: /"
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Header:        make(http.Header),
		Request:       req,
	}
}

func isTransientTLSError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
