package resolver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/VibeTensor/attestix/pkg/errs"
)

// pinnedClient is an http.Client hardened against SSRF and DNS rebinding: it
// validates and resolves the target host once, then dials the resulting IPs
// directly rather than letting net/http re-resolve DNS at connect time. It
// follows no redirects — a redirect to an internal host would otherwise
// bypass every check done on the original URL.
type pinnedClient struct {
	client  *http.Client
	breaker *circuitBreaker
}

func newPinnedClient(timeout time.Duration) *pinnedClient {
	transport := &http.Transport{}
	return &pinnedClient{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		breaker: newCircuitBreaker(5, 10*time.Second),
	}
}

// get performs an SSRF-guarded GET against url, whose host must already have
// been approved by ValidateAndPinURL; pinnedIPs are dialed directly.
func (c *pinnedClient) get(ctx context.Context, rawURL string, pinnedIPs []string) (*http.Response, error) {
	if !c.breaker.allow() {
		return nil, errs.New(errs.Network, "circuit breaker open for outbound DID resolution")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("traceparent", fmt.Sprintf("00-%s-0000000000000001-01", newTraceID()))

	transport := c.client.Transport.(*http.Transport).Clone()
	if len(pinnedIPs) > 0 {
		dialer := &net.Dialer{Timeout: 10 * time.Second}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			_, port, err := net.SplitHostPort(addr)
			if err != nil {
				port = "443"
			}
			return dialer.DialContext(ctx, network, net.JoinHostPort(pinnedIPs[0], port))
		}
	}
	client := &http.Client{Timeout: c.client.Timeout, CheckRedirect: c.client.CheckRedirect, Transport: transport}

	resp, err := client.Do(req)
	if err != nil {
		c.breaker.failure()
		return nil, err
	}
	if resp.StatusCode >= 500 {
		c.breaker.failure()
	} else {
		c.breaker.success()
	}
	return resp, nil
}

func newTraceID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%032x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

// circuitBreaker trips after threshold consecutive failures and stays open
// until resetTimeout elapses, same three-state shape as the rest of this
// system's resilience code.
type circuitBreaker struct {
	mu           sync.Mutex
	failureCount int
	threshold    int
	lastFailure  time.Time
	resetTimeout time.Duration
	state        string // "closed" | "open" | "half_open"
}

func newCircuitBreaker(threshold int, resetTimeout time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, resetTimeout: resetTimeout, state: "closed"}
}

func (cb *circuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == "open" {
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = "half_open"
			return true
		}
		return false
	}
	return true
}

func (cb *circuitBreaker) success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = "closed"
	cb.failureCount = 0
}

func (cb *circuitBreaker) failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount++
	cb.lastFailure = time.Now()
	if cb.failureCount >= cb.threshold {
		cb.state = "open"
	}
}
