package providers

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"
)

// cachingResolver amortises repeated DNS lookups of the same provider
// hostnames (generativelanguage.googleapis.com, api.groq.com,
// openrouter.ai) across aggregator cycles, the way an HTTP client
// dialing a small fixed set of upstream hosts normally would.
var cachingResolver = &dnscache.Resolver{}

func init() {
	go func() {
		t := time.NewTicker(5 * time.Minute)
		defer t.Stop()
		for range t.C {
			cachingResolver.Refresh(true)
		}
	}()
}

// NewResolvingHTTPClient returns an *http.Client whose dialer consults
// cachingResolver instead of doing a fresh DNS lookup per request.
func NewResolvingHTTPClient() *http.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return dialer.DialContext(ctx, network, addr)
			}
			ips, err := cachingResolver.LookupHost(ctx, host)
			if err != nil || len(ips) == 0 {
				return dialer.DialContext(ctx, network, addr)
			}
			return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0], port))
		},
	}
	return &http.Client{Transport: transport, Timeout: DefaultTimeout}
}
