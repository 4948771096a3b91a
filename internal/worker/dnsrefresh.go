package worker

import (
	"context"
	"time"

	"github.com/rs/dnscache"
)

// DNSRefreshWorker periodically refreshes a shared dnscache.Resolver so
// provider HTTP clients never dial a stale upstream address.
type DNSRefreshWorker struct {
	resolver *dnscache.Resolver
	interval time.Duration
}

// NewDNSRefreshWorker creates a DNSRefreshWorker refreshing resolver on
// the given interval.
func NewDNSRefreshWorker(resolver *dnscache.Resolver, interval time.Duration) *DNSRefreshWorker {
	return &DNSRefreshWorker{resolver: resolver, interval: interval}
}

func (*DNSRefreshWorker) Name() string { return "dns_refresh" }

// Run refreshes the resolver on each tick until ctx is cancelled.
func (w *DNSRefreshWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.resolver.Refresh(true)
		case <-ctx.Done():
			return nil
		}
	}
}
