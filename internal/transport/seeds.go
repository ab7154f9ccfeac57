package transport

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// SeedResolver resolves a configured list of seed addresses (which may mix
// literal IPs and DNS names) into concrete host:port pairs. Resolution is
// repeated on every call, rather than cached once at startup, so a seed
// hiding behind a domain name that rotates its backing IPs is picked up on
// the transport's next re-resolution tick instead of being stuck on a stale
// address forever.
type SeedResolver struct {
	seeds    []string
	bindPort string
}

// NewSeedResolver builds a resolver for seeds, defaulting any seed missing
// a port to bindPort.
func NewSeedResolver(seeds []string, bindAddr string) (*SeedResolver, error) {
	_, bindPort, err := net.SplitHostPort(bindAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid bind addr: %s: %w", bindAddr, err)
	}
	return &SeedResolver{seeds: seeds, bindPort: bindPort}, nil
}

// Resolve resolves every configured seed concurrently, returning the union
// of resolved addresses with duplicates removed. A seed that fails to
// resolve does not fail the whole call: it is skipped, since the remaining
// seeds may still be enough to join the cluster.
func (r *SeedResolver) Resolve(ctx context.Context) ([]string, error) {
	if len(r.seeds) == 0 {
		return nil, nil
	}

	var mu sync.Mutex
	var resolved []string

	g, ctx := errgroup.WithContext(ctx)
	for _, seed := range r.seeds {
		seed := r.ensurePort(seed)
		g.Go(func() error {
			addrs, err := r.resolveOne(ctx, seed)
			if err != nil {
				// Swallowed deliberately: one bad seed shouldn't block
				// resolution of the others.
				return nil
			}
			mu.Lock()
			resolved = append(resolved, addrs...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return dedupeSorted(resolved), nil
}

func (r *SeedResolver) ensurePort(addr string) string {
	if strings.Contains(addr, ":") {
		return addr
	}
	return net.JoinHostPort(addr, r.bindPort)
}

func (r *SeedResolver) resolveOne(ctx context.Context, addr string) ([]string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid seed addr: %s: %w", addr, err)
	}

	if ip := net.ParseIP(host); ip != nil {
		return []string{addr}, nil
	}

	var resolver net.Resolver
	ips, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("lookup host: %s: %w", host, err)
	}

	addrs := make([]string, 0, len(ips))
	for _, ip := range ips {
		addrs = append(addrs, net.JoinHostPort(ip.IP.String(), port))
	}
	return addrs, nil
}

func dedupeSorted(addrs []string) []string {
	seen := make(map[string]struct{}, len(addrs))
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
