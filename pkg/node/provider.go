// Copyright (C) 2017 ScyllaDB

package node

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// ConnectAny tries the hosts in order and returns the first established
// connection. It fails only when all the hosts fail.
func ConnectAny(ctx context.Context, p Provider, hosts ...string) (Proxy, error) {
	if len(hosts) == 0 {
		return nil, errors.New("no hosts to connect to")
	}

	var merr error
	for _, h := range hosts {
		proxy, err := p.Connect(ctx, h)
		if err != nil {
			merr = multierr.Append(merr, errors.Wrapf(err, "connect to %s", h))
			continue
		}
		return proxy, nil
	}
	return nil, merr
}

// ProxyFunc is a function that returns an administrative Proxy for a given
// cluster.
type ProxyFunc func(ctx context.Context, clusterName string) (Proxy, error)

// CachedProvider is a ProxyFunc implementation that reuses connections as
// long as they stay alive.
type CachedProvider struct {
	inner   ProxyFunc
	proxies map[string]Proxy
	mu      sync.Mutex
}

func NewCachedProvider(f ProxyFunc) *CachedProvider {
	return &CachedProvider{
		inner:   f,
		proxies: make(map[string]Proxy),
	}
}

// Proxy is the cached ProxyFunc.
func (p *CachedProvider) Proxy(ctx context.Context, clusterName string) (Proxy, error) {
	p.mu.Lock()
	c, ok := p.proxies[clusterName]
	p.mu.Unlock()

	// Cache hit
	if ok {
		if c.IsConnectionAlive() {
			return c, nil
		}
		c.Close()
	}

	// If not found or dead create a new one
	c, err := p.inner(ctx, clusterName)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.proxies[clusterName] = c
	p.mu.Unlock()

	return c, nil
}

// Invalidate removes the connection for clusterName from cache.
func (p *CachedProvider) Invalidate(clusterName string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.proxies[clusterName]; ok {
		delete(p.proxies, clusterName)
		c.Close()
	}
}

// Close removes all the connections and closes them to clear up any resources.
func (p *CachedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var merr error
	for clusterName, c := range p.proxies {
		delete(p.proxies, clusterName)
		merr = multierr.Append(merr, c.Close())
	}
	return merr
}
