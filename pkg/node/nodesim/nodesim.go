// Copyright (C) 2017 ScyllaDB

// Package nodesim simulates a repairable cluster in process. It implements
// node.Provider over a generated token ring, repair commands complete on
// their own after a configurable delay. The daemon uses it as the
// development transport, deployments with real clusters plug their own
// transport behind node.Provider.
package nodesim

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/reaperd/reaperd/pkg/node"
	"github.com/scylladb/go-set/strset"
)

// Config specifies the simulated cluster.
type Config struct {
	ClusterName string
	Partitioner string
	// Hosts are the node addresses, any of them works as a seed.
	Hosts []string
	// TokensPerHost is the number of vnode tokens owned by each host.
	TokensPerHost int
	// ReplicationFactor is the number of endpoints returned for a token
	// range, capped at the host count.
	ReplicationFactor int
	// Keyspaces maps keyspace names to their tables.
	Keyspaces map[string][]string
	// RepairDuration is how long a repair command takes end to end, the
	// actual duration varies around it by up to 50%.
	RepairDuration time.Duration
	// Seed fixes the generated ring, equal seeds give equal topologies.
	Seed int64
}

// DefaultConfig returns a Config initialized with default values.
func DefaultConfig() Config {
	return Config{
		ClusterName: "sim_cluster",
		Partitioner: "org.apache.cassandra.dht.Murmur3Partitioner",
		Hosts: []string{
			"192.168.100.11",
			"192.168.100.12",
			"192.168.100.13",
		},
		TokensPerHost:     256,
		ReplicationFactor: 2,
		Keyspaces: map[string][]string{
			"system_traces": {"events", "sessions"},
			"test_keyspace": {"test_table_0", "test_table_1"},
		},
		RepairDuration: 100 * time.Millisecond,
		Seed:           1,
	}
}

// Cluster is a simulated cluster. It implements node.Provider, connections
// are in-process objects and repairs are timers. Commands outlive the
// connection that triggered them, notifications go to all the handler
// connections of the coordinator host that are alive when a notification
// fires.
type Cluster struct {
	config     Config
	ringTokens []int64
	ringHosts  []string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	lastCmd int32
	subs    map[string]map[*proxy]struct{}
	closed  bool
}

var _ node.Provider = (*Cluster)(nil)

// New creates a simulated cluster with a generated token ring.
func New(c Config) (*Cluster, error) {
	if c.ClusterName == "" {
		return nil, errors.New("missing cluster name")
	}
	if len(c.Hosts) == 0 {
		return nil, errors.New("missing hosts")
	}
	if c.TokensPerHost <= 0 {
		return nil, errors.New("invalid tokens per host, must be > 0")
	}
	if c.ReplicationFactor <= 0 {
		return nil, errors.New("invalid replication factor, must be > 0")
	}
	if c.RepairDuration <= 0 {
		return nil, errors.New("invalid repair duration, must be > 0")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Cluster{
		config: c,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]map[*proxy]struct{}),
	}
	s.generateRing()
	return s, nil
}

// generateRing assigns TokensPerHost random tokens to every host, tokens are
// unique across the ring.
func (c *Cluster) generateRing() {
	rnd := rand.New(rand.NewSource(c.config.Seed)) // nolint: gosec
	seen := make(map[int64]struct{})

	type slot struct {
		token int64
		host  string
	}
	slots := make([]slot, 0, len(c.config.Hosts)*c.config.TokensPerHost)
	for _, h := range c.config.Hosts {
		for i := 0; i < c.config.TokensPerHost; i++ {
			t := int64(rnd.Uint64())
			for {
				if _, ok := seen[t]; !ok {
					break
				}
				t = int64(rnd.Uint64())
			}
			seen[t] = struct{}{}
			slots = append(slots, slot{token: t, host: h})
		}
	}
	sort.Slice(slots, func(i, j int) bool {
		return slots[i].token < slots[j].token
	})

	c.ringTokens = make([]int64, len(slots))
	c.ringHosts = make([]string, len(slots))
	for i, s := range slots {
		c.ringTokens[i] = s.token
		c.ringHosts[i] = s.host
	}
}

// Connect implements node.Provider.
func (c *Cluster) Connect(ctx context.Context, host string) (node.Proxy, error) {
	return c.connect(host, nil)
}

// ConnectWithHandler implements node.Provider.
func (c *Cluster) ConnectWithHandler(ctx context.Context, handler node.StatusHandler, host string) (node.Proxy, error) {
	return c.connect(host, handler)
}

func (c *Cluster) connect(host string, handler node.StatusHandler) (node.Proxy, error) {
	if !c.hasHost(host) {
		return nil, errors.Errorf("unknown host %q", host)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("cluster closed")
	}

	p := &proxy{cluster: c, host: host, handler: handler}
	if handler != nil {
		if c.subs[host] == nil {
			c.subs[host] = make(map[*proxy]struct{})
		}
		c.subs[host][p] = struct{}{}
	}
	return p, nil
}

func (c *Cluster) hasHost(host string) bool {
	for _, h := range c.config.Hosts {
		if h == host {
			return true
		}
	}
	return false
}

// Close stops all the running repair commands and waits for them to return.
func (c *Cluster) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// trigger starts a repair command coordinated by host.
func (c *Cluster) trigger(host string) (int32, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, errors.New("cluster closed")
	}
	c.lastCmd++
	id := c.lastCmd
	c.wg.Add(1)
	c.mu.Unlock()

	go c.runRepair(id, host)
	return id, nil
}

// runRepair plays the notification sequence of one repair command.
func (c *Cluster) runRepair(id int32, host string) {
	defer c.wg.Done()

	d := c.config.RepairDuration
	d = d/2 + time.Duration(rand.Int63n(int64(d))) // nolint: gosec

	c.notify(host, node.Event{CommandID: id, Status: node.CommandStarted})
	if !c.sleep(d / 2) {
		return
	}
	c.notify(host, node.Event{CommandID: id, Status: node.CommandSessionSuccess})
	if !c.sleep(d - d/2) {
		return
	}
	c.notify(host, node.Event{CommandID: id, Status: node.CommandFinished})
}

func (c *Cluster) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Cluster) notify(host string, ev node.Event) {
	c.mu.Lock()
	handlers := make([]node.StatusHandler, 0, len(c.subs[host]))
	for p := range c.subs[host] {
		handlers = append(handlers, p.handler)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (c *Cluster) unsubscribe(p *proxy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs[p.host], p)
}

// endpoints walks the ring clockwise from the range start collecting
// replica hosts.
func (c *Cluster) endpoints(r node.TokenRange) []string {
	rf := c.config.ReplicationFactor
	if rf > len(c.config.Hosts) {
		rf = len(c.config.Hosts)
	}

	i := sort.Search(len(c.ringTokens), func(i int) bool {
		return c.ringTokens[i] >= r.StartToken
	})

	seen := strset.New()
	hosts := make([]string, 0, rf)
	for n := 0; n < len(c.ringHosts) && len(hosts) < rf; n++ {
		h := c.ringHosts[(i+n)%len(c.ringHosts)]
		if seen.Has(h) {
			continue
		}
		seen.Add(h)
		hosts = append(hosts, h)
	}
	return hosts
}

// proxy is a connection to one simulated node.
type proxy struct {
	cluster *Cluster
	host    string
	handler node.StatusHandler

	mu     sync.Mutex
	closed bool
}

var _ node.Proxy = (*proxy)(nil)

func (p *proxy) alive() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("connection closed")
	}
	return nil
}

func (p *proxy) ClusterName(ctx context.Context) (string, error) {
	if err := p.alive(); err != nil {
		return "", err
	}
	return p.cluster.config.ClusterName, nil
}

func (p *proxy) Partitioner(ctx context.Context) (string, error) {
	if err := p.alive(); err != nil {
		return "", err
	}
	return p.cluster.config.Partitioner, nil
}

func (p *proxy) Tokens(ctx context.Context) ([]int64, error) {
	if err := p.alive(); err != nil {
		return nil, err
	}
	tokens := make([]int64, len(p.cluster.ringTokens))
	copy(tokens, p.cluster.ringTokens)
	return tokens, nil
}

func (p *proxy) Keyspaces(ctx context.Context) ([]string, error) {
	if err := p.alive(); err != nil {
		return nil, err
	}
	keyspaces := make([]string, 0, len(p.cluster.config.Keyspaces))
	for k := range p.cluster.config.Keyspaces {
		keyspaces = append(keyspaces, k)
	}
	sort.Strings(keyspaces)
	return keyspaces, nil
}

func (p *proxy) Tables(ctx context.Context, keyspace string) ([]string, error) {
	if err := p.alive(); err != nil {
		return nil, err
	}
	t, ok := p.cluster.config.Keyspaces[keyspace]
	if !ok {
		return nil, errors.Errorf("unknown keyspace %q", keyspace)
	}
	tables := make([]string, len(t))
	copy(tables, t)
	return tables, nil
}

func (p *proxy) TokenRangeEndpoints(ctx context.Context, keyspace string, r node.TokenRange) ([]string, error) {
	if err := p.alive(); err != nil {
		return nil, err
	}
	if _, ok := p.cluster.config.Keyspaces[keyspace]; !ok {
		return nil, errors.Errorf("unknown keyspace %q", keyspace)
	}
	return p.cluster.endpoints(r), nil
}

func (p *proxy) TriggerRepair(ctx context.Context, r node.TokenRange, keyspace string, _ node.Parallelism, tables []string) (int32, error) {
	if err := p.alive(); err != nil {
		return 0, err
	}
	if _, ok := p.cluster.config.Keyspaces[keyspace]; !ok {
		return 0, errors.Errorf("unknown keyspace %q", keyspace)
	}
	return p.cluster.trigger(p.host)
}

func (p *proxy) IsConnectionAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}

func (p *proxy) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if p.handler != nil {
		p.cluster.unsubscribe(p)
	}
	return nil
}
