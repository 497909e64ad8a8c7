package remote

import (
	"sync"
	"time"

	"github.com/rileyhilliard/pyscope/pkg/sshutil"
)

// Pool keeps one SSH connection per host alive between commands, so the
// sampler's per-tick /proc reads do not pay for a handshake each time.
type Pool struct {
	mu          sync.Mutex
	connections map[string]*poolEntry
	timeout     time.Duration
	dial        func(host string, timeout time.Duration) (*sshutil.Client, error)
}

type poolEntry struct {
	client   *sshutil.Client
	lastUsed time.Time
}

// NewPool creates an empty pool. A zero timeout means 10s.
func NewPool(timeout time.Duration) *Pool {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Pool{
		connections: make(map[string]*poolEntry),
		timeout:     timeout,
		dial:        sshutil.Dial,
	}
}

// Get returns a live connection for host, dialing a new one when the cached
// connection is missing or dead.
func (p *Pool) Get(host string) (*sshutil.Client, error) {
	p.mu.Lock()
	entry, ok := p.connections[host]
	p.mu.Unlock()

	if ok {
		if entry.client.Alive() {
			p.mu.Lock()
			entry.lastUsed = time.Now()
			p.mu.Unlock()
			return entry.client, nil
		}
		p.CloseOne(host)
	}

	client, err := p.dial(host, p.timeout)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.connections[host]; ok {
		// Lost a race with another caller; keep theirs.
		_ = client.Close()
		return existing.client, nil
	}
	p.connections[host] = &poolEntry{client: client, lastUsed: time.Now()}
	return client, nil
}

// CloseOne closes and forgets the connection for host.
func (p *Pool) CloseOne(host string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok := p.connections[host]; ok {
		_ = entry.client.Close()
		delete(p.connections, host)
	}
}

// Close closes every pooled connection.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for host, entry := range p.connections {
		_ = entry.client.Close()
		delete(p.connections, host)
	}
}

// Size returns the number of pooled connections.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.connections)
}
