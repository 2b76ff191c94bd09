package healthmon

import (
	"context"
	"fmt"
	"sync"
)

// MockProber fails exactly the IPs it is told to fail. Used in tests and
// as the "mock" monitor for local runs without real routers.
type MockProber struct {
	mu   sync.Mutex
	down map[string]struct{}
}

func NewMockProber() *MockProber {
	return &MockProber{down: make(map[string]struct{})}
}

// SetDown replaces the set of IPs that probe as failed.
func (p *MockProber) SetDown(ips ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.down = make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		p.down[ip] = struct{}{}
	}
}

func (p *MockProber) Probe(ctx context.Context, ip string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, bad := p.down[ip]; bad {
		return fmt.Errorf("mock probe: %s is down", ip)
	}
	return nil
}
