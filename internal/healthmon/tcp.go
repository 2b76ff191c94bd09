package healthmon

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPProber considers an IP healthy when a TCP connect to the configured
// port succeeds within the timeout.
type TCPProber struct {
	port   uint16
	dialer net.Dialer
}

func NewTCPProber(port uint16, timeout time.Duration) *TCPProber {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &TCPProber{
		port: port,
		dialer: net.Dialer{
			Timeout:   timeout,
			KeepAlive: -1,
		},
	}
}

func (p *TCPProber) Probe(ctx context.Context, ip string) error {
	conn, err := p.dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", ip, p.port))
	if err != nil {
		return fmt.Errorf("tcp probe %s:%d: %w", ip, p.port, err)
	}
	_ = conn.Close()
	return nil
}
