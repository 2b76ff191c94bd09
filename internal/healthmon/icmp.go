package healthmon

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// ICMPProber pings an IP with an ICMP echo request over an unprivileged
// datagram socket (no raw-socket capability needed on linux with
// net.ipv4.ping_group_range configured).
type ICMPProber struct {
	timeout time.Duration
	seq     atomic.Uint32
}

func NewICMPProber(timeout time.Duration) *ICMPProber {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ICMPProber{timeout: timeout}
}

func (p *ICMPProber) Probe(ctx context.Context, ip string) error {
	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err != nil {
		return fmt.Errorf("icmp listen: %w", err)
	}
	defer conn.Close()

	seq := int(p.seq.Add(1) & 0xffff)
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   os.Getpid() & 0xffff,
			Seq:  seq,
			Data: []byte("vpcrouter health probe"),
		},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return fmt.Errorf("icmp marshal: %w", err)
	}
	if _, err := conn.WriteTo(wb, &net.UDPAddr{IP: net.ParseIP(ip)}); err != nil {
		return fmt.Errorf("icmp send to %s: %w", ip, err)
	}

	deadline := time.Now().Add(p.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("icmp deadline: %w", err)
	}

	rb := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(rb)
		if err != nil {
			return fmt.Errorf("icmp read from %s: %w", ip, err)
		}
		if udp, ok := peer.(*net.UDPAddr); !ok || udp.IP.String() != ip {
			// reply from someone else's probe, keep reading
			continue
		}
		reply, err := icmp.ParseMessage(1, rb[:n])
		if err != nil {
			return fmt.Errorf("icmp parse: %w", err)
		}
		if reply.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		return nil
	}
}
