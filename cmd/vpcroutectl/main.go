// vpcroutectl is the one-shot companion to the vpcrouter daemon: show,
// add or delete a single route across all route tables of a VPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/vpcrouter/vpcrouter/internal/connector/awsconn"
	"github.com/vpcrouter/vpcrouter/internal/metrics"
	"github.com/vpcrouter/vpcrouter/internal/reconciler"
)

func main() {
	var (
		region   = flag.String("region", "ap-southeast-2", "AWS region of the VPC")
		vpcID    = flag.String("vpc", "", "ID of the VPC to operate in")
		cmd      = flag.String("cmd", "show", "command: show, add or del")
		cidr     = flag.String("cidr", "", "destination CIDR of the route")
		routerIP = flag.String("ip", "", "router instance IP (add only)")
	)
	flag.Parse()

	if err := validate(*vpcID, *cmd, *cidr, *routerIP); err != nil {
		fmt.Fprintf(os.Stderr, "\n*** Error: %s\n\n", err)
		flag.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	conn, err := awsconn.New(ctx, *region)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\n*** Error: %s\n", err)
		os.Exit(1)
	}

	engine := reconciler.New(conn, *vpcID, metrics.NewNoop())
	msgs, found, err := engine.HandleRequest(ctx, reconciler.Command(*cmd), *cidr, *routerIP)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\n*** Error: %s\n", err)
		os.Exit(1)
	}
	for _, msg := range msgs {
		fmt.Println(msg)
	}
	if !found {
		os.Exit(1)
	}
}

func validate(vpcID, cmd, cidr, routerIP string) error {
	if vpcID == "" {
		return fmt.Errorf("a VPC ID needs to be specified (-vpc)")
	}
	switch reconciler.Command(cmd) {
	case reconciler.CmdShow, reconciler.CmdDel:
		if routerIP != "" {
			return fmt.Errorf("router IP address only allowed for 'add'")
		}
	case reconciler.CmdAdd:
		if routerIP == "" {
			return fmt.Errorf("router IP address argument missing")
		}
		if net.ParseIP(routerIP) == nil {
			return fmt.Errorf("invalid router IP address %q", routerIP)
		}
	default:
		return fmt.Errorf("only commands 'add', 'del' or 'show' are allowed (not %q)", cmd)
	}
	if cidr == "" {
		return fmt.Errorf("destination CIDR argument missing")
	}
	if _, _, err := net.ParseCIDR(cidr); err != nil {
		return fmt.Errorf("invalid destination CIDR %q", cidr)
	}
	return nil
}
