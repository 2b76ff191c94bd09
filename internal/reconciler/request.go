package reconciler

import (
	"context"
	"fmt"

	"github.com/vpcrouter/vpcrouter/internal/models"
)

type Command string

const (
	CmdShow Command = "show"
	CmdAdd  Command = "add"
	CmdDel  Command = "del"
)

// HandleRequest serves the one-shot CLI operations: show, add or delete
// a single route across all route tables of the VPC. For show and del
// the router IP is ignored; for add it names the instance the route
// should point at. The returned flag is false when a show or del did not
// find the route in at least one table.
func (e *Engine) HandleRequest(ctx context.Context, cmd Command, cidr, routerIP string) ([]string, bool, error) {
	snap, err := e.fetchSnapshot(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrConnector, err)
	}

	var target models.RouteTarget
	if cmd == CmdAdd {
		t, ok := snap.TargetByIP()[routerIP]
		if !ok {
			return nil, false, fmt.Errorf("no instance/interface for IP %q in vpc %q", routerIP, e.vpcID)
		}
		target = t
	}

	var (
		msgs  []string
		found = true
	)
	for _, rt := range snap.RouteTables {
		foundInRT := false
		for _, route := range rt.Routes {
			if route.DestinationCIDR != cidr {
				continue
			}
			foundInRT = true
			switch cmd {
			case CmdShow:
				msgs = append(msgs, fmt.Sprintf(
					"--- route exists in RT '%s': %s -> %s (%s, %s)",
					rt.ID, cidr, snap.RouteIP(route), route.InstanceID, route.InterfaceID))
			case CmdDel:
				if err := e.conn.DeleteRoute(ctx, rt.ID, cidr); err != nil {
					msgs = append(msgs, fmt.Sprintf(
						"*** failed to delete route in RT '%s' %s (%s)", rt.ID, cidr, err))
					continue
				}
				msgs = append(msgs, fmt.Sprintf(
					"--- deleting route in RT '%s': %s -> %s (%s, %s)",
					rt.ID, cidr, snap.RouteIP(route), route.InstanceID, route.InterfaceID))
			case CmdAdd:
				if route.InterfaceID == target.InterfaceID {
					msgs = append(msgs, fmt.Sprintf(
						"--- route exists already in RT '%s': %s -> %s (%s, %s)",
						rt.ID, cidr, routerIP, target.InstanceID, target.InterfaceID))
					continue
				}
				if err := e.conn.ReplaceRoute(ctx, rt.ID, cidr, target.InstanceID, target.InterfaceID); err != nil {
					msgs = append(msgs, fmt.Sprintf(
						"*** failed to update route in RT '%s' %s -> %s (%s)",
						rt.ID, cidr, routerIP, err))
					continue
				}
				msgs = append(msgs, fmt.Sprintf(
					"--- route exists already in RT '%s', but with different destination: updating %s -> %s (%s, %s)",
					rt.ID, cidr, routerIP, target.InstanceID, target.InterfaceID))
			}
			break
		}

		if foundInRT {
			continue
		}
		switch cmd {
		case CmdShow, CmdDel:
			msgs = append(msgs, fmt.Sprintf("--- did not find route in RT '%s'", rt.ID))
			found = false
		case CmdAdd:
			if err := e.conn.CreateRoute(ctx, rt.ID, cidr, target.InstanceID, target.InterfaceID); err != nil {
				msgs = append(msgs, fmt.Sprintf(
					"*** failed to add route in RT '%s' %s -> %s (%s)",
					rt.ID, cidr, routerIP, err))
				continue
			}
			msgs = append(msgs, fmt.Sprintf(
				"--- adding route in RT '%s': %s -> %s (%s, %s)",
				rt.ID, cidr, routerIP, target.InstanceID, target.InterfaceID))
		}
	}
	return msgs, found, nil
}
