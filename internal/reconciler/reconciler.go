// Package reconciler converges the VPC's route tables on the current
// route spec: one route per spec'd CIDR in every table, pointing at the
// highest-priority healthy candidate IP.
package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/vpcrouter/vpcrouter/internal/metrics"
	"github.com/vpcrouter/vpcrouter/internal/models"
)

// ErrConnector marks whole-pass failures: the cloud API could not even
// be read. The pass is abandoned and the next tick retries from scratch.
var ErrConnector = errors.New("cloud connector failure")

type Connector interface {
	ListZones(ctx context.Context) ([]models.Zone, error)
	ListVPCs(ctx context.Context) ([]string, error)
	ListSubnets(ctx context.Context, vpcID string) ([]models.Subnet, error)
	ListRouteTables(ctx context.Context, vpcID string) ([]models.RouteTable, error)
	ListInstances(ctx context.Context, vpcID string) ([]models.Instance, error)
	CreateRoute(ctx context.Context, tableID, cidr, instanceID, interfaceID string) error
	ReplaceRoute(ctx context.Context, tableID, cidr, instanceID, interfaceID string) error
	DeleteRoute(ctx context.Context, tableID, cidr string) error
}

type Engine struct {
	conn  Connector
	vpcID string
	mtr   metrics.Metrics
}

func New(conn Connector, vpcID string, mtr metrics.Metrics) *Engine {
	if mtr == nil {
		mtr = metrics.NewNoop()
	}
	return &Engine{
		conn:  conn,
		vpcID: vpcID,
		mtr:   mtr,
	}
}

// ChooseCandidate picks the route target for a CIDR: the first candidate
// not in the failed set, list order being priority order. When every
// candidate is failed the first one is returned anyway — a CIDR is never
// left unrouted, a known-bad address beats a black hole.
func ChooseCandidate(candidates []string, failed models.FailedIPSet) string {
	for _, ip := range candidates {
		if !failed.Has(ip) {
			return ip
		}
	}
	return candidates[0]
}

// Reconcile runs one pass: fetch a fresh snapshot of the VPC, walk every
// route table, and create/replace/delete routes until actual state
// matches the spec. Failures of individual CIDRs are recorded in the
// returned messages and do not stop the rest of the pass; only a failed
// snapshot fetch aborts it.
func (e *Engine) Reconcile(ctx context.Context, spec models.RouteSpec, failed models.FailedIPSet) ([]string, error) {
	snap, err := e.fetchSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnector, err)
	}

	var (
		msgs     = make([]string, 0, len(spec))
		targets  = snap.TargetByIP()
		observed = make(map[string]map[string]struct{}, len(snap.RouteTables))
	)

	// First walk what exists. Routes whose CIDR left the spec are
	// deleted, the rest are checked against the chosen candidate.
	for _, rt := range snap.RouteTables {
		seen := make(map[string]struct{}, len(rt.Routes))
		observed[rt.ID] = seen
		for _, route := range rt.Routes {
			dcidr := route.DestinationCIDR
			// Remember the CIDR even for routes we never touch, so
			// the create step does not collide with them.
			seen[dcidr] = struct{}{}

			if !route.AttachedToInstance() {
				log.Debug().Msgf("skipping externally owned route %s in RT '%s'", dcidr, rt.ID)
				continue
			}

			candidates, wanted := spec[dcidr]
			if !wanted {
				if err := e.conn.DeleteRoute(ctx, rt.ID, dcidr); err != nil {
					msgs = append(msgs, fmt.Sprintf(
						"*** failed to delete route in RT '%s' %s -> ... (%s)",
						rt.ID, dcidr, err))
					continue
				}
				e.mtr.Increment("reconcile.route_deleted")
				msgs = append(msgs, fmt.Sprintf(
					"--- route not in spec, deleting in RT '%s': %s -> ... (%s, %s)",
					rt.ID, dcidr, route.InstanceID, route.InterfaceID))
				continue
			}

			chosen := ChooseCandidate(candidates, failed)
			if snap.RouteIP(route) == chosen {
				msgs = append(msgs, fmt.Sprintf(
					"--- route exists already in RT '%s': %s -> %s (%s, %s)",
					rt.ID, dcidr, chosen, route.InstanceID, route.InterfaceID))
				continue
			}

			target, ok := targets[chosen]
			if !ok {
				msgs = append(msgs, fmt.Sprintf(
					"*** failed to update route in RT '%s' %s -> %s (no instance/interface for IP)",
					rt.ID, dcidr, chosen))
				continue
			}
			if err := e.conn.ReplaceRoute(ctx, rt.ID, dcidr, target.InstanceID, target.InterfaceID); err != nil {
				msgs = append(msgs, fmt.Sprintf(
					"*** failed to update route in RT '%s' %s -> %s (%s)",
					rt.ID, dcidr, chosen, err))
				continue
			}
			e.mtr.Increment("reconcile.route_replaced")
			msgs = append(msgs, fmt.Sprintf(
				"--- route exists already in RT '%s', but with different destination: updating %s -> %s (%s, %s)",
				rt.ID, dcidr, chosen, target.InstanceID, target.InterfaceID))
		}
	}

	// Then create what is spec'd but was not observed in a table.
	for _, dcidr := range spec.CIDRs() {
		chosen := ChooseCandidate(spec[dcidr], failed)
		for _, rt := range snap.RouteTables {
			if _, ok := observed[rt.ID][dcidr]; ok {
				continue
			}
			target, ok := targets[chosen]
			if !ok {
				msgs = append(msgs, fmt.Sprintf(
					"*** failed to add route in RT '%s' %s -> %s (no instance/interface for IP)",
					rt.ID, dcidr, chosen))
				continue
			}
			if err := e.conn.CreateRoute(ctx, rt.ID, dcidr, target.InstanceID, target.InterfaceID); err != nil {
				msgs = append(msgs, fmt.Sprintf(
					"*** failed to add route in RT '%s' %s -> %s (%s)",
					rt.ID, dcidr, chosen, err))
				continue
			}
			e.mtr.Increment("reconcile.route_created")
			msgs = append(msgs, fmt.Sprintf(
				"--- adding route in RT '%s': %s -> %s (%s, %s)",
				rt.ID, dcidr, chosen, target.InstanceID, target.InterfaceID))
		}
	}

	return msgs, nil
}

// fetchSnapshot reads the full routing view of the VPC. Zones and
// subnets are part of the overview for reporting and sanity checks;
// route tables and instances drive the pass itself.
func (e *Engine) fetchSnapshot(ctx context.Context) (*models.VPCSnapshot, error) {
	zones, err := e.conn.ListZones(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list zones: %w", err)
	}
	vpcs, err := e.conn.ListVPCs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list vpcs: %w", err)
	}
	found := false
	for _, id := range vpcs {
		if id == e.vpcID {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("vpc %q not found", e.vpcID)
	}
	subnets, err := e.conn.ListSubnets(ctx, e.vpcID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subnets: %w", err)
	}
	tables, err := e.conn.ListRouteTables(ctx, e.vpcID)
	if err != nil {
		return nil, fmt.Errorf("failed to list route tables: %w", err)
	}
	instances, err := e.conn.ListInstances(ctx, e.vpcID)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	return &models.VPCSnapshot{
		VPCID:       e.vpcID,
		Zones:       zones,
		Subnets:     subnets,
		RouteTables: tables,
		Instances:   instances,
	}, nil
}
