package reconciler

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpcrouter/vpcrouter/internal/connector/memconn"
	"github.com/vpcrouter/vpcrouter/internal/models"
)

const testVPC = "vpc-1"

// twoRouters is a VPC with two route tables and two router instances,
// 10.0.0.5 (i-1/eni-1) and 10.0.0.6 (i-2/eni-2).
func twoRouters(t *testing.T) (*memconn.Connector, *Engine) {
	t.Helper()
	conn := memconn.New(testVPC)
	conn.AddRouteTable("rt-1")
	conn.AddRouteTable("rt-2")
	conn.AddInstance(models.Instance{
		ID:         "i-1",
		Interfaces: []models.NetworkInterface{{ID: "eni-1", PrivateIP: "10.0.0.5"}},
	})
	conn.AddInstance(models.Instance{
		ID:         "i-2",
		Interfaces: []models.NetworkInterface{{ID: "eni-2", PrivateIP: "10.0.0.6"}},
	})
	return conn, New(conn, testVPC, nil)
}

func TestChooseCandidate(t *testing.T) {
	candidates := []string{"10.0.0.5", "10.0.0.6", "10.0.0.7"}

	assert.Equal(t, "10.0.0.5", ChooseCandidate(candidates, models.NewFailedIPSet()))
	assert.Equal(t, "10.0.0.6", ChooseCandidate(candidates, models.NewFailedIPSet("10.0.0.5")))
	assert.Equal(t, "10.0.0.7", ChooseCandidate(candidates, models.NewFailedIPSet("10.0.0.5", "10.0.0.6")))
	// all failed: fall back to the first candidate, never unrouted
	assert.Equal(t, "10.0.0.5", ChooseCandidate(candidates, models.NewFailedIPSet(candidates...)))
}

func TestReconcileCreatesRoutesInEveryTable(t *testing.T) {
	conn, engine := twoRouters(t)

	spec := models.RouteSpec{"10.0.1.0/24": {"10.0.0.5", "10.0.0.6"}}
	msgs, err := engine.Reconcile(context.Background(), spec, models.FailedIPSet{})
	require.NoError(t, err)

	creates, replaces, deletes := conn.MutationCounts()
	assert.Equal(t, 2, creates, "one create per route table")
	assert.Zero(t, replaces)
	assert.Zero(t, deletes)

	for _, tableID := range []string{"rt-1", "rt-2"} {
		route, ok := conn.Route(tableID, "10.0.1.0/24")
		require.True(t, ok, "route missing in %s", tableID)
		assert.Equal(t, "i-1", route.InstanceID)
		assert.Equal(t, "eni-1", route.InterfaceID)
	}
	assert.Len(t, msgs, 2)
}

func TestReconcileRoutesAroundFailedCandidate(t *testing.T) {
	conn, engine := twoRouters(t)

	spec := models.RouteSpec{"10.0.1.0/24": {"10.0.0.5", "10.0.0.6"}}
	_, err := engine.Reconcile(context.Background(), spec, models.NewFailedIPSet("10.0.0.5"))
	require.NoError(t, err)

	route, ok := conn.Route("rt-1", "10.0.1.0/24")
	require.True(t, ok)
	assert.Equal(t, "i-2", route.InstanceID, "expected the second candidate")
	assert.Equal(t, "eni-2", route.InterfaceID)
}

func TestReconcileAllCandidatesFailedStillRoutes(t *testing.T) {
	conn, engine := twoRouters(t)

	spec := models.RouteSpec{"10.0.1.0/24": {"10.0.0.5", "10.0.0.6"}}
	failed := models.NewFailedIPSet("10.0.0.5", "10.0.0.6")
	_, err := engine.Reconcile(context.Background(), spec, failed)
	require.NoError(t, err)

	route, ok := conn.Route("rt-1", "10.0.1.0/24")
	require.True(t, ok, "a CIDR must never be left unrouted")
	assert.Equal(t, "i-1", route.InstanceID, "falls back to the first candidate")
}

func TestReconcileIsIdempotent(t *testing.T) {
	conn, engine := twoRouters(t)

	spec := models.RouteSpec{
		"10.0.1.0/24": {"10.0.0.5", "10.0.0.6"},
		"10.0.2.0/24": {"10.0.0.6"},
	}
	_, err := engine.Reconcile(context.Background(), spec, models.FailedIPSet{})
	require.NoError(t, err)
	conn.ResetCounts()

	msgs, err := engine.Reconcile(context.Background(), spec, models.FailedIPSet{})
	require.NoError(t, err)

	creates, replaces, deletes := conn.MutationCounts()
	assert.Zero(t, creates)
	assert.Zero(t, replaces)
	assert.Zero(t, deletes)
	for _, msg := range msgs {
		assert.Contains(t, msg, "route exists already")
	}
}

func TestReconcileReplacesLowerPriorityRoute(t *testing.T) {
	conn, engine := twoRouters(t)
	// rt-1 already routes via the second candidate while the first is
	// healthy again
	conn.SeedRoute("rt-1", models.Route{
		DestinationCIDR: "10.0.1.0/24",
		InstanceID:      "i-2",
		InterfaceID:     "eni-2",
	})
	conn.SeedRoute("rt-2", models.Route{
		DestinationCIDR: "10.0.1.0/24",
		InstanceID:      "i-1",
		InterfaceID:     "eni-1",
	})

	spec := models.RouteSpec{"10.0.1.0/24": {"10.0.0.5", "10.0.0.6"}}
	_, err := engine.Reconcile(context.Background(), spec, models.FailedIPSet{})
	require.NoError(t, err)

	creates, replaces, deletes := conn.MutationCounts()
	assert.Zero(t, creates)
	assert.Equal(t, 1, replaces, "only rt-1 needed fixing")
	assert.Zero(t, deletes)

	route, _ := conn.Route("rt-1", "10.0.1.0/24")
	assert.Equal(t, "i-1", route.InstanceID)
}

func TestReconcileDeletesRemovedCIDR(t *testing.T) {
	conn, engine := twoRouters(t)

	spec := models.RouteSpec{
		"10.0.1.0/24": {"10.0.0.5"},
		"10.0.2.0/24": {"10.0.0.6"},
	}
	_, err := engine.Reconcile(context.Background(), spec, models.FailedIPSet{})
	require.NoError(t, err)
	conn.ResetCounts()

	delete(spec, "10.0.2.0/24")
	_, err = engine.Reconcile(context.Background(), spec, models.FailedIPSet{})
	require.NoError(t, err)

	creates, replaces, deletes := conn.MutationCounts()
	assert.Zero(t, creates)
	assert.Zero(t, replaces)
	assert.Equal(t, 2, deletes, "removed from both tables")

	_, ok := conn.Route("rt-1", "10.0.2.0/24")
	assert.False(t, ok)
	_, ok = conn.Route("rt-1", "10.0.1.0/24")
	assert.True(t, ok, "the remaining CIDR stays routed")
}

func TestReconcileLeavesExternallyOwnedRoutesAlone(t *testing.T) {
	conn, engine := twoRouters(t)
	// a local/gateway route with no instance attached
	conn.SeedRoute("rt-1", models.Route{DestinationCIDR: "0.0.0.0/0"})

	spec := models.RouteSpec{"10.0.1.0/24": {"10.0.0.5"}}
	_, err := engine.Reconcile(context.Background(), spec, models.FailedIPSet{})
	require.NoError(t, err)

	route, ok := conn.Route("rt-1", "0.0.0.0/0")
	require.True(t, ok, "externally owned route must survive")
	assert.Empty(t, route.InstanceID)
}

func TestReconcileDoesNotCreateOverExternallyOwnedRoute(t *testing.T) {
	conn, engine := twoRouters(t)
	// an externally owned route already claims the spec'd CIDR in rt-1
	conn.SeedRoute("rt-1", models.Route{DestinationCIDR: "10.0.1.0/24"})

	spec := models.RouteSpec{"10.0.1.0/24": {"10.0.0.5"}}
	_, err := engine.Reconcile(context.Background(), spec, models.FailedIPSet{})
	require.NoError(t, err)

	creates, _, _ := conn.MutationCounts()
	assert.Equal(t, 1, creates, "created only in rt-2")

	route, _ := conn.Route("rt-1", "10.0.1.0/24")
	assert.Empty(t, route.InstanceID, "rt-1's route untouched")
}

func TestReconcileIsolatesUnresolvableCandidate(t *testing.T) {
	conn, engine := twoRouters(t)

	spec := models.RouteSpec{
		"10.0.1.0/24": {"10.0.0.99"}, // no such instance
		"10.0.2.0/24": {"10.0.0.6"},
	}
	msgs, err := engine.Reconcile(context.Background(), spec, models.FailedIPSet{})
	require.NoError(t, err, "a per-CIDR failure must not fail the pass")

	_, ok := conn.Route("rt-1", "10.0.1.0/24")
	assert.False(t, ok)
	_, ok = conn.Route("rt-1", "10.0.2.0/24")
	assert.True(t, ok, "the healthy CIDR still converged")

	var failures int
	for _, msg := range msgs {
		if strings.HasPrefix(msg, "***") {
			failures++
		}
	}
	assert.Equal(t, 2, failures, "one failure message per table")
}

func TestReconcileConnectorFailureAbortsPass(t *testing.T) {
	conn, engine := twoRouters(t)
	conn.SetListError(errors.New("api unreachable"))

	_, err := engine.Reconcile(context.Background(), models.RouteSpec{"10.0.1.0/24": {"10.0.0.5"}}, models.FailedIPSet{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnector)
}

func TestReconcileUnknownVPC(t *testing.T) {
	conn := memconn.New("vpc-other")
	engine := New(conn, testVPC, nil)

	_, err := engine.Reconcile(context.Background(), models.RouteSpec{}, models.FailedIPSet{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnector)
}
