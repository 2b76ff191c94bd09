package healthmon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpcrouter/vpcrouter/internal/models"
)

func waitForSnapshot(t *testing.T, m *Monitor) models.FailedIPSet {
	t.Helper()
	select {
	case snap := <-m.FailedIPs():
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("no failed-ip snapshot published")
		return nil
	}
}

func TestMonitorReportsFailedIPs(t *testing.T) {
	prober := NewMockProber()
	prober.SetDown("10.0.0.5")

	m := NewMonitor(prober, Config{
		Interval:         10 * time.Millisecond,
		FailureThreshold: 2,
	})
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	m.SetMonitoredIPs([]string{"10.0.0.5", "10.0.0.6"})

	snap := waitForSnapshot(t, m)
	assert.True(t, snap.Has("10.0.0.5"))
	assert.False(t, snap.Has("10.0.0.6"))
}

func TestMonitorRequiresConsecutiveFailures(t *testing.T) {
	prober := NewMockProber()
	prober.SetDown("10.0.0.5")

	m := NewMonitor(prober, Config{
		Interval:         10 * time.Millisecond,
		FailureThreshold: 3,
	})
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()
	m.SetMonitoredIPs([]string{"10.0.0.5"})

	// below the threshold nothing is published
	select {
	case snap := <-m.FailedIPs():
		// the first snapshot must already carry the fully confirmed failure
		assert.True(t, snap.Has("10.0.0.5"))
	case <-time.After(2 * time.Second):
		t.Fatal("failure never confirmed")
	}
}

func TestMonitorPublishesRecovery(t *testing.T) {
	prober := NewMockProber()
	prober.SetDown("10.0.0.5")

	m := NewMonitor(prober, Config{
		Interval:         10 * time.Millisecond,
		FailureThreshold: 1,
	})
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()
	m.SetMonitoredIPs([]string{"10.0.0.5"})

	snap := waitForSnapshot(t, m)
	require.True(t, snap.Has("10.0.0.5"))

	prober.SetDown() // back to healthy
	snap = waitForSnapshot(t, m)
	assert.Empty(t, snap, "recovery publishes the empty set")
}

func TestMonitorForgetsRemovedIPs(t *testing.T) {
	prober := NewMockProber()
	prober.SetDown("10.0.0.5")

	m := NewMonitor(prober, Config{
		Interval:         10 * time.Millisecond,
		FailureThreshold: 1,
	})
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	m.SetMonitoredIPs([]string{"10.0.0.5"})
	snap := waitForSnapshot(t, m)
	require.True(t, snap.Has("10.0.0.5"))

	// the failed IP leaves the spec entirely
	m.SetMonitoredIPs([]string{"10.0.0.6"})
	snap = waitForSnapshot(t, m)
	assert.False(t, snap.Has("10.0.0.5"))
}

func TestMonitorStartIsIdempotent(t *testing.T) {
	m := NewMonitor(NewMockProber(), Config{Interval: 10 * time.Millisecond})
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Start(context.Background()))
	m.Stop()
	m.Stop()
}
