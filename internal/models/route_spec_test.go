package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRouteSpec(t *testing.T) {
	spec, err := ParseRouteSpec([]byte(`{"10.1.0.0/24": ["10.0.0.5", "10.0.0.6"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.5", "10.0.0.6"}, spec["10.1.0.0/24"])
}

func TestParseRouteSpecRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"not json":      `{"10.1.0.0/24": `,
		"bad cidr":      `{"10.1.0.0": ["10.0.0.5"]}`,
		"bad ip":        `{"10.1.0.0/24": ["router-1"]}`,
		"empty ip list": `{"10.1.0.0/24": []}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRouteSpec([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestAllIPsSortedAndDeduplicated(t *testing.T) {
	spec := RouteSpec{
		"10.1.0.0/24": {"10.0.0.9", "10.0.0.5"},
		"10.2.0.0/24": {"10.0.0.5", "10.0.0.1"},
	}
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.5", "10.0.0.9"}, spec.AllIPs())
}

func TestRouteSpecEqual(t *testing.T) {
	a := RouteSpec{"10.1.0.0/24": {"10.0.0.5", "10.0.0.6"}}
	b := RouteSpec{"10.1.0.0/24": {"10.0.0.5", "10.0.0.6"}}
	assert.True(t, a.Equal(b))

	// candidate order is priority order, so it matters
	c := RouteSpec{"10.1.0.0/24": {"10.0.0.6", "10.0.0.5"}}
	assert.False(t, a.Equal(c))

	d := RouteSpec{"10.2.0.0/24": {"10.0.0.5", "10.0.0.6"}}
	assert.False(t, a.Equal(d))
}

func TestFailedIPSet(t *testing.T) {
	set := NewFailedIPSet("10.0.0.2", "10.0.0.1")
	assert.True(t, set.Has("10.0.0.1"))
	assert.False(t, set.Has("10.0.0.3"))
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, set.Sorted())

	assert.True(t, set.Equal(NewFailedIPSet("10.0.0.1", "10.0.0.2")))
	assert.False(t, set.Equal(NewFailedIPSet("10.0.0.1")))
	assert.True(t, FailedIPSet{}.Equal(NewFailedIPSet()))
}

func TestVPCSnapshotLookups(t *testing.T) {
	snap := &VPCSnapshot{
		Instances: []Instance{
			{ID: "i-1", Interfaces: []NetworkInterface{{ID: "eni-1", PrivateIP: "10.0.0.5"}}},
			{ID: "i-2", Interfaces: []NetworkInterface{
				{ID: "eni-2", PrivateIP: "10.0.0.6"},
				{ID: "eni-3", PrivateIP: "10.0.0.7"},
			}},
		},
	}

	byIP := snap.TargetByIP()
	require.Contains(t, byIP, "10.0.0.7")
	assert.Equal(t, "i-2", byIP["10.0.0.7"].InstanceID)
	assert.Equal(t, "eni-3", byIP["10.0.0.7"].InterfaceID)

	assert.Equal(t, "10.0.0.6", snap.RouteIP(Route{InstanceID: "i-2", InterfaceID: "eni-2"}))
	assert.Empty(t, snap.RouteIP(Route{InstanceID: "i-9", InterfaceID: "eni-9"}))
}
