package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vpcrouter/vpcrouter/internal/models"
)

func TestStartsEmpty(t *testing.T) {
	st := New()
	spec, failed := st.Get()
	assert.Empty(t, spec)
	assert.Empty(t, failed)
}

func TestSetRouteSpecKeepsFailedIPs(t *testing.T) {
	st := New()
	st.SetFailedIPs(models.NewFailedIPSet("10.0.0.5"))
	st.SetRouteSpec(models.RouteSpec{"10.1.0.0/24": {"10.0.0.5"}})

	spec, failed := st.Get()
	assert.True(t, spec.Equal(models.RouteSpec{"10.1.0.0/24": {"10.0.0.5"}}))
	assert.True(t, failed.Has("10.0.0.5"))
}

func TestSetFailedIPsKeepsSpec(t *testing.T) {
	st := New()
	st.SetRouteSpec(models.RouteSpec{"10.1.0.0/24": {"10.0.0.5"}})
	st.SetFailedIPs(models.NewFailedIPSet("10.0.0.5"))
	st.SetFailedIPs(models.FailedIPSet{})

	spec, failed := st.Get()
	assert.Len(t, spec, 1)
	assert.Empty(t, failed, "empty set is a valid update meaning all healthy")
}

// Readers must always see a consistent pair while the writer replaces
// both halves; run with -race.
func TestConcurrentReaders(t *testing.T) {
	st := New()
	stop := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				spec, failed := st.Get()
				_ = spec
				_ = failed
			}
		}()
	}

	for i := 0; i < 1000; i++ {
		if i%2 == 0 {
			st.SetRouteSpec(models.RouteSpec{"10.1.0.0/24": {"10.0.0.5"}})
		} else {
			st.SetFailedIPs(models.NewFailedIPSet("10.0.0.5"))
		}
	}
	close(stop)
	wg.Wait()
}
