// Package etcdwatcher watches a single etcd key holding the route spec
// as JSON. The current value is published at startup, every PUT after
// that publishes a new snapshot, and deleting the key publishes an empty
// spec (no desired routes).
package etcdwatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/vpcrouter/vpcrouter/internal/models"
	"github.com/vpcrouter/vpcrouter/pkg/coalesce"
)

type Watcher struct {
	client *clientv3.Client
	key    string
	specs  *coalesce.Chan[models.RouteSpec]

	started atomic.Bool
	stopped sync.Once
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(endpoints []string, key string) (*Watcher, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}
	return &Watcher{
		client: client,
		key:    key,
		specs:  coalesce.New[models.RouteSpec](),
	}, nil
}

func (w *Watcher) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return nil
	}
	resp, err := w.client.Get(ctx, w.key)
	if err != nil {
		return fmt.Errorf("failed to read route spec key %s: %w", w.key, err)
	}
	rev := resp.Header.Revision
	if len(resp.Kvs) != 0 {
		spec, err := models.ParseRouteSpec(resp.Kvs[0].Value)
		if err != nil {
			return fmt.Errorf("unusable route spec at %s: %w", w.key, err)
		}
		w.specs.Send(spec)
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx, rev+1)
	return nil
}

func (w *Watcher) Stop() {
	w.stopped.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		if err := w.client.Close(); err != nil {
			log.Error().Err(err).Msg("error during closing etcd client")
		}
	})
	w.wg.Wait()
	w.specs.Close()
}

func (w *Watcher) RouteSpecs() <-chan models.RouteSpec {
	return w.specs.Recv()
}

func (w *Watcher) run(ctx context.Context, fromRev int64) {
	defer w.wg.Done()

	ctx = clientv3.WithRequireLeader(ctx)
	watch := func(rev int64) clientv3.WatchChan {
		return w.client.Watch(ctx, w.key, clientv3.WithRev(rev))
	}
	var (
		lastRev     = fromRev
		watcherChan = watch(fromRev)
	)
	for {
		select {
		case <-ctx.Done():
			return
		case resp, ok := <-watcherChan:
			if !ok {
				log.Info().Msg("etcd watch channel closed")
				return
			}
			if resp.Canceled {
				log.Error().Err(resp.Err()).Msg("etcd watch canceled, retrying")
				watcherChan = watch(lastRev)
				continue
			}
			if resp.Err() != nil {
				log.Error().Err(resp.Err()).Msg("etcd watch error")
				continue
			}
			lastRev = resp.Header.Revision
			for _, ev := range resp.Events {
				if ev.Type == clientv3.EventTypeDelete {
					log.Warn().Msgf("route spec key %s deleted, publishing empty spec", w.key)
					w.specs.Send(models.RouteSpec{})
					continue
				}
				spec, err := models.ParseRouteSpec(ev.Kv.Value)
				if err != nil {
					log.Error().Err(err).Msgf("ignoring unusable route spec at revision %d", ev.Kv.ModRevision)
					continue
				}
				w.specs.Send(spec)
			}
		}
	}
}
