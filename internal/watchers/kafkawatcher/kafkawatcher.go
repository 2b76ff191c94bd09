// Package kafkawatcher consumes full route-spec snapshots from a kafka
// topic. Every message is a complete JSON spec; malformed messages are
// logged, committed and skipped so one bad producer cannot wedge the
// consumer group.
package kafkawatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	kafka "github.com/segmentio/kafka-go"

	"github.com/vpcrouter/vpcrouter/internal/models"
	"github.com/vpcrouter/vpcrouter/pkg/coalesce"
)

type Watcher struct {
	reader *kafka.Reader
	specs  *coalesce.Chan[models.RouteSpec]

	started atomic.Bool
	stopped sync.Once
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(brokers []string, topic, groupID string) *Watcher {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MaxBytes:    10 * 1024 * 1024,
		StartOffset: kafka.LastOffset,
	})
	return &Watcher{
		reader: reader,
		specs:  coalesce.New[models.RouteSpec](),
	}
}

func (w *Watcher) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return nil
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

func (w *Watcher) Stop() {
	w.stopped.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		if err := w.reader.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka reader")
		}
	})
	w.wg.Wait()
	w.specs.Close()
}

func (w *Watcher) RouteSpecs() <-chan models.RouteSpec {
	return w.specs.Recv()
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error().Err(err).Msg("failed to fetch route spec message")
			continue
		}
		spec, err := models.ParseRouteSpec(msg.Value)
		if err != nil {
			log.Error().Err(err).Msgf("skipping bad route spec message at offset %d", msg.Offset)
			_ = w.reader.CommitMessages(ctx, msg)
			continue
		}
		w.specs.Send(spec)
		log.Debug().Msgf("route spec with %d cidrs from offset %d", len(spec), msg.Offset)
		if err := w.reader.CommitMessages(ctx, msg); err != nil {
			log.Error().Err(err).Msg("failed to commit route spec message")
		}
	}
}
