// Package pgwatcher polls a postgres table for the route spec. Expected
// schema:
//
//	create table route_spec (
//	    destination_cidr text not null,
//	    router_ip        text not null,
//	    priority         int  not null default 0,
//	    primary key (destination_cidr, router_ip)
//	);
//
// Rows are grouped by CIDR ordered by priority; a snapshot is published
// only when the assembled spec differs from the previously published one.
package pgwatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/vpcrouter/vpcrouter/internal/models"
	"github.com/vpcrouter/vpcrouter/pkg/coalesce"
)

type Watcher struct {
	pool     *pgxpool.Pool
	interval time.Duration
	specs    *coalesce.Chan[models.RouteSpec]

	started atomic.Bool
	stop    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup

	last models.RouteSpec
}

func New(ctx context.Context, dsn string, interval time.Duration) (*Watcher, error) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return &Watcher{
		pool:     pool,
		interval: interval,
		specs:    coalesce.New[models.RouteSpec](),
		stop:     make(chan struct{}),
	}, nil
}

func (w *Watcher) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return nil
	}
	// first poll happens synchronously so the coordinator has a spec
	// to act on right after startup
	if err := w.poll(ctx); err != nil {
		return err
	}
	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

func (w *Watcher) Stop() {
	w.stopped.Do(func() {
		close(w.stop)
	})
	w.wg.Wait()
	w.pool.Close()
	w.specs.Close()
}

func (w *Watcher) RouteSpecs() <-chan models.RouteSpec {
	return w.specs.Recv()
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			if err := w.poll(ctx); err != nil {
				log.Error().Err(err).Msg("route spec poll failed, keeping last good spec")
			}
		}
	}
}

func (w *Watcher) poll(ctx context.Context) error {
	sql, args, err := squirrel.
		Select("destination_cidr", "router_ip").
		From("route_spec").
		OrderBy("destination_cidr", "priority").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build route spec query: %w", err)
	}
	rows, err := w.pool.Query(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to query route spec: %w", err)
	}
	defer rows.Close()

	spec := models.RouteSpec{}
	for rows.Next() {
		var cidr, ip string
		if err := rows.Scan(&cidr, &ip); err != nil {
			return fmt.Errorf("failed to scan route spec row: %w", err)
		}
		spec[cidr] = append(spec[cidr], ip)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("route spec rows: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("route spec table holds invalid data: %w", err)
	}

	if spec.Equal(w.last) {
		return nil
	}
	w.last = spec
	log.Info().Msgf("route spec changed in database, %d cidrs", len(spec))
	w.specs.Send(spec)
	return nil
}
