// Package httpwatcher accepts route specs over HTTP ("http mode"): a
// POST to /route_spec with a JSON body publishes a new snapshot, a GET
// returns the last accepted one.
package httpwatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/vpcrouter/vpcrouter/internal/models"
	"github.com/vpcrouter/vpcrouter/pkg/coalesce"
)

const maxSpecBody = 1 << 20

type Watcher struct {
	addr  string
	specs *coalesce.Chan[models.RouteSpec]

	srv     *http.Server
	started atomic.Bool
	stopped sync.Once
	wg      sync.WaitGroup

	mu   sync.Mutex
	last models.RouteSpec
}

func New(addr string) *Watcher {
	w := &Watcher{
		addr:  addr,
		specs: coalesce.New[models.RouteSpec](),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/route_spec", w.handleRouteSpec)
	w.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return w
}

func (w *Watcher) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return nil
	}
	ln, err := net.Listen("tcp", w.addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", w.addr, err)
	}
	log.Info().Msgf("listening for route specs on %s", ln.Addr())
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("route spec http server failed")
		}
	}()
	return nil
}

func (w *Watcher) Stop() {
	w.stopped.Do(func() {
		_ = w.srv.Close()
	})
	w.wg.Wait()
	w.specs.Close()
}

func (w *Watcher) RouteSpecs() <-chan models.RouteSpec {
	return w.specs.Recv()
}

func (w *Watcher) handleRouteSpec(rw http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	switch r.Method {
	case http.MethodGet:
		w.mu.Lock()
		last := w.last
		w.mu.Unlock()
		rw.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(rw).Encode(last); err != nil {
			log.Error().Err(err).Msg("failed to write route spec response")
		}
	case http.MethodPost:
		body, err := io.ReadAll(io.LimitReader(r.Body, maxSpecBody))
		if err != nil {
			http.Error(rw, "failed to read body", http.StatusBadRequest)
			return
		}
		spec, err := models.ParseRouteSpec(body)
		if err != nil {
			log.Warn().Err(err).Msg("rejected route spec update")
			http.Error(rw, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		w.mu.Lock()
		w.last = spec
		w.mu.Unlock()
		w.specs.Send(spec)
		log.Info().Msgf("accepted route spec with %d cidrs from %s", len(spec), r.RemoteAddr)
		fmt.Fprintln(rw, "Ok")
	default:
		http.Error(rw, "only GET and POST are supported", http.StatusMethodNotAllowed)
	}
}
