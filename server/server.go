// Package server serves live training views over http and websockets.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	channerics "github.com/niceyeti/channerics/channels"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"qpath/models"
	"qpath/server/cell_views"
	"qpath/server/fastview"
	"qpath/server/root_view"
)

const shutdownTimeout = 5 * time.Second

// Server serves the main page and one websocket per page, each publishing the
// views of the latest training snapshot. Snapshots arriving faster than a
// client consumes them are dropped in favor of the newest one.
type Server struct {
	ctx    context.Context
	addr   string
	hub    *hub
	router *mux.Router
	logger logrus.FieldLogger
}

// NewServer returns a server whose views start at initial and follow the
// snapshots chan until ctx is cancelled or the chan closes.
func NewServer(
	ctx context.Context,
	addr string,
	initial models.Snapshot,
	snapshots <-chan models.Snapshot,
	logger logrus.FieldLogger,
) *Server {
	server := &Server{
		ctx:    ctx,
		addr:   addr,
		hub:    newHub(initial),
		logger: logger.WithField("component", "server"),
	}

	if snapshots != nil {
		go func() {
			for snapshot := range channerics.OrDone(ctx.Done(), snapshots) {
				server.hub.publish(snapshot)
			}
		}()
	}

	router := mux.NewRouter()
	router.HandleFunc("/", server.serveIndex).Methods(http.MethodGet)
	router.HandleFunc("/ws", server.serveWebsocket)
	router.HandleFunc("/api/snapshot", server.serveSnapshot).Methods(http.MethodGet)
	server.router = router

	return server
}

// Handler returns the server's routes.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Serve listens on the server's address until its context is cancelled, then
// shuts down gracefully.
func (server *Server) Serve() error {
	httpServer := &http.Server{
		Addr:    server.addr,
		Handler: server.router,
	}

	group, groupCtx := errgroup.WithContext(server.ctx)
	group.Go(func() error {
		server.logger.WithField("addr", server.addr).Info("serving")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// serveWebsocket publishes the views of each new snapshot to the client.
func (server *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(server.ctx)
	defer cancel()

	snapshots, unsubscribe := server.hub.subscribe(ctx.Done())
	defer unsubscribe()

	rootView, err := root_view.NewRootView(ctx, snapshots)
	if err != nil {
		server.logger.WithError(err).Error("building root view")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	client, err := fastview.NewClient(ctx, rootView.Updates(), w, r, server.logger)
	if err != nil {
		server.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	if err := client.Sync(); err != nil {
		server.logger.WithError(err).Warn("websocket client failed")
	}
}

// serveIndex renders the main page from the latest snapshot.
func (server *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The views are only parsed here; their update channels are never read.
	closed := make(chan models.Snapshot)
	close(closed)
	rootView, err := root_view.NewRootView(ctx, closed)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	if err := renderTemplate(w, rootView, cell_views.Convert(server.hub.latest())); err != nil {
		server.logger.WithError(err).Error("rendering index")
		_, _ = w.Write([]byte(err.Error()))
	}
}

// serveSnapshot writes the latest snapshot as json.
func (server *Server) serveSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(server.hub.latest()); err != nil {
		server.logger.WithError(err).Warn("writing snapshot")
	}
}

func renderTemplate(
	w io.Writer,
	vc fastview.ViewComponent,
	data interface{},
) (err error) {
	t := template.New("index.html")
	var tname string
	if tname, err = vc.Parse(t); err != nil {
		return
	}
	if _, err = t.Parse(`{{ template "` + tname + `" . }}`); err != nil {
		return
	}

	err = t.Execute(w, data)
	return
}

// hub stores the latest snapshot and forwards new snapshots to subscribers.
// Each subscriber holds at most one pending snapshot, the newest.
type hub struct {
	mu   sync.Mutex
	last models.Snapshot
	subs map[chan models.Snapshot]struct{}
}

func newHub(initial models.Snapshot) *hub {
	return &hub{
		last: initial,
		subs: map[chan models.Snapshot]struct{}{},
	}
}

func (h *hub) latest() models.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

func (h *hub) publish(snapshot models.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = snapshot
	for sub := range h.subs {
		select {
		case sub <- snapshot:
		default:
			// Replace the stale pending snapshot. Only publish sends, under the lock.
			select {
			case <-sub:
			default:
			}
			sub <- snapshot
		}
	}
}

// subscribe returns a chan primed with the latest snapshot. The returned chan
// is read until done closes; unsubscribe must be called afterward.
func (h *hub) subscribe(done <-chan struct{}) (<-chan models.Snapshot, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := make(chan models.Snapshot, 1)
	sub <- h.last
	h.subs[sub] = struct{}{}

	return channerics.OrDone(done, sub), func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, sub)
	}
}
