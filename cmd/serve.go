package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/jobscout/internal/acquire"
	"github.com/sells-group/jobscout/internal/model"
	"github.com/sells-group/jobscout/internal/monitoring"
	"github.com/sells-group/jobscout/internal/resilience"
	"github.com/sells-group/jobscout/internal/routing"
	"github.com/sells-group/jobscout/internal/store"
)

var servePort int

// shutdownGrace is how long in-flight runs may keep going after a signal.
const shutdownGrace = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for acquisition runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initAcquire(ctx, "")
		if err != nil {
			return err
		}
		defer env.Close()

		api := newAPI(ctx, env.Service, env.Store, env.Routes, env.Breakers, cfg.Acquire.DefaultCount)

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(api.collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.router(cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		if !api.drain(shutdownGrace) {
			zap.L().Warn("in-flight runs interrupted at shutdown")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// api serves run submission and run history over HTTP.
type api struct {
	runCtx       context.Context
	cancelRuns   context.CancelFunc
	svc          *acquire.Service
	store        store.Store
	routes       *routing.Table
	breakers     *resilience.Breakers
	collector    *monitoring.Collector
	defaultCount int
	inflight     sync.WaitGroup
}

// newAPI creates the HTTP API. Accepted runs keep ctx's values but not its
// cancellation; they stop early only when drain runs out of time.
func newAPI(ctx context.Context, svc *acquire.Service, st store.Store, routes *routing.Table, breakers *resilience.Breakers, defaultCount int) *api {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &api{
		runCtx:       runCtx,
		cancelRuns:   cancel,
		svc:          svc,
		store:        st,
		routes:       routes,
		breakers:     breakers,
		collector:    monitoring.NewCollector(st),
		defaultCount: defaultCount,
	}
}

func (a *api) router(origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", a.health)
	r.Get("/routes", a.listRoutes)
	r.Get("/metrics", a.metrics)
	r.Route("/runs", func(r chi.Router) {
		r.Post("/", a.createRun)
		r.Get("/", a.listRuns)
		r.Get("/{id}", a.getRun)
		r.Get("/{id}/records", a.listRecords)
	})
	return r
}

// wait blocks until accepted runs have finished.
func (a *api) wait() {
	a.inflight.Wait()
}

// drain waits up to grace for accepted runs. Runs still going after that are
// cancelled and drain returns once they have recorded their failure. It
// reports whether every run finished within grace.
func (a *api) drain(grace time.Duration) bool {
	done := make(chan struct{})
	go func() {
		a.inflight.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		a.cancelRuns()
		return true
	case <-timer.C:
	}

	a.cancelRuns()
	<-done
	return false
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if a.breakers != nil {
		circuits := make(map[string]string)
		for name, state := range a.breakers.States() {
			circuits[name] = state.String()
		}
		body["circuits"] = circuits
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *api) listRoutes(w http.ResponseWriter, _ *http.Request) {
	chains := make(map[model.Domain][]model.TierID)
	for _, d := range a.routes.Domains() {
		chains[d] = a.routes.TiersFor(d)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fallback": a.routes.Fallback(),
		"chains":   chains,
	})
}

func (a *api) metrics(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = n
	}

	snap, err := a.collector.Collect(r.Context(), hours)
	if err != nil {
		zap.L().Error("api: collect metrics", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not collect metrics")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type createRunRequest struct {
	Domains []model.Domain    `json:"domains"`
	Query   string            `json:"query"`
	Count   *int              `json:"count,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
}

func (a *api) createRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	inv := model.Invocation{Query: req.Query, Count: a.defaultCount, Filters: req.Filters}
	if req.Count != nil {
		inv.Count = *req.Count
	}
	for _, d := range req.Domains {
		inv.Domains = append(inv.Domains, model.ParseDomain(string(d)))
	}

	if err := a.svc.Validate(inv); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := a.svc.Start(r.Context(), inv)
	if err != nil {
		zap.L().Error("api: start run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not start run")
		return
	}

	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()
		res, err := a.svc.Execute(a.runCtx, id, inv)
		if err != nil {
			zap.L().Error("api: run failed", zap.String("run_id", id), zap.Error(err))
			return
		}
		zap.L().Info("api: run complete",
			zap.String("run_id", id),
			zap.Int("records", len(res.Records)),
			zap.String("location", res.Location),
		)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"run_id": id,
	})
}

func (a *api) listRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{Status: model.RunStatus(q.Get("status"))}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	runs, err := a.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list runs")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *api) getRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := a.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		zap.L().Error("api: get run", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (a *api) listRecords(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	records, err := a.store.ListRecords(r.Context(), id)
	if err != nil {
		zap.L().Error("api: list records", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list records")
		return
	}
	if records == nil {
		records = []model.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
