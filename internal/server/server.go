// Package server exposes the merged surveillance tables over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/surveillance-cli/internal/history"
	"github.com/sells-group/surveillance-cli/internal/model"
	"github.com/sells-group/surveillance-cli/internal/store"
)

// RecordSource reads the persisted tables. *history.Store satisfies it.
type RecordSource interface {
	Load(ctx context.Context) ([]model.SurveillanceRecord, error)
	LoadCovid(ctx context.Context) ([]model.SurveillanceRecord, error)
}

// RunSource lists pipeline runs. store.Store satisfies it.
type RunSource interface {
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
}

// Options configures the handler.
type Options struct {
	// AllowedOrigins for CORS. Defaults to any origin.
	AllowedOrigins []string
	// Runs enables GET /runs when set.
	Runs RunSource
}

type handler struct {
	records RecordSource
	runs    RunSource
}

// New builds the router.
func New(records RecordSource, opts Options) http.Handler {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	h := &handler{records: records, runs: opts.Runs}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Get("/records", h.listRecords)
	r.Get("/records.csv", h.recordsCSV)
	r.Get("/covid", h.listCovid)
	r.Get("/covid.csv", h.covidCSV)
	if h.runs != nil {
		r.Get("/runs", h.listRuns)
	}
	return r
}

// Run serves handler on port until ctx is cancelled, then shuts down
// gracefully.
func Run(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("server: listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		zap.L().Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "server: shutdown")
		}
		return nil
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return eris.Wrap(err, "server: listen")
	}
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listRecords(w http.ResponseWriter, r *http.Request) {
	h.serveJSON(w, r, h.records.Load)
}

func (h *handler) listCovid(w http.ResponseWriter, r *http.Request) {
	h.serveJSON(w, r, h.records.LoadCovid)
}

func (h *handler) recordsCSV(w http.ResponseWriter, r *http.Request) {
	h.serveCSV(w, r, h.records.Load, "surveillance_all.csv")
}

func (h *handler) covidCSV(w http.ResponseWriter, r *http.Request) {
	h.serveCSV(w, r, h.records.LoadCovid, "surveillance_covid19.csv")
}

type loadFunc func(context.Context) ([]model.SurveillanceRecord, error)

func (h *handler) serveJSON(w http.ResponseWriter, r *http.Request, load loadFunc) {
	records, ok := h.load(w, r, load)
	if !ok {
		return
	}
	if records == nil {
		records = []model.SurveillanceRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(records),
		"records": records,
	})
}

func (h *handler) serveCSV(w http.ResponseWriter, r *http.Request, load loadFunc, filename string) {
	records, ok := h.load(w, r, load)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := history.WriteCSV(w, records); err != nil {
		zap.L().Warn("server: write csv", zap.Error(err))
	}
}

// load reads the table and applies query filters. It writes the error
// response itself and reports false on failure.
func (h *handler) load(w http.ResponseWriter, r *http.Request, load loadFunc) ([]model.SurveillanceRecord, bool) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	records, err := load(r.Context())
	if err != nil {
		zap.L().Error("server: load records", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load records")
		return nil, false
	}
	return q.apply(records), true
}

func (h *handler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		zap.L().Error("server: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// recordQuery holds the filters shared by the record endpoints.
type recordQuery struct {
	pathogen string
	since    string
	until    string
	limit    int
}

func parseQuery(r *http.Request) (recordQuery, error) {
	v := r.URL.Query()
	q := recordQuery{pathogen: strings.TrimSpace(v.Get("pathogen"))}

	for _, f := range []struct {
		name string
		dst  *string
	}{{"since", &q.since}, {"until", &q.until}} {
		s := v.Get(f.name)
		if s == "" {
			continue
		}
		t, ok := model.ParseDate(s)
		if !ok {
			return q, eris.Errorf("%s must be a YYYY-MM-DD date", f.name)
		}
		*f.dst = model.FormatDate(t)
	}

	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return q, eris.New("limit must be a positive integer")
		}
		q.limit = n
	}
	return q, nil
}

// apply filters records in order. Date bounds are inclusive and drop
// records without a reference date.
func (q recordQuery) apply(records []model.SurveillanceRecord) []model.SurveillanceRecord {
	if q.pathogen == "" && q.since == "" && q.until == "" && q.limit == 0 {
		return records
	}
	out := make([]model.SurveillanceRecord, 0, len(records))
	for _, rec := range records {
		if q.pathogen != "" && !strings.Contains(rec.Pathogen, q.pathogen) {
			continue
		}
		if q.since != "" || q.until != "" {
			ref := model.CanonicalDate(rec.ReferenceDate)
			if _, ok := model.ParseDate(ref); !ok {
				continue
			}
			if q.since != "" && ref < q.since {
				continue
			}
			if q.until != "" && ref > q.until {
				continue
			}
		}
		out = append(out, rec)
		if q.limit > 0 && len(out) == q.limit {
			break
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
