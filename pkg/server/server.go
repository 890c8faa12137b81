// Package server exposes a running experiment over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"go.uber.org/zap"

	"github.com/itohio/freistat/pkg/execute"
	"github.com/itohio/freistat/pkg/method"
	"github.com/itohio/freistat/pkg/sample"
	"github.com/itohio/freistat/pkg/store"
)

// DefaultMaxPoints caps the samples returned per record.
const DefaultMaxPoints = 500

// Server reports the state of the attached run and lets clients cancel it.
type Server struct {
	log       *zap.Logger
	maxPoints int

	mu     sync.RWMutex
	st     *store.Store
	state  execute.State
	cancel context.CancelFunc
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMaxPoints caps the samples returned per record. Zero returns all.
func WithMaxPoints(n int) Option {
	return func(s *Server) { s.maxPoints = n }
}

// New creates a server with no run attached.
func New(opts ...Option) *Server {
	s := &Server{
		log:       zap.NewNop(),
		maxPoints: DefaultMaxPoints,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach makes st the reported run. cancel is called by the cancel
// endpoint.
func (s *Server) Attach(st *store.Store, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st = st
	s.cancel = cancel
	s.state = execute.Idle
}

// SetState records the machine state. It has the shape of an
// execute.OnState callback.
func (s *Server) SetState(state execute.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Server) snapshot() (*store.Store, execute.State, context.CancelFunc) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st, s.state, s.cancel
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/status", s.handleStatus)
	r.Get("/records/{index}", s.handleRecord)
	r.Post("/cancel", s.handleCancel)
	return r
}

// ListenAndServe serves Handler on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
		)
	})
}

// RecordStatus summarises one record.
type RecordStatus struct {
	Index   int    `json:"index"`
	Method  string `json:"method"`
	Samples int    `json:"samples"`
	Cycles  int    `json:"cycles"`
	Sealed  bool   `json:"sealed"`
	Error   string `json:"error,omitempty"`
}

// Status is the body of GET /status.
type Status struct {
	Run     string         `json:"run"`
	State   string         `json:"state"`
	Current int            `json:"current"`
	Records []RecordStatus `json:"records"`
}

// Point is one sample as served to clients.
type Point struct {
	SequenceCycle   int      `json:"sequence_cycle,omitempty"`
	Cycle           int      `json:"cycle"`
	Datapoint       int      `json:"datapoint"`
	Voltage         float64  `json:"voltage_mv"`
	Current         *float64 `json:"current_ua,omitempty"`
	Elapsed         float64  `json:"elapsed_ms"`
	SequenceElapsed float64  `json:"sequence_elapsed_ms,omitempty"`
	TotalElapsed    float64  `json:"total_elapsed_ms,omitempty"`
}

// Record is the body of GET /records/{index}.
type Record struct {
	RecordStatus
	Params  map[string]any `json:"params"`
	Samples []Point        `json:"points"`
}

func recordStatus(i int, rec *store.Record) RecordStatus {
	rs := RecordStatus{
		Index:   i,
		Method:  rec.Method().String(),
		Samples: rec.Len(),
		Cycles:  len(rec.Cycles()),
		Sealed:  rec.Sealed(),
	}
	if err := rec.Err(); err != nil {
		rs.Error = err.Error()
	}
	return rs
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, state, _ := s.snapshot()
	if st == nil {
		http.Error(w, "no run attached", http.StatusNotFound)
		return
	}

	body := Status{
		Run:     st.RunID().String(),
		State:   state.String(),
		Current: st.Index(),
		Records: []RecordStatus{},
	}
	for i, rec := range st.Records() {
		body.Records = append(body.Records, recordStatus(i, rec))
	}
	respond(w, body)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	st, _, _ := s.snapshot()
	if st == nil {
		http.Error(w, "no run attached", http.StatusNotFound)
		return
	}

	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	recs := st.Records()
	if idx < 0 || idx >= len(recs) {
		http.Error(w, "record out of range", http.StatusNotFound)
		return
	}

	maxPoints := s.maxPoints
	if q := r.URL.Query().Get("max"); q != "" {
		if maxPoints, err = strconv.Atoi(q); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	rec := recs[idx]
	body := Record{
		RecordStatus: recordStatus(idx, rec),
		Params:       params(rec.Params()),
		Samples:      []Point{},
	}
	for _, smp := range sample.Downsample(nil, rec.Samples(), maxPoints) {
		if smp.IsSentinel() {
			continue
		}
		body.Samples = append(body.Samples, point(smp))
	}
	respond(w, body)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	_, state, cancel := s.snapshot()
	if cancel == nil || state.Done() {
		http.Error(w, "no experiment running", http.StatusConflict)
		return
	}
	s.log.Info("cancel requested over http", zap.String("remote", r.RemoteAddr))
	cancel()
	w.WriteHeader(http.StatusAccepted)
}

func params(ps method.Params) map[string]any {
	out := make(map[string]any, len(ps))
	for _, p := range ps {
		if p.IsList() {
			out[p.Tag] = p.Values
		} else {
			out[p.Tag] = p.Value
		}
	}
	return out
}

func point(smp sample.Sample) Point {
	p := Point{
		SequenceCycle:   smp.SequenceCycle,
		Cycle:           smp.Cycle,
		Datapoint:       smp.Datapoint,
		Voltage:         smp.Voltage,
		Elapsed:         smp.Elapsed,
		SequenceElapsed: smp.SequenceElapsed,
		TotalElapsed:    smp.TotalElapsed,
	}
	if smp.HasCurrent {
		c := smp.Current
		p.Current = &c
	}
	return p
}

func respond(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
