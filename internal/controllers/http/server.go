package httpctrl

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"

	"github.com/Agrid-Dev/thermocarlo/internal/ports"
	"github.com/Agrid-Dev/thermocarlo/internal/simulation"
	"github.com/Agrid-Dev/thermocarlo/internal/thermal"
)

const defaultHistoryLimit = 20

type Server struct {
	svc        ports.SimulationService
	srv        *http.Server
	instanceID string
	log        *slog.Logger
	metrics    http.Handler
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.log = l } }

// WithMetrics mounts h on GET /metrics.
func WithMetrics(h http.Handler) Option { return func(s *Server) { s.metrics = h } }

// New returns a runnable server.
func New(svc ports.SimulationService, addr string, instanceID string, opts ...Option) *Server {
	mux := http.NewServeMux()
	s := &Server{svc: svc, instanceID: instanceID, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	// Read
	mux.HandleFunc("GET /v1", s.handleGet)
	mux.HandleFunc("GET /v1/simulations", s.handleHistory)
	mux.HandleFunc("GET /v1/simulations/latest", s.handleLatest)

	// Actions
	mux.HandleFunc("POST /v1/simulations", s.handleRun)
	mux.HandleFunc("POST /v1/evaluate", s.handleEvaluate)

	// Write: one endpoint per default
	mux.HandleFunc("POST /v1/runs", s.handlePostRuns)
	mux.HandleFunc("POST /v1/seed", s.handlePostSeed)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	var h http.Handler = mux
	h = handlers.CustomLoggingHandler(io.Discard, h, s.logRequest)
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(h)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	s.log.Debug("http request",
		"method", p.Request.Method, "path", p.URL.Path, "status", p.StatusCode, "size", p.Size)
}

// ---- DTOs ----

type infoDTO struct {
	InstanceID         string           `json:"instance_id"`
	Goal               float64          `json:"goal"`
	Deadband           float64          `json:"deadband"`
	Capacitance        float64          `json:"capacitance"`
	Power              float64          `json:"power"`
	DeltaSeconds       int              `json:"delta_seconds"`
	Horizon            int              `json:"horizon"`
	OutdoorTemperature float64          `json:"outdoor_temperature"`
	Runs               int              `json:"runs"`
	Seed               int64            `json:"seed"`
	Exec               string           `json:"exec"`
	Strategy           string           `json:"strategy"`
	Running            bool             `json:"running"`
	Latest             *ports.ReportDTO `json:"latest,omitempty"`
}

type evaluateReq struct {
	InitialTemperature *float64 `json:"initial_temperature"`
	Schedule           []int    `json:"schedule"`
}

type evaluateResp struct {
	Reward float64 `json:"reward"`
}

func (s *Server) toReportDTO(r simulation.Report) ports.ReportDTO {
	dto := ports.ToReportDTO(r)
	dto.InstanceID = s.instanceID
	return dto
}

// ---- Handlers ----

func (s *Server) handleGet(w http.ResponseWriter, _ *http.Request) {
	info := s.svc.Info()
	d := s.svc.Defaults()
	dto := infoDTO{
		InstanceID:         s.instanceID,
		Goal:               info.Model.Goal,
		Deadband:           info.Model.Deadband,
		Capacitance:        info.Model.Capacitance,
		Power:              info.Model.Power,
		DeltaSeconds:       info.Config.DeltaSeconds,
		Horizon:            info.Config.Horizon,
		OutdoorTemperature: info.Config.OutdoorTemperature,
		Runs:               d.Runs,
		Seed:               d.Seed,
		Exec:               d.Exec.String(),
		Strategy:           d.Strategy.String(),
		Running:            s.svc.Running(),
	}
	if rep, ok := s.svc.Latest(); ok {
		r := s.toReportDTO(rep)
		dto.Latest = &r
	}
	writeJSON(w, http.StatusOK, dto)
}

func (s *Server) handleLatest(w http.ResponseWriter, _ *http.Request) {
	rep, ok := s.svc.Latest()
	if !ok {
		writeErr(w, http.StatusNotFound, "no simulation has run yet")
		return
	}
	writeJSON(w, http.StatusOK, s.toReportDTO(rep))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeErr(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	reports, err := s.svc.History(r.Context(), limit)
	if err != nil {
		writeErr(w, statusFor(err), err.Error())
		return
	}
	out := make([]ports.ReportDTO, 0, len(reports))
	for _, rep := range reports {
		out = append(out, s.toReportDTO(rep))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var body ports.RunRequestDTO
	if r.ContentLength != 0 {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeDecodeErr(w, err)
			return
		}
	}
	req, err := body.Apply(s.svc.Defaults())
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	rep, err := s.svc.Run(r.Context(), req)
	if err != nil {
		writeErr(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.toReportDTO(rep))
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeDecodeErr(w, err)
		return
	}
	if req.InitialTemperature == nil {
		writeErr(w, http.StatusBadRequest, "missing field 'initial_temperature'")
		return
	}
	actions, err := thermal.ActionsFromInts(req.Schedule)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	reward, err := s.svc.Evaluate(*req.InitialTemperature, actions)
	if err != nil {
		writeErr(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, evaluateResp{Reward: reward})
}

func (s *Server) handlePostRuns(w http.ResponseWriter, r *http.Request) {
	postValue(s, w, r, func(v int) error {
		return s.svc.SetRuns(v)
	})
}

func (s *Server) handlePostSeed(w http.ResponseWriter, r *http.Request) {
	postValue(s, w, r, func(v int64) error {
		s.svc.SetSeed(v)
		return nil
	})
}

// ---- generic helpers ----

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

func statusFor(err error) int {
	switch {
	case errors.Is(err, ports.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, ports.ErrNoHistory):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func postValue[T any](s *Server, w http.ResponseWriter, r *http.Request, apply func(T) error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	var req struct {
		Value *T `json:"value"`
	}
	if err := dec.Decode(&req); err != nil {
		writeDecodeErr(w, err)
		return
	}
	if req.Value == nil {
		writeErr(w, http.StatusBadRequest, "missing field 'value'")
		return
	}

	if err := apply(*req.Value); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	s.handleGet(w, r)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeDecodeErr(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeErr(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeErr(w, http.StatusBadRequest, "invalid json")
}
