package httpctrl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Agrid-Dev/thermocarlo/internal/montecarlo"
	"github.com/Agrid-Dev/thermocarlo/internal/ports"
	"github.com/Agrid-Dev/thermocarlo/internal/service"
	"github.com/Agrid-Dev/thermocarlo/internal/simulation"
	"github.com/Agrid-Dev/thermocarlo/internal/testutil"
	"github.com/Agrid-Dev/thermocarlo/internal/thermal"
)

func TestGET_v1_ReturnsDefaults(t *testing.T) {
	srv, _ := newTestServer()

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodGet, "/v1", nil)
	assertStatus(t, rr, http.StatusOK)

	got := decodeJSON[map[string]any](t, rr)
	if got["instance_id"] != "default" {
		t.Fatalf("expected instance_id=default, got %v", got["instance_id"])
	}
	if got["strategy"] != "dynamic" {
		t.Fatalf("expected strategy=dynamic, got %v", got["strategy"])
	}
	if got["exec"] != "sequential" {
		t.Fatalf("expected exec=sequential, got %v", got["exec"])
	}
	if got["runs"] != float64(10000) {
		t.Fatalf("expected runs=10000, got %v", got["runs"])
	}
	if _, ok := got["latest"]; ok {
		t.Fatalf("expected no latest report before any run, got %v", got["latest"])
	}
}

func TestPOST_simulations_UsesDefaults(t *testing.T) {
	srv, f := newTestServer()

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodPost, "/v1/simulations", nil)
	assertStatus(t, rr, http.StatusOK)

	if !f.RunCalled || f.RunArg != f.D {
		t.Fatalf("expected Run(defaults), got called=%v arg=%+v", f.RunCalled, f.RunArg)
	}
	got := decodeJSON[ports.ReportDTO](t, rr)
	if got.Runs != 10000 || got.Seed != 743298347 || got.InstanceID != "default" {
		t.Fatalf("unexpected report: %+v", got)
	}
}

func TestPOST_simulations_Overrides(t *testing.T) {
	srv, f := newTestServer()

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodPost, "/v1/simulations", map[string]any{
		"runs":     50,
		"seed":     7,
		"exec":     "parallel",
		"strategy": "fused",
		"workers":  4,
	})
	assertStatus(t, rr, http.StatusOK)

	want := f.D
	want.Runs, want.Seed, want.Workers = 50, 7, 4
	want.Exec, want.Strategy = simulation.ExecParallel, montecarlo.StrategyFused
	if f.RunArg != want {
		t.Fatalf("expected %+v, got %+v", want, f.RunArg)
	}
}

func TestPOST_simulations_InvalidPayload(t *testing.T) {
	srv, f := newTestServer()

	cases := []map[string]any{
		{"strategy": "weird"},
		{"exec": "sideways"},
		{"unknown_field": 1},
	}
	for _, body := range cases {
		rr := doJSONRequest(t, srv.srv.Handler, http.MethodPost, "/v1/simulations", body)
		assertStatus(t, rr, http.StatusBadRequest)
		_ = assertErrorResponse(t, rr)
	}
	if f.RunCalled {
		t.Fatalf("Run must not be called on invalid payloads")
	}
}

func TestPOST_simulations_OverLimit(t *testing.T) {
	srv, f := newTestServer()

	cases := []map[string]any{
		{"runs": simulation.DefaultMaxRuns + 1},
		{"runs": 100000000},
		{"runs": 1, "exec": "parallel", "workers": 2},
		{"exec": "parallel", "workers": math.MaxInt},
	}
	for _, body := range cases {
		rr := doJSONRequest(t, srv.srv.Handler, http.MethodPost, "/v1/simulations", body)
		assertStatus(t, rr, http.StatusBadRequest)
		_ = assertErrorResponse(t, rr)
	}
	if f.RunCalled {
		t.Fatalf("Run must not be called on over-limit requests")
	}
}

func TestPOST_BodyTooLarge(t *testing.T) {
	srv, f := newTestServer()

	big := make([]int, maxBodyBytes)
	for _, path := range []string{"/v1/evaluate", "/v1/simulations", "/v1/runs"} {
		rr := doJSONRequest(t, srv.srv.Handler, http.MethodPost, path, map[string]any{
			"initial_temperature": 19,
			"schedule":            big,
		})
		assertStatus(t, rr, http.StatusRequestEntityTooLarge)
		_ = assertErrorResponse(t, rr)
	}
	if f.EvaluateCalled || f.RunCalled || f.SetRunsCalled {
		t.Fatalf("service must not be called on oversized bodies")
	}
}

func TestPOST_simulations_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ports.ErrBusy, http.StatusConflict},
		{simulation.ErrInvalidRuns, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", service.ErrBusy), http.StatusConflict},
	}
	for _, tc := range cases {
		srv, f := newTestServer()
		f.RunErr = tc.err

		rr := doJSONRequest(t, srv.srv.Handler, http.MethodPost, "/v1/simulations", map[string]any{"runs": 1})
		assertStatus(t, rr, tc.want)
		_ = assertErrorResponse(t, rr)
	}
}

func TestGET_latest(t *testing.T) {
	srv, f := newTestServer()

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodGet, "/v1/simulations/latest", nil)
	assertStatus(t, rr, http.StatusNotFound)

	rep := testutil.NewReport(f.D)
	f.Last = &rep
	rr = doJSONRequest(t, srv.srv.Handler, http.MethodGet, "/v1/simulations/latest", nil)
	assertStatus(t, rr, http.StatusOK)

	got := decodeJSON[ports.ReportDTO](t, rr)
	if got.ID != rep.ID || got.Checksum != rep.Checksum {
		t.Fatalf("unexpected latest: %+v", got)
	}
}

func TestGET_history(t *testing.T) {
	srv, f := newTestServer()
	f.HistoryOut = []simulation.Report{testutil.NewReport(f.D), testutil.NewReport(f.D)}

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodGet, "/v1/simulations?limit=2", nil)
	assertStatus(t, rr, http.StatusOK)
	if f.HistoryLimit != 2 {
		t.Fatalf("expected limit=2, got %d", f.HistoryLimit)
	}
	got := decodeJSON[[]ports.ReportDTO](t, rr)
	if len(got) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(got))
	}

	rr = doJSONRequest(t, srv.srv.Handler, http.MethodGet, "/v1/simulations", nil)
	assertStatus(t, rr, http.StatusOK)
	if f.HistoryLimit != defaultHistoryLimit {
		t.Fatalf("expected default limit, got %d", f.HistoryLimit)
	}
}

func TestGET_history_Errors(t *testing.T) {
	srv, f := newTestServer()

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodGet, "/v1/simulations?limit=-1", nil)
	assertStatus(t, rr, http.StatusBadRequest)

	f.HistoryErr = ports.ErrNoHistory
	rr = doJSONRequest(t, srv.srv.Handler, http.MethodGet, "/v1/simulations", nil)
	assertStatus(t, rr, http.StatusNotFound)
	_ = assertErrorResponse(t, rr)
}

func TestPOST_evaluate(t *testing.T) {
	srv, f := newTestServer()
	f.EvaluateOut = -3.25

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodPost, "/v1/evaluate", map[string]any{
		"initial_temperature": 19.5,
		"schedule":            []int{1, 0, 1},
	})
	assertStatus(t, rr, http.StatusOK)

	if f.EvaluateInitial != 19.5 {
		t.Fatalf("expected initial 19.5, got %v", f.EvaluateInitial)
	}
	want := []thermal.Action{thermal.ActionOn, thermal.ActionOff, thermal.ActionOn}
	if len(f.EvaluateActions) != len(want) {
		t.Fatalf("expected %v, got %v", want, f.EvaluateActions)
	}
	for i := range want {
		if f.EvaluateActions[i] != want[i] {
			t.Fatalf("action %d: expected %v, got %v", i, want[i], f.EvaluateActions[i])
		}
	}
	got := decodeJSON[map[string]float64](t, rr)
	if got["reward"] != -3.25 {
		t.Fatalf("expected reward -3.25, got %v", got["reward"])
	}
}

func TestPOST_evaluate_Invalid(t *testing.T) {
	srv, f := newTestServer()

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodPost, "/v1/evaluate", map[string]any{
		"schedule": []int{1},
	})
	assertStatus(t, rr, http.StatusBadRequest)

	rr = doJSONRequest(t, srv.srv.Handler, http.MethodPost, "/v1/evaluate", map[string]any{
		"initial_temperature": 19,
		"schedule":            []int{1, 2},
	})
	assertStatus(t, rr, http.StatusBadRequest)

	f.EvaluateErr = montecarlo.ErrDimensionMismatch
	rr = doJSONRequest(t, srv.srv.Handler, http.MethodPost, "/v1/evaluate", map[string]any{
		"initial_temperature": 19,
		"schedule":            []int{1},
	})
	assertStatus(t, rr, http.StatusBadRequest)
	_ = assertErrorResponse(t, rr)
}

func TestPOST_runs(t *testing.T) {
	srv, f := newTestServer()

	rr := postValueEndpoint(t, srv, "/v1/runs", 250)
	assertStatus(t, rr, http.StatusOK)
	if !f.SetRunsCalled || f.SetRunsArg != 250 {
		t.Fatalf("expected SetRuns(250), got called=%v arg=%v", f.SetRunsCalled, f.SetRunsArg)
	}
	got := decodeJSON[map[string]any](t, rr)
	if got["runs"] != float64(250) {
		t.Fatalf("expected runs=250 echoed, got %v", got["runs"])
	}
}

func TestPOST_runs_ErrorFromService(t *testing.T) {
	srv, f := newTestServer()
	f.SetRunsErr = service.ErrInvalidRun

	rr := postValueEndpoint(t, srv, "/v1/runs", 0)
	assertStatus(t, rr, http.StatusBadRequest)
	_ = assertErrorResponse(t, rr)
}

func TestPOST_runs_OverLimit(t *testing.T) {
	srv, f := newTestServer()

	rr := postValueEndpoint(t, srv, "/v1/runs", simulation.DefaultMaxRuns+1)
	assertStatus(t, rr, http.StatusBadRequest)
	_ = assertErrorResponse(t, rr)
	if f.D.Runs != 10000 {
		t.Fatalf("defaults must be unchanged, got runs=%d", f.D.Runs)
	}
}

func TestPOST_seed(t *testing.T) {
	srv, f := newTestServer()

	rr := postValueEndpoint(t, srv, "/v1/seed", int64(42))
	assertStatus(t, rr, http.StatusOK)
	if !f.SetSeedCalled || f.SetSeedArg != 42 {
		t.Fatalf("expected SetSeed(42), got called=%v arg=%v", f.SetSeedCalled, f.SetSeedArg)
	}
}

func TestPOST_seed_MissingValue(t *testing.T) {
	srv, f := newTestServer()

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodPost, "/v1/seed", map[string]any{"seed": 1})
	assertStatus(t, rr, http.StatusBadRequest)
	_ = assertErrorResponse(t, rr)
	if f.SetSeedCalled {
		t.Fatalf("SetSeed must not be called without a value")
	}
}

func TestGET_healthz(t *testing.T) {
	srv, _ := newTestServer()

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodGet, "/healthz", nil)
	assertStatus(t, rr, http.StatusOK)
	if rr.Body.String() != "ok" {
		t.Fatalf("expected body ok, got %q", rr.Body.String())
	}
}

func TestGET_metrics_Mounted(t *testing.T) {
	f := testutil.NewFakeSimulationService()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	srv := New(f, ":0", "default", WithMetrics(metrics))

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodGet, "/metrics", nil)
	assertStatus(t, rr, http.StatusOK)
	if rr.Body.String() != "# metrics" {
		t.Fatalf("unexpected metrics body %q", rr.Body.String())
	}

	srv, _ = newTestServer()
	rr = doJSONRequest(t, srv.srv.Handler, http.MethodGet, "/metrics", nil)
	assertStatus(t, rr, http.StatusNotFound)
}

type panickingService struct {
	*testutil.FakeSimulationService
}

func (panickingService) Evaluate(float64, []thermal.Action) (float64, error) {
	panic("boom")
}

func TestPanicIsRecovered(t *testing.T) {
	srv := New(panickingService{testutil.NewFakeSimulationService()}, ":0", "default")

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodPost, "/v1/evaluate", map[string]any{
		"initial_temperature": 19,
		"schedule":            []int{1},
	})
	assertStatus(t, rr, http.StatusInternalServerError)
}

// ---- helpers ----

func newTestServer() (*Server, *testutil.FakeSimulationService) {
	f := testutil.NewFakeSimulationService()
	instanceID := "default"
	return New(f, ":0", instanceID), f
}

func doJSONRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r *http.Request
	if body == nil {
		r = httptest.NewRequest(method, path, nil)
	} else {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal: %v", err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(b))
		r.Header.Set("Content-Type", "application/json")
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)
	return rr
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected %d, got %d body=%s", want, rr.Code, rr.Body.String())
	}
}

func decodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("json.Unmarshal: %v body=%s", err, rr.Body.String())
	}
	return v
}

// Handy when you only care about error responses.
func assertErrorResponse(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	resp := decodeJSON[struct {
		Error string `json:"error"`
	}](t, rr)
	if resp.Error == "" {
		t.Fatalf("expected non-empty error field, got body=%s", rr.Body.String())
	}
	return resp.Error
}

func postValueEndpoint[T any](t *testing.T, srv *Server, path string, value T) *httptest.ResponseRecorder {
	t.Helper()
	return doJSONRequest(t, srv.srv.Handler, http.MethodPost, path, struct {
		Value T `json:"value"`
	}{Value: value})
}
