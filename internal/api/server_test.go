package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sizewatch/internal/alert"
	"github.com/JakeFAU/sizewatch/internal/metrics"
	"github.com/JakeFAU/sizewatch/internal/monitor"
	"github.com/JakeFAU/sizewatch/internal/progress/sinks"
)

type fakeController struct {
	mu       sync.Mutex
	startErr error
	items    []monitor.WatchedItem
	cfg      monitor.RunConfig
	starts   int
	stops    int
	status   monitor.Status
	panicky  bool
}

func (f *fakeController) Start(items []monitor.WatchedItem, cfg monitor.RunConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	f.items = items
	f.cfg = cfg
	f.status = monitor.Status{Phase: monitor.PhaseRunning, RunID: "0190b3c4-0000-7000-8000-000000000001"}
	return nil
}

func (f *fakeController) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.status.Phase == monitor.PhaseRunning {
		f.status.Phase = monitor.PhaseStopping
	}
}

func (f *fakeController) Status() monitor.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicky {
		panic("status exploded")
	}
	if f.status.Phase == "" {
		return monitor.Status{Phase: monitor.PhaseIdle}
	}
	return f.status
}

type staticLogs []string

func (s staticLogs) Lines(limit int) []string {
	if limit > 0 && len(s) > limit {
		return s[len(s)-limit:]
	}
	return s
}

var defaultItem = monitor.WatchedItem{URL: "https://www.zara.com/tr/en/shirt-p1.html", Store: monitor.StoreZara}

func defaultRun() monitor.RunConfig {
	return monitor.RunConfig{
		Sizes:           monitor.SizeSet{"36", "XS"},
		MinDelaySeconds: 500,
		MaxDelaySeconds: 800,
		Credentials:     alert.Credentials{BotToken: "cfg-token", ChatID: "1"},
	}
}

func newTestServer(t *testing.T, ctrl Controller, mutate func(*Options)) *Server {
	t.Helper()
	opts := Options{
		Controller:   ctrl,
		Logs:         staticLogs{"a", "b", "c"},
		Defaults:     defaultRun(),
		DefaultItems: []monitor.WatchedItem{defaultItem},
		Logger:       zap.NewNop(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	s, err := NewServer(opts)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestNewServerRequiresController(t *testing.T) {
	t.Parallel()

	_, err := NewServer(Options{})
	require.Error(t, err)
}

func TestHealthzSetsRequestID(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeController{}, nil)
	rec := do(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decode(t, rec)["status"])
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestStartRunUsesDefaultsForEmptyBody(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{}
	s := newTestServer(t, ctrl, nil)

	rec := do(t, s, http.MethodPost, "/v1/run", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "0190b3c4-0000-7000-8000-000000000001", body["run_id"])
	require.EqualValues(t, 1, body["items"])

	require.Equal(t, []monitor.WatchedItem{defaultItem}, ctrl.items)
	require.Equal(t, defaultRun(), ctrl.cfg)
}

func TestStartRunAppliesOverrides(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		body  string
		sizes monitor.SizeSet
	}{
		{"comma separated sizes", `"sizes":" M , L,,m "`, monitor.SizeSet{"M", "L"}},
		{"sizes list", `"sizes":["42","XL"]`, monitor.SizeSet{"42", "XL"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := &fakeController{}
			s := newTestServer(t, ctrl, nil)
			body := `{"items":[{"url":"https://www.mango.com/tr/p/x","store":"Mango"}],` + tc.body +
				`,"min_delay_seconds":60,"max_delay_seconds":90,"bot_token":" tok ","chat_id":"99"}`

			rec := do(t, s, http.MethodPost, "/v1/run", body)
			require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
			require.Equal(t, []monitor.WatchedItem{{URL: "https://www.mango.com/tr/p/x", Store: monitor.StoreMango}}, ctrl.items)
			require.Equal(t, tc.sizes, ctrl.cfg.Sizes)
			require.EqualValues(t, 60, ctrl.cfg.MinDelaySeconds)
			require.EqualValues(t, 90, ctrl.cfg.MaxDelaySeconds)
			require.Equal(t, alert.Credentials{BotToken: "tok", ChatID: "99"}, ctrl.cfg.Credentials)
		})
	}
}

func TestStartRunErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		startErr error
		body     string
		want     int
	}{
		{"invalid json", nil, `{"items":`, http.StatusBadRequest},
		{"bad sizes type", nil, `{"sizes":5}`, http.StatusBadRequest},
		{"empty sizes", nil, `{"sizes":" , "}`, http.StatusBadRequest},
		{"unknown store", nil, `{"items":[{"url":"https://www.hm.com/x","store":"hm"}]}`, http.StatusBadRequest},
		{"bad url", nil, `{"items":[{"url":"ftp://x","store":"zara"}]}`, http.StatusBadRequest},
		{"delay range", monitor.ErrInvalidDelayRange, `{}`, http.StatusBadRequest},
		{"empty list", monitor.ErrEmptyWatchList, `{}`, http.StatusBadRequest},
		{"no extractor", monitor.ErrNoExtractor, `{}`, http.StatusBadRequest},
		{"already running", monitor.ErrAlreadyRunning, `{}`, http.StatusConflict},
		{"unexpected", errors.New("generate run id: boom"), `{}`, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := &fakeController{startErr: tc.startErr}
			s := newTestServer(t, ctrl, nil)
			rec := do(t, s, http.MethodPost, "/v1/run", tc.body)
			require.Equal(t, tc.want, rec.Code, rec.Body.String())
			require.NotEmpty(t, decode(t, rec)["error"])
			require.Zero(t, ctrl.starts)
		})
	}
}

func TestStopAndStatus(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{}
	s := newTestServer(t, ctrl, nil)

	rec := do(t, s, http.MethodGet, "/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "idle", decode(t, rec)["phase"])

	require.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/v1/run", "").Code)
	rec = do(t, s, http.MethodPost, "/v1/stop", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "stopping", decode(t, rec)["phase"])
	require.Equal(t, 1, ctrl.stops)

	rec = do(t, s, http.MethodGet, "/v1/status", "")
	require.Equal(t, "stopping", decode(t, rec)["phase"])
}

func TestRecentLogs(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeController{}, nil)

	rec := do(t, s, http.MethodGet, "/v1/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []any{"a", "b", "c"}, decode(t, rec)["lines"])

	rec = do(t, s, http.MethodGet, "/v1/logs?limit=2", "")
	require.Equal(t, []any{"b", "c"}, decode(t, rec)["lines"])

	for _, bad := range []string{"0", "-1", "abc"} {
		rec = do(t, s, http.MethodGet, "/v1/logs?limit="+bad, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}

	empty := newTestServer(t, &fakeController{}, func(o *Options) { o.Logs = nil })
	rec = do(t, empty, http.MethodGet, "/v1/logs", "")
	require.Equal(t, []any{}, decode(t, rec)["lines"])
}

func TestParseLimitCapsAtMax(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/v1/logs?limit=5000", nil)
	limit, err := parseLimit(req, defaultLogLimit, maxLogLimit)
	require.NoError(t, err)
	require.Equal(t, maxLogLimit, limit)
}

func TestRecentEvents(t *testing.T) {
	t.Parallel()

	unavailable := newTestServer(t, &fakeController{}, nil)
	require.Equal(t, http.StatusServiceUnavailable, do(t, unavailable, http.MethodGet, "/v1/events", "").Code)

	recent := sinks.NewRecentSink(10)
	s := newTestServer(t, &fakeController{}, func(o *Options) { o.Events = recent })

	rec := do(t, s, http.MethodGet, "/v1/events?stage=item_checked", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []any{}, decode(t, rec)["events"])
	require.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/v1/events?limit=x", "").Code)
}

func TestAPIKeyGuardsControlRoutes(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeController{}, func(o *Options) { o.APIKey = "secret" })

	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", "").Code)
	require.Equal(t, http.StatusForbidden, do(t, s, http.MethodGet, "/v1/status", "").Code)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/v1/status?api_key=secret", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsRouteAndHTTPMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	httpMetrics, err := metrics.NewHTTP(reg)
	require.NoError(t, err)
	s := newTestServer(t, &fakeController{}, func(o *Options) {
		o.Metrics = metrics.Handler(reg)
		o.HTTPMetrics = httpMetrics
	})

	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/v1/status", "").Code)
	rec := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `sizewatch_http_requests_total{code="200",method="GET",route="/v1/status"} 1`)
	require.Positive(t, testutil.CollectAndCount(reg, "sizewatch_http_requests_total"))

	plain := newTestServer(t, &fakeController{}, nil)
	require.Equal(t, http.StatusNotFound, do(t, plain, http.MethodGet, "/metrics", "").Code)
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeController{panicky: true}, nil)
	rec := do(t, s, http.MethodGet, "/v1/status", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "internal server error", decode(t, rec)["error"])
}

func TestTimeoutMiddleware(t *testing.T) {
	t.Parallel()

	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
			w.WriteHeader(http.StatusOK)
		case <-r.Context().Done():
		}
	})
	rec := httptest.NewRecorder()
	timeoutMiddleware(10*time.Millisecond)(slow).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
