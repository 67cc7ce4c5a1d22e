package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astra-social/entitlements/pkg/httpserver"
)

// start runs srv on a random port and returns the bound address and the
// channel receiving Run's result.
func start(t *testing.T, ctx context.Context, opts ...httpserver.Option) (string, *httpserver.Server, <-chan error) {
	t.Helper()

	addrCh := make(chan string, 1)
	opts = append([]httpserver.Option{
		httpserver.WithAddr("127.0.0.1:0"),
		httpserver.WithStartHook(func(addr string) { addrCh <- addr }),
	}, opts...)
	srv := httpserver.New(opts...)

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "pong")
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx, handler) }()

	select {
	case addr := <-addrCh:
		return addr, srv, errCh
	case err := <-errCh:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not start")
	}
	return "", nil, nil
}

func get(t *testing.T, addr string) string {
	t.Helper()
	resp, err := http.Get("http://" + addr + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func waitResult(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
		return nil
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	addr, _, errCh := start(t, ctx)

	assert.Equal(t, "pong", get(t, addr))

	cancel()
	assert.NoError(t, waitResult(t, errCh))
}

func TestManualShutdown(t *testing.T) {
	t.Parallel()

	addr, srv, errCh := start(t, context.Background())
	assert.Equal(t, "pong", get(t, addr))

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.NoError(t, waitResult(t, errCh))

	// Repeated shutdowns are no-ops.
	assert.NoError(t, srv.Shutdown(context.Background()))
}

func TestStartError(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	srv := httpserver.New(httpserver.WithAddr(ln.Addr().String()))
	err = srv.Run(context.Background(), nil)
	assert.ErrorIs(t, err, httpserver.ErrStart)
}

func TestAlreadyRunning(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	_, srv, errCh := start(t, ctx)

	err := srv.Run(ctx, nil)
	assert.ErrorIs(t, err, httpserver.ErrStart)

	cancel()
	assert.NoError(t, waitResult(t, errCh))
}

func TestStopHooks(t *testing.T) {
	t.Parallel()

	stopped := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	_, _, errCh := start(t, ctx, httpserver.WithStopHook(func() { close(stopped) }))

	cancel()
	require.NoError(t, waitResult(t, errCh))

	select {
	case <-stopped:
	default:
		t.Fatal("stop hook did not run")
	}
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan string, 1)
	srv := httpserver.NewFromConfig(httpserver.Config{
		Addr:            "127.0.0.1:0",
		ReadTimeout:     time.Second,
		ShutdownTimeout: time.Second,
	}, httpserver.WithStartHook(func(addr string) { addrCh <- addr }))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx, http.NotFoundHandler()) }()

	select {
	case addr := <-addrCh:
		resp, err := http.Get("http://" + addr + "/")
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not start")
	}

	cancel()
	assert.NoError(t, waitResult(t, errCh))
}

func TestOptionPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { httpserver.WithAddr("") })
	assert.Panics(t, func() { httpserver.WithReadTimeout(0) })
	assert.Panics(t, func() { httpserver.WithWriteTimeout(-time.Second) })
	assert.Panics(t, func() { httpserver.WithIdleTimeout(0) })
	assert.Panics(t, func() { httpserver.WithShutdownTimeout(0) })
	assert.Panics(t, func() { httpserver.WithStartHook(nil) })
	assert.Panics(t, func() { httpserver.WithStopHook(nil) })
	assert.NotPanics(t, func() { httpserver.WithLogger(nil) })
}

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	decode := func(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
		t.Helper()
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body
	}

	t.Run("liveness", func(t *testing.T) {
		rec := httptest.NewRecorder()
		httpserver.HealthHandler(nil, time.Second)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, "ok", decode(t, rec)["status"])
	})

	t.Run("all probes pass", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h := httpserver.HealthHandler(nil, time.Second,
			httpserver.Check{Name: "postgres", Probe: func(context.Context) error { return nil }},
			httpserver.Check{Name: "redis", Probe: func(context.Context) error { return nil }},
		)
		h(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, map[string]any{"postgres": "ok", "redis": "ok"}, body["checks"])
	})

	t.Run("failing probe", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h := httpserver.HealthHandler(nil, time.Second,
			httpserver.Check{Name: "postgres", Probe: func(context.Context) error { return nil }},
			httpserver.Check{Name: "redis", Probe: func(context.Context) error { return errors.New("connection refused") }},
		)
		h(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "unavailable", body["status"])
		assert.Equal(t, map[string]any{"postgres": "ok", "redis": "connection refused"}, body["checks"])
	})

	t.Run("probe receives deadline", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h := httpserver.HealthHandler(nil, 10*time.Millisecond,
			httpserver.Check{Name: "slow", Probe: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			}},
		)
		h(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
