package telemetry

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabled(t *testing.T) {
	t.Setenv("DECK_OTEL_ENABLED", "")
	require.NoError(t, Init(context.Background(), "deck", "test", io.Discard))
	assert.False(t, Enabled())
	assert.NoError(t, Shutdown(context.Background()))
}

func TestInitWithStdoutExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitWith(context.Background(), Options{Service: "deck", Version: "test", Writer: &buf, Stdout: true}))

	_, span := Tracer("").Start(context.Background(), "list issues")
	span.End()
	require.NoError(t, Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "list issues")
}

func TestOptionsFromEnvPrefersMetricsEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")
	assert.Equal(t, "collector:4318", OptionsFromEnv("deck", "v", io.Discard).MetricsEndpoint)

	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "http://metrics:4318/v1/metrics")
	opts := OptionsFromEnv("deck", "v", io.Discard)
	assert.Equal(t, "http://metrics:4318/v1/metrics", opts.MetricsEndpoint)
	assert.False(t, opts.Stdout)
}

func TestWrapTransportDisabledIsIdentity(t *testing.T) {
	t.Setenv("DECK_OTEL_ENABLED", "")
	rt := &http.Transport{}
	assert.Same(t, rt, WrapTransport(rt))
}

func TestWrapTransportEnabled(t *testing.T) {
	t.Setenv("DECK_OTEL_ENABLED", "true")
	t.Setenv("DECK_OTEL_STDOUT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")
	require.NoError(t, Init(context.Background(), "deck", "test", io.Discard))
	defer Shutdown(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	rt := WrapTransport(http.DefaultTransport)
	_, wrapped := rt.(*Transport)
	require.True(t, wrapped, "expected instrumented transport")

	client := &http.Client{Transport: rt}
	resp, err := client.Get(srv.URL + "/ok")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	resp, err = client.Get(srv.URL + "/missing")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCacheMetricsNilSafe(t *testing.T) {
	var m *CacheMetrics
	m.Fetch(context.Background(), "/issues", true)
	m.EntryAdded(context.Background())
	m.EntryDropped(context.Background())

	m = NewCacheMetrics()
	m.Fetch(context.Background(), "/issues?limit=50", false)
}

func TestKeyFamily(t *testing.T) {
	assert.Equal(t, "/issues", keyFamily("/issues?repo_full_name=a%2Fb"))
	assert.Equal(t, "/labels", keyFamily("/labels"))
}
