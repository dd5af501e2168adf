package telemetry

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "production", mutate: func(c *Config) { *c = *ProductionConfig() }},
		{name: "missing service", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: "service name"},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "log level"},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "log format"},
		{name: "bad exporter", mutate: func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger"
		}, wantErr: "trace exporter"},
		{name: "bad sampling", mutate: func(c *Config) { c.Tracing.SamplingRate = 2 }, wantErr: "sampling rate"},
		{name: "empty namespace", mutate: func(c *Config) { c.Metrics.Namespace = "" }, wantErr: "namespace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMetricsRecording(t *testing.T) {
	cfg := DefaultConfig().Metrics
	cfg.Namespace = "test"
	m, err := NewMetrics(cfg)
	require.NoError(t, err)

	m.RecordCommandIssued("image", "image.decode")
	m.RecordCommandIssued("image", "image.decode")
	m.RecordCallbackDropped("no_listener")
	m.RecordRequestStarted()
	m.RecordRequestStarted()
	m.RecordRequestCompleted("artboard.names", "ok", time.Millisecond)
	m.RecordResourceCreated("file")
	m.SetGlobalAssets("font", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.commandsIssued.WithLabelValues("image", "image.decode")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.callbacksDropped.WithLabelValues("no_listener")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsPending))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resourcesLive.WithLabelValues("file")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.globalAssets.WithLabelValues("font")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "test_commands_issued_total"))
}

func TestDisabledMetricsAreNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		m.RecordCommandIssued("file", "file.load")
		m.RecordRequestStarted()
		m.RecordRequestCompleted("x", "ok", time.Second)
		m.RecordServerCommand("file.load", "ok", time.Second)
		m.RecordResourceReleased("file")
	})
	assert.Nil(t, m.Registry())

	_, open := <-m.StartMetricsServer()
	assert.False(t, open)
}

func TestEventPublisherSync(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 8})
	require.NoError(t, err)

	var got []Event
	ep.Subscribe(func(e Event) { got = append(got, e) }, FilterByType(EventTypeAssetRegistered))

	require.NoError(t, ep.PublishWorkerStarted("w1", "headless"))
	require.NoError(t, ep.PublishAssetRegistered("w1", "image", "logo", 42))

	require.Len(t, got, 1)
	assert.Equal(t, "logo", got[0].Name)
	assert.Equal(t, uint64(42), got[0].Handle)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestEventPublisherAsyncDeliversBeforeShutdown(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 64, MaxBatchSize: 4, EnableAsync: true})
	require.NoError(t, err)

	var mu sync.Mutex
	var handles []uint64
	ep.Subscribe(func(e Event) {
		mu.Lock()
		handles = append(handles, e.Handle)
		mu.Unlock()
	}, FilterByWorker("w1"))

	for i := uint64(1); i <= 10; i++ {
		require.NoError(t, ep.PublishResourceCreated("w1", "artboard", i))
	}
	require.NoError(t, ep.PublishResourceCreated("w2", "artboard", 99))
	require.NoError(t, ep.Shutdown(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, handles)
}

func TestFilterByLevel(t *testing.T) {
	f := FilterByLevel(EventLevelWarning)
	assert.False(t, f(Event{Level: EventLevelInfo}))
	assert.True(t, f(Event{Level: EventLevelWarning}))
	assert.True(t, f(Event{Level: EventLevelError}))
}

func TestStartOperationWithoutTelemetry(t *testing.T) {
	ic := StartOperation(context.Background(), "file.load")
	assert.Nil(t, ic.Span)
	assert.NotNil(t, ic.Logger)
	assert.NotPanics(t, func() { ic.End(nil) })
}

func TestNopTelemetry(t *testing.T) {
	tel := NewNop()
	ctx := tel.WithContext(context.Background())
	assert.Same(t, tel, FromTelemetryContext(ctx))

	ic := StartOperation(ctx, "artboard.create")
	require.NotNil(t, ic.Span)
	ic.End(assert.AnError)

	assert.NoError(t, tel.Shutdown(context.Background()))
}
