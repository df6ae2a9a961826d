package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-scheduler/internal/models"
	"github.com/noah-isme/studio-scheduler/internal/service"
)

type pingerStub struct{ err error }

func (p pingerStub) PingContext(ctx context.Context) error { return p.err }

func TestMetricsHandlerWithoutMetrics(t *testing.T) {
	var disabled *service.MetricsService
	handler := NewMetricsHandler(disabled, nil)

	c, w := newSessionContext(http.MethodGet, "/metrics/summary", nil, nil)
	handler.Summary(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newSessionContext(http.MethodGet, "/metrics", nil, nil)
	handler.Prometheus(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsHandlerSummary(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordAllocation(true)
	handler := NewMetricsHandler(metrics, nil)

	c, w := newSessionContext(http.MethodGet, "/metrics/summary", nil, nil)
	handler.Summary(c)
	var summary models.SystemMetrics
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &summary))
	assert.EqualValues(t, 1, summary.AllocationsGranted)
}

func TestMetricsHandlerReady(t *testing.T) {
	cases := []struct {
		name string
		db   pinger
		want int
	}{
		{name: "no database", want: http.StatusOK},
		{name: "reachable", db: pingerStub{}, want: http.StatusOK},
		{name: "unreachable", db: pingerStub{err: errors.New("dial tcp: connection refused")}, want: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewMetricsHandler(service.NewMetricsService(), tc.db)
			c, w := newSessionContext(http.MethodGet, "/ready", nil, nil)
			handler.Ready(c)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}
