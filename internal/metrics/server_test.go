package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerExposesMetrics(t *testing.T) {
	PacketsTotal.WithLabelValues("eth0", "accept", "replied").Inc()

	s := NewServer("127.0.0.1:0", "")
	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop(context.Background()) }()

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `arpguard_packets_total{interface="eth0",reason="replied",verdict="accept"}`)

	health, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestServerStartFailsOnBusyAddress(t *testing.T) {
	first := NewServer("127.0.0.1:0", "/metrics")
	require.NoError(t, first.Start(context.Background()))
	defer func() { _ = first.Stop(context.Background()) }()

	second := NewServer(first.Addr(), "/metrics")
	assert.Error(t, second.Start(context.Background()))
}

func TestStopBeforeStart(t *testing.T) {
	assert.NoError(t, NewServer(":0", "").Stop(context.Background()))
}
