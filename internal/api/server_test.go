package api_test

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/wolfbot/internal/api"
	"github.com/mcoot/wolfbot/internal/testutil"
)

func TestEffectiveWriteTimeout(t *testing.T) {
	cfg := api.DefaultServerConfig()
	assert.Equal(t, cfg.WriteTimeout, cfg.EffectiveWriteTimeout(), "no budget keeps the configured timeout")

	cfg.RebalanceBudget = 2 * time.Minute
	assert.Greater(t, cfg.EffectiveWriteTimeout(), 2*time.Minute)

	cfg.WriteTimeout = 10 * time.Minute
	assert.Equal(t, 10*time.Minute, cfg.EffectiveWriteTimeout())
}

func TestShutdownCancelsLingeringRequests(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
		close(cancelled)
	})

	cfg := api.DefaultServerConfig()
	cfg.ShutdownTimeout = 50 * time.Millisecond
	server := api.NewServer(handler, cfg, testutil.NopLogger())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- server.Serve(ln) }()

	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/rebalance")
		if err == nil {
			resp.Body.Close()
		}
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the handler")
	}

	err = server.Shutdown(context.Background())
	assert.Error(t, err, "the request outlives the drain window")

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("lingering request was not cancelled")
	}
	assert.NoError(t, <-served)
}
