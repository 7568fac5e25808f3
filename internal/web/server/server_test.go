package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Printf(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, v...))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(&Config{Address: ":0"})
	assert.Error(t, err)

	cfg := DefaultConfig(okHandler())
	assert.Equal(t, ":3000", cfg.Address)
	assert.Equal(t, 30*time.Minute, cfg.WriteTimeout)

	srv, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, ":3000", srv.Addr())
}

func TestServer_ListenAndServe(t *testing.T) {
	srv, err := New(&Config{Address: "127.0.0.1:0", Handler: okHandler()})
	require.NoError(t, err)
	require.NoError(t, srv.Listen())
	assert.NotEqual(t, "127.0.0.1:0", srv.Addr())

	go srv.Start()
	defer srv.Close()

	resp, err := http.Get("http://" + srv.Addr() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
}

func TestGracefulShutdown_Run(t *testing.T) {
	srv, err := New(&Config{Address: "127.0.0.1:0", Handler: okHandler()})
	require.NoError(t, err)

	log := &recordingLogger{}
	gs := NewGracefulShutdown(srv, &ShutdownConfig{Timeout: time.Second, Logger: log})

	var order []string
	gs.RegisterHook(func(ctx context.Context) error {
		order = append(order, "first")
		return nil
	})
	gs.RegisterHook(func(ctx context.Context) error {
		order = append(order, "second")
		return fmt.Errorf("hook failed")
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gs.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + srv.Addr() + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Equal(t, []string{"first", "second"}, order)
	log.mu.Lock()
	defer log.mu.Unlock()
	assert.Contains(t, log.lines, "Shutdown hook 1 failed: hook failed")
	assert.Contains(t, log.lines, "Server shutdown completed successfully")
}

func TestGracefulShutdown_ListenError(t *testing.T) {
	srv, err := New(&Config{Address: "256.0.0.1:99999", Handler: okHandler()})
	require.NoError(t, err)

	err = NewGracefulShutdown(srv, nil).Run(context.Background())
	assert.Error(t, err)
}
