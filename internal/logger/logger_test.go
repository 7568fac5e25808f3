package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	for _, mode := range []string{"dev", "prod", "production", ""} {
		l, err := New(mode)
		require.NoError(t, err, mode)
		require.NotNil(t, l.SugaredLogger)
	}
}

func TestLogger_RedactsSecrets(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewWithCore(core)

	l.Info("connecting",
		"api_key", "abc123",
		"jwt_secret", "hunter2",
		"dsn", "civi:s3cret@tcp(db:3306)/civicrm",
		"table", "civicrm_contribution")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["api_key"])
	assert.Equal(t, "[REDACTED]", fields["jwt_secret"])
	assert.NotContains(t, fields["dsn"], "s3cret")
	assert.Contains(t, fields["dsn"], "civi:xxxxx@tcp(db:3306)/civicrm")
	assert.Equal(t, "civicrm_contribution", fields["table"])
}

func TestLogger_With(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewWithCore(core).With("run_id", "r1")

	l.Debug("hidden")
	l.Warn("shown")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "shown", entry.Message)
	assert.Equal(t, "r1", entry.ContextMap()["run_id"])
}

func TestRedactDSN(t *testing.T) {
	assert.Equal(t, "[REDACTED]", RedactDSN("not a dsn"))
	assert.Contains(t, RedactDSN("civi@tcp(db:3306)/crm"), "civi@tcp(db:3306)/crm")
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info("nothing")
	l.Printf("%d", 1)
	l.Sync()
}
