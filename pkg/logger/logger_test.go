package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuffered(t *testing.T, opts Options) (*Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	opts.Output = buf
	opts.Format = "json"
	if opts.ServiceName == "" {
		opts.ServiceName = "storefront-test"
	}
	return New(opts), buf
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &out))
	return out
}

func TestErrorCarriesRequestFields(t *testing.T) {
	log, buf := newBuffered(t, Options{Level: zerolog.DebugLevel})

	ctx := log.WithRequestID(context.Background(), "req-9")
	ctx = log.WithUserID(ctx, "user-7")
	ctx = log.WithRole(ctx, "admin")
	log.Error(ctx, "checkout failed", errors.New("stock gone"))

	line := lastLine(t, buf)
	assert.Equal(t, "req-9", line["request_id"])
	assert.Equal(t, "user-7", line["user_id"])
	assert.Equal(t, "admin", line["role"])
	assert.Equal(t, "storefront-test", line["service"])
	assert.Equal(t, "stock gone", line["error"])
	assert.NotEmpty(t, line["stack"])
}

func TestFieldsDoNotLeakAcrossContexts(t *testing.T) {
	log, buf := newBuffered(t, Options{Level: zerolog.InfoLevel})

	parent := log.WithField(context.Background(), "order_id", "o-1")
	_ = log.WithFields(parent, map[string]any{"payment_id": "p-1"})
	log.Info(parent, "order placed")

	line := lastLine(t, buf)
	assert.Equal(t, "o-1", line["order_id"])
	assert.NotContains(t, line, "payment_id")
}

func TestWarnStackIsOptional(t *testing.T) {
	noisy, buf := newBuffered(t, Options{Level: zerolog.DebugLevel, WarnStack: true})
	noisy.Warn(context.Background(), "slow query")
	assert.Contains(t, lastLine(t, buf), "stack")

	quiet, buf := newBuffered(t, Options{Level: zerolog.DebugLevel})
	quiet.Warn(context.Background(), "slow query")
	assert.NotContains(t, lastLine(t, buf), "stack")
}

func TestLevelFiltersEvents(t *testing.T) {
	log, buf := newBuffered(t, Options{Level: ParseLevel("warn")})
	log.Info(context.Background(), "hidden")
	log.Debug(context.Background(), "hidden")
	assert.Empty(t, buf.String())
}

func TestNopIgnoresBoundContext(t *testing.T) {
	log := Nop()
	ctx := log.WithField(context.Background(), "k", "v")
	log.Error(ctx, "discarded", errors.New("x"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel(" ERROR "))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
}
