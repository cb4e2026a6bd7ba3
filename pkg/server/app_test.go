package server

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FuturesCast/pkg/config"
)

type recordingCloser struct {
	name  string
	order *[]string
	err   error
}

func (c recordingCloser) Close() error {
	*c.order = append(*c.order, c.name)
	return c.err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	return cfg
}

func TestApp_RunStopsOnCancelAndClosesInReverse(t *testing.T) {
	var order []string
	app := New(testConfig(t), nil, nil, nil,
		WithCloser("clickhouse", recordingCloser{name: "clickhouse", order: &order}),
		WithCloser("kafka", recordingCloser{name: "kafka", order: &order}),
		WithHealthCheck("noop", func(context.Context) error { return nil }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, app.Run(ctx))
	assert.Equal(t, []string{"kafka", "clickhouse"}, order)

	// closers run once
	require.NoError(t, app.Close())
	assert.Len(t, order, 2)
}

func TestApp_CloseJoinsErrors(t *testing.T) {
	var order []string
	boom := errors.New("boom")
	app := New(testConfig(t), nil, nil, nil,
		WithCloser("a", recordingCloser{name: "a", order: &order, err: boom}),
		WithCloser("b", recordingCloser{name: "b", order: &order}),
	)

	err := app.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "close a")
	assert.Equal(t, []string{"b", "a"}, order)
}
