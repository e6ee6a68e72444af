package app

import (
	"context"
	"errors"
	"testing"

	"github.com/riverqueue/river"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webcaf.gov.uk/webcaf/internal/api/handlers"
	"webcaf.gov.uk/webcaf/internal/app/modules"
	"webcaf.gov.uk/webcaf/internal/config"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

func TestBootstrap_DatabaseUnreachable(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     1,
			User:     "webcaf",
			Password: "webcaf",
			Database: "webcaf",
			SSLMode:  "disable",
			MaxConns: 2,
			MinConns: 1,
		},
		Worker: config.WorkerConfig{GeneralPoolSize: 2, MailPoolSize: 1},
	}

	app, err := Bootstrap(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, app)
}

type recordingModule struct {
	name  string
	order *[]string
	err   error
}

func (m recordingModule) Name() string { return m.name }

func (m recordingModule) ContributeServerDeps(*handlers.ServerDeps) {}

func (m recordingModule) RegisterWorkers(*river.Workers) error { return nil }

func (m recordingModule) Shutdown(context.Context) error {
	*m.order = append(*m.order, m.name)
	return m.err
}

func TestShutdown(t *testing.T) {
	t.Run("empty application", func(t *testing.T) {
		assert.NoError(t, (&Application{}).Shutdown(context.Background()))
	})

	t.Run("modules stop in reverse order before infrastructure", func(t *testing.T) {
		var order []string
		app := &Application{
			Modules: []modules.Module{
				recordingModule{name: "governance", order: &order},
				nil,
				recordingModule{name: "notification", order: &order},
			},
			closeInfra: func() { order = append(order, "infrastructure") },
		}

		require.NoError(t, app.Shutdown(context.Background()))
		assert.Equal(t, []string{"notification", "governance", "infrastructure"}, order)
	})

	t.Run("module errors are joined and infrastructure still closes", func(t *testing.T) {
		var order []string
		boom := errors.New("boom")
		app := &Application{
			Modules:    []modules.Module{recordingModule{name: "identity", order: &order, err: boom}},
			closeInfra: func() { order = append(order, "infrastructure") },
		}

		err := app.Shutdown(context.Background())
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "shutdown identity")
		assert.Equal(t, []string{"identity", "infrastructure"}, order)
	})
}
