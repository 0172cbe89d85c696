package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-reservation/internal/config"
	"github.com/iliyamo/seat-reservation/internal/service"
)

func memoryConfig() (config.Config, error) {
	return config.Config{DBDriver: config.DriverMemory, Location: time.UTC, LogLevel: slog.LevelError}, nil
}

func execute(t *testing.T, load func() (config.Config, error), args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(&RootOptions{LoadConfig: load})
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"migrate", "sweep", "availability"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
	assert.NotNil(t, cmd.PersistentFlags().Lookup("format"))
}

func TestSweepOnEmptyStore(t *testing.T) {
	out, err := execute(t, memoryConfig, "sweep", "--format", "json")
	require.NoError(t, err)

	var report service.SweepReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, service.SweepReport{}, report)

	out, err = execute(t, memoryConfig, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "missed check-ins: 0")
}

func TestAvailabilityErrors(t *testing.T) {
	_, err := execute(t, memoryConfig, "availability", "--seat", "1", "--from", "soon", "--to", "2025-06-03T00:00:00Z")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))

	// The in-memory store starts empty, so any seat is unknown.
	_, err = execute(t, memoryConfig, "availability", "--seat", "1",
		"--from", "2025-06-02T00:00:00Z", "--to", "2025-06-03T00:00:00Z")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))
	assert.True(t, service.IsKind(err, service.KindNotFound))
}

func TestMigrateRejectsMemoryDriver(t *testing.T) {
	_, err := execute(t, memoryConfig, "migrate")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))
}

func TestConfigAndFormatErrors(t *testing.T) {
	broken := func() (config.Config, error) { return config.Config{}, errors.New("missing JWT_SECRET") }
	_, err := execute(t, broken, "sweep")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))

	_, err = execute(t, memoryConfig, "sweep", "--format", "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
}
