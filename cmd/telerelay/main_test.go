package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"telerelay/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyLogLevel(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  logrus.Level
	}{
		{"empty defaults to info", "", logrus.InfoLevel},
		{"warn is honored", "warn", logrus.WarnLevel},
		{"error is honored", "error", logrus.ErrorLevel},
		{"debug is capped at info", "debug", logrus.InfoLevel},
		{"trace is capped at info", "trace", logrus.InfoLevel},
		{"garbage defaults to info", "loud", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := logrus.New()
			logger.SetOutput(io.Discard)
			applyLogLevel(logger, tt.level)
			assert.Equal(t, tt.want, logger.GetLevel())
		})
	}
}

func TestRunFailsWithMissingConfig(t *testing.T) {
	orig := *configPath
	t.Cleanup(func() { *configPath = orig })
	*configPath = filepath.Join(t.TempDir(), "absent.json")

	err := run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestRunFailsWithIncompleteConfig(t *testing.T) {
	cfg := models.Config{
		Gateway: models.GatewayConfig{BaseURL: "http://gateway:8090"},
		// Sender, database, and artifact dir missing
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, data, 0600))

	orig := *configPath
	t.Cleanup(func() { *configPath = orig })
	*configPath = path

	err = run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}
