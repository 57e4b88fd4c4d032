package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"Showtimes_Sync/internal/config"
	"Showtimes_Sync/internal/logging"
)

func TestNewFromConfigDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.OutputPaths = []string{filepath.Join(t.TempDir(), "logs", "showtimes.log")}

	logger, err := logging.NewFromConfig(&cfg)
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Info("hello")
	_ = logger.Sync()
}

func TestJSONLoggerWritesFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", OutputPaths: []string{logPath}})
	require.NoError(t, err)

	logger.Error("remote push failed", zap.Uint64("community_id", 42))
	logger.Debug("not written")
	_ = logger.Sync()

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	text := string(content)
	assert.Contains(t, text, `"community_id":42`)
	assert.Contains(t, text, `"msg":"remote push failed"`)
	assert.NotContains(t, text, "not written")
	assert.False(t, strings.Contains(text, ".go:"), "caller should be omitted above debug")
}

func TestNewRejectsUnknownValues(t *testing.T) {
	_, err := logging.New(logging.Options{Level: "loud"})
	assert.Error(t, err)
	_, err = logging.New(logging.Options{Format: "xml"})
	assert.Error(t, err)
}
