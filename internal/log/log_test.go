package log_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlbridge/migrator/internal/log"
)

func TestNewLogger_RejectsUnknownFormat(t *testing.T) {
	_, err := log.NewLogger("xml", log.Info, &bytes.Buffer{}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestStdLogger_RoutesByLevel(t *testing.T) {
	var out, errOut bytes.Buffer
	logger, err := log.NewLogger("standard", log.Debug, &out, &errOut)
	require.NoError(t, err)

	logger.InfoContext(context.Background(), "hello")
	logger.ErrorContext(context.Background(), "boom")

	assert.Contains(t, out.String(), "hello")
	assert.Contains(t, errOut.String(), "boom")
	assert.NotContains(t, out.String(), "boom")
}

func TestStructuredLogger_EmitsJSON(t *testing.T) {
	var out, errOut bytes.Buffer
	logger, err := log.NewLogger("json", log.Info, &out, &errOut)
	require.NoError(t, err)

	logger.InfoContext(context.Background(), "migration starting", "table", "orders")

	line := strings.TrimSpace(out.String())
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &record))
	assert.Equal(t, "migration starting", record["message"])
	assert.Equal(t, "orders", record["table"])
}

func TestSeverityToLevel_RejectsUnknown(t *testing.T) {
	_, err := log.SeverityToLevel("TRACE")
	assert.Error(t, err)
}
