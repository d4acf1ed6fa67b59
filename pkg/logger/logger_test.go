package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	logger := newLogger()

	assert.Equal(t, os.Stderr, logger.Out)

	formatter, ok := logger.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)
	assert.Equal(t, time.RFC3339Nano, formatter.TimestampFormat)
	assert.True(t, formatter.FullTimestamp)
}

func TestGetLogger_WithoutContextLogger(t *testing.T) {
	retrieved := G(context.Background())

	assert.NotNil(t, retrieved)
	assert.Equal(t, L.Logger, retrieved.Logger)
}

func TestGetLogger_WithContextLogger(t *testing.T) {
	custom := logrus.NewEntry(logrus.New()).WithField("profile", "convex")
	ctx := WithLogger(context.Background(), custom)

	retrieved := G(ctx)
	assert.Equal(t, "convex", retrieved.Data["profile"])
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)

	ctx := WithLogger(context.Background(), logrus.NewEntry(l).WithField("run_id", "abc"))
	ctx = WithFields(ctx, logrus.Fields{"url": "https://a.example/llms.txt"})

	entry := G(ctx)
	assert.Equal(t, "abc", entry.Data["run_id"])
	assert.Equal(t, "https://a.example/llms.txt", entry.Data["url"])

	entry.Info("fetching")
	output := buf.String()
	assert.Contains(t, output, "run_id=abc")
	assert.Contains(t, output, "fetching")
}

func TestSetLogFormat_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	setLoggerFormat(l, "json")

	logrus.NewEntry(l).Info("saved")

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "info", logEntry["logLevel"])
	assert.Equal(t, "saved", logEntry["message"])

	timestamp, ok := logEntry["timestamp"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339Nano, timestamp)
	assert.NoError(t, err)
}

func TestSetLogLevel(t *testing.T) {
	original := L.Logger.GetLevel()
	defer L.Logger.SetLevel(original)

	require.NoError(t, SetLogLevel("debug"))
	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel())

	assert.Error(t, SetLogLevel("loud"))
	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel())
}
