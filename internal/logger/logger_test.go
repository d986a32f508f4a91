package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewRespectsLevel(t *testing.T) {
	cases := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"chatty", zapcore.InfoLevel},
	}

	for _, tc := range cases {
		logger, err := New("production", tc.level)
		if err != nil {
			t.Fatalf("New(%q) failed: %v", tc.level, err)
		}
		if !logger.Core().Enabled(tc.want) {
			t.Errorf("level %q: expected %s to be enabled", tc.level, tc.want)
		}
		if tc.want > zapcore.DebugLevel && logger.Core().Enabled(tc.want-1) {
			t.Errorf("level %q: expected %s to be disabled", tc.level, tc.want-1)
		}
	}
}

func TestNewDevelopment(t *testing.T) {
	logger, err := New("development", "debug")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("development logger should allow debug when requested")
	}
}

// Feature: nano-pos, Property 20: Commit logs are structured
func TestProperty_CommitLogsAreStructured(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("commit log entries are JSON with key and sale id", prop.ForAll(
		func(key string, saleID int64) bool {
			var buf bytes.Buffer

			encoderConfig := zap.NewProductionEncoderConfig()
			encoderConfig.TimeKey = "timestamp"
			encoderConfig.MessageKey = "message"

			core := zapcore.NewCore(
				zapcore.NewJSONEncoder(encoderConfig),
				zapcore.AddSync(&buf),
				zapcore.DebugLevel,
			)
			logger := zap.New(core)

			logger.Info("Sale committed",
				zap.String("idempotency_key", key),
				zap.Int64("sale_id", saleID),
			)

			var entry map[string]interface{}
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				return false
			}

			if entry["idempotency_key"] != key {
				return false
			}
			// JSON numbers decode as float64
			if id, ok := entry["sale_id"].(float64); !ok || int64(id) != saleID {
				return false
			}
			_, hasLevel := entry["level"]
			_, hasTime := entry["timestamp"]
			return hasLevel && hasTime
		},
		gen.AlphaString(),
		gen.Int64Range(1, 1<<40),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
