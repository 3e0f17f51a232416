package tangguh

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

// Light smoke tests ensuring exported logger APIs do not panic and remain
// callable; richer assertions belong to the sink the caller plugs in.
func TestSimpleLoggerLevels(t *testing.T) {
	logger := NewSimpleLogger()

	logger.Debug("debug message", "key", "value")
	logger.Info("info message")
	logger.Warn("warn message", "attempt", 3)
	logger.Error("error message", "dangling-key")
}

func TestZapLoggerAdapter(t *testing.T) {
	logger := NewZapLogger(zap.NewNop().Sugar())

	logger.Debug("debug message", "key", "value")
	logger.Info("info message", "n", 1)
	logger.Warn("warn message")
	logger.Error("error message", "err", "boom")
}

func TestEnginesLogWithoutPanic(t *testing.T) {
	logger := NewZapLogger(zap.NewNop().Sugar())

	b, err := NewAdaptiveBackoff(BackoffConfig{Operation: "logged", Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	b.RecordServerHint(time.Second)
}
