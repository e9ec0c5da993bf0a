package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestTestLogger_ObservesAllLevels(t *testing.T) {
	tl := NewTestLogger()
	ctx := context.Background()

	tl.Trace(ctx, "trace msg")
	tl.Info(ctx, "info msg", zap.String("topic", "stud_spacing"))

	assert.Len(t, tl.All(), 2)
	tl.AssertLogged(t, TraceLevel, "trace msg")
	tl.AssertLogged(t, zapcore.InfoLevel, "info msg")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "info msg")
	tl.AssertField(t, "info msg", "topic", "stud_spacing")
}

func TestTestLogger_Reset(t *testing.T) {
	tl := NewTestLogger()

	tl.Info(context.Background(), "before reset")
	tl.Reset()
	tl.Info(context.Background(), "after reset")

	assert.Len(t, tl.All(), 1)
	assert.Equal(t, 1, tl.FilterMessage("after reset").Len())
}

func TestTestLogger_NoSecretsPassesOnRedactedFields(t *testing.T) {
	tl := NewTestLogger()

	tl.Info(context.Background(), "auth",
		RedactedString("token", "tkn-abcdef"),
		zap.String("plan", "A-101"))

	tl.AssertNoSecrets(t)
}
