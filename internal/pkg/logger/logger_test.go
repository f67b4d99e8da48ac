package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("qualquer"))
}

func TestZapLogger_FieldsAndErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &ZapLogger{zl: zap.New(core)}

	l.Info("estoque baixado", map[string]interface{}{"product_id": "p-1", "quantity": 2})
	l.Warn("cache indisponível", nil)
	l.Error("falha no commit", errors.New("conexão perdida"))

	entries := logs.All()
	assert.Len(t, entries, 3)

	assert.Equal(t, "estoque baixado", entries[0].Message)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "p-1", ctx["product_id"])
	assert.EqualValues(t, 2, ctx["quantity"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "conexão perdida", entries[2].ContextMap()["error"])
}

func TestNewNopLogger_DoesNotPanic(t *testing.T) {
	l := NewNopLogger()
	assert.NotPanics(t, func() {
		l.Debug("x", map[string]interface{}{"a": 1})
		l.Error("y", nil)
	})
}
