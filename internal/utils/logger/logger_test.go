package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		env          string
		debug, trace bool
		want         zerolog.Level
	}{
		{"dev", false, false, zerolog.TraceLevel},
		{" Test ", false, false, zerolog.TraceLevel},
		{"prod", false, false, zerolog.InfoLevel},
		{"", false, false, zerolog.InfoLevel},
		{"staging", false, false, zerolog.InfoLevel},
		{"prod", true, false, zerolog.DebugLevel},
		{"dev", true, false, zerolog.DebugLevel},
		{"prod", true, true, zerolog.TraceLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Level(tt.env, tt.debug, tt.trace), "env=%q debug=%v trace=%v", tt.env, tt.debug, tt.trace)
	}
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer

	jsonLog := zerolog.New(Writer("JSON", &buf))
	jsonLog.Info().Str("job", "predict").Msg("done")
	assert.JSONEq(t, `{"level":"info","job":"predict","message":"done"}`, buf.String())

	buf.Reset()
	consoleLog := zerolog.New(Writer("", &buf))
	consoleLog.Info().Str("job", "predict").Msg("done")
	assert.Contains(t, buf.String(), "done")
	assert.Contains(t, buf.String(), "predict")
	assert.NotContains(t, buf.String(), `"job"`)
}
