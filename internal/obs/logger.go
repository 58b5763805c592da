package obs

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger emits structured JSON lines. Call sites pass flat field maps so the
// service code stays free of logging-library types.
type Logger struct {
	zl zerolog.Logger
}

func NewLogger() *Logger {
	return &Logger{
		zl: zerolog.New(os.Stdout).With().Timestamp().Logger(),
	}
}

func (lg *Logger) Info(fields map[string]interface{}) {
	lg.zl.Info().Fields(fields).Send()
}

func (lg *Logger) Error(fields map[string]interface{}) {
	lg.zl.Error().Fields(fields).Send()
}
