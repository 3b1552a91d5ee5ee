// Package logger sets up the global zerolog logger shared by the forecaster commands.
package logger

import (
	"errors"
	"flag"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

var (
	debugFlag = flag.Bool("debug", false, "log at debug level")
	traceFlag = flag.Bool("trace", false, "log at trace level")
)

// Level picks the log level for an ENVIRONMENT value. --trace wins over --debug, and either
// overrides the environment default (trace for dev/test, info otherwise).
func Level(environment string, debug, trace bool) zerolog.Level {
	switch {
	case trace:
		return zerolog.TraceLevel
	case debug:
		return zerolog.DebugLevel
	}
	switch strings.ToLower(strings.TrimSpace(environment)) {
	case "dev", "test":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

// Writer returns the console writer for interactive runs, or w itself when LOG_FORMAT=json so
// scheduled runs emit one JSON object per line.
func Writer(format string, w io.Writer) io.Writer {
	if strings.EqualFold(format, "json") {
		return w
	}
	return zerolog.ConsoleWriter{Out: w}
}

// Init loads .env, parses the command line flags (the caller registers its own first) and
// configures the global logger. Call it at the top of main.
func Init() {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// the scheduled GitHub runs get their env from the runner
	envErr := godotenv.Load()
	flag.Parse()

	log.Logger = zerolog.New(Writer(os.Getenv("LOG_FORMAT"), os.Stderr)).
		With().Timestamp().Caller().Logger()

	environment := os.Getenv("ENVIRONMENT")
	level := Level(environment, *debugFlag, *traceFlag)
	zerolog.SetGlobalLevel(level)

	switch {
	case envErr == nil:
	case errors.Is(envErr, fs.ErrNotExist):
		log.Debug().Msg("no .env file, using process environment")
	default:
		log.Fatal().Err(envErr).Msg("failed to load .env")
	}
	log.Info().Str("environment", environment).Str("level", level.String()).Msg("logger initialized")
}
