// Package logging configures the global zerolog logger for binaries built
// on this library. Library code logs through the global logger and leaves
// level and output selection to the embedding program.
package logging

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init initializes the global logger from the environment.
// SEG_LOG_LEVEL controls the level: debug, warn, error (default: info).
func Init() {
	switch os.Getenv("SEG_LOG_LEVEL") {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}
