package pictowire

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds a zerolog.Logger from cfg, grounded in
// pkg/atlas/server.go's configureLogging: pretty console output in
// development, plain JSON otherwise, filtered to cfg.LogLevel.
func NewLogger(cfg Config) zerolog.Logger {
	var w zerolog.LevelWriter
	if cfg.LogPretty {
		cw := zerolog.ConsoleWriter{Out: os.Stdout}
		w = zerolog.MultiLevelWriter(cw)
	} else {
		w = zerolog.MultiLevelWriter(os.Stdout)
	}
	return zerolog.New(w).Level(cfg.LogLevel).With().Timestamp().Logger()
}
