package observability

import (
	"github.com/danmuck/wpanctl/internal/logs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger derives the structured request logger from the process logger
// so level and console settings carry over, tags it with the app and
// interface names, and installs it as the zerolog global.
func InitLogger(app, iface string) zerolog.Logger {
	logger := logs.Logger().With().Str("app", app).Str("iface", iface).Logger()
	log.Logger = logger
	return logger
}
