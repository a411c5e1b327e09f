package logging

import (
	"log/slog"
	"os"
)

// InitStructured reconfigures the operational logger based on format
// settings. format: "text" (human-readable, default) or "json" (NDJSON per
// §6: one object per line with keys timestamp/level/message/module/event/
// fields). level: "debug", "info", "warn", "error".
func InitStructured(format, level string) {
	SetLevelFromString(level)

	var handler slog.Handler
	switch format {
	case "json":
		handler = newNDJSONHandler(os.Stderr, logLevel)
	default:
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	}

	opLogger.Store(slog.New(handler))
}
