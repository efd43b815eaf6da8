package walletd

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// levelVar is shared by every handler InitLogger installs, so a reload that
// only changes logging.level moves loggers already handed out.
var levelVar slog.LevelVar

var logLevels = map[string]slog.Level{
	"":        slog.LevelInfo,
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

func parseLogLevel(level string) (slog.Level, bool) {
	lvl, ok := logLevels[strings.ToLower(strings.TrimSpace(level))]
	if !ok {
		return slog.LevelInfo, false
	}
	return lvl, true
}

// secretKeys are attribute names whose values never reach the log.
var secretKeys = map[string]bool{
	"password":    true,
	"seed":        true,
	"mnemonic":    true,
	"spend_key":   true,
	"private_key": true,
}

func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, "[redacted]")
	}
	return a
}

// newLogHandler builds the handler for cfg. Text output is meant for a
// terminal; json output for a log shipper.
func newLogHandler(w io.Writer, cfg LoggingConfig) slog.Handler {
	if cfg.Format == LogFormatJSON {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: &levelVar, ReplaceAttr: redactSecrets})
	}
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: &levelVar,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 {
				switch a.Key {
				case slog.TimeKey:
					return slog.String(a.Key, a.Value.Time().Format(time.TimeOnly))
				case slog.LevelKey:
					return slog.String(a.Key, strings.ToUpper(a.Value.String()))
				}
			}
			return redactSecrets(groups, a)
		},
	})
}

// InitLogger installs the process-wide logger for cfg.
func InitLogger(cfg LoggingConfig) {
	lvl, _ := parseLogLevel(cfg.Level)
	levelVar.Set(lvl)
	slog.SetDefault(slog.New(newLogHandler(os.Stdout, cfg)))
	slog.Debug("logger initialized", "level", lvl.String(), "format", cfg.Format)
}
