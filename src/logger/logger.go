package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"matchcore/src/config"
)

var Logger zerolog.Logger
var logFile *os.File

// Init configures the global zerolog logger. Output always goes to stdout and
// additionally to cfg.File when one is set.
func Init(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	CloseLogger()
	if cfg.File != "" && cfg.File != "none" && cfg.File != "disabled" {
		logFile, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			log.Error().Err(err).Msg("Failed to open log file, using stdout only")
			logFile = nil
		}
	}

	Logger = New(os.Stdout, cfg.Format)
	if logFile != nil {
		Logger = New(io.MultiWriter(consoleWriter(os.Stdout, cfg.Format), logFile), "json")
	}
	log.Logger = Logger

	if logFile != nil {
		Logger.Info().
			Str("log_file", cfg.File).
			Str("log_level", level.String()).
			Msg("Logger initialized - writing to console and file")
	} else {
		Logger.Info().
			Str("log_level", level.String()).
			Msg("Logger initialized - writing to console only")
	}
}

// New builds a timestamped logger writing to out in the given format.
func New(out io.Writer, format string) zerolog.Logger {
	return zerolog.New(consoleWriter(out, format)).With().
		Timestamp().
		Logger()
}

func consoleWriter(out io.Writer, format string) io.Writer {
	if format == "pretty" {
		return zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}
	return out
}

func CloseLogger() {
	if logFile != nil {
		_ = logFile.Sync()
		_ = logFile.Close()
		logFile = nil
	}
}

func GetLogger() zerolog.Logger {
	return Logger
}
