package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// configureLogger builds the logger for one command invocation. The level is
// resolved in order: --log-level flag, then the verbose flag (debug), then
// defaultLevel (the config-file level, used by the daemon). With no source
// set the logger stays effectively silent so one-shot verbs print clean
// output.
func configureLogger(cmd *cobra.Command, verboseFlagName, defaultLevel string) (*logrus.Logger, error) {
	level := logrus.PanicLevel

	if defaultLevel != "" {
		if parsed, err := logrus.ParseLevel(defaultLevel); err == nil {
			level = parsed
		} else {
			level = logrus.InfoLevel
		}
	}

	if verboseFlagName != "" {
		if verbose, _ := cmd.Flags().GetBool(verboseFlagName); verbose {
			level = logrus.DebugLevel
		}
	}

	// --log-level wins over both the verbose flag and the config default
	if levelStr, _ := cmd.Flags().GetString("log-level"); levelStr != "" {
		switch levelStr {
		case "debug":
			level = logrus.DebugLevel
		case "info":
			level = logrus.InfoLevel
		case "warn":
			level = logrus.WarnLevel
		case "error":
			level = logrus.ErrorLevel
		default:
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", levelStr)
		}
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger, nil
}
