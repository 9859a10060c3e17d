// Package log constructs the daemon's logger.
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/storagedaemon/autochangerd/internal/config"
)

// NewLogger returns a logger preloaded with static fields describing
// the running daemon.
func NewLogger(cfg *config.Config) *logrus.Entry {
	var l *logrus.Logger
	if cfg.Debug || os.Getenv("DEBUG") == "TRUE" {
		l = newDevelopmentLogger(cfg)
	} else {
		l = newProductionLogger()
	}

	l.Formatter = &logrus.JSONFormatter{}

	return l.WithFields(logrus.Fields{
		"debug":    cfg.Debug,
		"changers": len(cfg.Changers),
	})
}

func getLogLevel() logrus.Level {
	strLevel := os.Getenv("LOG_LEVEL")
	level, err := logrus.ParseLevel(strLevel)
	if err != nil {
		return logrus.DebugLevel
	}
	return level
}

func newDevelopmentLogger(cfg *config.Config) *logrus.Logger {
	l := logrus.New()
	l.SetLevel(getLogLevel())
	path := "autochangerd.log"
	if cfg.ConfigDir != "" {
		path = filepath.Join(cfg.ConfigDir, "autochangerd.log")
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		fmt.Println("unable to log to file")
		os.Exit(1)
	}
	l.SetOutput(file)
	return l
}

func newProductionLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = io.Discard
	l.SetLevel(logrus.ErrorLevel)
	return l
}
