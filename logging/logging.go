// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/writer"
)

type Config struct {
	Level    string `yaml:"level"`
	ToFile   bool   `yaml:"to_file"`
	Filename string `yaml:"filename"`
	// SplitStreams sends warnings and errors to stderr and everything else
	// to stdout. Ignored when ToFile is set.
	SplitStreams bool `yaml:"split_streams"`
}

// New returns a logger for cfg and a function that closes its log file.
func New(cfg Config) (*logrus.Logger, func() error, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	log := &logrus.Logger{
		Out: os.Stdout,
		Formatter: &logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
			FullTimestamp:   true,
		},
		Hooks: make(logrus.LevelHooks),
		Level: level,
	}
	closeFn := func() error { return nil }

	switch {
	case cfg.ToFile:
		if err := os.MkdirAll(filepath.Dir(cfg.Filename), 0o755); err != nil {
			return nil, nil, err
		}
		file, err := os.OpenFile(cfg.Filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		log.Out = io.MultiWriter(os.Stdout, file)
		closeFn = file.Close
	case cfg.SplitStreams:
		log.Out = io.Discard
		log.AddHook(&writer.Hook{
			Writer:    os.Stderr,
			LogLevels: []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel},
		})
		log.AddHook(&writer.Hook{
			Writer:    os.Stdout,
			LogLevels: []logrus.Level{logrus.InfoLevel, logrus.DebugLevel, logrus.TraceLevel},
		})
	}
	return log, closeFn, nil
}

// Discard is a logger for tests and tools that prints nothing.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
