package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Allocator traces use their own message key so they can be filtered out of
// the general log stream.
const allocatorMsgKey = "allocator_msg"

var (
	logger          = newLogger(logrus.FieldKeyMsg)
	allocatorLogger = newLogger(allocatorMsgKey)
)

// Both loggers write to stderr; stdout carries the allocation itself.
func newLogger(msgKey string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyMsg: msgKey,
		},
	})
	return l
}

func GetLogger() *logrus.Logger {
	return logger
}

func GetAllocatorLogger() *logrus.Logger {
	return allocatorLogger
}

// SetLevel applies level to the general and the allocator logger alike.
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLevel(lvl)
	allocatorLogger.SetLevel(lvl)
	return nil
}

func SetOutput(w io.Writer) {
	logger.SetOutput(w)
	allocatorLogger.SetOutput(w)
}
