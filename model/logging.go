package model

import (
	"errors"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// LogConfig selects the level, format and destination of the process logger.
type LogConfig struct {
	Level  string
	JSON   bool
	Output io.Writer
}

// NewLogger builds a logrus logger from cfg. An empty level means info and a
// nil output means stderr, which keeps stdout free for the stdio transport.
func NewLogger(cfg LogConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, NewFeedErrorWithCause(ErrorTypeConfiguration, "invalid log level", err).
				WithOperation("configure_logging").
				WithComponent("logger")
		}
		level = parsed
	}
	logger.SetLevel(level)

	if cfg.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.Output != nil {
		logger.SetOutput(cfg.Output)
	} else {
		logger.SetOutput(os.Stderr)
	}

	return logger, nil
}

// DiscardLogger returns an entry that drops everything. Components fall back
// to it when no logger is configured.
func DiscardLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

// ComponentLogger tags every entry from logger with the component name.
func ComponentLogger(logger *logrus.Logger, component string) *logrus.Entry {
	if logger == nil {
		return DiscardLogger().WithField("component", component)
	}
	return logger.WithField("component", component)
}

// FeedErrorFields flattens the context of a FeedError into log fields.
func FeedErrorFields(fe *FeedError) logrus.Fields {
	fields := logrus.Fields{
		"error_id":   fe.ID,
		"error_type": fe.ErrorType,
		"suggestion": fe.Suggestion,
	}
	if fe.Component != "" {
		fields["error_component"] = fe.Component
	}
	if fe.Operation != "" {
		fields["operation"] = fe.Operation
	}
	if fe.URL != "" {
		fields["url"] = fe.URL
	}
	if fe.Term != "" {
		fields["term"] = fe.Term
	}
	if fe.HTTPStatus != 0 {
		fields["http_status"] = fe.HTTPStatus
	}
	if len(fe.HTTPHeaders) > 0 {
		fields["http_headers"] = fe.HTTPHeaders
	}
	if fe.ParseContext != nil {
		fields["parse_line"] = fe.ParseContext.LineNumber
		fields["feed_format"] = fe.ParseContext.FeedFormat
	}
	return fields
}

// LogFeedError logs err at the given level, expanding FeedError context into
// fields when err wraps one.
func LogFeedError(entry *logrus.Entry, level logrus.Level, err error) {
	if err == nil {
		return
	}
	var fe *FeedError
	if errors.As(err, &fe) {
		e := entry.WithFields(FeedErrorFields(fe))
		if fe.Cause != nil {
			e = e.WithError(fe.Cause)
		}
		e.Log(level, fe.Message)
		return
	}
	entry.WithError(err).Log(level, "operation failed")
}
