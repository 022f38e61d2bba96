// Package logging builds the process-wide structured logger, mirroring the
// factory pattern the teacher uses for its agent logger.
package logging

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	once sync.Once
	base *logrus.Logger
)

// Base returns the process-wide logrus logger, constructing it on first
// use. LOG_FORMAT=json selects JSON formatting; otherwise full-timestamp
// text formatting is used. LOG_LEVEL sets the level (default info).
func Base() *logrus.Logger {
	once.Do(func() {
		base = logrus.New()
		base.SetOutput(os.Stdout)

		level := logrus.InfoLevel
		if v := os.Getenv("LOG_LEVEL"); v != "" {
			if parsed, err := logrus.ParseLevel(v); err == nil {
				level = parsed
			}
		}
		base.SetLevel(level)

		if os.Getenv("LOG_FORMAT") == "json" {
			base.SetFormatter(&logrus.JSONFormatter{})
		} else {
			base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		}
	})
	return base
}

// For returns a logger scoped to a component, e.g. logging.For("annotate").
func For(component string) *logrus.Entry {
	return Base().WithField("component", component)
}

// WithSession scopes a logger entry to a session ID.
func WithSession(component, sessionID string) *logrus.Entry {
	return For(component).WithField("session_id", sessionID)
}

// WithJob scopes a logger entry to a job ID.
func WithJob(component, jobID string) *logrus.Entry {
	return For(component).WithField("job_id", jobID)
}
