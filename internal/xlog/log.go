// Package xlog centralizes logrus configuration so every subsystem logs
// through a single formatter/level, tagged with its own "sys" field.
package xlog

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	root     = logrus.New()
	initOnce sync.Once
)

// Init configures the root logger. Safe to call multiple times; only the
// first call takes effect.
func Init(level logrus.Level, json bool) {
	initOnce.Do(func() {
		root.SetOutput(os.Stderr)
		root.SetLevel(level)
		if json {
			root.SetFormatter(&logrus.JSONFormatter{})
		} else {
			root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		}
	})
}

// New returns a subsystem-scoped logger, e.g. New("discover"), New("p2p.manager").
func New(subsystem string) *logrus.Entry {
	return root.WithField("sys", subsystem)
}
