package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/messaging-system/config"
	"github.com/oksasatya/messaging-system/pkg/helpers"
	"github.com/oksasatya/messaging-system/pkg/logfile"
)

const esHookBuffer = 1024

// logging owns the process logger and the sinks behind it.
type logging struct {
	Logger *logrus.Logger
	file   *logfile.RotatingFile
	hook   *helpers.ESHook
}

// setupLogging opens the rotating log file and, when configured, ships
// entries to Elasticsearch. stdout is appended when LOG_STDOUT is set.
func setupLogging(cfg *config.Config, stdout io.Writer) (*logging, error) {
	file, err := logfile.Open(cfg.LogFile, cfg.LogMaxBytes, cfg.LogBackupCount)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	var out io.Writer = file
	if cfg.LogStdout && stdout != nil {
		out = io.MultiWriter(file, stdout)
	}
	l := &logging{Logger: helpers.NewLogger(cfg.LogName, cfg.Env, out), file: file}

	if addrs := cfg.ESAddrs(); len(addrs) > 0 {
		es, err := helpers.NewESClient(addrs, cfg.ElasticsearchUser, cfg.ElasticsearchPass)
		if err != nil {
			l.Logger.WithError(err).Warn("elasticsearch unavailable, log shipping disabled")
		} else {
			l.hook = helpers.NewESHook(es, cfg.ESLogIndex, cfg.LogName, esHookBuffer)
			l.Logger.AddHook(l.hook)
		}
	}
	return l, nil
}

func (l *logging) Close() {
	if l.hook != nil {
		l.hook.Close()
		if n := l.hook.Dropped(); n > 0 {
			fmt.Fprintf(os.Stderr, "elasticsearch log hook dropped %d entries\n", n)
		}
	}
	_ = l.file.Close()
}
