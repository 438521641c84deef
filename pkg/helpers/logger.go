package helpers

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// ComponentField names the component that wrote an entry (router, mailer, queue, worker).
const ComponentField = "component"

// LineFormatter renders one entry per line:
//
//	2006-01-02 15:04:05,000 - name.component - LEVEL - message key=value
type LineFormatter struct {
	Name string
}

var lineEscaper = strings.NewReplacer("\r", `\r`, "\n", `\n`)

// Format implements logrus.Formatter
func (f *LineFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer

	ts := e.Time.Format("2006-01-02 15:04:05.000")
	b.WriteString(strings.Replace(ts, ".", ",", 1))
	b.WriteString(" - ")
	b.WriteString(f.Name)
	if c, ok := e.Data[ComponentField]; ok {
		b.WriteByte('.')
		b.WriteString(fmt.Sprint(c))
	}
	b.WriteString(" - ")
	b.WriteString(strings.ToUpper(e.Level.String()))
	b.WriteString(" - ")
	b.WriteString(lineEscaper.Replace(e.Message))

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		if k != ComponentField {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(lineEscaper.Replace(fmt.Sprint(e.Data[k])))
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// NewLogger creates the process-wide logrus logger writing to out.
// Development gets debug level; everything else logs info and above.
func NewLogger(name, env string, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&LineFormatter{Name: name})
	if env == "development" {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger
}

// Component returns an entry tagged with the given component name.
func Component(logger logrus.FieldLogger, name string) *logrus.Entry {
	return logger.WithField(ComponentField, name)
}

// LogError Convenience methods to keep a unified logging interface
func LogError(logger logrus.FieldLogger, msg string, err error, fields logrus.Fields) {
	if fields == nil {
		fields = logrus.Fields{}
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	logger.WithFields(fields).Error(msg)
}

func LogInfo(logger logrus.FieldLogger, msg string, fields logrus.Fields) {
	if fields == nil {
		fields = logrus.Fields{}
	}
	logger.WithFields(fields).Info(msg)
}
