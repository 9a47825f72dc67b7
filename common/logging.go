// Package common provides centralized logging infrastructure shared by every
// package in this module. It routes error-level log entries to stderr and
// everything else to stdout, which plays well with process supervisors.
package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes formatted log lines to stderr or stdout based on
// level, without parsing the line beyond a literal substring check.
type OutputSplitter struct{}

// Write implements io.Writer. Lines containing "level=error" go to stderr;
// everything else goes to stdout.
func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("level=error")) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the package-wide logrus instance. Callers that need contextual
// fields should wrap it with NewContextLogger rather than calling it
// directly from hot paths.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}
