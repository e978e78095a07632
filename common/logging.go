// Package common provides the logging infrastructure shared by every
// package in this module. Output is routed so that error-level records land
// on stderr while everything else goes to stdout, which plays nicely with
// host processes that capture the two streams separately.
package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes formatted logrus output to stderr for error-level
// records and stdout for everything else.
type OutputSplitter struct{}

// Write implements io.Writer, inspecting the formatted record for the
// logrus "level=error" marker.
func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("level=error")) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the package-wide logrus instance used by AgentLogger when no
// explicit logger is supplied.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}
