// Package testlog routes driver logs into test output at debug level.
package testlog

import (
	"testing"

	"github.com/danmuck/wpanctl/internal/logging"
	"github.com/danmuck/wpanctl/internal/logs"
)

// Start configures the test profile and brackets the test in the log.
func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	logs.Infof("test=%s start", t.Name())
	t.Cleanup(func() {
		logs.Infof("test=%s done failed=%t", t.Name(), t.Failed())
	})
}
