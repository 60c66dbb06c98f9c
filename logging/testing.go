package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// testAppender prints entries through testing.TB so they are attributed to the test that is
// running, including parallel subtests.
type testAppender struct {
	tb testing.TB
}

// NewTestAppender returns an appender that writes with tb.Log.
func NewTestAppender(tb testing.TB) Appender {
	return &testAppender{tb}
}

func (tapp *testAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	tapp.tb.Helper()
	line, err := formatLine(entry, fields)
	tapp.tb.Log(line)
	return err
}

func (tapp *testAppender) Sync() error {
	return nil
}
