package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fachebot/meeting-brief/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithFields_WritesConsole(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	WithFields(logrus.Fields{"request_id": "abc"}).Infof("[Web] %s", "hello")
	assert.Contains(t, buf.String(), "[Web] hello")
	assert.Contains(t, buf.String(), "request_id")
	assert.Contains(t, buf.String(), "abc")
}

func TestSetup_CreatesLogFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	err := Setup(config.Log{Dir: dir, File: "test.log", Level: "info"})
	require.NoError(t, err)
	defer func() {
		defaultLogger.Logger.SetLevel(logrus.DebugLevel)
	}()

	assert.Equal(t, filepath.Join(dir, "test.log"), FilePath())

	Infof("[Test] 写入文件")
	data, err := os.ReadFile(FilePath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "写入文件")
}

func TestSetup_InvalidLevel(t *testing.T) {
	err := Setup(config.Log{Dir: t.TempDir(), File: "x.log", Level: "loud"})
	assert.Error(t, err)
}
