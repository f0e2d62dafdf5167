package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer lets the background writer and the test share a buffer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLevelFiltering(t *testing.T) {
	var buf = &syncBuffer{}
	SetOutput(buf)
	SetLevel("WARN")
	t.Cleanup(func() {
		SetLevel("INFO")
		SetOutput(os.Stdout)
	})

	Debug("debug %d", 1)
	Info("info %d", 2)
	Warn("warn %d", 3)
	Error("error %d", 4)
	Flush()

	var out = buf.String()
	assert.NotContains(t, out, "debug 1")
	assert.NotContains(t, out, "info 2")
	assert.Contains(t, out, "[WARN] warn 3")
	assert.Contains(t, out, "[ERROR] error 4")
}

func TestSetLevelIgnoresUnknown(t *testing.T) {
	SetLevel("ERROR")
	SetLevel("chatty")
	t.Cleanup(func() { SetLevel("INFO") })

	assert.False(t, Enabled(LevelWarn))
	assert.True(t, Enabled(LevelError))
}

func TestAsyncKeepsOrder(t *testing.T) {
	var dir = t.TempDir()
	var path = filepath.Join(dir, "server.log")

	require.NoError(t, Init(Config{Level: "info", Output: path, Async: true, QueueSize: 8}))
	t.Cleanup(func() {
		require.NoError(t, Init(Config{Level: "info", Output: "stdout"}))
	})

	for i := 0; i < 100; i++ {
		Info("line %03d", i)
	}
	Flush()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var lines = strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 100)
	for i, line := range lines {
		assert.True(t, strings.HasSuffix(line, "[INFO] line "+pad3(i)), line)
	}
}

func TestLineFormat(t *testing.T) {
	var buf = &syncBuffer{}
	SetOutput(buf)
	t.Cleanup(func() { SetOutput(os.Stdout) })

	Info("hello %s", "world")
	Flush()

	var line = strings.TrimSpace(buf.String())
	require.True(t, strings.HasPrefix(line, "["), line)
	// [2006-01-02 15:04:05] is 21 bytes
	require.Greater(t, len(line), 22)
	assert.Equal(t, "] [INFO] hello world", line[20:])
}

func pad3(i int) string {
	var s = []byte{'0', '0', '0'}
	for p := 2; p >= 0 && i > 0; p-- {
		s[p] = byte('0' + i%10)
		i /= 10
	}
	return string(s)
}
