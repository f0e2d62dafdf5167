// Package logger is the leveled logger shared by the reactor, the workers and
// the collaborators. Lines are formatted eagerly and written either inline or
// by a single background writer, and Flush pushes everything buffered so far
// to the output.
package logger

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wuyongjia/threadpool"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

const (
	DEFAULT_QUEUE_SIZE  = 1024
	DEFAULT_MAX_SIZE_MB = 100
	DEFAULT_BUFFER_SIZE = 8192
)

// Config selects the level, the destination and the write mode.
type Config struct {
	// Level is one of DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string
	// Output is stdout, stderr or a file path; files are rotated by size
	Output string
	// Async hands lines to a background writer instead of writing inline
	Async bool
	// QueueSize bounds the lines waiting for the background writer
	QueueSize  int
	MaxSizeMB  int
	MaxBackups int
}

var (
	currentLevel atomic.Int32

	mu      sync.Mutex
	out     = bufio.NewWriterSize(os.Stdout, DEFAULT_BUFFER_SIZE)
	closer  io.Closer
	writer  *threadpool.Pool
	pending atomic.Int64
)

func init() {
	currentLevel.Store(int32(LevelInfo))
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel.Store(int32(LevelDebug))
	case "INFO":
		currentLevel.Store(int32(LevelInfo))
	case "WARN":
		currentLevel.Store(int32(LevelWarn))
	case "ERROR":
		currentLevel.Store(int32(LevelError))
	}
}

func Enabled(level Level) bool {
	return level >= Level(currentLevel.Load())
}

// Init applies cfg. Lines queued under the previous configuration are flushed
// to the previous output first.
func Init(cfg Config) error {
	Flush()

	var w io.Writer
	var c io.Closer
	switch cfg.Output {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		var maxSize = cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = DEFAULT_MAX_SIZE_MB
		}
		var lj = &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    maxSize,
			MaxBackups: cfg.MaxBackups,
		}
		w, c = lj, lj
	}

	SetLevel(cfg.Level)
	if cfg.Level == "" {
		SetLevel("INFO")
	}

	var async *threadpool.Pool
	if cfg.Async {
		var queue = cfg.QueueSize
		if queue <= 0 {
			queue = DEFAULT_QUEUE_SIZE
		}
		// The writer is never closed: a closed threadpool keeps its workers
		// receiving from the closed channel, so it stays parked instead.
		async = threadpool.NewWithFunc(1, queue, func(payload interface{}) {
			if line, ok := payload.(string); ok {
				write(line)
			}
			pending.Add(-1)
		})
	}

	mu.Lock()
	defer mu.Unlock()
	if closer != nil {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("close previous log output: %w", err)
		}
	}
	out = bufio.NewWriterSize(w, DEFAULT_BUFFER_SIZE)
	closer = c
	writer = async
	return nil
}

// SetOutput redirects synchronous output to w.
func SetOutput(w io.Writer) {
	Flush()
	mu.Lock()
	defer mu.Unlock()
	out = bufio.NewWriterSize(w, DEFAULT_BUFFER_SIZE)
	closer = nil
	writer = nil
}

func write(line string) {
	mu.Lock()
	defer mu.Unlock()
	_, _ = out.WriteString(line)
	_ = out.Flush()
}

func log(level Level, format string, v ...any) {
	if !Enabled(level) {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	line := fmt.Sprintf("[%s] [%s] %s\n", timestamp, level.String(), fmt.Sprintf(format, v...))

	mu.Lock()
	var async = writer
	mu.Unlock()

	if async == nil {
		write(line)
		return
	}
	pending.Add(1)
	async.Invoke(line)
}

// Flush waits for the background writer to drain and flushes the buffered
// output.
func Flush() {
	for pending.Load() > 0 {
		time.Sleep(time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	_ = out.Flush()
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}
