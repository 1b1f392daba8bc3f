// Package log implements the server's leveled logger. Entries are queued to
// a single writer goroutine so hot paths never block on disk; the file sink
// rotates by size and compresses rotated files with zstd.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Level orders log severities.
type Level int32

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	}
	return "UNKNOWN"
}

// ParseLevel maps a config string to a Level. Unknown strings fall back to
// info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	}
	return LevelInfo
}

// Options configures a Logger.
type Options struct {
	Level       Level
	Console     bool
	File        string // empty disables the file sink
	MaxFileSize int64  // bytes before rotation; 0 disables rotation
	MaxFiles    int    // rotated files kept
}

type entry struct {
	when    time.Time
	level   Level
	message string
}

// Logger is the asynchronous leveled logger.
type Logger struct {
	level atomic.Int32

	ch   chan entry
	done chan struct{}

	console bool

	mu       sync.Mutex
	file     *os.File
	path     string
	size     int64
	maxSize  int64
	maxFiles int

	closed atomic.Bool
}

// New creates a logger and starts its writer goroutine.
func New(opts Options) (*Logger, error) {
	l := &Logger{
		ch:       make(chan entry, 1024),
		done:     make(chan struct{}),
		console:  opts.Console,
		path:     opts.File,
		maxSize:  opts.MaxFileSize,
		maxFiles: opts.MaxFiles,
	}
	l.level.Store(int32(opts.Level))

	if l.maxFiles < 1 {
		l.maxFiles = 1
	}

	if l.path != "" {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		if st, err := f.Stat(); err == nil {
			l.size = st.Size()
		}
		l.file = f
	}

	go l.writerLoop()
	return l, nil
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	l := &Logger{
		ch:   make(chan entry, 16),
		done: make(chan struct{}),
	}
	l.level.Store(int32(LevelFatal + 1))
	go l.writerLoop()
	return l
}

// SetLevel changes the minimum level at runtime.
func (l *Logger) SetLevel(level Level) { l.level.Store(int32(level)) }

// GetLevel reports the current minimum level.
func (l *Logger) GetLevel() Level { return Level(l.level.Load()) }

// Close drains the queue, stops the writer and closes the file sink. Calls
// after the first return immediately.
func (l *Logger) Close() {
	if l.closed.Swap(true) {
		return
	}
	close(l.ch)
	<-l.done

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

func (l *Logger) log(level Level, format string, args ...any) {
	if level < Level(l.level.Load()) || l.closed.Load() {
		return
	}
	e := entry{when: time.Now(), level: level, message: fmt.Sprintf(format, args...)}
	select {
	case l.ch <- e:
	default:
		// Queue full: write inline rather than drop.
		l.write(e)
	}
}

func (l *Logger) Tracef(format string, args ...any) { l.log(LevelTrace, format, args...) }
func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, format, args...) }
func (l *Logger) Fatalf(format string, args ...any) { l.log(LevelFatal, format, args...) }

func (l *Logger) writerLoop() {
	for e := range l.ch {
		l.write(e)
	}
	close(l.done)
}

func (l *Logger) write(e entry) {
	line := fmt.Sprintf("[%s] [%-5s] %s\n",
		e.when.Format("2006-01-02 15:04:05.000"), e.level, e.message)

	if l.console {
		os.Stdout.WriteString(line)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	if _, err := l.file.WriteString(line); err != nil {
		return
	}
	l.size += int64(len(line))
	if l.maxSize > 0 && l.size >= l.maxSize {
		l.rotate()
	}
}

// rotate shifts compressed backups up by one, compresses the current file
// into ".1.zst" and reopens a fresh log. Called with mu held.
func (l *Logger) rotate() {
	l.file.Close()
	l.file = nil

	for i := l.maxFiles; i >= 1; i-- {
		old := fmt.Sprintf("%s.%d.zst", l.path, i)
		if i == l.maxFiles {
			os.Remove(old)
			continue
		}
		os.Rename(old, fmt.Sprintf("%s.%d.zst", l.path, i+1))
	}

	if err := compressFile(l.path, l.path+".1.zst"); err == nil {
		os.Remove(l.path)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return
	}
	l.file = f
	l.size = 0
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return err
	}
	if _, err := io.Copy(enc, in); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}
