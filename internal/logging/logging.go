// Package logging sets up the process-wide structured logger.
//
// The teacher logs ad hoc via the stdlib "log" package (e.g.
// internal/driver/device/kernel_device.go). Here that's generalized into a
// zerolog logger writing structured fields, fanned out to the console and to
// a size/count-bounded rotating file, per the console_log_level /
// logfile_log_level / logfile_max_count / logfile_max_size configuration
// options.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the two log sinks independently.
type Options struct {
	ConsoleLevel   string
	FileLevel      string
	FilePath       string
	FileMaxSizeMB  int
	FileMaxBackups int
}

// New builds a zerolog.Logger writing to both stderr (human-readable,
// colorized when attached to a terminal) and a rotating log file.
func New(opts Options) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	consoleLeveled := &levelWriter{Writer: console, level: parseLevel(opts.ConsoleLevel)}

	var writers []io.Writer
	writers = append(writers, consoleLeveled)

	if opts.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    max(opts.FileMaxSizeMB, 1),
			MaxBackups: max(opts.FileMaxBackups, 1),
			Compress:   true,
		}
		writers = append(writers, &levelWriter{Writer: rotator, level: parseLevel(opts.FileLevel)})
	}

	multi := zerolog.MultiLevelWriter(writers...)
	return zerolog.New(multi).With().Timestamp().Logger()
}

// levelWriter drops any event whose level is below the configured
// threshold for this particular sink, so the console and the file can run
// at independent verbosity.
type levelWriter struct {
	io.Writer
	level zerolog.Level
}

func (w *levelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < w.level {
		return len(p), nil
	}
	return w.Write(p)
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
