package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultTimeFormatStr is the default time format string for log appenders.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

// Appender is an output for log entries. This is a subset of the `zapcore.Core` interface.
type Appender interface {
	// Write submits a structured log entry to the appender for logging.
	Write(zapcore.Entry, []zapcore.Field) error
	// Sync is for signaling that any buffered logs to `Write` should be flushed. E.g: at shutdown.
	Sync() error
}

// ConsoleAppender writes tab separated log lines to an `io.Writer`.
type ConsoleAppender struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewStdoutAppender creates a new appender that outputs to stdout.
func NewStdoutAppender() *ConsoleAppender {
	return &ConsoleAppender{writer: os.Stdout}
}

// NewWriterAppender creates a new appender that outputs to the input writer.
func NewWriterAppender(writer io.Writer) *ConsoleAppender {
	return &ConsoleAppender{writer: writer}
}

// FileAppender is a ConsoleAppender over a size-rotated log file.
type FileAppender struct {
	*ConsoleAppender
	roller *lumberjack.Logger
}

// NewFileAppender creates an appender that writes to `filename`. The file is rotated once it
// exceeds `maxSizeMB`; `maxBackups` old files are kept.
func NewFileAppender(filename string, maxSizeMB, maxBackups int) *FileAppender {
	roller := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	}
	return &FileAppender{ConsoleAppender: NewWriterAppender(roller), roller: roller}
}

// Close closes the underlying log file.
func (appender *FileAppender) Close() error {
	return appender.roller.Close()
}

// Write outputs the log entry.
func (appender *ConsoleAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	line, err := formatEntry(entry, fields)
	appender.mu.Lock()
	defer appender.mu.Unlock()
	if _, writeErr := fmt.Fprintln(appender.writer, line); writeErr != nil {
		return writeErr
	}
	return err
}

// Sync is a no-op.
func (appender *ConsoleAppender) Sync() error {
	return nil
}

// formatEntry renders `time LEVEL name caller message {fields}`. A fields encoding error still
// returns the line without fields.
func formatEntry(entry zapcore.Entry, fields []zapcore.Field) (string, error) {
	const maxLength = 10
	toPrint := make([]string, 0, maxLength)
	toPrint = append(toPrint, entry.Time.Format(DefaultTimeFormatStr))
	toPrint = append(toPrint, strings.ToUpper(entry.Level.String()))
	toPrint = append(toPrint, entry.LoggerName)
	if entry.Caller.Defined {
		toPrint = append(toPrint, callerToString(&entry.Caller))
	}
	toPrint = append(toPrint, entry.Message)
	if len(fields) == 0 {
		return strings.Join(toPrint, "\t"), nil
	}

	// Use zap's json encoder which will encode our slice of fields in-order. As opposed to the
	// random iteration order of a map. Call it with an empty Entry object such that only the fields
	// become "map-ified".
	jsonEncoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{SkipLineEnding: true})
	buf, err := jsonEncoder.EncodeEntry(zapcore.Entry{}, fields)
	if err != nil {
		return strings.Join(toPrint, "\t"), err
	}
	toPrint = append(toPrint, buf.String())
	return strings.Join(toPrint, "\t"), nil
}

// callerToString returns `<package>/<file>:<line>`.
func callerToString(caller *zapcore.EntryCaller) string {
	// The file returned by `runtime.Caller` is a full path and always contains '/' to separate
	// directories, including on windows. We only want `<package>/<file>`.
	idx := strings.LastIndexByte(caller.File, '/')
	if idx == -1 {
		return fmt.Sprintf("%s:%d", caller.File, caller.Line)
	}
	idx = strings.LastIndexByte(caller.File[:idx], '/')
	if idx == -1 {
		return fmt.Sprintf("%s:%d", caller.File, caller.Line)
	}
	return fmt.Sprintf("%s:%d", caller.File[idx+1:], caller.Line)
}
