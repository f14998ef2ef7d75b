package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const timeLayout = "20060102150405"

// Run is a per-run log file under the configured log directory, with a zap
// logger writing to it. One file is created per run, named with the run's
// start timestamp, e.g. backup-20240131093000.log.
type Run struct {
	Logger *zap.Logger
	Path   string

	file *os.File
}

// Open creates the run log file for the given operation prefix.
func Open(logDir, prefix string) (*Run, error) {
	name := fmt.Sprintf("%s-%s.log", prefix, time.Now().Format(timeLayout))
	path := filepath.Join(logDir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("create run log %s: %w", path, err)
	}

	core := zapcore.NewCore(getEncoder(), zapcore.AddSync(file), zapcore.DebugLevel)
	logger := zap.New(core, zap.AddCaller())

	return &Run{Logger: logger, Path: path, file: file}, nil
}

// Raw returns the underlying file for streaming external tool output into
// the run log alongside the structured lines.
func (r *Run) Raw() *os.File {
	return r.file
}

// Close flushes the logger and closes the run log file.
func (r *Run) Close() error {
	_ = r.Logger.Sync()
	return r.file.Close()
}

func getEncoder() zapcore.Encoder {
	return zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		MessageKey:   "message",
		TimeKey:      "time",
		LevelKey:     "level",
		CallerKey:    "caller",
		EncodeLevel:  CustomLevelEncoder,
		EncodeTime:   SyslogTimeEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	})
}

func SyslogTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05"))
}

func CustomLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + level.CapitalString() + "]")
}
