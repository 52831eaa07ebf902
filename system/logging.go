package system

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds a logrus logger writing to both stderr and a
// rotating file, in the teacher's declared logging-stack style
// (logrus + lumberjack).
func NewLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	rotator := &lumberjack.Logger{
		Filename: cfg.LogFile,
		MaxSize:  cfg.LogMaxMB,
		MaxAge:   cfg.LogMaxDays,
		Compress: true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	return log
}

// ImportLogger is a thin wrapper binding tenant/import identity onto
// every log line for the duration of one import call.
type ImportLogger struct {
	*logrus.Entry
}

func NewImportLogger(base *logrus.Logger, tenantID, importID string) *ImportLogger {
	return &ImportLogger{Entry: base.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"import_id": importID,
	})}
}
