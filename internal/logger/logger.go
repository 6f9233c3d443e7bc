package logger

import (
	"os"
	"time"

	"treasure-chest/internal/config"

	"github.com/sirupsen/logrus"
)

// Logger оборачивает logrus.Logger, чтобы сервисы зависели от одного типа.
type Logger struct {
	*logrus.Logger
}

// New создает логгер по конфигурации: уровень, формат и файл вывода.
func New(cfg *config.LoggerConfig) *Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	log.SetOutput(os.Stdout)
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.WithError(err).WithField("file", cfg.File).Warn("Failed to open log file, using stdout")
		} else {
			log.SetOutput(file)
		}
	}

	return &Logger{Logger: log}
}

// WithFields возвращает запись с набором полей.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields(fields))
}
