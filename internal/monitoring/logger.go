package monitoring

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger provides enhanced structured logging with context
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new enhanced logger
func NewLogger() *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// RequestLogger logs HTTP request details
func (l *Logger) RequestLogger(method, path, ip string, statusCode int, duration time.Duration) {
	l.Info("HTTP Request",
		"method", method,
		"path", path,
		"ip", ip,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// TrainingLogger logs a completed training run
func (l *Logger) TrainingLogger(runID string, examples, epochs int, accuracy, valLoss float64, duration time.Duration) {
	l.Info("Training Completed",
		"run_id", runID,
		"examples", examples,
		"epochs", epochs,
		"accuracy", accuracy,
		"val_loss", valLoss,
		"duration_ms", duration.Milliseconds(),
	)
}

// PredictionLogger logs a single prediction
func (l *Logger) PredictionLogger(studentID, courseCode string, probability float64, duration time.Duration) {
	l.Info("Prediction Completed",
		"student_id", studentID,
		"course_code", courseCode,
		"probability", probability,
		"duration_ms", duration.Milliseconds(),
	)
}

// SweepLogger logs a population sweep (at-risk detection, recommendations)
func (l *Logger) SweepLogger(sweep string, results, skipped int, duration time.Duration) {
	level := slog.LevelInfo
	if skipped > 0 {
		level = slog.LevelWarn
	}

	l.Log(context.Background(), level, "Analysis Sweep Completed",
		"sweep", sweep,
		"results", results,
		"skipped", skipped,
		"duration_ms", duration.Milliseconds(),
	)
}

// StoreLogger logs record-store lifecycle events (imports, snapshots)
func (l *Logger) StoreLogger(event string, students, courses, enrollments int) {
	l.Info("Store Event",
		"event", event,
		"students", students,
		"courses", courses,
		"enrollments", enrollments,
		"uptime", time.Since(startTime).String(),
	)
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level slog.Level) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	l.Logger = slog.New(handler)
}

var startTime = time.Now()
