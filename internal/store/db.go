package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/siga-analytics/siga-predict/internal/types"
)

// DB persists record-store snapshots and the training-run audit log.
type DB struct {
	*sql.DB
}

// NewDB opens (or creates) the sqlite database under dataDir.
func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "siga_records.db")

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	database := &DB{DB: db}

	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("Database initialized", "path", dbPath)

	return database, nil
}

// migrate creates the necessary tables
func (db *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS students (
			id TEXT PRIMARY KEY,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			email TEXT NOT NULL,
			birth_date TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS courses (
			code TEXT PRIMARY KEY,
			name TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS enrollments (
			student_id TEXT NOT NULL,
			course_code TEXT NOT NULL,
			grade REAL NOT NULL,
			PRIMARY KEY (student_id, course_code),
			FOREIGN KEY (student_id) REFERENCES students(id),
			FOREIGN KEY (course_code) REFERENCES courses(code)
		)`,

		`CREATE TABLE IF NOT EXISTS training_runs (
			id TEXT PRIMARY KEY,
			accuracy REAL NOT NULL,
			precision_score REAL NOT NULL,
			recall REAL NOT NULL,
			val_loss REAL NOT NULL,
			epochs INTEGER NOT NULL,
			examples INTEGER NOT NULL,
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_enrollments_course ON enrollments(course_code)`,
		`CREATE INDEX IF NOT EXISTS idx_training_runs_finished ON training_runs(finished_at DESC)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// SaveSnapshot replaces the persisted snapshot with the store's current state.
func (db *DB) SaveSnapshot(s *Store) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"enrollments", "students", "courses"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, student := range s.Students() {
		_, err := tx.Exec(`
			INSERT INTO students (id, first_name, last_name, email, birth_date)
			VALUES (?, ?, ?, ?, ?)
		`, student.ID, student.FirstName, student.LastName, student.Email, student.BirthDate)
		if err != nil {
			return fmt.Errorf("failed to insert student: %w", err)
		}
	}

	for _, course := range s.Courses() {
		if _, err := tx.Exec(`INSERT INTO courses (code, name) VALUES (?, ?)`, course.Code, course.Name); err != nil {
			return fmt.Errorf("failed to insert course: %w", err)
		}
	}

	for _, e := range s.Enrollments() {
		_, err := tx.Exec(`
			INSERT INTO enrollments (student_id, course_code, grade)
			VALUES (?, ?, ?)
		`, e.StudentID, e.CourseCode, e.Grade)
		if err != nil {
			return fmt.Errorf("failed to insert enrollment: %w", err)
		}
	}

	return tx.Commit()
}

// LoadSnapshot replaces the store's contents with the persisted snapshot.
func (db *DB) LoadSnapshot(s *Store) error {
	students := make(map[string]*types.Student)
	courses := make(map[string]*types.Course)
	var enrollments []types.Enrollment

	rows, err := db.Query(`SELECT id, first_name, last_name, email, birth_date FROM students`)
	if err != nil {
		return fmt.Errorf("failed to query students: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		student := &types.Student{CourseIDs: []string{}, Grades: make(map[string]float64)}
		if err := rows.Scan(&student.ID, &student.FirstName, &student.LastName, &student.Email, &student.BirthDate); err != nil {
			return fmt.Errorf("failed to scan student: %w", err)
		}
		students[student.ID] = student
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate students: %w", err)
	}

	courseRows, err := db.Query(`SELECT code, name FROM courses`)
	if err != nil {
		return fmt.Errorf("failed to query courses: %w", err)
	}
	defer courseRows.Close()

	for courseRows.Next() {
		course := &types.Course{StudentIDs: []string{}}
		if err := courseRows.Scan(&course.Code, &course.Name); err != nil {
			return fmt.Errorf("failed to scan course: %w", err)
		}
		courses[course.Code] = course
	}
	if err := courseRows.Err(); err != nil {
		return fmt.Errorf("failed to iterate courses: %w", err)
	}

	enrollRows, err := db.Query(`SELECT student_id, course_code, grade FROM enrollments`)
	if err != nil {
		return fmt.Errorf("failed to query enrollments: %w", err)
	}
	defer enrollRows.Close()

	for enrollRows.Next() {
		var e types.Enrollment
		if err := enrollRows.Scan(&e.StudentID, &e.CourseCode, &e.Grade); err != nil {
			return fmt.Errorf("failed to scan enrollment: %w", err)
		}
		enrollments = append(enrollments, e)

		if student, ok := students[e.StudentID]; ok {
			student.CourseIDs = append(student.CourseIDs, e.CourseCode)
			student.Grades[e.CourseCode] = e.Grade
		}
		if course, ok := courses[e.CourseCode]; ok {
			course.StudentIDs = append(course.StudentIDs, e.StudentID)
		}
	}
	if err := enrollRows.Err(); err != nil {
		return fmt.Errorf("failed to iterate enrollments: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.students = students
	s.courses = courses
	s.enrollments = enrollments

	return nil
}

// RecordTrainingRun appends one row to the training-run audit log.
func (db *DB) RecordTrainingRun(run types.TrainingRun) error {
	_, err := db.Exec(`
		INSERT INTO training_runs (id, accuracy, precision_score, recall, val_loss, epochs, examples, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Metrics.Accuracy, run.Metrics.Precision, run.Metrics.Recall,
		run.Metrics.ValLoss, run.Metrics.Epochs, run.Metrics.Examples,
		run.StartedAt, run.FinishedAt)

	if err != nil {
		return fmt.Errorf("failed to record training run: %w", err)
	}

	return nil
}

// TrainingRuns returns the most recent training runs, newest first.
func (db *DB) TrainingRuns(limit int) ([]types.TrainingRun, error) {
	rows, err := db.Query(`
		SELECT id, accuracy, precision_score, recall, val_loss, epochs, examples, started_at, finished_at
		FROM training_runs ORDER BY finished_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query training runs: %w", err)
	}
	defer rows.Close()

	var runs []types.TrainingRun
	for rows.Next() {
		var run types.TrainingRun
		if err := rows.Scan(&run.ID, &run.Metrics.Accuracy, &run.Metrics.Precision,
			&run.Metrics.Recall, &run.Metrics.ValLoss, &run.Metrics.Epochs,
			&run.Metrics.Examples, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan training run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}
