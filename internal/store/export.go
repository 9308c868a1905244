package store

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"

	apperrors "github.com/siga-analytics/siga-predict/internal/errors"
	"github.com/siga-analytics/siga-predict/internal/types"
)

// snapshot is the JSON document format for full store export/import.
type snapshot struct {
	Students    []*types.Student   `json:"students"`
	Courses     []*types.Course    `json:"courses"`
	Enrollments []types.Enrollment `json:"enrollments"`
}

// SaveJSON writes the whole store as a single JSON document.
func (s *Store) SaveJSON(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return apperrors.WrapError(err, "failed to create export file")
	}
	defer file.Close()

	doc := snapshot{
		Students:    s.Students(),
		Courses:     s.Courses(),
		Enrollments: s.Enrollments(),
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return apperrors.WrapError(err, "failed to encode export")
	}

	return nil
}

// LoadJSON replaces the store contents with a previously exported document.
func (s *Store) LoadJSON(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return apperrors.NewNotFoundError("export file not found", err)
		}
		return apperrors.WrapError(err, "failed to open export file")
	}
	defer file.Close()

	var doc snapshot
	if err := json.NewDecoder(file).Decode(&doc); err != nil {
		return apperrors.NewValidationError("malformed export document", err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.students = make(map[string]*types.Student, len(doc.Students))
	for _, student := range doc.Students {
		if student.Grades == nil {
			student.Grades = make(map[string]float64)
		}
		if student.CourseIDs == nil {
			student.CourseIDs = []string{}
		}
		s.students[student.ID] = student
	}

	s.courses = make(map[string]*types.Course, len(doc.Courses))
	for _, course := range doc.Courses {
		if course.StudentIDs == nil {
			course.StudentIDs = []string{}
		}
		s.courses[course.Code] = course
	}

	s.enrollments = doc.Enrollments

	return nil
}

// LoadStudentsCSV imports students from a CSV file with a header row of
// id,first_name,last_name,email,birth_date. Duplicate or invalid rows are
// skipped and reported, matching the lenient bulk-import behavior.
func (s *Store) LoadStudentsCSV(path string) (imported int, skipped []types.Skipped, err error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil, apperrors.NewNotFoundError("CSV file not found", err)
		}
		return 0, nil, apperrors.WrapError(err, "failed to open CSV file")
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return 0, nil, apperrors.NewValidationError("failed to read CSV header", err.Error())
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"id", "first_name", "last_name", "email", "birth_date"} {
		if _, ok := col[required]; !ok {
			return 0, nil, apperrors.NewValidationError("CSV is missing required column", required)
		}
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return imported, skipped, apperrors.NewValidationError("malformed CSV row", err.Error())
		}

		id := row[col["id"]]
		_, createErr := s.CreateStudent(
			id, row[col["first_name"]], row[col["last_name"]],
			row[col["email"]], row[col["birth_date"]],
		)
		if createErr != nil {
			skipped = append(skipped, types.Skipped{StudentID: id, Reason: createErr.Error()})
			continue
		}
		imported++
	}

	return imported, skipped, nil
}
