package store

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	apperrors "github.com/siga-analytics/siga-predict/internal/errors"
	"github.com/siga-analytics/siga-predict/internal/types"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Store holds students, courses and enrollments in memory. All mutation goes
// through validated CRUD methods; the predictive core only ever reads.
type Store struct {
	mu          sync.RWMutex
	students    map[string]*types.Student
	courses     map[string]*types.Course
	enrollments []types.Enrollment
}

// NewStore creates an empty record store
func NewStore() *Store {
	return &Store{
		students: make(map[string]*types.Student),
		courses:  make(map[string]*types.Course),
	}
}

// CreateStudent registers a new student after validating its fields.
func (s *Store) CreateStudent(id, firstName, lastName, email, birthDate string) (*types.Student, error) {
	if err := validateDocumentID(id); err != nil {
		return nil, err
	}
	if !emailPattern.MatchString(email) {
		return nil, apperrors.NewValidationError("invalid email address", email)
	}
	if _, err := time.Parse("2006-01-02", birthDate); err != nil {
		return nil, apperrors.NewValidationError("invalid birth date, expected YYYY-MM-DD", birthDate)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.students[id]; exists {
		return nil, apperrors.NewValidationError("student already exists", id)
	}

	student := &types.Student{
		ID:        id,
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		BirthDate: birthDate,
		CourseIDs: []string{},
		Grades:    make(map[string]float64),
	}
	s.students[id] = student

	return cloneStudent(student), nil
}

// CreateCourse registers a new course under its code.
func (s *Store) CreateCourse(code, name string) (*types.Course, error) {
	if strings.TrimSpace(code) == "" {
		return nil, apperrors.NewValidationError("course code must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.courses[code]; exists {
		return nil, apperrors.NewValidationError("course already exists", code)
	}

	course := &types.Course{Code: code, Name: name, StudentIDs: []string{}}
	s.courses[code] = course

	return cloneCourse(course), nil
}

// Enroll matriculates a student into a course with an initial grade.
func (s *Store) Enroll(studentID, courseCode string, grade float64) error {
	if err := validateGrade(grade); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	student, ok := s.students[studentID]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("student %s not found", studentID), nil)
	}
	course, ok := s.courses[courseCode]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("course %s not found", courseCode), nil)
	}

	for _, e := range s.enrollments {
		if e.StudentID == studentID && e.CourseCode == courseCode {
			return apperrors.NewValidationError("student is already enrolled in this course", courseCode)
		}
	}

	s.enrollments = append(s.enrollments, types.Enrollment{
		StudentID:  studentID,
		CourseCode: courseCode,
		Grade:      grade,
	})
	student.CourseIDs = append(student.CourseIDs, courseCode)
	student.Grades[courseCode] = grade
	course.StudentIDs = append(course.StudentIDs, studentID)

	return nil
}

// UpdateGrade replaces the recorded grade for an existing enrollment.
func (s *Store) UpdateGrade(studentID, courseCode string, grade float64) error {
	if err := validateGrade(grade); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.enrollments {
		if e.StudentID == studentID && e.CourseCode == courseCode {
			s.enrollments[i].Grade = grade
			s.students[studentID].Grades[courseCode] = grade
			return nil
		}
	}

	return apperrors.NewNotFoundError(
		fmt.Sprintf("enrollment %s/%s not found", studentID, courseCode), nil)
}

// DeleteStudent removes a student and all of their enrollments.
func (s *Store) DeleteStudent(studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	student, ok := s.students[studentID]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("student %s not found", studentID), nil)
	}

	for _, code := range student.CourseIDs {
		if course, ok := s.courses[code]; ok {
			course.StudentIDs = removeString(course.StudentIDs, studentID)
		}
	}

	kept := s.enrollments[:0]
	for _, e := range s.enrollments {
		if e.StudentID != studentID {
			kept = append(kept, e)
		}
	}
	s.enrollments = kept
	delete(s.students, studentID)

	return nil
}

// DeleteCourse removes a course and unenrolls every student from it.
func (s *Store) DeleteCourse(courseCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	course, ok := s.courses[courseCode]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("course %s not found", courseCode), nil)
	}

	for _, id := range course.StudentIDs {
		if student, ok := s.students[id]; ok {
			student.CourseIDs = removeString(student.CourseIDs, courseCode)
			delete(student.Grades, courseCode)
		}
	}

	kept := s.enrollments[:0]
	for _, e := range s.enrollments {
		if e.CourseCode != courseCode {
			kept = append(kept, e)
		}
	}
	s.enrollments = kept
	delete(s.courses, courseCode)

	return nil
}

// StudentByID returns a copy of the student record.
func (s *Store) StudentByID(id string) (*types.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	student, ok := s.students[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("student %s not found", id), nil)
	}
	return cloneStudent(student), nil
}

// CourseByCode returns a copy of the course record.
func (s *Store) CourseByCode(code string) (*types.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	course, ok := s.courses[code]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("course %s not found", code), nil)
	}
	return cloneCourse(course), nil
}

// Students returns all students sorted by last name.
func (s *Store) Students() []*types.Student {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.Student, 0, len(s.students))
	for _, student := range s.students {
		out = append(out, cloneStudent(student))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastName < out[j].LastName })
	return out
}

// Courses returns all courses sorted by code.
func (s *Store) Courses() []*types.Course {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.Course, 0, len(s.courses))
	for _, course := range s.courses {
		out = append(out, cloneCourse(course))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// SearchStudents matches the term against name, document ID and email.
// An empty term returns everyone.
func (s *Store) SearchStudents(term string) []*types.Student {
	if term == "" {
		return s.Students()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	lower := strings.ToLower(term)
	out := []*types.Student{}
	for _, student := range s.students {
		if strings.Contains(strings.ToLower(student.FirstName), lower) ||
			strings.Contains(strings.ToLower(student.LastName), lower) ||
			strings.Contains(student.ID, term) ||
			strings.Contains(strings.ToLower(student.Email), lower) {
			out = append(out, cloneStudent(student))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastName < out[j].LastName })
	return out
}

// Enrollments returns a snapshot of every historical enrollment.
func (s *Store) Enrollments() []types.Enrollment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Enrollment, len(s.enrollments))
	copy(out, s.enrollments)
	return out
}

// EnrollmentsByCourse returns the enrollments for one course.
func (s *Store) EnrollmentsByCourse(courseCode string) []types.Enrollment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []types.Enrollment{}
	for _, e := range s.enrollments {
		if e.CourseCode == courseCode {
			out = append(out, e)
		}
	}
	return out
}

// PassFailCounts aggregates pass/fail totals for a course.
func (s *Store) PassFailCounts(courseCode string) (passed, failed int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.enrollments {
		if e.CourseCode != courseCode {
			continue
		}
		if e.Passed() {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

// TopStudents returns the n best-graded students of a course.
func (s *Store) TopStudents(courseCode string, n int) []types.Enrollment {
	ranked := s.EnrollmentsByCourse(courseCode)
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Grade > ranked[j].Grade })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Counts returns the current collection sizes.
func (s *Store) Counts() (students, courses, enrollments int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.students), len(s.courses), len(s.enrollments)
}

func validateDocumentID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return apperrors.NewValidationError("document ID must not be empty")
	}
	for _, r := range trimmed {
		if !unicode.IsDigit(r) {
			return apperrors.NewValidationError("document ID must be numeric", id)
		}
	}
	return nil
}

func validateGrade(grade float64) error {
	if grade < 0 || grade > 5 {
		return apperrors.NewValidationError("grade must be between 0 and 5", grade)
	}
	return nil
}

func cloneStudent(s *types.Student) *types.Student {
	out := *s
	out.CourseIDs = append([]string(nil), s.CourseIDs...)
	out.Grades = make(map[string]float64, len(s.Grades))
	for k, v := range s.Grades {
		out.Grades[k] = v
	}
	return &out
}

func cloneCourse(c *types.Course) *types.Course {
	out := *c
	out.StudentIDs = append([]string(nil), c.StudentIDs...)
	return &out
}

func removeString(xs []string, target string) []string {
	out := xs[:0]
	for _, x := range xs {
		if x != target {
			out = append(out, x)
		}
	}
	return out
}
