package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/siga-analytics/siga-predict/internal/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s := NewStore()

	_, err := s.CreateStudent("1001", "Ana", "Gomez", "ana@example.com", "2001-04-12")
	require.NoError(t, err)
	_, err = s.CreateStudent("1002", "Luis", "Diaz", "luis@example.com", "2000-11-30")
	require.NoError(t, err)
	_, err = s.CreateStudent("1003", "Marta", "Alvarez", "marta@example.com", "2002-01-05")
	require.NoError(t, err)

	_, err = s.CreateCourse("MATH101", "Calculus I")
	require.NoError(t, err)
	_, err = s.CreateCourse("PHYS201", "Mechanics")
	require.NoError(t, err)

	require.NoError(t, s.Enroll("1001", "MATH101", 4.2))
	require.NoError(t, s.Enroll("1002", "MATH101", 2.1))
	require.NoError(t, s.Enroll("1003", "MATH101", 3.0))
	require.NoError(t, s.Enroll("1001", "PHYS201", 3.8))

	return s
}

func TestCreateStudentValidation(t *testing.T) {
	s := NewStore()

	tests := []struct {
		name      string
		id        string
		email     string
		birthDate string
	}{
		{"empty id", "", "a@b.com", "2000-01-01"},
		{"non numeric id", "abc123", "a@b.com", "2000-01-01"},
		{"bad email", "1001", "not-an-email", "2000-01-01"},
		{"bad date", "1001", "a@b.com", "01/01/2000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateStudent(tt.id, "First", "Last", tt.email, tt.birthDate)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
		})
	}

	t.Run("duplicate id", func(t *testing.T) {
		_, err := s.CreateStudent("2000", "First", "Last", "f@l.com", "1999-12-31")
		require.NoError(t, err)
		_, err = s.CreateStudent("2000", "Other", "Person", "o@p.com", "1998-06-15")
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestCreateCourseValidation(t *testing.T) {
	s := NewStore()

	_, err := s.CreateCourse("  ", "Blank")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	_, err = s.CreateCourse("CS101", "Programming")
	require.NoError(t, err)

	_, err = s.CreateCourse("CS101", "Programming Again")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestEnroll(t *testing.T) {
	s := newTestStore(t)

	t.Run("grade out of range", func(t *testing.T) {
		err := s.Enroll("1002", "PHYS201", 5.5)
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))

		err = s.Enroll("1002", "PHYS201", -0.1)
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("unknown student", func(t *testing.T) {
		err := s.Enroll("9999", "MATH101", 3.0)
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("unknown course", func(t *testing.T) {
		err := s.Enroll("1001", "NOPE", 3.0)
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("duplicate enrollment", func(t *testing.T) {
		err := s.Enroll("1001", "MATH101", 3.0)
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("links both sides", func(t *testing.T) {
		student, err := s.StudentByID("1001")
		require.NoError(t, err)
		assert.Contains(t, student.CourseIDs, "MATH101")
		assert.Equal(t, 4.2, student.Grades["MATH101"])

		course, err := s.CourseByCode("MATH101")
		require.NoError(t, err)
		assert.Contains(t, course.StudentIDs, "1001")
	})
}

func TestUpdateGrade(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpdateGrade("1002", "MATH101", 3.5))

	student, err := s.StudentByID("1002")
	require.NoError(t, err)
	assert.Equal(t, 3.5, student.Grades["MATH101"])

	err = s.UpdateGrade("1002", "PHYS201", 3.5)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))

	err = s.UpdateGrade("1002", "MATH101", 9.0)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestDeleteStudentCascades(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.DeleteStudent("1001"))

	_, err := s.StudentByID("1001")
	assert.True(t, apperrors.IsNotFound(err))

	course, err := s.CourseByCode("MATH101")
	require.NoError(t, err)
	assert.NotContains(t, course.StudentIDs, "1001")

	for _, e := range s.Enrollments() {
		assert.NotEqual(t, "1001", e.StudentID)
	}

	err = s.DeleteStudent("1001")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDeleteCourseCascades(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.DeleteCourse("MATH101"))

	_, err := s.CourseByCode("MATH101")
	assert.True(t, apperrors.IsNotFound(err))

	student, err := s.StudentByID("1001")
	require.NoError(t, err)
	assert.NotContains(t, student.CourseIDs, "MATH101")
	assert.NotContains(t, student.Grades, "MATH101")
	assert.Contains(t, student.CourseIDs, "PHYS201")

	for _, e := range s.Enrollments() {
		assert.NotEqual(t, "MATH101", e.CourseCode)
	}
}

func TestReadsReturnCopies(t *testing.T) {
	s := newTestStore(t)

	student, err := s.StudentByID("1001")
	require.NoError(t, err)
	student.Grades["MATH101"] = 0.0
	student.CourseIDs = append(student.CourseIDs, "HACK")

	fresh, err := s.StudentByID("1001")
	require.NoError(t, err)
	assert.Equal(t, 4.2, fresh.Grades["MATH101"])
	assert.NotContains(t, fresh.CourseIDs, "HACK")
}

func TestListingAndSearch(t *testing.T) {
	s := newTestStore(t)

	students := s.Students()
	require.Len(t, students, 3)
	// Sorted by last name: Alvarez, Diaz, Gomez.
	assert.Equal(t, "Alvarez", students[0].LastName)
	assert.Equal(t, "Gomez", students[2].LastName)

	courses := s.Courses()
	require.Len(t, courses, 2)
	assert.Equal(t, "MATH101", courses[0].Code)

	assert.Len(t, s.SearchStudents(""), 3)
	assert.Len(t, s.SearchStudents("ana"), 1)
	assert.Len(t, s.SearchStudents("1002"), 1)
	assert.Len(t, s.SearchStudents("example.com"), 3)
	assert.Empty(t, s.SearchStudents("zzz"))
}

func TestAggregates(t *testing.T) {
	s := newTestStore(t)

	passed, failed := s.PassFailCounts("MATH101")
	assert.Equal(t, 2, passed)
	assert.Equal(t, 1, failed)

	passed, failed = s.PassFailCounts("UNKNOWN")
	assert.Zero(t, passed)
	assert.Zero(t, failed)

	top := s.TopStudents("MATH101", 2)
	require.Len(t, top, 2)
	assert.Equal(t, "1001", top[0].StudentID)
	assert.Equal(t, 4.2, top[0].Grade)
	assert.Equal(t, "1003", top[1].StudentID)

	assert.Len(t, s.TopStudents("MATH101", 10), 3)

	students, courses, enrollments := s.Counts()
	assert.Equal(t, 3, students)
	assert.Equal(t, 2, courses)
	assert.Equal(t, 4, enrollments)
}
