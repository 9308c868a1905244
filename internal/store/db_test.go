package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siga-analytics/siga-predict/internal/types"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := newTestDB(t)
	s := newTestStore(t)

	require.NoError(t, db.SaveSnapshot(s))

	restored := NewStore()
	require.NoError(t, db.LoadSnapshot(restored))

	assert.Equal(t, s.Students(), restored.Students())
	assert.Equal(t, s.Courses(), restored.Courses())
	assert.ElementsMatch(t, s.Enrollments(), restored.Enrollments())
}

func TestSaveSnapshotReplacesPrevious(t *testing.T) {
	db := newTestDB(t)

	first := newTestStore(t)
	require.NoError(t, db.SaveSnapshot(first))

	second := NewStore()
	_, err := second.CreateStudent("5001", "Nora", "Vega", "nora@example.com", "1999-02-02")
	require.NoError(t, err)
	require.NoError(t, db.SaveSnapshot(second))

	restored := NewStore()
	require.NoError(t, db.LoadSnapshot(restored))

	students, courses, enrollments := restored.Counts()
	assert.Equal(t, 1, students)
	assert.Zero(t, courses)
	assert.Zero(t, enrollments)
}

func TestLoadSnapshotRebuildsLinks(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.SaveSnapshot(newTestStore(t)))

	restored := NewStore()
	require.NoError(t, db.LoadSnapshot(restored))

	student, err := restored.StudentByID("1001")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"MATH101", "PHYS201"}, student.CourseIDs)
	assert.Equal(t, 4.2, student.Grades["MATH101"])

	course, err := restored.CourseByCode("MATH101")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1001", "1002", "1003"}, course.StudentIDs)
}

func TestTrainingRunAuditLog(t *testing.T) {
	db := newTestDB(t)

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		run := types.TrainingRun{
			ID: uuid.New().String(),
			Metrics: types.TrainingMetrics{
				Accuracy:  0.9,
				Precision: 0.85,
				Recall:    0.8,
				ValLoss:   0.3,
				Epochs:    40 + i,
				Examples:  120,
			},
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + 30*time.Second),
		}
		require.NoError(t, db.RecordTrainingRun(run))
	}

	runs, err := db.TrainingRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// Newest first.
	assert.Equal(t, 42, runs[0].Metrics.Epochs)
	assert.Equal(t, 41, runs[1].Metrics.Epochs)
	assert.Equal(t, 0.9, runs[0].Metrics.Accuracy)
	assert.Equal(t, 120, runs[0].Metrics.Examples)
}
