package predict

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/siga-analytics/siga-predict/internal/errors"
	"github.com/siga-analytics/siga-predict/internal/store"
)

// recordFixture builds a store with a clearly separable population: strong
// students carry grades well above the pass threshold, weak students well
// below it, across two shared courses.
func recordFixture(t *testing.T) *store.Store {
	t.Helper()

	s := store.NewStore()

	for _, course := range []struct{ code, name string }{
		{"MATH101", "Calculus I"},
		{"PHYS201", "Mechanics"},
		{"CS101", "Programming"},
	} {
		_, err := s.CreateCourse(course.code, course.name)
		require.NoError(t, err)
	}

	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("40%02d", i+1)
		_, err := s.CreateStudent(id, "Strong", fmt.Sprintf("Student%02d", i+1),
			fmt.Sprintf("s%02d@example.com", i+1), "2001-01-01")
		require.NoError(t, err)
		require.NoError(t, s.Enroll(id, "MATH101", 4.5))
		require.NoError(t, s.Enroll(id, "PHYS201", 4.2))
	}

	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("50%02d", i+1)
		_, err := s.CreateStudent(id, "Weak", fmt.Sprintf("Student%02d", i+1),
			fmt.Sprintf("w%02d@example.com", i+1), "2001-01-01")
		require.NoError(t, err)
		require.NoError(t, s.Enroll(id, "MATH101", 1.5))
		require.NoError(t, s.Enroll(id, "PHYS201", 1.8))
	}

	return s
}

func TestTrainerInsufficientData(t *testing.T) {
	s := store.NewStore()

	_, err := s.CreateStudent("100", "Solo", "Student", "solo@example.com", "2001-01-01")
	require.NoError(t, err)
	_, err = s.CreateCourse("MATH101", "Calculus I")
	require.NoError(t, err)
	require.NoError(t, s.Enroll("100", "MATH101", 3.5))

	classifier := NewClassifier()
	trainer := NewTrainer(classifier)

	_, err = trainer.Train(s)
	require.Error(t, err)
	assert.True(t, apperrors.IsInsufficientData(err))
	assert.False(t, classifier.Trained())
}

func TestTrainerEmptyStore(t *testing.T) {
	classifier := NewClassifier()
	trainer := NewTrainer(classifier)

	_, err := trainer.Train(store.NewStore())
	require.Error(t, err)
	assert.True(t, apperrors.IsInsufficientData(err))
}

func TestTrainerTrain(t *testing.T) {
	s := recordFixture(t)
	classifier := NewClassifier()
	trainer := NewTrainer(classifier)

	metrics, err := trainer.Train(s)
	require.NoError(t, err)
	assert.True(t, classifier.Trained())

	// One example per enrollment.
	assert.Equal(t, 24, metrics.Examples)
	assert.GreaterOrEqual(t, metrics.Epochs, 1)
	assert.GreaterOrEqual(t, metrics.Accuracy, 0.5)
}

func TestTrainerLearnsSeparation(t *testing.T) {
	s := recordFixture(t)
	classifier := NewClassifier()
	trainer := NewTrainer(classifier)

	_, err := trainer.Train(s)
	require.NoError(t, err)

	var ex Extractor
	strong, err := ex.Extract(s, "4001", "MATH101", false)
	require.NoError(t, err)
	weak, err := ex.Extract(s, "5001", "MATH101", false)
	require.NoError(t, err)

	pStrong, err := classifier.PredictProba(strong)
	require.NoError(t, err)
	pWeak, err := classifier.PredictProba(weak)
	require.NoError(t, err)

	assert.Greater(t, pStrong, pWeak)
}

func TestTrainerRetrainReplacesModel(t *testing.T) {
	s := recordFixture(t)
	classifier := NewClassifier()
	trainer := NewTrainer(classifier)

	first, err := trainer.Train(s)
	require.NoError(t, err)

	second, err := trainer.Train(s)
	require.NoError(t, err)

	assert.True(t, classifier.Trained())
	assert.Equal(t, first.Examples, second.Examples)
}
