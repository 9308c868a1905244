package predict

import (
	"log/slog"

	"gonum.org/v1/gonum/mat"

	apperrors "github.com/siga-analytics/siga-predict/internal/errors"
	"github.com/siga-analytics/siga-predict/internal/types"
)

// Trainer builds the training set from the record store and fits the
// classifier. It is the only path that mutates classifier state.
type Trainer struct {
	classifier *Classifier
	extractor  Extractor
}

// NewTrainer creates a trainer bound to one classifier instance
func NewTrainer(classifier *Classifier) *Trainer {
	return &Trainer{classifier: classifier}
}

// Train derives one example per historical enrollment and fits the
// classifier. Features are extracted with the target course's own grade
// excluded from the student average, since the label comes from that grade.
func (t *Trainer) Train(r RecordReader) (types.TrainingMetrics, error) {
	enrollments := r.Enrollments()

	var rows []float64
	var labels []float64

	for _, e := range enrollments {
		fv, err := t.extractor.Extract(r, e.StudentID, e.CourseCode, true)
		if err != nil {
			// Dangling enrollment; the example is unusable but the run is not.
			slog.Warn("skipping enrollment during training-set construction",
				"student_id", e.StudentID,
				"course_code", e.CourseCode,
				"error", err)
			continue
		}

		rows = append(rows, fv[:]...)
		if e.Passed() {
			labels = append(labels, 1)
		} else {
			labels = append(labels, 0)
		}
	}

	if len(labels) < MinTrainingExamples {
		return types.TrainingMetrics{}, apperrors.NewInsufficientDataError(len(labels), MinTrainingExamples)
	}

	X := mat.NewDense(len(labels), NumFeatures, rows)
	return t.classifier.Fit(X, labels)
}
