package predict

import (
	"log/slog"

	apperrors "github.com/siga-analytics/siga-predict/internal/errors"
	"github.com/siga-analytics/siga-predict/internal/types"
)

// Service answers prediction queries against a trained classifier.
type Service struct {
	classifier *Classifier
	extractor  Extractor
}

// NewService creates a prediction service around one classifier instance
func NewService(classifier *Classifier) *Service {
	return &Service{classifier: classifier}
}

// Trained reports whether the underlying classifier can serve predictions.
func (s *Service) Trained() bool { return s.classifier.Trained() }

// Predict estimates the pass probability for one (student, course) pair.
// Live inference keeps the student's full grade history, including the
// target course if already enrolled: there is no label to leak.
func (s *Service) Predict(r RecordReader, studentID, courseCode string) (types.PredictionResult, error) {
	var result types.PredictionResult

	if !s.classifier.Trained() {
		return result, apperrors.NewNotTrainedError()
	}

	fv, err := s.extractor.Extract(r, studentID, courseCode, false)
	if err != nil {
		return result, err
	}

	proba, err := s.classifier.PredictProba(fv)
	if err != nil {
		return result, err
	}

	result = types.PredictionResult{
		CourseCode:  courseCode,
		Probability: proba,
		Label:       labelFor(proba),
		Confidence:  confidenceFor(proba),
		Features:    fv.Interpretable(),
	}

	if course, err := r.CourseByCode(courseCode); err == nil {
		result.CourseName = course.Name
	}

	return result, nil
}

// PredictBatch predicts every course the student is currently enrolled in.
// Per-course failures are logged and collected, never fatal: the batch
// returns whatever succeeded.
func (s *Service) PredictBatch(r RecordReader, studentID string) ([]types.PredictionResult, []types.Skipped, error) {
	student, err := r.StudentByID(studentID)
	if err != nil {
		return nil, nil, err
	}

	results := []types.PredictionResult{}
	skipped := []types.Skipped{}

	for _, courseCode := range student.CourseIDs {
		result, err := s.Predict(r, studentID, courseCode)
		if err != nil {
			slog.Warn("skipping course in batch prediction",
				"student_id", studentID,
				"course_code", courseCode,
				"error", err)
			skipped = append(skipped, types.Skipped{
				StudentID:  studentID,
				CourseCode: courseCode,
				Reason:     err.Error(),
			})
			continue
		}
		results = append(results, result)
	}

	return results, skipped, nil
}

func labelFor(proba float64) string {
	if proba >= 0.5 {
		return "pass"
	}
	return "fail"
}

// confidenceFor maps the probability's distance from the 0.5 threshold onto
// [0.5, 1].
func confidenceFor(proba float64) float64 {
	if proba >= 0.5 {
		return proba
	}
	return 1 - proba
}
