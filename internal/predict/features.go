package predict

import (
	"github.com/siga-analytics/siga-predict/internal/types"
)

// RecordReader is the narrow read-only view of the academic record store the
// predictive core consumes.
type RecordReader interface {
	StudentByID(id string) (*types.Student, error)
	CourseByCode(code string) (*types.Course, error)
	Enrollments() []types.Enrollment
	PassFailCounts(courseCode string) (passed, failed int)
}

// RecordBrowser extends RecordReader with population enumeration, needed by
// the whole-population sweeps.
type RecordBrowser interface {
	RecordReader
	Students() []*types.Student
	Courses() []*types.Course
}

// Feature order is a fixed contract. Training-time construction and
// inference-time construction must index identically; these constants are the
// only way in or out of a FeatureVector.
const (
	FeatStudentAverage = iota
	FeatNumCourses
	FeatCourseAverage
	FeatCoursePassRate
	FeatCourseSize

	NumFeatures
)

// Priors used when a component has no history to aggregate. The student prior
// sits below the pass threshold on purpose; the course priors are neutral.
const (
	defaultStudentAverage = 2.5
	defaultCourseAverage  = 3.0
	defaultPassRate       = 0.5
)

// FeatureVector is one classifier input row.
type FeatureVector [NumFeatures]float64

// Interpretable returns the four non-count features echoed in prediction
// results.
func (fv FeatureVector) Interpretable() types.PredictionFeatures {
	return types.PredictionFeatures{
		StudentAverage: fv[FeatStudentAverage],
		NumCourses:     fv[FeatNumCourses],
		CourseAverage:  fv[FeatCourseAverage],
		CoursePassRate: fv[FeatCoursePassRate],
	}
}

// Extractor derives feature vectors from the record store's current state.
type Extractor struct{}

// Extract builds the feature vector for a (student, course) pair.
//
// excludeSelf strips the target course's own grade from the student-average
// component. It must be true when building training examples (the label is
// derived from that same grade) and false for live inference on an enrolled
// student. It is the only anti-leakage control in the pipeline.
func (Extractor) Extract(r RecordReader, studentID, courseCode string, excludeSelf bool) (FeatureVector, error) {
	var fv FeatureVector

	student, err := r.StudentByID(studentID)
	if err != nil {
		return fv, err
	}
	if _, err := r.CourseByCode(courseCode); err != nil {
		return fv, err
	}

	sum, count := 0.0, 0
	for code, grade := range student.Grades {
		if excludeSelf && code == courseCode {
			continue
		}
		sum += grade
		count++
	}
	if count > 0 {
		fv[FeatStudentAverage] = sum / float64(count)
	} else {
		fv[FeatStudentAverage] = defaultStudentAverage
	}

	fv[FeatNumCourses] = float64(len(student.CourseIDs))

	courseSum, courseCount := 0.0, 0
	for _, e := range r.Enrollments() {
		if e.CourseCode == courseCode {
			courseSum += e.Grade
			courseCount++
		}
	}
	if courseCount > 0 {
		fv[FeatCourseAverage] = courseSum / float64(courseCount)
	} else {
		fv[FeatCourseAverage] = defaultCourseAverage
	}

	passed, failed := r.PassFailCounts(courseCode)
	total := passed + failed
	if total > 0 {
		fv[FeatCoursePassRate] = float64(passed) / float64(total)
	} else {
		fv[FeatCoursePassRate] = defaultPassRate
	}
	fv[FeatCourseSize] = float64(total)

	return fv, nil
}
