package types

import "time"

// Student is an academic record holder. Grades maps course code to the
// recorded grade on the 0-5 scale; CourseIDs preserves enrollment order.
type Student struct {
	ID        string             `json:"id"`
	FirstName string             `json:"first_name"`
	LastName  string             `json:"last_name"`
	Email     string             `json:"email"`
	BirthDate string             `json:"birth_date"`
	CourseIDs []string           `json:"course_ids"`
	Grades    map[string]float64 `json:"grades"`
}

// FullName returns the display name used in reports and risk listings.
func (s *Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

// Course groups enrolled students under a code.
type Course struct {
	Code       string   `json:"code"`
	Name       string   `json:"name"`
	StudentIDs []string `json:"student_ids"`
}

// Enrollment is one (student, course, grade) fact in the historical record.
type Enrollment struct {
	StudentID  string  `json:"student_id"`
	CourseCode string  `json:"course_code"`
	Grade      float64 `json:"grade"`
}

// Passed reports whether the enrollment grade clears the pass threshold.
func (e Enrollment) Passed() bool { return e.Grade >= PassThreshold }

// PassThreshold is the minimum passing grade on the 0-5 scale.
const PassThreshold = 3.0

// PredictionFeatures echoes the interpretable inputs behind a prediction.
type PredictionFeatures struct {
	StudentAverage float64 `json:"student_average"`
	NumCourses     float64 `json:"num_courses"`
	CourseAverage  float64 `json:"course_average"`
	CoursePassRate float64 `json:"course_pass_rate"`
}

// PredictionResult is a single pass/fail prediction for a (student, course)
// pair. Label is "pass" iff Probability >= 0.5; Confidence is the distance of
// Probability from the threshold mapped onto [0.5, 1].
type PredictionResult struct {
	CourseCode  string             `json:"course_code,omitempty"`
	CourseName  string             `json:"course_name,omitempty"`
	Probability float64            `json:"probability"`
	Label       string             `json:"label"`
	Confidence  float64            `json:"confidence"`
	Features    PredictionFeatures `json:"features"`
}

// RiskEntry flags one enrolled (student, course) pair whose predicted pass
// probability fell below the caller's threshold.
type RiskEntry struct {
	StudentID    string  `json:"student_id"`
	StudentName  string  `json:"student_name"`
	CourseCode   string  `json:"course_code"`
	CourseName   string  `json:"course_name"`
	Probability  float64 `json:"probability"`
	CurrentGrade float64 `json:"current_grade"`
}

// RecommendationEntry ranks a course the student is not yet enrolled in.
type RecommendationEntry struct {
	CourseCode  string  `json:"course_code"`
	CourseName  string  `json:"course_name"`
	Probability float64 `json:"probability"`
	Difficulty  string  `json:"difficulty"`
}

// Skipped records one item excluded from a best-effort sweep and why, so
// partial failures stay visible instead of vanishing into logs.
type Skipped struct {
	StudentID  string `json:"student_id,omitempty"`
	CourseCode string `json:"course_code,omitempty"`
	Reason     string `json:"reason"`
}

// TrainingMetrics reports validation performance of a completed training run.
type TrainingMetrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	ValLoss   float64 `json:"val_loss"`
	Epochs    int     `json:"epochs"`
	Examples  int     `json:"examples"`
}

// TrainingRun is one audit-log row for a completed training run.
type TrainingRun struct {
	ID         string          `json:"id"`
	Metrics    TrainingMetrics `json:"metrics"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}
