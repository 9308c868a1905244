package predict

import (
	"log/slog"
	"sort"

	"github.com/siga-analytics/siga-predict/internal/types"
)

// DefaultRiskThreshold is the server default; callers may supply their own.
const DefaultRiskThreshold = 0.4

// Difficulty bands for course recommendations.
const (
	DifficultyEasy   = "Easy"
	DifficultyMedium = "Medium"
	DifficultyHard   = "Hard"
)

// Analyzer runs population-wide analyses over prediction service output.
type Analyzer struct {
	service *Service
}

// NewAnalyzer creates an analyzer over one prediction service
func NewAnalyzer(service *Service) *Analyzer {
	return &Analyzer{service: service}
}

// IdentifyAtRisk flags every enrolled (student, course) pair whose predicted
// pass probability falls below threshold, most at-risk first. The sweep is
// best effort: per-pair failures are collected and skipped, never fatal.
func (a *Analyzer) IdentifyAtRisk(r RecordBrowser, threshold float64) ([]types.RiskEntry, []types.Skipped) {
	entries := []types.RiskEntry{}
	skipped := []types.Skipped{}

	for _, student := range r.Students() {
		for _, courseCode := range student.CourseIDs {
			result, err := a.service.Predict(r, student.ID, courseCode)
			if err != nil {
				slog.Warn("skipping pair in at-risk sweep",
					"student_id", student.ID,
					"course_code", courseCode,
					"error", err)
				skipped = append(skipped, types.Skipped{
					StudentID:  student.ID,
					CourseCode: courseCode,
					Reason:     err.Error(),
				})
				continue
			}

			if result.Probability >= threshold {
				continue
			}

			entries = append(entries, types.RiskEntry{
				StudentID:    student.ID,
				StudentName:  student.FullName(),
				CourseCode:   courseCode,
				CourseName:   result.CourseName,
				Probability:  result.Probability,
				CurrentGrade: student.Grades[courseCode],
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Probability < entries[j].Probability
	})

	return entries, skipped
}

// RecommendCourses ranks the courses the student is not yet enrolled in by
// predicted success probability, best matches first. An unknown student
// yields an empty list, indistinguishable from "nothing to recommend";
// callers needing the distinction must check existence first.
func (a *Analyzer) RecommendCourses(r RecordBrowser, studentID string) ([]types.RecommendationEntry, []types.Skipped) {
	entries := []types.RecommendationEntry{}
	skipped := []types.Skipped{}

	student, err := r.StudentByID(studentID)
	if err != nil {
		return entries, skipped
	}

	enrolled := make(map[string]bool, len(student.CourseIDs))
	for _, code := range student.CourseIDs {
		enrolled[code] = true
	}

	for _, course := range r.Courses() {
		if enrolled[course.Code] {
			continue
		}

		result, err := a.service.Predict(r, studentID, course.Code)
		if err != nil {
			slog.Warn("skipping course in recommendation sweep",
				"student_id", studentID,
				"course_code", course.Code,
				"error", err)
			skipped = append(skipped, types.Skipped{
				StudentID:  studentID,
				CourseCode: course.Code,
				Reason:     err.Error(),
			})
			continue
		}

		entries = append(entries, types.RecommendationEntry{
			CourseCode:  course.Code,
			CourseName:  course.Name,
			Probability: result.Probability,
			Difficulty:  difficultyFor(result.Probability),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Probability > entries[j].Probability
	})

	return entries, skipped
}

func difficultyFor(proba float64) string {
	switch {
	case proba > 0.7:
		return DifficultyEasy
	case proba > 0.5:
		return DifficultyMedium
	default:
		return DifficultyHard
	}
}
