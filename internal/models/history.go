package models

// HistorySource tags which collection a merged academic history row came from.
type HistorySource string

// Merge sources. The merged view is a union, never a join: the same logical
// course may legitimately appear once per source.
const (
	HistorySourceCurrent    HistorySource = "current"
	HistorySourcePassed     HistorySource = "passed"
	HistorySourceEnrollment HistorySource = "enrollment"
)

// CourseOutcome classifies a course enrollment row for display.
type CourseOutcome string

// Possible course outcomes.
const (
	OutcomePassed     CourseOutcome = "passed"
	OutcomeFailed     CourseOutcome = "failed"
	OutcomeInProgress CourseOutcome = "in_progress"
)

// HistoryRow is one entry of the merged academic history. Key is the
// composite identity {source}-{naturalId}-{index}, unique across sources even
// when natural ids collide.
type HistoryRow struct {
	Key        string                 `json:"key"`
	Source     HistorySource          `json:"source"`
	Outcome    CourseOutcome          `json:"outcome"`
	Semester   string                 `json:"semester"`
	Enrollment CourseEnrollmentDetail `json:"enrollment"`
}

// CourseStats summarises the course enrollment collection.
type CourseStats struct {
	Total        int     `json:"total"`
	Active       int     `json:"active"`
	TotalCredits int     `json:"total_credits"`
	AverageGrade float64 `json:"average_grade"`
}

// GradeStats summarises graded records only.
type GradeStats struct {
	TotalGraded  int     `json:"total_graded"`
	Average      float64 `json:"average"`
	Highest      float64 `json:"highest"`
	Lowest       float64 `json:"lowest"`
	TotalCredits int     `json:"total_credits"`
	GPA          float64 `json:"gpa"`
}

// StudyHistoryStats summarises the merged study history.
type StudyHistoryStats struct {
	Total         int     `json:"total"`
	Passed        int     `json:"passed"`
	Failed        int     `json:"failed"`
	TotalCredits  int     `json:"total_credits"`
	AverageGrade  float64 `json:"average_grade"`
	TotalAttempts int     `json:"total_attempts"`
}

// HistoryStudentSection groups the raw per-student records in the payload.
type HistoryStudentSection struct {
	CourseEnrollments []CourseEnrollmentDetail `json:"courseEnrollments"`
	Grades            []LegacyGrade            `json:"grades"`
}

// AcademicHistory is the aggregated snapshot for one student.
type AcademicHistory struct {
	CurrentEnrollments []CourseEnrollmentDetail `json:"currentEnrollments"`
	PassedSubjects     []CourseEnrollmentDetail `json:"passedSubjects"`
	ExamRegistrations  []ExamRegistrationDetail `json:"examRegistrations"`
	Student            HistoryStudentSection    `json:"student"`
	Merged             []HistoryRow             `json:"merged"`
	CourseStats        CourseStats              `json:"courseStats"`
	GradeStats         GradeStats               `json:"gradeStats"`
	StudyStats         StudyHistoryStats        `json:"studyStats"`
}
