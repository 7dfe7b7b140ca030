package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Weighted grade component shares on the 0-100 scale.
const (
	attendanceWeight  = 0.10
	assignmentsWeight = 0.20
	midtermWeight     = 0.30
	finalWeight       = 0.40
)

// passingGrade is the lowest grade token counted as a pass.
const passingGrade = 6

// computeWeightedScore combines the four partial components into a rounded
// 0-100 score. Missing components count as zero.
func computeWeightedScore(attendance, assignments, midterm, final *float64) float64 {
	val := func(p *float64) float64 {
		if p == nil {
			return 0
		}
		return *p
	}
	score := attendanceWeight*val(attendance) +
		assignmentsWeight*val(assignments) +
		midtermWeight*val(midterm) +
		finalWeight*val(final)
	return math.Round(score)
}

// scoreToGrade maps a 0-100 weighted score to the 5-10 academic grade token.
// Anything below 51 is a failing 5.
func scoreToGrade(score float64) int {
	switch {
	case score >= 91:
		return 10
	case score >= 81:
		return 9
	case score >= 71:
		return 8
	case score >= 61:
		return 7
	case score >= 51:
		return 6
	default:
		return 5
	}
}

// isPassingGrade reports whether the grade token counts as a pass.
func isPassingGrade(grade int) bool {
	return grade >= passingGrade
}

// convertGradeToNumber translates a stored grade string to a numeric value
// for averaging. Letter grades use the conventional 4.0 table, numeric
// strings pass through, and anything unparseable contributes zero.
func convertGradeToNumber(grade string) float64 {
	letterTable := map[string]float64{
		"A+": 4.0, "A": 4.0, "A-": 3.7,
		"B+": 3.3, "B": 3.0, "B-": 2.7,
		"C+": 2.3, "C": 2.0, "C-": 1.7,
		"D+": 1.3, "D": 1.0, "D-": 0.7,
		"F": 0.0,
	}
	normalized := strings.ToUpper(strings.TrimSpace(grade))
	if value, ok := letterTable[normalized]; ok {
		return value
	}
	if value, err := strconv.ParseFloat(normalized, 64); err == nil {
		return value
	}
	return 0.0
}

// semesterLabel derives the display semester from a timestamp. Months
// February through August belong to the summer term of that calendar year;
// September through January belong to the winter term of the academic year
// starting in September.
func semesterLabel(ts time.Time) string {
	year := ts.Year()
	switch month := ts.Month(); {
	case month >= time.February && month <= time.August:
		return fmt.Sprintf("Summer %d", year)
	case month == time.January:
		return fmt.Sprintf("Winter %d/%d", year-1, year)
	default:
		return fmt.Sprintf("Winter %d/%d", year, year+1)
	}
}

// round1 rounds to one decimal. Grade means in the stats payloads use one
// decimal; only the GPA keeps two.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// round2 rounds to two decimals for GPA style values.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
