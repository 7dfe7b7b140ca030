package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func f64(v float64) *float64 { return &v }

func TestComputeWeightedScore(t *testing.T) {
	score := computeWeightedScore(f64(100), f64(100), f64(100), f64(100))
	assert.Equal(t, 100.0, score)

	score = computeWeightedScore(f64(80), f64(70), f64(60), f64(90))
	// 8 + 14 + 18 + 36 = 76
	assert.Equal(t, 76.0, score)
}

func TestComputeWeightedScoreMissingComponents(t *testing.T) {
	score := computeWeightedScore(nil, nil, nil, f64(100))
	assert.Equal(t, 40.0, score)

	score = computeWeightedScore(nil, nil, nil, nil)
	assert.Equal(t, 0.0, score)
}

func TestScoreToGrade(t *testing.T) {
	cases := []struct {
		score float64
		grade int
	}{
		{100, 10},
		{91, 10},
		{90, 9},
		{81, 9},
		{80, 8},
		{71, 8},
		{70, 7},
		{61, 7},
		{60, 6},
		{51, 6},
		{50, 5},
		{0, 5},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.grade, scoreToGrade(tc.score), "score %v", tc.score)
	}
}

func TestIsPassingGrade(t *testing.T) {
	assert.False(t, isPassingGrade(5))
	assert.True(t, isPassingGrade(6))
	assert.True(t, isPassingGrade(10))
}

func TestConvertGradeToNumber(t *testing.T) {
	assert.Equal(t, 4.0, convertGradeToNumber("A+"))
	assert.Equal(t, 4.0, convertGradeToNumber("a"))
	assert.Equal(t, 3.3, convertGradeToNumber("B+"))
	assert.Equal(t, 0.0, convertGradeToNumber("F"))
	assert.Equal(t, 8.5, convertGradeToNumber("8.5"))
	assert.Equal(t, 9.0, convertGradeToNumber(" 9 "))
	assert.Equal(t, 0.0, convertGradeToNumber("excellent"))
}

func TestSemesterLabel(t *testing.T) {
	assert.Equal(t, "Summer 2024", semesterLabel(time.Date(2024, time.May, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "Summer 2024", semesterLabel(time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "Summer 2024", semesterLabel(time.Date(2024, time.August, 31, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "Winter 2024/2025", semesterLabel(time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "Winter 2024/2025", semesterLabel(time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "Winter 2024/2025", semesterLabel(time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)))
}
