package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/keen-eye/survey-engine/internal/models"
	"github.com/keen-eye/survey-engine/internal/scoring"
)

func sampleAnswers() []models.Answer {
	return []models.Answer{
		{QuestionID: 1, Category: models.CategoryProduct, ImageID: "product-01", LeftImage: "720p", RightImage: "1080p", CorrectAnswer: models.SideRight, UserAnswer: models.SideRight, ResponseTimeMs: 1200},
		{QuestionID: 2, Category: models.CategoryHuman, ImageID: "human-01", LeftImage: "4k", RightImage: "1440p", CorrectAnswer: models.SideLeft, UserAnswer: models.SideRight, ResponseTimeMs: 2300},
		{QuestionID: 3, Category: models.CategoryProduct, ImageID: "product-01", LeftImage: "1080p", RightImage: "720p", CorrectAnswer: models.SideLeft, UserAnswer: models.SideLeft, ResponseTimeMs: 900, IsRetest: true},
	}
}

func TestWriteWorkbook(t *testing.T) {
	answers := sampleAnswers()
	completed := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	result, err := scoring.Score(answers, models.DeviceInfo{DeviceType: models.DeviceDesktop, ScreenResolution: "1920x1080"}, completed)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, "offline-1700000000000", result, answers))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetSummary, SheetDetectionRates, SheetAnswers}, f.GetSheetList())

	session, err := f.GetCellValue(SheetSummary, "B2")
	require.NoError(t, err)
	assert.Equal(t, "offline-1700000000000", session)

	score, err := f.GetCellValue(SheetSummary, "B3")
	require.NoError(t, err)
	assert.Equal(t, "67", score)

	rates, err := f.GetRows(SheetDetectionRates)
	require.NoError(t, err)
	require.Len(t, rates, 3)
	assert.Equal(t, "1440p-4k", rates[1][0])
	assert.Equal(t, "720p-1080p", rates[2][0])

	rows, err := f.GetRows(SheetAnswers)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"2", "human", "human-01", "4k", "1440p", "left", "right", "FALSE", "2300", "FALSE"}, rows[2])
}

func TestBuildSummaryListsCategories(t *testing.T) {
	answers := sampleAnswers()
	result, err := scoring.Score(answers, models.DeviceInfo{}, time.Now())
	require.NoError(t, err)

	f, err := Build("s1", result, answers)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetSummary)
	require.NoError(t, err)

	var labels []string
	for _, row := range rows {
		labels = append(labels, row[0])
	}
	assert.Contains(t, labels, "Category human")
	assert.Contains(t, labels, "Category nature")
	assert.Contains(t, labels, "Category product")
	assert.Contains(t, labels, "Consistency")
}
