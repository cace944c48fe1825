// Package export renders a scored session as an xlsx workbook.
package export

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/xuri/excelize/v2"

	"github.com/keen-eye/survey-engine/internal/models"
)

// Sheet names, in workbook order
const (
	SheetSummary        = "Summary"
	SheetDetectionRates = "DetectionRates"
	SheetAnswers        = "Answers"
)

// WriteWorkbook writes the result and its answers to w
func WriteWorkbook(w io.Writer, sessionID string, result *models.Result, answers []models.Answer) error {
	f, err := Build(sessionID, result, answers)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// Build assembles the workbook in memory
func Build(sessionID string, result *models.Result, answers []models.Answer) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{SheetDetectionRates, SheetAnswers} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	steps := []func(*excelize.File) error{
		func(f *excelize.File) error { return writeSummary(f, sessionID, result) },
		func(f *excelize.File) error { return writeRates(f, result.Analysis.DetectionRates) },
		func(f *excelize.File) error { return writeAnswers(f, answers) },
	}
	for _, step := range steps {
		if err := step(f); err != nil {
			f.Close()
			return nil, err
		}
	}

	f.SetActiveSheet(0)
	return f, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func writeSummary(f *excelize.File, sessionID string, r *models.Result) error {
	a := r.Analysis
	rows := [][]any{
		{"Field", "Value"},
		{"Session", sessionID},
		{"Score", r.Score},
		{"Percentile", r.Percentile},
		{"Top percent", r.TopPercent},
		{"Grade", r.Grade.Emoji + " " + r.Grade.Text},
		{"Recommendation", string(r.Recommendation)},
		{"Device", r.DeviceLabel},
		{"Screen", a.DeviceInfo.ScreenResolution},
		{"Total questions", a.TotalQuestions},
		{"Correct", a.CorrectCount},
		{"Accuracy", a.Accuracy},
		{"Consistency", optional(a.ConsistencyScore)},
		{"Retests", a.RetestCount},
		{"Mean response (ms)", a.ResponseTime.Mean},
		{"Median response (ms)", a.ResponseTime.Median},
		{"Completed at", a.CompletedAt.UTC().Format("2006-01-02 15:04:05")},
	}

	for _, cat := range slices.Sorted(maps.Keys(a.CategoryScores)) {
		rows = append(rows, []any{"Category " + string(cat), optional(a.CategoryScores[cat])})
	}

	return writeRows(f, SheetSummary, rows)
}

func writeRates(f *excelize.File, rates map[string]models.DetectionRate) error {
	rows := [][]any{{"Pair", "Accuracy", "Samples", "Avg response (ms)", "CI low", "CI high", "Expected"}}
	for _, key := range slices.Sorted(maps.Keys(rates)) {
		rate := rates[key]
		rows = append(rows, []any{key, rate.Accuracy, rate.SampleSize, rate.AvgResponseTime, rate.CILow, rate.CIHigh, optional(rate.Expected)})
	}
	return writeRows(f, SheetDetectionRates, rows)
}

func writeAnswers(f *excelize.File, answers []models.Answer) error {
	rows := [][]any{{"Question", "Category", "Image", "Left", "Right", "Correct", "Answer", "Is correct", "Response (ms)", "Retest"}}
	for _, a := range answers {
		rows = append(rows, []any{
			a.QuestionID,
			string(a.Category),
			a.ImageID,
			string(a.LeftImage),
			string(a.RightImage),
			string(a.CorrectAnswer),
			string(a.UserAnswer),
			a.IsCorrect(),
			a.ResponseTimeMs,
			a.IsRetest,
		})
	}
	return writeRows(f, SheetAnswers, rows)
}

// optional renders a missing value as an empty cell
func optional(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
