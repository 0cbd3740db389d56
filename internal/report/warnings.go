// Package report exports warnings and train summaries as spreadsheets.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"axle-monitor/core/internal/domain"
)

const (
	WarningsSheet = "Warnings"
	TrainsSheet   = "Trains"
)

var warningHeader = []string{
	"Train", "Device", "Location", "Date", "Time", "Direction",
	"Coach", "Axle", "Sensor", "Side", "Sensor No", "Temperature", "Severity",
}

var trainHeader = []string{
	"Train", "Device", "Location", "Date", "Time", "Direction",
	"Axles", "Coaches", "Ambient", "Warnings",
}

// WriteWorkbook writes a workbook with one sheet of warnings and one of
// train summaries.
func WriteWorkbook(w io.Writer, warnings []domain.WarningEvent, trains []domain.TrainSummary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", WarningsSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(TrainsSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	rows := make([][]interface{}, 0, len(warnings))
	for _, ev := range warnings {
		rows = append(rows, []interface{}{
			ev.TrainID, ev.Device.DeviceKey, ev.Device.Location,
			deref(ev.DateTime.Date), deref(ev.DateTime.Time), string(ev.Direction),
			ev.CoachLabel(), ev.AxleNumber, string(ev.SensorGroup), string(ev.Side),
			ev.SensorIndex, ev.Temperature, string(ev.Severity),
		})
	}
	if err := writeSheet(f, WarningsSheet, warningHeader, rows, headerStyle); err != nil {
		return err
	}

	rows = rows[:0]
	for _, s := range trains {
		var ambient interface{} = ""
		if s.AmbientTemperature != nil {
			ambient = *s.AmbientTemperature
		}
		rows = append(rows, []interface{}{
			s.TrainID, s.Device.DeviceKey, s.Device.Location,
			deref(s.LastKnownDateTime.Date), deref(s.LastKnownDateTime.Time), string(s.Direction),
			s.TotalAxles, s.TotalCoaches, ambient, s.WarningCount,
		})
	}
	if err := writeSheet(f, TrainsSheet, trainHeader, rows, headerStyle); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]interface{}, style int) error {
	headerRow := make([]interface{}, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headerRow); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
