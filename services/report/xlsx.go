// Package reportsvc renders attendance reports as spreadsheets.
package reportsvc

import (
	"io"
	"sort"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/campusdesk/attendance/core/attendance"
)

type xlsxExporter struct{}

var _ attendance.Exporter = (*xlsxExporter)(nil)

// NewXLSXExporter returns an attendance.Exporter writing Excel workbooks.
func NewXLSXExporter() attendance.Exporter {
	return &xlsxExporter{}
}

type sheetWriter struct {
	f     *excelize.File
	sheet string
	row   int
}

func newSheetWriter() *sheetWriter {
	f := excelize.NewFile()
	return &sheetWriter{f: f, sheet: f.GetSheetName(0)}
}

func (sw *sheetWriter) header(cols ...interface{}) error {
	if err := sw.append(cols...); err != nil {
		return err
	}
	style, err := sw.f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating header style")
	}
	last, err := excelize.CoordinatesToCellName(len(cols), sw.row)
	if err != nil {
		return errors.Wrap(err, "styling header")
	}
	return errors.Wrap(sw.f.SetCellStyle(sw.sheet, "A1", last, style), "styling header")
}

func (sw *sheetWriter) append(values ...interface{}) error {
	sw.row++
	cell, err := excelize.CoordinatesToCellName(1, sw.row)
	if err != nil {
		return errors.Wrap(err, "writing row")
	}
	return errors.Wrap(sw.f.SetSheetRow(sw.sheet, cell, &values), "writing row")
}

func (sw *sheetWriter) flush(w io.Writer) error {
	defer func() { _ = sw.f.Close() }()
	return errors.Wrap(sw.f.Write(w), "writing workbook")
}

// ExportPercentages writes one row per student. Overall percentages get one column per subject.
func (e xlsxExporter) ExportPercentages(w io.Writer, key attendance.Key, ps []attendance.Percentage) error {
	sw := newSheetWriter()

	var codes []string
	if key.IsOverall() {
		seen := make(map[string]struct{})
		for _, p := range ps {
			if op, ok := p.(attendance.OverallPercentage); ok {
				for _, share := range op.Breakdown {
					if _, ok := seen[share.SubjectCode]; !ok {
						seen[share.SubjectCode] = struct{}{}
						codes = append(codes, share.SubjectCode)
					}
				}
			}
		}
		sort.Strings(codes)
	}

	header := []interface{}{"Roll Number", "Student Name"}
	for _, code := range codes {
		header = append(header, code)
	}
	header = append(header, "Present", "Total", "Percentage")
	if err := sw.header(header...); err != nil {
		return err
	}

	for _, p := range ps {
		h := p.Head()
		row := []interface{}{h.RollNumber, h.StudentName}
		if len(codes) > 0 {
			shares := make(map[string]string)
			if op, ok := p.(attendance.OverallPercentage); ok {
				for _, share := range op.Breakdown {
					shares[share.SubjectCode] = share.Percentage.String()
				}
			}
			for _, code := range codes {
				row = append(row, shares[code])
			}
		}
		row = append(row, h.PresentCount, h.TotalCount, h.Percentage.String())
		if err := sw.append(row...); err != nil {
			return err
		}
	}
	return sw.flush(w)
}

func (e xlsxExporter) ExportThreshold(w io.Writer, threshold float64, rows []attendance.ThresholdRow) error {
	sw := newSheetWriter()
	err := sw.header(
		"Roll Number", "Student Name", "Branch", "Section", "Academic Year",
		"Semester", "Percentage", "From", "To", "Entry",
	)
	if err != nil {
		return err
	}
	for _, r := range rows {
		err = sw.append(
			r.RollNumber, r.StudentName, r.Branch, r.Section, r.AcademicYear,
			r.Semester, r.Percentage.String(), r.FromDate.String(), r.ToDate.String(), r.Entry,
		)
		if err != nil {
			return err
		}
	}
	if err = sw.append(); err != nil {
		return err
	}
	if err = sw.append("Threshold", attendance.PercentFromFloat(threshold).String()); err != nil {
		return err
	}
	return sw.flush(w)
}
