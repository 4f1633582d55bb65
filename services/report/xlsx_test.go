package reportsvc

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/campusdesk/attendance/core"
	"github.com/campusdesk/attendance/core/attendance"
)

func readRows(t *testing.T, buf *bytes.Buffer) [][]string {
	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	return rows
}

func TestExportPercentages(t *testing.T) {
	key := attendance.Key{
		Branch: "CSE", AcademicYear: 2021, Semester: 5, Section: "A", SubjectCode: attendance.AllSubjects,
		FromDate: core.NewDate(2024, time.January, 1), ToDate: core.NewDate(2024, time.January, 31), Entry: attendance.Entry1,
	}
	marks := []attendance.Mark{
		{RollNumber: "21CS1", StudentName: "Anu", SubjectCode: "CS302", Status: attendance.Present},
		{RollNumber: "21CS1", StudentName: "Anu", SubjectCode: "CS301", Status: attendance.Absent},
		{RollNumber: "21CS2", StudentName: "Bala", SubjectCode: "CS301", Status: attendance.Present},
	}

	var buf bytes.Buffer
	require.NoError(t, NewXLSXExporter().ExportPercentages(&buf, key, attendance.Aggregate(key, marks)))

	rows := readRows(t, &buf)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Roll Number", "Student Name", "CS301", "CS302", "Present", "Total", "Percentage"}, rows[0])
	assert.Equal(t, []string{"21CS1", "Anu", "0.00", "100.00", "1", "2", "50.00"}, rows[1])
	assert.Equal(t, []string{"21CS2", "Bala", "100.00", "", "1", "1", "100.00"}, rows[2])
}

func TestExportThreshold(t *testing.T) {
	rows := []attendance.ThresholdRow{{
		RollNumber: "21CS2", StudentName: "Bala", Branch: "CSE", Section: "A", AcademicYear: 2021, Semester: 5,
		Percentage: attendance.PercentFromFloat(61.5),
		FromDate:   core.NewDate(2024, time.January, 1), ToDate: core.NewDate(2024, time.January, 31), Entry: attendance.Entry1,
	}}

	var buf bytes.Buffer
	require.NoError(t, NewXLSXExporter().ExportThreshold(&buf, 75, rows))

	got := readRows(t, &buf)
	require.Len(t, got, 4)
	assert.Equal(t, "Roll Number", got[0][0])
	assert.Equal(t, []string{"21CS2", "Bala", "CSE", "A", "2021", "5", "61.50", "2024-01-01", "2024-01-31", "Entry1"}, got[1])
	assert.Equal(t, []string{"Threshold", "75.00"}, got[3])
}
