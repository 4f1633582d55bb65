package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/campusdesk/attendance/core"
	"github.com/campusdesk/attendance/core/attendance"
	"github.com/campusdesk/attendance/services/email"
	"github.com/campusdesk/attendance/tests"
)

var jan8 = core.NewDate(2024, time.January, 8)

const percentagePath = "/v1/attendance/percentage?branch=cse&academicYear=2021&semester=5&section=A" +
	"&from_date=2024-01-01&to_date=2024-01-31&entry=Entry1"

func attendanceBody(subject, date string, marks ...string) []byte {
	return []byte(`{"branch": "CSE", "section": "A", "batchYear": 2021, "semester": 5, "subject_code": "` + subject +
		`", "attendance_date": "` + date + `", "attendanceData": [` + strings.Join(marks, ",") + `]}`)
}

func markJSON(roll, status string) string {
	return `{"rollNumber": "` + roll + `", "record": "` + status + `", "period": 1}`
}

func setupAttendance(t *testing.T) academicFixture {
	f := setupAcademic(t)
	testutil.CreateSubject(t, f.acadRepo, "CS301", "Compilers", "CSE", 2021, 5)
	testutil.CreateSubject(t, f.acadRepo, "CS302", "Networks", "CSE", 2021, 5)
	return f
}

func subjectPercentage(roll string, present, total int) attendance.SubjectPercentage {
	return attendance.SubjectPercentage{Header: attendance.Header{
		Branch:       "CSE",
		AcademicYear: 2021,
		Semester:     5,
		Section:      "A",
		SubjectCode:  "CS301",
		RollNumber:   roll,
		StudentName:  "Student " + roll,
		PresentCount: present,
		TotalCount:   total,
		Percentage:   attendance.NewPercent(present, total),
		FromDate:     core.NewDate(2024, time.January, 1),
		ToDate:       core.NewDate(2024, time.January, 31),
		Entry:        attendance.Entry1,
	}}
}

func Test_attendanceApi_record(t *testing.T) {
	f := setupAttendance(t)

	tests := []httpTest{
		{
			name: "students cannot record", method: http.MethodPost, path: "/v1/attendance", token: f.studentToken,
			body: attendanceBody("CS301", "2024-01-08", markJSON("21CS1", "P")), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
		{
			name: "missing subject", method: http.MethodPost, path: "/v1/attendance", token: f.facultyToken,
			body: attendanceBody("", "2024-01-08", markJSON("21CS1", "P")), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"subject_code": "this field is required"}`),
		},
		{
			name: "invalid status", method: http.MethodPost, path: "/v1/attendance", token: f.facultyToken,
			body: attendanceBody("CS301", "2024-01-08", markJSON("21CS1", "X")), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"attendanceData[0].record": "record must be P (present) or A (absent)"}`),
		},
		{
			name: "recorded", method: http.MethodPost, path: "/v1/attendance", token: f.facultyToken,
			body:     attendanceBody("cs301", "2024-01-08", markJSON("21CS1", "p"), markJSON("21CS2", "A")),
			wantCode: http.StatusCreated, wantData: []byte(`{"message": "attendance saved successfully", "inserted": 2}`),
		},
	}
	for _, tt := range tests {
		tt.run(t, f.testApp)
	}

	t.Run("duplicate names the roll number", func(t *testing.T) {
		body := attendanceBody("CS301", "2024-01-08", markJSON("21CS10", "P"), markJSON("21CS2", "P"))
		rec := f.do(newAuthRequest(http.MethodPost, "/v1/attendance", f.facultyToken, body))
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var herr httpErr
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &herr))
		assert.Contains(t, herr.Error, "21CS2")

		// nothing of the rejected batch is stored
		rows, err := f.attRepo.ExistingRecords(ctx, []attendance.Record{{RollNumber: "21CS10", SubjectCode: "CS301", Date: jan8, Period: 1}})
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("correction", func(t *testing.T) {
		body := attendanceBody("CS301", "2024-01-08", markJSON("21CS2", "P"))
		rec := f.do(newAuthRequest(http.MethodPut, "/v1/attendance", f.facultyToken, body))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"message": "attendance corrected successfully", "inserted": 1, "replaced": 1}`, rec.Body.String())
	})
}

func Test_attendanceApi_percentages(t *testing.T) {
	f := setupAttendance(t)
	base := attendance.Record{Branch: "CSE", Section: "A", BatchYear: 2021, Semester: 5, SubjectCode: "CS301"}
	testutil.InsertRecords(t, f.attRepo, base, jan8, map[string]attendance.Status{
		"21CS1": attendance.Present, "21CS2": attendance.Absent, "21CS10": attendance.Present,
	})
	testutil.InsertRecords(t, f.attRepo, base, core.DateOf(jan8.AddDate(0, 0, 1)), map[string]attendance.Status{
		"21CS1": attendance.Present, "21CS2": attendance.Present,
	})

	tests := []httpTest{
		{name: "auth required", path: percentagePath, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "missing dates", path: "/v1/attendance/percentage?branch=CSE&academicYear=2021&semester=5&section=A&entry=Entry1",
			token: f.facultyToken, wantCode: http.StatusBadRequest,
			wantData: []byte(`{"from_date": "this field is required", "to_date": "this field is required"}`),
		},
		{
			name: "reversed dates", token: f.facultyToken, wantCode: http.StatusBadRequest,
			path:     "/v1/attendance/percentage?branch=CSE&academicYear=2021&semester=5&section=A&entry=Entry1&from_date=2024-01-31&to_date=2024-01-01",
			wantData: []byte(`{"to_date": "to_date must not be before the start date"}`),
		},
		{
			name: "subject", path: percentagePath + "&subject_code=CS301", token: f.facultyToken,
			wantData: marchallList(t, subjectPercentage("21CS1", 2, 2), subjectPercentage("21CS2", 1, 2), subjectPercentage("21CS10", 1, 1)),
		},
		{
			name: "no marks", path: percentagePath + "&subject_code=CS302", token: f.facultyToken,
			wantData: marchallList(t),
		},
	}
	for _, tt := range tests {
		tt.run(t, f.testApp)
	}

	t.Run("overall", func(t *testing.T) {
		rec := f.do(newAuthRequest(http.MethodGet, percentagePath, f.facultyToken))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got []map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 3)
		assert.Equal(t, "21CS2", got[1]["roll_number"])
		assert.Equal(t, attendance.AllSubjects, got[1]["subject_code"])
		assert.Equal(t, "50.00", got[1]["percentage"])
		assert.Len(t, got[1]["subject_breakdown"], 1)
	})

	t.Run("threshold", func(t *testing.T) {
		rec := f.do(newAuthRequest(http.MethodGet, "/v1/attendance/threshold?branch=cse", f.facultyToken))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var rows []attendance.ThresholdRow
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
		require.Len(t, rows, 1)
		assert.Equal(t, "21CS2", rows[0].RollNumber)
		assert.Equal(t, "50.00", rows[0].Percentage.String())
	})

	t.Run("notify requires admin", func(t *testing.T) {
		rec := f.do(newAuthRequest(http.MethodPost, "/v1/attendance/threshold/notify", f.facultyToken))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("notify", func(t *testing.T) {
		emailsvc.ResetSentMessages()
		rec := f.do(newAuthRequest(http.MethodPost, "/v1/attendance/threshold/notify?branch=CSE", f.adminToken))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"reported": 1}`, rec.Body.String())

		msgs := emailsvc.LastSentMessages()
		require.Len(t, msgs, 1)
		require.Len(t, msgs[0].To, 2)
		assert.Equal(t, "office@example.com", msgs[0].To[0].Address)
		assert.Equal(t, "admin@example.com", msgs[0].To[1].Address)
		assert.True(t, msgs[0].HasAttachments())
	})

	t.Run("export", func(t *testing.T) {
		rec := f.do(newAuthRequest(http.MethodGet, strings.Replace(percentagePath, "/percentage?", "/percentage/export?", 1)+"&subject_code=CS301", f.facultyToken))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "attendance-CSE-A-CS301-Entry1.xlsx")

		wb, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		defer wb.Close()
		rows, err := wb.GetRows(wb.GetSheetName(0))
		require.NoError(t, err)
		require.Len(t, rows, 4)
		assert.Equal(t, "Roll Number", rows[0][0])
		assert.Equal(t, "21CS1", rows[1][0])
	})

	t.Run("student history", func(t *testing.T) {
		rec := f.do(newAuthRequest(http.MethodGet, "/v1/students/21CS2/percentages", f.studentToken))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got []map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 2) // ALL, then CS301
		assert.Equal(t, attendance.AllSubjects, got[0]["subject_code"])
		assert.Equal(t, "CS301", got[1]["subject_code"])

		rec = f.do(newAuthRequest(http.MethodGet, "/v1/students/21CS2/attendance", f.studentToken))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})
}

func Test_attendanceApi_views(t *testing.T) {
	f := setupAttendance(t)
	base := attendance.Record{Branch: "CSE", Section: "A", BatchYear: 2021, Semester: 5, SubjectCode: "CS301"}
	testutil.InsertRecords(t, f.attRepo, base, jan8, map[string]attendance.Status{
		"21CSR1": attendance.Absent, "21CS10": attendance.Present, "21CS2": attendance.Present,
	})
	base.Period = 5
	testutil.InsertRecords(t, f.attRepo, base, jan8, map[string]attendance.Status{"21CS1": attendance.Absent})

	view := func(roll string, status attendance.Status, period int) attendance.RecordView {
		return attendance.RecordView{
			RollNumber: roll, StudentName: "Student " + roll, Branch: "CSE", Section: "A", BatchYear: 2021,
			SubjectCode: "CS301", Date: jan8, Period: period, Status: status,
		}
	}
	r1, s10, s2 := view("21CSR1", attendance.Absent, 1), view("21CS10", attendance.Present, 1), view("21CS2", attendance.Present, 1)
	an := view("21CS1", attendance.Absent, 5)

	tests := []httpTest{
		{name: "day requires date", path: "/v1/attendance/day", token: f.facultyToken, wantCode: http.StatusBadRequest},
		{name: "day", path: "/v1/attendance/day?date=2024-01-08&entry=FN", token: f.facultyToken, wantData: marchallList(t, s2, s10, r1)},
		{name: "day AN", path: "/v1/attendance/day?date=2024-01-08&entry=AN", token: f.facultyToken, wantData: marchallList(t, an)},
		{name: "day other branch", path: "/v1/attendance/day?date=2024-01-08&branch=ECE", token: f.facultyToken, wantData: marchallList(t)},
		{
			name: "month invalid", path: "/v1/attendance/month?month=2024-13", token: f.facultyToken,
			wantCode: http.StatusBadRequest, wantData: []byte(`{"month": "month must be of form YYYY-MM"}`),
		},
		{name: "month", path: "/v1/attendance/month?month=2024-01", token: f.facultyToken, wantData: marchallList(t, s2, s10, r1)},
		{
			name: "duration", path: "/v1/attendance/duration?from=2024-01-01&to=2024-01-31&branch=CSE", token: f.facultyToken,
			wantData: marchallList(t, an, s2, s10, r1),
		},
		{
			name: "subject", path: "/v1/attendance/subject?branch=CSE&subject=cs301&section=A&date=2024-01-08", token: f.facultyToken,
			wantData: marchallList(t, s2, s10, r1),
		},
		{
			name: "subject today", path: "/v1/attendance/subject?branch=CSE&subject=CS301&section=A", token: f.facultyToken,
			wantData: marchallList(t),
		},
	}
	for _, tt := range tests {
		tt.run(t, f.testApp)
	}
}
