package attendance_test

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"log"
	"net/mail"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusdesk/attendance/core"
	"github.com/campusdesk/attendance/core/academic"
	"github.com/campusdesk/attendance/core/attendance"
	"github.com/campusdesk/attendance/fs"
	"github.com/campusdesk/attendance/services/email"
	"github.com/campusdesk/attendance/services/logger"
	"github.com/campusdesk/attendance/services/report"
	"github.com/campusdesk/attendance/storage/database/inmem"
	"github.com/campusdesk/attendance/tests"
)

var (
	ctx    = context.Background()
	conf   *core.Config
	logger core.Logger
)

func TestMain(m *testing.M) {
	conf = &core.Config{AppName: "Attendance", FrontendBaseURL: "http://localhost:3000", TestMode: true}
	conf.Attendance.Threshold = 75
	conf.Attendance.ReportRecipients = []mail.Address{{Name: "Office", Address: "office@example.com"}}

	logger = logsvc.NewRollbarLogger(log.New(ioutil.Discard, "", 0), conf)
	core.ParseEmailTemplates(appfs.FS, logger, true)

	os.Exit(m.Run())
}

type fixture struct {
	svc      attendance.Service
	repo     attendance.Repository
	acadRepo academic.Repository
	tx       core.Transactor
}

func setup(t *testing.T) fixture {
	db := inmemdb.Open()
	acadRepo := inmemdb.NewAcademicRepository(db)
	repo := inmemdb.NewAttendanceRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	emailsvc.ResetSentMessages()

	for _, roll := range []string{"21CS1", "21CS2", "21CS3", "21CS4"} {
		testutil.CreateStudent(t, acadRepo, roll, "Student "+roll, "CSE", "A", 2021)
	}
	testutil.CreateSubject(t, acadRepo, "CS301", "Compilers", "CSE", 2021, 5)
	testutil.CreateSubject(t, acadRepo, "CS302", "Networks", "CSE", 2021, 5)

	return fixture{
		svc:      attendance.NewService(repo, acadRepo, db, mailSvc, reportsvc.NewXLSXExporter(), conf),
		repo:     repo,
		acadRepo: acadRepo,
		tx:       db,
	}
}

var jan8 = core.NewDate(2024, time.January, 8)

func newAttendance(subject string, date core.Date, marks ...attendance.StudentMark) attendance.NewAttendance {
	return attendance.NewAttendance{
		Branch:      "CSE",
		Section:     "A",
		BatchYear:   2021,
		Semester:    5,
		SubjectCode: subject,
		Date:        date,
		Marks:       marks,
	}
}

func mark(roll string, status attendance.Status) attendance.StudentMark {
	return attendance.StudentMark{RollNumber: roll, Status: status, Period: 1}
}

func overallKey() attendance.Key {
	return attendance.Key{
		Branch:       "CSE",
		AcademicYear: 2021,
		Semester:     5,
		Section:      "A",
		SubjectCode:  attendance.AllSubjects,
		FromDate:     core.NewDate(2024, time.January, 1),
		ToDate:       core.NewDate(2024, time.January, 31),
		Entry:        attendance.Entry1,
	}
}

func TestService_Record(t *testing.T) {
	f := setup(t)

	res, err := f.svc.Record(ctx, newAttendance("CS301", jan8, mark("21CS1", attendance.Present), mark("21CS2", attendance.Absent)))
	require.NoError(t, err)
	assert.Equal(t, attendance.RecordResult{Message: "attendance saved successfully", Inserted: 2}, res)

	t.Run("already recorded rejects the whole batch", func(t *testing.T) {
		na := newAttendance("CS301", jan8, mark("21CS3", attendance.Present), mark("21CS2", attendance.Present))
		_, err := f.svc.Record(ctx, na)
		require.Error(t, err)
		assert.True(t, core.IsConflict(err))
		assert.Contains(t, err.Error(), "21CS2")

		existing, err := f.repo.ExistingRecords(ctx, []attendance.Record{{RollNumber: "21CS3", SubjectCode: "CS301", Date: jan8, Period: 1}})
		require.NoError(t, err)
		assert.Empty(t, existing)
	})

	t.Run("same student twice in a batch", func(t *testing.T) {
		na := newAttendance("CS302", jan8, mark("21CS4", attendance.Present), mark("21CS4", attendance.Absent))
		_, err := f.svc.Record(ctx, na)
		assert.True(t, core.IsConflict(err))
	})

	t.Run("other period is not a duplicate", func(t *testing.T) {
		m := mark("21CS1", attendance.Absent)
		m.Period = 2
		res, err := f.svc.Record(ctx, newAttendance("CS301", jan8, m))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Inserted)
	})
}

func TestService_Record_labBatch(t *testing.T) {
	f := setup(t)
	_, err := f.acadRepo.CreateLabBatch(ctx, academic.LabBatch{
		ID: "b1", Branch: "CSE", Section: "A", BatchYear: 2021, Name: "B1", FromRoll: "21CS1", ToRoll: "21CS3",
	})
	require.NoError(t, err)

	na := newAttendance("CS301", jan8,
		attendance.StudentMark{Status: attendance.Absent, Period: 1},
		mark("21CS2", attendance.Present),
	)
	na.IsLab, na.LabBatch = true, "B1"

	res, err := f.svc.Record(ctx, na)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Inserted)

	rows, err := f.svc.DurationView(ctx, attendance.DurationQuery{From: jan8, To: jan8, Branch: "CSE"})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	got := make(map[string]attendance.Status)
	for _, r := range rows {
		got[r.RollNumber] = r.Status
	}
	assert.Equal(t, map[string]attendance.Status{
		"21CS1": attendance.Absent,
		"21CS2": attendance.Present,
		"21CS3": attendance.Absent,
	}, got)

	t.Run("unknown batch", func(t *testing.T) {
		na.LabBatch = "B9"
		na.Date = core.DateOf(jan8.AddDate(0, 0, 1))
		_, err := f.svc.Record(ctx, na)
		assert.True(t, core.IsNotFound(err))
	})
}

func TestService_Correct(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Record(ctx, newAttendance("CS301", jan8, mark("21CS1", attendance.Absent)))
	require.NoError(t, err)

	res, err := f.svc.Correct(ctx, newAttendance("CS301", jan8, mark("21CS1", attendance.Present), mark("21CS2", attendance.Present)))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.Replaced)

	rows, err := f.svc.SubjectView(ctx, attendance.SubjectQuery{Branch: "CSE", Subject: "CS301", Section: "A", Date: jan8})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "21CS1", rows[0].RollNumber)
	assert.Equal(t, attendance.Present, rows[0].Status)
}

func TestService_Percentages(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Record(ctx, newAttendance("CS301", jan8, mark("21CS1", attendance.Present), mark("21CS2", attendance.Absent)))
	require.NoError(t, err)
	_, err = f.svc.Record(ctx, newAttendance("CS302", jan8, mark("21CS1", attendance.Absent), mark("21CS2", attendance.Absent)))
	require.NoError(t, err)

	key := overallKey()
	ps, err := f.svc.Percentages(ctx, key)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, "50.00", ps[0].Head().Percentage.String())
	assert.Equal(t, "0.00", ps[1].Head().Percentage.String())

	cached, err := f.repo.GetPercentages(ctx, key)
	require.NoError(t, err)
	assert.Len(t, cached, 2)

	t.Run("new mark in range invalidates the cache", func(t *testing.T) {
		_, err := f.svc.Record(ctx, newAttendance("CS301", core.DateOf(jan8.AddDate(0, 0, 1)), mark("21CS2", attendance.Present)))
		require.NoError(t, err)

		cached, err := f.repo.GetPercentages(ctx, key)
		require.NoError(t, err)
		assert.Empty(t, cached)

		ps, err := f.svc.Percentages(ctx, key)
		require.NoError(t, err)
		require.Len(t, ps, 2)
		assert.Equal(t, "33.33", ps[1].Head().Percentage.String())
	})

	t.Run("mark out of range keeps the cache", func(t *testing.T) {
		_, err := f.svc.Record(ctx, newAttendance("CS301", core.NewDate(2024, time.February, 1), mark("21CS2", attendance.Present)))
		require.NoError(t, err)

		cached, err := f.repo.GetPercentages(ctx, key)
		require.NoError(t, err)
		assert.Len(t, cached, 2)
	})

	t.Run("no marks", func(t *testing.T) {
		k := key
		k.Section = "B"
		ps, err := f.svc.Percentages(ctx, k)
		require.NoError(t, err)
		assert.NotNil(t, ps)
		assert.Empty(t, ps)
	})
}

func TestService_Percentages_idempotent(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Record(ctx, newAttendance("CS301", jan8, mark("21CS1", attendance.Present), mark("21CS2", attendance.Absent)))
	require.NoError(t, err)
	_, err = f.svc.Record(ctx, newAttendance("CS302", jan8, mark("21CS2", attendance.Present), mark("21CS3", attendance.Absent)))
	require.NoError(t, err)

	for _, subject := range []string{attendance.AllSubjects, "CS301"} {
		t.Run(subject, func(t *testing.T) {
			key := overallKey()
			key.SubjectCode = subject

			computed, err := f.svc.Percentages(ctx, key)
			require.NoError(t, err)
			cached, err := f.svc.Percentages(ctx, key)
			require.NoError(t, err)

			want, err := json.Marshal(computed)
			require.NoError(t, err)
			got, err := json.Marshal(cached)
			require.NoError(t, err)
			assert.JSONEq(t, string(want), string(got))
		})
	}
}

func TestService_Percentages_upsertConverges(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Record(ctx, newAttendance("CS301", jan8,
		mark("21CS1", attendance.Present), mark("21CS2", attendance.Absent), mark("21CS3", attendance.Present)))
	require.NoError(t, err)

	key := overallKey()
	ps, err := f.svc.Percentages(ctx, key)
	require.NoError(t, err)
	require.Len(t, ps, 3)

	marks, err := f.repo.QueryMarks(ctx, key)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.repo.UpsertPercentages(ctx, attendance.Aggregate(key, marks)))
	}

	cached, err := f.repo.GetPercentages(ctx, key)
	require.NoError(t, err)
	assert.Len(t, cached, 3)
}

// callRecorder records the repository calls taking part in keeping the cache fresh.
type callRecorder struct {
	attendance.Repository
	calls []string
}

func (r *callRecorder) LockClass(ctx context.Context, class attendance.Class, exec ...core.DBExecutor) error {
	r.calls = append(r.calls, "lock "+class.String())
	return r.Repository.LockClass(ctx, class, exec...)
}

func (r *callRecorder) QueryMarks(ctx context.Context, key attendance.Key, exec ...core.DBExecutor) ([]attendance.Mark, error) {
	r.calls = append(r.calls, "marks")
	return r.Repository.QueryMarks(ctx, key, exec...)
}

func (r *callRecorder) InvalidatePercentages(ctx context.Context, scope attendance.Scope, exec ...core.DBExecutor) (int, error) {
	r.calls = append(r.calls, "invalidate")
	return r.Repository.InvalidatePercentages(ctx, scope, exec...)
}

func TestService_classLock(t *testing.T) {
	f := setup(t)
	rec := &callRecorder{Repository: f.repo}
	svc := attendance.NewService(rec, f.acadRepo, f.tx, emailsvc.NewConsoleServiceMock(conf, logger), reportsvc.NewXLSXExporter(), conf)

	_, err := svc.Record(ctx, newAttendance("CS301", jan8, mark("21CS1", attendance.Present)))
	require.NoError(t, err)
	assert.Equal(t, []string{"lock CSE/2021/5/A", "invalidate"}, rec.calls)

	rec.calls = nil
	_, err = svc.Percentages(ctx, overallKey())
	require.NoError(t, err)
	assert.Equal(t, []string{"lock CSE/2021/5/A", "marks"}, rec.calls)

	rec.calls = nil
	_, err = svc.Percentages(ctx, overallKey())
	require.NoError(t, err)
	assert.Empty(t, rec.calls, "a cache hit takes no lock")

	rec.calls = nil
	_, err = svc.Correct(ctx, newAttendance("CS301", jan8, mark("21CS1", attendance.Absent)))
	require.NoError(t, err)
	assert.Equal(t, []string{"lock CSE/2021/5/A", "invalidate"}, rec.calls)
}

func TestService_NotifyBelowThreshold(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Record(ctx, newAttendance("CS301", jan8, mark("21CS1", attendance.Present), mark("21CS2", attendance.Absent)))
	require.NoError(t, err)
	_, err = f.svc.Percentages(ctx, overallKey())
	require.NoError(t, err)

	rows, err := f.svc.BelowThreshold(ctx, "cse")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "21CS2", rows[0].RollNumber)

	cnt, err := f.svc.NotifyBelowThreshold(ctx, "CSE", mail.Address{Address: "hod@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 1, cnt)

	msgs := emailsvc.LastSentMessages()
	require.Len(t, msgs, 1)
	assert.Len(t, msgs[0].To, 2)
	assert.Contains(t, msgs[0].TextContent, "21CS2")
	require.Len(t, msgs[0].Attachments, 1)
	assert.Equal(t, "low-attendance-CSE.xlsx", msgs[0].Attachments[0].Filename)

	t.Run("nobody below threshold", func(t *testing.T) {
		emailsvc.ResetSentMessages()
		cnt, err := f.svc.NotifyBelowThreshold(ctx, "ECE")
		require.NoError(t, err)
		assert.Equal(t, 0, cnt)
		assert.Empty(t, emailsvc.LastSentMessages())
	})
}

func TestService_DayView(t *testing.T) {
	f := setup(t)
	p5 := mark("21CS1", attendance.Absent)
	p5.Period = 5
	_, err := f.svc.Record(ctx, newAttendance("CS301", jan8, mark("21CS2", attendance.Present), mark("21CS1", attendance.Present), p5))
	require.NoError(t, err)
	_, err = f.svc.Record(ctx, newAttendance("CS302", jan8, mark("21CS1", attendance.Absent)))
	require.NoError(t, err)

	rows, err := f.svc.DayView(ctx, attendance.DayQuery{Date: jan8, Entry: attendance.EntryFN})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "21CS1", rows[0].RollNumber)
	assert.Equal(t, "21CS2", rows[1].RollNumber)

	rows, err = f.svc.DayView(ctx, attendance.DayQuery{Date: jan8, Entry: attendance.EntryAN})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, attendance.Absent, rows[0].Status)

	rows, err = f.svc.MonthView(ctx, attendance.MonthQuery{Month: "2024-01"})
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestService_StudentSummary(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Record(ctx, newAttendance("CS301", jan8, mark("21CS1", attendance.Present)))
	require.NoError(t, err)
	_, err = f.svc.Record(ctx, newAttendance("CS302", jan8, mark("21CS1", attendance.Absent)))
	require.NoError(t, err)
	_, err = f.svc.Percentages(ctx, overallKey())
	require.NoError(t, err)

	summary, err := f.svc.StudentSummary(ctx, "21cs1")
	require.NoError(t, err)
	require.Contains(t, summary, 5)

	sem := summary[5]
	require.Len(t, sem.Subjects, 2)
	assert.Equal(t, "CS301", sem.Subjects[0].SubjectCode)
	require.NotNil(t, sem.Subjects[0].Entry1)
	assert.Equal(t, "100.00", sem.Subjects[0].Entry1.String())
	assert.Nil(t, sem.Subjects[0].Entry2)
	require.NotNil(t, sem.Total.Entry1)
	assert.Equal(t, "50.00", sem.Total.Entry1.String())

	_, err = f.svc.StudentSummary(ctx, "99XX1")
	assert.True(t, core.IsNotFound(err))
}
