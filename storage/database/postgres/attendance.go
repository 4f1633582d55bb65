package pgrepos

import (
	"context"
	"encoding/json"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/campusdesk/attendance/core"
	"github.com/campusdesk/attendance/core/attendance"
)

var (
	recordColumns = []string{
		"roll_number", "branch", "section", "batch_year", "semester",
		"subject_code", "attendance_date", "period", "day_order", "record",
	}
	percentageColumns = []string{
		"branch", "academic_year", "semester", "section", "subject_code", "roll_number", "student_name",
		"present_count", "total_count", "percentage", "subject_breakdown", "from_date", "to_date", "entry",
	}
)

const percentageUpsert = "ON CONFLICT (branch, academic_year, semester, section, subject_code, roll_number, from_date, to_date, entry) " +
	"DO UPDATE SET student_name = EXCLUDED.student_name, present_count = EXCLUDED.present_count, " +
	"total_count = EXCLUDED.total_count, percentage = EXCLUDED.percentage, " +
	"subject_breakdown = EXCLUDED.subject_breakdown, updated_at = NOW()"

type percentageRow struct {
	Branch       string             `db:"branch"`
	AcademicYear int                `db:"academic_year"`
	Semester     int                `db:"semester"`
	Section      string             `db:"section"`
	SubjectCode  string             `db:"subject_code"`
	RollNumber   string             `db:"roll_number"`
	StudentName  string             `db:"student_name"`
	PresentCount int                `db:"present_count"`
	TotalCount   int                `db:"total_count"`
	Percentage   attendance.Percent `db:"percentage"`
	Breakdown    null.JSON          `db:"subject_breakdown"`
	FromDate     core.Date          `db:"from_date"`
	ToDate       core.Date          `db:"to_date"`
	Entry        string             `db:"entry"`
}

func (r percentageRow) percentage() (attendance.Percentage, error) {
	h := attendance.Header{
		Branch:       r.Branch,
		AcademicYear: r.AcademicYear,
		Semester:     r.Semester,
		Section:      r.Section,
		SubjectCode:  r.SubjectCode,
		RollNumber:   r.RollNumber,
		StudentName:  r.StudentName,
		PresentCount: r.PresentCount,
		TotalCount:   r.TotalCount,
		Percentage:   r.Percentage,
		FromDate:     r.FromDate,
		ToDate:       r.ToDate,
		Entry:        r.Entry,
	}
	if r.SubjectCode != attendance.AllSubjects {
		return attendance.SubjectPercentage{Header: h}, nil
	}
	p := attendance.OverallPercentage{Header: h, Breakdown: []attendance.SubjectShare{}}
	if r.Breakdown.Valid {
		if err := r.Breakdown.Unmarshal(&p.Breakdown); err != nil {
			return nil, errors.Wrapf(err, "decoding subject breakdown of %s", r.RollNumber)
		}
	}
	return p, nil
}

func percentageValues(p attendance.Percentage) ([]interface{}, error) {
	h := p.Head()
	breakdown := null.JSON{}
	if op, ok := p.(attendance.OverallPercentage); ok {
		shares := op.Breakdown
		if shares == nil {
			shares = []attendance.SubjectShare{}
		}
		data, err := json.Marshal(shares)
		if err != nil {
			return nil, errors.Wrap(err, "encoding subject breakdown")
		}
		breakdown = null.JSONFrom(data)
	}
	return []interface{}{
		h.Branch, h.AcademicYear, h.Semester, h.Section, h.SubjectCode, h.RollNumber, h.StudentName,
		h.PresentCount, h.TotalCount, h.Percentage, breakdown, h.FromDate, h.ToDate, h.Entry,
	}, nil
}

func scanPercentages(rows []percentageRow) ([]attendance.Percentage, error) {
	ps := make([]attendance.Percentage, 0, len(rows))
	for _, r := range rows {
		p, err := r.percentage()
		if err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	return ps, nil
}

func recordKeyEq(r attendance.Record) sq.Eq {
	return sq.Eq{
		"roll_number":     r.RollNumber,
		"subject_code":    r.SubjectCode,
		"attendance_date": r.Date,
		"period":          r.Period,
		"day_order":       r.DayOrder,
	}
}

type attendanceRepository struct {
	repository
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *sqlx.DB) attendance.Repository {
	return &attendanceRepository{repository{db: db}}
}

func (repo attendanceRepository) ExistingRecords(ctx context.Context, rs []attendance.Record, exec ...core.DBExecutor) ([]attendance.Record, error) {
	existing := make([]attendance.Record, 0)
	if len(rs) == 0 {
		return existing, nil
	}
	keys := make(sq.Or, 0, len(rs))
	for _, r := range rs {
		keys = append(keys, recordKeyEq(r))
	}

	query, args, err := psql.Select(recordColumns...).From("attendance").Where(keys).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &existing, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying existing records")
	}
	return existing, nil
}

func (repo attendanceRepository) InsertRecords(ctx context.Context, rs []attendance.Record, exec ...core.DBExecutor) (int, error) {
	var cnt int
	for _, r := range rs {
		query, args, err := psql.Insert("attendance").Columns(recordColumns...).Values(
			r.RollNumber, r.Branch, r.Section, r.BatchYear, r.Semester,
			r.SubjectCode, r.Date, r.Period, r.DayOrder, string(r.Status),
		).ToSql()
		if err != nil {
			return cnt, errors.Wrap(err, "building query")
		}
		if _, err = repo.getExec(exec).ExecContext(ctx, query, args...); err != nil {
			if isUniqueViolation(err) {
				return cnt, core.NewConflictError("attendance already recorded for roll number %s (%s)", r.RollNumber, r.Key())
			}
			return cnt, errors.Wrap(err, "inserting attendance record")
		}
		cnt++
	}
	return cnt, nil
}

func (repo attendanceRepository) DeleteRecords(ctx context.Context, rs []attendance.Record, exec ...core.DBExecutor) (int, error) {
	var cnt int64
	for _, r := range rs {
		query, args, err := psql.Delete("attendance").Where(recordKeyEq(r)).ToSql()
		if err != nil {
			return int(cnt), errors.Wrap(err, "building query")
		}
		res, err := repo.getExec(exec).ExecContext(ctx, query, args...)
		if err != nil {
			return int(cnt), errors.Wrap(err, "deleting attendance record")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return int(cnt), errors.Wrap(err, "deleting attendance record")
		}
		cnt += n
	}
	return int(cnt), nil
}

func (repo attendanceRepository) QueryMarks(ctx context.Context, key attendance.Key, exec ...core.DBExecutor) ([]attendance.Mark, error) {
	qb := psql.Select("a.roll_number", "s.name AS student_name", "a.subject_code", "a.record").
		From("attendance a").
		Join("students s ON s.roll_number = a.roll_number").
		Where(sq.Eq{
			"a.branch":     key.Branch,
			"a.section":    key.Section,
			"a.batch_year": key.AcademicYear,
			"a.semester":   key.Semester,
		}).
		Where(sq.GtOrEq{"a.attendance_date": key.FromDate}).
		Where(sq.LtOrEq{"a.attendance_date": key.ToDate})
	if !key.IsOverall() {
		qb = qb.Where(sq.Eq{"a.subject_code": key.SubjectCode})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	marks := make([]attendance.Mark, 0)
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &marks, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying attendance marks")
	}
	return marks, nil
}

func (repo attendanceRepository) QueryRecords(ctx context.Context, filter attendance.RecordFilter, exec ...core.DBExecutor) ([]attendance.RecordView, error) {
	qb := psql.Select(
		"a.roll_number", "s.name AS student_name", "a.branch", "a.section", "a.batch_year",
		"a.subject_code", "a.attendance_date", "a.period", "a.record",
	).
		From("attendance a").
		Join("students s ON s.roll_number = a.roll_number")
	if filter.Branch != "" {
		qb = qb.Where(sq.Eq{"a.branch": filter.Branch})
	}
	if filter.Section != "" {
		qb = qb.Where(sq.Eq{"a.section": filter.Section})
	}
	if filter.SubjectCode != "" {
		qb = qb.Where(sq.Eq{"a.subject_code": filter.SubjectCode})
	}
	if filter.Period != 0 {
		qb = qb.Where(sq.Eq{"a.period": filter.Period})
	}
	if !filter.From.IsZero() {
		qb = qb.Where(sq.GtOrEq{"a.attendance_date": filter.From})
	}
	if !filter.To.IsZero() {
		qb = qb.Where(sq.LtOrEq{"a.attendance_date": filter.To})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	rows := make([]attendance.RecordView, 0)
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying attendance records")
	}
	return rows, nil
}

func (repo attendanceRepository) selectPercentages(ctx context.Context, where sq.Sqlizer, exec []core.DBExecutor) ([]attendance.Percentage, error) {
	query, args, err := psql.Select(percentageColumns...).From("attendance_percentage").Where(where).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []percentageRow
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying percentages")
	}
	return scanPercentages(rows)
}

func (repo attendanceRepository) GetPercentages(ctx context.Context, key attendance.Key, exec ...core.DBExecutor) ([]attendance.Percentage, error) {
	return repo.selectPercentages(ctx, sq.Eq{
		"branch":        key.Branch,
		"academic_year": key.AcademicYear,
		"semester":      key.Semester,
		"section":       key.Section,
		"subject_code":  key.SubjectCode,
		"from_date":     key.FromDate,
		"to_date":       key.ToDate,
		"entry":         key.Entry,
	}, exec)
}

func (repo attendanceRepository) UpsertPercentages(ctx context.Context, ps []attendance.Percentage, exec ...core.DBExecutor) error {
	if len(ps) == 0 {
		return nil
	}
	qb := psql.Insert("attendance_percentage").Columns(percentageColumns...).Suffix(percentageUpsert)
	for _, p := range ps {
		values, err := percentageValues(p)
		if err != nil {
			return err
		}
		qb = qb.Values(values...)
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	_, err = repo.getExec(exec).ExecContext(ctx, query, args...)
	return errors.Wrap(err, "upserting percentages")
}

func (repo attendanceRepository) InvalidatePercentages(ctx context.Context, scope attendance.Scope, exec ...core.DBExecutor) (int, error) {
	query, args, err := psql.Delete("attendance_percentage").
		Where(sq.Eq{
			"branch":        scope.Branch,
			"academic_year": scope.BatchYear,
			"semester":      scope.Semester,
			"section":       scope.Section,
			"subject_code":  []string{scope.SubjectCode, attendance.AllSubjects},
		}).
		Where(sq.LtOrEq{"from_date": scope.Date}).
		Where(sq.GtOrEq{"to_date": scope.Date}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := repo.getExec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, "invalidating percentages")
	}
	cnt, err := res.RowsAffected()
	return int(cnt), errors.Wrap(err, "invalidating percentages")
}

// LockClass takes a transaction level advisory lock keyed on the class. It is released on
// commit or rollback, so it must run on a transaction's exec.
func (repo attendanceRepository) LockClass(ctx context.Context, class attendance.Class, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", "attendance:"+class.String())
	return errors.Wrap(err, "acquiring class lock")
}

func (repo attendanceRepository) QueryStudentPercentages(ctx context.Context, roll string, exec ...core.DBExecutor) ([]attendance.Percentage, error) {
	return repo.selectPercentages(ctx, sq.Eq{"roll_number": roll}, exec)
}

func (repo attendanceRepository) QueryBelowThreshold(ctx context.Context, branch string, threshold float64, exec ...core.DBExecutor) ([]attendance.ThresholdRow, error) {
	qb := psql.Select(
		"roll_number", "student_name", "branch", "section", "academic_year", "semester",
		"percentage", "from_date", "to_date", "entry",
	).
		From("attendance_percentage").
		Where(sq.Eq{"subject_code": attendance.AllSubjects}).
		Where(sq.Lt{"percentage": threshold})
	if branch != "" {
		qb = qb.Where(sq.Eq{"branch": branch})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	rows := make([]attendance.ThresholdRow, 0)
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying percentages below threshold")
	}
	return rows, nil
}
