package pgrepos

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/campusdesk/attendance/core"
	"github.com/campusdesk/attendance/core/academic"
)

var (
	studentColumns = []string{
		"roll_number", "register_number", "name", "branch", "section", "batch_year",
		"father_name", "parent_phone", "address", "quota",
	}
	subjectColumns  = []string{"subject_code", "subject_name", "branch", "batch_year", "semester"}
	labBatchColumns = []string{"id", "branch", "section", "batch_year", "name", "from_roll", "to_roll", "extra_rolls"}

	examColumns = map[academic.ExamType]string{
		academic.ExamCAT1:  "cat1_marks",
		academic.ExamCAT2:  "cat2_marks",
		academic.ExamModel: "model_marks",
	}
)

type labBatchRow struct {
	ID         string         `db:"id"`
	Branch     string         `db:"branch"`
	Section    string         `db:"section"`
	BatchYear  int            `db:"batch_year"`
	Name       string         `db:"name"`
	FromRoll   string         `db:"from_roll"`
	ToRoll     string         `db:"to_roll"`
	ExtraRolls pq.StringArray `db:"extra_rolls"`
}

func (r labBatchRow) labBatch() academic.LabBatch {
	extra := []string(r.ExtraRolls)
	if extra == nil {
		extra = []string{}
	}
	return academic.LabBatch{
		ID:         r.ID,
		Branch:     r.Branch,
		Section:    r.Section,
		BatchYear:  r.BatchYear,
		Name:       r.Name,
		FromRoll:   r.FromRoll,
		ToRoll:     r.ToRoll,
		ExtraRolls: extra,
	}
}

type academicRepository struct {
	repository
}

var _ academic.Repository = (*academicRepository)(nil) // interface compliance check

func NewAcademicRepository(db *sqlx.DB) academic.Repository {
	return &academicRepository{repository{db: db}}
}

func (repo academicRepository) insert(ctx context.Context, qb sq.InsertBuilder, exists error, exec []core.DBExecutor) error {
	query, args, err := qb.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	if _, err = repo.getExec(exec).ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return exists
		}
		return err
	}
	return nil
}

func (repo academicRepository) CreateStudent(ctx context.Context, s academic.Student, exec ...core.DBExecutor) (academic.Student, error) {
	qb := psql.Insert("students").Columns(studentColumns...).Values(
		s.RollNumber, s.RegisterNumber, s.Name, s.Branch, s.Section, s.BatchYear,
		s.FatherName, s.ParentPhone, s.Address, s.Quota,
	)
	if err := repo.insert(ctx, qb, academic.ErrStudentExists, exec); err != nil {
		return academic.Student{}, errors.Wrap(err, "inserting student")
	}
	return s, nil
}

func (repo academicRepository) GetStudent(ctx context.Context, roll string, exec ...core.DBExecutor) (academic.Student, error) {
	query, args, err := psql.Select(studentColumns...).From("students").Where(sq.Eq{"roll_number": roll}).ToSql()
	if err != nil {
		return academic.Student{}, errors.Wrap(err, "building query")
	}
	var s academic.Student
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &s, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return academic.Student{}, academic.ErrStudentNotFound
		}
		return academic.Student{}, errors.Wrap(err, "finding student")
	}
	return s, nil
}

func (repo academicRepository) QueryStudents(ctx context.Context, filter academic.StudentFilter, exec ...core.DBExecutor) ([]academic.Student, error) {
	qb := psql.Select(studentColumns...).From("students")
	if filter.Branch != "" {
		qb = qb.Where(sq.Eq{"branch": filter.Branch})
	}
	if filter.Section != "" {
		qb = qb.Where(sq.Eq{"section": filter.Section})
	}
	if filter.BatchYear != 0 {
		qb = qb.Where(sq.Eq{"batch_year": filter.BatchYear})
	}
	if len(filter.RollNumbers) > 0 {
		qb = qb.Where(sq.Eq{"roll_number": filter.RollNumbers})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	students := make([]academic.Student, 0)
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &students, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	// roll numbers do not sort lexically
	academic.SortStudents(students)
	return students, nil
}

func (repo academicRepository) CreateSubject(ctx context.Context, s academic.Subject, exec ...core.DBExecutor) (academic.Subject, error) {
	qb := psql.Insert("subjects").Columns(subjectColumns...).Values(s.Code, s.Name, s.Branch, s.BatchYear, s.Semester)
	if err := repo.insert(ctx, qb, academic.ErrSubjectExists, exec); err != nil {
		return academic.Subject{}, errors.Wrap(err, "inserting subject")
	}
	return s, nil
}

func (repo academicRepository) GetSubject(ctx context.Context, code string, exec ...core.DBExecutor) (academic.Subject, error) {
	query, args, err := psql.Select(subjectColumns...).From("subjects").Where(sq.Eq{"subject_code": code}).ToSql()
	if err != nil {
		return academic.Subject{}, errors.Wrap(err, "building query")
	}
	var s academic.Subject
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &s, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return academic.Subject{}, academic.ErrSubjectNotFound
		}
		return academic.Subject{}, errors.Wrap(err, "finding subject")
	}
	return s, nil
}

func (repo academicRepository) QuerySubjects(ctx context.Context, filter academic.SubjectFilter, exec ...core.DBExecutor) ([]academic.Subject, error) {
	qb := psql.Select(subjectColumns...).From("subjects").OrderBy("batch_year", "semester", "subject_code")
	if filter.Branch != "" {
		qb = qb.Where(sq.Eq{"branch": filter.Branch})
	}
	if filter.BatchYear != 0 {
		qb = qb.Where(sq.Eq{"batch_year": filter.BatchYear})
	}
	if filter.Semester != 0 {
		qb = qb.Where(sq.Eq{"semester": filter.Semester})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	subjects := make([]academic.Subject, 0)
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &subjects, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	return subjects, nil
}

func (repo academicRepository) CreateLabBatch(ctx context.Context, lb academic.LabBatch, exec ...core.DBExecutor) (academic.LabBatch, error) {
	if lb.ID == "" {
		lb.ID = uuid.New().String()
	}
	if lb.ExtraRolls == nil {
		lb.ExtraRolls = []string{}
	}
	qb := psql.Insert("lab_batches").Columns(labBatchColumns...).Values(
		lb.ID, lb.Branch, lb.Section, lb.BatchYear, lb.Name, lb.FromRoll, lb.ToRoll, pq.Array(lb.ExtraRolls),
	)
	if err := repo.insert(ctx, qb, academic.ErrLabBatchExists, exec); err != nil {
		return academic.LabBatch{}, errors.Wrap(err, "inserting lab batch")
	}
	return lb, nil
}

func (repo academicRepository) QueryLabBatches(ctx context.Context, filter academic.LabBatchFilter, exec ...core.DBExecutor) ([]academic.LabBatch, error) {
	qb := psql.Select(labBatchColumns...).From("lab_batches").OrderBy("batch_year", "branch", "section", "name")
	if filter.Branch != "" {
		qb = qb.Where(sq.Eq{"branch": filter.Branch})
	}
	if filter.Section != "" {
		qb = qb.Where(sq.Eq{"section": filter.Section})
	}
	if filter.BatchYear != 0 {
		qb = qb.Where(sq.Eq{"batch_year": filter.BatchYear})
	}
	if filter.Name != "" {
		qb = qb.Where(sq.Eq{"name": filter.Name})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []labBatchRow
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying lab batches")
	}
	batches := make([]academic.LabBatch, 0, len(rows))
	for _, r := range rows {
		batches = append(batches, r.labBatch())
	}
	return batches, nil
}

func (repo academicRepository) UpsertMarks(ctx context.Context, marks []academic.Mark, exec ...core.DBExecutor) error {
	for _, m := range marks {
		col, ok := examColumns[m.Exam]
		if !ok {
			return errors.Errorf("unknown exam type %q", m.Exam)
		}
		query, args, err := psql.Insert("marks").
			Columns("roll_number", "subject_code", "branch", "section", "batch_year", "semester", col).
			Values(m.RollNumber, m.SubjectCode, m.Branch, m.Section, m.BatchYear, m.Semester, m.Value).
			Suffix(fmt.Sprintf(
				"ON CONFLICT (roll_number, subject_code) DO UPDATE SET %[1]s = EXCLUDED.%[1]s, "+
					"branch = EXCLUDED.branch, section = EXCLUDED.section, "+
					"batch_year = EXCLUDED.batch_year, semester = EXCLUDED.semester", col,
			)).
			ToSql()
		if err != nil {
			return errors.Wrap(err, "building query")
		}
		if _, err = repo.getExec(exec).ExecContext(ctx, query, args...); err != nil {
			return errors.Wrapf(err, "saving %s marks of %s", m.Exam, m.RollNumber)
		}
	}
	return nil
}

func (repo academicRepository) QueryResults(ctx context.Context, s academic.Student, exec ...core.DBExecutor) ([]academic.Result, error) {
	query, args, err := psql.
		Select(
			"sub.subject_code", "sub.subject_name", "sub.semester",
			"m.cat1_marks AS cat1", "m.cat2_marks AS cat2", "m.model_marks AS model",
		).
		From("subjects sub").
		LeftJoin("marks m ON m.subject_code = sub.subject_code AND m.roll_number = ?", s.RollNumber).
		Where(sq.Eq{"sub.branch": s.Branch, "sub.batch_year": s.BatchYear}).
		OrderBy("sub.semester", "sub.subject_code").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	results := make([]academic.Result, 0)
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &results, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying results")
	}
	return results, nil
}
