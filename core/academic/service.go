package academic

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/campusdesk/attendance/core"
)

var (
	ErrStudentNotFound  = core.NewNotFoundError("student")
	ErrSubjectNotFound  = core.NewNotFoundError("subject")
	ErrLabBatchNotFound = core.NewNotFoundError("lab batch")

	ErrStudentExists  = errors.New("a student with this roll number already exists")
	ErrSubjectExists  = errors.New("a subject with this code already exists")
	ErrLabBatchExists = errors.New("a lab batch with this name already exists for this class")
)

type (
	// Repository is the data access layer of students, subjects, lab batches & marks.
	// Every method runs on exec when provided (e.g. inside a transaction), on the repository DB otherwise.
	Repository interface {
		CreateStudent(ctx context.Context, s Student, exec ...core.DBExecutor) (Student, error)
		GetStudent(ctx context.Context, roll string, exec ...core.DBExecutor) (Student, error)
		// QueryStudents applies AND operation on the non-zero StudentFilter fields.
		QueryStudents(ctx context.Context, filter StudentFilter, exec ...core.DBExecutor) ([]Student, error)

		CreateSubject(ctx context.Context, s Subject, exec ...core.DBExecutor) (Subject, error)
		GetSubject(ctx context.Context, code string, exec ...core.DBExecutor) (Subject, error)
		// QuerySubjects returns the matching subjects ordered by batch year, semester & code.
		QuerySubjects(ctx context.Context, filter SubjectFilter, exec ...core.DBExecutor) ([]Subject, error)

		CreateLabBatch(ctx context.Context, lb LabBatch, exec ...core.DBExecutor) (LabBatch, error)
		QueryLabBatches(ctx context.Context, filter LabBatchFilter, exec ...core.DBExecutor) ([]LabBatch, error)

		// UpsertMarks sets the exam column of each (roll number, subject) row, creating it if needed.
		UpsertMarks(ctx context.Context, marks []Mark, exec ...core.DBExecutor) error
		// QueryResults returns every subject of the student's branch & batch year with its marks.
		QueryResults(ctx context.Context, s Student, exec ...core.DBExecutor) ([]Result, error)
	}

	Service interface {
		RegisterStudent(ctx context.Context, ns NewStudent) (Student, error)
		GetStudent(ctx context.Context, roll string) (Student, error)
		QueryStudents(ctx context.Context, filter StudentFilter) ([]Student, error)

		CreateSubject(ctx context.Context, ns NewSubject) (Subject, error)
		GetSubject(ctx context.Context, code string) (Subject, error)
		QuerySubjects(ctx context.Context, filter SubjectFilter) ([]Subject, error)

		CreateLabBatch(ctx context.Context, nl NewLabBatch) (LabBatch, error)
		QueryLabBatches(ctx context.Context, filter LabBatchFilter) ([]LabBatch, error)

		SaveMarks(ctx context.Context, nm NewMarks) (int, error)
		Results(ctx context.Context, roll string) ([]Result, error)
	}

	service struct {
		repo Repository
		tx   core.Transactor
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, tx core.Transactor) Service {
	return &service{repo: repo, tx: tx}
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func (svc *service) RegisterStudent(ctx context.Context, ns NewStudent) (Student, error) {
	s := Student{
		RollNumber:     ns.RollNumber,
		RegisterNumber: nullString(ns.RegisterNumber),
		Name:           ns.Name,
		Branch:         ns.Branch,
		Section:        ns.Section,
		BatchYear:      ns.BatchYear,
		FatherName:     nullString(ns.FatherName),
		ParentPhone:    nullString(ns.ParentPhone),
		Address:        nullString(ns.Address),
		Quota:          nullString(ns.Quota),
	}
	s, err := svc.repo.CreateStudent(ctx, s)
	if err != nil {
		if errors.Cause(err) == ErrStudentExists {
			return Student{}, core.NewValidationError(err, core.FieldError{Field: "rollNumber", Error: err.Error()})
		}
		return Student{}, errors.Wrap(err, "creating student")
	}
	return s, nil
}

func (svc *service) GetStudent(ctx context.Context, roll string) (Student, error) {
	return svc.repo.GetStudent(ctx, core.CleanCode(roll))
}

func (svc *service) QueryStudents(ctx context.Context, filter StudentFilter) ([]Student, error) {
	filter.Clean()
	students, err := svc.repo.QueryStudents(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	SortStudents(students)
	return students, nil
}

func (svc *service) CreateSubject(ctx context.Context, ns NewSubject) (Subject, error) {
	s, err := svc.repo.CreateSubject(ctx, Subject{
		Code:      ns.Code,
		Name:      ns.Name,
		Branch:    ns.Branch,
		BatchYear: ns.BatchYear,
		Semester:  ns.Semester,
	})
	if err != nil {
		if errors.Cause(err) == ErrSubjectExists {
			return Subject{}, core.NewValidationError(err, core.FieldError{Field: "subject_code", Error: err.Error()})
		}
		return Subject{}, errors.Wrap(err, "creating subject")
	}
	return s, nil
}

func (svc *service) GetSubject(ctx context.Context, code string) (Subject, error) {
	return svc.repo.GetSubject(ctx, core.CleanCode(code))
}

func (svc *service) QuerySubjects(ctx context.Context, filter SubjectFilter) ([]Subject, error) {
	filter.Clean()
	subjects, err := svc.repo.QuerySubjects(ctx, filter)
	return subjects, errors.Wrap(err, "querying subjects")
}

func (svc *service) CreateLabBatch(ctx context.Context, nl NewLabBatch) (LabBatch, error) {
	lb, err := svc.repo.CreateLabBatch(ctx, LabBatch{
		ID:         uuid.New().String(),
		Branch:     nl.Branch,
		Section:    nl.Section,
		BatchYear:  nl.BatchYear,
		Name:       nl.Name,
		FromRoll:   nl.FromRoll,
		ToRoll:     nl.ToRoll,
		ExtraRolls: nl.ExtraRolls,
	})
	if err != nil {
		if errors.Cause(err) == ErrLabBatchExists {
			return LabBatch{}, core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
		}
		return LabBatch{}, errors.Wrap(err, "creating lab batch")
	}
	return lb, nil
}

func (svc *service) QueryLabBatches(ctx context.Context, filter LabBatchFilter) ([]LabBatch, error) {
	filter.Clean()
	batches, err := svc.repo.QueryLabBatches(ctx, filter)
	return batches, errors.Wrap(err, "querying lab batches")
}

// SaveMarks stores the exam marks of a whole class in a single transaction.
func (svc *service) SaveMarks(ctx context.Context, nm NewMarks) (int, error) {
	marks := nm.marks()
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.repo.GetSubject(ctx, nm.SubjectCode, exec); err != nil {
			return err
		}
		return svc.repo.UpsertMarks(ctx, marks, exec)
	})
	if err != nil {
		return 0, errors.Wrap(err, "saving marks")
	}
	return len(marks), nil
}

func (svc *service) Results(ctx context.Context, roll string) ([]Result, error) {
	s, err := svc.repo.GetStudent(ctx, core.CleanCode(roll))
	if err != nil {
		return nil, err
	}
	results, err := svc.repo.QueryResults(ctx, s)
	if err != nil {
		return nil, errors.Wrap(err, "querying results")
	}
	SortResults(results)
	return results, nil
}

// ResolveLabBatch returns the roll numbers of the named lab batch of a class.
func ResolveLabBatch(ctx context.Context, repo Repository, branch, section string, batchYear int, name string, exec ...core.DBExecutor) ([]string, error) {
	batches, err := repo.QueryLabBatches(ctx, LabBatchFilter{Branch: branch, Section: section, BatchYear: batchYear, Name: name}, exec...)
	if err != nil {
		return nil, errors.Wrap(err, "querying lab batches")
	}
	if len(batches) == 0 {
		return nil, ErrLabBatchNotFound
	}
	students, err := repo.QueryStudents(ctx, StudentFilter{Branch: branch, Section: section, BatchYear: batchYear}, exec...)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return batches[0].Members(students), nil
}
