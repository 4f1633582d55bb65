package inmemdb

import (
	"context"
	"sort"

	"github.com/volatiletech/null/v8"

	"github.com/campusdesk/attendance/core"
	"github.com/campusdesk/attendance/core/academic"
)

type academicRepository struct {
	db *DB
}

var _ academic.Repository = (*academicRepository)(nil) // interface compliance check

func NewAcademicRepository(db *DB) academic.Repository {
	return &academicRepository{db: db}
}

func (repo *academicRepository) CreateStudent(_ context.Context, s academic.Student, _ ...core.DBExecutor) (academic.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.students[s.RollNumber]; ok {
		return academic.Student{}, academic.ErrStudentExists
	}
	repo.db.t.students[s.RollNumber] = s
	return s, nil
}

func (repo *academicRepository) GetStudent(_ context.Context, roll string, _ ...core.DBExecutor) (academic.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.t.students[roll]; ok {
		return s, nil
	}
	return academic.Student{}, academic.ErrStudentNotFound
}

func (repo *academicRepository) QueryStudents(_ context.Context, filter academic.StudentFilter, _ ...core.DBExecutor) ([]academic.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var rolls map[string]struct{}
	if len(filter.RollNumbers) > 0 {
		rolls = make(map[string]struct{}, len(filter.RollNumbers))
		for _, r := range filter.RollNumbers {
			rolls[r] = struct{}{}
		}
	}

	students := make([]academic.Student, 0)
	for _, s := range repo.db.t.students {
		if filter.Branch != "" && s.Branch != filter.Branch {
			continue
		}
		if filter.Section != "" && s.Section != filter.Section {
			continue
		}
		if filter.BatchYear != 0 && s.BatchYear != filter.BatchYear {
			continue
		}
		if rolls != nil {
			if _, ok := rolls[s.RollNumber]; !ok {
				continue
			}
		}
		students = append(students, s)
	}
	academic.SortStudents(students)
	return students, nil
}

func (repo *academicRepository) CreateSubject(_ context.Context, s academic.Subject, _ ...core.DBExecutor) (academic.Subject, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.subjects[s.Code]; ok {
		return academic.Subject{}, academic.ErrSubjectExists
	}
	repo.db.t.subjects[s.Code] = s
	return s, nil
}

func (repo *academicRepository) GetSubject(_ context.Context, code string, _ ...core.DBExecutor) (academic.Subject, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.t.subjects[code]; ok {
		return s, nil
	}
	return academic.Subject{}, academic.ErrSubjectNotFound
}

func (repo *academicRepository) QuerySubjects(_ context.Context, filter academic.SubjectFilter, _ ...core.DBExecutor) ([]academic.Subject, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.querySubjects(filter), nil
}

func (repo *academicRepository) querySubjects(filter academic.SubjectFilter) []academic.Subject {
	subjects := make([]academic.Subject, 0)
	for _, s := range repo.db.t.subjects {
		if filter.Branch != "" && s.Branch != filter.Branch {
			continue
		}
		if filter.BatchYear != 0 && s.BatchYear != filter.BatchYear {
			continue
		}
		if filter.Semester != 0 && s.Semester != filter.Semester {
			continue
		}
		subjects = append(subjects, s)
	}
	sort.Slice(subjects, func(i, j int) bool {
		a, b := subjects[i], subjects[j]
		if a.BatchYear != b.BatchYear {
			return a.BatchYear < b.BatchYear
		}
		if a.Semester != b.Semester {
			return a.Semester < b.Semester
		}
		return a.Code < b.Code
	})
	return subjects
}

func (repo *academicRepository) CreateLabBatch(_ context.Context, lb academic.LabBatch, _ ...core.DBExecutor) (academic.LabBatch, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, b := range repo.db.t.labBatches {
		if b.Branch == lb.Branch && b.Section == lb.Section && b.BatchYear == lb.BatchYear && b.Name == lb.Name {
			return academic.LabBatch{}, academic.ErrLabBatchExists
		}
	}
	if lb.ExtraRolls == nil {
		lb.ExtraRolls = []string{}
	}
	repo.db.t.labBatches[lb.ID] = lb
	return lb, nil
}

func (repo *academicRepository) QueryLabBatches(_ context.Context, filter academic.LabBatchFilter, _ ...core.DBExecutor) ([]academic.LabBatch, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	batches := make([]academic.LabBatch, 0)
	for _, b := range repo.db.t.labBatches {
		if filter.Branch != "" && b.Branch != filter.Branch {
			continue
		}
		if filter.Section != "" && b.Section != filter.Section {
			continue
		}
		if filter.BatchYear != 0 && b.BatchYear != filter.BatchYear {
			continue
		}
		if filter.Name != "" && b.Name != filter.Name {
			continue
		}
		batches = append(batches, b)
	}
	sort.Slice(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		if a.BatchYear != b.BatchYear {
			return a.BatchYear < b.BatchYear
		}
		if a.Branch != b.Branch {
			return a.Branch < b.Branch
		}
		if a.Section != b.Section {
			return a.Section < b.Section
		}
		return a.Name < b.Name
	})
	return batches, nil
}

func (repo *academicRepository) UpsertMarks(_ context.Context, marks []academic.Mark, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, m := range marks {
		key := markKey{roll: m.RollNumber, subject: m.SubjectCode}
		row := repo.db.t.marks[key]
		row.Mark = m
		value := m.Value
		switch m.Exam {
		case academic.ExamCAT1:
			row.cat1 = &value
		case academic.ExamCAT2:
			row.cat2 = &value
		case academic.ExamModel:
			row.model = &value
		}
		repo.db.t.marks[key] = row
	}
	return nil
}

func (repo *academicRepository) QueryResults(_ context.Context, s academic.Student, _ ...core.DBExecutor) ([]academic.Result, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	subjects := repo.querySubjects(academic.SubjectFilter{Branch: s.Branch, BatchYear: s.BatchYear})
	results := make([]academic.Result, 0, len(subjects))
	for _, sub := range subjects {
		res := academic.Result{SubjectCode: sub.Code, SubjectName: sub.Name, Semester: sub.Semester}
		if row, ok := repo.db.t.marks[markKey{roll: s.RollNumber, subject: sub.Code}]; ok {
			res.CAT1 = null.Float64FromPtr(row.cat1)
			res.CAT2 = null.Float64FromPtr(row.cat2)
			res.Model = null.Float64FromPtr(row.model)
		}
		results = append(results, res)
	}
	return results, nil
}
