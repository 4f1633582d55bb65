package inmemdb

import (
	"context"

	"github.com/campusdesk/attendance/core"
	"github.com/campusdesk/attendance/core/attendance"
)

type attendanceRepository struct {
	db *DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func keyOf(p attendance.Percentage) percentageKey {
	h := p.Head()
	return percentageKey{
		branch:       h.Branch,
		academicYear: h.AcademicYear,
		semester:     h.Semester,
		section:      h.Section,
		subject:      h.SubjectCode,
		roll:         h.RollNumber,
		from:         h.FromDate.String(),
		to:           h.ToDate.String(),
		entry:        h.Entry,
	}
}

func (repo *attendanceRepository) ExistingRecords(_ context.Context, rs []attendance.Record, _ ...core.DBExecutor) ([]attendance.Record, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	existing := make([]attendance.Record, 0)
	for _, r := range rs {
		if stored, ok := repo.db.t.records[r.Key()]; ok {
			existing = append(existing, stored)
		}
	}
	return existing, nil
}

func (repo *attendanceRepository) InsertRecords(_ context.Context, rs []attendance.Record, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var cnt int
	for _, r := range rs {
		k := r.Key()
		if _, ok := repo.db.t.records[k]; ok {
			return cnt, core.NewConflictError("attendance already recorded for roll number %s (%s)", r.RollNumber, k)
		}
		repo.db.t.records[k] = r
		cnt++
	}
	return cnt, nil
}

func (repo *attendanceRepository) DeleteRecords(_ context.Context, rs []attendance.Record, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var cnt int
	for _, r := range rs {
		k := r.Key()
		if _, ok := repo.db.t.records[k]; ok {
			delete(repo.db.t.records, k)
			cnt++
		}
	}
	return cnt, nil
}

func inRange(d, from, to core.Date) bool {
	if !from.IsZero() && d.Before(from) {
		return false
	}
	if !to.IsZero() && d.After(to) {
		return false
	}
	return true
}

func (repo *attendanceRepository) QueryMarks(_ context.Context, key attendance.Key, _ ...core.DBExecutor) ([]attendance.Mark, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	marks := make([]attendance.Mark, 0)
	for _, r := range repo.db.t.records {
		if r.Branch != key.Branch || r.Section != key.Section || r.BatchYear != key.AcademicYear || r.Semester != key.Semester {
			continue
		}
		if !key.IsOverall() && r.SubjectCode != key.SubjectCode {
			continue
		}
		if !inRange(r.Date, key.FromDate, key.ToDate) {
			continue
		}
		s, ok := repo.db.t.students[r.RollNumber]
		if !ok {
			continue
		}
		marks = append(marks, attendance.Mark{
			RollNumber:  r.RollNumber,
			StudentName: s.Name,
			SubjectCode: r.SubjectCode,
			Status:      r.Status,
		})
	}
	return marks, nil
}

func (repo *attendanceRepository) QueryRecords(_ context.Context, filter attendance.RecordFilter, _ ...core.DBExecutor) ([]attendance.RecordView, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	rows := make([]attendance.RecordView, 0)
	for _, r := range repo.db.t.records {
		if filter.Branch != "" && r.Branch != filter.Branch {
			continue
		}
		if filter.Section != "" && r.Section != filter.Section {
			continue
		}
		if filter.SubjectCode != "" && r.SubjectCode != filter.SubjectCode {
			continue
		}
		if filter.Period != 0 && r.Period != filter.Period {
			continue
		}
		if !inRange(r.Date, filter.From, filter.To) {
			continue
		}
		s, ok := repo.db.t.students[r.RollNumber]
		if !ok {
			continue
		}
		rows = append(rows, attendance.RecordView{
			RollNumber:  r.RollNumber,
			StudentName: s.Name,
			Branch:      r.Branch,
			Section:     r.Section,
			BatchYear:   r.BatchYear,
			SubjectCode: r.SubjectCode,
			Date:        r.Date,
			Period:      r.Period,
			Status:      r.Status,
		})
	}
	return rows, nil
}

func (repo *attendanceRepository) GetPercentages(_ context.Context, key attendance.Key, _ ...core.DBExecutor) ([]attendance.Percentage, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	from, to := key.FromDate.String(), key.ToDate.String()
	ps := make([]attendance.Percentage, 0)
	for k, p := range repo.db.t.percentages {
		if k.branch == key.Branch && k.academicYear == key.AcademicYear && k.semester == key.Semester &&
			k.section == key.Section && k.subject == key.SubjectCode && k.from == from && k.to == to && k.entry == key.Entry {
			ps = append(ps, p)
		}
	}
	return ps, nil
}

func (repo *attendanceRepository) UpsertPercentages(_ context.Context, ps []attendance.Percentage, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, p := range ps {
		repo.db.t.percentages[keyOf(p)] = p
	}
	return nil
}

func (repo *attendanceRepository) InvalidatePercentages(_ context.Context, scope attendance.Scope, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	date := scope.Date.String()
	var cnt int
	for k := range repo.db.t.percentages {
		if k.branch != scope.Branch || k.academicYear != scope.BatchYear || k.semester != scope.Semester || k.section != scope.Section {
			continue
		}
		if k.subject != scope.SubjectCode && k.subject != attendance.AllSubjects {
			continue
		}
		if date < k.from || date > k.to {
			continue
		}
		delete(repo.db.t.percentages, k)
		cnt++
	}
	return cnt, nil
}

// LockClass is a no-op: DB.InTx already runs one transaction at a time.
func (repo *attendanceRepository) LockClass(context.Context, attendance.Class, ...core.DBExecutor) error {
	return nil
}

func (repo *attendanceRepository) QueryStudentPercentages(_ context.Context, roll string, _ ...core.DBExecutor) ([]attendance.Percentage, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ps := make([]attendance.Percentage, 0)
	for k, p := range repo.db.t.percentages {
		if k.roll == roll {
			ps = append(ps, p)
		}
	}
	return ps, nil
}

func (repo *attendanceRepository) QueryBelowThreshold(_ context.Context, branch string, threshold float64, _ ...core.DBExecutor) ([]attendance.ThresholdRow, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	rows := make([]attendance.ThresholdRow, 0)
	for k, p := range repo.db.t.percentages {
		h := p.Head()
		if k.subject != attendance.AllSubjects || (branch != "" && k.branch != branch) || !h.Percentage.Below(threshold) {
			continue
		}
		rows = append(rows, attendance.ThresholdRow{
			RollNumber:   h.RollNumber,
			StudentName:  h.StudentName,
			Branch:       h.Branch,
			Section:      h.Section,
			AcademicYear: h.AcademicYear,
			Semester:     h.Semester,
			Percentage:   h.Percentage,
			FromDate:     h.FromDate,
			ToDate:       h.ToDate,
			Entry:        h.Entry,
		})
	}
	return rows, nil
}
