package attendance

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/campusdesk/attendance/core"
	"github.com/campusdesk/attendance/core/academic"
)

// Summary is the attendance of a student by semester.
type Summary map[int]*SemesterSummary

type SemesterSummary struct {
	Subjects []SubjectSummary `json:"subjects"`
	Total    EntryPair        `json:"total"`
}

type SubjectSummary struct {
	SubjectCode string `json:"subject_code"`
	SubjectName string `json:"subject_name"`
	EntryPair
}

// EntryPair holds the Entry1 & Entry2 percentages; nil when nothing was computed for an entry.
type EntryPair struct {
	Entry1 *Percent `json:"entry1"`
	Entry2 *Percent `json:"entry2"`
}

func (p *EntryPair) set(entry string, v Percent) {
	switch entry {
	case Entry1:
		p.Entry1 = &v
	case Entry2:
		p.Entry2 = &v
	}
}

// sortStudentPercentages orders the percentages of one student by semester, entry, subject code, then date range.
func sortStudentPercentages(ps []Percentage) {
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := ps[i].Head(), ps[j].Head()
		if a.Semester != b.Semester {
			return a.Semester < b.Semester
		}
		if a.Entry != b.Entry {
			return a.Entry < b.Entry
		}
		if a.SubjectCode != b.SubjectCode {
			return a.SubjectCode < b.SubjectCode
		}
		if !a.FromDate.Equal(b.FromDate) {
			return a.FromDate.Before(b.FromDate)
		}
		return a.ToDate.Before(b.ToDate)
	})
}

// supersedes reports whether a is preferred over b: a later end date, then a wider date range.
func supersedes(a, b Header) bool {
	if !a.ToDate.Equal(b.ToDate) {
		return a.ToDate.After(b.ToDate)
	}
	return a.FromDate.Before(b.FromDate)
}

// latest returns, per entry, the percentage with the latest end date.
// The result does not depend on the order of ps.
func latest(ps []Percentage) map[string]Percentage {
	m := make(map[string]Percentage)
	for _, p := range ps {
		h := p.Head()
		if cur, ok := m[h.Entry]; !ok || supersedes(h, cur.Head()) {
			m[h.Entry] = p
		}
	}
	return m
}

func breakdownPercent(p Percentage, code string) (Percent, bool) {
	op, ok := p.(OverallPercentage)
	if !ok {
		return Percent{}, false
	}
	for _, share := range op.Breakdown {
		if share.SubjectCode == code {
			return share.Percentage, true
		}
	}
	return Percent{}, false
}

// StudentSummary reports, for each semester of the subjects of the student's class, the Entry1 & Entry2
// percentage of every subject and their total.
//
// A subject entry is the latest subject percentage of that entry, or the subject's line in the
// breakdown of the latest overall percentage of that entry. The total is the latest overall
// percentage of the entry, or the average of the subject values (missing ones counting as 0).
func (svc *service) StudentSummary(ctx context.Context, roll string) (Summary, error) {
	s, err := svc.acadRepo.GetStudent(ctx, core.CleanCode(roll))
	if err != nil {
		return nil, err
	}
	subjects, err := svc.acadRepo.QuerySubjects(ctx, academic.SubjectFilter{Branch: s.Branch, BatchYear: s.BatchYear})
	if err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	ps, err := svc.repo.QueryStudentPercentages(ctx, s.RollNumber)
	if err != nil {
		return nil, errors.Wrap(err, "querying student percentages")
	}

	// semester -> subject code -> percentages
	bySubject := make(map[int]map[string][]Percentage)
	for _, p := range ps {
		h := p.Head()
		if bySubject[h.Semester] == nil {
			bySubject[h.Semester] = make(map[string][]Percentage)
		}
		bySubject[h.Semester][h.SubjectCode] = append(bySubject[h.Semester][h.SubjectCode], p)
	}

	summary := make(Summary)
	for _, sub := range subjects {
		sem, ok := summary[sub.Semester]
		if !ok {
			sem = &SemesterSummary{Subjects: []SubjectSummary{}}
			summary[sub.Semester] = sem
		}
		own := latest(bySubject[sub.Semester][sub.Code])
		overall := latest(bySubject[sub.Semester][AllSubjects])

		line := SubjectSummary{SubjectCode: sub.Code, SubjectName: sub.Name}
		for _, entry := range []string{Entry1, Entry2} {
			if p, ok := own[entry]; ok {
				line.set(entry, p.Head().Percentage)
			} else if p, ok := overall[entry]; ok {
				if v, ok := breakdownPercent(p, sub.Code); ok {
					line.set(entry, v)
				}
			}
		}
		sem.Subjects = append(sem.Subjects, line)
	}

	for semester, sem := range summary {
		overall := latest(bySubject[semester][AllSubjects])
		for _, entry := range []string{Entry1, Entry2} {
			if p, ok := overall[entry]; ok {
				sem.Total.set(entry, p.Head().Percentage)
				continue
			}
			values := make([]Percent, 0, len(sem.Subjects))
			for _, line := range sem.Subjects {
				v := line.Entry1
				if entry == Entry2 {
					v = line.Entry2
				}
				if v == nil {
					values = append(values, NewPercent(0, 0))
					continue
				}
				values = append(values, *v)
			}
			sem.Total.set(entry, AveragePercent(values))
		}
	}
	return summary, nil
}
