package attendance

import (
	"sort"

	"github.com/campusdesk/attendance/core/rollno"
)

type tally struct {
	present int
	total   int
}

func (t *tally) add(s Status) {
	t.total++
	if s == Present {
		t.present++
	}
}

type studentTally struct {
	name     string
	subjects map[string]*tally
}

// Aggregate computes the percentages of key from the stored marks.
//
// Every mark counts towards the total, present or absent. For a single subject,
// one SubjectPercentage is returned per student; for ALL, one OverallPercentage
// per student whose breakdown lists each subject in code order and whose counts
// are the sums of the breakdown counts. Students without marks are left out.
// The result is ordered by roll number.
func Aggregate(key Key, marks []Mark) []Percentage {
	students := make(map[string]*studentTally)
	rolls := make([]string, 0)
	for _, m := range marks {
		if !key.IsOverall() && m.SubjectCode != key.SubjectCode {
			continue
		}
		st, ok := students[m.RollNumber]
		if !ok {
			st = &studentTally{name: m.StudentName, subjects: make(map[string]*tally)}
			students[m.RollNumber] = st
			rolls = append(rolls, m.RollNumber)
		}
		t, ok := st.subjects[m.SubjectCode]
		if !ok {
			t = new(tally)
			st.subjects[m.SubjectCode] = t
		}
		t.add(m.Status)
	}
	sort.Strings(rolls) // deterministic tie order for the stable roll number sort
	rollno.Sort(rolls)

	result := make([]Percentage, 0, len(rolls))
	for _, roll := range rolls {
		st := students[roll]
		if !key.IsOverall() {
			t := st.subjects[key.SubjectCode]
			result = append(result, SubjectPercentage{
				Header: newHeader(key, roll, st.name, key.SubjectCode, t.present, t.total),
			})
			continue
		}
		result = append(result, overall(key, roll, st))
	}
	return result
}

func overall(key Key, roll string, st *studentTally) OverallPercentage {
	codes := make([]string, 0, len(st.subjects))
	for code := range st.subjects {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var present, total int
	breakdown := make([]SubjectShare, 0, len(codes))
	for _, code := range codes {
		t := st.subjects[code]
		present += t.present
		total += t.total
		breakdown = append(breakdown, SubjectShare{
			SubjectCode:  code,
			PresentCount: t.present,
			TotalPeriods: t.total,
			Percentage:   NewPercent(t.present, t.total),
		})
	}
	return OverallPercentage{
		Header:    newHeader(key, roll, st.name, AllSubjects, present, total),
		Breakdown: breakdown,
	}
}
