package attendance

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/campusdesk/attendance/core/rollno"
)

// newCollator returns the collator used to compare branches & sections.
// A collate.Collator is not safe for concurrent use: get one per sort.
func newCollator() *collate.Collator {
	return collate.New(language.English)
}

// SortRecordViews sorts rows by batch year, branch, section, [date,] then roll number.
func SortRecordViews(rows []RecordView, byDate bool) {
	c := newCollator()
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.BatchYear != b.BatchYear {
			return a.BatchYear < b.BatchYear
		}
		if a.Branch != b.Branch {
			return c.CompareString(a.Branch, b.Branch) < 0
		}
		if a.Section != b.Section {
			return c.CompareString(a.Section, b.Section) < 0
		}
		if byDate && !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return rollno.Less(a.RollNumber, b.RollNumber)
	})
}

// SortThresholdRows sorts rows by branch, section then roll number.
func SortThresholdRows(rows []ThresholdRow) {
	c := newCollator()
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Branch != b.Branch {
			return c.CompareString(a.Branch, b.Branch) < 0
		}
		if a.Section != b.Section {
			return c.CompareString(a.Section, b.Section) < 0
		}
		return rollno.Less(a.RollNumber, b.RollNumber)
	})
}

// dedupeByRoll keeps the first row of each roll number.
func dedupeByRoll(rows []RecordView) []RecordView {
	seen := make(map[string]struct{}, len(rows))
	unique := make([]RecordView, 0, len(rows))
	for _, r := range rows {
		if _, ok := seen[r.RollNumber]; ok {
			continue
		}
		seen[r.RollNumber] = struct{}{}
		unique = append(unique, r)
	}
	return unique
}
