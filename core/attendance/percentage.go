package attendance

import (
	"github.com/campusdesk/attendance/core"
	"github.com/campusdesk/attendance/core/rollno"
)

// Header holds the fields shared by every kind of Percentage.
type Header struct {
	Branch       string    `json:"branch"`
	AcademicYear int       `json:"academic_year"`
	Semester     int       `json:"semester"`
	Section      string    `json:"section"`
	SubjectCode  string    `json:"subject_code"`
	RollNumber   string    `json:"roll_number"`
	StudentName  string    `json:"student_name"`
	PresentCount int       `json:"present_count"`
	TotalCount   int       `json:"total_count"`
	Percentage   Percent   `json:"percentage"`
	FromDate     core.Date `json:"from_date"`
	ToDate       core.Date `json:"to_date"`
	Entry        string    `json:"entry"`
}

func newHeader(key Key, roll, name, subject string, present, total int) Header {
	return Header{
		Branch:       key.Branch,
		AcademicYear: key.AcademicYear,
		Semester:     key.Semester,
		Section:      key.Section,
		SubjectCode:  subject,
		RollNumber:   roll,
		StudentName:  name,
		PresentCount: present,
		TotalCount:   total,
		Percentage:   NewPercent(present, total),
		FromDate:     key.FromDate,
		ToDate:       key.ToDate,
		Entry:        key.Entry,
	}
}

// Percentage is either a SubjectPercentage or an OverallPercentage.
type Percentage interface {
	Head() Header
	isPercentage()
}

// SubjectPercentage is the attendance of one student for one subject.
type SubjectPercentage struct {
	Header
}

// OverallPercentage is the attendance of one student across every subject (subject code ALL).
type OverallPercentage struct {
	Header
	Breakdown []SubjectShare `json:"subject_breakdown"`
}

// SubjectShare is one subject's line of an OverallPercentage breakdown.
type SubjectShare struct {
	SubjectCode  string  `json:"subject_code"`
	PresentCount int     `json:"present_count"`
	TotalPeriods int     `json:"total_periods"`
	Percentage   Percent `json:"percentage"`
}

func (p SubjectPercentage) Head() Header { return p.Header }
func (p OverallPercentage) Head() Header { return p.Header }

func (SubjectPercentage) isPercentage() {}
func (OverallPercentage) isPercentage() {}

// SortPercentages orders percentages by roll number.
func SortPercentages(ps []Percentage) {
	rollno.SortBy(ps, func(i int) string { return ps[i].Head().RollNumber })
}
