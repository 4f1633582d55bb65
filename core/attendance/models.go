package attendance

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/campusdesk/attendance/core"
)

// AllSubjects is the subject code of the overall (every subject) percentages.
const AllSubjects = "ALL"

// Well known entries (half-day attendance sessions).
const (
	Entry1    = "Entry1"
	Entry2    = "Entry2"
	EntryFN   = "FN"
	EntryAN   = "AN"
	periodFN  = 1
	periodAN  = 5
	maxPeriod = 12
)

// EntryPeriod returns the period checked by the admin views for an entry:
// afternoon sessions are taken at period 5, every other entry at period 1.
func EntryPeriod(entry string) int {
	if entry == EntryAN {
		return periodAN
	}
	return periodFN
}

type Status string

const (
	Present Status = "P"
	Absent  Status = "A"
)

// Record is one attendance mark of one student, for one subject, date & period.
type Record struct {
	RollNumber  string    `json:"rollNumber" db:"roll_number"`
	Branch      string    `json:"branch" db:"branch"`
	Section     string    `json:"section" db:"section"`
	BatchYear   int       `json:"batchYear" db:"batch_year"`
	Semester    int       `json:"semester" db:"semester"`
	SubjectCode string    `json:"subject_code" db:"subject_code"`
	Date        core.Date `json:"attendance_date" db:"attendance_date"`
	Period      int       `json:"period" db:"period"`
	DayOrder    string    `json:"day_order" db:"day_order"`
	Status      Status    `json:"record" db:"record"`
}

// RecordKey is the natural key of a Record.
type RecordKey struct {
	RollNumber  string
	SubjectCode string
	Date        string
	Period      int
	DayOrder    string
}

func (r Record) Key() RecordKey {
	return RecordKey{
		RollNumber:  r.RollNumber,
		SubjectCode: r.SubjectCode,
		Date:        r.Date.String(),
		Period:      r.Period,
		DayOrder:    r.DayOrder,
	}
}

func (k RecordKey) String() string {
	s := fmt.Sprintf("%s, %s, period %d", k.SubjectCode, k.Date, k.Period)
	if k.DayOrder != "" {
		s += ", day order " + k.DayOrder
	}
	return s
}

// NewAttendance is the attendance of a class for one subject & date.
// When IsLab is set, marks without a roll number apply to every member of LabBatch
// that has no explicit mark for the same period & day order.
type NewAttendance struct {
	Branch      string        `json:"branch" validate:"required,code"`
	Section     string        `json:"section" validate:"required,code"`
	BatchYear   int           `json:"batchYear" validate:"required,min=1950,max=2100"`
	Semester    int           `json:"semester" validate:"required,min=1,max=12"`
	SubjectCode string        `json:"subject_code" validate:"required,code"`
	Date        core.Date     `json:"attendance_date" validate:"required"`
	Marks       []StudentMark `json:"attendanceData" validate:"required,min=1,dive"`
	IsLab       bool          `json:"isLab"`
	LabBatch    string        `json:"labBatch"`
}

type StudentMark struct {
	RollNumber string `json:"rollNumber" validate:"omitempty,code"`
	Status     Status `json:"record" validate:"required,status"`
	Period     int    `json:"period" validate:"min=0,max=12"`
	DayOrder   string `json:"day_order" validate:"omitempty,max=20"`
}

func (na *NewAttendance) Validate(validate *validator.Validate) error {
	na.Branch = core.CleanCode(na.Branch)
	na.Section = core.CleanCode(na.Section)
	na.SubjectCode = core.CleanCode(na.SubjectCode)
	na.LabBatch = core.CleanString(na.LabBatch)
	for i := range na.Marks {
		m := &na.Marks[i]
		m.RollNumber = core.CleanCode(m.RollNumber)
		m.Status = Status(core.CleanCode(string(m.Status)))
		m.DayOrder = core.CleanString(m.DayOrder)
		if m.Period == 0 {
			m.Period = periodFN
		}
	}
	return validate.Struct(na)
}

// records returns the Records of the explicit (roll numbered) marks.
func (na NewAttendance) records() []Record {
	records := make([]Record, 0, len(na.Marks))
	for _, m := range na.Marks {
		if m.RollNumber == "" {
			continue
		}
		records = append(records, na.record(m.RollNumber, m))
	}
	return records
}

func (na NewAttendance) record(roll string, m StudentMark) Record {
	return Record{
		RollNumber:  roll,
		Branch:      na.Branch,
		Section:     na.Section,
		BatchYear:   na.BatchYear,
		Semester:    na.Semester,
		SubjectCode: na.SubjectCode,
		Date:        na.Date,
		Period:      m.Period,
		DayOrder:    m.DayOrder,
		Status:      m.Status,
	}
}

// Key identifies a set of cached percentages. RollNumber is not part of it:
// every student of the class shares the same Key.
type Key struct {
	Branch       string    `query:"branch" validate:"required,code"`
	AcademicYear int       `query:"academicYear" validate:"required,min=1950,max=2100"`
	Semester     int       `query:"semester" validate:"required,min=1,max=12"`
	Section      string    `query:"section" validate:"required,code"`
	SubjectCode  string    `query:"subject_code" validate:"required,code"`
	FromDate     core.Date `query:"from_date" validate:"required"`
	ToDate       core.Date `query:"to_date" validate:"required"`
	Entry        string    `query:"entry" validate:"required,code"`
}

func (k *Key) Validate(validate *validator.Validate) error {
	k.Branch = core.CleanCode(k.Branch)
	k.Section = core.CleanCode(k.Section)
	k.SubjectCode = core.CleanCode(k.SubjectCode)
	if k.SubjectCode == "" {
		k.SubjectCode = AllSubjects
	}
	k.Entry = core.CleanString(k.Entry)
	return validate.Struct(k)
}

func (k Key) IsOverall() bool {
	return k.SubjectCode == AllSubjects
}

// Mark is a stored attendance mark joined with the name of its student; the aggregation input.
type Mark struct {
	RollNumber  string `db:"roll_number"`
	StudentName string `db:"student_name"`
	SubjectCode string `db:"subject_code"`
	Status      Status `db:"record"`
}

// Scope is the set of cached percentages a new attendance mark makes stale:
// those of the class, for the mark's subject or ALL, whose date range contains the mark date.
type Scope struct {
	Branch      string
	BatchYear   int
	Semester    int
	Section     string
	SubjectCode string
	Date        core.Date
}

// Class identifies the attendance of one section for a semester.
type Class struct {
	Branch   string
	Year     int
	Semester int
	Section  string
}

func (c Class) String() string {
	return fmt.Sprintf("%s/%d/%d/%s", c.Branch, c.Year, c.Semester, c.Section)
}

func (k Key) Class() Class {
	return Class{Branch: k.Branch, Year: k.AcademicYear, Semester: k.Semester, Section: k.Section}
}

func (na NewAttendance) Class() Class {
	return Class{Branch: na.Branch, Year: na.BatchYear, Semester: na.Semester, Section: na.Section}
}

func scopeOf(r Record) Scope {
	return Scope{
		Branch:      r.Branch,
		BatchYear:   r.BatchYear,
		Semester:    r.Semester,
		Section:     r.Section,
		SubjectCode: r.SubjectCode,
		Date:        r.Date,
	}
}

// RecordResult is the outcome of an attendance write.
type RecordResult struct {
	Message  string `json:"message"`
	Inserted int    `json:"inserted"`
	Replaced int    `json:"replaced,omitempty"`
}

// RecordFilter selects stored records for the admin views. Zero fields are ignored.
type RecordFilter struct {
	Branch      string
	Section     string
	SubjectCode string
	From        core.Date
	To          core.Date
	Period      int
}

// RecordView is a stored record as listed by the admin views.
type RecordView struct {
	RollNumber  string    `json:"roll_number" db:"roll_number"`
	StudentName string    `json:"student_name" db:"student_name"`
	Branch      string    `json:"branch" db:"branch"`
	Section     string    `json:"section" db:"section"`
	BatchYear   int       `json:"batchYear" db:"batch_year"`
	SubjectCode string    `json:"subject_code" db:"subject_code"`
	Date        core.Date `json:"attendance_date" db:"attendance_date"`
	Period      int       `json:"period" db:"period"`
	Status      Status    `json:"record" db:"record"`
}

type DayQuery struct {
	Date   core.Date `query:"date" validate:"required"`
	Entry  string    `query:"entry"`
	Branch string    `query:"branch" validate:"omitempty,code"`
}

type MonthQuery struct {
	Month  string `query:"month" validate:"required"`
	Entry  string `query:"entry"`
	Branch string `query:"branch" validate:"omitempty,code"`
}

type DurationQuery struct {
	From   core.Date `query:"from" validate:"required"`
	To     core.Date `query:"to" validate:"required"`
	Branch string    `query:"branch" validate:"omitempty,code"`
}

type SubjectQuery struct {
	Branch  string    `query:"branch" validate:"required,code"`
	Subject string    `query:"subject" validate:"required,code"`
	Section string    `query:"section" validate:"required,code"`
	Date    core.Date `query:"date"`
}

// ThresholdRow is an overall percentage under the attendance threshold.
type ThresholdRow struct {
	RollNumber   string    `json:"roll_number" db:"roll_number"`
	StudentName  string    `json:"student_name" db:"student_name"`
	Branch       string    `json:"branch" db:"branch"`
	Section      string    `json:"section" db:"section"`
	AcademicYear int       `json:"academic_year" db:"academic_year"`
	Semester     int       `json:"semester" db:"semester"`
	Percentage   Percent   `json:"percentage" db:"percentage"`
	FromDate     core.Date `json:"from_date" db:"from_date"`
	ToDate       core.Date `json:"to_date" db:"to_date"`
	Entry        string    `json:"entry" db:"entry"`
}
