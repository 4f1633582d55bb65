package academic

import (
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/campusdesk/attendance/core"
	"github.com/campusdesk/attendance/core/rollno"
)

type Student struct {
	RollNumber     string      `json:"rollNumber" db:"roll_number"`
	RegisterNumber null.String `json:"registerNumber" db:"register_number"`
	Name           string      `json:"name" db:"name"`
	Branch         string      `json:"branch" db:"branch"`
	Section        string      `json:"section" db:"section"`
	BatchYear      int         `json:"batchYear" db:"batch_year"`
	FatherName     null.String `json:"fatherName" db:"father_name"`
	ParentPhone    null.String `json:"parentPhone" db:"parent_phone"`
	Address        null.String `json:"address" db:"address"`
	Quota          null.String `json:"quota" db:"quota"`
}

// NewStudent contains information needed to register a new Student.
type NewStudent struct {
	RollNumber     string `json:"rollNumber" validate:"required,code"`
	RegisterNumber string `json:"registerNumber" validate:"omitempty,alphanum"`
	Name           string `json:"name" validate:"required"`
	Branch         string `json:"branch" validate:"required,code"`
	Section        string `json:"section" validate:"required,code"`
	BatchYear      int    `json:"batchYear" validate:"required,min=1950,max=2100"`
	FatherName     string `json:"fatherName"`
	ParentPhone    string `json:"parentPhone" validate:"omitempty,numeric,min=7,max=15"`
	Address        string `json:"address"`
	Quota          string `json:"quota"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.RollNumber = core.CleanCode(ns.RollNumber)
	ns.RegisterNumber = core.CleanString(ns.RegisterNumber)
	ns.Name = core.CleanString(ns.Name)
	ns.Branch = core.CleanCode(ns.Branch)
	ns.Section = core.CleanCode(ns.Section)
	ns.FatherName = core.CleanString(ns.FatherName)
	ns.ParentPhone = core.CleanString(ns.ParentPhone)
	ns.Address = core.CleanString(ns.Address)
	ns.Quota = core.CleanString(ns.Quota)
	return validate.Struct(ns)
}

type StudentFilter struct {
	Branch      string   `query:"branch"`
	Section     string   `query:"section"`
	BatchYear   int      `query:"batchYear"`
	RollNumbers []string `query:"-"`
}

func (sf *StudentFilter) Clean() {
	sf.Branch = core.CleanCode(sf.Branch)
	sf.Section = core.CleanCode(sf.Section)
}

// SortStudents orders students by roll number.
func SortStudents(students []Student) {
	rollno.SortBy(students, func(i int) string { return students[i].RollNumber })
}

type Subject struct {
	Code      string `json:"subject_code" db:"subject_code"`
	Name      string `json:"subject_name" db:"subject_name"`
	Branch    string `json:"branch" db:"branch"`
	BatchYear int    `json:"batchYear" db:"batch_year"`
	Semester  int    `json:"semester" db:"semester"`
}

type NewSubject struct {
	Code      string `json:"subject_code" validate:"required,code"`
	Name      string `json:"subject_name" validate:"required"`
	Branch    string `json:"branch" validate:"required,code"`
	BatchYear int    `json:"batchYear" validate:"required,min=1950,max=2100"`
	Semester  int    `json:"semester" validate:"required,min=1,max=12"`
}

func (ns *NewSubject) Validate(validate *validator.Validate) error {
	ns.Code = core.CleanCode(ns.Code)
	ns.Name = core.CleanString(ns.Name)
	ns.Branch = core.CleanCode(ns.Branch)
	return validate.Struct(ns)
}

type SubjectFilter struct {
	Branch    string `query:"branch"`
	BatchYear int    `query:"batchYear"`
	Semester  int    `query:"semester"`
}

func (sf *SubjectFilter) Clean() {
	sf.Branch = core.CleanCode(sf.Branch)
}

// LabBatch is a named subgroup of a section, used to split laboratory sessions.
// Its members are the section's students whose roll number lies in [FromRoll, ToRoll]
// plus the ExtraRolls.
type LabBatch struct {
	ID         string   `json:"id"`
	Branch     string   `json:"branch"`
	Section    string   `json:"section"`
	BatchYear  int      `json:"batchYear"`
	Name       string   `json:"name"`
	FromRoll   string   `json:"fromRoll"`
	ToRoll     string   `json:"toRoll"`
	ExtraRolls []string `json:"extraRolls"`
}

// Members resolves the batch roll numbers among the given students, in roll number order.
func (lb LabBatch) Members(students []Student) []string {
	seen := make(map[string]struct{}, len(students)+len(lb.ExtraRolls))
	members := make([]string, 0, len(students)+len(lb.ExtraRolls))
	for _, s := range students {
		if s.Branch != lb.Branch || s.Section != lb.Section || s.BatchYear != lb.BatchYear {
			continue
		}
		if _, ok := seen[s.RollNumber]; ok || !rollno.InRange(s.RollNumber, lb.FromRoll, lb.ToRoll) {
			continue
		}
		seen[s.RollNumber] = struct{}{}
		members = append(members, s.RollNumber)
	}
	for _, r := range lb.ExtraRolls {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		members = append(members, r)
	}
	rollno.Sort(members)
	return members
}

type NewLabBatch struct {
	Branch     string   `json:"branch" validate:"required,code"`
	Section    string   `json:"section" validate:"required,code"`
	BatchYear  int      `json:"batchYear" validate:"required,min=1950,max=2100"`
	Name       string   `json:"name" validate:"required"`
	FromRoll   string   `json:"fromRoll" validate:"required,code"`
	ToRoll     string   `json:"toRoll" validate:"required,code"`
	ExtraRolls []string `json:"extraRolls" validate:"omitempty,dive,code"`
}

func (nl *NewLabBatch) Validate(validate *validator.Validate) error {
	nl.Branch = core.CleanCode(nl.Branch)
	nl.Section = core.CleanCode(nl.Section)
	nl.Name = core.CleanString(nl.Name)
	nl.FromRoll = core.CleanCode(nl.FromRoll)
	nl.ToRoll = core.CleanCode(nl.ToRoll)
	for i := range nl.ExtraRolls {
		nl.ExtraRolls[i] = core.CleanCode(nl.ExtraRolls[i])
	}
	return validate.Struct(nl)
}

type LabBatchFilter struct {
	Branch    string `query:"branch"`
	Section   string `query:"section"`
	BatchYear int    `query:"batchYear"`
	Name      string `query:"name"`
}

func (lf *LabBatchFilter) Clean() {
	lf.Branch = core.CleanCode(lf.Branch)
	lf.Section = core.CleanCode(lf.Section)
	lf.Name = core.CleanString(lf.Name)
}

// Exam types
type ExamType string

const (
	ExamCAT1  ExamType = "CAT1"
	ExamCAT2  ExamType = "CAT2"
	ExamModel ExamType = "MODEL"
)

var ExamTypes = []ExamType{ExamCAT1, ExamCAT2, ExamModel}

func (et ExamType) IsValid() bool {
	for _, t := range ExamTypes {
		if et == t {
			return true
		}
	}
	return false
}

// Mark is the score of one student for one exam of one subject.
type Mark struct {
	RollNumber  string
	SubjectCode string
	Branch      string
	Section     string
	BatchYear   int
	Semester    int
	Exam        ExamType
	Value       float64
}

// NewMarks is a batch of marks for one exam of one subject.
type NewMarks struct {
	Branch      string       `json:"branch" validate:"required,code"`
	Section     string       `json:"section" validate:"required,code"`
	Semester    int          `json:"semester" validate:"required,min=1,max=12"`
	BatchYear   int          `json:"batchYear" validate:"required,min=1950,max=2100"`
	SubjectCode string       `json:"subjectCode" validate:"required,code"`
	ExamType    ExamType     `json:"examType" validate:"required,examtype"`
	Assessments []Assessment `json:"assessments" validate:"required,min=1,dive"`
}

type Assessment struct {
	RollNumber string  `json:"rollNumber" validate:"required,code"`
	Marks      float64 `json:"marks" validate:"min=0,max=100"`
}

func (nm *NewMarks) Validate(validate *validator.Validate) error {
	nm.Branch = core.CleanCode(nm.Branch)
	nm.Section = core.CleanCode(nm.Section)
	nm.SubjectCode = core.CleanCode(nm.SubjectCode)
	nm.ExamType = ExamType(core.CleanCode(string(nm.ExamType)))
	for i := range nm.Assessments {
		nm.Assessments[i].RollNumber = core.CleanCode(nm.Assessments[i].RollNumber)
	}
	return validate.Struct(nm)
}

func (nm NewMarks) marks() []Mark {
	marks := make([]Mark, 0, len(nm.Assessments))
	for _, a := range nm.Assessments {
		marks = append(marks, Mark{
			RollNumber:  a.RollNumber,
			SubjectCode: nm.SubjectCode,
			Branch:      nm.Branch,
			Section:     nm.Section,
			BatchYear:   nm.BatchYear,
			Semester:    nm.Semester,
			Exam:        nm.ExamType,
			Value:       a.Marks,
		})
	}
	return marks
}

// Result is a subject of the student's curriculum with the marks obtained so far.
type Result struct {
	SubjectCode string       `json:"subject_code" db:"subject_code"`
	SubjectName string       `json:"subject_name" db:"subject_name"`
	Semester    int          `json:"semester" db:"semester"`
	CAT1        null.Float64 `json:"cat1" db:"cat1"`
	CAT2        null.Float64 `json:"cat2" db:"cat2"`
	Model       null.Float64 `json:"model" db:"model"`
}

// SortResults orders results by semester then subject code.
func SortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Semester != results[j].Semester {
			return results[i].Semester < results[j].Semester
		}
		return results[i].SubjectCode < results[j].SubjectCode
	})
}
