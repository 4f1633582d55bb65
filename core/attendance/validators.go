package attendance

import (
	"fmt"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/campusdesk/attendance/core"
)

var (
	statusTag  = "status"
	statusText = "record must be P (present) or A (absent)"

	labBatchTag  = "labbatch"
	labBatchText = "labBatch is required for lab attendance"

	rollRequiredTag  = "rollrequired"
	rollRequiredText = "rollNumber is required unless marking a lab batch"

	dateRangeTag  = "daterange"
	dateRangeText = "{0} must not be before the start date"

	monthTag  = "month"
	monthText = "month must be of form YYYY-MM"
)

// InitValidators registers the attendance validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(statusTag, statusValidation)
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)

	validate.RegisterStructValidation(newAttendanceStructValidation, NewAttendance{})
	core.RegisterCustomTranslation(validate, translator, labBatchTag, labBatchText)
	core.RegisterCustomTranslation(validate, translator, rollRequiredTag, rollRequiredText)

	validate.RegisterStructValidation(dateRangeStructValidation, Key{}, DurationQuery{})
	core.RegisterCustomTranslation(validate, translator, dateRangeTag, dateRangeText)

	validate.RegisterStructValidation(monthStructValidation, MonthQuery{})
	core.RegisterCustomTranslation(validate, translator, monthTag, monthText)
}

func statusValidation(fl validator.FieldLevel) bool {
	s := Status(fl.Field().String())
	return s == Present || s == Absent
}

// newAttendanceStructValidation checks that roll numbers are only omitted for lab batches.
func newAttendanceStructValidation(sl validator.StructLevel) {
	na, ok := sl.Current().Interface().(NewAttendance)
	if !ok {
		return
	}
	if na.IsLab && na.LabBatch == "" {
		sl.ReportError(na.LabBatch, "labBatch", "LabBatch", labBatchTag, "")
	}
	if na.IsLab {
		return
	}
	for i, m := range na.Marks {
		if m.RollNumber == "" {
			fld := fmt.Sprintf("attendanceData[%d].rollNumber", i)
			sl.ReportError(m.RollNumber, fld, fld, rollRequiredTag, "")
		}
	}
}

func dateRangeStructValidation(sl validator.StructLevel) {
	switch q := sl.Current().Interface().(type) {
	case Key:
		if !q.FromDate.IsZero() && q.ToDate.Before(q.FromDate) {
			sl.ReportError(q.ToDate, "to_date", "ToDate", dateRangeTag, "")
		}
	case DurationQuery:
		if !q.From.IsZero() && q.To.Before(q.From) {
			sl.ReportError(q.To, "to", "To", dateRangeTag, "")
		}
	}
}

func monthStructValidation(sl validator.StructLevel) {
	q, ok := sl.Current().Interface().(MonthQuery)
	if !ok || q.Month == "" {
		return
	}
	if _, err := time.Parse("2006-01", q.Month); err != nil {
		sl.ReportError(q.Month, "month", "Month", monthTag, "")
	}
}

// monthRange returns the first & last day of a "YYYY-MM" month.
func monthRange(month string) (core.Date, core.Date, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return core.Date{}, core.Date{}, core.NewValidationError(nil, core.FieldError{Field: "month", Error: monthText})
	}
	first := core.DateOf(t)
	last := core.DateOf(t.AddDate(0, 1, -1))
	return first, last, nil
}
