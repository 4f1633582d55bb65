package academic

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/campusdesk/attendance/core"
	"github.com/campusdesk/attendance/core/rollno"
)

var (
	examTypeTag  = "examtype"
	examTypeText = "invalid exam type, must be one of CAT1, CAT2 or MODEL"

	rollRangeTag  = "rollrange"
	rollRangeText = "toRoll must not come before fromRoll"
)

// InitValidators registers the academic validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(examTypeTag, examTypeValidation)
	core.RegisterCustomTranslation(validate, translator, examTypeTag, examTypeText)

	validate.RegisterStructValidation(labBatchStructValidation, NewLabBatch{})
	core.RegisterCustomTranslation(validate, translator, rollRangeTag, rollRangeText)
}

func examTypeValidation(fl validator.FieldLevel) bool {
	return ExamType(fl.Field().String()).IsValid()
}

// labBatchStructValidation checks that the roll number range is not reversed.
func labBatchStructValidation(sl validator.StructLevel) {
	lb, ok := sl.Current().Interface().(NewLabBatch)
	if !ok || lb.FromRoll == "" || lb.ToRoll == "" {
		return
	}
	if rollno.Compare(lb.FromRoll, lb.ToRoll) > 0 {
		sl.ReportError(lb.ToRoll, "toRoll", "ToRoll", rollRangeTag, "")
	}
}
