package attendance

import (
	"context"
	"fmt"
	"io"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/campusdesk/attendance/core"
	"github.com/campusdesk/attendance/core/academic"
	"github.com/campusdesk/attendance/core/rollno"
)

type (
	// Repository is the data access layer of attendance records & cached percentages.
	// Every method runs on exec when provided (e.g. inside a transaction), on the repository DB otherwise.
	Repository interface {
		// ExistingRecords returns the records among rs whose natural key is already stored.
		ExistingRecords(ctx context.Context, rs []Record, exec ...core.DBExecutor) ([]Record, error)
		// InsertRecords inserts rs, failing with a *core.ConflictError on an already stored natural key.
		InsertRecords(ctx context.Context, rs []Record, exec ...core.DBExecutor) (int, error)
		// DeleteRecords deletes the stored records sharing a natural key with rs.
		DeleteRecords(ctx context.Context, rs []Record, exec ...core.DBExecutor) (int, error)
		// QueryMarks returns the marks of key's class & date range, restricted to key's subject unless ALL.
		QueryMarks(ctx context.Context, key Key, exec ...core.DBExecutor) ([]Mark, error)
		QueryRecords(ctx context.Context, filter RecordFilter, exec ...core.DBExecutor) ([]RecordView, error)

		GetPercentages(ctx context.Context, key Key, exec ...core.DBExecutor) ([]Percentage, error)
		// UpsertPercentages inserts ps, overwriting the rows sharing their natural key.
		UpsertPercentages(ctx context.Context, ps []Percentage, exec ...core.DBExecutor) error
		InvalidatePercentages(ctx context.Context, scope Scope, exec ...core.DBExecutor) (int, error)
		// LockClass blocks until the transaction exec holds the lock of class.
		// Writers of a class and fillers of its cached percentages take it, so that a fill
		// never caches counts that miss a concurrently committed write.
		LockClass(ctx context.Context, class Class, exec ...core.DBExecutor) error
		QueryStudentPercentages(ctx context.Context, roll string, exec ...core.DBExecutor) ([]Percentage, error)
		// QueryBelowThreshold returns the overall percentages under threshold, of branch when not empty.
		QueryBelowThreshold(ctx context.Context, branch string, threshold float64, exec ...core.DBExecutor) ([]ThresholdRow, error)
	}

	// Exporter writes attendance reports.
	Exporter interface {
		ExportPercentages(w io.Writer, key Key, ps []Percentage) error
		ExportThreshold(w io.Writer, threshold float64, rows []ThresholdRow) error
	}

	Service interface {
		// Percentages returns the cached percentages of key, computing & caching them on a miss.
		Percentages(ctx context.Context, key Key) ([]Percentage, error)
		ExportPercentages(ctx context.Context, key Key, w io.Writer) error

		// Record stores a class attendance. The whole batch is rejected if any mark is already stored.
		Record(ctx context.Context, na NewAttendance) (RecordResult, error)
		// Correct replaces the stored marks of a class attendance with the given ones.
		Correct(ctx context.Context, na NewAttendance) (RecordResult, error)

		BelowThreshold(ctx context.Context, branch string) ([]ThresholdRow, error)
		NotifyBelowThreshold(ctx context.Context, branch string, cc ...mail.Address) (int, error)

		DayView(ctx context.Context, q DayQuery) ([]RecordView, error)
		MonthView(ctx context.Context, q MonthQuery) ([]RecordView, error)
		DurationView(ctx context.Context, q DurationQuery) ([]RecordView, error)
		SubjectView(ctx context.Context, q SubjectQuery) ([]RecordView, error)

		StudentPercentages(ctx context.Context, roll string) ([]Percentage, error)
		StudentSummary(ctx context.Context, roll string) (Summary, error)
	}

	service struct {
		repo     Repository
		acadRepo academic.Repository
		tx       core.Transactor
		mailSvc  core.EmailService
		exporter Exporter
		conf     *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	acadRepo academic.Repository,
	tx core.Transactor,
	mailSvc core.EmailService,
	exporter Exporter,
	conf *core.Config,
) Service {
	return &service{
		repo:     repo,
		acadRepo: acadRepo,
		tx:       tx,
		mailSvc:  mailSvc,
		exporter: exporter,
		conf:     conf,
	}
}

func (svc *service) Percentages(ctx context.Context, key Key) ([]Percentage, error) {
	var result []Percentage
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		cached, err := svc.repo.GetPercentages(ctx, key, exec)
		if err != nil {
			return errors.Wrap(err, "getting cached percentages")
		}
		if len(cached) > 0 {
			SortPercentages(cached)
			result = cached
			return nil
		}

		if err = svc.repo.LockClass(ctx, key.Class(), exec); err != nil {
			return errors.Wrap(err, "locking class")
		}
		marks, err := svc.repo.QueryMarks(ctx, key, exec)
		if err != nil {
			return errors.Wrap(err, "querying marks")
		}
		result = Aggregate(key, marks)
		if len(result) == 0 {
			return nil
		}
		return errors.Wrap(svc.repo.UpsertPercentages(ctx, result, exec), "caching percentages")
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = []Percentage{}
	}
	return result, nil
}

func (svc *service) ExportPercentages(ctx context.Context, key Key, w io.Writer) error {
	ps, err := svc.Percentages(ctx, key)
	if err != nil {
		return err
	}
	return errors.Wrap(svc.exporter.ExportPercentages(w, key, ps), "exporting percentages")
}

// expand returns the records of na, resolving lab batch wide marks to one record per
// batch member without an explicit mark for the same period & day order.
func (svc *service) expand(ctx context.Context, na NewAttendance, exec core.DBExecutor) ([]Record, error) {
	records := na.records()
	if !na.IsLab {
		return records, nil
	}

	members, err := academic.ResolveLabBatch(ctx, svc.acadRepo, na.Branch, na.Section, na.BatchYear, na.LabBatch, exec)
	if err != nil {
		return nil, err
	}

	type slot struct {
		roll     string
		period   int
		dayOrder string
	}
	explicit := make(map[slot]struct{}, len(records))
	for _, r := range records {
		explicit[slot{r.RollNumber, r.Period, r.DayOrder}] = struct{}{}
	}
	for _, m := range na.Marks {
		if m.RollNumber != "" {
			continue
		}
		for _, roll := range members {
			if _, ok := explicit[slot{roll, m.Period, m.DayOrder}]; ok {
				continue
			}
			records = append(records, na.record(roll, m))
		}
	}
	return records, nil
}

func duplicateError(r Record) error {
	return core.NewConflictError("attendance already recorded for roll number %s (%s)", r.RollNumber, r.Key())
}

// checkBatchDuplicates rejects a batch marking the same natural key twice.
func checkBatchDuplicates(records []Record) error {
	seen := make(map[RecordKey]struct{}, len(records))
	for _, r := range records {
		k := r.Key()
		if _, ok := seen[k]; ok {
			return core.NewConflictError("roll number %s is marked more than once (%s)", r.RollNumber, k)
		}
		seen[k] = struct{}{}
	}
	return nil
}

func (svc *service) invalidate(ctx context.Context, records []Record, exec core.DBExecutor) error {
	scopes := make(map[Scope]struct{})
	for _, r := range records {
		scopes[scopeOf(r)] = struct{}{}
	}
	for scope := range scopes {
		if _, err := svc.repo.InvalidatePercentages(ctx, scope, exec); err != nil {
			return errors.Wrap(err, "invalidating cached percentages")
		}
	}
	return nil
}

func (svc *service) Record(ctx context.Context, na NewAttendance) (RecordResult, error) {
	var inserted int
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.LockClass(ctx, na.Class(), exec); err != nil {
			return errors.Wrap(err, "locking class")
		}
		records, err := svc.expand(ctx, na, exec)
		if err != nil {
			return err
		}
		if err = checkBatchDuplicates(records); err != nil {
			return err
		}

		existing, err := svc.repo.ExistingRecords(ctx, records, exec)
		if err != nil {
			return errors.Wrap(err, "checking existing records")
		}
		if len(existing) > 0 {
			rollno.SortBy(existing, func(i int) string { return existing[i].RollNumber })
			return duplicateError(existing[0])
		}

		if inserted, err = svc.repo.InsertRecords(ctx, records, exec); err != nil {
			return errors.Wrap(err, "inserting records")
		}
		return svc.invalidate(ctx, records, exec)
	})
	if err != nil {
		return RecordResult{}, err
	}
	return RecordResult{Message: "attendance saved successfully", Inserted: inserted}, nil
}

func (svc *service) Correct(ctx context.Context, na NewAttendance) (RecordResult, error) {
	var inserted, replaced int
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.LockClass(ctx, na.Class(), exec); err != nil {
			return errors.Wrap(err, "locking class")
		}
		records, err := svc.expand(ctx, na, exec)
		if err != nil {
			return err
		}
		if err = checkBatchDuplicates(records); err != nil {
			return err
		}

		if replaced, err = svc.repo.DeleteRecords(ctx, records, exec); err != nil {
			return errors.Wrap(err, "deleting records")
		}
		if inserted, err = svc.repo.InsertRecords(ctx, records, exec); err != nil {
			return errors.Wrap(err, "inserting records")
		}
		return svc.invalidate(ctx, records, exec)
	})
	if err != nil {
		return RecordResult{}, err
	}
	return RecordResult{Message: "attendance corrected successfully", Inserted: inserted, Replaced: replaced}, nil
}

func (svc *service) BelowThreshold(ctx context.Context, branch string) ([]ThresholdRow, error) {
	rows, err := svc.repo.QueryBelowThreshold(ctx, core.CleanCode(branch), svc.conf.Attendance.Threshold)
	if err != nil {
		return nil, errors.Wrap(err, "querying percentages below threshold")
	}
	SortThresholdRows(rows)
	return rows, nil
}

type lowAttendanceData struct {
	Threshold float64
	Branch    string
	Rows      []ThresholdRow
}

// NotifyBelowThreshold emails the students under the attendance threshold, with an xlsx report,
// to the configured report recipients and cc. It returns the number of students reported.
func (svc *service) NotifyBelowThreshold(ctx context.Context, branch string, cc ...mail.Address) (int, error) {
	branch = core.CleanCode(branch)
	to := append(append([]mail.Address{}, svc.conf.Attendance.ReportRecipients...), cc...)
	if len(to) == 0 {
		return 0, core.NewValidationError(errors.New("no report recipients configured"))
	}

	rows, err := svc.BelowThreshold(ctx, branch)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	msg := &core.EmailMessage{
		To:           to,
		Subject:      "Low attendance report",
		TemplateName: "low_attendance",
		TemplateData: lowAttendanceData{Threshold: svc.conf.Attendance.Threshold, Branch: branch, Rows: rows},
	}
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(svc.exporter.ExportThreshold(pw, svc.conf.Attendance.Threshold, rows))
	}()
	filename := "low-attendance.xlsx"
	if branch != "" {
		filename = fmt.Sprintf("low-attendance-%s.xlsx", branch)
	}
	if err = msg.Attach(pr, filename, xlsxContentType); err != nil {
		return 0, errors.Wrap(err, "attaching report")
	}

	svc.mailSvc.SendMessages(msg)
	return len(rows), nil
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (svc *service) views(ctx context.Context, filter RecordFilter) ([]RecordView, error) {
	filter.Branch = core.CleanCode(filter.Branch)
	rows, err := svc.repo.QueryRecords(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying records")
	}
	return rows, nil
}

// DayView lists the marks of a date at the entry period, one per student.
func (svc *service) DayView(ctx context.Context, q DayQuery) ([]RecordView, error) {
	rows, err := svc.views(ctx, RecordFilter{Branch: q.Branch, From: q.Date, To: q.Date, Period: EntryPeriod(q.Entry)})
	if err != nil {
		return nil, err
	}
	SortRecordViews(rows, false)
	return dedupeByRoll(rows), nil
}

func (svc *service) MonthView(ctx context.Context, q MonthQuery) ([]RecordView, error) {
	from, to, err := monthRange(q.Month)
	if err != nil {
		return nil, err
	}
	rows, err := svc.views(ctx, RecordFilter{Branch: q.Branch, From: from, To: to, Period: EntryPeriod(q.Entry)})
	if err != nil {
		return nil, err
	}
	SortRecordViews(rows, true)
	return rows, nil
}

func (svc *service) DurationView(ctx context.Context, q DurationQuery) ([]RecordView, error) {
	rows, err := svc.views(ctx, RecordFilter{Branch: q.Branch, From: q.From, To: q.To})
	if err != nil {
		return nil, err
	}
	SortRecordViews(rows, true)
	return rows, nil
}

// SubjectView lists the first period marks of a subject for a class, today unless a date is given.
func (svc *service) SubjectView(ctx context.Context, q SubjectQuery) ([]RecordView, error) {
	date := q.Date
	if date.IsZero() {
		date = core.Today()
	}
	rows, err := svc.views(ctx, RecordFilter{
		Branch:      q.Branch,
		Section:     core.CleanCode(q.Section),
		SubjectCode: core.CleanCode(q.Subject),
		From:        date,
		To:          date,
		Period:      periodFN,
	})
	if err != nil {
		return nil, err
	}
	SortRecordViews(rows, false)
	return rows, nil
}

func (svc *service) StudentPercentages(ctx context.Context, roll string) ([]Percentage, error) {
	s, err := svc.acadRepo.GetStudent(ctx, core.CleanCode(roll))
	if err != nil {
		return nil, err
	}
	ps, err := svc.repo.QueryStudentPercentages(ctx, s.RollNumber)
	if err != nil {
		return nil, errors.Wrap(err, "querying student percentages")
	}
	sortStudentPercentages(ps)
	return ps, nil
}
