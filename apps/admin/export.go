package main

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/campusdesk/attendance/core"
	"github.com/campusdesk/attendance/core/attendance"
)

type exportOptions struct {
	branch, section, subject, entry string
	year, semester                  int
	from, to                        string
	out                             string
}

// export writes the percentages of a class to an .xlsx file, computing and caching them when needed.
func (cli *commandLine) export(opts exportOptions) error {
	fromDate, err := core.ParseDate(opts.from)
	if err != nil {
		return errors.Wrap(err, "parsing -from")
	}
	toDate, err := core.ParseDate(opts.to)
	if err != nil {
		return errors.Wrap(err, "parsing -to")
	}

	key := attendance.Key{
		Branch:       opts.branch,
		AcademicYear: opts.year,
		Semester:     opts.semester,
		Section:      opts.section,
		SubjectCode:  opts.subject,
		FromDate:     fromDate,
		ToDate:       toDate,
		Entry:        opts.entry,
	}
	if err = key.Validate(cli.validate); err != nil {
		return err
	}

	f, err := os.Create(opts.out)
	if err != nil {
		return errors.Wrap(err, "creating output file")
	}
	if err = cli.attSvc.ExportPercentages(context.Background(), key, f); err != nil {
		_ = f.Close()
		_ = os.Remove(opts.out)
		return err
	}
	return errors.Wrap(f.Close(), "closing output file")
}
