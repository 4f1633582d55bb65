// Package inmemdb is an in-memory implementation of the repositories, used by tests.
package inmemdb

import (
	"context"
	"sync"

	"github.com/campusdesk/attendance/core"
	"github.com/campusdesk/attendance/core/academic"
	"github.com/campusdesk/attendance/core/attendance"
	"github.com/campusdesk/attendance/core/user"
)

type (
	markKey struct {
		roll    string
		subject string
	}

	percentageKey struct {
		branch       string
		academicYear int
		semester     int
		section      string
		subject      string
		roll         string
		from         string
		to           string
		entry        string
	}

	markRow struct {
		academic.Mark
		cat1, cat2, model *float64
	}

	tables struct {
		users       map[string]user.User
		students    map[string]academic.Student
		subjects    map[string]academic.Subject
		labBatches  map[string]academic.LabBatch
		marks       map[markKey]markRow
		records     map[attendance.RecordKey]attendance.Record
		percentages map[percentageKey]attendance.Percentage
	}

	// DB holds every table behind a single lock.
	// Transactions are serialized and roll back by restoring a snapshot of the tables.
	DB struct {
		mu   sync.RWMutex
		txMu sync.Mutex
		t    tables
	}
)

var _ core.Transactor = (*DB)(nil)

func Open() *DB {
	return &DB{t: newTables()}
}

func newTables() tables {
	return tables{
		users:       make(map[string]user.User),
		students:    make(map[string]academic.Student),
		subjects:    make(map[string]academic.Subject),
		labBatches:  make(map[string]academic.LabBatch),
		marks:       make(map[markKey]markRow),
		records:     make(map[attendance.RecordKey]attendance.Record),
		percentages: make(map[percentageKey]attendance.Percentage),
	}
}

func (t tables) clone() tables {
	c := newTables()
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.students {
		c.students[k] = v
	}
	for k, v := range t.subjects {
		c.subjects[k] = v
	}
	for k, v := range t.labBatches {
		c.labBatches[k] = v
	}
	for k, v := range t.marks {
		c.marks[k] = v
	}
	for k, v := range t.records {
		c.records[k] = v
	}
	for k, v := range t.percentages {
		c.percentages[k] = v
	}
	return c
}

// InTx runs fn, restoring the tables as they were before fn if it fails.
func (db *DB) InTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.RLock()
	snapshot := db.t.clone()
	db.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(nil); err != nil {
		db.mu.Lock()
		db.t = snapshot
		db.mu.Unlock()
		return err
	}
	return nil
}

// Flush empties every table.
func (db *DB) Flush() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.t = newTables()
}
