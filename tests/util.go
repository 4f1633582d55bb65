// Package testutil holds fixtures shared by the package tests.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/campusdesk/attendance/core"
	"github.com/campusdesk/attendance/core/academic"
	"github.com/campusdesk/attendance/core/attendance"
	"github.com/campusdesk/attendance/core/user"
	"github.com/campusdesk/attendance/storage/database"
)

// DatabaseURLEnv names the env var pointing at a disposable postgres database.
const DatabaseURLEnv = "TEST_DATABASE_URL"

// OpenDB opens & migrates the test database, skipping the test when none is configured.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()
	url := os.Getenv(DatabaseURLEnv)
	if url == "" {
		t.Skipf("%s not set", DatabaseURLEnv)
	}
	db, err := database.OpenURL(url)
	if err != nil {
		t.Fatalf("OpenDB(): %v", err)
	}
	if err = database.Migrate(db); err != nil {
		t.Fatalf("OpenDB(): %v", err)
	}
	ResetDB(t, db)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// ResetDB empties every table.
func ResetDB(t *testing.T, db *sqlx.DB) {
	t.Helper()
	_, err := db.Exec("TRUNCATE users, students, subjects, lab_batches, attendance, marks, attendance_percentage")
	if err != nil {
		t.Fatalf("ResetDB(): %v", err)
	}
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC().Truncate(time.Microsecond)
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  &isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateStudentUser creates the active account of the student with roll number roll.
func CreateStudentUser(t *testing.T, repo user.Repository, roll, email, pwd string) user.User {
	t.Helper()
	isActive := true
	now := time.Now().UTC().Truncate(time.Microsecond)
	usr := user.User{
		Name:       roll,
		Username:   user.StudentUsername(roll),
		Email:      email,
		RollNumber: core.CleanCode(roll),
		Roles:      []string{user.RoleStudent},
		IsActive:   &isActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("CreateStudentUser() failed: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateStudentUser() failed: %v", err)
	}
	return usr
}

func CreateStudent(t *testing.T, repo academic.Repository, roll, name, branch, section string, batchYear int) academic.Student {
	t.Helper()
	s, err := repo.CreateStudent(context.Background(), academic.Student{
		RollNumber: roll,
		Name:       name,
		Branch:     branch,
		Section:    section,
		BatchYear:  batchYear,
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return s
}

func CreateSubject(t *testing.T, repo academic.Repository, code, name, branch string, batchYear, semester int) academic.Subject {
	t.Helper()
	s, err := repo.CreateSubject(context.Background(), academic.Subject{
		Code:      code,
		Name:      name,
		Branch:    branch,
		BatchYear: batchYear,
		Semester:  semester,
	})
	if err != nil {
		t.Fatalf("CreateSubject() failed: %v", err)
	}
	return s
}

// InsertRecords stores attendance marks of one class & subject, bypassing the duplicate checks.
func InsertRecords(t *testing.T, repo attendance.Repository, base attendance.Record, date core.Date, marks map[string]attendance.Status) {
	t.Helper()
	records := make([]attendance.Record, 0, len(marks))
	for roll, status := range marks {
		r := base
		r.RollNumber = roll
		r.Date = date
		r.Status = status
		if r.Period == 0 {
			r.Period = 1
		}
		records = append(records, r)
	}
	if _, err := repo.InsertRecords(context.Background(), records); err != nil {
		t.Fatalf("InsertRecords() failed: %v", err)
	}
}
