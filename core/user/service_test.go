package user_test

import (
	"context"
	"io/ioutil"
	"log"
	"os"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusdesk/attendance/core"
	"github.com/campusdesk/attendance/core/academic"
	"github.com/campusdesk/attendance/core/user"
	"github.com/campusdesk/attendance/fs"
	"github.com/campusdesk/attendance/services/email"
	"github.com/campusdesk/attendance/services/logger"
	"github.com/campusdesk/attendance/storage/database/inmem"
	"github.com/campusdesk/attendance/tests"
)

const strongPassword = "Xk9#mPq2vLr!"

var (
	ctx      = context.Background()
	acadRepo academic.Repository
	conf     *core.Config
	logger   core.Logger
	validate *validator.Validate
)

func TestMain(m *testing.M) {
	conf = &core.Config{
		AppName:                   "Attendance",
		SecretKey:                 "test-secret",
		FrontendBaseURL:           "http://localhost:3000",
		TestMode:                  true,
		PasswordResetTimeoutDelta: time.Hour,
	}
	logger = logsvc.NewRollbarLogger(log.New(ioutil.Discard, "", 0), conf)
	core.ParseEmailTemplates(appfs.FS, logger, true)
	if err := user.LoadCommonPasswords(appfs.FS, appfs.CommonPasswordsFile); err != nil {
		log.Fatalf("LoadCommonPasswords(): %v", err)
	}

	locale := en.New()
	translator, _ := ut.New(locale, locale).GetTranslator("en")
	validate = validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	os.Exit(m.Run())
}

func setup(t *testing.T) (user.Service, user.Repository) {
	db := inmemdb.Open()
	repo := inmemdb.NewUserRepository(db)
	acadRepo = inmemdb.NewAcademicRepository(db)
	emailsvc.ResetSentMessages()
	return user.NewServiceMock(repo, acadRepo, emailsvc.NewConsoleServiceMock(conf, logger), conf), repo
}

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	switch e := errors.Cause(err).(type) {
	case *core.ValidationError:
		require.NotEmpty(t, e.Fields)
		return e.Fields[0].Field
	case validator.ValidationErrors:
		return e[0].Field()
	}
	t.Fatalf("not a validation error: %v", err)
	return ""
}

func TestService_Create(t *testing.T) {
	svc, repo := setup(t)
	testutil.CreateUser(t, repo, "Faculty", "faculty", "faculty@example.com", "", []string{user.RoleFaculty}, true)

	tests := []struct {
		name      string
		nu        user.NewUser
		wantField string
	}{
		{
			name:      "username taken",
			nu:        user.NewUser{Name: "X", Username: "Faculty", Password: strongPassword, PasswordConfirm: strongPassword},
			wantField: "username",
		},
		{
			name:      "email taken",
			nu:        user.NewUser{Name: "X", Email: "FACULTY@example.com", Password: strongPassword, PasswordConfirm: strongPassword},
			wantField: "email",
		},
		{
			name:      "common password",
			nu:        user.NewUser{Name: "X", Username: "newbie", Password: "password123", PasswordConfirm: "password123"},
			wantField: "password",
		},
		{
			name:      "unknown role",
			nu:        user.NewUser{Name: "X", Username: "newbie", Password: strongPassword, PasswordConfirm: strongPassword, Roles: []string{"janitor:"}},
			wantField: "roles",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nu.Validate(ctx, validate, svc)
			require.Error(t, err)
			assert.Equal(t, tt.wantField, fieldOf(t, err))
		})
	}

	t.Run("valid", func(t *testing.T) {
		testutil.CreateStudent(t, acadRepo, "21CS1", "Student", "CSE", "A", 2021)
		nu := user.NewUser{
			Name: " Student ", Email: "Student@Example.com", RollNumber: "21cs1",
			Password: strongPassword, PasswordConfirm: strongPassword, Roles: []string{user.RoleStudent},
		}
		require.NoError(t, nu.Validate(ctx, validate, svc))
		usr, err := svc.Create(ctx, nu)
		require.NoError(t, err)
		assert.Equal(t, "Student", usr.Name)
		assert.Equal(t, "student@example.com", usr.Email)
		assert.Equal(t, "21CS1", usr.RollNumber)
		assert.Equal(t, "21cs1", usr.Username)
		assert.True(t, usr.IsStudent())
		assert.NoError(t, usr.CheckPassword(strongPassword))

		got, err := svc.GetByUsernameOrEmail(ctx, "STUDENT@example.com")
		require.NoError(t, err)
		assert.Equal(t, usr.ID, got.ID)
	})
}

func TestService_Create_student(t *testing.T) {
	svc, _ := setup(t)
	testutil.CreateStudent(t, acadRepo, "21CS2", "Bala", "CSE", "A", 2021)

	student := func(uname, roll string) user.NewUser {
		return user.NewUser{
			Name: "Bala", Username: uname, RollNumber: roll,
			Password: strongPassword, PasswordConfirm: strongPassword, Roles: []string{user.RoleStudent},
		}
	}

	tests := []struct {
		name      string
		nu        user.NewUser
		wantField string
	}{
		{name: "roll number required", nu: student("someone", ""), wantField: "rollNumber"},
		{name: "username is not the roll number", nu: student("ghost1", "21CS2"), wantField: "username"},
		{
			name: "roll number on a faculty account",
			nu: user.NewUser{
				Name: "Faculty", Username: "faculty", RollNumber: "21CS2",
				Password: strongPassword, PasswordConfirm: strongPassword, Roles: []string{user.RoleFaculty},
			},
			wantField: "rollNumber",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nu.Validate(ctx, validate, svc)
			require.Error(t, err)
			assert.Equal(t, tt.wantField, fieldOf(t, err))
		})
	}

	t.Run("unknown roll number", func(t *testing.T) {
		nu := student("", "99zz99")
		require.NoError(t, nu.Validate(ctx, validate, svc))
		assert.Equal(t, "99zz99", nu.Username)
		_, err := svc.Create(ctx, nu)
		require.Error(t, err)
		assert.Equal(t, "rollNumber", fieldOf(t, err))
		verr := errors.Cause(err).(*core.ValidationError)
		assert.Equal(t, user.ErrUnknownRollNumber, verr.Err)
	})

	t.Run("linked to the student", func(t *testing.T) {
		nu := student("21CS2", "21cs2")
		require.NoError(t, nu.Validate(ctx, validate, svc))
		usr, err := svc.Create(ctx, nu)
		require.NoError(t, err)
		assert.Equal(t, "21cs2", usr.Username)
		assert.Equal(t, "21CS2", usr.RollNumber)

		uu := user.UpdateUser{Username: "bala"}
		err = uu.Validate(ctx, usr, validate, svc)
		assert.Equal(t, "username", fieldOf(t, err))
	})
}

func TestService_Update(t *testing.T) {
	svc, repo := setup(t)
	usr := testutil.CreateUser(t, repo, "Faculty", "faculty", "faculty@example.com", "", []string{user.RoleFaculty}, true)
	testutil.CreateUser(t, repo, "Other", "other", "other@example.com", "", nil, true)

	uu := user.UpdateUser{Username: "other"}
	err := uu.Validate(ctx, usr, validate, svc)
	assert.Equal(t, "username", fieldOf(t, err))

	inactive := false
	uu = user.UpdateUser{Name: "HOD", Roles: []string{user.RoleFacultyHOD}, IsActive: &inactive}
	require.NoError(t, uu.Validate(ctx, usr, validate, svc))
	updated, err := svc.Update(ctx, usr, uu)
	require.NoError(t, err)
	assert.Equal(t, "HOD", updated.Name)
	assert.Equal(t, "faculty", updated.Username)
	assert.False(t, updated.Active())
	assert.True(t, updated.IsFaculty())
}

func TestService_PasswordReset(t *testing.T) {
	svc, repo := setup(t)
	usr := testutil.CreateUser(t, repo, "Faculty", "faculty", "faculty@example.com", "old-Pa55word!", nil, true)
	testutil.CreateUser(t, repo, "Gone", "gone", "gone@example.com", "old-Pa55word!", nil, false)

	assert.True(t, core.IsNotFound(svc.RequestPasswordReset(ctx, "nobody@example.com")))
	assert.True(t, core.IsNotFound(svc.RequestPasswordReset(ctx, "gone@example.com")))
	assert.Empty(t, emailsvc.LastSentMessages())

	require.NoError(t, svc.RequestPasswordReset(ctx, " Faculty@example.com "))
	msgs := emailsvc.LastSentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "faculty@example.com", msgs[0].To[0].Address)

	data := msgs[0].TemplateData.(map[string]string)
	assert.Contains(t, msgs[0].TextContent, "/password-reset/"+data["UID"]+"/"+data["Token"])

	reset := user.ResetUserPassword{UID: data["UID"], Token: "bogus", Password: strongPassword, PasswordConfirm: strongPassword}
	assert.Error(t, svc.ResetPassword(ctx, reset))

	reset.Token = data["Token"]
	require.NoError(t, svc.ResetPassword(ctx, reset))

	got, err := svc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.NoError(t, got.CheckPassword(strongPassword))

	// the token is bound to the old password hash
	reset.Password, reset.PasswordConfirm = "an0ther-Pa55!", "an0ther-Pa55!"
	err = svc.ResetPassword(ctx, reset)
	verr, ok := errors.Cause(err).(*core.ValidationError)
	require.True(t, ok)
	assert.Equal(t, user.ErrInvalidResetToken, verr.Err)
}

func TestService_QueryAndDelete(t *testing.T) {
	svc, repo := setup(t)
	now := time.Now().UTC()
	a := testutil.CreateUser(t, repo, "Alice", "alice", "alice@example.com", "", []string{user.RoleAdmin}, true, now.Add(-time.Hour))
	b := testutil.CreateUser(t, repo, "Bob", "bob", "bob@example.com", "", []string{user.RoleFacultyHOD}, true, now)

	users, err := svc.Query(ctx, &user.QueryFilter{}, nil)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, a.ID, users[0].ID)

	users, err = svc.Query(ctx, &user.QueryFilter{Roles: []string{"faculty"}}, []core.DBOrdering{{Field: "name", Ascending: false}})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, b.ID, users[0].ID)

	require.NoError(t, svc.Delete(ctx, a.ID, "unknown"))
	_, err = svc.GetByID(ctx, a.ID)
	assert.True(t, core.IsNotFound(err))
}
