package echoapi_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/campusdesk/attendance/apps/api/echo"
	"github.com/campusdesk/attendance/core/user"
	"github.com/campusdesk/attendance/services/email"
	"github.com/campusdesk/attendance/tests"
)

const pwd = "old-Pa55word!"

func Test_userApi_login(t *testing.T) {
	app := setup(t)
	testutil.CreateUser(t, app.usrRepo, "Faculty", "faculty", "faculty@example.com", pwd, []string{user.RoleFaculty}, true)
	testutil.CreateUser(t, app.usrRepo, "Gone", "gone", "gone@example.com", pwd, nil, false)

	login := func(uname, password string) []byte {
		return marchallObj(t, echoapi.LoginRequest{Username: uname, Password: password})
	}

	tests := []httpTest{
		{
			name: "missing fields", method: http.MethodPost, path: "/v1/users/login", body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"username": "this field is required", "password": "this field is required"}`),
		},
		{
			name: "unknown user", method: http.MethodPost, path: "/v1/users/login", body: login("nobody", pwd),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/v1/users/login", body: login("faculty", "nope"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated", method: http.MethodPost, path: "/v1/users/login", body: login("gone", pwd),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	for _, tt := range tests {
		tt.run(t, app)
	}

	t.Run("by email", func(t *testing.T) {
		rec := app.do(newRequest(http.MethodPost, "/v1/users/login", login(" Faculty@Example.com ", pwd)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res echoapi.LoginResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		require.NotEmpty(t, res.Token)

		rec = app.do(newAuthRequest(http.MethodGet, "/v1/users/me", res.Token))
		require.Equal(t, http.StatusOK, rec.Code)
		var me user.User
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
		assert.Equal(t, "faculty", me.Username)
		assert.False(t, me.LastLogin.IsZero())

		rec = app.do(newAuthRequest(http.MethodPost, "/v1/users/token-refresh", res.Token))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func Test_userApi_permissions(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@example.com", pwd, []string{user.RoleAdmin}, true)
	faculty := testutil.CreateUser(t, app.usrRepo, "Faculty", "faculty", "faculty@example.com", pwd, []string{user.RoleFaculty}, true)
	student := testutil.CreateUser(t, app.usrRepo, "Student", "21cs1", "student@example.com", pwd, []string{user.RoleStudent}, true)

	tests := []httpTest{
		{name: "auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "me auth required", path: "/v1/users/me", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "admin required", path: "/v1/users", token: getToken(t, faculty), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "list", path: "/v1/users?ordering=name", token: getToken(t, admin), wantData: marchallList(t, admin, faculty, student)},
		{name: "roles", path: "/v1/users/roles", token: getToken(t, admin), wantData: marchallObj(t, user.Roles)},
		{name: "own profile", path: "/v1/users/" + student.ID, token: getToken(t, student), wantData: marchallObj(t, student)},
		{
			name: "other profile", path: "/v1/users/" + faculty.ID, token: getToken(t, student),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "cannot delete self", method: http.MethodDelete, path: "/v1/users/" + admin.ID, token: getToken(t, admin),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "student cannot change roles", method: http.MethodPut, path: "/v1/users/" + student.ID, token: getToken(t, student),
			body: []byte(`{"roles": ["admin:"]}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{name: "delete", method: http.MethodDelete, path: "/v1/users/" + faculty.ID, token: getToken(t, admin), wantCode: http.StatusNoContent},
	}
	for _, tt := range tests {
		tt.run(t, app)
	}
}

func Test_userApi_register(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@example.com", pwd, []string{user.RoleAdmin}, true)
	token := getToken(t, admin)

	newUser := func(uname string, roles ...string) []byte {
		return marchallObj(t, user.NewUser{
			Name: "New", Username: uname, Password: "Xk9#mPq2vLr!", PasswordConfirm: "Xk9#mPq2vLr!", Roles: roles,
		})
	}

	tests := []httpTest{
		{
			name: "role above own", method: http.MethodPost, path: "/v1/users/register", token: token,
			body: newUser("principal", user.RoleAdminPrincipal), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"roles": "not enough rights to set these roles"}`),
		},
		{
			name: "username taken", method: http.MethodPost, path: "/v1/users/register", token: token,
			body: newUser("admin"), wantCode: http.StatusBadRequest,
		},
		{
			name: "created", method: http.MethodPost, path: "/v1/users/register", token: token,
			body: newUser("hodcse", user.RoleFacultyHOD), wantCode: http.StatusCreated,
		},
	}
	for _, tt := range tests {
		tt.run(t, app)
	}

	users, err := app.usrRepo.QueryUsers(ctx, &user.QueryFilter{Search: "hodcse"}, nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.True(t, users[0].IsFaculty())
}

func Test_userApi_studentAccount(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@example.com", pwd, []string{user.RoleAdmin}, true)
	s1 := testutil.CreateStudent(t, app.acadRepo, "21CS1", "Anu", "CSE", "A", 2021)
	token := getToken(t, admin)

	newStudent := func(uname, roll string) []byte {
		return marchallObj(t, user.NewUser{
			Name: "Anu", Username: uname, Email: "anu@example.com", RollNumber: roll,
			Password: "Xk9#mPq2vLr!", PasswordConfirm: "Xk9#mPq2vLr!", Roles: []string{user.RoleStudent},
		})
	}

	tests := []httpTest{
		{
			name: "roll number required", method: http.MethodPost, path: "/v1/users/register", token: token,
			body: newStudent("anu1", ""), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"rollNumber": "a student account needs a roll number"}`),
		},
		{
			name: "username must be the roll number", method: http.MethodPost, path: "/v1/users/register", token: token,
			body: newStudent("anu1", "21CS1"), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"username": "the username of a student account is their roll number"}`),
		},
		{
			name: "unknown roll number", method: http.MethodPost, path: "/v1/users/register", token: token,
			body: newStudent("", "21CS99"), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"rollNumber": "no student has this roll number"}`),
		},
		{
			name: "created", method: http.MethodPost, path: "/v1/users/register", token: token,
			body: newStudent("", "21cs1"), wantCode: http.StatusCreated,
		},
	}
	for _, tt := range tests {
		tt.run(t, app)
	}

	usr, err := app.usrRepo.GetUser(ctx, user.GetFilter{Username: "21cs1"})
	require.NoError(t, err)
	assert.Equal(t, "21CS1", usr.RollNumber)

	rec := app.do(newAuthRequest(http.MethodGet, "/v1/users/me", getToken(t, usr)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var me echoapi.MeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, usr.ID, me.ID)
	require.NotNil(t, me.Student)
	assert.Equal(t, s1, *me.Student)

	// the student can read their own records
	rec = app.do(newAuthRequest(http.MethodGet, "/v1/students/21CS1", getToken(t, usr)))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// staff accounts have no student record
	rec = app.do(newAuthRequest(http.MethodGet, "/v1/users/me", token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"student"`)
}

func Test_userApi_passwordReset(t *testing.T) {
	app := setup(t)
	usr := testutil.CreateUser(t, app.usrRepo, "Faculty", "faculty", "faculty@example.com", pwd, []string{user.RoleFaculty}, true)

	// unknown emails get the same answer
	for _, email := range []string{"nobody@example.com", "faculty@example.com"} {
		rec := app.do(newRequest(http.MethodPost, "/v1/users/password-reset", []byte(`{"email": "`+email+`"}`)))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	msgs := emailsvc.LastSentMessages()
	require.Len(t, msgs, 1)
	data := msgs[0].TemplateData.(map[string]string)

	body := marchallObj(t, user.ResetUserPassword{
		UID: data["UID"], Token: data["Token"], Password: "Xk9#mPq2vLr!", PasswordConfirm: "Xk9#mPq2vLr!",
	})
	rec := app.do(newRequest(http.MethodPost, "/v1/users/password-reset-confirm", body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got, err := app.usrRepo.GetUser(ctx, user.GetFilter{ID: usr.ID})
	require.NoError(t, err)
	assert.NoError(t, got.CheckPassword("Xk9#mPq2vLr!"))
}
