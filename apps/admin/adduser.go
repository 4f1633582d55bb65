package main

import (
	"context"
	"time"

	"github.com/campusdesk/attendance/core"
	"github.com/campusdesk/attendance/core/user"
)

// addUser updates or creates an active user.User. Admins also get the faculty roles.
func (cli *commandLine) addUser(uname, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: uname})
	found := err == nil
	if err != nil && !core.IsNotFound(err) {
		return err
	}
	if !found {
		now := time.Now().UTC()
		usr = user.User{
			Name:      uname,
			Username:  uname,
			Email:     email,
			CreatedAt: now,
		}
	}

	if isAdmin {
		usr.Roles = append(append([]string{}, user.AdminRoles...), user.FacultyRoles...)
	}
	active := true
	usr.IsActive = &active
	usr.UpdatedAt = time.Now().UTC()
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if found {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	} else {
		if err = cli.usrRepo.CheckUsernameUniqueness(ctx, uname, email, nil); err != nil {
			return err
		}
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	}
	return err
}
