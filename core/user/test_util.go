package user

import (
	"context"

	"github.com/campusdesk/attendance/core"
	"github.com/campusdesk/attendance/core/academic"
)

type serviceMock struct {
	*service
}

// NewServiceMock returns a Service sending the password reset emails synchronously.
func NewServiceMock(repo Repository, students academic.Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &serviceMock{service: newService(repo, students, mailSvc, conf)}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.Active() {
		return ErrNotFound
	}
	// run synchronously
	svc.sendPasswordResetMail(usr)
	return nil
}
