package echoapi

import (
	"bytes"
	"fmt"
	"net/http"
	"net/mail"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/campusdesk/attendance/core/attendance"
	"github.com/campusdesk/attendance/core/user"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type attendanceApi struct {
	svc      attendance.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := attendanceApi{
		svc:      deps.AttendanceSvc,
		usrSvc:   deps.UserSvc,
		validate: deps.Validate,
	}

	ag := g.Group("/attendance", jwt, staffMiddleware())
	ag.POST("", api.record)
	ag.PUT("", api.correct)
	ag.GET("/percentage", api.percentages)
	ag.GET("/percentage/export", api.exportPercentages)
	ag.GET("/threshold", api.belowThreshold)
	ag.POST("/threshold/notify", api.notifyBelowThreshold, adminMiddleware())

	// views
	ag.GET("/day", api.dayView)
	ag.GET("/month", api.monthView)
	ag.GET("/duration", api.durationView)
	ag.GET("/subject", api.subjectView)
}

// Handlers

func (api *attendanceApi) bindAttendance(ctx echo.Context) (attendance.NewAttendance, error) {
	var data attendance.NewAttendance
	if err := ctx.Bind(&data); err != nil {
		return data, errors.Wrap(err, "binding to NewAttendance")
	}
	return data, data.Validate(api.validate)
}

func (api *attendanceApi) record(ctx echo.Context) error {
	data, err := api.bindAttendance(ctx)
	if err != nil {
		return err
	}

	res, err := api.svc.Record(requestContext(ctx), data)
	if err != nil {
		return errors.Wrap(err, "recording attendance")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *attendanceApi) correct(ctx echo.Context) error {
	data, err := api.bindAttendance(ctx)
	if err != nil {
		return err
	}

	res, err := api.svc.Correct(requestContext(ctx), data)
	if err != nil {
		return errors.Wrap(err, "correcting attendance")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *attendanceApi) bindKey(ctx echo.Context) (attendance.Key, error) {
	var key attendance.Key
	if err := ctx.Bind(&key); err != nil {
		return key, errors.Wrap(err, "binding to Key")
	}
	return key, key.Validate(api.validate)
}

func (api *attendanceApi) percentages(ctx echo.Context) error {
	key, err := api.bindKey(ctx)
	if err != nil {
		return err
	}

	ps, err := api.svc.Percentages(requestContext(ctx), key)
	if err != nil {
		return errors.Wrap(err, "getting percentages")
	}
	return ctx.JSON(http.StatusOK, percentagesResponse(ps))
}

func (api *attendanceApi) exportPercentages(ctx echo.Context) error {
	key, err := api.bindKey(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err = api.svc.ExportPercentages(requestContext(ctx), key, &buf); err != nil {
		return errors.Wrap(err, "exporting percentages")
	}
	filename := fmt.Sprintf("attendance-%s-%s-%s-%s.xlsx", key.Branch, key.Section, key.SubjectCode, key.Entry)
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return ctx.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (api *attendanceApi) belowThreshold(ctx echo.Context) error {
	rows, err := api.svc.BelowThreshold(requestContext(ctx), ctx.QueryParam("branch"))
	if err != nil {
		return errors.Wrap(err, "getting percentages below threshold")
	}
	if rows == nil {
		rows = []attendance.ThresholdRow{}
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *attendanceApi) notifyBelowThreshold(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var cc []mail.Address
	if ctxUsr.Email != "" {
		cc = append(cc, mail.Address{Name: ctxUsr.Name, Address: ctxUsr.Email})
	}

	reported, err := api.svc.NotifyBelowThreshold(requestContext(ctx), ctx.QueryParam("branch"), cc...)
	if err != nil {
		return errors.Wrap(err, "notifying low attendance")
	}
	return ctx.JSON(http.StatusOK, NotifyResponse{Reported: reported})
}

func (api *attendanceApi) dayView(ctx echo.Context) error {
	var q attendance.DayQuery
	if err := ctx.Bind(&q); err != nil {
		return errors.Wrap(err, "binding to DayQuery")
	}
	if err := api.validate.Struct(q); err != nil {
		return err
	}

	rows, err := api.svc.DayView(requestContext(ctx), q)
	if err != nil {
		return errors.Wrap(err, "getting day view")
	}
	return ctx.JSON(http.StatusOK, viewsResponse(rows))
}

func (api *attendanceApi) monthView(ctx echo.Context) error {
	var q attendance.MonthQuery
	if err := ctx.Bind(&q); err != nil {
		return errors.Wrap(err, "binding to MonthQuery")
	}
	if err := api.validate.Struct(q); err != nil {
		return err
	}

	rows, err := api.svc.MonthView(requestContext(ctx), q)
	if err != nil {
		return errors.Wrap(err, "getting month view")
	}
	return ctx.JSON(http.StatusOK, viewsResponse(rows))
}

func (api *attendanceApi) durationView(ctx echo.Context) error {
	var q attendance.DurationQuery
	if err := ctx.Bind(&q); err != nil {
		return errors.Wrap(err, "binding to DurationQuery")
	}
	if err := api.validate.Struct(q); err != nil {
		return err
	}

	rows, err := api.svc.DurationView(requestContext(ctx), q)
	if err != nil {
		return errors.Wrap(err, "getting duration view")
	}
	return ctx.JSON(http.StatusOK, viewsResponse(rows))
}

func (api *attendanceApi) subjectView(ctx echo.Context) error {
	var q attendance.SubjectQuery
	if err := ctx.Bind(&q); err != nil {
		return errors.Wrap(err, "binding to SubjectQuery")
	}
	if err := api.validate.Struct(q); err != nil {
		return err
	}

	rows, err := api.svc.SubjectView(requestContext(ctx), q)
	if err != nil {
		return errors.Wrap(err, "getting subject view")
	}
	return ctx.JSON(http.StatusOK, viewsResponse(rows))
}

type NotifyResponse struct {
	Reported int `json:"reported"`
}

func percentagesResponse(ps []attendance.Percentage) []attendance.Percentage {
	if ps == nil {
		return []attendance.Percentage{}
	}
	return ps
}

func viewsResponse(rows []attendance.RecordView) []attendance.RecordView {
	if rows == nil {
		return []attendance.RecordView{}
	}
	return rows
}
