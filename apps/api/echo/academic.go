package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/campusdesk/attendance/core"
	"github.com/campusdesk/attendance/core/academic"
	"github.com/campusdesk/attendance/core/attendance"
)

var errNoSubjects = core.NewNotFoundError("subjects")

type academicApi struct {
	svc      academic.Service
	attSvc   attendance.Service
	validate *validator.Validate
}

func registerAcademicAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := academicApi{
		svc:      deps.AcademicSvc,
		attSvc:   deps.AttendanceSvc,
		validate: deps.Validate,
	}

	sg := g.Group("/students", jwt)
	sg.POST("", api.registerStudent, adminMiddleware())
	sg.GET("", api.queryStudents, staffMiddleware())

	rg := sg.Group("/:roll", rollOwnerOrStaffMiddleware())
	rg.GET("", api.retrieveStudent)
	rg.GET("/results", api.results)
	rg.GET("/attendance", api.attendanceSummary)
	rg.GET("/percentages", api.percentageHistory)

	subg := g.Group("/subjects", jwt)
	subg.POST("", api.createSubject, adminMiddleware())
	subg.GET("", api.querySubjects)
	subg.GET("/:code", api.retrieveSubject)

	lg := g.Group("/lab-batches", jwt, staffMiddleware())
	lg.POST("", api.createLabBatch)
	lg.GET("", api.queryLabBatches)

	g.POST("/marks", api.saveMarks, jwt, staffMiddleware())
}

// Handlers

func (api *academicApi) registerStudent(ctx echo.Context) error {
	var data academic.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.RegisterStudent(requestContext(ctx), data)
	if err != nil {
		return errors.Wrap(err, "registering student")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *academicApi) queryStudents(ctx echo.Context) error {
	var filter academic.StudentFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to StudentFilter")
	}

	students, err := api.svc.QueryStudents(requestContext(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []academic.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *academicApi) retrieveStudent(ctx echo.Context) error {
	s, err := api.svc.GetStudent(requestContext(ctx), ctx.Param("roll"))
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *academicApi) results(ctx echo.Context) error {
	results, err := api.svc.Results(requestContext(ctx), ctx.Param("roll"))
	if err != nil {
		return errors.Wrap(err, "getting results")
	}
	if results == nil {
		results = []academic.Result{}
	}
	return ctx.JSON(http.StatusOK, results)
}

func (api *academicApi) attendanceSummary(ctx echo.Context) error {
	summary, err := api.attSvc.StudentSummary(requestContext(ctx), ctx.Param("roll"))
	if err != nil {
		return errors.Wrap(err, "getting attendance summary")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *academicApi) percentageHistory(ctx echo.Context) error {
	ps, err := api.attSvc.StudentPercentages(requestContext(ctx), ctx.Param("roll"))
	if err != nil {
		return errors.Wrap(err, "getting student percentages")
	}
	return ctx.JSON(http.StatusOK, percentagesResponse(ps))
}

func (api *academicApi) createSubject(ctx echo.Context) error {
	var data academic.NewSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubject")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.CreateSubject(requestContext(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating subject")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *academicApi) querySubjects(ctx echo.Context) error {
	var filter academic.SubjectFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to SubjectFilter")
	}

	subjects, err := api.svc.QuerySubjects(requestContext(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	if len(subjects) == 0 {
		return errNoSubjects
	}
	return ctx.JSON(http.StatusOK, subjects)
}

func (api *academicApi) retrieveSubject(ctx echo.Context) error {
	s, err := api.svc.GetSubject(requestContext(ctx), ctx.Param("code"))
	if err != nil {
		return errors.Wrap(err, "getting subject")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *academicApi) createLabBatch(ctx echo.Context) error {
	var data academic.NewLabBatch
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLabBatch")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	lb, err := api.svc.CreateLabBatch(requestContext(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating lab batch")
	}
	return ctx.JSON(http.StatusCreated, lb)
}

func (api *academicApi) queryLabBatches(ctx echo.Context) error {
	var filter academic.LabBatchFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to LabBatchFilter")
	}

	batches, err := api.svc.QueryLabBatches(requestContext(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "querying lab batches")
	}
	if batches == nil {
		batches = []academic.LabBatch{}
	}
	return ctx.JSON(http.StatusOK, batches)
}

func (api *academicApi) saveMarks(ctx echo.Context) error {
	var data academic.NewMarks
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMarks")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	saved, err := api.svc.SaveMarks(requestContext(ctx), data)
	if err != nil {
		return errors.Wrap(err, "saving marks")
	}
	return ctx.JSON(http.StatusOK, MarksResponse{Message: "Marks saved successfully", Saved: saved})
}

type MarksResponse struct {
	Message string `json:"message"`
	Saved   int    `json:"saved"`
}
