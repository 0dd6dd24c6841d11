package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feedback/core/form"
	"github.com/trezcool/feedback/core/user"
)

type formApi struct {
	ServerDeps
}

func registerFormAPI(g *echo.Group, authed []echo.MiddlewareFunc, limiter *rateLimiter, deps ServerDeps) {
	api := formApi{ServerDeps: deps}

	g.GET("/dashboard", api.dashboard, authed...)

	fg := g.Group("/forms", authed...)
	fg.GET("", api.query)
	fg.POST("", api.create, teacherOnly)

	// detail endpoints
	fg.GET("/:id", api.retrieve)
	fg.DELETE("/:id", api.destroy, teacherOnly)
	fg.GET("/:id/questions", api.questions)
	fg.POST("/:id/questions", api.addQuestions, teacherOnly)
	fg.GET("/:id/submissions", api.submissions, teacherOnly)
	fg.POST("/:id/submit", api.submit, studentOnly, limiter.middleware)
	fg.GET("/:id/responses", api.responses, teacherOnly)
	fg.GET("/:id/report", api.report, teacherOnly)
}

type formDetail struct {
	form.Form
	Questions []form.Question `json:"questions"`
}

// Handlers

func (api *formApi) query(ctx echo.Context) error {
	filter, err := bindFormFilter(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	forms, err := api.FormSvc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying forms")
	}
	if forms == nil {
		forms = []form.Form{}
	}
	return ctx.JSON(http.StatusOK, forms)
}

func (api *formApi) create(ctx echo.Context) error {
	var data form.NewForm
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewForm")
	}
	if err := data.Validate(api.Validate); err != nil {
		return err
	}

	frm, questions, err := api.FormSvc.Create(ctx.Request().Context(), data, getContextSession(ctx).User())
	if err != nil {
		return errors.Wrap(err, "creating form")
	}
	return ctx.JSON(http.StatusCreated, formDetail{Form: frm, Questions: questions})
}

func (api *formApi) retrieve(ctx echo.Context) error {
	frm, err := api.FormSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding form")
	}
	return ctx.JSON(http.StatusOK, frm)
}

func (api *formApi) destroy(ctx echo.Context) error {
	if err := api.FormSvc.Delete(ctx.Request().Context(), ctx.Param("id"), getContextSession(ctx).User()); err != nil {
		return errors.Wrap(err, "deleting form")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *formApi) questions(ctx echo.Context) error {
	questions, err := api.FormSvc.Questions(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying questions")
	}
	return ctx.JSON(http.StatusOK, questions)
}

func (api *formApi) addQuestions(ctx echo.Context) error {
	var data form.NewQuestions
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuestions")
	}
	if err := data.Validate(api.Validate); err != nil {
		return err
	}

	questions, err := api.FormSvc.AddQuestions(ctx.Request().Context(), ctx.Param("id"), data, getContextSession(ctx).User())
	if err != nil {
		return errors.Wrap(err, "adding questions")
	}
	return ctx.JSON(http.StatusCreated, questions)
}

func (api *formApi) submissions(ctx echo.Context) error {
	subs, err := api.FormSvc.SubmissionsByForm(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *formApi) submit(ctx echo.Context) error {
	var data form.NewSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}
	if err := data.Validate(api.Validate); err != nil {
		return err
	}

	sub, err := api.FormSvc.Submit(ctx.Request().Context(), ctx.Param("id"), getContextSession(ctx).User(), data.Answers)
	if err != nil {
		return errors.Wrap(err, "submitting form")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *formApi) responses(ctx echo.Context) error {
	rows, err := api.FormSvc.Responses(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying responses")
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *formApi) report(ctx echo.Context) error {
	rep, err := api.ReportSvc.FormReport(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "building report")
	}
	return ctx.JSON(http.StatusOK, rep)
}

func (api *formApi) dashboard(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	switch profile := getContextSession(ctx).Profile().(type) {
	case user.TeacherProfile:
		dash, err := api.ReportSvc.TeacherDashboard(reqCtx)
		if err != nil {
			return errors.Wrap(err, "loading teacher dashboard")
		}
		return ctx.JSON(http.StatusOK, dash)
	case user.StudentProfile:
		dash, err := api.ReportSvc.StudentDashboard(reqCtx, profile)
		if err != nil {
			return errors.Wrap(err, "loading student dashboard")
		}
		return ctx.JSON(http.StatusOK, dash)
	}
	return errHttpForbidden
}
