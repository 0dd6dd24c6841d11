package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feedback/core/form"
	"github.com/trezcool/feedback/core/stats"
	"github.com/trezcool/feedback/core/user"
)

type userApi struct {
	ServerDeps
}

func registerUserAPI(g *echo.Group, authed []echo.MiddlewareFunc, limiter *rateLimiter, deps ServerDeps) {
	api := userApi{ServerDeps: deps}

	ug := g.Group("/users")

	// un-authed endpoints
	ug.POST("/signup", api.signUp)
	ug.POST("/login", api.login, limiter.middleware)

	// authed endpoints
	ag := ug.Group("", authed...)
	ag.POST("/token-refresh", api.refreshToken)
	ag.GET("/me", api.me)

	sg := g.Group("/students", authed...)
	sg.GET("", api.queryStudents, teacherOnly)
	sg.GET("/:id/submissions", api.studentSubmissions, selfOrTeacher)
}

// Handlers

func (api *userApi) signUp(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(api.Validate, api.UserSvc); err != nil {
		return err
	}

	usr, err := api.UserSvc.SignUp(ctx.Request().Context(), data)
	if err != nil {
		if errors.Cause(err) == user.ErrEmailExists {
			return api.UserSvc.CheckUniqueness(data.Email)
		}
		return errors.Wrap(err, "signing up")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.Validate); err != nil {
		return err
	}

	usr, err := api.UserSvc.Authenticate(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	token, err := generateUserToken(usr, api.Conf)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.Conf)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

type meResponse struct {
	user.User
	Stats *stats.CompletionStats `json:"stats,omitempty"` // students only
}

func (api *userApi) me(ctx echo.Context) error {
	sess := getContextSession(ctx)
	resp := meResponse{User: sess.User()}

	switch profile := sess.Profile().(type) {
	case user.StudentProfile:
		cs, err := api.ReportSvc.StudentStats(ctx.Request().Context(), profile.ID)
		if err != nil {
			return errors.Wrap(err, "computing student stats")
		}
		resp.Stats = &cs
	case user.TeacherProfile:
	default:
		return errHttpForbidden
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *userApi) queryStudents(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)

	students, err := api.UserSvc.Query(ctx.Request().Context(), bindStudentFilter(ctx), ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []user.User{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *userApi) studentSubmissions(ctx echo.Context) error {
	subs, err := api.FormSvc.SubmissionsByStudent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	if subs == nil {
		subs = []form.Submission{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

// selfOrTeacher lets teachers and the student named by the :id param through.
func selfOrTeacher(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		sess := getContextSession(ctx)
		if sess.IsTeacher() || (sess.IsStudent() && sess.UserID() == ctx.Param("id")) {
			return next(ctx)
		}
		return errHttpForbidden
	}
}
