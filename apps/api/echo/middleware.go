package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feedback/core/session"
	"github.com/trezcool/feedback/core/user"
)

// sessionMiddleware resolves the JWT subject into a session stored on the request context.
// It must run after the JWT middleware.
func sessionMiddleware(resolver session.ProfileResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}

			req := ctx.Request()
			sess := session.New(resolver)
			if err = sess.Refresh(req.Context(), claims.Subject); err != nil {
				if errors.Cause(err) == user.ErrInvalidRole {
					return errHttpForbidden
				}
				return errors.Wrap(err, "refreshing session")
			}
			if !sess.IsAuthenticated() {
				return errUnauthorized
			}
			if !sess.User().IsActive {
				return errAccountDeactivated
			}

			ctx.SetRequest(req.WithContext(session.WithSession(req.Context(), sess)))
			return next(ctx)
		}
	}
}

func getContextSession(ctx echo.Context) *session.Session {
	return session.FromContext(ctx.Request().Context())
}

func teacherOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if !getContextSession(ctx).IsTeacher() {
			return errHttpForbidden
		}
		return next(ctx)
	}
}

func studentOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if !getContextSession(ctx).IsStudent() {
			return errHttpForbidden
		}
		return next(ctx)
	}
}
