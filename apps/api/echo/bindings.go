package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/form"
	"github.com/trezcool/feedback/core/user"
)

var (
	orderingParam = "ordering"

	// query params accept RFC 3339 timestamps or plain dates
	dateLayout     = "2006-01-02"
	invalidDateErr = "invalid date, use YYYY-MM-DD or RFC 3339"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// parseDateParam reads an RFC 3339 instant or a plain date.
// With endOfDay, a plain date stands for the last microsecond of that day so upper bounds include it.
func parseDateParam(ctx echo.Context, name string, endOfDay bool) (time.Time, error) {
	val := strings.TrimSpace(ctx.QueryParam(name))
	if val == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(dateLayout, val); err == nil {
		if endOfDay {
			t = t.AddDate(0, 0, 1).Add(-time.Microsecond)
		}
		return t.UTC(), nil
	}
	return time.Time{}, core.NewValidationError(nil, core.FieldError{Field: name, Error: invalidDateErr})
}

func bindFormFilter(ctx echo.Context) (*form.QueryFilter, error) {
	filter := &form.QueryFilter{
		Search:    ctx.QueryParam("search"),
		CreatedBy: ctx.QueryParam("created_by"),
	}
	var err error
	if filter.DueAfter, err = parseDateParam(ctx, "due_after", false); err != nil {
		return nil, err
	}
	if filter.DueBefore, err = parseDateParam(ctx, "due_before", true); err != nil {
		return nil, err
	}
	filter.Clean()
	return filter, nil
}

// bindStudentFilter always restricts the query to students.
func bindStudentFilter(ctx echo.Context) *user.QueryFilter {
	filter := &user.QueryFilter{
		Search:     ctx.QueryParam("search"),
		Department: ctx.QueryParam("department"),
		Roles:      []user.Role{user.RoleStudent},
	}
	if active, err := strconv.ParseBool(ctx.QueryParam("is_active")); err == nil {
		filter.IsActive = &active
	}
	filter.Clean()
	return filter
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}
