package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/user"
)

var userOrderColumns = map[string]string{
	"full_name":  "full_name",
	"email":      "email",
	"department": "department",
	"created_at": "created_at",
	"last_login": "last_login",
}

const userColumns = `id, full_name, email, department, role, student_id, position, is_active, password_hash, created_at, updated_at, last_login`

type userRow struct {
	ID           string      `db:"id"`
	FullName     string      `db:"full_name"`
	Email        string      `db:"email"`
	Department   string      `db:"department"`
	Role         string      `db:"role"`
	StudentID    null.String `db:"student_id"`
	Position     null.String `db:"position"`
	IsActive     bool        `db:"is_active"`
	PasswordHash []byte      `db:"password_hash"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

type userRepository struct {
	db core.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db core.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo userRepository) toRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		FullName:     usr.FullName,
		Email:        usr.Email,
		Department:   usr.Department,
		Role:         string(usr.Role),
		StudentID:    null.NewString(usr.StudentID, usr.StudentID != ""),
		Position:     null.NewString(usr.Position, usr.Position != ""),
		IsActive:     usr.IsActive,
		PasswordHash: usr.PasswordHash,
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) fromRow(row userRow) user.User {
	return user.User{
		ID:           row.ID,
		FullName:     row.FullName,
		Email:        row.Email,
		Department:   row.Department,
		Role:         user.Role(row.Role),
		StudentID:    row.StudentID.String,
		Position:     row.Position.String,
		IsActive:     row.IsActive,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
		LastLogin:    row.LastLogin.Time.UTC(),
	}
}

// trapErr maps psql "no rows" to user.ErrNotFound and unique violations to user.ErrEmailExists
func (repo userRepository) trapErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	if isUniqueViolation(err) {
		return user.ErrEmailExists
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	q := `SELECT COUNT(*) AS count FROM "user" WHERE email = ?`
	args := []interface{}{email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		q += ` AND id NOT IN (?)`
		args = append(args, ids)
	}

	var res struct {
		Count int `db:"count"`
	}
	if err := getRow(ctx, getExec(repo.db, exec), &res, q, args...); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if res.Count > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	q := `INSERT INTO "user" (` + userColumns + `)
		VALUES (:id, :full_name, :email, :department, :role, :student_id, :position, :is_active, :password_hash, :created_at, :updated_at, :last_login)`
	if _, err := namedExec(ctx, getExec(repo.db, exec), q, repo.toRow(usr)); err != nil {
		return user.User{}, repo.trapErr(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) filter(filter *user.QueryFilter) ([]string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if filter == nil {
		return conds, args
	}
	// users with FullName, Email or StudentID matching the search keyword
	if filter.Search != "" {
		val := containsPattern(filter.Search)
		conds = append(conds, `(full_name ILIKE ? ESCAPE '\' OR email ILIKE ? ESCAPE '\' OR student_id ILIKE ? ESCAPE '\')`)
		args = append(args, val, val, val)
	}
	if len(filter.Roles) > 0 {
		roles := make([]string, 0, len(filter.Roles))
		for _, role := range filter.Roles {
			roles = append(roles, string(role))
		}
		conds = append(conds, "role IN (?)")
		args = append(args, roles)
	}
	if filter.Department != "" {
		conds = append(conds, `department ILIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(filter.Department))
	}
	if filter.IsActive != nil {
		conds = append(conds, "is_active = ?")
		args = append(args, *filter.IsActive)
	}
	return conds, args
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	conds, args := repo.filter(filter)
	q := `SELECT ` + userColumns + ` FROM "user"` + where(conds) + orderBy(ordering, userOrderColumns, "full_name ASC")

	var rows []userRow
	if err := selectRows(ctx, getExec(repo.db, exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.fromRow(row))
	}
	return users, nil
}

func (repo userRepository) CountUsers(ctx context.Context, filter *user.QueryFilter, exec ...core.DBExecutor) (int, error) {
	conds, args := repo.filter(filter)
	var res struct {
		Count int `db:"count"`
	}
	if err := getRow(ctx, getExec(repo.db, exec), &res, `SELECT COUNT(*) AS count FROM "user"`+where(conds), args...); err != nil {
		return 0, errors.Wrap(err, "counting users")
	}
	return res.Count, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	q := `SELECT ` + userColumns + ` FROM "user"`
	var arg interface{}
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		q += ` WHERE id = ?`
		arg = filter.ID
	case filter.Email != "":
		q += ` WHERE email = ?`
		arg = filter.Email
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := getRow(ctx, getExec(repo.db, exec), &row, q, arg); err != nil {
		return user.User{}, repo.trapErr(err, "finding user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	q := `UPDATE "user" SET
		full_name = :full_name, email = :email, department = :department, role = :role,
		student_id = :student_id, position = :position, is_active = :is_active, password_hash = :password_hash,
		updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`
	res, err := namedExec(ctx, getExec(repo.db, exec), q, repo.toRow(usr))
	if err != nil {
		return user.User{}, repo.trapErr(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr, exec...)
	}
	return repo.UpdateUser(ctx, usr, exec...)
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	validIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			validIDs = append(validIDs, id)
		}
	}
	if len(validIDs) == 0 {
		return 0, nil
	}
	q, args, err := query(`DELETE FROM "user" WHERE id IN (?)`, validIDs)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	res, err := getExec(repo.db, exec).ExecContext(ctx, q, args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return int(cnt), nil
}
