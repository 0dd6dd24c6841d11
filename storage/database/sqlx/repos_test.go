package sqlxrepos_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feedback/core/form"
	"github.com/trezcool/feedback/core/user"
	"github.com/trezcool/feedback/storage/database"
	sqlxrepos "github.com/trezcool/feedback/storage/database/sqlx"
)

// openTestDB connects to TEST_DATABASE_URL and migrates it, or skips the test.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := database.OpenURL(dsn)
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db, "reset"))
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRepositories(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	usrRepo := sqlxrepos.NewUserRepository(db)
	formRepo := sqlxrepos.NewFormRepository(db)
	now := time.Now().UTC().Truncate(time.Millisecond)

	teacher, err := usrRepo.CreateUser(ctx, user.User{
		FullName: "Kofi", Email: "kofi@test.com", Department: "Physics", Role: user.RoleTeacher,
		IsActive: true, PasswordHash: []byte("x"), CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	student, err := usrRepo.CreateUser(ctx, user.User{
		FullName: "Ama", Email: "ama@test.com", Department: "Physics", Role: user.RoleStudent, StudentID: "ST-1",
		IsActive: true, PasswordHash: []byte("x"), CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	_, err = usrRepo.CreateUser(ctx, user.User{
		FullName: "Dup", Email: "ama@test.com", Department: "Physics", Role: user.RoleStudent,
		PasswordHash: []byte("x"), CreatedAt: now, UpdatedAt: now,
	})
	assert.Equal(t, user.ErrEmailExists, err)

	cnt, err := usrRepo.CountUsers(ctx, &user.QueryFilter{Roles: []user.Role{user.RoleStudent}})
	require.NoError(t, err)
	assert.Equal(t, 1, cnt)

	got, err := usrRepo.GetUser(ctx, user.GetFilter{ID: student.ID})
	require.NoError(t, err)
	assert.Equal(t, "ST-1", got.StudentID)
	assert.True(t, got.LastLogin.IsZero())

	frm, qs, err := formRepo.CreateForm(ctx, form.Form{
		Title: "Labs", DueDate: now.Add(24 * time.Hour), CreatedBy: teacher.ID, CreatedAt: now,
	}, []form.Question{
		{QuestionText: "Q1", QuestionOrder: 1, CreatedAt: now},
		{QuestionText: "Q2", QuestionOrder: 2, CreatedAt: now},
	})
	require.NoError(t, err)
	require.Len(t, qs, 2)

	// duplicate order rolls the whole form back
	_, _, err = formRepo.CreateForm(ctx, form.Form{
		Title: "Broken", DueDate: now, CreatedBy: teacher.ID, CreatedAt: now,
	}, []form.Question{{QuestionText: "A", QuestionOrder: 1}, {QuestionText: "B", QuestionOrder: 1}})
	require.Error(t, err)
	forms, err := formRepo.QueryForms(ctx, nil, nil)
	require.NoError(t, err)
	assert.Len(t, forms, 1)

	// wildcards in the search are matched literally
	forms, err = formRepo.QueryForms(ctx, &form.QueryFilter{Search: "%"}, nil)
	require.NoError(t, err)
	assert.Empty(t, forms)
	students, err := usrRepo.QueryUsers(ctx, &user.QueryFilter{Search: "_"}, nil)
	require.NoError(t, err)
	assert.Empty(t, students)

	// failing response rolls the submission back
	sub := form.Submission{FormID: frm.ID, StudentID: student.ID, SubmittedAt: now}
	_, _, err = formRepo.CreateSubmission(ctx, sub, []form.Response{{QuestionID: qs[0].ID, Rating: 5}, {QuestionID: qs[1].ID, Rating: 7}})
	require.Error(t, err)
	exists, err := formRepo.SubmissionExists(ctx, frm.ID, student.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	_, _, err = formRepo.CreateSubmission(ctx, sub, []form.Response{{QuestionID: qs[0].ID, Rating: 5}, {QuestionID: qs[1].ID, Rating: 3}})
	require.NoError(t, err)
	_, _, err = formRepo.CreateSubmission(ctx, sub, []form.Response{{QuestionID: qs[0].ID, Rating: 1}})
	assert.Equal(t, form.ErrAlreadySubmitted, err)

	rows, err := formRepo.QueryResponses(ctx, frm.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Q1", rows[0].QuestionText)
	assert.Equal(t, student.ID, rows[1].StudentID)

	require.NoError(t, formRepo.DeleteForm(ctx, frm.ID))
	_, err = formRepo.GetForm(ctx, frm.ID)
	assert.Equal(t, form.ErrNotFound, err)
	subs, err := formRepo.QuerySubmissions(ctx, form.SubmissionFilter{StudentID: student.ID})
	require.NoError(t, err)
	assert.Empty(t, subs)
}
