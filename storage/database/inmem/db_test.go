package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/form"
	"github.com/trezcool/feedback/core/user"
)

func seedForm(t *testing.T, repo form.Repository, createdBy string, texts ...string) (form.Form, []form.Question) {
	t.Helper()
	now := time.Now().UTC()
	questions := make([]form.Question, 0, len(texts))
	for i, text := range texts {
		questions = append(questions, form.Question{QuestionText: text, QuestionOrder: i + 1, CreatedAt: now})
	}
	frm, qs, err := repo.CreateForm(context.Background(), form.Form{
		Title:     "Course feedback",
		DueDate:   now.Add(7 * 24 * time.Hour),
		CreatedBy: createdBy,
		CreatedAt: now,
	}, questions)
	require.NoError(t, err)
	return frm, qs
}

func TestFormRepository_createSubmissionIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := Open()
	repo := NewFormRepository(db)
	frm, qs := seedForm(t, repo, "teacher", "Q1", "Q2")

	sub := form.Submission{FormID: frm.ID, StudentID: "student", SubmittedAt: time.Now().UTC()}
	_, _, err := repo.CreateSubmission(ctx, sub, []form.Response{
		{QuestionID: qs[0].ID, Rating: 4},
		{QuestionID: qs[1].ID, Rating: 9},
	})
	require.Error(t, err)

	subs, err := repo.QuerySubmissions(ctx, form.SubmissionFilter{FormID: frm.ID})
	require.NoError(t, err)
	assert.Empty(t, subs, "no orphaned submission")
	assert.Empty(t, db.responses)

	created, resps, err := repo.CreateSubmission(ctx, sub, []form.Response{
		{QuestionID: qs[0].ID, Rating: 4},
		{QuestionID: qs[1].ID, Rating: 5},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	require.Len(t, resps, 2)
	assert.Equal(t, created.ID, resps[0].SubmissionID)

	_, _, err = repo.CreateSubmission(ctx, sub, []form.Response{{QuestionID: qs[0].ID, Rating: 1}, {QuestionID: qs[1].ID, Rating: 1}})
	assert.Equal(t, form.ErrAlreadySubmitted, err)

	exists, err := repo.SubmissionExists(ctx, frm.ID, "student")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFormRepository_queryResponses(t *testing.T) {
	ctx := context.Background()
	repo := NewFormRepository(Open())
	frm, qs := seedForm(t, repo, "teacher", "Q1", "Q2")
	other, otherQs := seedForm(t, repo, "teacher", "Other")

	first := time.Now().UTC().Add(-time.Hour)
	_, _, err := repo.CreateSubmission(ctx, form.Submission{FormID: frm.ID, StudentID: "s2", SubmittedAt: first.Add(time.Minute)},
		[]form.Response{{QuestionID: qs[1].ID, Rating: 2}, {QuestionID: qs[0].ID, Rating: 1}})
	require.NoError(t, err)
	_, _, err = repo.CreateSubmission(ctx, form.Submission{FormID: frm.ID, StudentID: "s1", SubmittedAt: first},
		[]form.Response{{QuestionID: qs[0].ID, Rating: 5}, {QuestionID: qs[1].ID, Rating: 4}})
	require.NoError(t, err)
	_, _, err = repo.CreateSubmission(ctx, form.Submission{FormID: other.ID, StudentID: "s1", SubmittedAt: first},
		[]form.Response{{QuestionID: otherQs[0].ID, Rating: 3}})
	require.NoError(t, err)

	rows, err := repo.QueryResponses(ctx, frm.ID)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	type row struct {
		student string
		order   int
		rating  int
		text    string
	}
	got := make([]row, 0, len(rows))
	for _, r := range rows {
		got = append(got, row{r.StudentID, r.QuestionOrder, r.Rating, r.QuestionText})
	}
	assert.Equal(t, []row{
		{"s1", 1, 5, "Q1"},
		{"s1", 2, 4, "Q2"},
		{"s2", 1, 1, "Q1"},
		{"s2", 2, 2, "Q2"},
	}, got)

	subs, err := repo.QuerySubmissions(ctx, form.SubmissionFilter{StudentID: "s1"})
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}

func TestFormRepository_deleteCascades(t *testing.T) {
	ctx := context.Background()
	db := Open()
	repo := NewFormRepository(db)
	frm, qs := seedForm(t, repo, "teacher", "Q1")
	kept, keptQs := seedForm(t, repo, "teacher", "Q1")

	_, _, err := repo.CreateSubmission(ctx, form.Submission{FormID: frm.ID, StudentID: "s1"}, []form.Response{{QuestionID: qs[0].ID, Rating: 3}})
	require.NoError(t, err)
	_, _, err = repo.CreateSubmission(ctx, form.Submission{FormID: kept.ID, StudentID: "s1"}, []form.Response{{QuestionID: keptQs[0].ID, Rating: 3}})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteForm(ctx, frm.ID))
	assert.Equal(t, form.ErrNotFound, repo.DeleteForm(ctx, frm.ID))

	_, err = repo.GetForm(ctx, frm.ID)
	assert.Equal(t, form.ErrNotFound, err)
	assert.Len(t, db.forms, 1)
	assert.Len(t, db.questions, 1)
	assert.Len(t, db.submissions, 1)
	assert.Len(t, db.responses, 1)
}

func TestFormRepository_questionOrderIsUnique(t *testing.T) {
	ctx := context.Background()
	repo := NewFormRepository(Open())
	frm, _ := seedForm(t, repo, "teacher", "Q1", "Q2")

	_, err := repo.CreateQuestions(ctx, []form.Question{{FormID: frm.ID, QuestionText: "Q3", QuestionOrder: 2}})
	assert.Equal(t, errDuplicateOrder, errors.Cause(err))

	created, err := repo.CreateQuestions(ctx, []form.Question{{FormID: frm.ID, QuestionText: "Q3", QuestionOrder: 3}})
	require.NoError(t, err)
	require.Len(t, created, 1)

	qs, err := repo.QueryQuestions(ctx, frm.ID)
	require.NoError(t, err)
	require.Len(t, qs, 3)
	for i, q := range qs {
		assert.Equal(t, i+1, q.QuestionOrder)
	}
}

func TestFormRepository_queryForms(t *testing.T) {
	ctx := context.Background()
	repo := NewFormRepository(Open())
	now := time.Now().UTC()
	for i, title := range []string{"Labs", "Lectures", "Facilities"} {
		_, _, err := repo.CreateForm(ctx, form.Form{
			Title:     title,
			DueDate:   now.Add(time.Duration(i+1) * 24 * time.Hour),
			CreatedBy: "t1",
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		}, nil)
		require.NoError(t, err)
	}

	titles := func(forms []form.Form) []string {
		ts := make([]string, 0, len(forms))
		for _, f := range forms {
			ts = append(ts, f.Title)
		}
		return ts
	}

	forms, err := repo.QueryForms(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Facilities", "Lectures", "Labs"}, titles(forms), "latest first by default")

	forms, err = repo.QueryForms(ctx, nil, []core.DBOrdering{{Field: "title", Ascending: true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Facilities", "Labs", "Lectures"}, titles(forms))

	forms, err = repo.QueryForms(ctx, &form.QueryFilter{Search: "LA"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Labs"}, titles(forms))

	forms, err = repo.QueryForms(ctx, &form.QueryFilter{DueAfter: now, DueBefore: now.Add(36 * time.Hour)}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Labs"}, titles(forms))
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	db := Open()
	repo := NewUserRepository(db)
	formRepo := NewFormRepository(db)

	teacher, err := repo.CreateUser(ctx, user.User{FullName: "Kofi", Email: "kofi@test.com", Role: user.RoleTeacher, IsActive: true})
	require.NoError(t, err)
	_, err = repo.CreateUser(ctx, user.User{FullName: "Ama", Email: "ama@test.com", Role: user.RoleStudent, StudentID: "ST-1", IsActive: true})
	require.NoError(t, err)
	_, err = repo.CreateUser(ctx, user.User{FullName: "Yaw", Email: "yaw@test.com", Role: user.RoleStudent, StudentID: "ST-2"})
	require.NoError(t, err)

	_, err = repo.CreateUser(ctx, user.User{FullName: "Dup", Email: "ama@test.com", Role: user.RoleStudent})
	assert.Equal(t, user.ErrEmailExists, err)
	assert.Equal(t, user.ErrEmailExists, repo.CheckEmailUniqueness(ctx, "kofi@test.com", nil))
	assert.NoError(t, repo.CheckEmailUniqueness(ctx, "kofi@test.com", []user.User{teacher}))

	students := &user.QueryFilter{Roles: []user.Role{user.RoleStudent}}
	cnt, err := repo.CountUsers(ctx, students)
	require.NoError(t, err)
	assert.Equal(t, 2, cnt)

	active := true
	users, err := repo.QueryUsers(ctx, &user.QueryFilter{Roles: []user.Role{user.RoleStudent}, IsActive: &active}, nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Ama", users[0].FullName)

	users, err = repo.QueryUsers(ctx, &user.QueryFilter{Search: "st-2"}, nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Yaw", users[0].FullName)

	got, err := repo.GetUser(ctx, user.GetFilter{Email: "kofi@test.com"})
	require.NoError(t, err)
	assert.Equal(t, teacher.ID, got.ID)
	_, err = repo.GetUser(ctx, user.GetFilter{ID: "nope"})
	assert.Equal(t, user.ErrNotFound, err)

	// deleting a teacher removes their forms
	seedForm(t, formRepo, teacher.ID, "Q1")
	n, err := repo.DeleteUsersByID(ctx, []string{teacher.ID, "nope"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, db.forms)
	assert.Empty(t, db.questions)
}
