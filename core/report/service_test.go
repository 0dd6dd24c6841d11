package report_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feedback/core/form"
	"github.com/trezcool/feedback/core/report"
	"github.com/trezcool/feedback/core/stats"
	"github.com/trezcool/feedback/core/user"
	emailsvc "github.com/trezcool/feedback/services/email"
	inmemdb "github.com/trezcool/feedback/storage/database/inmem"
	testutil "github.com/trezcool/feedback/tests"
)

type fixture struct {
	usrRepo  user.Repository
	formRepo form.Repository
	usrSvc   user.Service
	formSvc  form.Service
	svc      report.Service
}

func setup() fixture {
	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	formRepo := inmemdb.NewFormRepository(db)
	usrSvc := user.NewService(usrRepo)
	formSvc := form.NewService(formRepo, usrSvc, emailsvc.NewConsoleServiceMock(conf, logger), logger)
	return fixture{
		usrRepo:  usrRepo,
		formRepo: formRepo,
		usrSvc:   usrSvc,
		formSvc:  formSvc,
		svc:      report.NewService(formSvc, usrSvc),
	}
}

// failingResponses breaks one of the report's reads.
type failingResponses struct {
	form.Service
}

var errStore = errors.New("store unavailable")

func (failingResponses) Responses(context.Context, string) ([]form.ResponseRow, error) {
	return nil, errStore
}

func TestService_FormReport(t *testing.T) {
	fx := setup()
	ctx := context.Background()
	teacher := testutil.CreateTeacher(t, fx.usrRepo, "Kofi", "kofi@test.com")
	ama := testutil.CreateStudent(t, fx.usrRepo, "Ama", "ama@test.com")
	yaw := testutil.CreateStudent(t, fx.usrRepo, "Yaw", "yaw@test.com")
	testutil.CreateStudent(t, fx.usrRepo, "Esi", "esi@test.com")

	frm, qs := testutil.CreateForm(t, fx.formRepo, teacher.ID, "Labs", time.Now().Add(time.Hour), "Clarity", "Pace")
	testutil.Submit(t, fx.formRepo, ama.ID, qs, 5, 3)
	time.Sleep(time.Millisecond)
	yawSub := testutil.Submit(t, fx.formRepo, yaw.ID, qs, 4, 3)

	rep, err := fx.svc.FormReport(ctx, frm.ID)
	require.NoError(t, err)
	assert.Equal(t, frm.ID, rep.Form.ID)
	assert.Equal(t, stats.CompletionStats{Total: 3, Completed: 2}, rep.Completion)
	assert.Equal(t, 66, rep.Completion.Percentage())
	assert.Equal(t, stats.BandWarning, rep.Completion.Band())

	require.Len(t, rep.Questions, 2)
	assert.Equal(t, "Clarity", rep.Questions[0].QuestionText)
	assert.Equal(t, 4.5, rep.Questions[0].AverageRating)
	assert.Equal(t, 2, rep.Questions[0].TotalResponses)
	assert.Equal(t, 3.0, rep.Questions[1].AverageRating)
	assert.Equal(t, 2, rep.Questions[1].QuestionOrder)
	require.Len(t, rep.Questions[1].Histogram, 5)
	assert.Equal(t, stats.ChartPoint{Name: "3", Count: 2}, rep.Questions[1].Histogram[2])

	// latest first
	require.Len(t, rep.Submissions, 2)
	assert.Equal(t, yawSub.ID, rep.Submissions[0].SubmissionID)
	assert.Equal(t, "Yaw", rep.Submissions[0].StudentName)
	assert.Equal(t, yaw.StudentID, rep.Submissions[0].StudentNumber)
	require.Len(t, rep.Submissions[0].Answers, 2)
	assert.Equal(t, 4, rep.Submissions[0].Answers[0].Rating)
	assert.Equal(t, "Pace", rep.Submissions[0].Answers[1].QuestionText)

	t.Run("deleted student", func(t *testing.T) {
		_, err := fx.usrSvc.Delete(ctx, yaw.ID)
		require.NoError(t, err)

		rep, err := fx.svc.FormReport(ctx, frm.ID)
		require.NoError(t, err)
		require.Len(t, rep.Submissions, 2)
		assert.Equal(t, report.UnknownStudent, rep.Submissions[0].StudentName)
		assert.Empty(t, rep.Submissions[0].StudentNumber)
		assert.Equal(t, stats.CompletionStats{Total: 2, Completed: 2}, rep.Completion)
	})

	t.Run("missing form", func(t *testing.T) {
		_, err := fx.svc.FormReport(ctx, "missing")
		require.Error(t, err)
	})

	t.Run("failing read", func(t *testing.T) {
		svc := report.NewService(failingResponses{fx.formSvc}, fx.usrSvc)
		_, err := svc.FormReport(ctx, frm.ID)
		assert.True(t, errors.Is(err, errStore), "got %v", err)
	})
}

func TestService_TeacherDashboard(t *testing.T) {
	fx := setup()
	ctx := context.Background()
	teacher := testutil.CreateTeacher(t, fx.usrRepo, "Kofi", "kofi@test.com")
	ama := testutil.CreateStudent(t, fx.usrRepo, "Ama", "ama@test.com")
	testutil.CreateStudent(t, fx.usrRepo, "Yaw", "yaw@test.com")

	older, qs := testutil.CreateForm(t, fx.formRepo, teacher.ID, "Labs", time.Now().Add(time.Hour), "Clarity")
	testutil.Submit(t, fx.formRepo, ama.ID, qs, 4)
	time.Sleep(time.Millisecond)
	newer, _ := testutil.CreateForm(t, fx.formRepo, teacher.ID, "Lectures", time.Now().Add(time.Hour), "Clarity")

	dash, err := fx.svc.TeacherDashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, dash.TotalStudents)
	require.Len(t, dash.Forms, 2)
	assert.Equal(t, newer.ID, dash.Forms[0].Form.ID)
	assert.Equal(t, 0, dash.Forms[0].Completion.Completed)
	assert.Equal(t, older.ID, dash.Forms[1].Form.ID)
	assert.Equal(t, stats.CompletionStats{Total: 2, Completed: 1}, dash.Forms[1].Completion)
}

func TestService_StudentDashboard(t *testing.T) {
	fx := setup()
	ctx := context.Background()
	teacher := testutil.CreateTeacher(t, fx.usrRepo, "Kofi", "kofi@test.com")
	ama := testutil.CreateStudent(t, fx.usrRepo, "Ama", "ama@test.com")

	done, qs := testutil.CreateForm(t, fx.formRepo, teacher.ID, "Labs", time.Now().Add(time.Hour), "Clarity")
	sub := testutil.Submit(t, fx.formRepo, ama.ID, qs, 4)
	testutil.CreateForm(t, fx.formRepo, teacher.ID, "Lectures", time.Now().Add(time.Hour), "Clarity")
	testutil.CreateForm(t, fx.formRepo, teacher.ID, "Tutorials", time.Now().Add(time.Hour), "Clarity")

	dash, err := fx.svc.StudentDashboard(ctx, user.StudentProfile{User: ama})
	require.NoError(t, err)
	assert.Equal(t, 3, dash.All)
	assert.Equal(t, 1, dash.Completed)
	assert.Equal(t, 2, dash.Pending)
	assert.Equal(t, 33, dash.Completion.Percentage())
	assert.Equal(t, stats.BandDanger, dash.Completion.Band())

	var completed []report.StudentForm
	for _, sf := range dash.Forms {
		if sf.Completed {
			completed = append(completed, sf)
		}
	}
	require.Len(t, completed, 1)
	assert.Equal(t, done.ID, completed[0].Form.ID)
	require.NotNil(t, completed[0].CompletedAt)
	assert.True(t, sub.SubmittedAt.Equal(*completed[0].CompletedAt))

	cs, err := fx.svc.StudentStats(ctx, ama.ID)
	require.NoError(t, err)
	assert.Equal(t, dash.Completion, cs)
}
