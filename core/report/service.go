// Package report assembles the dashboards and the per-form response report
// from independent reads, then runs them through the stats package.
package report

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/form"
	"github.com/trezcool/feedback/core/stats"
	"github.com/trezcool/feedback/core/user"
)

// UnknownStudent is displayed for submissions whose author no longer exists.
const UnknownStudent = "Unknown"

type (
	QuestionReport struct {
		stats.QuestionStats
		QuestionOrder int                `json:"question_order"`
		Histogram     []stats.ChartPoint `json:"histogram"`
	}

	AnswerRow struct {
		QuestionID    string `json:"question_id"`
		QuestionText  string `json:"question_text"`
		QuestionOrder int    `json:"question_order"`
		Rating        int    `json:"rating"`
	}

	SubmissionReport struct {
		SubmissionID  string      `json:"submission_id"`
		StudentID     string      `json:"student_id"`
		StudentName   string      `json:"student_name"`
		StudentNumber string      `json:"student_number"`
		Department    string      `json:"department"`
		SubmittedAt   time.Time   `json:"submitted_at"`
		Answers       []AnswerRow `json:"answers"`
	}

	// FormReport is everything a teacher sees about one form's responses.
	FormReport struct {
		Form        form.Form             `json:"form"`
		Completion  stats.CompletionStats `json:"completion"`
		Questions   []QuestionReport      `json:"questions"`
		Submissions []SubmissionReport    `json:"submissions"`
	}

	FormSummary struct {
		Form       form.Form             `json:"form"`
		Completion stats.CompletionStats `json:"completion"`
	}

	TeacherDashboard struct {
		TotalStudents int           `json:"total_students"`
		Forms         []FormSummary `json:"forms"`
	}

	StudentForm struct {
		Form        form.Form  `json:"form"`
		Completed   bool       `json:"completed"`
		CompletedAt *time.Time `json:"completed_at,omitempty"`
	}

	StudentDashboard struct {
		Forms      []StudentForm         `json:"forms"`
		All        int                   `json:"all"`
		Completed  int                   `json:"completed"`
		Pending    int                   `json:"pending"`
		Completion stats.CompletionStats `json:"completion"`
	}

	Service interface {
		// FormReport fails as a whole when any of its reads fails.
		FormReport(ctx context.Context, formID string) (FormReport, error)
		TeacherDashboard(ctx context.Context) (TeacherDashboard, error)
		StudentDashboard(ctx context.Context, student user.StudentProfile) (StudentDashboard, error)
		// StudentStats compares the student's submissions against the number of forms.
		StudentStats(ctx context.Context, studentID string) (stats.CompletionStats, error)
	}

	service struct {
		formSvc form.Service
		usrSvc  user.Service
	}
)

var latestFirst = []core.DBOrdering{{Field: "created_at", Ascending: false}}

func NewService(formSvc form.Service, usrSvc user.Service) Service {
	return &service{formSvc: formSvc, usrSvc: usrSvc}
}

func (svc *service) FormReport(ctx context.Context, formID string) (FormReport, error) {
	var (
		frm       form.Form
		questions []form.Question
		rows      []form.ResponseRow
		subs      []form.Submission
		students  []user.User
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		frm, err = svc.formSvc.GetByID(gctx, formID)
		return err
	})
	g.Go(func() (err error) {
		questions, err = svc.formSvc.Questions(gctx, formID)
		return err
	})
	g.Go(func() (err error) {
		rows, err = svc.formSvc.Responses(gctx, formID)
		return err
	})
	g.Go(func() (err error) {
		subs, err = svc.formSvc.SubmissionsByForm(gctx, formID)
		return err
	})
	g.Go(func() (err error) {
		students, err = svc.usrSvc.Students(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return FormReport{}, errors.Wrap(err, "loading form report")
	}

	responses := make([]form.Response, 0, len(rows))
	for _, row := range rows {
		responses = append(responses, row.Response)
	}
	qStats := stats.ComputeQuestionStats(questions, responses)
	qReports := make([]QuestionReport, 0, len(qStats))
	for i, qs := range qStats {
		qReports = append(qReports, QuestionReport{
			QuestionStats: qs,
			QuestionOrder: questions[i].QuestionOrder,
			Histogram:     stats.BuildHistogram(qs),
		})
	}

	return FormReport{
		Form:        frm,
		Completion:  stats.ComputeCompletionStats(len(students), subs),
		Questions:   qReports,
		Submissions: buildSubmissionReports(subs, rows, students),
	}, nil
}

func buildSubmissionReports(subs []form.Submission, rows []form.ResponseRow, students []user.User) []SubmissionReport {
	byID := make(map[string]user.User, len(students))
	for _, std := range students {
		byID[std.ID] = std
	}
	answers := make(map[string][]AnswerRow, len(subs))
	for _, row := range rows {
		answers[row.SubmissionID] = append(answers[row.SubmissionID], AnswerRow{
			QuestionID:    row.QuestionID,
			QuestionText:  row.QuestionText,
			QuestionOrder: row.QuestionOrder,
			Rating:        row.Rating,
		})
	}

	reports := make([]SubmissionReport, 0, len(subs))
	for _, sub := range subs {
		sr := SubmissionReport{
			SubmissionID: sub.ID,
			StudentID:    sub.StudentID,
			StudentName:  UnknownStudent,
			SubmittedAt:  sub.SubmittedAt,
			Answers:      answers[sub.ID],
		}
		if std, ok := byID[sub.StudentID]; ok {
			sr.StudentName = std.FullName
			sr.StudentNumber = std.StudentID
			sr.Department = std.Department
		}
		if sr.Answers == nil {
			sr.Answers = []AnswerRow{}
		}
		sort.Slice(sr.Answers, func(i, j int) bool { return sr.Answers[i].QuestionOrder < sr.Answers[j].QuestionOrder })
		reports = append(reports, sr)
	}
	sort.SliceStable(reports, func(i, j int) bool { return reports[i].SubmittedAt.After(reports[j].SubmittedAt) })
	return reports
}

func (svc *service) TeacherDashboard(ctx context.Context) (TeacherDashboard, error) {
	var (
		forms         []form.Form
		totalStudents int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		forms, err = svc.formSvc.Query(gctx, nil, latestFirst)
		return err
	})
	g.Go(func() (err error) {
		totalStudents, err = svc.usrSvc.CountStudents(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return TeacherDashboard{}, errors.Wrap(err, "loading dashboard")
	}

	summaries := make([]FormSummary, len(forms))
	g, gctx = errgroup.WithContext(ctx)
	for i, frm := range forms {
		i, frm := i, frm
		g.Go(func() error {
			subs, err := svc.formSvc.SubmissionsByForm(gctx, frm.ID)
			if err != nil {
				return err
			}
			summaries[i] = FormSummary{Form: frm, Completion: stats.ComputeCompletionStats(totalStudents, subs)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return TeacherDashboard{}, errors.Wrap(err, "loading form completions")
	}

	return TeacherDashboard{TotalStudents: totalStudents, Forms: summaries}, nil
}

func (svc *service) StudentDashboard(ctx context.Context, student user.StudentProfile) (StudentDashboard, error) {
	forms, subs, err := svc.studentData(ctx, student.ID)
	if err != nil {
		return StudentDashboard{}, err
	}

	done := make(map[string]time.Time, len(subs))
	for _, sub := range subs {
		done[sub.FormID] = sub.SubmittedAt
	}

	dash := StudentDashboard{
		Forms:      make([]StudentForm, 0, len(forms)),
		All:        len(forms),
		Completion: stats.ComputeCompletionStats(len(forms), subs),
	}
	for _, frm := range forms {
		sf := StudentForm{Form: frm}
		if at, ok := done[frm.ID]; ok {
			at := at
			sf.Completed = true
			sf.CompletedAt = &at
			dash.Completed++
		}
		dash.Forms = append(dash.Forms, sf)
	}
	dash.Pending = dash.All - dash.Completed
	return dash, nil
}

func (svc *service) StudentStats(ctx context.Context, studentID string) (stats.CompletionStats, error) {
	forms, subs, err := svc.studentData(ctx, studentID)
	if err != nil {
		return stats.CompletionStats{}, err
	}
	return stats.ComputeCompletionStats(len(forms), subs), nil
}

func (svc *service) studentData(ctx context.Context, studentID string) ([]form.Form, []form.Submission, error) {
	var (
		forms []form.Form
		subs  []form.Submission
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		forms, err = svc.formSvc.Query(gctx, nil, latestFirst)
		return err
	})
	g.Go(func() (err error) {
		subs, err = svc.formSvc.SubmissionsByStudent(gctx, studentID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, errors.Wrap(err, "loading student data")
	}
	return forms, subs, nil
}
