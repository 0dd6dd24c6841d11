package form

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/user"
)

var (
	// errors
	ErrNotFound         = errors.New("form not found")
	ErrAlreadySubmitted = errors.New("form already submitted")
	ErrNotOwner         = errors.New("only the form's creator can do this")
	ErrNotStudent       = errors.New("only students can submit forms")
	ErrNotTeacher       = errors.New("only teachers can do this")

	errDuplicateOrderText  = "question order must be unique within a form"
	errUnansweredText      = "all questions must be answered"
	errDuplicateAnswerText = "a question was answered more than once"
	errUnknownQuestionText = "unknown question: %s"

	nowFunc = func() time.Time { return time.Now().UTC() } // mockable

	dueDateLayout = "Mon, 02 Jan 2006"
)

type (
	Repository interface {
		QueryForms(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Form, error)
		GetForm(ctx context.Context, id string, exec ...core.DBExecutor) (Form, error)
		// CreateForm inserts the form and its questions atomically.
		CreateForm(ctx context.Context, frm Form, questions []Question, exec ...core.DBExecutor) (Form, []Question, error)
		// DeleteForm also removes the form's questions, submissions and responses.
		DeleteForm(ctx context.Context, id string, exec ...core.DBExecutor) error
		// QueryQuestions returns the form's questions ordered by QuestionOrder.
		QueryQuestions(ctx context.Context, formID string, exec ...core.DBExecutor) ([]Question, error)
		CreateQuestions(ctx context.Context, questions []Question, exec ...core.DBExecutor) ([]Question, error)
		QuerySubmissions(ctx context.Context, filter SubmissionFilter, exec ...core.DBExecutor) ([]Submission, error)
		SubmissionExists(ctx context.Context, formID, studentID string, exec ...core.DBExecutor) (bool, error)
		// CreateSubmission inserts the submission and its responses atomically.
		// Nothing is persisted when any insert fails.
		CreateSubmission(ctx context.Context, sub Submission, responses []Response, exec ...core.DBExecutor) (Submission, []Response, error)
		// QueryResponses returns the form's responses joined with their question and submission,
		// ordered by submission time then question order.
		QueryResponses(ctx context.Context, formID string, exec ...core.DBExecutor) ([]ResponseRow, error)
	}

	Service interface {
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Form, error)
		GetByID(ctx context.Context, id string) (Form, error)
		Create(ctx context.Context, nf NewForm, creator user.User) (Form, []Question, error)
		Delete(ctx context.Context, id string, actor user.User) error
		Questions(ctx context.Context, formID string) ([]Question, error)
		AddQuestions(ctx context.Context, formID string, nq NewQuestions, actor user.User) ([]Question, error)
		SubmissionsByForm(ctx context.Context, formID string) ([]Submission, error)
		SubmissionsByStudent(ctx context.Context, studentID string) ([]Submission, error)
		Submit(ctx context.Context, formID string, student user.User, answers []Answer) (Submission, error)
		Responses(ctx context.Context, formID string) ([]ResponseRow, error)
		// SendReminders emails every student who has not yet submitted a form due within `within`.
		// Returns the number of reminders sent.
		SendReminders(ctx context.Context, within time.Duration) (int, error)
	}

	service struct {
		repo    Repository
		usrSvc  user.Service
		mailSvc core.EmailService
		logger  core.Logger
	}
)

func NewService(repo Repository, usrSvc user.Service, mailSvc core.EmailService, logger core.Logger) Service {
	return &service{
		repo:    repo,
		usrSvc:  usrSvc,
		mailSvc: mailSvc,
		logger:  logger,
	}
}

// requireTeacher fails unless usr has a teacher profile.
func requireTeacher(usr user.User) error {
	profile, err := usr.Profile()
	if err != nil {
		return err
	}
	switch profile.(type) {
	case user.TeacherProfile:
		return nil
	case user.StudentProfile:
		return ErrNotTeacher
	}
	return user.ErrInvalidRole
}

// requireStudent fails unless usr has a student profile.
func requireStudent(usr user.User) error {
	profile, err := usr.Profile()
	if err != nil {
		return err
	}
	switch profile.(type) {
	case user.StudentProfile:
		return nil
	case user.TeacherProfile:
		return ErrNotStudent
	}
	return user.ErrInvalidRole
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Form, error) {
	return svc.repo.QueryForms(ctx, filter, ordering)
}

func (svc *service) GetByID(ctx context.Context, id string) (Form, error) {
	return svc.repo.GetForm(ctx, id)
}

func (svc *service) Create(ctx context.Context, nf NewForm, creator user.User) (Form, []Question, error) {
	if err := requireTeacher(creator); err != nil {
		return Form{}, nil, err
	}

	now := nowFunc()
	frm := Form{
		Title:       nf.Title,
		Description: nf.Description,
		DueDate:     nf.DueDate.UTC(),
		CreatedBy:   creator.ID,
		CreatedAt:   now,
	}
	questions := make([]Question, 0, len(nf.Questions))
	for i, text := range nf.Questions {
		questions = append(questions, Question{
			QuestionText:  text,
			QuestionOrder: i + 1,
			CreatedAt:     now,
		})
	}

	frm, questions, err := svc.repo.CreateForm(ctx, frm, questions)
	if err != nil {
		return Form{}, nil, errors.Wrap(err, "creating form")
	}

	// best effort, the form is already stored
	if err := svc.notifyStudents(ctx, frm); err != nil {
		svc.logger.Error("notifying students", errors.Wrap(err, "notifying students"), creator)
	}
	return frm, questions, nil
}

func (svc *service) Delete(ctx context.Context, id string, actor user.User) error {
	if err := requireTeacher(actor); err != nil {
		return err
	}
	frm, err := svc.repo.GetForm(ctx, id)
	if err != nil {
		return err
	}
	if frm.CreatedBy != actor.ID {
		return ErrNotOwner
	}
	return svc.repo.DeleteForm(ctx, id)
}

func (svc *service) Questions(ctx context.Context, formID string) ([]Question, error) {
	if _, err := svc.repo.GetForm(ctx, formID); err != nil {
		return nil, err
	}
	return svc.repo.QueryQuestions(ctx, formID)
}

func (svc *service) AddQuestions(ctx context.Context, formID string, nq NewQuestions, actor user.User) ([]Question, error) {
	if err := requireTeacher(actor); err != nil {
		return nil, err
	}
	frm, err := svc.repo.GetForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	if frm.CreatedBy != actor.ID {
		return nil, ErrNotOwner
	}

	existing, err := svc.repo.QueryQuestions(ctx, formID)
	if err != nil {
		return nil, errors.Wrap(err, "querying questions")
	}
	used := make(map[int]bool, len(existing))
	lastOrder := 0
	for _, q := range existing {
		used[q.QuestionOrder] = true
		if q.QuestionOrder > lastOrder {
			lastOrder = q.QuestionOrder
		}
	}
	for _, q := range nq.Questions {
		if q.QuestionOrder > lastOrder {
			lastOrder = q.QuestionOrder
		}
	}

	now := nowFunc()
	questions := make([]Question, 0, len(nq.Questions))
	for _, q := range nq.Questions {
		order := q.QuestionOrder
		if order == 0 {
			lastOrder++
			order = lastOrder
		} else if used[order] {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "question_order", Error: errDuplicateOrderText})
		}
		used[order] = true
		questions = append(questions, Question{
			FormID:        formID,
			QuestionText:  q.QuestionText,
			QuestionOrder: order,
			CreatedAt:     now,
		})
	}
	return svc.repo.CreateQuestions(ctx, questions)
}

func (svc *service) SubmissionsByForm(ctx context.Context, formID string) ([]Submission, error) {
	if _, err := svc.repo.GetForm(ctx, formID); err != nil {
		return nil, err
	}
	return svc.repo.QuerySubmissions(ctx, SubmissionFilter{FormID: formID})
}

func (svc *service) SubmissionsByStudent(ctx context.Context, studentID string) ([]Submission, error) {
	return svc.repo.QuerySubmissions(ctx, SubmissionFilter{StudentID: studentID})
}

// Submit records the student's answers once all of them are checked.
// Every question of the form must be answered exactly once.
func (svc *service) Submit(ctx context.Context, formID string, student user.User, answers []Answer) (Submission, error) {
	if err := requireStudent(student); err != nil {
		return Submission{}, err
	}
	if _, err := svc.repo.GetForm(ctx, formID); err != nil {
		return Submission{}, err
	}
	questions, err := svc.repo.QueryQuestions(ctx, formID)
	if err != nil {
		return Submission{}, errors.Wrap(err, "querying questions")
	}
	if err = checkAnswers(questions, answers); err != nil {
		return Submission{}, err
	}

	exists, err := svc.repo.SubmissionExists(ctx, formID, student.ID)
	if err != nil {
		return Submission{}, errors.Wrap(err, "checking submission")
	}
	if exists {
		return Submission{}, ErrAlreadySubmitted
	}

	sub := Submission{
		FormID:      formID,
		StudentID:   student.ID,
		SubmittedAt: nowFunc(),
	}
	responses := make([]Response, 0, len(answers))
	for _, ans := range answers {
		responses = append(responses, Response{QuestionID: ans.QuestionID, Rating: ans.Rating})
	}
	sub, _, err = svc.repo.CreateSubmission(ctx, sub, responses)
	if err != nil {
		if errors.Cause(err) == ErrAlreadySubmitted {
			return Submission{}, ErrAlreadySubmitted
		}
		return Submission{}, errors.Wrap(err, "creating submission")
	}
	return sub, nil
}

func checkAnswers(questions []Question, answers []Answer) error {
	known := make(map[string]bool, len(questions))
	for _, q := range questions {
		known[q.ID] = true
	}
	answered := make(map[string]bool, len(answers))
	for _, ans := range answers {
		if !known[ans.QuestionID] {
			return core.NewValidationError(nil, core.FieldError{Field: "answers", Error: fmt.Sprintf(errUnknownQuestionText, ans.QuestionID)})
		}
		if answered[ans.QuestionID] {
			return core.NewValidationError(nil, core.FieldError{Field: "answers", Error: errDuplicateAnswerText})
		}
		if ans.Rating < MinRating || ans.Rating > MaxRating {
			return core.NewValidationError(nil, core.FieldError{Field: "rating", Error: fmt.Sprintf("rating must be between %d and %d", MinRating, MaxRating)})
		}
		answered[ans.QuestionID] = true
	}
	if len(answered) != len(known) {
		return core.NewValidationError(nil, core.FieldError{Field: "answers", Error: errUnansweredText})
	}
	return nil
}

func (svc *service) Responses(ctx context.Context, formID string) ([]ResponseRow, error) {
	if _, err := svc.repo.GetForm(ctx, formID); err != nil {
		return nil, err
	}
	return svc.repo.QueryResponses(ctx, formID)
}

func (svc *service) SendReminders(ctx context.Context, within time.Duration) (int, error) {
	now := nowFunc()
	forms, err := svc.repo.QueryForms(ctx, &QueryFilter{DueAfter: now, DueBefore: now.Add(within)}, nil)
	if err != nil {
		return 0, errors.Wrap(err, "querying forms")
	}
	if len(forms) == 0 {
		return 0, nil
	}
	students, err := svc.activeStudents(ctx)
	if err != nil {
		return 0, err
	}

	var messages []*core.EmailMessage
	for _, frm := range forms {
		subs, err := svc.repo.QuerySubmissions(ctx, SubmissionFilter{FormID: frm.ID})
		if err != nil {
			return 0, errors.Wrap(err, "querying submissions")
		}
		done := make(map[string]bool, len(subs))
		for _, sub := range subs {
			done[sub.StudentID] = true
		}
		for _, std := range students {
			if !done[std.ID] {
				messages = append(messages, formMessage(std, frm, "form_reminder", "Reminder: "+frm.Title))
			}
		}
	}
	if len(messages) > 0 {
		svc.mailSvc.SendMessages(messages...)
	}
	return len(messages), nil
}

func (svc *service) activeStudents(ctx context.Context) ([]user.User, error) {
	students, err := svc.usrSvc.Students(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	active := students[:0]
	for _, std := range students {
		if std.IsActive {
			active = append(active, std)
		}
	}
	return active, nil
}

func (svc *service) notifyStudents(ctx context.Context, frm Form) error {
	students, err := svc.activeStudents(ctx)
	if err != nil {
		return err
	}
	if len(students) == 0 {
		return nil
	}
	messages := make([]*core.EmailMessage, 0, len(students))
	for _, std := range students {
		messages = append(messages, formMessage(std, frm, "form_published", "New feedback form: "+frm.Title))
	}
	svc.mailSvc.SendMessages(messages...)
	return nil
}

type formMailData struct {
	Name        string
	Title       string
	Description string
	DueDate     string
	FormID      string
}

func formMessage(to user.User, frm Form, tmpl, subject string) *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: to.FullName, Address: to.Email}},
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: formMailData{
			Name:        to.FullName,
			Title:       frm.Title,
			Description: frm.Description,
			DueDate:     frm.DueDate.Format(dueDateLayout),
			FormID:      frm.ID,
		},
	}
}
