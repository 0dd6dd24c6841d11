package inmemdb

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/form"
)

var (
	errDuplicateOrder  = errors.New("duplicate question order")
	errUnknownQuestion = errors.New("unknown question")
	errInvalidRating   = errors.New("invalid rating")
)

type formRepository struct {
	db *DB
}

var _ form.Repository = (*formRepository)(nil) // interface compliance check

func NewFormRepository(db *DB) form.Repository {
	return &formRepository{db: db}
}

func matchesForm(frm form.Form, filter *form.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Search != "" && !(containsFold(frm.Title, filter.Search) || containsFold(frm.Description, filter.Search)) {
		return false
	}
	if filter.CreatedBy != "" && frm.CreatedBy != filter.CreatedBy {
		return false
	}
	if !filter.DueAfter.IsZero() && frm.DueDate.Before(filter.DueAfter) {
		return false
	}
	if !filter.DueBefore.IsZero() && frm.DueDate.After(filter.DueBefore) {
		return false
	}
	return true
}

func (repo *formRepository) QueryForms(_ context.Context, filter *form.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]form.Form, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	forms := make([]form.Form, 0, len(repo.db.forms))
	for _, frm := range repo.db.forms {
		if matchesForm(*frm, filter) {
			forms = append(forms, *frm)
		}
	}
	sortRows(
		len(forms),
		func(i, j int) { forms[i], forms[j] = forms[j], forms[i] },
		func(i, j int, field string) int {
			switch field {
			case "title":
				return compareStrings(forms[i].Title, forms[j].Title)
			case "due_date":
				return compareTimes(forms[i].DueDate, forms[j].DueDate)
			case "created_at":
				return compareTimes(forms[i].CreatedAt, forms[j].CreatedAt)
			}
			return 0
		},
		ordering,
		core.DBOrdering{Field: "created_at", Ascending: false},
	)
	return forms, nil
}

func (repo *formRepository) GetForm(_ context.Context, id string, _ ...core.DBExecutor) (form.Form, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if frm, ok := repo.db.forms[id]; ok {
		return *frm, nil
	}
	return form.Form{}, form.ErrNotFound
}

// checkQuestions mirrors the (form_id, question_order) unique constraint.
// The caller must hold the lock.
func (repo *formRepository) checkQuestions(questions []form.Question) error {
	used := make(map[string]map[int]bool)
	for _, q := range repo.db.questions {
		if used[q.FormID] == nil {
			used[q.FormID] = make(map[int]bool)
		}
		used[q.FormID][q.QuestionOrder] = true
	}
	for _, q := range questions {
		if q.QuestionOrder < 1 {
			return errors.Errorf("invalid question order: %d", q.QuestionOrder)
		}
		if used[q.FormID] == nil {
			used[q.FormID] = make(map[int]bool)
		}
		if used[q.FormID][q.QuestionOrder] {
			return errDuplicateOrder
		}
		used[q.FormID][q.QuestionOrder] = true
	}
	return nil
}

func (repo *formRepository) CreateForm(_ context.Context, frm form.Form, questions []form.Question, _ ...core.DBExecutor) (form.Form, []form.Question, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	frm.ID = uuid.New().String()
	created := make([]form.Question, 0, len(questions))
	for _, q := range questions {
		q.ID = uuid.New().String()
		q.FormID = frm.ID
		created = append(created, q)
	}
	if err := repo.checkQuestions(created); err != nil {
		return form.Form{}, nil, errors.Wrap(err, "inserting questions")
	}

	repo.db.forms[frm.ID] = &frm
	for i := range created {
		q := created[i]
		repo.db.questions[q.ID] = &q
	}
	return frm, created, nil
}

func (repo *formRepository) DeleteForm(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.forms[id]; !ok {
		return form.ErrNotFound
	}
	repo.db.deleteFormCascade(id)
	return nil
}

func (repo *formRepository) QueryQuestions(_ context.Context, formID string, _ ...core.DBExecutor) ([]form.Question, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	questions := make([]form.Question, 0)
	for _, q := range repo.db.questions {
		if q.FormID == formID {
			questions = append(questions, *q)
		}
	}
	sortRows(
		len(questions),
		func(i, j int) { questions[i], questions[j] = questions[j], questions[i] },
		func(i, j int, _ string) int { return questions[i].QuestionOrder - questions[j].QuestionOrder },
		nil,
		core.DBOrdering{Field: "question_order", Ascending: true},
	)
	return questions, nil
}

func (repo *formRepository) CreateQuestions(_ context.Context, questions []form.Question, _ ...core.DBExecutor) ([]form.Question, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	created := make([]form.Question, 0, len(questions))
	for _, q := range questions {
		if _, ok := repo.db.forms[q.FormID]; !ok {
			return nil, form.ErrNotFound
		}
		q.ID = uuid.New().String()
		created = append(created, q)
	}
	if err := repo.checkQuestions(created); err != nil {
		return nil, errors.Wrap(err, "inserting questions")
	}
	for i := range created {
		q := created[i]
		repo.db.questions[q.ID] = &q
	}
	return created, nil
}

func (repo *formRepository) QuerySubmissions(_ context.Context, filter form.SubmissionFilter, _ ...core.DBExecutor) ([]form.Submission, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	subs := make([]form.Submission, 0)
	for _, sub := range repo.db.submissions {
		if filter.FormID != "" && sub.FormID != filter.FormID {
			continue
		}
		if filter.StudentID != "" && sub.StudentID != filter.StudentID {
			continue
		}
		subs = append(subs, *sub)
	}
	sortRows(
		len(subs),
		func(i, j int) { subs[i], subs[j] = subs[j], subs[i] },
		func(i, j int, _ string) int { return compareTimes(subs[i].SubmittedAt, subs[j].SubmittedAt) },
		nil,
		core.DBOrdering{Field: "submitted_at", Ascending: false},
	)
	return subs, nil
}

// submissionExists must be called with the lock held.
func (repo *formRepository) submissionExists(formID, studentID string) bool {
	for _, sub := range repo.db.submissions {
		if sub.FormID == formID && sub.StudentID == studentID {
			return true
		}
	}
	return false
}

func (repo *formRepository) SubmissionExists(_ context.Context, formID, studentID string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.submissionExists(formID, studentID), nil
}

// CreateSubmission checks every row before writing any of them.
func (repo *formRepository) CreateSubmission(_ context.Context, sub form.Submission, responses []form.Response, _ ...core.DBExecutor) (form.Submission, []form.Response, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.forms[sub.FormID]; !ok {
		return form.Submission{}, nil, form.ErrNotFound
	}
	if repo.submissionExists(sub.FormID, sub.StudentID) {
		return form.Submission{}, nil, form.ErrAlreadySubmitted
	}

	sub.ID = uuid.New().String()
	created := make([]form.Response, 0, len(responses))
	answered := make(map[string]bool, len(responses))
	for _, resp := range responses {
		if _, ok := repo.db.questions[resp.QuestionID]; !ok || answered[resp.QuestionID] {
			return form.Submission{}, nil, errors.Wrap(errUnknownQuestion, "inserting response")
		}
		if resp.Rating < form.MinRating || resp.Rating > form.MaxRating {
			return form.Submission{}, nil, errors.Wrap(errInvalidRating, "inserting response")
		}
		answered[resp.QuestionID] = true
		resp.ID = uuid.New().String()
		resp.SubmissionID = sub.ID
		created = append(created, resp)
	}

	repo.db.submissions[sub.ID] = &sub
	for i := range created {
		resp := created[i]
		repo.db.responses[resp.ID] = &resp
	}
	return sub, created, nil
}

func (repo *formRepository) QueryResponses(_ context.Context, formID string, _ ...core.DBExecutor) ([]form.ResponseRow, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	rows := make([]form.ResponseRow, 0)
	for _, resp := range repo.db.responses {
		sub, ok := repo.db.submissions[resp.SubmissionID]
		if !ok || sub.FormID != formID {
			continue
		}
		q, ok := repo.db.questions[resp.QuestionID]
		if !ok {
			continue
		}
		rows = append(rows, form.ResponseRow{
			Response:      *resp,
			QuestionText:  q.QuestionText,
			QuestionOrder: q.QuestionOrder,
			StudentID:     sub.StudentID,
			SubmittedAt:   sub.SubmittedAt,
		})
	}
	sortRows(
		len(rows),
		func(i, j int) { rows[i], rows[j] = rows[j], rows[i] },
		func(i, j int, field string) int {
			if field == "submitted_at" {
				return compareTimes(rows[i].SubmittedAt, rows[j].SubmittedAt)
			}
			return rows[i].QuestionOrder - rows[j].QuestionOrder
		},
		[]core.DBOrdering{{Field: "submitted_at", Ascending: true}, {Field: "question_order", Ascending: true}},
		core.DBOrdering{},
	)
	return rows, nil
}
