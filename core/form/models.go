package form

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/feedback/core"
)

type (
	Form struct {
		ID          string    `json:"id"`
		Title       string    `json:"title"`
		Description string    `json:"description"` // optional
		DueDate     time.Time `json:"due_date"`    // UTC
		CreatedBy   string    `json:"created_by"`
		CreatedAt   time.Time `json:"created_at"` // UTC
	}

	Question struct {
		ID            string    `json:"id"`
		FormID        string    `json:"form_id"`
		QuestionText  string    `json:"question_text"`
		QuestionOrder int       `json:"question_order"`
		CreatedAt     time.Time `json:"created_at"` // UTC
	}

	// Submission is a student's single completion of a Form.
	Submission struct {
		ID          string    `json:"id"`
		FormID      string    `json:"form_id"`
		StudentID   string    `json:"student_id"` // user.User.ID
		SubmittedAt time.Time `json:"submitted_at"` // UTC
	}

	// Response is one rating (1..5) given to one Question within a Submission.
	Response struct {
		ID           string `json:"id"`
		SubmissionID string `json:"submission_id"`
		QuestionID   string `json:"question_id"`
		Rating       int    `json:"rating"`
	}

	// ResponseRow is a Response joined with its question and submission.
	ResponseRow struct {
		Response
		QuestionText  string    `json:"question_text"`
		QuestionOrder int       `json:"question_order"`
		StudentID     string    `json:"student_id"`
		SubmittedAt   time.Time `json:"submitted_at"`
	}
)

const (
	MinRating = 1
	MaxRating = 5
)

// NewForm contains information needed to create a new Form with its questions.
type NewForm struct {
	Title       string    `json:"title" validate:"required,notblank,max=255"`
	Description string    `json:"description"`
	DueDate     time.Time `json:"due_date" validate:"required"`
	Questions   []string  `json:"questions" validate:"required,min=1,dive,required,notblank"`
}

func (nf *NewForm) Validate(validate *validator.Validate) error {
	nf.Title = core.CleanString(nf.Title)
	nf.Description = core.CleanString(nf.Description)
	nf.DueDate = nf.DueDate.UTC()
	for i, q := range nf.Questions {
		nf.Questions[i] = core.CleanString(q)
	}
	return validate.Struct(nf)
}

// NewQuestion is a question appended to an existing Form.
// QuestionOrder is optional; zero means "after the last question".
type NewQuestion struct {
	QuestionText  string `json:"question_text" validate:"required,notblank"`
	QuestionOrder int    `json:"question_order" validate:"omitempty,min=1"`
}

type NewQuestions struct {
	Questions []NewQuestion `json:"questions" validate:"required,min=1,dive"`
}

func (nq *NewQuestions) Validate(validate *validator.Validate) error {
	for i := range nq.Questions {
		nq.Questions[i].QuestionText = core.CleanString(nq.Questions[i].QuestionText)
	}
	if err := validate.Struct(nq); err != nil {
		return err
	}
	seen := make(map[int]bool, len(nq.Questions))
	for _, q := range nq.Questions {
		if q.QuestionOrder == 0 {
			continue
		}
		if seen[q.QuestionOrder] {
			return core.NewValidationError(nil, core.FieldError{Field: "question_order", Error: errDuplicateOrderText})
		}
		seen[q.QuestionOrder] = true
	}
	return nil
}

type Answer struct {
	QuestionID string `json:"question_id" validate:"required"`
	Rating     int    `json:"rating" validate:"required,min=1,max=5"`
}

type NewSubmission struct {
	Answers []Answer `json:"answers" validate:"required,min=1,dive"`
}

func (ns *NewSubmission) Validate(validate *validator.Validate) error {
	for i := range ns.Answers {
		ns.Answers[i].QuestionID = core.CleanString(ns.Answers[i].QuestionID)
	}
	return validate.Struct(ns)
}

type QueryFilter struct {
	Search    string    `query:"search"`
	CreatedBy string    `query:"created_by"`
	DueAfter  time.Time `query:"-"`
	DueBefore time.Time `query:"-"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.CreatedBy == "" && qf.DueAfter.IsZero() && qf.DueBefore.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.CreatedBy = core.CleanString(qf.CreatedBy)
}

// SubmissionFilter selects submissions by form, by student, or both.
type SubmissionFilter struct {
	FormID    string
	StudentID string
}
