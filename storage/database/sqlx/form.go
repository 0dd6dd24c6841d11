package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/form"
)

var formOrderColumns = map[string]string{
	"title":      "title",
	"due_date":   "due_date",
	"created_at": "created_at",
}

const (
	formColumns       = `id, title, description, due_date, created_by, created_at`
	questionColumns   = `id, form_id, question_text, question_order, created_at`
	submissionColumns = `id, form_id, student_id, submitted_at`
)

type (
	formRow struct {
		ID          string      `db:"id"`
		Title       string      `db:"title"`
		Description null.String `db:"description"`
		DueDate     time.Time   `db:"due_date"`
		CreatedBy   string      `db:"created_by"`
		CreatedAt   time.Time   `db:"created_at"`
	}

	questionRow struct {
		ID            string    `db:"id"`
		FormID        string    `db:"form_id"`
		QuestionText  string    `db:"question_text"`
		QuestionOrder int       `db:"question_order"`
		CreatedAt     time.Time `db:"created_at"`
	}

	submissionRow struct {
		ID          string    `db:"id"`
		FormID      string    `db:"form_id"`
		StudentID   string    `db:"student_id"`
		SubmittedAt time.Time `db:"submitted_at"`
	}

	responseRow struct {
		ID            string    `db:"id"`
		SubmissionID  string    `db:"submission_id"`
		QuestionID    string    `db:"question_id"`
		Rating        int       `db:"rating"`
		QuestionText  string    `db:"question_text"`
		QuestionOrder int       `db:"question_order"`
		StudentID     string    `db:"student_id"`
		SubmittedAt   time.Time `db:"submitted_at"`
	}
)

func (row formRow) form() form.Form {
	return form.Form{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description.String,
		DueDate:     row.DueDate.UTC(),
		CreatedBy:   row.CreatedBy,
		CreatedAt:   row.CreatedAt.UTC(),
	}
}

func (row questionRow) question() form.Question {
	return form.Question{
		ID:            row.ID,
		FormID:        row.FormID,
		QuestionText:  row.QuestionText,
		QuestionOrder: row.QuestionOrder,
		CreatedAt:     row.CreatedAt.UTC(),
	}
}

func (row submissionRow) submission() form.Submission {
	return form.Submission{
		ID:          row.ID,
		FormID:      row.FormID,
		StudentID:   row.StudentID,
		SubmittedAt: row.SubmittedAt.UTC(),
	}
}

type formRepository struct {
	db core.DB
}

var _ form.Repository = (*formRepository)(nil) // interface compliance check

func NewFormRepository(db core.DB) form.Repository {
	return &formRepository{db: db}
}

// trapNoRowsErr maps psql "no rows" err to form.ErrNotFound
func (repo formRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return form.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func validUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (repo formRepository) QueryForms(ctx context.Context, filter *form.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]form.Form, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter != nil {
		if filter.Search != "" {
			val := containsPattern(filter.Search)
			conds = append(conds, `(title ILIKE ? ESCAPE '\' OR description ILIKE ? ESCAPE '\')`)
			args = append(args, val, val)
		}
		if filter.CreatedBy != "" {
			if !validUUID(filter.CreatedBy) {
				return []form.Form{}, nil
			}
			conds = append(conds, "created_by = ?")
			args = append(args, filter.CreatedBy)
		}
		if !filter.DueAfter.IsZero() {
			conds = append(conds, "due_date >= ?")
			args = append(args, filter.DueAfter.UTC())
		}
		if !filter.DueBefore.IsZero() {
			conds = append(conds, "due_date <= ?")
			args = append(args, filter.DueBefore.UTC())
		}
	}

	q := `SELECT ` + formColumns + ` FROM form` + where(conds) + orderBy(ordering, formOrderColumns, "created_at DESC")
	var rows []formRow
	if err := selectRows(ctx, getExec(repo.db, exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying forms")
	}
	forms := make([]form.Form, 0, len(rows))
	for _, row := range rows {
		forms = append(forms, row.form())
	}
	return forms, nil
}

func (repo formRepository) GetForm(ctx context.Context, id string, exec ...core.DBExecutor) (form.Form, error) {
	if !validUUID(id) {
		return form.Form{}, form.ErrNotFound
	}
	var row formRow
	if err := getRow(ctx, getExec(repo.db, exec), &row, `SELECT `+formColumns+` FROM form WHERE id = ?`, id); err != nil {
		return form.Form{}, repo.trapNoRowsErr(err, "finding form")
	}
	return row.form(), nil
}

func (repo formRepository) CreateForm(ctx context.Context, frm form.Form, questions []form.Question, exec ...core.DBExecutor) (form.Form, []form.Question, error) {
	frm.ID = uuid.New().String()
	for i := range questions {
		questions[i].FormID = frm.ID
	}

	var created []form.Question
	err := inTx(ctx, repo.db, exec, func(tx core.DBExecutor) error {
		row := formRow{
			ID:          frm.ID,
			Title:       frm.Title,
			Description: null.NewString(frm.Description, frm.Description != ""),
			DueDate:     frm.DueDate.UTC(),
			CreatedBy:   frm.CreatedBy,
			CreatedAt:   frm.CreatedAt.UTC(),
		}
		q := `INSERT INTO form (` + formColumns + `) VALUES (:id, :title, :description, :due_date, :created_by, :created_at)`
		if _, err := namedExec(ctx, tx, q, row); err != nil {
			return errors.Wrap(err, "inserting form")
		}

		var err error
		created, err = repo.CreateQuestions(ctx, questions, tx)
		return err
	})
	if err != nil {
		return form.Form{}, nil, err
	}
	return frm, created, nil
}

func (repo formRepository) DeleteForm(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !validUUID(id) {
		return form.ErrNotFound
	}
	q, args, err := query(`DELETE FROM form WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "deleting form")
	}
	res, err := getExec(repo.db, exec).ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrap(err, "deleting form")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return form.ErrNotFound
	}
	return nil
}

func (repo formRepository) QueryQuestions(ctx context.Context, formID string, exec ...core.DBExecutor) ([]form.Question, error) {
	if !validUUID(formID) {
		return []form.Question{}, nil
	}
	var rows []questionRow
	q := `SELECT ` + questionColumns + ` FROM form_question WHERE form_id = ? ORDER BY question_order ASC`
	if err := selectRows(ctx, getExec(repo.db, exec), &rows, q, formID); err != nil {
		return nil, errors.Wrap(err, "querying questions")
	}
	questions := make([]form.Question, 0, len(rows))
	for _, row := range rows {
		questions = append(questions, row.question())
	}
	return questions, nil
}

func (repo formRepository) CreateQuestions(ctx context.Context, questions []form.Question, exec ...core.DBExecutor) ([]form.Question, error) {
	created := make([]form.Question, 0, len(questions))
	err := inTx(ctx, repo.db, exec, func(tx core.DBExecutor) error {
		q := `INSERT INTO form_question (` + questionColumns + `) VALUES (:id, :form_id, :question_text, :question_order, :created_at)`
		for _, qst := range questions {
			qst.ID = uuid.New().String()
			row := questionRow{
				ID:            qst.ID,
				FormID:        qst.FormID,
				QuestionText:  qst.QuestionText,
				QuestionOrder: qst.QuestionOrder,
				CreatedAt:     qst.CreatedAt.UTC(),
			}
			if _, err := namedExec(ctx, tx, q, row); err != nil {
				return errors.Wrap(err, "inserting question")
			}
			created = append(created, qst)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (repo formRepository) QuerySubmissions(ctx context.Context, filter form.SubmissionFilter, exec ...core.DBExecutor) ([]form.Submission, error) {
	var (
		conds []string
		args  []interface{}
	)
	for col, val := range map[string]string{"form_id": filter.FormID, "student_id": filter.StudentID} {
		if val == "" {
			continue
		}
		if !validUUID(val) {
			return []form.Submission{}, nil
		}
		conds = append(conds, col+" = ?")
		args = append(args, val)
	}

	var rows []submissionRow
	q := `SELECT ` + submissionColumns + ` FROM form_submission` + where(conds) + ` ORDER BY submitted_at DESC`
	if err := selectRows(ctx, getExec(repo.db, exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	subs := make([]form.Submission, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, row.submission())
	}
	return subs, nil
}

func (repo formRepository) SubmissionExists(ctx context.Context, formID, studentID string, exec ...core.DBExecutor) (bool, error) {
	if !(validUUID(formID) && validUUID(studentID)) {
		return false, nil
	}
	var res struct {
		Found bool `db:"found"`
	}
	q := `SELECT EXISTS (SELECT 1 FROM form_submission WHERE form_id = ? AND student_id = ?) AS found`
	if err := getRow(ctx, getExec(repo.db, exec), &res, q, formID, studentID); err != nil {
		return false, errors.Wrap(err, "checking submission")
	}
	return res.Found, nil
}

func (repo formRepository) CreateSubmission(ctx context.Context, sub form.Submission, responses []form.Response, exec ...core.DBExecutor) (form.Submission, []form.Response, error) {
	sub.ID = uuid.New().String()
	created := make([]form.Response, 0, len(responses))

	err := inTx(ctx, repo.db, exec, func(tx core.DBExecutor) error {
		row := submissionRow{
			ID:          sub.ID,
			FormID:      sub.FormID,
			StudentID:   sub.StudentID,
			SubmittedAt: sub.SubmittedAt.UTC(),
		}
		q := `INSERT INTO form_submission (` + submissionColumns + `) VALUES (:id, :form_id, :student_id, :submitted_at)`
		if _, err := namedExec(ctx, tx, q, row); err != nil {
			if isUniqueViolation(err) {
				return form.ErrAlreadySubmitted
			}
			return errors.Wrap(err, "inserting submission")
		}

		q = `INSERT INTO question_response (id, submission_id, question_id, rating) VALUES (:id, :submission_id, :question_id, :rating)`
		for _, resp := range responses {
			resp.ID = uuid.New().String()
			resp.SubmissionID = sub.ID
			if _, err := namedExec(ctx, tx, q, responseRow{
				ID:           resp.ID,
				SubmissionID: resp.SubmissionID,
				QuestionID:   resp.QuestionID,
				Rating:       resp.Rating,
			}); err != nil {
				return errors.Wrap(err, "inserting response")
			}
			created = append(created, resp)
		}
		return nil
	})
	if err != nil {
		return form.Submission{}, nil, err
	}
	return sub, created, nil
}

func (repo formRepository) QueryResponses(ctx context.Context, formID string, exec ...core.DBExecutor) ([]form.ResponseRow, error) {
	if !validUUID(formID) {
		return []form.ResponseRow{}, nil
	}
	q := `SELECT r.id, r.submission_id, r.question_id, r.rating,
			q.question_text, q.question_order, s.student_id, s.submitted_at
		FROM question_response r
		JOIN form_submission s ON s.id = r.submission_id
		JOIN form_question q ON q.id = r.question_id
		WHERE s.form_id = ?
		ORDER BY s.submitted_at ASC, q.question_order ASC`

	var rows []responseRow
	if err := selectRows(ctx, getExec(repo.db, exec), &rows, q, formID); err != nil {
		return nil, errors.Wrap(err, "querying responses")
	}
	out := make([]form.ResponseRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, form.ResponseRow{
			Response: form.Response{
				ID:           row.ID,
				SubmissionID: row.SubmissionID,
				QuestionID:   row.QuestionID,
				Rating:       row.Rating,
			},
			QuestionText:  row.QuestionText,
			QuestionOrder: row.QuestionOrder,
			StudentID:     row.StudentID,
			SubmittedAt:   row.SubmittedAt.UTC(),
		})
	}
	return out, nil
}
