package testutil

import (
	"context"
	"io/ioutil"
	"log"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/form"
	"github.com/trezcool/feedback/core/user"
	logsvc "github.com/trezcool/feedback/services/logger"
)

// NewConfig returns a test mode config with short lived tokens.
func NewConfig() *core.Config {
	return &core.Config{
		Env:             "TEST",
		TestMode:        true,
		AppName:         "Feedback",
		SecretKey:       "test-secret-key",
		FrontendBaseURL: "https://feedback.test",
		Server: core.ServerConfig{
			JWTExpirationDelta:        5 * time.Minute,
			JWTRefreshExpirationDelta: time.Hour,
			ShutdownTimeout:           time.Second,
			RateLimitPerMinute:        600,
			RateLimitBurst:            100,
		},
	}
}

// NewLogger returns a logger that discards its output.
func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(ioutil.Discard, "", 0), conf)
}

// NewValidator returns a validator with every custom validator registered, and its translator.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd string,
	role user.Role,
	department string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		FullName:   name,
		Email:      email,
		Department: department,
		Role:       role,
		IsActive:   isActive,
		CreatedAt:  tstamp,
		UpdatedAt:  tstamp,
	}
	switch role {
	case user.RoleStudent:
		usr.StudentID = "STD-" + name
	case user.RoleTeacher:
		usr.Position = "Lecturer"
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateStudent(t *testing.T, repo user.Repository, name, email string) user.User {
	return CreateUser(t, repo, name, email, "", user.RoleStudent, "Computer Science", true)
}

func CreateTeacher(t *testing.T, repo user.Repository, name, email string) user.User {
	return CreateUser(t, repo, name, email, "", user.RoleTeacher, "Computer Science", true)
}

// CreateForm stores a form owned by createdBy with one question per text, in order.
func CreateForm(
	t *testing.T,
	repo form.Repository,
	createdBy, title string,
	dueDate time.Time,
	texts ...string,
) (form.Form, []form.Question) {
	now := time.Now().UTC()
	questions := make([]form.Question, 0, len(texts))
	for i, text := range texts {
		questions = append(questions, form.Question{QuestionText: text, QuestionOrder: i + 1, CreatedAt: now})
	}
	frm, questions, err := repo.CreateForm(
		context.Background(),
		form.Form{Title: title, DueDate: dueDate.UTC(), CreatedBy: createdBy, CreatedAt: now},
		questions,
	)
	if err != nil {
		t.Fatalf("CreateForm() failed: %v", err)
	}
	return frm, questions
}

// Submit stores a submission rating each question in order.
func Submit(
	t *testing.T,
	repo form.Repository,
	studentID string,
	questions []form.Question,
	ratings ...int,
) form.Submission {
	if len(questions) == 0 || len(ratings) != len(questions) {
		t.Fatalf("Submit() failed: %d ratings for %d questions", len(ratings), len(questions))
	}
	responses := make([]form.Response, 0, len(ratings))
	for i, rating := range ratings {
		responses = append(responses, form.Response{QuestionID: questions[i].ID, Rating: rating})
	}
	sub, _, err := repo.CreateSubmission(
		context.Background(),
		form.Submission{FormID: questions[0].FormID, StudentID: studentID, SubmittedAt: time.Now().UTC()},
		responses,
	)
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	return sub
}
