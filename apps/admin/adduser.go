package main

import (
	"context"
	"errors"
	"time"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/user"
)

var errStudentIDRequired = errors.New("studentid is required for students")

type newAccount struct {
	name       string
	email      string
	role       user.Role
	department string
	studentID  string
	position   string
}

// addUser updates or creates an active user.User
func (cli *commandLine) addUser(acc newAccount, pwd string) error {
	ctx := context.Background()
	now := time.Now().UTC()
	email := core.CleanString(acc.email, true /* lower */)
	role := user.Role(core.CleanString(string(acc.role), true /* lower */))

	if !role.IsValid() {
		return user.ErrInvalidRole
	}
	if role == user.RoleStudent && core.CleanString(acc.studentID) == "" {
		return errStudentIDRequired
	}

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	if err != nil {
		if err != user.ErrNotFound {
			return err
		}
		usr = user.User{Email: email, CreatedAt: now}
	}
	usr.FullName = core.CleanString(acc.name)
	usr.Department = core.CleanString(acc.department)
	usr.Role = role
	usr.StudentID, usr.Position = "", ""
	switch role {
	case user.RoleStudent:
		usr.StudentID = core.CleanString(acc.studentID)
	case user.RoleTeacher:
		usr.Position = core.CleanString(acc.position)
	}
	usr.IsActive = true
	usr.UpdatedAt = now

	if err = user.ValidatePassword(pwd, usr); err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	if _, err = cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}
