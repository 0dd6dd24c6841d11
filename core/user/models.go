package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/feedback/core"
)

// Role is the tag of a user's Profile.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

var (
	AllRoles = []Role{RoleStudent, RoleTeacher}

	Roles = []RoleInfo{
		{Name: "Student", Value: RoleStudent},
		{Name: "Teacher", Value: RoleTeacher},
	}
)

func (r Role) IsValid() bool {
	for _, role := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

type RoleInfo struct {
	Name  string `json:"name"`
	Value Role   `json:"value"`
}

type User struct {
	ID           string    `json:"id"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	Department   string    `json:"department"`
	Role         Role      `json:"role"`
	StudentID    string    `json:"student_id,omitempty"` // students only
	Position     string    `json:"position,omitempty"`   // teachers only
	IsActive     bool      `json:"is_active"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) IsStudent() bool { return u.Role == RoleStudent }
func (u User) IsTeacher() bool { return u.Role == RoleTeacher }

// Profile returns the role specific view of the User.
func (u User) Profile() (Profile, error) {
	switch u.Role {
	case RoleStudent:
		return StudentProfile{User: u}, nil
	case RoleTeacher:
		return TeacherProfile{User: u}, nil
	default:
		return nil, ErrInvalidRole
	}
}

// Profile is either a StudentProfile or a TeacherProfile.
// Callers needing role specific behaviour must type-switch over both.
type Profile interface {
	Account() User
	isProfile()
}

type StudentProfile struct {
	User
}

func (p StudentProfile) Account() User { return p.User }
func (StudentProfile) isProfile()      {}

// Number is the student's institutional ID.
func (p StudentProfile) Number() string { return p.StudentID }

type TeacherProfile struct {
	User
}

func (p TeacherProfile) Account() User { return p.User }
func (TeacherProfile) isProfile()      {}

func (p TeacherProfile) Title() string { return p.Position }

// NewUser contains information needed to create a new User.
type NewUser struct {
	FullName        string `json:"full_name" validate:"required,notblank"`
	Email           string `json:"email" validate:"required,email"`
	Department      string `json:"department" validate:"required,notblank"`
	Role            Role   `json:"role" validate:"required,userrole"`
	StudentID       string `json:"student_id" validate:"omitempty,alphanum-"`
	Position        string `json:"position"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc Service) error {
	nu.FullName = core.CleanString(nu.FullName)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Department = core.CleanString(nu.Department)
	nu.Role = Role(core.CleanString(string(nu.Role), true /* lower */))
	nu.StudentID = core.CleanString(nu.StudentID)
	nu.Position = core.CleanString(nu.Position)

	// role specific fields never leak into the other variant
	switch nu.Role {
	case RoleStudent:
		nu.Position = ""
	case RoleTeacher:
		nu.StudentID = ""
	}

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(nu.Email)
}

type QueryFilter struct {
	Search     string `query:"search"`
	Roles      []Role `query:"role"`
	Department string `query:"department"`
	IsActive   *bool  `query:"is_active"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.Department == "" && qf.IsActive == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Department = core.CleanString(qf.Department)
}

type GetFilter struct {
	ID    string
	Email string
}
