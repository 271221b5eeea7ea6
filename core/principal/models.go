package principal

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/academia/core"
)

// Kind tells staff and student principals apart. It is also the audience of a session.
type Kind string

const (
	KindStaff   Kind = "staff"
	KindStudent Kind = "student"
)

func (k Kind) Valid() bool { return k == KindStaff || k == KindStudent }

// Role is the authorization role carried by an access decision.
type Role string

const (
	RolePrincipal Role = "PRINCIPAL"
	RoleTeacher   Role = "TEACHER"
	RoleStudent   Role = "STUDENT" // implied for every student
)

var StaffRoles = []Role{RolePrincipal, RoleTeacher}

func (r Role) IsStaff() bool { return r == RolePrincipal || r == RoleTeacher }

// Principal is implemented by Staff and Student only.
type Principal interface {
	Subject() string
	School() string
	Kind() Kind
	AccessRole() Role
	Active() bool

	principal()
}

var (
	_ Principal = Staff{}
	_ Principal = Student{}
)

type School struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"` // UTC
}

// Staff is a school employee: a PRINCIPAL or a TEACHER.
type Staff struct {
	ID           string    `json:"id"`
	SchoolID     string    `json:"schoolId"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"isActive"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"` // UTC
	UpdatedAt    time.Time `json:"updatedAt"` // UTC
	LastLogin    time.Time `json:"lastLogin"` // UTC
}

func (s Staff) Subject() string  { return s.ID }
func (s Staff) School() string   { return s.SchoolID }
func (s Staff) Kind() Kind       { return KindStaff }
func (s Staff) AccessRole() Role { return s.Role }
func (s Staff) Active() bool     { return s.IsActive }
func (s Staff) principal()       {}

func (s *Staff) SetPassword(pwd string) error {
	hash, err := hashPassword(pwd)
	if err != nil {
		return err
	}
	s.PasswordHash = hash
	return nil
}

func (s Staff) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(s.PasswordHash, []byte(pwd))
}

// Student belongs to a class of a school and is identified there by its roll number.
type Student struct {
	ID            string    `json:"id"`
	SchoolID      string    `json:"schoolId"`
	ClassID       string    `json:"classId"`
	RollNumber    string    `json:"rollNumber"`
	Name          string    `json:"name"`
	GuardianPhone string    `json:"guardianPhone,omitempty"` // sealed at rest
	IsActive      bool      `json:"isActive"`
	PasswordHash  []byte    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"` // UTC
	UpdatedAt     time.Time `json:"updatedAt"` // UTC
	LastLogin     time.Time `json:"lastLogin"` // UTC
}

func (s Student) Subject() string  { return s.ID }
func (s Student) School() string   { return s.SchoolID }
func (s Student) Kind() Kind       { return KindStudent }
func (s Student) AccessRole() Role { return RoleStudent }
func (s Student) Active() bool     { return s.IsActive }
func (s Student) principal()       {}

func (s *Student) SetPassword(pwd string) error {
	hash, err := hashPassword(pwd)
	if err != nil {
		return err
	}
	s.PasswordHash = hash
	return nil
}

func (s Student) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(s.PasswordHash, []byte(pwd))
}

func hashPassword(pwd string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
}

// PasswordReset is a pending staff password reset. Only the digest of the code is kept.
type PasswordReset struct {
	StaffID   string
	CodeHash  string
	ExpiresAt time.Time // UTC
}

// NewSchool contains information needed to register a school and its first principal.
type NewSchool struct {
	SchoolName      string `json:"schoolName" validate:"required,max=120"`
	Name            string `json:"name" validate:"required,max=120"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

func (ns *NewSchool) Validate(validate *validator.Validate) error {
	ns.SchoolName = core.CleanString(ns.SchoolName)
	ns.Name = core.CleanString(ns.Name)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	return validate.Struct(ns)
}

// NewStaff contains information needed to create a staff member in the caller's school.
type NewStaff struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Role     Role   `json:"role" validate:"required,staffrole"`
	Password string `json:"password" validate:"required"`
}

func (ns *NewStaff) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.Role = Role(core.CleanString(string(ns.Role)))
	return validate.Struct(ns)
}

// NewStudent contains information needed to enrol a student in the caller's school.
type NewStudent struct {
	ClassID       string `json:"classId" validate:"required,max=64"`
	RollNumber    string `json:"rollNumber" validate:"required,max=32,rollno"`
	Name          string `json:"name" validate:"required,max=120"`
	GuardianPhone string `json:"guardianPhone" validate:"omitempty,e164"`
	Password      string `json:"password" validate:"required"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.ClassID = core.CleanString(ns.ClassID)
	ns.RollNumber = core.CleanString(ns.RollNumber)
	ns.Name = core.CleanString(ns.Name)
	ns.GuardianPhone = core.CleanString(ns.GuardianPhone)
	return validate.Struct(ns)
}

type ResetPassword struct {
	Email           string `json:"email" validate:"required,email"`
	Code            string `json:"code" validate:"required,hexadecimal"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

func (rp *ResetPassword) Validate(validate *validator.Validate) error {
	rp.Email = core.CleanString(rp.Email, true /* lower */)
	rp.Code = core.CleanString(rp.Code, true /* lower */)
	return validate.Struct(rp)
}

// SetPassword is a password chosen for a staff member by an operator.
type SetPassword struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (sp *SetPassword) Validate(validate *validator.Validate) error {
	sp.Email = core.CleanString(sp.Email, true /* lower */)
	return validate.Struct(sp)
}
