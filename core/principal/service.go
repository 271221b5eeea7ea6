package principal

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/credential"
)

var (
	// errors
	ErrNotFound           = errors.New("principal not found")
	ErrSchoolNotFound     = errors.New("school not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDeactivated = errors.New("account deactivated")
	ErrResetNotFound      = errors.New("password reset not found")

	errInvalidResetCode = errors.New("invalid or expired code")

	resetCodeBytes = 16
	NowFunc        = time.Now // mockable
)

type (
	// Store is the read side the session verifier depends on.
	Store interface {
		FindPrincipalByID(ctx context.Context, kind Kind, id string) (Principal, error)
	}

	Repository interface {
		Store

		CreateSchool(ctx context.Context, school School, owner Staff) (School, Staff, error)
		GetSchool(ctx context.Context, id string) (School, error)

		CreateStaff(ctx context.Context, staff Staff) (Staff, error)
		GetStaffByEmail(ctx context.Context, email string) (Staff, error)
		ListStaff(ctx context.Context, schoolID string) ([]Staff, error)
		UpdateStaffPassword(ctx context.Context, id string, hash []byte) error

		CreateStudent(ctx context.Context, student Student) (Student, error)
		GetStudentByRollNumber(ctx context.Context, schoolID, rollNumber string) (Student, error)
		ListStudents(ctx context.Context, schoolID, classID string) ([]Student, error)

		// SetActive only touches a principal of the given school; ErrNotFound otherwise.
		SetActive(ctx context.Context, kind Kind, schoolID, id string, active bool) error
		SetLastLogin(ctx context.Context, kind Kind, id string, at time.Time) error

		SavePasswordReset(ctx context.Context, reset PasswordReset) error
		GetPasswordReset(ctx context.Context, staffID string) (PasswordReset, error)
		DeletePasswordReset(ctx context.Context, staffID string) error
	}

	Service struct {
		repo     Repository
		mailSvc  core.EmailService
		validate *validator.Validate
		conf     *core.Config
	}
)

func NewService(
	conf *core.Config,
	repo Repository,
	mailSvc core.EmailService,
	validate *validator.Validate,
) *Service {
	return &Service{
		repo:     repo,
		mailSvc:  mailSvc,
		validate: validate,
		conf:     conf,
	}
}

// AuthenticateStaff checks a staff member's email & password.
func (svc *Service) AuthenticateStaff(ctx context.Context, email, pwd string) (Staff, error) {
	staff, err := svc.repo.GetStaffByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Staff{}, ErrInvalidCredentials
		}
		return Staff{}, pkgerrors.Wrap(err, "finding staff by email")
	}
	if err := staff.CheckPassword(pwd); err != nil {
		return Staff{}, ErrInvalidCredentials
	}
	if !staff.IsActive {
		return Staff{}, ErrAccountDeactivated
	}

	staff.LastLogin = NowFunc().UTC()
	if err := svc.repo.SetLastLogin(ctx, KindStaff, staff.ID, staff.LastLogin); err != nil {
		return Staff{}, pkgerrors.Wrap(err, "setting lastLogin")
	}
	return staff, nil
}

// AuthenticateStudent checks a student's roll number & password within a school.
func (svc *Service) AuthenticateStudent(ctx context.Context, schoolID, rollNumber, pwd string) (Student, error) {
	student, err := svc.repo.GetStudentByRollNumber(ctx, core.CleanString(schoolID), core.CleanString(rollNumber))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Student{}, ErrInvalidCredentials
		}
		return Student{}, pkgerrors.Wrap(err, "finding student by roll number")
	}
	if err := student.CheckPassword(pwd); err != nil {
		return Student{}, ErrInvalidCredentials
	}
	if !student.IsActive {
		return Student{}, ErrAccountDeactivated
	}

	student.LastLogin = NowFunc().UTC()
	if err := svc.repo.SetLastLogin(ctx, KindStudent, student.ID, student.LastLogin); err != nil {
		return Student{}, pkgerrors.Wrap(err, "setting lastLogin")
	}
	return student, nil
}

// RegisterSchool creates a school together with its first PRINCIPAL.
func (svc *Service) RegisterSchool(ctx context.Context, ns NewSchool) (School, Staff, error) {
	if err := ns.Validate(svc.validate); err != nil {
		return School{}, Staff{}, err
	}

	now := NowFunc().UTC()
	owner := Staff{
		Name:      ns.Name,
		Email:     ns.Email,
		Role:      RolePrincipal,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := owner.SetPassword(ns.Password); err != nil {
		return School{}, Staff{}, err
	}
	school, owner, err := svc.repo.CreateSchool(ctx, School{Name: ns.SchoolName, CreatedAt: now}, owner)
	if err != nil {
		return School{}, Staff{}, pkgerrors.Wrap(err, "creating school")
	}
	return school, owner, nil
}

// RequestPasswordReset e-mails a one-off reset code to an active staff member.
// ErrNotFound is returned for unknown or inactive accounts; callers must not leak it.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	staff, err := svc.repo.GetStaffByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		return err
	}
	if !staff.IsActive {
		return ErrNotFound
	}

	code, err := credential.GenerateToken(resetCodeBytes)
	if err != nil {
		return pkgerrors.Wrap(err, "generating reset code")
	}
	reset := PasswordReset{
		StaffID:   staff.ID,
		CodeHash:  credential.Hash(code),
		ExpiresAt: NowFunc().Add(svc.conf.PasswordResetTTL).UTC(),
	}
	if err := svc.repo.SavePasswordReset(ctx, reset); err != nil {
		return pkgerrors.Wrap(err, "saving password reset")
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: staff.Name, Address: staff.Email}},
		Subject:      "Password reset",
		TextTemplate: passwordResetText,
		HTMLTemplate: passwordResetHTML,
		Data: map[string]interface{}{
			"Name":    staff.Name,
			"Code":    code,
			"Minutes": int(svc.conf.PasswordResetTTL / time.Minute),
			"URL":     svc.conf.FrontendBaseURL + "/password-reset-confirm",
		},
	})
	return nil
}

// ResetPassword replaces a staff password given a valid, unexpired reset code.
func (svc *Service) ResetPassword(ctx context.Context, rp ResetPassword) error {
	if err := rp.Validate(svc.validate); err != nil {
		return err
	}
	invalidCode := core.NewValidationError(errInvalidResetCode, core.FieldError{Field: "code", Error: errInvalidResetCode.Error()})

	staff, err := svc.repo.GetStaffByEmail(ctx, rp.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalidCode
		}
		return pkgerrors.Wrap(err, "finding staff by email")
	}
	reset, err := svc.repo.GetPasswordReset(ctx, staff.ID)
	if err != nil {
		if errors.Is(err, ErrResetNotFound) {
			return invalidCode
		}
		return pkgerrors.Wrap(err, "getting password reset")
	}
	if subtle.ConstantTimeCompare([]byte(reset.CodeHash), []byte(credential.Hash(rp.Code))) == 0 {
		return invalidCode
	}
	if NowFunc().After(reset.ExpiresAt) {
		_ = svc.repo.DeletePasswordReset(ctx, staff.ID)
		return invalidCode
	}
	// deactivated after the code was sent
	if !staff.IsActive {
		_ = svc.repo.DeletePasswordReset(ctx, staff.ID)
		return ErrAccountDeactivated
	}

	if err := staff.SetPassword(rp.Password); err != nil {
		return err
	}
	if err := svc.repo.UpdateStaffPassword(ctx, staff.ID, staff.PasswordHash); err != nil {
		return pkgerrors.Wrap(err, "updating password")
	}
	return pkgerrors.Wrap(svc.repo.DeletePasswordReset(ctx, staff.ID), "deleting password reset")
}

const (
	passwordResetText = `Hello {{.Name}},

Use the code below to reset your password. It expires in {{.Minutes}} minutes.

{{.Code}}

{{.URL}}

If you did not request a password reset, you can ignore this email.
`
	passwordResetHTML = `<p>Hello {{.Name}},</p>
<p>Use the code below to reset your password. It expires in {{.Minutes}} minutes.</p>
<p><strong>{{.Code}}</strong></p>
<p><a href="{{.URL}}">Reset my password</a></p>
<p>If you did not request a password reset, you can ignore this email.</p>
`
)
