// Package directory administers the staff and students of a single school.
// Every operation takes the caller's access.ScopeFilter; records are never read or written
// outside of it.
package directory

import (
	"context"
	"errors"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/access"
	"github.com/trezcool/academia/core/principal"
)

var (
	ErrUnscoped = errors.New("directory access without a school scope")

	NowFunc = time.Now // mockable
)

type (
	// Revoker pushes deactivations to the session denylist.
	Revoker interface {
		Deny(ctx context.Context, principalID string) error
		Allow(ctx context.Context, principalID string) error
	}

	Service struct {
		repo       principal.Repository
		validate   *validator.Validate
		translator ut.Translator
		revoker    Revoker
		logger     core.Logger
	}
)

// NewService returns a directory Service. revoker may be nil, in which case a deactivation
// takes effect at each session's next verification.
func NewService(
	repo principal.Repository,
	validate *validator.Validate,
	translator ut.Translator,
	revoker Revoker,
	logger core.Logger,
) *Service {
	return &Service{
		repo:       repo,
		validate:   validate,
		translator: translator,
		revoker:    revoker,
		logger:     logger,
	}
}

func checkScope(scope access.ScopeFilter) error {
	if scope.IsZero() {
		return ErrUnscoped
	}
	return nil
}

func (svc *Service) ListStaff(ctx context.Context, scope access.ScopeFilter) ([]principal.Staff, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	staff, err := svc.repo.ListStaff(ctx, scope.SchoolID())
	if err != nil {
		return nil, pkgerrors.Wrap(err, "listing staff")
	}
	return staff, nil
}

// ListStudents lists the students of the school, optionally restricted to a class.
func (svc *Service) ListStudents(ctx context.Context, scope access.ScopeFilter, classID string) ([]principal.Student, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	students, err := svc.repo.ListStudents(ctx, scope.SchoolID(), core.CleanString(classID))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "listing students")
	}
	return students, nil
}

func (svc *Service) CreateStaff(ctx context.Context, scope access.ScopeFilter, ns principal.NewStaff) (principal.Staff, error) {
	if err := checkScope(scope); err != nil {
		return principal.Staff{}, err
	}
	if err := ns.Validate(svc.validate); err != nil {
		return principal.Staff{}, err
	}

	now := NowFunc().UTC()
	staff := principal.Staff{
		SchoolID:  scope.SchoolID(),
		Name:      ns.Name,
		Email:     ns.Email,
		Role:      ns.Role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := staff.SetPassword(ns.Password); err != nil {
		return principal.Staff{}, err
	}
	return svc.repo.CreateStaff(ctx, staff)
}

func (svc *Service) CreateStudent(ctx context.Context, scope access.ScopeFilter, ns principal.NewStudent) (principal.Student, error) {
	if err := checkScope(scope); err != nil {
		return principal.Student{}, err
	}
	if err := ns.Validate(svc.validate); err != nil {
		return principal.Student{}, err
	}
	return svc.createStudent(ctx, scope, ns)
}

func (svc *Service) createStudent(ctx context.Context, scope access.ScopeFilter, ns principal.NewStudent) (principal.Student, error) {
	now := NowFunc().UTC()
	student := principal.Student{
		SchoolID:      scope.SchoolID(),
		ClassID:       ns.ClassID,
		RollNumber:    ns.RollNumber,
		Name:          ns.Name,
		GuardianPhone: ns.GuardianPhone,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := student.SetPassword(ns.Password); err != nil {
		return principal.Student{}, err
	}
	return svc.repo.CreateStudent(ctx, student)
}

// SetActive activates or deactivates a staff member or a student of the school.
// principal.ErrNotFound is returned for ids of other schools.
func (svc *Service) SetActive(ctx context.Context, scope access.ScopeFilter, kind principal.Kind, id string, active bool) error {
	if err := checkScope(scope); err != nil {
		return err
	}
	if !kind.Valid() {
		return pkgerrors.Errorf("unknown principal kind %q", kind)
	}
	if err := svc.repo.SetActive(ctx, kind, scope.SchoolID(), id, active); err != nil {
		return err
	}
	if svc.revoker == nil {
		return nil
	}

	if active {
		return pkgerrors.Wrap(svc.revoker.Allow(ctx, id), "removing principal from denylist")
	}
	return pkgerrors.Wrap(svc.revoker.Deny(ctx, id), "adding principal to denylist")
}
