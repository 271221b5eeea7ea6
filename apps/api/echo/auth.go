package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/principal"
	"github.com/trezcool/academia/core/session"
)

const passwordResetMessage = "If the email address supplied is associated with an active account on this system, " +
	"an email will arrive in your inbox shortly with instructions to reset your password."

type authApi struct {
	svc      *principal.Service
	issuer   *session.Issuer
	validate *validator.Validate
	logger   core.Logger
}

func registerAuthAPI(
	g *echo.Group,
	svc *principal.Service,
	issuer *session.Issuer,
	validate *validator.Validate,
	logger core.Logger,
) {
	api := authApi{
		svc:      svc,
		issuer:   issuer,
		validate: validate,
		logger:   logger,
	}

	// TODO: rate limit `/login` & `/password-reset` per client IP
	ag := g.Group("/auth")
	ag.POST("/register", api.register)
	ag.POST("/staff/login", api.staffLogin)
	ag.POST("/student/login", api.studentLogin)
	ag.POST("/refresh", api.refresh)
	ag.POST("/password-reset", api.resetPassword)
	ag.POST("/password-reset-confirm", api.confirmPasswordReset)
}

// Handlers

func (api *authApi) register(ctx echo.Context) error {
	var data principal.NewSchool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSchool")
	}

	school, owner, err := api.svc.RegisterSchool(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering school")
	}
	pair, err := api.issuer.IssueStaffSession(owner)
	if err != nil {
		return errors.Wrap(err, "issuing session")
	}

	return respond(ctx, http.StatusCreated, RegistrationResponse{Pair: pair, School: school, Staff: owner}, "School registered.")
}

func (api *authApi) staffLogin(ctx echo.Context) error {
	var data StaffLoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StaffLoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	staff, err := api.svc.AuthenticateStaff(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating staff")
	}
	pair, err := api.issuer.IssueStaffSession(staff)
	if err != nil {
		return errors.Wrap(err, "issuing session")
	}

	return respond(ctx, http.StatusOK, StaffSession{Pair: pair, Staff: staff})
}

func (api *authApi) studentLogin(ctx echo.Context) error {
	var data StudentLoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StudentLoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	student, err := api.svc.AuthenticateStudent(ctx.Request().Context(), data.SchoolID, data.RollNumber, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating student")
	}
	pair, err := api.issuer.IssueStudentSession(student)
	if err != nil {
		return errors.Wrap(err, "issuing session")
	}

	return respond(ctx, http.StatusOK, StudentSession{Pair: pair, Student: student})
}

func (api *authApi) refresh(ctx echo.Context) error {
	var data RefreshRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RefreshRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	pair, err := api.issuer.Refresh(data.RefreshToken)
	if err != nil {
		return errors.Wrap(err, "refreshing session")
	}
	return respond(ctx, http.StatusOK, pair)
}

func (api *authApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); err != nil && !errors.Is(err, principal.ErrNotFound) {
		// do not return errors to attackers
		api.logger.Error("requesting password reset", errors.Wrap(err, "requesting password reset"))
	}
	return respond(ctx, http.StatusOK, nil, passwordResetMessage)
}

func (api *authApi) confirmPasswordReset(ctx echo.Context) error {
	var data principal.ResetPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetPassword")
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return respond(ctx, http.StatusOK, nil, "Password has been reset with the new password.")
}
