package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/principal"
	"github.com/trezcool/academia/core/session"
)

type (
	StaffLoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	StudentLoginRequest struct {
		SchoolID   string `json:"schoolId" validate:"required"`
		RollNumber string `json:"rollNumber" validate:"required"`
		Password   string `json:"password" validate:"required"`
	}

	RefreshRequest struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	StaffSession struct {
		session.Pair
		Staff principal.Staff `json:"staff"`
	}

	StudentSession struct {
		session.Pair
		Student principal.Student `json:"student"`
	}

	RegistrationResponse struct {
		session.Pair
		School principal.School `json:"school"`
		Staff  principal.Staff  `json:"staff"`
	}
)

func (r *StaffLoginRequest) Validate(validate *validator.Validate) error {
	r.Email = core.CleanString(r.Email, true /* lower */)
	return validate.Struct(r)
}

func (r *StudentLoginRequest) Validate(validate *validator.Validate) error {
	r.SchoolID = core.CleanString(r.SchoolID)
	r.RollNumber = core.CleanString(r.RollNumber)
	return validate.Struct(r)
}

func (r *RefreshRequest) Validate(validate *validator.Validate) error {
	r.RefreshToken = core.CleanString(r.RefreshToken)
	return validate.Struct(r)
}

func (r *PasswordResetRequest) Validate(validate *validator.Validate) error {
	r.Email = core.CleanString(r.Email, true /* lower */)
	return validate.Struct(r)
}

func respond(ctx echo.Context, status int, data interface{}, msg ...string) error {
	resp := Response{Success: true, Data: data}
	if len(msg) > 0 {
		resp.Message = msg[0]
	}
	if ctx.Request().Method == http.MethodHead {
		return ctx.NoContent(status)
	}
	return ctx.JSON(status, resp)
}
