package echoapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/access"
	"github.com/trezcool/academia/core/principal"
	"github.com/trezcool/academia/core/session"
)

// error codes
const (
	CodeUniqueViolation         = "UNIQUE_VIOLATION"
	CodeForeignKeyViolation     = "FOREIGN_KEY_VIOLATION"
	CodeConstraintViolation     = "CONSTRAINT_VIOLATION"
	CodeMissingToken            = "MISSING_TOKEN"
	CodeInvalidToken            = "INVALID_TOKEN"
	CodeTokenExpired            = "TOKEN_EXPIRED"
	CodeWrongAudience           = "WRONG_AUDIENCE"
	CodePrincipalNotFound       = "PRINCIPAL_NOT_FOUND"
	CodeAccountDeactivated      = "ACCOUNT_DEACTIVATED"
	CodeInvalidCredentials      = "INVALID_CREDENTIALS"
	CodeAuthenticationRequired  = "AUTHENTICATION_REQUIRED"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeCrossTenantAccess       = "CROSS_TENANT_ACCESS"
	CodeValidationError         = "VALIDATION_ERROR"
	CodeNotFound                = "NOT_FOUND"
	CodeUploadRejected          = "UPLOAD_REJECTED"
	CodeUnsupportedMediaType    = "UNSUPPORTED_MEDIA_TYPE"
	CodeInternalError           = "INTERNAL_ERROR"
)

// Response is the body of every API response.
type Response struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Code    string            `json:"code,omitempty"`
	Data    interface{}       `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
	Detail  string            `json:"detail,omitempty"` // debug only
}

type rejection struct {
	status int
	code   string
}

var (
	sessionRejections = map[error]rejection{
		session.ErrMissingToken:       {http.StatusUnauthorized, CodeMissingToken},
		session.ErrInvalidToken:       {http.StatusUnauthorized, CodeInvalidToken},
		session.ErrExpired:            {http.StatusUnauthorized, CodeTokenExpired},
		session.ErrPrincipalNotFound:  {http.StatusUnauthorized, CodePrincipalNotFound},
		session.ErrWrongAudience:      {http.StatusForbidden, CodeWrongAudience},
		session.ErrAccountDeactivated: {http.StatusForbidden, CodeAccountDeactivated},
	}

	// checked in order
	accessRejections = []struct {
		err error
		rejection
	}{
		{principal.ErrInvalidCredentials, rejection{http.StatusUnauthorized, CodeInvalidCredentials}},
		{access.ErrAuthenticationRequired, rejection{http.StatusUnauthorized, CodeAuthenticationRequired}},
		{access.ErrInsufficientPermissions, rejection{http.StatusForbidden, CodeInsufficientPermissions}},
		{access.ErrCrossTenantAccess, rejection{http.StatusForbidden, CodeCrossTenantAccess}},
	}
)

func fail(status int, code, msg string) (int, Response) {
	return status, Response{Success: false, Message: msg, Code: code}
}

// codeFromStatus turns 404 into "NOT_FOUND", 405 into "METHOD_NOT_ALLOWED", ...
func codeFromStatus(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return CodeInternalError
	}
	return strings.ToUpper(strings.ReplaceAll(text, " ", "_"))
}

// normalize maps any error returned by a handler or middleware to a status and a failure body.
// The first matching category wins: storage constraints, session rejections, authorization,
// validation, declared application errors, uploads, then everything else as a 500.
func normalize(err error, translator ut.Translator, debug bool) (int, Response) {
	var (
		cerr  *core.ConstraintError
		verrs validator.ValidationErrors
		verr  *core.ValidationError
		aerr  *core.AppError
		uerr  *core.UploadError
		herr  *echo.HTTPError
	)

	if errors.As(err, &cerr) {
		status, resp := fail(http.StatusBadRequest, CodeConstraintViolation, cerr.Error())
		switch cerr.Kind {
		case core.ConstraintUnique:
			status, resp.Code = http.StatusConflict, CodeUniqueViolation
		case core.ConstraintForeignKey:
			resp.Code = CodeForeignKeyViolation
		}
		if cerr.Field != "" {
			resp.Errors = map[string]string{cerr.Field: cerr.Error()}
		}
		return status, resp
	}

	if reason := session.Reason(err); reason != nil {
		r := sessionRejections[reason]
		return fail(r.status, r.code, reason.Error())
	}
	for _, ar := range accessRejections {
		if errors.Is(err, ar.err) {
			return fail(ar.status, ar.code, ar.err.Error())
		}
	}

	if errors.As(err, &verrs) {
		status, resp := fail(http.StatusBadRequest, CodeValidationError, "invalid data")
		resp.Errors = make(map[string]string, len(verrs))
		for _, fe := range verrs {
			resp.Errors[fe.Field()] = fe.Translate(translator)
		}
		return status, resp
	}
	if errors.As(err, &verr) {
		status, resp := fail(http.StatusBadRequest, CodeValidationError, verr.Error())
		if len(verr.Fields) > 0 {
			resp.Message = "invalid data"
			resp.Errors = make(map[string]string, len(verr.Fields))
			for _, fe := range verr.Fields {
				resp.Errors[fe.Field] = fe.Error
			}
		}
		return status, resp
	}

	if errors.As(err, &aerr) {
		return fail(aerr.Status, aerr.Code, aerr.Message)
	}
	for _, nf := range []error{principal.ErrNotFound, principal.ErrSchoolNotFound} {
		if errors.Is(err, nf) {
			return fail(http.StatusNotFound, CodeNotFound, nf.Error())
		}
	}

	if errors.As(err, &uerr) {
		status, resp := fail(http.StatusBadRequest, CodeUploadRejected, uerr.Reason)
		resp.Errors = map[string]string{uerr.Field: uerr.Reason}
		return status, resp
	}
	if errors.As(err, &herr) {
		if herr.Code == http.StatusRequestEntityTooLarge {
			return fail(http.StatusBadRequest, CodeUploadRejected, "request body too large")
		}
		return fail(herr.Code, codeFromStatus(herr.Code), fmt.Sprint(herr.Message))
	}

	status, resp := fail(http.StatusInternalServerError, CodeInternalError, http.StatusText(http.StatusInternalServerError))
	if debug {
		resp.Detail = err.Error()
	}
	return status, resp
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(
	logger core.Logger,
	translator ut.Translator,
	m *metrics,
	signalShutdown func(),
) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		status, resp := normalize(err, translator, ctx.Echo().Debug)
		m.rejected(resp.Code)

		if status >= http.StatusInternalServerError {
			msg := http.StatusText(status)
			if id, ok := access.FromContext(ctx.Request().Context()); ok {
				logger.Error(msg, pkgerrors.Wrap(err, msg), id)
			} else {
				logger.Error(msg, pkgerrors.Wrap(err, msg))
			}

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(status)
			} else {
				err = ctx.JSON(status, resp)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
