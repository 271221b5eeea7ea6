package echoapi

import (
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/access"
	"github.com/trezcool/academia/core/directory"
	"github.com/trezcool/academia/core/principal"
)

const importFileField = "file"

var errIdentityNotInCtx = errors.New("identity not found in request context")

type directoryApi struct {
	svc            *directory.Service
	uploadMaxBytes int64
}

func registerDirectoryAPI(
	g *echo.Group,
	staffAuth echo.MiddlewareFunc,
	studentAuth echo.MiddlewareFunc,
	svc *directory.Service,
	uploadMaxBytes int64,
) {
	api := directoryApi{
		svc:            svc,
		uploadMaxBytes: uploadMaxBytes,
	}

	g.GET("/staff/me", api.staffMe, staffAuth)
	g.GET("/students/me", api.studentMe, studentAuth)

	principalOnly := requireRole(principal.RolePrincipal)
	anyStaff := requireRole(principal.RolePrincipal, principal.RoleTeacher)

	sg := g.Group("/schools/:schoolId", staffAuth, requireSchoolScope())

	sg.GET("/staff", api.listStaff, principalOnly)
	sg.POST("/staff", api.createStaff, principalOnly)
	sg.POST("/staff/:id/deactivate", api.setActive(principal.KindStaff, false), principalOnly)
	sg.POST("/staff/:id/activate", api.setActive(principal.KindStaff, true), principalOnly)

	sg.GET("/students", api.listStudents, anyStaff)
	sg.POST("/students", api.createStudent, anyStaff)
	sg.POST("/students/import", api.importStudents, principalOnly)
	sg.POST("/students/:id/deactivate", api.setActive(principal.KindStudent, false), principalOnly)
	sg.POST("/students/:id/activate", api.setActive(principal.KindStudent, true), principalOnly)
}

func scope(ctx echo.Context) (access.ScopeFilter, error) {
	return access.Scope(ctx.Request().Context())
}

// Handlers

func (api *directoryApi) staffMe(ctx echo.Context) error {
	id, _ := access.FromContext(ctx.Request().Context())
	staff, ok := id.Staff()
	if !ok {
		return errors.Wrap(errIdentityNotInCtx, "retrieving staff")
	}
	return respond(ctx, http.StatusOK, staff)
}

func (api *directoryApi) studentMe(ctx echo.Context) error {
	id, _ := access.FromContext(ctx.Request().Context())
	student, ok := id.Student()
	if !ok {
		return errors.Wrap(errIdentityNotInCtx, "retrieving student")
	}
	return respond(ctx, http.StatusOK, student)
}

func (api *directoryApi) listStaff(ctx echo.Context) error {
	sf, err := scope(ctx)
	if err != nil {
		return err
	}
	staff, err := api.svc.ListStaff(ctx.Request().Context(), sf)
	if err != nil {
		return errors.Wrap(err, "listing staff")
	}
	if staff == nil {
		staff = []principal.Staff{}
	}
	return respond(ctx, http.StatusOK, staff)
}

func (api *directoryApi) createStaff(ctx echo.Context) error {
	sf, err := scope(ctx)
	if err != nil {
		return err
	}
	var data principal.NewStaff
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStaff")
	}

	staff, err := api.svc.CreateStaff(ctx.Request().Context(), sf, data)
	if err != nil {
		return errors.Wrap(err, "creating staff")
	}
	return respond(ctx, http.StatusCreated, staff)
}

func (api *directoryApi) listStudents(ctx echo.Context) error {
	sf, err := scope(ctx)
	if err != nil {
		return err
	}
	students, err := api.svc.ListStudents(ctx.Request().Context(), sf, ctx.QueryParam("classId"))
	if err != nil {
		return errors.Wrap(err, "listing students")
	}
	if students == nil {
		students = []principal.Student{}
	}
	return respond(ctx, http.StatusOK, students)
}

func (api *directoryApi) createStudent(ctx echo.Context) error {
	sf, err := scope(ctx)
	if err != nil {
		return err
	}
	var data principal.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}

	student, err := api.svc.CreateStudent(ctx.Request().Context(), sf, data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return respond(ctx, http.StatusCreated, student)
}

func (api *directoryApi) setActive(kind principal.Kind, active bool) echo.HandlerFunc {
	label := "Staff"
	if kind == principal.KindStudent {
		label = "Student"
	}
	msg := label + " deactivated."
	if active {
		msg = label + " activated."
	}
	return func(ctx echo.Context) error {
		sf, err := scope(ctx)
		if err != nil {
			return err
		}
		if err := api.svc.SetActive(ctx.Request().Context(), sf, kind, ctx.Param("id"), active); err != nil {
			return errors.Wrapf(err, "setting %s active=%t", kind, active)
		}
		return respond(ctx, http.StatusOK, nil, msg)
	}
}

func (api *directoryApi) importStudents(ctx echo.Context) error {
	sf, err := scope(ctx)
	if err != nil {
		return err
	}

	fh, err := ctx.FormFile(importFileField)
	if err != nil {
		return &core.UploadError{Field: importFileField, Reason: "a CSV file is required"}
	}
	if api.uploadMaxBytes > 0 && fh.Size > api.uploadMaxBytes {
		return &core.UploadError{Field: importFileField, Reason: fmt.Sprintf("the file is larger than %d bytes", api.uploadMaxBytes)}
	}
	if !isCSV(fh.Filename, fh.Header.Get(echo.HeaderContentType)) {
		return &core.UploadError{Field: importFileField, Reason: "only .csv files are accepted"}
	}

	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening upload")
	}
	defer func() { _ = f.Close() }()

	result, err := api.svc.ImportStudents(ctx.Request().Context(), sf, f)
	if err != nil {
		return errors.Wrap(err, "importing students")
	}
	return respond(ctx, http.StatusOK, result,
		fmt.Sprintf("%d students imported, %d rows skipped.", len(result.Created), len(result.Skipped)))
}

func isCSV(filename, contentType string) bool {
	if strings.EqualFold(filepath.Ext(filename), ".csv") {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "text/csv"
}
