package directory

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/access"
	"github.com/trezcool/academia/core/principal"
)

// MaxImportRows caps the number of students a single upload may carry.
// Every row costs a bcrypt hash, and a full file must be enrolled within core.DefaultServerWriteTimeout.
var MaxImportRows = 100

var requiredColumns = []string{"rollNumber", "classId", "name", "password"}

type (
	// RowError reports why a CSV row was skipped. Row counts from 1 and excludes the header.
	RowError struct {
		Row        int               `json:"row"`
		RollNumber string            `json:"rollNumber,omitempty"`
		Errors     map[string]string `json:"errors"`
	}

	ImportResult struct {
		Created []principal.Student `json:"created"`
		Skipped []RowError          `json:"skipped"`
	}
)

// ImportStudents enrols the students listed in a CSV document into the scope's school.
// The header row names the columns, in any order: rollNumber, classId, name, password and
// optionally guardianPhone. Invalid or duplicate rows are skipped and reported; a malformed
// document is rejected with a core.UploadError before any student is created.
func (svc *Service) ImportStudents(ctx context.Context, scope access.ScopeFilter, r io.Reader) (ImportResult, error) {
	if err := checkScope(scope); err != nil {
		return ImportResult{}, err
	}

	rows, err := readStudentRows(r)
	if err != nil {
		return ImportResult{}, err
	}

	result := ImportResult{
		Created: make([]principal.Student, 0, len(rows)),
		Skipped: make([]RowError, 0),
	}
	for i, ns := range rows {
		rowErr := RowError{Row: i + 1, RollNumber: strings.TrimSpace(ns.RollNumber)}

		if err := ns.Validate(svc.validate); err != nil {
			var verrs validator.ValidationErrors
			if !pkgerrors.As(err, &verrs) {
				return result, err
			}
			rowErr.Errors = make(map[string]string, len(verrs))
			for _, fe := range verrs {
				rowErr.Errors[fe.Field()] = fe.Translate(svc.translator)
			}
			result.Skipped = append(result.Skipped, rowErr)
			continue
		}

		student, err := svc.createStudent(ctx, scope, ns)
		if err != nil {
			var cerr *core.ConstraintError
			if !pkgerrors.As(err, &cerr) {
				return result, pkgerrors.Wrapf(err, "importing row %d", rowErr.Row)
			}
			field := cerr.Field
			if field == "" {
				field = "row"
			}
			rowErr.Errors = map[string]string{field: cerr.Error()}
			result.Skipped = append(result.Skipped, rowErr)
			continue
		}
		result.Created = append(result.Created, student)
	}

	svc.logger.Info("students imported", map[string]interface{}{
		"schoolId": scope.SchoolID(),
		"created":  len(result.Created),
		"skipped":  len(result.Skipped),
	})
	return result, nil
}

func uploadError(format string, args ...interface{}) error {
	return &core.UploadError{Field: "file", Reason: fmt.Sprintf(format, args...)}
}

func readStudentRows(r io.Reader) ([]principal.NewStudent, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, uploadError("the file is empty")
	}
	if err != nil {
		return nil, uploadError("malformed csv: %v", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		cols[name] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, uploadError("missing column %q", name)
		}
	}

	get := func(rec []string, name string) string {
		if i, ok := cols[name]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}

	rows := make([]principal.NewStudent, 0)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, uploadError("malformed csv: %v", err)
		}
		if len(rows) == MaxImportRows {
			return nil, uploadError("too many rows, at most %d students per file", MaxImportRows)
		}
		rows = append(rows, principal.NewStudent{
			RollNumber:    get(rec, "rollNumber"),
			ClassID:       get(rec, "classId"),
			Name:          get(rec, "name"),
			GuardianPhone: get(rec, "guardianPhone"),
			Password:      get(rec, "password"),
		})
	}
	if len(rows) == 0 {
		return nil, uploadError("the file has no students")
	}
	return rows, nil
}
