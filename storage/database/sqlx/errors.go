package sqlxrepos

import (
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

var errUnknownSchool = &core.ConstraintError{
	Kind:       core.ConstraintForeignKey,
	Constraint: "school_id_fkey",
	Field:      "schoolId",
	Message:    "school does not exist",
}

// constraint name -> payload field and message
var constraints = map[string]struct{ field, msg string }{
	"staff_email_key":                 {"email", "a staff member with this email already exists"},
	"students_school_roll_number_key": {"rollNumber", "a student with this roll number already exists in this school"},
	"staff_school_id_fkey":            {"schoolId", "school does not exist"},
	"students_school_id_fkey":         {"schoolId", "school does not exist"},
	"staff_role_check":                {"role", "role must be one of PRINCIPAL, TEACHER"},
}

// translateError turns Postgres integrity violations into core.ConstraintError and a
// server going away into a shutdown error. Other errors are wrapped as they are.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) {
		return core.NewShutdownError("database: " + err.Error())
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return errors.Wrap(err, "database")
	}

	var kind core.ConstraintKind
	switch pqErr.Code.Name() {
	case "admin_shutdown", "crash_shutdown":
		return core.NewShutdownError("database: " + pqErr.Message)
	case "unique_violation":
		kind = core.ConstraintUnique
	case "foreign_key_violation":
		kind = core.ConstraintForeignKey
	case "not_null_violation", "check_violation":
		kind = core.ConstraintOther
	default:
		return errors.Wrap(err, "database")
	}

	cerr := &core.ConstraintError{
		Kind:       kind,
		Constraint: pqErr.Constraint,
		Field:      pqErr.Column,
		Message:    pqErr.Message,
		Err:        err,
	}
	if c, ok := constraints[pqErr.Constraint]; ok {
		cerr.Field = c.field
		cerr.Message = c.msg
	}
	return cerr
}
