package directory_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/access"
	"github.com/trezcool/academia/core/directory"
	"github.com/trezcool/academia/core/principal"
	logsvc "github.com/trezcool/academia/services/logger"
	"github.com/trezcool/academia/storage/database/inmem"
)

const pwd = "Xk7#mPq2!vz"

type revoker struct {
	denied map[string]bool
	err    error
}

func (r *revoker) Deny(_ context.Context, id string) error {
	if r.err != nil {
		return r.err
	}
	r.denied[id] = true
	return nil
}

func (r *revoker) Allow(_ context.Context, id string) error {
	if r.err != nil {
		return r.err
	}
	delete(r.denied, id)
	return nil
}

type fixture struct {
	repo    principal.Repository
	revoker *revoker
	svc     *directory.Service
	scope   access.ScopeFilter // school A, as seen by its principal
	other   access.ScopeFilter // school B
	owner   principal.Staff
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	principal.InitValidators(validate, translator)

	f := &fixture{
		repo:    inmemdb.NewPrincipalRepository(inmemdb.Open()),
		revoker: &revoker{denied: map[string]bool{}},
	}
	f.svc = directory.NewService(f.repo, validate, translator, f.revoker, logsvc.NewNopLogger())

	_, owner, err := f.repo.CreateSchool(ctx, principal.School{Name: "A"}, principal.Staff{Email: "ama@a.cd", Role: principal.RolePrincipal, IsActive: true})
	require.NoError(t, err)
	_, otherOwner, err := f.repo.CreateSchool(ctx, principal.School{Name: "B"}, principal.Staff{Email: "kofi@b.cd", Role: principal.RolePrincipal, IsActive: true})
	require.NoError(t, err)

	f.owner = owner
	f.scope = access.NewIdentity(owner).ScopeFilter()
	f.other = access.NewIdentity(otherOwner).ScopeFilter()
	return f
}

func newStudent(roll string) principal.NewStudent {
	return principal.NewStudent{ClassID: "6A", RollNumber: roll, Name: "Yaw " + roll, GuardianPhone: "+243810000000", Password: pwd}
}

func TestService_unscoped(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	var zero access.ScopeFilter

	_, err := f.svc.ListStaff(ctx, zero)
	assert.Equal(t, directory.ErrUnscoped, err)
	_, err = f.svc.ListStudents(ctx, zero, "")
	assert.Equal(t, directory.ErrUnscoped, err)
	_, err = f.svc.CreateStudent(ctx, zero, newStudent("1"))
	assert.Equal(t, directory.ErrUnscoped, err)
	_, err = f.svc.ImportStudents(ctx, zero, strings.NewReader(""))
	assert.Equal(t, directory.ErrUnscoped, err)
	assert.Equal(t, directory.ErrUnscoped, f.svc.SetActive(ctx, zero, principal.KindStaff, f.owner.ID, false))
}

func TestService_CreateStaff(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	staff, err := f.svc.CreateStaff(ctx, f.scope, principal.NewStaff{
		Name: "Esi", Email: " Esi@A.cd", Role: principal.RoleTeacher, Password: pwd,
	})
	require.NoError(t, err)
	assert.Equal(t, f.scope.SchoolID(), staff.SchoolID)
	assert.Equal(t, "esi@a.cd", staff.Email)
	assert.True(t, staff.IsActive)
	assert.NoError(t, staff.CheckPassword(pwd))

	_, err = f.svc.CreateStaff(ctx, f.scope, principal.NewStaff{Name: "Esi", Email: "x@a.cd", Role: principal.RoleStudent, Password: pwd})
	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs), "CreateStaff() error = %v", err)
	assert.Equal(t, "role", verrs[0].Field())

	_, err = f.svc.CreateStaff(ctx, f.other, principal.NewStaff{Name: "Esi", Email: "esi@a.cd", Role: principal.RoleTeacher, Password: pwd})
	var cerr *core.ConstraintError
	require.True(t, errors.As(err, &cerr), "CreateStaff() error = %v", err)
	assert.Equal(t, core.ConstraintUnique, cerr.Kind)

	list, err := f.svc.ListStaff(ctx, f.scope)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	list, err = f.svc.ListStaff(ctx, f.other)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestService_Students(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	s1, err := f.svc.CreateStudent(ctx, f.scope, newStudent("6A-01"))
	require.NoError(t, err)
	assert.Equal(t, f.scope.SchoolID(), s1.SchoolID)

	other := newStudent("6B-01")
	other.ClassID = "6B"
	_, err = f.svc.CreateStudent(ctx, f.scope, other)
	require.NoError(t, err)

	// roll numbers are unique per school only
	_, err = f.svc.CreateStudent(ctx, f.other, newStudent("6A-01"))
	require.NoError(t, err)
	_, err = f.svc.CreateStudent(ctx, f.scope, newStudent("6A-01"))
	var cerr *core.ConstraintError
	require.True(t, errors.As(err, &cerr), "CreateStudent() error = %v", err)
	assert.Equal(t, "rollNumber", cerr.Field)

	list, err := f.svc.ListStudents(ctx, f.scope, "")
	require.NoError(t, err)
	assert.Len(t, list, 2)
	list, err = f.svc.ListStudents(ctx, f.scope, " 6A ")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, s1.ID, list[0].ID)
}

func TestService_SetActive(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	student, err := f.svc.CreateStudent(ctx, f.scope, newStudent("6A-01"))
	require.NoError(t, err)

	assert.Equal(t, principal.ErrNotFound, f.svc.SetActive(ctx, f.other, principal.KindStudent, student.ID, false))
	assert.Empty(t, f.revoker.denied)

	require.NoError(t, f.svc.SetActive(ctx, f.scope, principal.KindStudent, student.ID, false))
	assert.True(t, f.revoker.denied[student.ID])
	p, err := f.repo.FindPrincipalByID(ctx, principal.KindStudent, student.ID)
	require.NoError(t, err)
	assert.False(t, p.Active())

	require.NoError(t, f.svc.SetActive(ctx, f.scope, principal.KindStudent, student.ID, true))
	assert.False(t, f.revoker.denied[student.ID])

	f.revoker.err = errors.New("redis down")
	assert.Error(t, f.svc.SetActive(ctx, f.scope, principal.KindStaff, f.owner.ID, false))

	assert.Error(t, f.svc.SetActive(ctx, f.scope, principal.Kind("robot"), f.owner.ID, false))
}

func TestService_SetActive_withoutRevoker(t *testing.T) {
	f := setup(t)
	validate := validator.New()
	svc := directory.NewService(f.repo, validate, core.NewTranslator(), nil, logsvc.NewNopLogger())

	require.NoError(t, svc.SetActive(context.Background(), f.scope, principal.KindStaff, f.owner.ID, false))
	p, err := f.repo.FindPrincipalByID(context.Background(), principal.KindStaff, f.owner.ID)
	require.NoError(t, err)
	assert.False(t, p.Active())
}

func TestService_ImportStudents(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreateStudent(ctx, f.scope, newStudent("6A-03"))
	require.NoError(t, err)

	doc := "\ufeffname,rollNumber,classId,password,guardianPhone\n" +
		"Yaw,6A-01,6A," + pwd + ",+243810000001\n" +
		"Esi,6A-02,6A," + pwd + ",\n" +
		"Kojo,6A-03,6A," + pwd + ",\n" + // taken
		"Abena,6A 04,6A," + pwd + ",\n" + // bad roll number
		"Kwame,6A-05,6A,short,\n" +
		"Akua,6A-01,6A," + pwd + ",\n" // duplicated in the file

	result, err := f.svc.ImportStudents(ctx, f.scope, strings.NewReader(doc))
	require.NoError(t, err)

	require.Len(t, result.Created, 2)
	assert.Equal(t, "6A-01", result.Created[0].RollNumber)
	assert.Equal(t, "+243810000001", result.Created[0].GuardianPhone)
	assert.Equal(t, f.scope.SchoolID(), result.Created[1].SchoolID)

	require.Len(t, result.Skipped, 4)
	assert.Equal(t, 3, result.Skipped[0].Row)
	assert.Contains(t, result.Skipped[0].Errors, "rollNumber")
	assert.Equal(t, 4, result.Skipped[1].Row)
	assert.Contains(t, result.Skipped[1].Errors, "rollNumber")
	assert.Equal(t, 5, result.Skipped[2].Row)
	assert.Contains(t, result.Skipped[2].Errors, "password")
	assert.Equal(t, 6, result.Skipped[3].Row)

	list, err := f.svc.ListStudents(ctx, f.scope, "6A")
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestService_ImportStudents_full(t *testing.T) {
	if testing.Short() {
		t.Skip("hashes a password per row")
	}
	f := setup(t)

	var doc strings.Builder
	doc.WriteString("name,rollNumber,classId,password\n")
	for i := 0; i < directory.MaxImportRows; i++ {
		fmt.Fprintf(&doc, "Yaw,6A-%03d,6A,%s\n", i, pwd)
	}

	start := time.Now()
	result, err := f.svc.ImportStudents(context.Background(), f.scope, strings.NewReader(doc.String()))
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.Len(t, result.Created, directory.MaxImportRows)
	assert.Empty(t, result.Skipped)
	assert.Less(t, elapsed, core.DefaultServerWriteTimeout, "a full file must be enrolled before the response times out")
}

func TestService_ImportStudents_rejected(t *testing.T) {
	f := setup(t)
	defer func(n int) { directory.MaxImportRows = n }(directory.MaxImportRows)
	directory.MaxImportRows = 2

	row := "Yaw,6A-01,6A," + pwd + "\n"
	tests := []struct {
		name string
		doc  string
	}{
		{name: "empty", doc: ""},
		{name: "header only", doc: "name,rollNumber,classId,password\n"},
		{name: "missing column", doc: "name,rollNumber,password\nYaw,6A-01," + pwd + "\n"},
		{name: "ragged rows", doc: "name,rollNumber,classId,password\nYaw,6A-01\n"},
		{name: "too many rows", doc: "name,rollNumber,classId,password\n" + row + row + row},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ImportStudents(context.Background(), f.scope, strings.NewReader(tt.doc))
			var uerr *core.UploadError
			if !errors.As(err, &uerr) {
				t.Fatalf("ImportStudents() error = %v, want UploadError", err)
			}
			assert.Equal(t, "file", uerr.Field)
		})
	}

	list, err := f.svc.ListStudents(context.Background(), f.scope, "")
	require.NoError(t, err)
	assert.Empty(t, list)
}
