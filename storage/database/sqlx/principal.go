package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/credential"
	"github.com/trezcool/academia/core/principal"
)

type (
	staffRow struct {
		ID           string       `db:"id"`
		SchoolID     string       `db:"school_id"`
		Name         string       `db:"name"`
		Email        string       `db:"email"`
		Role         string       `db:"role"`
		IsActive     bool         `db:"is_active"`
		PasswordHash []byte       `db:"password_hash"`
		CreatedAt    time.Time    `db:"created_at"`
		UpdatedAt    time.Time    `db:"updated_at"`
		LastLogin    sql.NullTime `db:"last_login"`
	}

	studentRow struct {
		ID            string       `db:"id"`
		SchoolID      string       `db:"school_id"`
		ClassID       string       `db:"class_id"`
		RollNumber    string       `db:"roll_number"`
		Name          string       `db:"name"`
		GuardianPhone string       `db:"guardian_phone"`
		IsActive      bool         `db:"is_active"`
		PasswordHash  []byte       `db:"password_hash"`
		CreatedAt     time.Time    `db:"created_at"`
		UpdatedAt     time.Time    `db:"updated_at"`
		LastLogin     sql.NullTime `db:"last_login"`
	}

	resetRow struct {
		StaffID   string    `db:"staff_id"`
		CodeHash  string    `db:"code_hash"`
		ExpiresAt time.Time `db:"expires_at"`
	}
)

const (
	staffColumns   = `id, school_id, name, email, role, is_active, password_hash, created_at, updated_at, last_login`
	studentColumns = `id, school_id, class_id, roll_number, name, guardian_phone, is_active, password_hash, created_at, updated_at, last_login`
)

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}

func fromNullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

func newStaffRow(s principal.Staff) staffRow {
	return staffRow{
		ID:           s.ID,
		SchoolID:     s.SchoolID,
		Name:         s.Name,
		Email:        s.Email,
		Role:         string(s.Role),
		IsActive:     s.IsActive,
		PasswordHash: s.PasswordHash,
		CreatedAt:    s.CreatedAt.UTC(),
		UpdatedAt:    s.UpdatedAt.UTC(),
		LastLogin:    nullTime(s.LastLogin),
	}
}

func (r staffRow) toStaff() principal.Staff {
	return principal.Staff{
		ID:           r.ID,
		SchoolID:     r.SchoolID,
		Name:         r.Name,
		Email:        r.Email,
		Role:         principal.Role(r.Role),
		IsActive:     r.IsActive,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		LastLogin:    fromNullTime(r.LastLogin),
	}
}

type principalRepository struct {
	db  *sqlx.DB
	enc *credential.Encoder
}

var _ principal.Repository = (*principalRepository)(nil) // interface compliance check

// NewPrincipalRepository stores principals in Postgres. enc seals the students' guardian phone.
func NewPrincipalRepository(db *sqlx.DB, enc *credential.Encoder) principal.Repository {
	return &principalRepository{db: db, enc: enc}
}

func (repo *principalRepository) newStudentRow(s principal.Student) (studentRow, error) {
	row := studentRow{
		ID:           s.ID,
		SchoolID:     s.SchoolID,
		ClassID:      s.ClassID,
		RollNumber:   s.RollNumber,
		Name:         s.Name,
		IsActive:     s.IsActive,
		PasswordHash: s.PasswordHash,
		CreatedAt:    s.CreatedAt.UTC(),
		UpdatedAt:    s.UpdatedAt.UTC(),
		LastLogin:    nullTime(s.LastLogin),
	}
	if s.GuardianPhone != "" {
		envelope, err := repo.enc.Encrypt(s.GuardianPhone)
		if err != nil {
			return studentRow{}, errors.Wrap(err, "sealing guardianPhone")
		}
		row.GuardianPhone = envelope
	}
	return row, nil
}

func (repo *principalRepository) toStudent(r studentRow) (principal.Student, error) {
	s := principal.Student{
		ID:           r.ID,
		SchoolID:     r.SchoolID,
		ClassID:      r.ClassID,
		RollNumber:   r.RollNumber,
		Name:         r.Name,
		IsActive:     r.IsActive,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		LastLogin:    fromNullTime(r.LastLogin),
	}
	if r.GuardianPhone != "" {
		phone, err := repo.enc.Decrypt(r.GuardianPhone)
		if err != nil {
			return principal.Student{}, errors.Wrapf(err, "opening guardianPhone of student %s", r.ID)
		}
		s.GuardianPhone = phone
	}
	return s, nil
}

// validID keeps malformed ids away from the uuid columns; they can match nothing.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (repo *principalRepository) FindPrincipalByID(ctx context.Context, kind principal.Kind, id string) (principal.Principal, error) {
	if !validID(id) {
		return nil, principal.ErrNotFound
	}
	switch kind {
	case principal.KindStaff:
		staff, err := repo.getStaff(ctx, `SELECT `+staffColumns+` FROM staff WHERE id = $1`, id)
		if err != nil {
			return nil, err
		}
		return staff, nil
	case principal.KindStudent:
		student, err := repo.getStudent(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id)
		if err != nil {
			return nil, err
		}
		return student, nil
	}
	return nil, principal.ErrNotFound
}

func (repo *principalRepository) getStaff(ctx context.Context, query string, args ...interface{}) (principal.Staff, error) {
	var row staffRow
	if err := repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return principal.Staff{}, principal.ErrNotFound
		}
		return principal.Staff{}, translateError(err)
	}
	return row.toStaff(), nil
}

func (repo *principalRepository) getStudent(ctx context.Context, query string, args ...interface{}) (principal.Student, error) {
	var row studentRow
	if err := repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return principal.Student{}, principal.ErrNotFound
		}
		return principal.Student{}, translateError(err)
	}
	return repo.toStudent(row)
}

func (repo *principalRepository) CreateSchool(ctx context.Context, school principal.School, owner principal.Staff) (principal.School, principal.Staff, error) {
	school.ID = uuid.New().String()
	if school.CreatedAt.IsZero() {
		school.CreatedAt = time.Now()
	}
	school.CreatedAt = school.CreatedAt.UTC()
	owner.ID = uuid.New().String()
	owner.SchoolID = school.ID

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return principal.School{}, principal.Staff{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO schools (id, name, created_at) VALUES ($1, $2, $3)`,
		school.ID, school.Name, school.CreatedAt,
	); err != nil {
		return principal.School{}, principal.Staff{}, translateError(err)
	}
	if _, err = tx.NamedExecContext(ctx, insertStaff, newStaffRow(owner)); err != nil {
		return principal.School{}, principal.Staff{}, translateError(err)
	}
	if err = tx.Commit(); err != nil {
		return principal.School{}, principal.Staff{}, errors.Wrap(err, "committing transaction")
	}
	return school, owner, nil
}

func (repo *principalRepository) GetSchool(ctx context.Context, id string) (principal.School, error) {
	if !validID(id) {
		return principal.School{}, principal.ErrSchoolNotFound
	}
	var school principal.School
	err := repo.db.QueryRowxContext(ctx, `SELECT id, name, created_at FROM schools WHERE id = $1`, id).
		Scan(&school.ID, &school.Name, &school.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return principal.School{}, principal.ErrSchoolNotFound
		}
		return principal.School{}, translateError(err)
	}
	school.CreatedAt = school.CreatedAt.UTC()
	return school, nil
}

const insertStaff = `INSERT INTO staff (` + staffColumns + `)
VALUES (:id, :school_id, :name, :email, :role, :is_active, :password_hash, :created_at, :updated_at, :last_login)`

func (repo *principalRepository) CreateStaff(ctx context.Context, staff principal.Staff) (principal.Staff, error) {
	if !validID(staff.SchoolID) {
		return principal.Staff{}, errUnknownSchool
	}
	staff.ID = uuid.New().String()
	if _, err := repo.db.NamedExecContext(ctx, insertStaff, newStaffRow(staff)); err != nil {
		return principal.Staff{}, translateError(err)
	}
	return staff, nil
}

func (repo *principalRepository) GetStaffByEmail(ctx context.Context, email string) (principal.Staff, error) {
	return repo.getStaff(ctx, `SELECT `+staffColumns+` FROM staff WHERE email = $1`, email)
}

func (repo *principalRepository) ListStaff(ctx context.Context, schoolID string) ([]principal.Staff, error) {
	staff := make([]principal.Staff, 0)
	if !validID(schoolID) {
		return staff, nil
	}
	var rows []staffRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT `+staffColumns+` FROM staff WHERE school_id = $1 ORDER BY email`, schoolID); err != nil {
		return nil, translateError(err)
	}
	for _, r := range rows {
		staff = append(staff, r.toStaff())
	}
	return staff, nil
}

func (repo *principalRepository) UpdateStaffPassword(ctx context.Context, id string, hash []byte) error {
	if !validID(id) {
		return principal.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx,
		`UPDATE staff SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		hash, time.Now().UTC(), id,
	)
	return affectedOne(res, err)
}

const insertStudent = `INSERT INTO students (` + studentColumns + `)
VALUES (:id, :school_id, :class_id, :roll_number, :name, :guardian_phone, :is_active, :password_hash, :created_at, :updated_at, :last_login)`

func (repo *principalRepository) CreateStudent(ctx context.Context, student principal.Student) (principal.Student, error) {
	if !validID(student.SchoolID) {
		return principal.Student{}, errUnknownSchool
	}
	student.ID = uuid.New().String()
	row, err := repo.newStudentRow(student)
	if err != nil {
		return principal.Student{}, err
	}
	if _, err = repo.db.NamedExecContext(ctx, insertStudent, row); err != nil {
		return principal.Student{}, translateError(err)
	}
	return student, nil
}

func (repo *principalRepository) GetStudentByRollNumber(ctx context.Context, schoolID, rollNumber string) (principal.Student, error) {
	if !validID(schoolID) {
		return principal.Student{}, principal.ErrNotFound
	}
	return repo.getStudent(ctx,
		`SELECT `+studentColumns+` FROM students WHERE school_id = $1 AND roll_number = $2`,
		schoolID, rollNumber,
	)
}

func (repo *principalRepository) ListStudents(ctx context.Context, schoolID, classID string) ([]principal.Student, error) {
	students := make([]principal.Student, 0)
	if !validID(schoolID) {
		return students, nil
	}

	query := `SELECT ` + studentColumns + ` FROM students WHERE school_id = $1`
	args := []interface{}{schoolID}
	if classID != "" {
		query += ` AND class_id = $2`
		args = append(args, classID)
	}
	query += ` ORDER BY roll_number`

	var rows []studentRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, translateError(err)
	}
	for _, r := range rows {
		s, err := repo.toStudent(r)
		if err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, nil
}

func (repo *principalRepository) SetActive(ctx context.Context, kind principal.Kind, schoolID, id string, active bool) error {
	if !validID(schoolID) || !validID(id) {
		return principal.ErrNotFound
	}
	var table string
	switch kind {
	case principal.KindStaff:
		table = "staff"
	case principal.KindStudent:
		table = "students"
	default:
		return principal.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx,
		`UPDATE `+table+` SET is_active = $1, updated_at = $2 WHERE id = $3 AND school_id = $4`,
		active, time.Now().UTC(), id, schoolID,
	)
	return affectedOne(res, err)
}

func (repo *principalRepository) SetLastLogin(ctx context.Context, kind principal.Kind, id string, at time.Time) error {
	if !validID(id) {
		return principal.ErrNotFound
	}
	var table string
	switch kind {
	case principal.KindStaff:
		table = "staff"
	case principal.KindStudent:
		table = "students"
	default:
		return principal.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `UPDATE `+table+` SET last_login = $1 WHERE id = $2`, at.UTC(), id)
	return affectedOne(res, err)
}

func (repo *principalRepository) SavePasswordReset(ctx context.Context, reset principal.PasswordReset) error {
	_, err := repo.db.NamedExecContext(ctx, `INSERT INTO password_resets (staff_id, code_hash, expires_at)
VALUES (:staff_id, :code_hash, :expires_at)
ON CONFLICT (staff_id) DO UPDATE SET code_hash = EXCLUDED.code_hash, expires_at = EXCLUDED.expires_at`,
		resetRow{StaffID: reset.StaffID, CodeHash: reset.CodeHash, ExpiresAt: reset.ExpiresAt.UTC()},
	)
	return translateError(err)
}

func (repo *principalRepository) GetPasswordReset(ctx context.Context, staffID string) (principal.PasswordReset, error) {
	if !validID(staffID) {
		return principal.PasswordReset{}, principal.ErrResetNotFound
	}
	var row resetRow
	err := repo.db.GetContext(ctx, &row, `SELECT staff_id, code_hash, expires_at FROM password_resets WHERE staff_id = $1`, staffID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return principal.PasswordReset{}, principal.ErrResetNotFound
		}
		return principal.PasswordReset{}, translateError(err)
	}
	return principal.PasswordReset{StaffID: row.StaffID, CodeHash: row.CodeHash, ExpiresAt: row.ExpiresAt.UTC()}, nil
}

func (repo *principalRepository) DeletePasswordReset(ctx context.Context, staffID string) error {
	if !validID(staffID) {
		return nil
	}
	_, err := repo.db.ExecContext(ctx, `DELETE FROM password_resets WHERE staff_id = $1`, staffID)
	return translateError(err)
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return translateError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return principal.ErrNotFound
	}
	return nil
}
