package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/principal"
)

var (
	errEmailExists      = core.NewUniqueViolation("email", "a staff member with this email already exists")
	errRollNumberExists = core.NewUniqueViolation("rollNumber", "a student with this roll number already exists in this school")
)

type principalRepository struct {
	db *DB
}

var _ principal.Repository = (*principalRepository)(nil) // interface compliance check

func NewPrincipalRepository(db *DB) principal.Repository {
	return &principalRepository{db: db}
}

func (repo *principalRepository) FindPrincipalByID(_ context.Context, kind principal.Kind, id string) (principal.Principal, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	switch kind {
	case principal.KindStaff:
		if s, ok := repo.db.staff[id]; ok {
			return *s, nil
		}
	case principal.KindStudent:
		if s, ok := repo.db.students[id]; ok {
			return *s, nil
		}
	}
	return nil, principal.ErrNotFound
}

func (repo *principalRepository) CreateSchool(_ context.Context, school principal.School, owner principal.Staff) (principal.School, principal.Staff, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if repo.emailTaken(owner.Email) {
		return principal.School{}, principal.Staff{}, errEmailExists
	}
	school.ID = uuid.New().String()
	repo.db.schools[school.ID] = &school

	owner.ID = uuid.New().String()
	owner.SchoolID = school.ID
	repo.db.staff[owner.ID] = &owner
	return school, owner, nil
}

func (repo *principalRepository) GetSchool(_ context.Context, id string) (principal.School, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.schools[id]; ok {
		return *s, nil
	}
	return principal.School{}, principal.ErrSchoolNotFound
}

func (repo *principalRepository) emailTaken(email string) bool {
	for _, s := range repo.db.staff {
		if s.Email == email {
			return true
		}
	}
	return false
}

func (repo *principalRepository) schoolExists(id string) error {
	if _, ok := repo.db.schools[id]; !ok {
		return &core.ConstraintError{Kind: core.ConstraintForeignKey, Field: "schoolId", Message: "school does not exist"}
	}
	return nil
}

func (repo *principalRepository) CreateStaff(_ context.Context, staff principal.Staff) (principal.Staff, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := repo.schoolExists(staff.SchoolID); err != nil {
		return principal.Staff{}, err
	}
	if repo.emailTaken(staff.Email) {
		return principal.Staff{}, errEmailExists
	}
	staff.ID = uuid.New().String()
	repo.db.staff[staff.ID] = &staff
	return staff, nil
}

func (repo *principalRepository) GetStaffByEmail(_ context.Context, email string) (principal.Staff, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, s := range repo.db.staff {
		if s.Email == email {
			return *s, nil
		}
	}
	return principal.Staff{}, principal.ErrNotFound
}

func (repo *principalRepository) ListStaff(_ context.Context, schoolID string) ([]principal.Staff, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	staff := make([]principal.Staff, 0)
	for _, s := range repo.db.staff {
		if s.SchoolID == schoolID {
			staff = append(staff, *s)
		}
	}
	sort.Slice(staff, func(i, j int) bool { return staff[i].Email < staff[j].Email })
	return staff, nil
}

func (repo *principalRepository) UpdateStaffPassword(_ context.Context, id string, hash []byte) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	s, ok := repo.db.staff[id]
	if !ok {
		return principal.ErrNotFound
	}
	s.PasswordHash = hash
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *principalRepository) CreateStudent(_ context.Context, student principal.Student) (principal.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := repo.schoolExists(student.SchoolID); err != nil {
		return principal.Student{}, err
	}
	for _, s := range repo.db.students {
		if s.SchoolID == student.SchoolID && s.RollNumber == student.RollNumber {
			return principal.Student{}, errRollNumberExists
		}
	}
	student.ID = uuid.New().String()
	repo.db.students[student.ID] = &student
	return student, nil
}

func (repo *principalRepository) GetStudentByRollNumber(_ context.Context, schoolID, rollNumber string) (principal.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, s := range repo.db.students {
		if s.SchoolID == schoolID && s.RollNumber == rollNumber {
			return *s, nil
		}
	}
	return principal.Student{}, principal.ErrNotFound
}

func (repo *principalRepository) ListStudents(_ context.Context, schoolID, classID string) ([]principal.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	students := make([]principal.Student, 0)
	for _, s := range repo.db.students {
		if s.SchoolID == schoolID && (classID == "" || s.ClassID == classID) {
			students = append(students, *s)
		}
	}
	sort.Slice(students, func(i, j int) bool { return students[i].RollNumber < students[j].RollNumber })
	return students, nil
}

func (repo *principalRepository) SetActive(_ context.Context, kind principal.Kind, schoolID, id string, active bool) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	now := time.Now().UTC()
	switch kind {
	case principal.KindStaff:
		if s, ok := repo.db.staff[id]; ok && s.SchoolID == schoolID {
			s.IsActive = active
			s.UpdatedAt = now
			return nil
		}
	case principal.KindStudent:
		if s, ok := repo.db.students[id]; ok && s.SchoolID == schoolID {
			s.IsActive = active
			s.UpdatedAt = now
			return nil
		}
	}
	return principal.ErrNotFound
}

func (repo *principalRepository) SetLastLogin(_ context.Context, kind principal.Kind, id string, at time.Time) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	switch kind {
	case principal.KindStaff:
		if s, ok := repo.db.staff[id]; ok {
			s.LastLogin = at
			return nil
		}
	case principal.KindStudent:
		if s, ok := repo.db.students[id]; ok {
			s.LastLogin = at
			return nil
		}
	}
	return principal.ErrNotFound
}

func (repo *principalRepository) SavePasswordReset(_ context.Context, reset principal.PasswordReset) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	repo.db.resets[reset.StaffID] = &reset
	return nil
}

func (repo *principalRepository) GetPasswordReset(_ context.Context, staffID string) (principal.PasswordReset, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if r, ok := repo.db.resets[staffID]; ok {
		return *r, nil
	}
	return principal.PasswordReset{}, principal.ErrResetNotFound
}

func (repo *principalRepository) DeletePasswordReset(_ context.Context, staffID string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	delete(repo.db.resets, staffID)
	return nil
}
