package inmemdb

import (
	"sync"

	"github.com/trezcool/academia/core/principal"
)

type (
	DB struct {
		mu       sync.RWMutex
		schools  map[string]*principal.School
		staff    map[string]*principal.Staff
		students map[string]*principal.Student
		resets   map[string]*principal.PasswordReset
	}
)

func Open() *DB {
	return &DB{
		schools:  make(map[string]*principal.School),
		staff:    make(map[string]*principal.Staff),
		students: make(map[string]*principal.Student),
		resets:   make(map[string]*principal.PasswordReset),
	}
}

// Reset drops every table. Used between tests.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.schools = make(map[string]*principal.School)
	db.staff = make(map[string]*principal.Staff)
	db.students = make(map[string]*principal.Student)
	db.resets = make(map[string]*principal.PasswordReset)
}
