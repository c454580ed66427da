package library

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 4
	MinUsernameLength = 3
)

// Operation is a capability checked before a manager call.
type Operation int

const (
	OpBrowse Operation = iota
	OpBorrow
	OpReturn
	OpAddBook
	OpDeleteBook
	OpManageAdmins
	OpViewAllHistory
	OpViewAnyProfile
)

var operationNames = map[Operation]string{
	OpBrowse:         "browse",
	OpBorrow:         "borrow",
	OpReturn:         "return",
	OpAddBook:        "add book",
	OpDeleteBook:     "delete book",
	OpManageAdmins:   "manage admins",
	OpViewAllHistory: "view all history",
	OpViewAnyProfile: "view any profile",
}

func (op Operation) String() string {
	if name, ok := operationNames[op]; ok {
		return name
	}
	return fmt.Sprintf("operation(%d)", int(op))
}

var capabilities = map[Role]map[Operation]bool{
	RoleStudent: {
		OpBrowse: true, OpBorrow: true, OpReturn: true,
	},
	RoleLibrarian: {
		OpBrowse: true, OpAddBook: true, OpViewAllHistory: true, OpViewAnyProfile: true,
	},
	RoleAdmin: {
		OpBrowse: true, OpAddBook: true, OpDeleteBook: true,
		OpViewAllHistory: true, OpViewAnyProfile: true,
	},
	RoleSuperAdmin: {
		OpBrowse: true, OpAddBook: true, OpDeleteBook: true, OpManageAdmins: true,
		OpViewAllHistory: true, OpViewAnyProfile: true,
	},
}

// Authorize reports whether role may perform op. Unknown roles may do nothing.
func Authorize(role Role, op Operation) bool {
	return capabilities[role][op]
}

// Session is the logged-in user. It is passed to every manager call.
type Session struct {
	User User
}

// Can is Authorize for the session's role.
func (s Session) Can(op Operation) bool { return Authorize(s.User.Role, op) }

// hashCost is lowered by tests.
var hashCost = bcrypt.DefaultCost

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// HashPassword returns the bcrypt hash stored for a password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a password with a stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Authenticate finds the user with exactly this username and password. An
// unknown username and a wrong password produce the same error, and both cost
// one bcrypt comparison.
func Authenticate(users []User, username, password string) (User, error) {
	for _, u := range users {
		if u.Username != username {
			continue
		}
		if !CheckPassword(u.PasswordHash, password) {
			return User{}, ErrAuthFailure
		}
		return u, nil
	}

	dummyOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not a password"), hashCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
	return User{}, ErrAuthFailure
}

// ValidatePassword enforces the minimum password length.
func ValidatePassword(p string) error {
	if len([]rune(p)) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters: %w", MinPasswordLength, ErrValidation)
	}
	return nil
}

// ValidateUsername enforces the minimum username length after trimming.
func ValidateUsername(u string) error {
	if len([]rune(strings.TrimSpace(u))) < MinUsernameLength {
		return fmt.Errorf("username must be at least %d characters: %w", MinUsernameLength, ErrValidation)
	}
	return nil
}

// CanDeleteUser checks whether actor may delete target given the current user
// list. Super-admins can never be deleted and at least one must remain.
func CanDeleteUser(users []User, actor, target User) error {
	if !Authorize(actor.Role, OpManageAdmins) {
		return fmt.Errorf("%s cannot delete users: %w", actor.Username, ErrUnauthorized)
	}
	if actor.ID == target.ID {
		return fmt.Errorf("cannot delete your own account: %w", ErrUnauthorized)
	}
	if target.Role == RoleSuperAdmin {
		return fmt.Errorf("cannot delete super-admin %s: %w", target.Username, ErrUnauthorized)
	}

	remaining := 0
	for _, u := range users {
		if u.ID != target.ID && u.Role == RoleSuperAdmin {
			remaining++
		}
	}
	if remaining == 0 {
		return fmt.Errorf("at least one super-admin must remain: %w", ErrUnauthorized)
	}
	return nil
}
