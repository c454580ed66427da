package library

import (
	"fmt"
	"time"
)

// Role is the closed set of account kinds. RoleAdmin is the administrator of
// the two-role deployment (student/admin).
type Role string

const (
	RoleStudent    Role = "student"
	RoleLibrarian  Role = "librarian"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super-admin"
)

// ParseRole accepts only the known role names.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleStudent, RoleLibrarian, RoleAdmin, RoleSuperAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q: %w", s, ErrValidation)
}

// IsPrivileged reports whether the role belongs on the admin management page.
func (r Role) IsPrivileged() bool { return r != RoleStudent }

// User is a registered account.
type User struct {
	ID           int64  `db:"id" json:"id"`
	Username     string `db:"username" json:"username"`
	PasswordHash string `db:"password_hash" json:"-"` // Don't serialize password hash
	Role         Role   `db:"role" json:"role"`
}

// Book is a catalog entry plus its current availability. BorrowerID is 0 when
// nobody holds the book.
type Book struct {
	ID         int64  `db:"id" json:"id"`
	Title      string `db:"title" json:"title"`
	Author     string `db:"author" json:"author"`
	Category   string `db:"category" json:"category"`
	Available  bool   `db:"available" json:"available"`
	BorrowerID int64  `db:"borrower_id" json:"borrower_id,omitempty"`
}

// Transaction is one loan record. It is open while ReturnDate is nil and
// never changes after it has been closed.
type Transaction struct {
	ID         int64      `db:"id" json:"id"`
	BookID     int64      `db:"book_id" json:"book_id"`
	UserID     int64      `db:"user_id" json:"user_id"`
	BorrowDate time.Time  `db:"borrow_date" json:"borrow_date"`
	ReturnDate *time.Time `db:"return_date" json:"return_date,omitempty"`
}

// Open reports whether the loan has not been returned yet.
func (t Transaction) Open() bool { return t.ReturnDate == nil }

// LoanChange is emitted after a borrow or return commits.
type LoanChange struct {
	Book        Book        `json:"book"`
	Transaction Transaction `json:"transaction"`
}
