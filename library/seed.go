package library

import (
	"context"
	"fmt"
	"time"

	"library-ledger/logger"
)

type seedUser struct {
	username, password string
	role               Role
}

var seedUsers = []seedUser{
	{"superadmin", "superadmin", RoleSuperAdmin},
	{"librarian", "librarian", RoleLibrarian},
	{"student", "123", RoleStudent},
	{"thulasi", "123", RoleStudent},
	{"hari", "123", RoleStudent},
}

// The user who holds the pre-borrowed book.
const seedBorrower = "student"

var seedBooks = []Book{
	{Title: "The Great Gatsby", Author: "F. Scott Fitzgerald", Category: "Fiction"},
	{Title: "Cosmos", Author: "Carl Sagan", Category: "Science"},
	{Title: "Sapiens", Author: "Yuval Noah Harari", Category: "History"},
}

// The seeded book that starts out borrowed and overdue.
const seedOverdueTitle = "Sapiens"

// Seed fills an empty store with the demo accounts and catalog. One book is
// lent to the student account dueDays+3 days before now, so the overdue views
// have something to show. It reports false without writing when the store
// already holds users or books.
func Seed(ctx context.Context, store Store, now time.Time, dueDays int) (bool, error) {
	seeded := false
	err := store.Atomic(ctx, func(s Store) error {
		users, err := s.AllUsers(ctx)
		if err != nil {
			return err
		}
		books, err := s.AllBooks(ctx)
		if err != nil {
			return err
		}
		if len(users) > 0 || len(books) > 0 {
			return nil
		}

		ids := make(map[string]int64, len(seedUsers))
		for _, su := range seedUsers {
			hash, err := HashPassword(su.password)
			if err != nil {
				return err
			}
			id, err := s.InsertUser(ctx, User{Username: su.username, PasswordHash: hash, Role: su.role})
			if err != nil {
				return fmt.Errorf("seed user %s: %w", su.username, err)
			}
			ids[su.username] = id
		}

		catalog := append([]Book(nil), seedBooks...)
		for i := 1; i <= 10; i++ {
			catalog = append(catalog, Book{
				Title:    fmt.Sprintf("Fiction Book %d", i),
				Author:   fmt.Sprintf("Author %d", i),
				Category: "Fiction",
			})
		}

		for _, b := range catalog {
			b.Available = true
			borrowed := b.Title == seedOverdueTitle
			if borrowed {
				b.Available = false
				b.BorrowerID = ids[seedBorrower]
			}
			bookID, err := s.InsertBook(ctx, b)
			if err != nil {
				return fmt.Errorf("seed book %q: %w", b.Title, err)
			}
			if !borrowed {
				continue
			}
			txn := Transaction{
				BookID:     bookID,
				UserID:     b.BorrowerID,
				BorrowDate: now.Add(-time.Duration(dueDays+3) * day).UTC(),
			}
			if _, err := s.InsertTransaction(ctx, txn); err != nil {
				return fmt.Errorf("seed loan of %q: %w", b.Title, err)
			}
		}
		seeded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if seeded {
		logger.Infof("seeded %d users and %d books", len(seedUsers), len(seedBooks)+10)
	}
	return seeded, nil
}
