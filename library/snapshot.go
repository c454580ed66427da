package library

import (
	"context"
	"fmt"
	"sort"
)

const (
	UnknownUser = "Unknown User"
	UnknownBook = "Unknown Book"
)

// Snapshot is a point-in-time copy of all three collections. Analytics and
// reports work on it instead of the store.
type Snapshot struct {
	Books        []Book
	Users        []User
	Transactions []Transaction

	books map[int64]Book
	users map[int64]User
}

// NewSnapshot indexes the given collections.
func NewSnapshot(books []Book, users []User, txs []Transaction) *Snapshot {
	s := &Snapshot{
		Books:        books,
		Users:        users,
		Transactions: txs,
		books:        make(map[int64]Book, len(books)),
		users:        make(map[int64]User, len(users)),
	}
	for _, b := range books {
		s.books[b.ID] = b
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

// LoadSnapshot reads every collection inside one storage transaction.
func LoadSnapshot(ctx context.Context, store Store) (*Snapshot, error) {
	var (
		books []Book
		users []User
		txs   []Transaction
	)
	err := store.Atomic(ctx, func(s Store) error {
		var err error
		if books, err = s.AllBooks(ctx); err != nil {
			return fmt.Errorf("load books: %w", err)
		}
		if users, err = s.AllUsers(ctx); err != nil {
			return fmt.Errorf("load users: %w", err)
		}
		if txs, err = s.AllTransactions(ctx); err != nil {
			return fmt.Errorf("load transactions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return NewSnapshot(books, users, txs), nil
}

// Book looks up a book by id.
func (s *Snapshot) Book(id int64) (Book, bool) {
	b, ok := s.books[id]
	return b, ok
}

// User looks up a user by id.
func (s *Snapshot) User(id int64) (User, bool) {
	u, ok := s.users[id]
	return u, ok
}

// UserName resolves a user id for display. Deleted users show as UnknownUser.
func (s *Snapshot) UserName(id int64) string {
	if u, ok := s.users[id]; ok {
		return u.Username
	}
	return UnknownUser
}

// BookTitle resolves a book id for display. Deleted books show as UnknownBook.
func (s *Snapshot) BookTitle(id int64) string {
	if b, ok := s.books[id]; ok {
		return b.Title
	}
	return UnknownBook
}

// CheckInvariant returns the ids of books whose availability disagrees with
// the open loans referencing them, in ascending order.
func CheckInvariant(s *Snapshot) []int64 {
	open := make(map[int64][]Transaction)
	for _, tx := range s.Transactions {
		if tx.Open() {
			open[tx.BookID] = append(open[tx.BookID], tx)
		}
	}

	var bad []int64
	for _, b := range s.Books {
		loans := open[b.ID]
		if b.Available {
			if b.BorrowerID != 0 || len(loans) != 0 {
				bad = append(bad, b.ID)
			}
			continue
		}
		if len(loans) != 1 || loans[0].UserID != b.BorrowerID {
			bad = append(bad, b.ID)
		}
	}
	sort.Slice(bad, func(i, j int) bool { return bad[i] < bad[j] })
	return bad
}
