package library

import (
	"context"
	"fmt"
	"sort"
	"time"

	"library-ledger/logger"
)

// Ledger owns the borrow/return state machine: a book is unavailable exactly
// while one open transaction references it, and its BorrowerID is that
// transaction's user.
type Ledger struct {
	store           Store
	now             func() time.Time
	strictOwnership bool
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// WithStrictOwnership controls whether Return only closes loans held by the
// requesting user. It defaults to true.
func WithStrictOwnership(strict bool) LedgerOption {
	return func(l *Ledger) { l.strictOwnership = strict }
}

// NewLedger creates a Ledger on top of store.
func NewLedger(store Store, opts ...LedgerOption) *Ledger {
	l := &Ledger{store: store, now: time.Now, strictOwnership: true}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// StrictOwnership reports the configured return policy.
func (l *Ledger) StrictOwnership() bool { return l.strictOwnership }

// Borrow lends an available book to userID. The availability check and both
// writes happen in one storage transaction.
func (l *Ledger) Borrow(ctx context.Context, bookID, userID int64) (Book, Transaction, error) {
	var (
		book Book
		txn  Transaction
	)
	err := l.store.Atomic(ctx, func(s Store) error {
		var err error
		if book, err = s.GetBook(ctx, bookID); err != nil {
			return err
		}
		if _, err := s.GetUser(ctx, userID); err != nil {
			return err
		}
		if !book.Available {
			return fmt.Errorf("book %d: %w", bookID, ErrBookUnavailable)
		}

		book.Available = false
		book.BorrowerID = userID
		if err := s.PutBook(ctx, book); err != nil {
			return err
		}

		txn = Transaction{BookID: bookID, UserID: userID, BorrowDate: l.now().UTC()}
		if txn.ID, err = s.InsertTransaction(ctx, txn); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return Book{}, Transaction{}, err
	}
	logger.Debugf("book %d borrowed by user %d (transaction %d)", bookID, userID, txn.ID)
	return book, txn, nil
}

// Return closes the open loan of bookID and makes the book available again.
// With strict ownership only a loan held by requestingUserID qualifies.
func (l *Ledger) Return(ctx context.Context, bookID, requestingUserID int64) (Book, Transaction, error) {
	var (
		book Book
		txn  Transaction
	)
	err := l.store.Atomic(ctx, func(s Store) error {
		var err error
		if book, err = s.GetBook(ctx, bookID); err != nil {
			return err
		}
		if book.Available {
			return fmt.Errorf("book %d is not checked out: %w", bookID, ErrNoOpenLoan)
		}

		history, err := s.TransactionsByBook(ctx, bookID)
		if err != nil {
			return err
		}
		candidates := openLoans(history, requestingUserID, l.strictOwnership)
		if len(candidates) == 0 {
			return fmt.Errorf("book %d has no open loan for user %d: %w", bookID, requestingUserID, ErrNoOpenLoan)
		}
		if len(candidates) > 1 {
			logger.Warningf("book %d has %d open loans, closing the earliest (transaction %d)",
				bookID, len(candidates), candidates[0].ID)
		}

		txn = candidates[0]
		returned := l.now().UTC()
		txn.ReturnDate = &returned
		if err := s.PutTransaction(ctx, txn); err != nil {
			return err
		}

		book.Available = true
		book.BorrowerID = 0
		return s.PutBook(ctx, book)
	})
	if err != nil {
		return Book{}, Transaction{}, err
	}
	logger.Debugf("book %d returned by user %d (transaction %d)", bookID, txn.UserID, txn.ID)
	return book, txn, nil
}

// DeleteBook removes the catalog entry only; its loan history stays.
func (l *Ledger) DeleteBook(ctx context.Context, bookID int64) error {
	if err := l.store.RemoveBook(ctx, bookID); err != nil {
		return err
	}
	logger.Debugf("book %d deleted", bookID)
	return nil
}

// openLoans returns the open transactions that a return may close, earliest
// borrow first (lowest id on ties).
func openLoans(history []Transaction, userID int64, strict bool) []Transaction {
	var open []Transaction
	for _, t := range history {
		if !t.Open() {
			continue
		}
		if strict && t.UserID != userID {
			continue
		}
		open = append(open, t)
	}
	sort.SliceStable(open, func(i, j int) bool {
		if !open[i].BorrowDate.Equal(open[j].BorrowDate) {
			return open[i].BorrowDate.Before(open[j].BorrowDate)
		}
		return open[i].ID < open[j].ID
	})
	return open
}
