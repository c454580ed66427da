package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"library-ledger/logger"
)

// MinBookFieldLength applies to title, author and category after trimming.
const MinBookFieldLength = 3

// Manager is the façade the CLI talks to. It checks the session's
// capabilities, runs the ledger or the store, and notifies listeners once a
// change has committed.
type Manager struct {
	store   Store
	ledger  *Ledger
	closer  func() error
	now     func() time.Time
	dueDays int
	perPage int
	strict  bool
	onLoan  []func(LoanChange)
	onUser  []func(User)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDueDays sets the loan period used by overdue checks.
func WithDueDays(days int) ManagerOption {
	return func(m *Manager) { m.dueDays = days }
}

// WithBooksPerPage sets the catalog page size.
func WithBooksPerPage(n int) ManagerOption {
	return func(m *Manager) { m.perPage = n }
}

// WithManagerClock replaces time.Now for the manager and its ledger.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithOwnedReturns sets the ledger's strict ownership policy.
func WithOwnedReturns(strict bool) ManagerOption {
	return func(m *Manager) { m.strict = strict }
}

// NewManager builds a manager over an already opened store.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:   store,
		now:     time.Now,
		dueDays: DefaultDueDays,
		perPage: DefaultBooksPerPage,
		strict:  true,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.ledger = NewLedger(store, WithClock(m.now), WithStrictOwnership(m.strict))
	return m
}

// OpenManager opens (or creates) the SQLite database at dbPath.
func OpenManager(dbPath string, opts ...ManagerOption) (*Manager, error) {
	db, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	m := NewManager(db, opts...)
	m.closer = db.Close
	return m, nil
}

// Close closes the underlying database when the manager opened it.
func (m *Manager) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}

func (m *Manager) Store() Store     { return m.store }
func (m *Manager) DueDays() int      { return m.dueDays }
func (m *Manager) Now() time.Time    { return m.now() }
func (m *Manager) BooksPerPage() int { return m.perPage }

// OnLoanChanged registers fn to run after every committed borrow or return.
func (m *Manager) OnLoanChanged(fn func(LoanChange)) { m.onLoan = append(m.onLoan, fn) }

// OnUserChanged registers fn to run after a user is created, updated or
// deleted.
func (m *Manager) OnUserChanged(fn func(User)) { m.onUser = append(m.onUser, fn) }

func (m *Manager) loanChanged(c LoanChange) {
	for _, fn := range m.onLoan {
		fn(c)
	}
}

func (m *Manager) userChanged(u User) {
	for _, fn := range m.onUser {
		fn(u)
	}
}

func (m *Manager) require(s Session, op Operation) error {
	if s.Can(op) {
		return nil
	}
	logger.Infof("user %s (%s) refused: %s", s.User.Username, s.User.Role, op)
	return fmt.Errorf("%s: %w", op, ErrUnauthorized)
}

// Seed fills an empty store with the demo data.
func (m *Manager) Seed(ctx context.Context) (bool, error) {
	return Seed(ctx, m.store, m.now(), m.dueDays)
}

// ------------------ Session ------------------

// Login checks the credentials and opens a session.
func (m *Manager) Login(ctx context.Context, username, password string) (Session, error) {
	users, err := m.store.AllUsers(ctx)
	if err != nil {
		return Session{}, err
	}
	u, err := Authenticate(users, username, password)
	if err != nil {
		logger.Infof("failed login for %q", username)
		return Session{}, err
	}
	logger.Debugf("user %s logged in as %s", u.Username, u.Role)
	return Session{User: u}, nil
}

// ------------------ Catalog ------------------

// Browse returns one filtered page of the catalog.
func (m *Manager) Browse(ctx context.Context, s Session, q BookQuery) (BookPage, error) {
	if err := m.require(s, OpBrowse); err != nil {
		return BookPage{}, err
	}
	if q.PerPage <= 0 {
		q.PerPage = m.perPage
	}
	q, err := q.Normalize()
	if err != nil {
		return BookPage{}, err
	}
	return m.store.FindBooks(ctx, q)
}

// Categories lists the distinct categories for the filter menu.
func (m *Manager) Categories(ctx context.Context, s Session) ([]string, error) {
	if err := m.require(s, OpBrowse); err != nil {
		return nil, err
	}
	return m.store.Categories(ctx)
}

// Book returns a single catalog entry.
func (m *Manager) Book(ctx context.Context, s Session, id int64) (Book, error) {
	if err := m.require(s, OpBrowse); err != nil {
		return Book{}, err
	}
	return m.store.GetBook(ctx, id)
}

// AddBook adds an available book to the catalog.
func (m *Manager) AddBook(ctx context.Context, s Session, title, author, category string) (Book, error) {
	if err := m.require(s, OpAddBook); err != nil {
		return Book{}, err
	}
	b := Book{
		Title:     strings.TrimSpace(title),
		Author:    strings.TrimSpace(author),
		Category:  strings.TrimSpace(category),
		Available: true,
	}
	fields := []struct{ name, value string }{
		{"title", b.Title}, {"author", b.Author}, {"category", b.Category},
	}
	for _, f := range fields {
		if len([]rune(f.value)) < MinBookFieldLength {
			return Book{}, fmt.Errorf("%s must be at least %d characters: %w", f.name, MinBookFieldLength, ErrValidation)
		}
	}

	id, err := m.store.InsertBook(ctx, b)
	if err != nil {
		return Book{}, err
	}
	b.ID = id
	logger.Debugf("book %d %q added by %s", id, b.Title, s.User.Username)
	return b, nil
}

// DeleteBook removes a book from the catalog. Its history is kept.
func (m *Manager) DeleteBook(ctx context.Context, s Session, bookID int64) error {
	if err := m.require(s, OpDeleteBook); err != nil {
		return err
	}
	return m.ledger.DeleteBook(ctx, bookID)
}

// ------------------ Circulation ------------------

// Borrow lends a book to the session's user.
func (m *Manager) Borrow(ctx context.Context, s Session, bookID int64) (LoanChange, error) {
	if err := m.require(s, OpBorrow); err != nil {
		return LoanChange{}, err
	}
	book, txn, err := m.ledger.Borrow(ctx, bookID, s.User.ID)
	if err != nil {
		if errors.Is(err, ErrBookUnavailable) {
			logger.Infof("user %s could not borrow book %d: already borrowed", s.User.Username, bookID)
		}
		return LoanChange{}, err
	}
	c := LoanChange{Book: book, Transaction: txn}
	m.loanChanged(c)
	return c, nil
}

// Return closes the session user's loan of a book.
func (m *Manager) Return(ctx context.Context, s Session, bookID int64) (LoanChange, error) {
	if err := m.require(s, OpReturn); err != nil {
		return LoanChange{}, err
	}
	book, txn, err := m.ledger.Return(ctx, bookID, s.User.ID)
	if err != nil {
		if errors.Is(err, ErrNoOpenLoan) {
			logger.Infof("user %s could not return book %d: no open loan", s.User.Username, bookID)
		}
		return LoanChange{}, err
	}
	c := LoanChange{Book: book, Transaction: txn}
	m.loanChanged(c)
	return c, nil
}

// ------------------ Accounts ------------------

// CreateUser adds a librarian or student account.
func (m *Manager) CreateUser(ctx context.Context, s Session, username, password string, role Role) (User, error) {
	if err := m.require(s, OpManageAdmins); err != nil {
		return User{}, err
	}
	if role != RoleLibrarian && role != RoleStudent {
		return User{}, fmt.Errorf("cannot create %s accounts: %w", role, ErrUnauthorized)
	}
	username = strings.TrimSpace(username)
	if err := ValidateUsername(username); err != nil {
		return User{}, err
	}
	if err := ValidatePassword(password); err != nil {
		return User{}, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}

	u := User{Username: username, PasswordHash: hash, Role: role}
	if u.ID, err = m.store.InsertUser(ctx, u); err != nil {
		return User{}, err
	}
	logger.Debugf("user %d %s (%s) created by %s", u.ID, u.Username, u.Role, s.User.Username)
	m.userChanged(u)
	return u, nil
}

// DeleteUser removes an account. Its loan history stays and is shown as
// Unknown User.
func (m *Manager) DeleteUser(ctx context.Context, s Session, userID int64) error {
	if err := m.require(s, OpManageAdmins); err != nil {
		return err
	}
	var target User
	err := m.store.Atomic(ctx, func(st Store) error {
		users, err := st.AllUsers(ctx)
		if err != nil {
			return err
		}
		found := false
		for _, u := range users {
			if u.ID == userID {
				target, found = u, true
				break
			}
		}
		if !found {
			return fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		if err := CanDeleteUser(users, s.User, target); err != nil {
			return err
		}
		return st.RemoveUser(ctx, userID)
	})
	if err != nil {
		return err
	}
	logger.Debugf("user %d %s deleted by %s", target.ID, target.Username, s.User.Username)
	m.userChanged(target)
	return nil
}

// ChangePassword updates the session user's own password.
func (m *Manager) ChangePassword(ctx context.Context, s Session, userID int64, password string) error {
	if userID != s.User.ID {
		return fmt.Errorf("password of user %d: %w", userID, ErrUnauthorized)
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	var u User
	err = m.store.Atomic(ctx, func(st Store) error {
		var err error
		if u, err = st.GetUser(ctx, userID); err != nil {
			return err
		}
		u.PasswordHash = hash
		return st.PutUser(ctx, u)
	})
	if err != nil {
		return err
	}
	logger.Debugf("user %s changed password", u.Username)
	m.userChanged(u)
	return nil
}

// Staff lists the privileged accounts for the admin management page.
func (m *Manager) Staff(ctx context.Context, s Session) ([]User, error) {
	if err := m.require(s, OpManageAdmins); err != nil {
		return nil, err
	}
	users, err := m.store.AllUsers(ctx)
	if err != nil {
		return nil, err
	}
	staff := users[:0]
	for _, u := range users {
		if u.Role.IsPrivileged() {
			staff = append(staff, u)
		}
	}
	return staff, nil
}

// ------------------ Reports ------------------

func (m *Manager) snapshot(ctx context.Context, s Session, op Operation) (*Snapshot, error) {
	if err := m.require(s, op); err != nil {
		return nil, err
	}
	return LoadSnapshot(ctx, m.store)
}

// Dashboard returns the catalog and loan totals.
func (m *Manager) Dashboard(ctx context.Context, s Session) (Counters, error) {
	snap, err := m.snapshot(ctx, s, OpViewAllHistory)
	if err != nil {
		return Counters{}, err
	}
	return DashboardCounters(snap.Books, snap.Transactions, m.now(), m.dueDays), nil
}

// OverdueReport lists every overdue loan.
func (m *Manager) OverdueReport(ctx context.Context, s Session) ([]OverdueRow, error) {
	snap, err := m.snapshot(ctx, s, OpViewAllHistory)
	if err != nil {
		return nil, err
	}
	return BuildOverdueReport(snap, m.now(), m.dueDays), nil
}

// TransactionsReport lists every loan, most recent first.
func (m *Manager) TransactionsReport(ctx context.Context, s Session) ([]TransactionRow, error) {
	snap, err := m.snapshot(ctx, s, OpViewAllHistory)
	if err != nil {
		return nil, err
	}
	return BuildTransactionsReport(snap, m.now(), m.dueDays), nil
}

// BookHistory returns the loan history of a book. Deleted books keep their
// history; ErrNotFound is returned only when the id was never lent and is not
// in the catalog.
func (m *Manager) BookHistory(ctx context.Context, s Session, bookID int64) (BookHistory, error) {
	snap, err := m.snapshot(ctx, s, OpViewAllHistory)
	if err != nil {
		return BookHistory{}, err
	}
	h := BuildBookHistory(snap, bookID, m.now())
	if _, ok := snap.Book(bookID); !ok && len(h.Rows) == 0 {
		return BookHistory{}, fmt.Errorf("book %d: %w", bookID, ErrNotFound)
	}
	return h, nil
}

// Students lists the student accounts with their loan counts.
func (m *Manager) Students(ctx context.Context, s Session) ([]StudentRow, error) {
	snap, err := m.snapshot(ctx, s, OpViewAllHistory)
	if err != nil {
		return nil, err
	}
	return BuildStudentList(snap), nil
}

// Profile returns a user's loans. Everyone may see their own profile.
func (m *Manager) Profile(ctx context.Context, s Session, userID int64) (Profile, error) {
	if userID != s.User.ID {
		if err := m.require(s, OpViewAnyProfile); err != nil {
			return Profile{}, err
		}
	}
	snap, err := LoadSnapshot(ctx, m.store)
	if err != nil {
		return Profile{}, err
	}
	u, ok := snap.User(userID)
	if !ok {
		return Profile{}, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return BuildProfile(snap, u, m.now(), m.dueDays), nil
}

// Check returns the ids of books that disagree with their open loans.
func (m *Manager) Check(ctx context.Context) ([]int64, error) {
	snap, err := LoadSnapshot(ctx, m.store)
	if err != nil {
		return nil, err
	}
	return CheckInvariant(snap), nil
}
