package library

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Seeded ids, in insertion order.
const (
	superadminID = 1
	studentID    = 3
	thulasiID    = 4
	gatsbyID     = 1
	cosmosID     = 2
	sapiensID    = 3
)

func newManager(t *testing.T, opts ...ManagerOption) (*Manager, *clock) {
	t.Helper()
	c := &clock{now: t0}
	mgr, err := OpenManager(filepath.Join(t.TempDir(), "lib.db"),
		append([]ManagerOption{WithManagerClock(c.Now)}, opts...)...)
	if err != nil {
		t.Fatalf("mgr: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })

	seeded, err := mgr.Seed(context.Background())
	require.NoError(t, err)
	require.True(t, seeded)
	return mgr, c
}

func login(t *testing.T, mgr *Manager, username, password string) Session {
	t.Helper()
	s, err := mgr.Login(context.Background(), username, password)
	require.NoError(t, err)
	return s
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newManager(t)

	again, err := mgr.Seed(ctx)
	require.NoError(t, err)
	assert.False(t, again, "seeding a non-empty store is a no-op")

	bad, err := mgr.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, bad)

	lib := login(t, mgr, "librarian", "librarian")
	c, err := mgr.Dashboard(ctx, lib)
	require.NoError(t, err)
	assert.Equal(t, Counters{Total: 13, Available: 12, Borrowed: 1, Overdue: 1}, c)

	overdue, err := mgr.OverdueReport(ctx, lib)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "Sapiens", overdue[0].BookTitle)
	assert.Equal(t, "student", overdue[0].UserName)
	assert.Equal(t, 3, overdue[0].DaysOverdue)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newManager(t)

	s := login(t, mgr, "superadmin", "superadmin")
	assert.Equal(t, RoleSuperAdmin, s.User.Role)

	_, wrong := mgr.Login(ctx, "student", "wrong")
	_, unknown := mgr.Login(ctx, "ghost", "123")
	assert.ErrorIs(t, wrong, ErrAuthFailure)
	assert.Equal(t, wrong, unknown)
}

func TestCapabilities(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newManager(t)
	student := login(t, mgr, "student", "123")
	lib := login(t, mgr, "librarian", "librarian")

	_, err := mgr.AddBook(ctx, student, "Dune", "Frank Herbert", "Fiction")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = mgr.Dashboard(ctx, student)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, mgr.DeleteBook(ctx, lib, gatsbyID), ErrUnauthorized)
	_, err = mgr.Borrow(ctx, lib, gatsbyID)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = mgr.CreateUser(ctx, lib, "newbie", "secret", RoleStudent)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = mgr.Staff(ctx, lib)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = mgr.Browse(ctx, Session{}, BookQuery{})
	assert.ErrorIs(t, err, ErrUnauthorized, "no session, no catalog")
}

func TestBorrowReturnEvents(t *testing.T) {
	ctx := context.Background()
	mgr, c := newManager(t)
	student := login(t, mgr, "student", "123")

	var changes []LoanChange
	mgr.OnLoanChanged(func(ch LoanChange) { changes = append(changes, ch) })

	_, err := mgr.Borrow(ctx, student, cosmosID)
	require.NoError(t, err)
	c.Advance(2 * time.Hour)
	_, err = mgr.Return(ctx, student, cosmosID)
	require.NoError(t, err)

	_, err = mgr.Borrow(ctx, student, sapiensID)
	assert.ErrorIs(t, err, ErrBookUnavailable)

	require.Len(t, changes, 2, "failed operations emit nothing")
	assert.False(t, changes[0].Book.Available)
	assert.Equal(t, int64(studentID), changes[0].Book.BorrowerID)
	assert.True(t, changes[0].Transaction.Open())
	assert.True(t, changes[1].Book.Available)
	assert.False(t, changes[1].Transaction.Open())
	assert.Equal(t, changes[0].Transaction.ID, changes[1].Transaction.ID)
}

func TestReturnOwnership(t *testing.T) {
	ctx := context.Background()

	mgr, _ := newManager(t)
	thulasi := login(t, mgr, "thulasi", "123")
	_, err := mgr.Return(ctx, thulasi, sapiensID)
	assert.ErrorIs(t, err, ErrNoOpenLoan)

	lenient, _ := newManager(t, WithOwnedReturns(false))
	thulasi = login(t, lenient, "thulasi", "123")
	change, err := lenient.Return(ctx, thulasi, sapiensID)
	require.NoError(t, err)
	assert.Equal(t, int64(studentID), change.Transaction.UserID)
}

func TestAddAndDeleteBook(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newManager(t)
	admin := login(t, mgr, "superadmin", "superadmin")
	student := login(t, mgr, "student", "123")

	tests := []struct {
		title, author, category string
	}{
		{"It", "Stephen King", "Horror"},
		{"Dune", "FH", "Fiction"},
		{"Dune", "Frank Herbert", "  SF  "},
	}
	for _, tt := range tests {
		_, err := mgr.AddBook(ctx, admin, tt.title, tt.author, tt.category)
		assert.ErrorIs(t, err, ErrValidation, "%+v", tt)
	}

	b, err := mgr.AddBook(ctx, admin, "  Dune ", "Frank Herbert", "Fiction")
	require.NoError(t, err)
	assert.Equal(t, "Dune", b.Title)
	assert.True(t, b.Available)

	_, err = mgr.Borrow(ctx, student, b.ID)
	require.NoError(t, err)
	_, err = mgr.Return(ctx, student, b.ID)
	require.NoError(t, err)

	require.NoError(t, mgr.DeleteBook(ctx, admin, b.ID))
	_, err = mgr.Book(ctx, admin, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	h, err := mgr.BookHistory(ctx, admin, b.ID)
	require.NoError(t, err, "deleted books keep their history")
	assert.Equal(t, UnknownBook, h.Title)
	assert.Len(t, h.Rows, 1)

	_, err = mgr.BookHistory(ctx, admin, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBrowse(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newManager(t)
	student := login(t, mgr, "student", "123")

	page, err := mgr.Browse(ctx, student, BookQuery{Page: 9})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, 3, page.TotalPages)
	assert.Len(t, page.Books, 3)

	page, err = mgr.Browse(ctx, student, BookQuery{Category: "Fiction", Search: "book 1"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Matched, "Fiction Book 1 and Fiction Book 10")

	cats, err := mgr.Categories(ctx, student)
	require.NoError(t, err)
	assert.Equal(t, []string{"Fiction", "History", "Science"}, cats)

	small, _ := newManager(t, WithBooksPerPage(10))
	student = login(t, small, "student", "123")
	page, err = small.Browse(ctx, student, BookQuery{})
	require.NoError(t, err)
	assert.Len(t, page.Books, 10)
	assert.Equal(t, 2, page.TotalPages)
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newManager(t)
	admin := login(t, mgr, "superadmin", "superadmin")

	var created []User
	mgr.OnUserChanged(func(u User) { created = append(created, u) })

	u, err := mgr.CreateUser(ctx, admin, " newlib ", "pass", RoleLibrarian)
	require.NoError(t, err)
	assert.Equal(t, "newlib", u.Username)
	require.Len(t, created, 1)

	_, err = mgr.CreateUser(ctx, admin, "newlib", "other", RoleStudent)
	assert.ErrorIs(t, err, ErrDuplicateUsername)
	_, err = mgr.CreateUser(ctx, admin, "ab", "pass", RoleLibrarian)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = mgr.CreateUser(ctx, admin, "shorty", "abc", RoleLibrarian)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = mgr.CreateUser(ctx, admin, "boss", "pass", RoleSuperAdmin)
	assert.ErrorIs(t, err, ErrUnauthorized)

	s := login(t, mgr, "newlib", "pass")
	assert.Equal(t, RoleLibrarian, s.User.Role)

	staff, err := mgr.Staff(ctx, admin)
	require.NoError(t, err)
	var names []string
	for _, u := range staff {
		names = append(names, u.Username)
	}
	assert.Equal(t, []string{"superadmin", "librarian", "newlib"}, names)
}

func TestDeleteUserKeepsHistory(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newManager(t)
	admin := login(t, mgr, "superadmin", "superadmin")

	assert.ErrorIs(t, mgr.DeleteUser(ctx, admin, superadminID), ErrUnauthorized)
	assert.ErrorIs(t, mgr.DeleteUser(ctx, admin, 999), ErrNotFound)

	require.NoError(t, mgr.DeleteUser(ctx, admin, studentID))
	_, err := mgr.Login(ctx, "student", "123")
	assert.ErrorIs(t, err, ErrAuthFailure)

	rows, err := mgr.TransactionsReport(ctx, admin)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, UnknownUser, rows[0].UserName)
	assert.Equal(t, "Sapiens", rows[0].BookTitle)

	students, err := mgr.Students(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, students, 2)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newManager(t)
	student := login(t, mgr, "student", "123")

	assert.ErrorIs(t, mgr.ChangePassword(ctx, student, thulasiID, "hacked"), ErrUnauthorized)
	assert.ErrorIs(t, mgr.ChangePassword(ctx, student, studentID, "12"), ErrValidation)

	require.NoError(t, mgr.ChangePassword(ctx, student, studentID, "s3cret"))
	_, err := mgr.Login(ctx, "student", "123")
	assert.ErrorIs(t, err, ErrAuthFailure)
	login(t, mgr, "student", "s3cret")
}

func TestProfile(t *testing.T) {
	ctx := context.Background()
	mgr, c := newManager(t)
	student := login(t, mgr, "student", "123")
	thulasi := login(t, mgr, "thulasi", "123")
	lib := login(t, mgr, "librarian", "librarian")

	_, err := mgr.Borrow(ctx, student, gatsbyID)
	require.NoError(t, err)
	c.Advance(26 * time.Hour)
	_, err = mgr.Return(ctx, student, gatsbyID)
	require.NoError(t, err)

	p, err := mgr.Profile(ctx, student, studentID)
	require.NoError(t, err)
	require.Len(t, p.Current, 1)
	assert.Equal(t, "Sapiens", p.Current[0].BookTitle)
	require.Len(t, p.Returned, 1)
	assert.Equal(t, "The Great Gatsby", p.Returned[0].BookTitle)
	assert.Equal(t, 2, p.Returned[0].Days)

	_, err = mgr.Profile(ctx, thulasi, studentID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	p, err = mgr.Profile(ctx, lib, studentID)
	require.NoError(t, err)
	assert.Equal(t, "student", p.User.Username)

	_, err = mgr.Profile(ctx, lib, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoanDaysOnLocalCalendar(t *testing.T) {
	ctx := context.Background()
	mgr, c := newManager(t)
	// 01:30 UTC on May 11 is still the evening of May 10 here.
	c.now = time.Date(2024, 5, 10, 21, 30, 0, 0, time.FixedZone("UTC-4", -4*3600))
	student := login(t, mgr, "student", "123")
	lib := login(t, mgr, "librarian", "librarian")

	_, err := mgr.Borrow(ctx, student, gatsbyID)
	require.NoError(t, err)
	c.Advance(30 * time.Minute)

	h, err := mgr.BookHistory(ctx, lib, gatsbyID)
	require.NoError(t, err)
	require.Len(t, h.Rows, 1)
	assert.Equal(t, 1, h.Rows[0].Days, "same-day loan")

	p, err := mgr.Profile(ctx, student, studentID)
	require.NoError(t, err)
	var current *ProfileLoan
	for i := range p.Current {
		if p.Current[i].BookID == gatsbyID {
			current = &p.Current[i]
		}
	}
	require.NotNil(t, current)
	assert.Equal(t, 1, current.Days)

	c.Advance(3 * time.Hour)
	_, err = mgr.Return(ctx, student, gatsbyID)
	require.NoError(t, err)
	p, err = mgr.Profile(ctx, student, studentID)
	require.NoError(t, err)
	require.Len(t, p.Returned, 1)
	assert.Equal(t, 2, p.Returned[0].Days, "returned after local midnight")
}
