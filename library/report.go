package library

import (
	"sort"
	"time"
)

// LongLoanDays marks book history rows whose inclusive duration is above it.
const LongLoanDays = 5

// OverdueRow is one line of the overdue report.
type OverdueRow struct {
	Transaction
	BookTitle   string `json:"book_title"`
	UserName    string `json:"user_name"`
	DaysOverdue int    `json:"days_overdue"`
}

// TransactionRow is one line of the transactions report.
type TransactionRow struct {
	Transaction
	BookTitle string `json:"book_title"`
	UserName  string `json:"user_name"`
	Overdue   bool   `json:"overdue"`
}

// HistoryRow is one loan in a book's history.
type HistoryRow struct {
	Transaction
	UserName    string `json:"user_name"`
	BorrowCount int    `json:"borrow_count"`
	Days        int    `json:"days"`
	Long        bool   `json:"long"`
	TopBorrower bool   `json:"top_borrower"`
}

// BookHistory is the loan history of a single book.
type BookHistory struct {
	BookID int64        `json:"book_id"`
	Title  string       `json:"title"`
	Rows   []HistoryRow `json:"rows"`
}

// ProfileLoan is a loan as shown on a user's profile.
type ProfileLoan struct {
	Transaction
	BookTitle string `json:"book_title"`
	Days      int    `json:"days"`
	Overdue   bool   `json:"overdue"`
}

// Profile lists a user's current loans and returned history.
type Profile struct {
	User     User          `json:"user"`
	Current  []ProfileLoan `json:"current"`
	Returned []ProfileLoan `json:"returned"`
}

// StudentRow is one line of the student list.
type StudentRow struct {
	User
	OnLoan      int  `json:"on_loan"`
	Borrowed    int  `json:"borrowed"`
	TopBorrower bool `json:"top_borrower"`
}

// BuildOverdueReport lists the overdue loans, longest overdue first.
func BuildOverdueReport(s *Snapshot, now time.Time, dueDays int) []OverdueRow {
	overdue := OverdueList(s.Transactions, now, dueDays)
	rows := make([]OverdueRow, 0, len(overdue))
	for _, tx := range overdue {
		rows = append(rows, OverdueRow{
			Transaction: tx,
			BookTitle:   s.BookTitle(tx.BookID),
			UserName:    s.UserName(tx.UserID),
			DaysOverdue: DaysOverdue(tx, now, dueDays),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].BorrowDate.Equal(rows[j].BorrowDate) {
			return rows[i].BorrowDate.Before(rows[j].BorrowDate)
		}
		return rows[i].ID < rows[j].ID
	})
	return rows
}

// BuildTransactionsReport lists every loan, most recent borrow first.
func BuildTransactionsReport(s *Snapshot, now time.Time, dueDays int) []TransactionRow {
	recent := RecentTransactions(s.Transactions)
	rows := make([]TransactionRow, 0, len(recent))
	for _, tx := range recent {
		rows = append(rows, TransactionRow{
			Transaction: tx,
			BookTitle:   s.BookTitle(tx.BookID),
			UserName:    s.UserName(tx.UserID),
			Overdue:     IsOverdue(tx, now, dueDays),
		})
	}
	return rows
}

// BuildBookHistory renders the history of bookID. Borrow counts and the top
// borrower flag are computed over this book's loans only.
func BuildBookHistory(s *Snapshot, bookID int64, now time.Time) BookHistory {
	history := HistoryForBook(s.Transactions, bookID)
	counts := BorrowCounts(history)
	top := make(map[int64]bool)
	for _, id := range TopBorrowers(counts) {
		top[id] = true
	}

	h := BookHistory{BookID: bookID, Title: s.BookTitle(bookID), Rows: make([]HistoryRow, 0, len(history))}
	for _, tx := range history {
		days := loanDays(tx, now)
		h.Rows = append(h.Rows, HistoryRow{
			Transaction: tx,
			UserName:    s.UserName(tx.UserID),
			BorrowCount: counts[tx.UserID],
			Days:        days,
			Long:        days > LongLoanDays,
			TopBorrower: top[tx.UserID],
		})
	}
	return h
}

// BuildProfile renders u's current loans and returned history.
func BuildProfile(s *Snapshot, u User, now time.Time, dueDays int) Profile {
	open, closed := HistoryForUser(s.Transactions, u.ID)
	p := Profile{User: u, Current: make([]ProfileLoan, 0, len(open)), Returned: make([]ProfileLoan, 0, len(closed))}
	for _, tx := range open {
		p.Current = append(p.Current, ProfileLoan{
			Transaction: tx,
			BookTitle:   s.BookTitle(tx.BookID),
			Days:        loanDays(tx, now),
			Overdue:     IsOverdue(tx, now, dueDays),
		})
	}
	for _, tx := range closed {
		p.Returned = append(p.Returned, ProfileLoan{
			Transaction: tx,
			BookTitle:   s.BookTitle(tx.BookID),
			Days:        loanDays(tx, now),
		})
	}
	return p
}

// loanDays is the inclusive day count of tx up to its return or now, read on
// the calendar of now's location.
func loanDays(tx Transaction, now time.Time) int {
	end := now
	if tx.ReturnDate != nil {
		end = tx.ReturnDate.In(now.Location())
	}
	return InclusiveDayCount(tx.BorrowDate, end)
}

// BuildStudentList lists student accounts by id with their loan counts.
func BuildStudentList(s *Snapshot) []StudentRow {
	counts := BorrowCounts(s.Transactions)
	top := make(map[int64]bool)
	for _, id := range TopBorrowers(counts) {
		top[id] = true
	}
	onLoan := make(map[int64]int)
	for _, tx := range s.Transactions {
		if tx.Open() {
			onLoan[tx.UserID]++
		}
	}

	var rows []StudentRow
	for _, u := range s.Users {
		if u.Role != RoleStudent {
			continue
		}
		rows = append(rows, StudentRow{
			User:        u,
			OnLoan:      onLoan[u.ID],
			Borrowed:    counts[u.ID],
			TopBorrower: top[u.ID],
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows
}
