package library

import (
	"sort"
	"time"
)

const day = 24 * time.Hour

// DefaultDueDays is the loan period used when none is configured.
const DefaultDueDays = 7

// OverdueByElapsedHours reports whether an open loan has been out for more than
// dueDays of real elapsed time. Returned loans are never overdue.
func OverdueByElapsedHours(tx Transaction, now time.Time, dueDays int) bool {
	if !tx.Open() {
		return false
	}
	return now.Sub(tx.BorrowDate) > time.Duration(dueDays)*day
}

// IsOverdue is the overdue rule used by the dashboard and reports.
func IsOverdue(tx Transaction, now time.Time, dueDays int) bool {
	return OverdueByElapsedHours(tx, now, dueDays)
}

// InclusiveDayCount counts the calendar days a loan touched: both ends are cut
// to their date in returnDateOrNow's location, so a same-day loan counts as 1.
func InclusiveDayCount(borrowDate, returnDateOrNow time.Time) int {
	loc := returnDateOrNow.Location()
	from := calendarDate(borrowDate.In(loc))
	to := calendarDate(returnDateOrNow)
	return int(to.Sub(from)/day) + 1
}

func calendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysOverdue is the number of whole elapsed days past the due period.
func DaysOverdue(tx Transaction, now time.Time, dueDays int) int {
	end := now
	if tx.ReturnDate != nil {
		end = *tx.ReturnDate
	}
	return int(end.Sub(tx.BorrowDate)/day) - dueDays
}

// OverdueList filters txs down to the overdue loans.
func OverdueList(txs []Transaction, now time.Time, dueDays int) []Transaction {
	var out []Transaction
	for _, tx := range txs {
		if IsOverdue(tx, now, dueDays) {
			out = append(out, tx)
		}
	}
	return out
}

// HistoryForBook returns every loan of bookID, most recent borrow first.
func HistoryForBook(txs []Transaction, bookID int64) []Transaction {
	var out []Transaction
	for _, tx := range txs {
		if tx.BookID == bookID {
			out = append(out, tx)
		}
	}
	sortByBorrowDesc(out)
	return out
}

// HistoryForUser splits the loans of userID into current loans, in borrow
// order, and returned ones, latest return first.
func HistoryForUser(txs []Transaction, userID int64) (open, closed []Transaction) {
	for _, tx := range txs {
		if tx.UserID != userID {
			continue
		}
		if tx.Open() {
			open = append(open, tx)
		} else {
			closed = append(closed, tx)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		if !open[i].BorrowDate.Equal(open[j].BorrowDate) {
			return open[i].BorrowDate.Before(open[j].BorrowDate)
		}
		return open[i].ID < open[j].ID
	})
	sort.SliceStable(closed, func(i, j int) bool {
		if !closed[i].ReturnDate.Equal(*closed[j].ReturnDate) {
			return closed[i].ReturnDate.After(*closed[j].ReturnDate)
		}
		return closed[i].ID > closed[j].ID
	})
	return open, closed
}

// RecentTransactions returns a copy of txs, most recent borrow first.
func RecentTransactions(txs []Transaction) []Transaction {
	out := make([]Transaction, len(txs))
	copy(out, txs)
	sortByBorrowDesc(out)
	return out
}

func sortByBorrowDesc(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].BorrowDate.Equal(txs[j].BorrowDate) {
			return txs[i].BorrowDate.After(txs[j].BorrowDate)
		}
		return txs[i].ID > txs[j].ID
	})
}

// BorrowCounts counts every loan, open or returned, per user.
func BorrowCounts(txs []Transaction) map[int64]int {
	counts := make(map[int64]int)
	for _, tx := range txs {
		counts[tx.UserID]++
	}
	return counts
}

// TopBorrowers returns all users tied at the highest count, in ascending id
// order.
func TopBorrowers(counts map[int64]int) []int64 {
	best := 0
	for _, n := range counts {
		if n > best {
			best = n
		}
	}
	if best == 0 {
		return nil
	}
	var top []int64
	for id, n := range counts {
		if n == best {
			top = append(top, id)
		}
	}
	sort.Slice(top, func(i, j int) bool { return top[i] < top[j] })
	return top
}

// Counters are the dashboard totals.
type Counters struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Borrowed  int `json:"borrowed"`
	Overdue   int `json:"overdue"`
}

// DashboardCounters derives the dashboard totals from the catalog and the loan
// history.
func DashboardCounters(books []Book, txs []Transaction, now time.Time, dueDays int) Counters {
	c := Counters{Total: len(books)}
	for _, b := range books {
		if !b.Available {
			c.Borrowed++
		}
	}
	c.Available = c.Total - c.Borrowed
	c.Overdue = len(OverdueList(txs, now, dueDays))
	return c
}
