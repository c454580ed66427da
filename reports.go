package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"library-ledger/library"
)

const dateLayout = "2006-01-02 15:04"

func formatDate(t time.Time) string { return t.Local().Format(dateLayout) }

func formatReturn(t *time.Time) string {
	if t == nil {
		return "Not Returned"
	}
	return formatDate(*t)
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printBookPage(w io.Writer, page library.BookPage, perPage int) {
	if len(page.Books) == 0 {
		fmt.Fprintln(w, "No books found.")
		fmt.Fprintf(w, "Page %d of %d\n", page.Page, page.TotalPages)
		return
	}
	fmt.Fprintf(w, "%-4s %-5s %-30s %-25s %-12s %-10s\n", "#", "ID", "Title", "Author", "Category", "Status")
	fmt.Fprintln(w, strings.Repeat("-", 92))
	offset := page.Offset(perPage)
	for i, b := range page.Books {
		status := "Available"
		if !b.Available {
			status = "Borrowed"
		}
		fmt.Fprintf(w, "%-4d %-5d %-30s %-25s %-12s %-10s\n",
			offset+i+1,
			b.ID,
			truncateString(b.Title, 30),
			truncateString(b.Author, 25),
			truncateString(b.Category, 12),
			status)
	}
	fmt.Fprintf(w, "Page %d of %d (%d matching)\n", page.Page, page.TotalPages, page.Matched)
}

func printCounters(w io.Writer, c library.Counters) {
	fmt.Fprintf(w, "Total books:     %d\n", c.Total)
	fmt.Fprintf(w, "Available:       %d\n", c.Available)
	fmt.Fprintf(w, "Borrowed:        %d\n", c.Borrowed)
	fmt.Fprintf(w, "Overdue loans:   %d\n", c.Overdue)
}

func printOverdue(w io.Writer, rows []library.OverdueRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No overdue books.")
		return
	}
	fmt.Fprintf(w, "%-30s %-20s %-17s %s\n", "Book", "User", "Borrowed", "Days Overdue")
	fmt.Fprintln(w, strings.Repeat("-", 82))
	for _, r := range rows {
		fmt.Fprintf(w, "%-30s %-20s %-17s %d\n",
			truncateString(r.BookTitle, 30),
			truncateString(r.UserName, 20),
			formatDate(r.BorrowDate),
			r.DaysOverdue)
	}
}

func printTransactions(w io.Writer, rows []library.TransactionRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No transactions yet.")
		return
	}
	fmt.Fprintf(w, "%-5s %-30s %-20s %-17s %-17s %s\n", "ID", "Book", "User", "Borrowed", "Returned", "")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, r := range rows {
		flag := ""
		if r.Overdue {
			flag = "OVERDUE"
		}
		fmt.Fprintf(w, "%-5d %-30s %-20s %-17s %-17s %s\n",
			r.ID,
			truncateString(r.BookTitle, 30),
			truncateString(r.UserName, 20),
			formatDate(r.BorrowDate),
			formatReturn(r.ReturnDate),
			flag)
	}
}

func printHistory(w io.Writer, h library.BookHistory) {
	fmt.Fprintf(w, "History for %q\n", h.Title)
	if len(h.Rows) == 0 {
		fmt.Fprintln(w, "No borrow history found for this book.")
		return
	}
	fmt.Fprintf(w, "%-22s %-6s %-17s %-17s %s\n", "User", "Count", "Borrowed", "Returned", "Days")
	fmt.Fprintln(w, strings.Repeat("-", 72))
	for _, r := range h.Rows {
		name := truncateString(r.UserName, 20)
		if r.TopBorrower {
			name += " *"
		}
		days := fmt.Sprintf("%d", r.Days)
		if r.Long {
			days += " !"
		}
		fmt.Fprintf(w, "%-22s %-6d %-17s %-17s %s\n",
			name, r.BorrowCount, formatDate(r.BorrowDate), formatReturn(r.ReturnDate), days)
	}
	fmt.Fprintln(w, "* most frequent borrower   ! longer than", library.LongLoanDays, "days")
}

func printStudents(w io.Writer, rows []library.StudentRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No students registered.")
		return
	}
	fmt.Fprintf(w, "%-5s %-22s %-8s %s\n", "ID", "Username", "On loan", "Total")
	fmt.Fprintln(w, strings.Repeat("-", 45))
	for _, r := range rows {
		name := truncateString(r.Username, 20)
		if r.TopBorrower {
			name += " *"
		}
		fmt.Fprintf(w, "%-5d %-22s %-8d %d\n", r.ID, name, r.OnLoan, r.Borrowed)
	}
}

func printUsers(w io.Writer, users []library.User) {
	fmt.Fprintf(w, "%-5s %-22s %s\n", "ID", "Username", "Role")
	fmt.Fprintln(w, strings.Repeat("-", 40))
	for _, u := range users {
		fmt.Fprintf(w, "%-5d %-22s %s\n", u.ID, truncateString(u.Username, 22), u.Role)
	}
}

func printProfile(w io.Writer, p library.Profile) {
	fmt.Fprintf(w, "Profile: %s (%s)\n", p.User.Username, p.User.Role)

	fmt.Fprintln(w, "\nCurrently borrowed:")
	if len(p.Current) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, l := range p.Current {
		flag := ""
		if l.Overdue {
			flag = "  OVERDUE"
		}
		fmt.Fprintf(w, "  [%d] %-30s since %s (%d days)%s\n",
			l.BookID, truncateString(l.BookTitle, 30), formatDate(l.BorrowDate), l.Days, flag)
	}

	fmt.Fprintln(w, "\nReturned:")
	if len(p.Returned) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, l := range p.Returned {
		fmt.Fprintf(w, "  [%d] %-30s %s -> %s (%d days)\n",
			l.BookID, truncateString(l.BookTitle, 30), formatDate(l.BorrowDate), formatReturn(l.ReturnDate), l.Days)
	}
}

func truncateString(s string, maxLength int) string {
	r := []rune(s)
	if len(r) <= maxLength {
		return s
	}
	return string(r[:maxLength-3]) + "..."
}
