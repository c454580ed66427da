package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"library-ledger/library"
)

// shell is the interactive session: a login prompt followed by a command loop
// whose commands depend on the user's role.
type shell struct {
	ctx     context.Context
	mgr     *library.Manager
	sc      *bufio.Scanner
	out     io.Writer
	secret  func(prompt string) (string, error)
	confirm library.Decision
	sess    library.Session
	query   library.BookQuery
}

func newShell(ctx context.Context, mgr *library.Manager, in io.Reader, out io.Writer) *shell {
	s := &shell{ctx: ctx, mgr: mgr, sc: bufio.NewScanner(in), out: out}
	s.secret = s.readLine
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		s.secret = func(prompt string) (string, error) { return readPassword(out, f, prompt) }
	}
	s.confirm = s.askYesNo

	mgr.OnLoanChanged(func(c library.LoanChange) {
		if c.Transaction.Open() {
			fmt.Fprintf(s.out, "Borrowed '%s'. Please return it within %d days.\n", c.Book.Title, mgr.DueDays())
			return
		}
		fmt.Fprintf(s.out, "Returned '%s'. It is available again.\n", c.Book.Title)
	})
	mgr.OnUserChanged(func(u library.User) {
		fmt.Fprintf(s.out, "Account %s updated.\n", u.Username)
	})
	return s
}

// readPassword reads a password with masking.
func readPassword(out io.Writer, f *os.File, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	bytePassword, err := term.ReadPassword(int(f.Fd()))
	if err != nil {
		return "", err
	}
	fmt.Fprintln(out)
	return string(bytePassword), nil
}

func (s *shell) readLine(prompt string) (string, error) {
	fmt.Fprint(s.out, prompt)
	if !s.sc.Scan() {
		if err := s.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(s.sc.Text()), nil
}

func (s *shell) readID(prompt string) (int64, bool) {
	text, err := s.readLine(prompt)
	if err != nil {
		return 0, false
	}
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		fmt.Fprintf(s.out, "Invalid ID: %s\n", text)
		return 0, false
	}
	return id, true
}

func (s *shell) askYesNo(prompt string) bool {
	answer, err := s.readLine(prompt + " [y/N]: ")
	if err != nil {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

func (s *shell) fail(err error) {
	fmt.Fprintf(s.out, "Error: %s\n", library.UserMessage(err))
}

// run logs in and processes commands until exit or end of input.
func (s *shell) run() error {
	fmt.Fprintln(s.out, "Welcome to the Library Management System!")
	for {
		if err := s.login(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if done := s.loop(); done {
			fmt.Fprintln(s.out, "Goodbye!")
			return nil
		}
	}
}

func (s *shell) login() error {
	for {
		username, err := s.readLine("\nUsername: ")
		if err != nil {
			return err
		}
		password, err := s.secret("Password: ")
		if err != nil {
			return err
		}
		sess, err := s.mgr.Login(s.ctx, username, password)
		if errors.Is(err, library.ErrAuthFailure) {
			s.fail(err)
			continue
		}
		if err != nil {
			return err
		}
		s.sess = sess
		s.query = library.BookQuery{Page: 1}
		fmt.Fprintf(s.out, "Logged in as %s (%s).\n", sess.User.Username, sess.User.Role)
		s.help()
		return nil
	}
}

type command struct {
	name string
	op   *library.Operation
	run  func(*shell)
}

func opPtr(op library.Operation) *library.Operation { return &op }

var commands = []command{
	{"list books", opPtr(library.OpBrowse), (*shell).listBooks},
	{"next", opPtr(library.OpBrowse), (*shell).nextPage},
	{"prev", opPtr(library.OpBrowse), (*shell).prevPage},
	{"categories", opPtr(library.OpBrowse), (*shell).categories},
	{"borrow", opPtr(library.OpBorrow), (*shell).borrow},
	{"return", opPtr(library.OpReturn), (*shell).giveBack},
	{"my books", nil, (*shell).myBooks},
	{"add book", opPtr(library.OpAddBook), (*shell).addBook},
	{"delete book", opPtr(library.OpDeleteBook), (*shell).deleteBook},
	{"dashboard", opPtr(library.OpViewAllHistory), (*shell).dashboard},
	{"overdue", opPtr(library.OpViewAllHistory), (*shell).overdue},
	{"transactions", opPtr(library.OpViewAllHistory), (*shell).transactions},
	{"history", opPtr(library.OpViewAllHistory), (*shell).history},
	{"students", opPtr(library.OpViewAllHistory), (*shell).students},
	{"profile", opPtr(library.OpViewAnyProfile), (*shell).profile},
	{"staff", opPtr(library.OpManageAdmins), (*shell).staff},
	{"add user", opPtr(library.OpManageAdmins), (*shell).addUser},
	{"delete user", opPtr(library.OpManageAdmins), (*shell).deleteUser},
	{"change password", nil, (*shell).changePassword},
	{"check", opPtr(library.OpViewAllHistory), (*shell).check},
}

func (s *shell) allowed(c command) bool {
	return c.op == nil || s.sess.Can(*c.op)
}

func (s *shell) help() {
	var names []string
	for _, c := range commands {
		if s.allowed(c) {
			names = append(names, c.name)
		}
	}
	fmt.Fprintln(s.out, "Available commands:")
	fmt.Fprintf(s.out, "  %s\n", strings.Join(names, ", "))
	fmt.Fprintln(s.out, "  help, logout, exit")
}

// loop returns true when the user asked to exit or input ended, false on
// logout.
func (s *shell) loop() bool {
	for {
		cmd, err := s.readLine("\n> ")
		if err != nil {
			return true
		}
		switch cmd {
		case "":
			continue
		case "help":
			s.help()
			continue
		case "logout":
			fmt.Fprintf(s.out, "Logged out %s.\n", s.sess.User.Username)
			s.sess = library.Session{}
			return false
		case "exit":
			return true
		}

		found := false
		for _, c := range commands {
			if c.name != cmd {
				continue
			}
			found = true
			if !s.allowed(c) {
				s.fail(library.ErrUnauthorized)
				break
			}
			c.run(s)
			break
		}
		if !found {
			fmt.Fprintln(s.out, "Unknown command. Type 'help' for the list of commands.")
		}
	}
}

// ------------------ Catalog ------------------

func (s *shell) listBooks() {
	search, err := s.readLine("Search title/author (optional): ")
	if err != nil {
		return
	}
	category, err := s.readLine("Category (optional): ")
	if err != nil {
		return
	}
	avail, err := s.readLine("Availability [all/available/borrowed]: ")
	if err != nil {
		return
	}
	if avail == "all" {
		avail = library.AnyAvailability
	}
	s.query = library.BookQuery{Search: search, Category: category, Availability: avail, Page: 1}
	s.showPage()
}

func (s *shell) nextPage() {
	s.query.Page++
	s.showPage()
}

func (s *shell) prevPage() {
	if s.query.Page > 1 {
		s.query.Page--
	}
	s.showPage()
}

func (s *shell) showPage() {
	page, err := s.mgr.Browse(s.ctx, s.sess, s.query)
	if err != nil {
		s.fail(err)
		return
	}
	s.query.Page = page.Page
	printBookPage(s.out, page, s.mgr.BooksPerPage())
}

func (s *shell) categories() {
	cats, err := s.mgr.Categories(s.ctx, s.sess)
	if err != nil {
		s.fail(err)
		return
	}
	if len(cats) == 0 {
		fmt.Fprintln(s.out, "No categories yet.")
		return
	}
	fmt.Fprintln(s.out, strings.Join(cats, ", "))
}

func (s *shell) addBook() {
	title, err := s.readLine("Title: ")
	if err != nil {
		return
	}
	author, err := s.readLine("Author: ")
	if err != nil {
		return
	}
	category, err := s.readLine("Category: ")
	if err != nil {
		return
	}
	b, err := s.mgr.AddBook(s.ctx, s.sess, title, author, category)
	if err != nil {
		s.fail(err)
		return
	}
	fmt.Fprintf(s.out, "Added book '%s' with ID %d.\n", b.Title, b.ID)
}

func (s *shell) deleteBook() {
	id, ok := s.readID("Book ID: ")
	if !ok {
		return
	}
	b, err := s.mgr.Book(s.ctx, s.sess, id)
	if err != nil {
		s.fail(err)
		return
	}
	ran, err := library.Confirmed(s.confirm, fmt.Sprintf("Delete '%s'? Its loan history is kept.", b.Title), func() error {
		return s.mgr.DeleteBook(s.ctx, s.sess, id)
	})
	switch {
	case err != nil:
		s.fail(err)
	case !ran:
		fmt.Fprintln(s.out, "Cancelled.")
	default:
		fmt.Fprintf(s.out, "Deleted '%s'.\n", b.Title)
	}
}

// ------------------ Circulation ------------------

func (s *shell) borrow() {
	id, ok := s.readID("Book ID: ")
	if !ok {
		return
	}
	if _, err := s.mgr.Borrow(s.ctx, s.sess, id); err != nil {
		s.fail(err)
	}
}

func (s *shell) giveBack() {
	id, ok := s.readID("Book ID: ")
	if !ok {
		return
	}
	if _, err := s.mgr.Return(s.ctx, s.sess, id); err != nil {
		s.fail(err)
	}
}

func (s *shell) myBooks() {
	p, err := s.mgr.Profile(s.ctx, s.sess, s.sess.User.ID)
	if err != nil {
		s.fail(err)
		return
	}
	printProfile(s.out, p)
}

// ------------------ Reports ------------------

func (s *shell) dashboard() {
	c, err := s.mgr.Dashboard(s.ctx, s.sess)
	if err != nil {
		s.fail(err)
		return
	}
	printCounters(s.out, c)
}

func (s *shell) overdue() {
	rows, err := s.mgr.OverdueReport(s.ctx, s.sess)
	if err != nil {
		s.fail(err)
		return
	}
	printOverdue(s.out, rows)
}

func (s *shell) transactions() {
	rows, err := s.mgr.TransactionsReport(s.ctx, s.sess)
	if err != nil {
		s.fail(err)
		return
	}
	printTransactions(s.out, rows)
}

func (s *shell) history() {
	id, ok := s.readID("Book ID: ")
	if !ok {
		return
	}
	h, err := s.mgr.BookHistory(s.ctx, s.sess, id)
	if err != nil {
		s.fail(err)
		return
	}
	printHistory(s.out, h)
}

func (s *shell) students() {
	rows, err := s.mgr.Students(s.ctx, s.sess)
	if err != nil {
		s.fail(err)
		return
	}
	printStudents(s.out, rows)
}

func (s *shell) profile() {
	id, ok := s.readID("User ID: ")
	if !ok {
		return
	}
	p, err := s.mgr.Profile(s.ctx, s.sess, id)
	if err != nil {
		s.fail(err)
		return
	}
	printProfile(s.out, p)
}

func (s *shell) check() {
	bad, err := s.mgr.Check(s.ctx)
	if err != nil {
		s.fail(err)
		return
	}
	if len(bad) == 0 {
		fmt.Fprintln(s.out, "All books agree with their loans.")
		return
	}
	fmt.Fprintf(s.out, "Books out of sync with their loans: %v\n", bad)
}

// ------------------ Accounts ------------------

func (s *shell) staff() {
	users, err := s.mgr.Staff(s.ctx, s.sess)
	if err != nil {
		s.fail(err)
		return
	}
	printUsers(s.out, users)
}

func (s *shell) addUser() {
	username, err := s.readLine("Username: ")
	if err != nil {
		return
	}
	password, err := s.secret(fmt.Sprintf("Password for %s: ", username))
	if err != nil {
		return
	}
	roleText, err := s.readLine("Role [librarian/student]: ")
	if err != nil {
		return
	}
	if roleText == "" {
		roleText = string(library.RoleLibrarian)
	}
	role, err := library.ParseRole(roleText)
	if err != nil {
		s.fail(err)
		return
	}
	u, err := s.mgr.CreateUser(s.ctx, s.sess, username, password, role)
	if err != nil {
		s.fail(err)
		return
	}
	fmt.Fprintf(s.out, "Created %s %s with ID %d.\n", u.Role, u.Username, u.ID)
}

func (s *shell) deleteUser() {
	id, ok := s.readID("User ID: ")
	if !ok {
		return
	}
	ran, err := library.Confirmed(s.confirm, fmt.Sprintf("Delete user %d? Their loan history is kept.", id), func() error {
		return s.mgr.DeleteUser(s.ctx, s.sess, id)
	})
	switch {
	case err != nil:
		s.fail(err)
	case !ran:
		fmt.Fprintln(s.out, "Cancelled.")
	}
}

func (s *shell) changePassword() {
	password, err := s.secret("New password: ")
	if err != nil {
		return
	}
	again, err := s.secret("Repeat new password: ")
	if err != nil {
		return
	}
	if password != again {
		fmt.Fprintln(s.out, "Error: passwords do not match.")
		return
	}
	if err := s.mgr.ChangePassword(s.ctx, s.sess, s.sess.User.ID, password); err != nil {
		s.fail(err)
	}
}
