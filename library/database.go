package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3" // dialect registration
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

const (
	dialectSQLite = "sqlite3"

	tableBooks = "books"

	colID         = "id"
	colTitle      = "title"
	colAuthor     = "author"
	colCategory   = "category"
	colAvailable  = "available"
	colBorrowerID = "borrower_id"
)

// Database is the SQLite implementation of Store.
type Database struct {
	db *sqlx.DB        // nil for the view handed out by Atomic
	x  sqlx.ExtContext // db, or the open transaction
}

var _ Store = (*Database)(nil)

// NewDatabase opens (or creates) the SQLite database at dbPath and applies
// schema migrations.
func NewDatabase(dbPath string) (*Database, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// busy_timeout for the shell and the watch job sharing a file; immediate
	// transactions so a borrow takes the write lock before it reads.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate", dbPath)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Database{db: db, x: db}, nil
}

// Close closes the DB.
func (d *Database) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sqlx.DB) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Transactions carry no foreign keys: loan history outlives deleted
	// books and users.
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            username TEXT NOT NULL,
            password_hash TEXT NOT NULL,
            role TEXT NOT NULL
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username ON users(username);`,
		`CREATE TABLE IF NOT EXISTS books (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            title TEXT NOT NULL,
            author TEXT NOT NULL,
            category TEXT NOT NULL,
            available BOOLEAN NOT NULL DEFAULT 1,
            borrower_id INTEGER
        );`,
		`CREATE INDEX IF NOT EXISTS idx_books_category ON books(category);`,
		`CREATE TABLE IF NOT EXISTS transactions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            book_id INTEGER NOT NULL,
            user_id INTEGER NOT NULL,
            borrow_date DATETIME NOT NULL,
            return_date DATETIME
        );`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_book_id ON transactions(book_id);`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user_id ON transactions(user_id);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Atomicity
// ---------------------------------------------------------------------------

// Atomic runs fn inside one SQLite transaction. Nested calls join the
// transaction that is already open. Anything short of a commit, a panic in fn
// included, rolls back.
func (d *Database) Atomic(ctx context.Context, fn func(Store) error) error {
	if d.db == nil {
		return fn(d)
	}
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&Database{x: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

const selectUser = `SELECT id, username, password_hash, role FROM users`

func (d *Database) GetUser(ctx context.Context, id int64) (User, error) {
	var u User
	if err := sqlx.GetContext(ctx, d.x, &u, selectUser+` WHERE id=?`, id); err != nil {
		return User{}, notFound(err, "user %d", id)
	}
	return u, nil
}

func (d *Database) AllUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := sqlx.SelectContext(ctx, d.x, &users, selectUser+` ORDER BY id`); err != nil {
		return nil, err
	}
	return users, nil
}

// UserByUsername uses the unique username index. Matching is exact and
// case-sensitive (SQLite's default BINARY collation).
func (d *Database) UserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	if err := sqlx.GetContext(ctx, d.x, &u, selectUser+` WHERE username=?`, username); err != nil {
		return User{}, notFound(err, "user %q", username)
	}
	return u, nil
}

func (d *Database) InsertUser(ctx context.Context, u User) (int64, error) {
	res, err := d.x.ExecContext(ctx, `INSERT INTO users(username,password_hash,role) VALUES(?,?,?)`,
		u.Username, u.PasswordHash, string(u.Role))
	if err != nil {
		return 0, mapConstraint(err)
	}
	return res.LastInsertId()
}

func (d *Database) PutUser(ctx context.Context, u User) error {
	_, err := d.x.ExecContext(ctx, `INSERT INTO users(id,username,password_hash,role) VALUES(?,?,?,?)
        ON CONFLICT(id) DO UPDATE SET username=excluded.username, password_hash=excluded.password_hash, role=excluded.role`,
		u.ID, u.Username, u.PasswordHash, string(u.Role))
	return mapConstraint(err)
}

func (d *Database) RemoveUser(ctx context.Context, id int64) error {
	return d.remove(ctx, `DELETE FROM users WHERE id=?`, id, "user")
}

// ---------------------------------------------------------------------------
// Books
// ---------------------------------------------------------------------------

const selectBook = `SELECT id, title, author, category, available, COALESCE(borrower_id,0) AS borrower_id FROM books`

func (d *Database) GetBook(ctx context.Context, id int64) (Book, error) {
	var b Book
	if err := sqlx.GetContext(ctx, d.x, &b, selectBook+` WHERE id=?`, id); err != nil {
		return Book{}, notFound(err, "book %d", id)
	}
	return b, nil
}

func (d *Database) AllBooks(ctx context.Context) ([]Book, error) {
	var books []Book
	if err := sqlx.SelectContext(ctx, d.x, &books, selectBook+` ORDER BY id`); err != nil {
		return nil, err
	}
	return books, nil
}

func (d *Database) BooksByCategory(ctx context.Context, category string) ([]Book, error) {
	var books []Book
	if err := sqlx.SelectContext(ctx, d.x, &books, selectBook+` WHERE category=? ORDER BY id`, category); err != nil {
		return nil, err
	}
	return books, nil
}

func (d *Database) InsertBook(ctx context.Context, b Book) (int64, error) {
	res, err := d.x.ExecContext(ctx, `INSERT INTO books(title,author,category,available,borrower_id) VALUES(?,?,?,?,?)`,
		b.Title, b.Author, b.Category, b.Available, nullID(b.BorrowerID))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (d *Database) PutBook(ctx context.Context, b Book) error {
	_, err := d.x.ExecContext(ctx, `INSERT INTO books(id,title,author,category,available,borrower_id) VALUES(?,?,?,?,?,?)
        ON CONFLICT(id) DO UPDATE SET title=excluded.title, author=excluded.author, category=excluded.category,
            available=excluded.available, borrower_id=excluded.borrower_id`,
		b.ID, b.Title, b.Author, b.Category, b.Available, nullID(b.BorrowerID))
	return err
}

func (d *Database) RemoveBook(ctx context.Context, id int64) error {
	return d.remove(ctx, `DELETE FROM books WHERE id=?`, id, "book")
}

// FindBooks returns one page of the filtered catalog, ordered by id. The
// requested page is clamped to the available range.
func (d *Database) FindBooks(ctx context.Context, q BookQuery) (BookPage, error) {
	q, err := q.Normalize()
	if err != nil {
		return BookPage{}, err
	}

	filtered := goqu.Dialect(dialectSQLite).From(tableBooks).Prepared(true)
	if q.Search != "" {
		term := strings.ToLower(q.Search)
		filtered = filtered.Where(goqu.Or(
			goqu.L("instr(lower(title), ?) > 0", term),
			goqu.L("instr(lower(author), ?) > 0", term),
		))
	}
	if q.Category != "" {
		filtered = filtered.Where(goqu.C(colCategory).Eq(q.Category))
	}
	switch q.Availability {
	case OnlyAvailable:
		filtered = filtered.Where(goqu.C(colAvailable).Eq(1))
	case OnlyBorrowed:
		filtered = filtered.Where(goqu.C(colAvailable).Eq(0))
	}

	countSQL, countArgs, err := filtered.Select(goqu.COUNT(goqu.Star())).ToSQL()
	if err != nil {
		return BookPage{}, fmt.Errorf("build count query: %w", err)
	}
	var matched int
	if err := sqlx.GetContext(ctx, d.x, &matched, countSQL, countArgs...); err != nil {
		return BookPage{}, err
	}

	page := BookPage{Matched: matched, TotalPages: TotalPages(matched, q.PerPage)}
	page.Page = ClampPage(q.Page, page.TotalPages)

	pageSQL, pageArgs, err := filtered.
		Select(
			goqu.C(colID), goqu.C(colTitle), goqu.C(colAuthor), goqu.C(colCategory), goqu.C(colAvailable),
			goqu.COALESCE(goqu.C(colBorrowerID), 0).As(colBorrowerID),
		).
		Order(goqu.C(colID).Asc()).
		Limit(uint(q.PerPage)).
		Offset(uint(page.Offset(q.PerPage))).
		ToSQL()
	if err != nil {
		return BookPage{}, fmt.Errorf("build page query: %w", err)
	}
	if err := sqlx.SelectContext(ctx, d.x, &page.Books, pageSQL, pageArgs...); err != nil {
		return BookPage{}, err
	}
	return page, nil
}

// Categories lists the distinct book categories in sorted order.
func (d *Database) Categories(ctx context.Context) ([]string, error) {
	query, args, err := goqu.Dialect(dialectSQLite).
		From(tableBooks).
		Prepared(true).
		Select(goqu.C(colCategory)).
		Distinct().
		Order(goqu.C(colCategory).Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build categories query: %w", err)
	}
	var categories []string
	if err := sqlx.SelectContext(ctx, d.x, &categories, query, args...); err != nil {
		return nil, err
	}
	return categories, nil
}

// ---------------------------------------------------------------------------
// Transactions
// ---------------------------------------------------------------------------

const selectTransaction = `SELECT id, book_id, user_id, borrow_date, return_date FROM transactions`

func (d *Database) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	var t Transaction
	if err := sqlx.GetContext(ctx, d.x, &t, selectTransaction+` WHERE id=?`, id); err != nil {
		return Transaction{}, notFound(err, "transaction %d", id)
	}
	return t, nil
}

func (d *Database) AllTransactions(ctx context.Context) ([]Transaction, error) {
	return d.selectTransactions(ctx, selectTransaction+` ORDER BY id`)
}

func (d *Database) TransactionsByBook(ctx context.Context, bookID int64) ([]Transaction, error) {
	return d.selectTransactions(ctx, selectTransaction+` WHERE book_id=? ORDER BY id`, bookID)
}

func (d *Database) TransactionsByUser(ctx context.Context, userID int64) ([]Transaction, error) {
	return d.selectTransactions(ctx, selectTransaction+` WHERE user_id=? ORDER BY id`, userID)
}

func (d *Database) InsertTransaction(ctx context.Context, t Transaction) (int64, error) {
	res, err := d.x.ExecContext(ctx, `INSERT INTO transactions(book_id,user_id,borrow_date,return_date) VALUES(?,?,?,?)`,
		t.BookID, t.UserID, t.BorrowDate.UTC(), utcOrNil(t.ReturnDate))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (d *Database) PutTransaction(ctx context.Context, t Transaction) error {
	_, err := d.x.ExecContext(ctx, `INSERT INTO transactions(id,book_id,user_id,borrow_date,return_date) VALUES(?,?,?,?,?)
        ON CONFLICT(id) DO UPDATE SET book_id=excluded.book_id, user_id=excluded.user_id,
            borrow_date=excluded.borrow_date, return_date=excluded.return_date`,
		t.ID, t.BookID, t.UserID, t.BorrowDate.UTC(), utcOrNil(t.ReturnDate))
	return err
}

func (d *Database) selectTransactions(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	var txs []Transaction
	if err := sqlx.SelectContext(ctx, d.x, &txs, query, args...); err != nil {
		return nil, err
	}
	return txs, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (d *Database) remove(ctx context.Context, query string, id int64, kind string) error {
	res, err := d.x.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	return nil
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
	}
	return err
}

// mapConstraint turns the unique username violation into ErrDuplicateUsername.
func mapConstraint(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%v: %w", sqliteErr, ErrDuplicateUsername)
	}
	return err
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func utcOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
