package library

import "context"

// Store is the record store the ledger and manager depend on. Missing records
// are reported as ErrNotFound. Transactions can be added and updated but never
// removed.
type Store interface {
	GetUser(ctx context.Context, id int64) (User, error)
	AllUsers(ctx context.Context) ([]User, error)
	UserByUsername(ctx context.Context, username string) (User, error)
	InsertUser(ctx context.Context, u User) (int64, error)
	PutUser(ctx context.Context, u User) error
	RemoveUser(ctx context.Context, id int64) error

	GetBook(ctx context.Context, id int64) (Book, error)
	AllBooks(ctx context.Context) ([]Book, error)
	BooksByCategory(ctx context.Context, category string) ([]Book, error)
	InsertBook(ctx context.Context, b Book) (int64, error)
	PutBook(ctx context.Context, b Book) error
	RemoveBook(ctx context.Context, id int64) error

	GetTransaction(ctx context.Context, id int64) (Transaction, error)
	AllTransactions(ctx context.Context) ([]Transaction, error)
	TransactionsByBook(ctx context.Context, bookID int64) ([]Transaction, error)
	TransactionsByUser(ctx context.Context, userID int64) ([]Transaction, error)
	InsertTransaction(ctx context.Context, t Transaction) (int64, error)
	PutTransaction(ctx context.Context, t Transaction) error

	FindBooks(ctx context.Context, q BookQuery) (BookPage, error)
	Categories(ctx context.Context) ([]string, error)

	// Atomic runs fn against a view of the store bound to one storage
	// transaction. A non-nil error from fn rolls everything back.
	Atomic(ctx context.Context, fn func(Store) error) error
}
