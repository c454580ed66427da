package library

import (
	"errors"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrBookUnavailable   = errors.New("book is already borrowed")
	ErrNoOpenLoan        = errors.New("no open loan")
	ErrAuthFailure       = errors.New("invalid username or password")
	ErrValidation        = errors.New("validation failed")
	ErrDuplicateUsername = errors.New("username already exists")
	ErrUnauthorized      = errors.New("not allowed")
)

// UserMessage turns an error into the short line the shell shows. Unknown
// errors keep their own text.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthFailure):
		return "Invalid username or password."
	case errors.Is(err, ErrBookUnavailable):
		return "This book is already borrowed."
	case errors.Is(err, ErrNoOpenLoan):
		return "You have no open loan for this book."
	case errors.Is(err, ErrDuplicateUsername):
		return "Username already exists."
	case errors.Is(err, ErrUnauthorized):
		return "You are not allowed to do that."
	case errors.Is(err, ErrNotFound):
		return "No such book or user."
	case errors.Is(err, ErrValidation):
		reason := strings.TrimSuffix(err.Error(), ": "+ErrValidation.Error())
		if reason == ErrValidation.Error() {
			return "Invalid input."
		}
		return "Invalid input: " + reason + "."
	}
	return err.Error()
}
