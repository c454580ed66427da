package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorize(t *testing.T) {
	allOps := []Operation{
		OpBrowse, OpBorrow, OpReturn, OpAddBook, OpDeleteBook,
		OpManageAdmins, OpViewAllHistory, OpViewAnyProfile,
	}
	allowed := map[Role][]Operation{
		RoleStudent:    {OpBrowse, OpBorrow, OpReturn},
		RoleLibrarian:  {OpBrowse, OpAddBook, OpViewAllHistory, OpViewAnyProfile},
		RoleAdmin:      {OpBrowse, OpAddBook, OpDeleteBook, OpViewAllHistory, OpViewAnyProfile},
		RoleSuperAdmin: {OpBrowse, OpAddBook, OpDeleteBook, OpManageAdmins, OpViewAllHistory, OpViewAnyProfile},
	}

	for role, ops := range allowed {
		for _, op := range allOps {
			assert.Equal(t, contains(ops, op), Authorize(role, op), "%s / %s", role, op)
		}
	}
	assert.False(t, Authorize(Role("guest"), OpBrowse))
}

func contains(ops []Operation, op Operation) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

func TestAuthenticate(t *testing.T) {
	hash, err := HashPassword("123")
	require.NoError(t, err)
	users := []User{
		{ID: 1, Username: "student", PasswordHash: hash, Role: RoleStudent},
	}

	u, err := Authenticate(users, "student", "123")
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)

	_, wrongPassword := Authenticate(users, "student", "1234")
	_, unknownUser := Authenticate(users, "nobody", "123")
	_, wrongCase := Authenticate(users, "Student", "123")

	assert.ErrorIs(t, wrongPassword, ErrAuthFailure)
	assert.Equal(t, wrongPassword, unknownUser, "unknown user and wrong password look the same")
	assert.Equal(t, wrongPassword, wrongCase)
	assert.Equal(t, UserMessage(wrongPassword), UserMessage(unknownUser))
}

func TestValidation(t *testing.T) {
	assert.ErrorIs(t, ValidatePassword("abc"), ErrValidation)
	assert.NoError(t, ValidatePassword("abcd"))

	assert.ErrorIs(t, ValidateUsername("  ab  "), ErrValidation)
	assert.NoError(t, ValidateUsername("bob"))

	r, err := ParseRole("super-admin")
	require.NoError(t, err)
	assert.Equal(t, RoleSuperAdmin, r)
	_, err = ParseRole("root")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCanDeleteUser(t *testing.T) {
	root := User{ID: 1, Username: "superadmin", Role: RoleSuperAdmin}
	second := User{ID: 2, Username: "backup", Role: RoleSuperAdmin}
	lib := User{ID: 3, Username: "librarian", Role: RoleLibrarian}
	stud := User{ID: 4, Username: "student", Role: RoleStudent}
	users := []User{root, second, lib, stud}

	tests := []struct {
		name   string
		users  []User
		actor  User
		target User
		ok     bool
	}{
		{"super-admin removes librarian", users, root, lib, true},
		{"super-admin removes student", users, root, stud, true},
		{"librarian cannot manage accounts", users, lib, stud, false},
		{"no self-delete", users, root, root, false},
		{"super-admins are protected", users, root, second, false},
		{"last super-admin must remain", []User{root, lib}, root, root, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CanDeleteUser(tt.users, tt.actor, tt.target)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestConfirmed(t *testing.T) {
	calls := 0
	action := func() error { calls++; return nil }

	ran, err := Confirmed(func(string) bool { return false }, "Delete?", action)
	assert.NoError(t, err)
	assert.False(t, ran)
	assert.Zero(t, calls)

	ran, err = Confirmed(nil, "Delete?", action)
	assert.NoError(t, err)
	assert.False(t, ran)

	var asked string
	ran, err = Confirmed(func(p string) bool { asked = p; return true }, "Delete?", action)
	assert.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "Delete?", asked)

	ran, err = Confirmed(Always, "Delete?", func() error { return ErrNotFound })
	assert.True(t, ran)
	assert.ErrorIs(t, err, ErrNotFound)
}
