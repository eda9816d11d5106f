package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidISBN(t *testing.T) {
	tests := []struct {
		name  string
		isbn  string
		valid bool
	}{
		{name: "isbn-10", isbn: "0306406152", valid: true},
		{name: "isbn-10 with hyphens", isbn: "0-306-40615-2", valid: true},
		{name: "isbn-10 with X check digit", isbn: "080442957X", valid: true},
		{name: "isbn-10 lowercase x", isbn: "080442957x", valid: true},
		{name: "isbn-13", isbn: "9780306406157", valid: true},
		{name: "isbn-13 with hyphens", isbn: "978-0-306-40615-7", valid: true},
		{name: "isbn-10 bad checksum", isbn: "0306406153", valid: false},
		{name: "isbn-13 bad checksum", isbn: "9780306406158", valid: false},
		{name: "X not in last position", isbn: "03064061X2", valid: false},
		{name: "letters", isbn: "978030640615a", valid: false},
		{name: "wrong length", isbn: "12345", valid: false},
		{name: "empty", isbn: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidISBN(tt.isbn)
			if got != tt.valid {
				t.Fatalf("IsValidISBN(%q) = %v, want %v", tt.isbn, got, tt.valid)
			}
		})
	}
}

func TestNormalizeISBN(t *testing.T) {
	assert.Equal(t, "080442957X", NormalizeISBN("0-8044 2957-x"))
}

func TestParseID(t *testing.T) {
	id, err := ParseID(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, raw := range []string{"", "0", "-3", "abc", "1.5"} {
		_, err := ParseID(raw)
		assert.ErrorIs(t, err, ErrInvalidID, raw)
	}
}

type signupRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	ISBN     string `json:"isbn,omitempty" validate:"omitempty,isbn"`
}

func TestStruct(t *testing.T) {
	ok := signupRequest{Name: "Ann", Email: "ann@example.com", Password: "password1", ISBN: "9780306406157"}
	require.NoError(t, Struct(ok))

	err := Struct(signupRequest{Email: "not-an-email", Password: "short", ISBN: "123"})
	require.Error(t, err)

	var errs Errors
	require.ErrorAs(t, err, &errs)

	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		fields[fe.Field] = fe.Message
	}
	assert.Equal(t, "name is required", fields["name"])
	assert.Equal(t, "email must be a valid email address", fields["email"])
	assert.Equal(t, "password must be at least 8", fields["password"])
	assert.Equal(t, "isbn must be a valid ISBN-10 or ISBN-13", fields["isbn"])
}
