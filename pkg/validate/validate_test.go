package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
	Phone    string `validate:"max=32"`
}

func TestStruct_Valid(t *testing.T) {
	require.NoError(t, Struct(signup{Email: "alice@example.com", Password: "password123"}))
}

func TestStruct_Messages(t *testing.T) {
	err := Struct(signup{Email: "nope", Password: "short"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email must be a valid email")
	assert.Contains(t, err.Error(), "password must be at least 8 characters")

	err = Struct(signup{Email: "alice@example.com"})
	require.Error(t, err)
	assert.Equal(t, "password is required", err.Error())
}
