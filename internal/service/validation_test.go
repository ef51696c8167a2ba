package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateStruct_UsesWireNames(t *testing.T) {
	got := validateStruct(ProfileInput{FullName: "Al", Email: ""})
	require.Equal(t, []string{
		"Full Name must be at least 3 characters long.",
		"Email is required.",
	}, got)
}

func TestValidateStruct_Valid(t *testing.T) {
	require.Nil(t, validateStruct(SignupInput{
		Username: "alice", Email: "a@example.com", FullName: "Alice", Password: "secret1",
	}))
}

func TestLoginInput_Key(t *testing.T) {
	require.Equal(t, "bob", LoginInput{Username: " bob ", Email: "x@y.z"}.Key())
	require.Equal(t, "id", LoginInput{Identifier: "id", Username: "bob"}.Key())
	require.Equal(t, "x@y.z", LoginInput{Email: "x@y.z"}.Key())
	require.Empty(t, LoginInput{}.Key())
}
