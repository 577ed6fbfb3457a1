package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type endpoint struct {
	Name string `validate:"required"`
	URL  string `validate:"required,url"`
	Tier int    `validate:"min=0,max=3"`
}

func TestCheckReturnsTranslatedFieldErrors(t *testing.T) {
	err := Check(endpoint{URL: "not a url", Tier: 9})
	require.Error(t, err)
	require.True(t, IsFieldErrors(err))

	fields := GetFieldErrors(err).Fields()
	assert.Contains(t, fields, "Name")
	assert.Contains(t, fields, "URL")
	assert.Contains(t, fields, "Tier")
	assert.Contains(t, fields["Name"], "required")
}

func TestCheckPassesValidStruct(t *testing.T) {
	err := Check(endpoint{Name: "push", URL: "https://example.com", Tier: 2})
	assert.NoError(t, err)
}

func TestGetFieldErrorsOnOtherError(t *testing.T) {
	assert.Nil(t, GetFieldErrors(assert.AnError))
	assert.False(t, IsFieldErrors(assert.AnError))
}
