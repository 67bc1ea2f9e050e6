package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/stacksapp/stacks-server/internal/errors"
)

type sampleRequest struct {
	Title     string `json:"title" validate:"required,min=2"`
	Published int    `json:"published" validate:"gte=0"`
}

func TestValidate_Passes(t *testing.T) {
	v := New()

	err := v.Validate(sampleRequest{Title: "Dune", Published: 1965})
	assert.NoError(t, err)
}

func TestValidate_FieldErrorsUseJSONNames(t *testing.T) {
	v := New()

	err := v.Validate(sampleRequest{Title: "", Published: -1})
	require.Error(t, err)
	require.ErrorIs(t, err, domainerrors.ErrValidation)

	var domainErr *domainerrors.Error
	require.ErrorAs(t, err, &domainErr)

	fields, ok := domainErr.Details.(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", fields["title"])
	assert.Equal(t, "must be greater than or equal to 0", fields["published"])
}

func TestValidate_MinLength(t *testing.T) {
	v := New()

	err := v.Validate(sampleRequest{Title: "x"})
	require.Error(t, err)

	var domainErr *domainerrors.Error
	require.ErrorAs(t, err, &domainErr)
	fields := domainErr.Details.(map[string]string)
	assert.Equal(t, "must be at least 2 characters", fields["title"])
}
