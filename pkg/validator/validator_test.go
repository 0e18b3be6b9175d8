package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addRequest struct {
	ProductID string   `json:"product_id" validate:"required,productid"`
	Tags      []string `json:"tags,omitempty" validate:"omitempty,max=3"`
}

func TestValidate_Success(t *testing.T) {
	assert.NoError(t, Validate(addRequest{ProductID: "P1"}))
}

func TestValidate_MissingRequired_UsesJSONName(t *testing.T) {
	err := Validate(addRequest{})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "is required", valErr.Fields()["product_id"])
}

func TestValidate_ProductID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"P1", true},
		{"00000000-0000-0000-0000-000000000001", true},
		{" P1", false},
		{"P1 ", false},
		{"a/b", false},
		{"a?b", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := Validate(addRequest{ProductID: tt.id})
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			var valErr *ValidationError
			require.ErrorAs(t, err, &valErr)
			assert.Equal(t, "must be a valid product id", valErr.Fields()["product_id"])
		})
	}
}

func TestVar(t *testing.T) {
	assert.NoError(t, Var("P1", "productid"))
	assert.Error(t, Var("", "required,productid"))
}

func TestValidationError_Message(t *testing.T) {
	err := Validate(addRequest{})
	assert.Contains(t, err.Error(), "field 'product_id' is required")
}

func TestDecodeAndValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":"P1"}`))
		var dst addRequest
		require.NoError(t, DecodeAndValidate(req, &dst))
		assert.Equal(t, "P1", dst.ProductID)
	})

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
		var dst addRequest
		err := DecodeAndValidate(req, &dst)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode request body")
	})

	t.Run("unknown field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":"P1","quantity":3}`))
		var dst addRequest
		assert.Error(t, DecodeAndValidate(req, &dst))
	})
}
