package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

type topUpPayload struct {
	Amount    int64  `validate:"required,gt=0"`
	CompanyID string `validate:"omitempty,uuid4"`
}

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid payload", func(t *testing.T) {
		valid := topUpPayload{
			Amount:    500,
			CompanyID: "6ba7b810-9dad-41d1-80b4-00c04fd430c8",
		}

		err := vh.ValidateStruct(&valid)
		assert.NoError(t, err)
	})

	t.Run("zero amount fails the gt tag", func(t *testing.T) {
		invalid := topUpPayload{Amount: 0}

		err := vh.ValidateStruct(&invalid)
		assert.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		assert.True(t, ok)
		assert.Len(t, validationErrors, 1)
		assert.Equal(t, "Amount", validationErrors[0].Field())
	})

	t.Run("malformed company id", func(t *testing.T) {
		invalid := topUpPayload{Amount: 500, CompanyID: "not-a-uuid"}

		err := vh.ValidateStruct(&invalid)
		assert.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		assert.True(t, ok)
		assert.Equal(t, "CompanyID", validationErrors[0].Field())
		assert.Equal(t, "uuid4", validationErrors[0].Tag())
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("plain error", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Something went wrong", http.StatusInternalServerError, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Something went wrong", response.Error)
		assert.Nil(t, response.Details)
	})

	t.Run("validation details included", func(t *testing.T) {
		vh := NewValidationHelper()
		invalid := topUpPayload{Amount: 0, CompanyID: "not-a-uuid"}

		validationErr := vh.ValidateStruct(&invalid)
		assert.Error(t, validationErr)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, validationErr)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Validation failed", response.Error)
		assert.Contains(t, response.Details, "Amount")
		assert.Contains(t, response.Details, "CompanyID")
	})
}

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{ErrInvalidAmount, http.StatusBadRequest},
		{ErrInsufficientFunds, http.StatusPaymentRequired},
		{ErrUnauthorized, http.StatusForbidden},
		{ErrNotFound, http.StatusNotFound},
		{ErrPocketNotFound, http.StatusNotFound},
		{ErrOrderNotPayable, http.StatusConflict},
		{ErrOrderNotPaid, http.StatusConflict},
		{ErrInvalidRefundRequest, http.StatusConflict},
		{ErrDuplicateRefundRequest, http.StatusConflict},
		{ErrAlreadyFinal, http.StatusConflict},
		{ErrPaymentRefMismatch, http.StatusConflict},
		{ErrLastAdmin, http.StatusConflict},
		{assert.AnError, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.status, StatusForError(tc.err), tc.err.Error())
	}
}

func TestSendServiceError(t *testing.T) {
	t.Run("typed failure keeps its message", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendServiceError(w, ErrInsufficientFunds)

		assert.Equal(t, http.StatusPaymentRequired, w.Code)

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, ErrInsufficientFunds.Error(), response.Error)
	})

	t.Run("unknown failures are not leaked to clients", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendServiceError(w, assert.AnError)

		assert.Equal(t, http.StatusInternalServerError, w.Code)

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "internal error", response.Error)
	})
}
