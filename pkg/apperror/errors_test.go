package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", NewNotFoundError("request", 7), http.StatusNotFound},
		{"authorization", NewAuthorizationError("approve", 3, "not the current approver"), http.StatusForbidden},
		{"resolution", NewApproverResolutionError("ROLE_BASED", "no active user holds CEO"), http.StatusUnprocessableEntity},
		{"validation", NewValidationError("name", "required"), http.StatusBadRequest},
		{"illegal state", NewIllegalStateError("approve", "REJECTED"), http.StatusConflict},
		{"conflict", NewConflictError("request", "version changed"), http.StatusConflict},
		{"wrapped", fmt.Errorf("approve: %w", NewNotFoundError("request", 1)), http.StatusNotFound},
		{"plain", errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}

func TestApproverResolutionError_IsApproverNotFound(t *testing.T) {
	err := fmt.Errorf("materialize: %w", NewApproverResolutionError("MANAGER_HIERARCHY", "requester has no manager"))

	assert.True(t, errors.Is(err, ErrApproverNotFound))

	appErr, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, "APPROVER_NOT_FOUND", appErr.Code())
}

func TestNotFoundError_Message(t *testing.T) {
	assert.Equal(t, "template with ID '12' not found", NewNotFoundError("template", int64(12)).Error())
	assert.Equal(t, "role not found", (&NotFoundError{Resource: "role"}).Error())
}
