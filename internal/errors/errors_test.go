package errors

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsCarryStatusAndCode(t *testing.T) {
	cases := []struct {
		err    *ServiceError
		code   string
		status int
	}{
		{NotFound("", "missing"), CodeNotFound, http.StatusNotFound},
		{NotFound("ASSET_NOT_FOUND", "missing"), "ASSET_NOT_FOUND", http.StatusNotFound},
		{InvalidStatus("BID_TOO_LOW", "too low"), "BID_TOO_LOW", http.StatusBadRequest},
		{InvalidInput("", "bad"), CodeInvalidInput, http.StatusBadRequest},
		{Conflict("", "dup"), CodeConflict, http.StatusConflict},
		{Forbidden("no"), CodeForbidden, http.StatusForbidden},
		{KYCRequired(""), CodeKYCRequired, http.StatusForbidden},
		{Unauthorized("who"), CodeUnauthorized, http.StatusUnauthorized},
		{CollaboratorFailure("escrow", stderrors.New("down")), CodeCollaboratorFailure, http.StatusBadGateway},
		{Internal("boom", stderrors.New("cause")), CodeInternal, http.StatusInternalServerError},
		{RateLimitExceeded(50, "1s"), CodeRateLimitExceeded, http.StatusTooManyRequests},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, tc.err.Code)
		assert.Equal(t, tc.status, tc.err.HTTPStatus)
		assert.NotEmpty(t, tc.err.Error())
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := CollaboratorFailure("payment", cause)
	assert.ErrorIs(t, err, cause)
}

func TestWithDetailsAndCode(t *testing.T) {
	err := InvalidStatus("", "missing documents").
		WithDetails("missing", []string{"PROSPECTUS"}).
		WithCode("MISSING_DOCUMENTS")
	assert.Equal(t, "MISSING_DOCUMENTS", err.Code)
	assert.Equal(t, []string{"PROSPECTUS"}, err.Details["missing"])
}

func TestGetServiceError(t *testing.T) {
	svc := NotFound("ASSET_NOT_FOUND", "missing")
	require.Same(t, svc, GetServiceError(svc))

	wrapped := GetServiceError(stderrors.New("plain"))
	assert.Equal(t, CodeInternal, wrapped.Code)
	assert.Equal(t, http.StatusInternalServerError, wrapped.HTTPStatus)
}
