package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesByKind(t *testing.T) {
	err := NotFound("company")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrAccessDenied))

	wrapped := fmt.Errorf("loading: %w", AccessDenied("not a member of company %d", 3))
	assert.True(t, errors.Is(wrapped, ErrAccessDenied))
	assert.Equal(t, KindAccessDenied, KindOf(wrapped))
}

func TestInternalUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := Internal(cause, "delete company %d", 9)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, ErrInternal))
	assert.Equal(t, "delete company 9: disk full", err.Error())
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		NotFound("user"):             http.StatusNotFound,
		AccessDenied("no"):           http.StatusForbidden,
		Unauthorized("login"):        http.StatusUnauthorized,
		InvalidArgument("tax"):       http.StatusBadRequest,
		AlreadyApplied("applied"):    http.StatusConflict,
		New(KindConflict, "exists"):  http.StatusConflict,
		New(KindMessaging, "smtp"):   http.StatusBadGateway,
		errors.New("unexpected"):     http.StatusInternalServerError,
		Internal(nil, "rollback"):    http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(err), err.Error())
	}
}

func TestRespondHidesInternalErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	Respond(c, Internal(errors.New("pq: connection refused"), "load company"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Internal server error", body["error"])

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	Respond(c, NotFound("machine"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "machine not found", body["error"])
}
