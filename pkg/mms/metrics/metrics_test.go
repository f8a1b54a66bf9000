package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveTokenCheck(t *testing.T) {
	before := testutil.ToFloat64(tokenChecks.WithLabelValues("forgot_password", "VALID"))
	ObserveTokenCheck("forgot_password", "VALID")
	ObserveTokenCheck("forgot_password", "VALID")
	after := testutil.ToFloat64(tokenChecks.WithLabelValues("forgot_password", "VALID"))

	assert.Equal(t, before+2, after)
}

func TestObserveMailResultLabel(t *testing.T) {
	okBefore := testutil.ToFloat64(mailSends.WithLabelValues("password_changed", "ok"))
	errBefore := testutil.ToFloat64(mailSends.WithLabelValues("password_changed", "error"))

	ObserveMail("password_changed", nil)
	ObserveMail("password_changed", errors.New("smtp down"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(mailSends.WithLabelValues("password_changed", "ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(mailSends.WithLabelValues("password_changed", "error")))
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/companies/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(Handler()))

	req, _ := http.NewRequest("GET", "/companies/42", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.GreaterOrEqual(t, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/companies/:id", "204")), 1.0)

	req, _ = http.NewRequest("GET", "/metrics", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, strings.Contains(resp.Body.String(), "mms_http_requests_total"))
}
