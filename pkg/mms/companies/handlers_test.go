package companies

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/mms/pkg/mms/auth"
	"github.com/mikepea/mms/pkg/mms/models"
)

func setupTestRouter(f *fixture) (*gin.Engine, *auth.TokenManager) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	sessions := auth.NewGormRevocationStore(f.db)

	api := r.Group("", auth.AuthMiddleware(tokens, sessions))
	NewHandler(f.svc, f.eval, f.users, nil).RegisterRoutes(api)
	return r, tokens
}

func getAuthHeader(tokens *auth.TokenManager, user *models.User) string {
	token, _, _ := tokens.GenerateToken(user.ID, user.Email)
	return "Bearer " + token
}

func doRequest(r *gin.Engine, method, path, authHeader string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestCompanyHandlersFlow(t *testing.T) {
	f := newFixture(t)
	router, tokens := setupTestRouter(f)
	owner := f.user(t, "owner@example.com")
	applicant := f.user(t, "applicant@example.com")
	ownerAuth := getAuthHeader(tokens, owner)
	applicantAuth := getAuthHeader(tokens, applicant)

	resp := doRequest(router, "POST", "/companies", ownerAuth, acmeInput())
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var company models.Company
	json.Unmarshal(resp.Body.Bytes(), &company)
	companyPath := fmt.Sprintf("/companies/%d", company.ID)

	resp = doRequest(router, "GET", companyPath, applicantAuth, nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 before joining, got %d", resp.Code)
	}

	resp = doRequest(router, "GET", "/applications/joinable", applicantAuth, nil)
	var joinable []models.Company
	json.Unmarshal(resp.Body.Bytes(), &joinable)
	if len(joinable) != 1 {
		t.Errorf("Expected 1 joinable company, got %d", len(joinable))
	}

	resp = doRequest(router, "POST", companyPath+"/applications", applicantAuth, nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var application models.JobApplication
	json.Unmarshal(resp.Body.Bytes(), &application)

	resp = doRequest(router, "POST", companyPath+"/applications", applicantAuth, nil)
	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409 on duplicate application, got %d", resp.Code)
	}

	acceptPath := fmt.Sprintf("/applications/%d/accept", application.ID)
	resp = doRequest(router, "POST", acceptPath, applicantAuth, nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected applicant to be refused, got %d", resp.Code)
	}
	resp = doRequest(router, "POST", acceptPath, ownerAuth, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doRequest(router, "GET", companyPath, applicantAuth, nil)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected access after acceptance, got %d", resp.Code)
	}

	resp = doRequest(router, "GET", companyPath+"/employees?exclude_self=true", applicantAuth, nil)
	var employees []EmployeeResponse
	json.Unmarshal(resp.Body.Bytes(), &employees)
	if len(employees) != 0 {
		t.Errorf("Expected no other employees, got %d", len(employees))
	}

	resp = doRequest(router, "PUT", companyPath, applicantAuth, acmeInput())
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected employee update to be refused, got %d", resp.Code)
	}

	resp = doRequest(router, "DELETE", fmt.Sprintf("%s/employees/%d", companyPath, applicant.ID), ownerAuth, nil)
	if resp.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d: %s", resp.Code, resp.Body.String())
	}
	resp = doRequest(router, "GET", companyPath, applicantAuth, nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected access to end after removal, got %d", resp.Code)
	}
}

func TestLeaveEndsSession(t *testing.T) {
	f := newFixture(t)
	router, tokens := setupTestRouter(f)
	f.user(t, fallbackEmail)
	owner := f.user(t, "owner@example.com")
	ownerAuth := getAuthHeader(tokens, owner)

	resp := doRequest(router, "POST", "/companies", ownerAuth, acmeInput())
	var company models.Company
	json.Unmarshal(resp.Body.Bytes(), &company)

	resp = doRequest(router, "POST", fmt.Sprintf("/companies/%d/leave", company.ID), ownerAuth, nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doRequest(router, "GET", "/companies", ownerAuth, nil)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected the session to be over, got %d", resp.Code)
	}
}

func TestCreateCompanyRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	router, tokens := setupTestRouter(f)
	owner := f.user(t, "owner@example.com")

	resp := doRequest(router, "POST", "/companies", getAuthHeader(tokens, owner), CompanyInput{Name: "Acme"})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d: %s", resp.Code, resp.Body.String())
	}
}
