package accounts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
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
	h := NewHandler(f.svc, "http://app.test", nil)

	h.RegisterPublicRoutes(r.Group(""))
	protected := r.Group("", auth.AuthMiddleware(tokens, sessions))
	h.RegisterRoutes(protected)
	h.RegisterAdminRoutes(protected.Group("/admin", auth.RequireRole(f.users, models.RoleAdmin)))
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

func (f *fixture) admin(t *testing.T) *models.User {
	ctx := context.Background()
	if err := f.svc.Bootstrap(ctx, adminEmail, adminPassword); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	admin, err := f.users.FindByEmail(ctx, adminEmail)
	if err != nil {
		t.Fatalf("Failed to load admin: %v", err)
	}
	return admin
}

func TestRegisterHandler(t *testing.T) {
	f := newFixture(t)
	router, _ := setupTestRouter(f)

	resp := doRequest(router, "POST", "/registration/register", "", ada())
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var body RegistrationResponse
	json.Unmarshal(resp.Body.Bytes(), &body)
	if body.Outcome != RegistrationSuccess || body.UserID == 0 {
		t.Errorf("Unexpected response: %+v", body)
	}

	sent, ok := f.mail.Last()
	if !ok {
		t.Fatal("Expected a verification mail")
	}
	if !strings.HasPrefix(sent.Link, "http://app.test/api/registration/verify-email?token=") {
		t.Errorf("Unexpected verification link %q", sent.Link)
	}

	resp = doRequest(router, "POST", "/registration/register", "", ada())
	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for existing email, got %d", resp.Code)
	}
}

func TestProfileHandlers(t *testing.T) {
	f := newFixture(t)
	router, tokens := setupTestRouter(f)
	_, user, err := f.svc.Register(context.Background(), ada(), "http://app")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	userAuth := getAuthHeader(tokens, user)

	resp := doRequest(router, "GET", "/profile", userAuth, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}
	var profile ProfileResponse
	json.Unmarshal(resp.Body.Bytes(), &profile)
	if profile.User.Email != "ada@example.com" {
		t.Errorf("Expected ada@example.com, got %s", profile.User.Email)
	}

	resp = doRequest(router, "PUT", fmt.Sprintf("/profile/%d", user.ID), userAuth, ProfileInput{FirstName: "Augusta", LastName: "King"})
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doRequest(router, "PUT", fmt.Sprintf("/profile/%d", user.ID+1), userAuth, ProfileInput{FirstName: "X", LastName: "Y"})
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 editing someone else, got %d", resp.Code)
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	f := newFixture(t)
	router, tokens := setupTestRouter(f)
	f.admin(t)
	_, user, _ := f.svc.Register(context.Background(), ada(), "http://app")

	resp := doRequest(router, "GET", "/admin/users", getAuthHeader(tokens, user), nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.Code)
	}

	resp = doRequest(router, "GET", "/admin/users", "", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}
}

func TestAdminUserManagement(t *testing.T) {
	f := newFixture(t)
	router, tokens := setupTestRouter(f)
	admin := f.admin(t)
	adminAuth := getAuthHeader(tokens, admin)
	_, user, _ := f.svc.Register(context.Background(), ada(), "http://app")
	userPath := fmt.Sprintf("/admin/users/%d", user.ID)

	resp := doRequest(router, "GET", "/admin/users", adminAuth, nil)
	var list []auth.UserResponse
	json.Unmarshal(resp.Body.Bytes(), &list)
	if len(list) != 2 {
		t.Errorf("Expected 2 users, got %d", len(list))
	}

	resp = doRequest(router, "GET", "/admin/users?role=ADMIN", adminAuth, nil)
	json.Unmarshal(resp.Body.Bytes(), &list)
	if len(list) != 1 || list[0].Email != adminEmail {
		t.Errorf("Expected only the admin, got %+v", list)
	}

	resp = doRequest(router, "POST", userPath+"/toggle-lock", adminAuth, nil)
	var got auth.UserResponse
	json.Unmarshal(resp.Body.Bytes(), &got)
	if resp.Code != http.StatusOK || !got.Locked {
		t.Errorf("Expected locked user, got %d %+v", resp.Code, got)
	}

	resp = doRequest(router, "PUT", userPath+"/roles", adminAuth, UpdateRolesRequest{Roles: []string{"ADMIN", "USER"}})
	json.Unmarshal(resp.Body.Bytes(), &got)
	if resp.Code != http.StatusOK || len(got.Roles) != 2 {
		t.Errorf("Expected two roles, got %d %+v", resp.Code, got)
	}

	resp = doRequest(router, "PUT", fmt.Sprintf("/admin/users/%d/roles", admin.ID), adminAuth, UpdateRolesRequest{Roles: []string{"USER"}})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected self-demotion to be refused, got %d", resp.Code)
	}

	resp = doRequest(router, "GET", "/admin/stats", adminAuth, nil)
	var stats StatsResponse
	json.Unmarshal(resp.Body.Bytes(), &stats)
	if stats.TotalUsers != 2 || stats.AdminUsers != 2 || stats.LockedUsers != 1 || stats.UnverifiedUsers != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	resp = doRequest(router, "DELETE", fmt.Sprintf("/admin/users/%d", admin.ID), adminAuth, nil)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected self-delete to be refused, got %d", resp.Code)
	}

	resp = doRequest(router, "DELETE", userPath, adminAuth, nil)
	if resp.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d: %s", resp.Code, resp.Body.String())
	}
	resp = doRequest(router, "GET", userPath, adminAuth, nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after delete, got %d", resp.Code)
	}
}
