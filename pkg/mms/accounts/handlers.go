package accounts

import (
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/mms/pkg/mms/apperr"
	"github.com/mikepea/mms/pkg/mms/auth"
	"github.com/mikepea/mms/pkg/mms/logging"
	"github.com/mikepea/mms/pkg/mms/models"
	"github.com/mikepea/mms/pkg/mms/tokens"
	"github.com/mikepea/mms/pkg/mms/users"
	"gorm.io/gorm"
)

// Handler handles registration, profile and admin account requests
type Handler struct {
	svc     *Service
	db      *gorm.DB
	baseURL string
	logger  *slog.Logger
}

// NewHandler creates a new accounts handler. baseURL overrides the URL
// derived from the request when building verification links.
func NewHandler(svc *Service, baseURL string, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, db: svc.db, baseURL: baseURL, logger: logging.OrDefault(logger)}
}

// RegistrationResponse is the body of a registration response
type RegistrationResponse struct {
	Outcome RegistrationOutcome `json:"outcome"`
	UserID  uint                `json:"user_id,omitempty"`
}

// UpdateRolesRequest replaces a user's global roles
type UpdateRolesRequest struct {
	Roles []string `json:"roles"`
}

// ProfileResponse is the caller's account with the companies employing it
type ProfileResponse struct {
	User       auth.UserResponse `json:"user"`
	Workplaces []models.Company  `json:"workplaces"`
}

// StatsResponse represents system statistics
type StatsResponse struct {
	TotalUsers       int64 `json:"total_users"`
	AdminUsers       int64 `json:"admin_users"`
	LockedUsers      int64 `json:"locked_users"`
	UnverifiedUsers  int64 `json:"unverified_users"`
	TotalCompanies   int64 `json:"total_companies"`
	ActiveMachines   int64 `json:"active_machines"`
	InactiveMachines int64 `json:"inactive_machines"`
	OpenApplications int64 `json:"open_applications"`
}

var registrationStatus = map[RegistrationOutcome]int{
	RegistrationSuccess:            http.StatusCreated,
	RegistrationExists:             http.StatusConflict,
	RegistrationInvalidEmailFormat: http.StatusBadRequest,
	RegistrationEmailSendingError:  http.StatusAccepted,
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return 0, false
	}
	return uint(id), true
}

// Register handles user registration
// @Summary Register
// @Description Create an account and mail a verification link
// @Tags registration
// @Accept json
// @Produce json
// @Param request body RegistrationRequest true "Registration details"
// @Success 201 {object} RegistrationResponse
// @Failure 409 {object} RegistrationResponse "Email already registered"
// @Router /registration/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	baseURL := tokens.ApplicationURL(c.Request, h.baseURL)
	outcome, user, err := h.svc.Register(c.Request.Context(), req, baseURL)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	resp := RegistrationResponse{Outcome: outcome}
	if user != nil {
		resp.UserID = user.ID
	}
	c.JSON(registrationStatus[outcome], resp)
}

// Profile returns the caller's account
// @Summary Get profile
// @Tags profile
// @Produce json
// @Success 200 {object} ProfileResponse
// @Security BearerAuth
// @Router /profile [get]
func (h *Handler) Profile(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	ctx := c.Request.Context()
	user, roles, err := h.svc.Get(ctx, userID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	workplaces, err := h.svc.Workplaces(ctx, user.Email)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, ProfileResponse{User: auth.NewUserResponse(user, roles), Workplaces: workplaces})
}

// UpdateProfile changes the caller's names
// @Summary Update profile
// @Tags profile
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param request body ProfileInput true "Names"
// @Success 200 {object} auth.UserResponse
// @Failure 403 {object} map[string]string "Not your profile"
// @Security BearerAuth
// @Router /profile/{id} [put]
func (h *Handler) UpdateProfile(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req ProfileInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	callerID, _ := auth.GetUserID(c)
	user, err := h.svc.UpdateProfile(ctx, callerID, id, req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	roles, err := h.svc.users.RoleNamesOf(ctx, user.ID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, auth.NewUserResponse(user, roles))
}

// ListUsers returns all users (admin only)
// @Summary List users
// @Tags admin
// @Produce json
// @Param q query string false "Search email or name"
// @Param role query string false "Filter by role name"
// @Success 200 {array} auth.UserResponse
// @Security BearerAuth
// @Router /admin/users [get]
func (h *Handler) ListUsers(c *gin.Context) {
	ctx := c.Request.Context()
	list, err := h.svc.ListUsers(ctx, users.ListFilter{Query: c.Query("q"), Role: c.Query("role")})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	responses := make([]auth.UserResponse, len(list))
	for i := range list {
		roles, err := h.svc.users.RoleNamesOf(ctx, list[i].ID)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		responses[i] = auth.NewUserResponse(&list[i], roles)
	}
	c.JSON(http.StatusOK, responses)
}

// GetUser returns a single user by ID (admin only)
// @Summary Get user
// @Tags admin
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} auth.UserResponse
// @Security BearerAuth
// @Router /admin/users/{id} [get]
func (h *Handler) GetUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	user, roles, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, auth.NewUserResponse(user, roles))
}

// UpdateRoles replaces a user's global roles (admin only)
// @Summary Update user roles
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param request body UpdateRolesRequest true "Role names"
// @Success 200 {object} auth.UserResponse
// @Security BearerAuth
// @Router /admin/users/{id}/roles [put]
func (h *Handler) UpdateRoles(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req UpdateRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Prevent admin from demoting themselves
	currentUserID, _ := auth.GetUserID(c)
	if id == currentUserID && !slices.Contains(req.Roles, models.RoleAdmin) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot demote yourself"})
		return
	}

	ctx := c.Request.Context()
	if err := h.svc.UpdateRoles(ctx, id, req.Roles); err != nil {
		apperr.Respond(c, err)
		return
	}
	user, roles, err := h.svc.Get(ctx, id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, auth.NewUserResponse(user, roles))
}

// ToggleLock locks or unlocks an account (admin only)
// @Summary Toggle account lock
// @Tags admin
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} auth.UserResponse
// @Security BearerAuth
// @Router /admin/users/{id}/toggle-lock [post]
func (h *Handler) ToggleLock(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	currentUserID, _ := auth.GetUserID(c)
	if id == currentUserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot lock yourself"})
		return
	}

	ctx := c.Request.Context()
	user, err := h.svc.ToggleLock(ctx, id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	roles, err := h.svc.users.RoleNamesOf(ctx, id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, auth.NewUserResponse(user, roles))
}

// DeleteUser deletes a user (admin only)
// @Summary Delete user
// @Tags admin
// @Param id path int true "User ID"
// @Success 204
// @Failure 409 {object} map[string]string "User still owns companies"
// @Security BearerAuth
// @Router /admin/users/{id} [delete]
func (h *Handler) DeleteUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	// Prevent admin from deleting themselves
	currentUserID, _ := auth.GetUserID(c)
	if id == currentUserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete yourself"})
		return
	}

	if err := h.svc.DeleteUser(c.Request.Context(), id); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetStats returns system-wide statistics (admin only)
// @Summary System statistics
// @Tags admin
// @Produce json
// @Success 200 {object} StatsResponse
// @Security BearerAuth
// @Router /admin/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	var stats StatsResponse
	db := h.db.WithContext(c.Request.Context())

	db.Model(&models.User{}).Count(&stats.TotalUsers)
	db.Model(&models.User{}).Where("account_non_locked = ?", false).Count(&stats.LockedUsers)
	db.Model(&models.User{}).Where("enabled = ?", false).Count(&stats.UnverifiedUsers)
	db.Model(&models.UserRole{}).
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("roles.name = ?", models.RoleAdmin).
		Count(&stats.AdminUsers)
	db.Model(&models.Company{}).Count(&stats.TotalCompanies)
	db.Model(&models.Machine{}).Where("active = ?", true).Count(&stats.ActiveMachines)
	db.Model(&models.Machine{}).Where("active = ?", false).Count(&stats.InactiveMachines)
	db.Model(&models.JobApplication{}).Where("accepted = ?", false).Count(&stats.OpenApplications)

	c.JSON(http.StatusOK, stats)
}

// RegisterPublicRoutes registers unauthenticated routes
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.POST("/registration/register", h.Register)
}

// RegisterRoutes registers routes for authenticated callers
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/profile", h.Profile)
	rg.PUT("/profile/:id", h.UpdateProfile)
}

// RegisterAdminRoutes registers admin routes. The group must already require
// the ADMIN role.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.GetStats)
	rg.GET("/users", h.ListUsers)
	rg.GET("/users/:id", h.GetUser)
	rg.PUT("/users/:id/roles", h.UpdateRoles)
	rg.POST("/users/:id/toggle-lock", h.ToggleLock)
	rg.DELETE("/users/:id", h.DeleteUser)
}
