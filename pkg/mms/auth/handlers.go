package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/mms/pkg/mms/apperr"
	"github.com/mikepea/mms/pkg/mms/logging"
	"github.com/mikepea/mms/pkg/mms/models"
	"github.com/mikepea/mms/pkg/mms/users"
)

// LoginFailure names why a login was refused
type LoginFailure string

const (
	LoginUserNotFound     LoginFailure = "user_not_found"
	LoginBadCredentials   LoginFailure = "bad_credentials"
	LoginAccountLocked    LoginFailure = "account_locked"
	LoginEmailNotVerified LoginFailure = "email_not_verified"
)

var loginMessages = map[LoginFailure]string{
	LoginUserNotFound:     "No account exists for this email",
	LoginBadCredentials:   "Invalid email or password",
	LoginAccountLocked:    "Account is locked",
	LoginEmailNotVerified: "Email address has not been verified",
}

// Handler handles authentication requests
type Handler struct {
	users    *users.Store
	tokens   *TokenManager
	sessions RevocationStore
	logger   *slog.Logger
}

// NewHandler creates a new auth handler
func NewHandler(store *users.Store, tokens *TokenManager, sessions RevocationStore, logger *slog.Logger) *Handler {
	return &Handler{users: store, tokens: tokens, sessions: sessions, logger: logging.OrDefault(logger)}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// UserResponse represents user data in responses
type UserResponse struct {
	ID        uint     `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Enabled   bool     `json:"enabled"`
	Locked    bool     `json:"locked"`
	Roles     []string `json:"roles"`
}

// NewUserResponse converts a user and its role names for output
func NewUserResponse(u *models.User, roles []string) UserResponse {
	if roles == nil {
		roles = []string{}
	}
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Enabled:   u.Enabled,
		Locked:    !u.AccountNonLocked,
		Roles:     roles,
	}
}

// CheckLogin verifies credentials and account state.
func CheckLogin(u *models.User, password string) (LoginFailure, bool) {
	if !CheckPassword(password, u.PasswordHash) {
		return LoginBadCredentials, false
	}
	if !u.AccountNonLocked {
		return LoginAccountLocked, false
	}
	if !u.Enabled {
		return LoginEmailNotVerified, false
	}
	return "", true
}

// Login handles user login
// @Summary Login
// @Description Authenticate with email and password to receive a JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} AuthResponse
// @Failure 401 {object} map[string]string "Login refused"
// @Router /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			h.refuse(c, req.Email, LoginUserNotFound)
			return
		}
		apperr.Respond(c, err)
		return
	}

	if failure, ok := CheckLogin(user, req.Password); !ok {
		h.refuse(c, req.Email, failure)
		return
	}

	token, _, err := h.tokens.GenerateToken(user.ID, user.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	roles, err := h.users.RoleNamesOf(ctx, user.ID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	h.logger.Info("user logged in", slog.Uint64("user_id", uint64(user.ID)))
	c.JSON(http.StatusOK, AuthResponse{Token: token, User: NewUserResponse(user, roles)})
}

func (h *Handler) refuse(c *gin.Context, email string, failure LoginFailure) {
	h.logger.Info("login refused", slog.String("email", email), slog.String("reason", string(failure)))
	c.JSON(http.StatusUnauthorized, gin.H{"error": loginMessages[failure], "reason": string(failure)})
}

// Logout terminates the current session
// @Summary Logout
// @Tags auth
// @Success 204
// @Security BearerAuth
// @Router /auth/logout [post]
func (h *Handler) Logout(c *gin.Context) {
	if err := GetSession(c).Terminate(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to end session"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Me returns the current authenticated user
// @Summary Get current user
// @Tags auth
// @Produce json
// @Success 200 {object} UserResponse
// @Security BearerAuth
// @Router /auth/me [get]
func (h *Handler) Me(c *gin.Context) {
	userID, exists := GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.FindByID(ctx, userID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	roles, err := h.users.RoleNamesOf(ctx, userID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, NewUserResponse(user, roles))
}

// RegisterRoutes registers auth routes. Logout and Me require authentication.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/login", h.Login)

	protected := rg.Group("", AuthMiddleware(h.tokens, h.sessions))
	protected.POST("/logout", h.Logout)
	protected.GET("/me", h.Me)
}
