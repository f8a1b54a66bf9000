package tokens

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/mms/pkg/mms/auth"
	"github.com/mikepea/mms/pkg/mms/logging"
)

// Handler exposes the token flows over HTTP
type Handler struct {
	dispatcher     *Dispatcher
	verification   *Lifecycle
	changePassword *Lifecycle
	forgotPassword *Lifecycle
	authTokens     *auth.TokenManager
	sessions       auth.RevocationStore
	baseURL        string
	logger         *slog.Logger
}

// NewHandler creates a new token flow handler. baseURL overrides the URL
// derived from the request when non-empty.
func NewHandler(dispatcher *Dispatcher, authTokens *auth.TokenManager, sessions auth.RevocationStore, baseURL string, logger *slog.Logger) *Handler {
	return &Handler{
		dispatcher:     dispatcher,
		verification:   dispatcher.verification,
		changePassword: dispatcher.changePassword,
		forgotPassword: dispatcher.forgotPassword,
		authTokens:     authTokens,
		sessions:       sessions,
		baseURL:        baseURL,
		logger:         logging.OrDefault(logger),
	}
}

// EmailRequest carries the account a token is requested for
type EmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// CompleteRequest completes a password action
type CompleteRequest struct {
	Token           string `json:"token" binding:"required"`
	OldPassword     string `json:"old_password"`
	NewPassword     string `json:"new_password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

// OutcomeResponse is the body of every token flow response
type OutcomeResponse struct {
	Outcome Outcome `json:"outcome"`
}

func respond(c *gin.Context, outcome Outcome) {
	c.JSON(outcome.HTTPStatus(), OutcomeResponse{Outcome: outcome})
}

// RequestToken starts the flow selected by the request path
// @Summary Request a token
// @Tags tokens
// @Accept json
// @Produce json
// @Param request body EmailRequest true "Account email"
// @Success 200 {object} OutcomeResponse
// @Router /registration/resend-verification [post]
// @Router /password/forgot/request [post]
// @Router /password/change/request [post]
func (h *Handler) RequestToken(c *gin.Context) {
	flow, ok := FlowForPath(c.FullPath())
	if !ok {
		respond(c, OutcomeNoAction)
		return
	}

	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	baseURL := ApplicationURL(c.Request, h.baseURL)
	respond(c, h.dispatcher.Dispatch(c.Request.Context(), flow, req.Email, baseURL, auth.GetSession(c)))
}

// VerifyEmail confirms a registration from the emailed link
// @Summary Verify email
// @Tags tokens
// @Produce json
// @Param token query string true "Verification token"
// @Success 200 {object} OutcomeResponse
// @Failure 410 {object} OutcomeResponse
// @Router /registration/verify-email [get]
func (h *Handler) VerifyEmail(c *gin.Context) {
	raw := c.Query("token")
	if raw == "" {
		respond(c, OutcomeVerificationInvalid)
		return
	}
	respond(c, h.verification.VerifyEmail(c.Request.Context(), raw))
}

// CompleteForgotPassword sets a new password with a forgot-password token
// @Summary Reset password
// @Tags tokens
// @Accept json
// @Produce json
// @Param request body CompleteRequest true "Token and new password"
// @Success 200 {object} OutcomeResponse
// @Router /password/reset [post]
func (h *Handler) CompleteForgotPassword(c *gin.Context) {
	h.complete(c, h.forgotPassword)
}

// CompleteChangePassword sets a new password with a change-password token
// and ends the current session
// @Summary Change password
// @Tags tokens
// @Accept json
// @Produce json
// @Param request body CompleteRequest true "Token, old and new password"
// @Success 200 {object} OutcomeResponse
// @Security BearerAuth
// @Router /password/change [post]
func (h *Handler) CompleteChangePassword(c *gin.Context) {
	h.complete(c, h.changePassword)
}

func (h *Handler) complete(c *gin.Context, lc *Lifecycle) {
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome := lc.CompleteAction(c.Request.Context(), auth.GetSession(c), PasswordChange{
		Token:           req.Token,
		OldPassword:     req.OldPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	respond(c, outcome)
}

// RegisterRoutes registers the token flow routes on the group mounted at
// APIPrefix. Change-password routes
// require authentication, the rest accept anonymous callers.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	public := rg.Group("", auth.OptionalAuth(h.authTokens, h.sessions))
	public.POST(ResendVerificationPath, h.RequestToken)
	public.GET(routePath(VerifyEmailLinkPath), h.VerifyEmail)
	public.POST(ForgotPasswordPath, h.RequestToken)
	public.POST(routePath(ForgotPasswordLinkPath), h.CompleteForgotPassword)

	protected := rg.Group("", auth.AuthMiddleware(h.authTokens, h.sessions))
	protected.POST(ChangePasswordPath, h.RequestToken)
	protected.POST(routePath(ChangePasswordLinkPath), h.CompleteChangePassword)
}

func routePath(linkPath string) string {
	return strings.TrimPrefix(linkPath, APIPrefix)
}
