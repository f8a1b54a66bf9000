package companies

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/mms/pkg/mms/access"
	"github.com/mikepea/mms/pkg/mms/apperr"
	"github.com/mikepea/mms/pkg/mms/auth"
	"github.com/mikepea/mms/pkg/mms/logging"
	"github.com/mikepea/mms/pkg/mms/models"
	"github.com/mikepea/mms/pkg/mms/users"
)

// Handler handles company and job application requests
type Handler struct {
	svc    *Service
	access *access.Evaluator
	users  *users.Store
	logger *slog.Logger
}

// NewHandler creates a new companies handler
func NewHandler(svc *Service, evaluator *access.Evaluator, userStore *users.Store, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, access: evaluator, users: userStore, logger: logging.OrDefault(logger)}
}

// UpdateDeputyRequest names the new deputy leader; null clears it
type UpdateDeputyRequest struct {
	DeputyLeaderID *uint `json:"deputy_leader_id"`
}

// EmployeeResponse represents an employee in API responses
type EmployeeResponse struct {
	ID        uint   `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func toEmployeeResponses(employees []models.User) []EmployeeResponse {
	out := make([]EmployeeResponse, len(employees))
	for i, e := range employees {
		out[i] = EmployeeResponse{ID: e.ID, Email: e.Email, FirstName: e.FirstName, LastName: e.LastName}
	}
	return out
}

func parseID(c *gin.Context, param, what string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + what + " ID"})
		return 0, false
	}
	return uint(id), true
}

func (h *Handler) isAdmin(ctx context.Context, userID uint) (bool, error) {
	return h.users.HasRole(ctx, userID, models.RoleAdmin)
}

// authorizeCompany admits admins and users reaching the company through
// its role
func (h *Handler) authorizeCompany(c *gin.Context, companyID uint) bool {
	ctx := c.Request.Context()
	userID, _ := auth.GetUserID(c)
	admin, err := h.isAdmin(ctx, userID)
	if err != nil {
		apperr.Respond(c, err)
		return false
	}
	if admin {
		return true
	}
	if err := h.access.CompanyAccess(ctx, userID, companyID); err != nil {
		apperr.Respond(c, err)
		return false
	}
	return true
}

// authorizeLeader admits admins and the company's leader or deputy
func (h *Handler) authorizeLeader(c *gin.Context, companyID uint) bool {
	ctx := c.Request.Context()
	userID, _ := auth.GetUserID(c)
	admin, err := h.isAdmin(ctx, userID)
	if err != nil {
		apperr.Respond(c, err)
		return false
	}
	if admin {
		return true
	}
	if _, err := h.svc.RequireLeaderOrDeputy(ctx, userID, companyID); err != nil {
		apperr.Respond(c, err)
		return false
	}
	return true
}

// List returns the companies visible to the caller
// @Summary List companies
// @Tags companies
// @Produce json
// @Success 200 {array} models.Company
// @Security BearerAuth
// @Router /companies [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	companies, err := h.svc.ListForUser(c.Request.Context(), userID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, companies)
}

// Create creates a company led by the caller
// @Summary Create company
// @Tags companies
// @Accept json
// @Produce json
// @Param request body CompanyInput true "Company details"
// @Success 201 {object} models.Company
// @Security BearerAuth
// @Router /companies [post]
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	var req CompanyInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	company, err := h.svc.Create(c.Request.Context(), userID, req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, company)
}

// Get returns a company the caller can access
// @Summary Get company
// @Tags companies
// @Produce json
// @Param id path int true "Company ID"
// @Success 200 {object} models.Company
// @Security BearerAuth
// @Router /companies/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	companyID, ok := parseID(c, "id", "company")
	if !ok || !h.authorizeCompany(c, companyID) {
		return
	}
	company, err := h.svc.Get(c.Request.Context(), companyID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, company)
}

// Update changes company details (leader or deputy)
// @Summary Update company
// @Tags companies
// @Accept json
// @Produce json
// @Param id path int true "Company ID"
// @Param request body CompanyInput true "Company details"
// @Success 200 {object} models.Company
// @Security BearerAuth
// @Router /companies/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	companyID, ok := parseID(c, "id", "company")
	if !ok || !h.authorizeLeader(c, companyID) {
		return
	}
	var req CompanyInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	company, err := h.svc.Update(c.Request.Context(), companyID, req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, company)
}

// UpdateDeputy changes the deputy leader (leader or deputy)
// @Summary Change deputy leader
// @Tags companies
// @Accept json
// @Produce json
// @Param id path int true "Company ID"
// @Param request body UpdateDeputyRequest true "New deputy"
// @Success 200 {object} models.Company
// @Security BearerAuth
// @Router /companies/{id}/deputy [put]
func (h *Handler) UpdateDeputy(c *gin.Context) {
	companyID, ok := parseID(c, "id", "company")
	if !ok || !h.authorizeLeader(c, companyID) {
		return
	}
	var req UpdateDeputyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	company, err := h.svc.UpdateDeputy(c.Request.Context(), companyID, req.DeputyLeaderID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, company)
}

// Delete removes a company and everything hanging off it
// @Summary Delete company
// @Tags companies
// @Param id path int true "Company ID"
// @Success 204
// @Security BearerAuth
// @Router /companies/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	companyID, ok := parseID(c, "id", "company")
	if !ok || !h.authorizeLeader(c, companyID) {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), companyID); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Employees lists employees. With exclude_self=true the caller and the
// owner are left out.
// @Summary List employees
// @Tags companies
// @Produce json
// @Param id path int true "Company ID"
// @Param exclude_self query bool false "Leave out the caller and the owner"
// @Success 200 {array} EmployeeResponse
// @Security BearerAuth
// @Router /companies/{id}/employees [get]
func (h *Handler) Employees(c *gin.Context) {
	companyID, ok := parseID(c, "id", "company")
	if !ok || !h.authorizeCompany(c, companyID) {
		return
	}
	ctx := c.Request.Context()

	var (
		employees []models.User
		err       error
	)
	if c.Query("exclude_self") == "true" {
		userID, _ := auth.GetUserID(c)
		employees, err = h.access.EmployeeSetExcluding(ctx, companyID, userID, true)
	} else {
		employees, err = h.svc.Employees(ctx, companyID)
	}
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, toEmployeeResponses(employees))
}

// RemoveEmployee dismisses an employee (leader or deputy)
// @Summary Remove employee
// @Tags companies
// @Param id path int true "Company ID"
// @Param userId path int true "User ID"
// @Success 204
// @Security BearerAuth
// @Router /companies/{id}/employees/{userId} [delete]
func (h *Handler) RemoveEmployee(c *gin.Context) {
	companyID, ok := parseID(c, "id", "company")
	if !ok {
		return
	}
	userID, ok := parseID(c, "userId", "user")
	if !ok || !h.authorizeLeader(c, companyID) {
		return
	}
	if err := h.svc.RemoveEmployee(c.Request.Context(), companyID, userID); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Leave removes the caller from the company and ends their session
// @Summary Leave company
// @Tags companies
// @Param id path int true "Company ID"
// @Success 204
// @Security BearerAuth
// @Router /companies/{id}/leave [post]
func (h *Handler) Leave(c *gin.Context) {
	companyID, ok := parseID(c, "id", "company")
	if !ok {
		return
	}
	if err := h.svc.Leave(c.Request.Context(), auth.GetSession(c), companyID); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PendingApplications lists applications awaiting a decision
// @Summary List pending applications
// @Tags companies
// @Produce json
// @Param id path int true "Company ID"
// @Success 200 {array} models.JobApplication
// @Security BearerAuth
// @Router /companies/{id}/applications [get]
func (h *Handler) PendingApplications(c *gin.Context) {
	companyID, ok := parseID(c, "id", "company")
	if !ok || !h.authorizeLeader(c, companyID) {
		return
	}
	applications, err := h.svc.PendingApplications(c.Request.Context(), companyID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, applications)
}

// Apply files an application from the caller
// @Summary Apply to company
// @Tags applications
// @Produce json
// @Param id path int true "Company ID"
// @Success 201 {object} models.JobApplication
// @Failure 409 {object} map[string]string "Already applied"
// @Security BearerAuth
// @Router /companies/{id}/applications [post]
func (h *Handler) Apply(c *gin.Context) {
	companyID, ok := parseID(c, "id", "company")
	if !ok {
		return
	}
	userID, _ := auth.GetUserID(c)
	application, err := h.svc.Apply(c.Request.Context(), userID, companyID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, application)
}

// MyApplications lists the caller's applications
// @Summary List my applications
// @Tags applications
// @Produce json
// @Success 200 {array} models.JobApplication
// @Security BearerAuth
// @Router /applications [get]
func (h *Handler) MyApplications(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	applications, err := h.svc.ApplicationsOf(c.Request.Context(), userID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, applications)
}

// Joinable lists companies the caller can still apply to
// @Summary List joinable companies
// @Tags applications
// @Produce json
// @Success 200 {array} models.Company
// @Security BearerAuth
// @Router /applications/joinable [get]
func (h *Handler) Joinable(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	companies, err := h.svc.CompaniesICanJoin(c.Request.Context(), userID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, companies)
}

// decide loads the application and checks the caller leads its company
func (h *Handler) decide(c *gin.Context) (uint, bool) {
	applicationID, ok := parseID(c, "id", "application")
	if !ok {
		return 0, false
	}
	application, err := h.svc.FindApplication(c.Request.Context(), applicationID)
	if err != nil {
		apperr.Respond(c, err)
		return 0, false
	}
	if !h.authorizeLeader(c, application.CompanyID) {
		return 0, false
	}
	return applicationID, true
}

// Accept accepts an application (leader or deputy)
// @Summary Accept application
// @Tags applications
// @Produce json
// @Param id path int true "Application ID"
// @Success 200 {object} models.JobApplication
// @Security BearerAuth
// @Router /applications/{id}/accept [post]
func (h *Handler) Accept(c *gin.Context) {
	applicationID, ok := h.decide(c)
	if !ok {
		return
	}
	application, err := h.svc.AcceptApplication(c.Request.Context(), applicationID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, application)
}

// Reject deletes an application (leader or deputy)
// @Summary Reject application
// @Tags applications
// @Param id path int true "Application ID"
// @Success 204
// @Security BearerAuth
// @Router /applications/{id}/reject [post]
func (h *Handler) Reject(c *gin.Context) {
	applicationID, ok := h.decide(c)
	if !ok {
		return
	}
	if err := h.svc.RejectApplication(c.Request.Context(), applicationID); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Withdraw deletes the caller's own application
// @Summary Withdraw application
// @Tags applications
// @Param id path int true "Application ID"
// @Success 204
// @Security BearerAuth
// @Router /applications/{id} [delete]
func (h *Handler) Withdraw(c *gin.Context) {
	applicationID, ok := parseID(c, "id", "application")
	if !ok {
		return
	}
	userID, _ := auth.GetUserID(c)
	if err := h.svc.Withdraw(c.Request.Context(), userID, applicationID); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RegisterRoutes registers company routes on an authenticated group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	companies := rg.Group("/companies")
	companies.GET("", h.List)
	companies.POST("", h.Create)
	companies.GET("/:id", h.Get)
	companies.PUT("/:id", h.Update)
	companies.DELETE("/:id", h.Delete)
	companies.PUT("/:id/deputy", h.UpdateDeputy)
	companies.GET("/:id/employees", h.Employees)
	companies.DELETE("/:id/employees/:userId", h.RemoveEmployee)
	companies.POST("/:id/leave", h.Leave)
	companies.GET("/:id/applications", h.PendingApplications)
	companies.POST("/:id/applications", h.Apply)

	applications := rg.Group("/applications")
	applications.GET("", h.MyApplications)
	applications.GET("/joinable", h.Joinable)
	applications.POST("/:id/accept", h.Accept)
	applications.POST("/:id/reject", h.Reject)
	applications.DELETE("/:id", h.Withdraw)
}
