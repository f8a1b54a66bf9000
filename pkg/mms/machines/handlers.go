package machines

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/mms/pkg/mms/apperr"
	"github.com/mikepea/mms/pkg/mms/auth"
	"github.com/mikepea/mms/pkg/mms/logging"
	"github.com/mikepea/mms/pkg/mms/models"
	"github.com/mikepea/mms/pkg/mms/users"
)

// Handler handles machine requests
type Handler struct {
	svc    *Service
	users  *users.Store
	logger *slog.Logger
}

// NewHandler creates a new machines handler
func NewHandler(svc *Service, userStore *users.Store, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, users: userStore, logger: logging.OrDefault(logger)}
}

// UpdateTaxRequest carries a new tax rate in percent
type UpdateTaxRequest struct {
	TaxInPercent *float64 `json:"tax_in_percent" binding:"required"`
}

func parseID(c *gin.Context, param, what string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + what + " ID"})
		return 0, false
	}
	return uint(id), true
}

// machine loads the :id machine if the caller may see it. Admins see every
// machine.
func (h *Handler) machine(c *gin.Context) (*models.Machine, bool) {
	machineID, ok := parseID(c, "id", "machine")
	if !ok {
		return nil, false
	}
	ctx := c.Request.Context()
	userID, _ := auth.GetUserID(c)
	admin, err := h.users.HasRole(ctx, userID, models.RoleAdmin)
	if err != nil {
		apperr.Respond(c, err)
		return nil, false
	}
	var machine *models.Machine
	if admin {
		machine, err = h.svc.Get(ctx, machineID)
	} else {
		machine, err = h.svc.GetForUser(ctx, userID, machineID)
	}
	if err != nil {
		apperr.Respond(c, err)
		return nil, false
	}
	return machine, true
}

// ListForCompany lists a company's active machines
// @Summary List company machines
// @Tags machines
// @Produce json
// @Param id path int true "Company ID"
// @Success 200 {array} models.Machine
// @Security BearerAuth
// @Router /companies/{id}/machines [get]
func (h *Handler) ListForCompany(c *gin.Context) {
	companyID, ok := parseID(c, "id", "company")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	userID, _ := auth.GetUserID(c)
	admin, err := h.users.HasRole(ctx, userID, models.RoleAdmin)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if !admin {
		if err := h.svc.access.CompanyAccess(ctx, userID, companyID); err != nil {
			apperr.Respond(c, err)
			return
		}
	}
	machines, err := h.svc.ListForCompany(ctx, companyID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, machines)
}

// Add registers a machine with a company
// @Summary Add machine
// @Tags machines
// @Accept json
// @Produce json
// @Param id path int true "Company ID"
// @Param request body MachineInput true "Machine details"
// @Success 201 {object} models.Machine
// @Security BearerAuth
// @Router /companies/{id}/machines [post]
func (h *Handler) Add(c *gin.Context) {
	companyID, ok := parseID(c, "id", "company")
	if !ok {
		return
	}
	var req MachineInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, _ := auth.GetUserID(c)
	machine, err := h.svc.Add(c.Request.Context(), userID, companyID, req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, machine)
}

// Get returns a machine with its parts
// @Summary Get machine
// @Tags machines
// @Produce json
// @Param id path int true "Machine ID"
// @Success 200 {object} models.Machine
// @Security BearerAuth
// @Router /machines/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	machine, ok := h.machine(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, machine)
}

// Update changes machine details
// @Summary Update machine
// @Tags machines
// @Accept json
// @Produce json
// @Param id path int true "Machine ID"
// @Param request body MachineInput true "Machine details"
// @Success 200 {object} models.Machine
// @Security BearerAuth
// @Router /machines/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	machine, ok := h.machine(c)
	if !ok {
		return
	}
	var req MachineInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updated, err := h.svc.Update(c.Request.Context(), machine.ID, req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Deactivate hides a machine
// @Summary Deactivate machine
// @Tags machines
// @Param id path int true "Machine ID"
// @Success 204
// @Security BearerAuth
// @Router /machines/{id} [delete]
func (h *Handler) Deactivate(c *gin.Context) {
	machine, ok := h.machine(c)
	if !ok {
		return
	}
	if err := h.svc.Deactivate(c.Request.Context(), machine.ID); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateTax reprices the machine's parts
// @Summary Update machine tax
// @Tags machines
// @Accept json
// @Produce json
// @Param id path int true "Machine ID"
// @Param request body UpdateTaxRequest true "Tax rate"
// @Success 200 {object} models.Machine
// @Failure 400 {object} map[string]string "Tax outside [0,100]"
// @Security BearerAuth
// @Router /machines/{id}/tax [put]
func (h *Handler) UpdateTax(c *gin.Context) {
	machine, ok := h.machine(c)
	if !ok {
		return
	}
	var req UpdateTaxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updated, err := h.svc.UpdateTax(c.Request.Context(), machine.ID, *req.TaxInPercent)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// AddPart bills a part against the machine
// @Summary Add part
// @Tags machines
// @Accept json
// @Produce json
// @Param id path int true "Machine ID"
// @Param request body PartInput true "Part"
// @Success 201 {object} models.MachinePart
// @Security BearerAuth
// @Router /machines/{id}/parts [post]
func (h *Handler) AddPart(c *gin.Context) {
	machine, ok := h.machine(c)
	if !ok {
		return
	}
	var req PartInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	part, err := h.svc.AddPart(c.Request.Context(), machine.ID, req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, part)
}

// DeletePart removes a part from the machine
// @Summary Delete part
// @Tags machines
// @Param id path int true "Machine ID"
// @Param partId path int true "Part ID"
// @Success 204
// @Security BearerAuth
// @Router /machines/{id}/parts/{partId} [delete]
func (h *Handler) DeletePart(c *gin.Context) {
	machine, ok := h.machine(c)
	if !ok {
		return
	}
	partID, ok := parseID(c, "partId", "part")
	if !ok {
		return
	}
	if err := h.svc.DeletePart(c.Request.Context(), machine.ID, partID); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Summary totals the caller's companies for one month. Defaults to the
// current month.
// @Summary Monthly summary
// @Tags machines
// @Produce json
// @Param year query int false "Year"
// @Param month query int false "Month"
// @Success 200 {object} MonthlySummary
// @Security BearerAuth
// @Router /machines/summary [get]
func (h *Handler) Summary(c *gin.Context) {
	now := time.Now().UTC()
	year, err := strconv.Atoi(c.DefaultQuery("year", strconv.Itoa(now.Year())))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid year"})
		return
	}
	month, err := strconv.Atoi(c.DefaultQuery("month", strconv.Itoa(int(now.Month()))))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid month"})
		return
	}

	ctx := c.Request.Context()
	userID, _ := auth.GetUserID(c)
	companyIDs, err := h.svc.access.ReachableCompanyIDs(ctx, userID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	summary, err := h.svc.Summary(ctx, year, month, companyIDs)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ListInactive lists deactivated machines (admin only)
// @Summary List inactive machines
// @Tags admin
// @Produce json
// @Success 200 {array} models.Machine
// @Security BearerAuth
// @Router /admin/machines/inactive [get]
func (h *Handler) ListInactive(c *gin.Context) {
	machines, err := h.svc.ListInactive(c.Request.Context())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, machines)
}

// DeleteInactive permanently deletes a deactivated machine (admin only)
// @Summary Delete inactive machine
// @Tags admin
// @Param id path int true "Machine ID"
// @Success 204
// @Security BearerAuth
// @Router /admin/machines/{id} [delete]
func (h *Handler) DeleteInactive(c *gin.Context) {
	machineID, ok := parseID(c, "id", "machine")
	if !ok {
		return
	}
	if err := h.svc.DeleteInactive(c.Request.Context(), machineID); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RegisterRoutes registers machine routes on an authenticated group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/companies/:id/machines", h.ListForCompany)
	rg.POST("/companies/:id/machines", h.Add)

	machines := rg.Group("/machines")
	machines.GET("/summary", h.Summary)
	machines.GET("/:id", h.Get)
	machines.PUT("/:id", h.Update)
	machines.DELETE("/:id", h.Deactivate)
	machines.PUT("/:id/tax", h.UpdateTax)
	machines.POST("/:id/parts", h.AddPart)
	machines.DELETE("/:id/parts/:partId", h.DeletePart)
}

// RegisterAdminRoutes registers admin-only routes. The group must already
// require the ADMIN role.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.GET("/machines/inactive", h.ListInactive)
	rg.DELETE("/machines/:id", h.DeleteInactive)
}
