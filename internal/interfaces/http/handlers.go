package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/garyjia/purchase-approval/internal/application/service"
	"github.com/garyjia/purchase-approval/internal/domain/entity"
	"github.com/garyjia/purchase-approval/pkg/apperror"
)

// HealthFunc reports whether the service can take traffic, plus details
type HealthFunc func(c *gin.Context) (bool, interface{})

// Handlers contains all HTTP request handlers
type Handlers struct {
	approvals service.ApprovalService
	templates service.TemplateService
	health    HealthFunc
	logger    Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	approvals service.ApprovalService,
	templates service.TemplateService,
	health HealthFunc,
	logger Logger,
) *Handlers {
	return &Handlers{
		approvals: approvals,
		templates: templates,
		health:    health,
		logger:    logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Components interface{} `json:"components,omitempty"`
}

// SubmitRequest is the body of POST /api/requests
type SubmitRequest struct {
	Title       string           `json:"title" binding:"required"`
	Description string           `json:"description"`
	Amount      *decimal.Decimal `json:"amount"`
	Category    *string          `json:"category"`
}

// ActionRequest is the body of approve and reject
type ActionRequest struct {
	Comment string `json:"comment"`
	Reason  string `json:"reason"`
}

// CancelRequest is the body of cancel
type CancelRequest struct {
	Reason string `json:"reason"`
}

// TemplateRequest is the body of template create and update. An omitted
// "active" means active, for the template and for each step.
type TemplateRequest struct {
	entity.WorkflowTemplate
	Active *bool         `json:"active"`
	Steps  []StepRequest `json:"steps"`
}

// StepRequest is one step inside a TemplateRequest
type StepRequest struct {
	entity.StepDefinition
	Active *bool `json:"active"`
}

func (r *TemplateRequest) toEntity() *entity.WorkflowTemplate {
	tmpl := r.WorkflowTemplate
	tmpl.Active = boolOr(r.Active, true)
	tmpl.Steps = make([]entity.StepDefinition, 0, len(r.Steps))
	for _, s := range r.Steps {
		step := s.StepDefinition
		step.Active = boolOr(s.Active, true)
		tmpl.Steps = append(tmpl.Steps, step)
	}
	return &tmpl
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// AccessResponse tells the caller what they may do with a request
type AccessResponse struct {
	RequestID   int64 `json:"request_id"`
	CanApprove  bool  `json:"can_approve"`
	IsRequester bool  `json:"is_requester"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	healthy, detail := true, interface{}(nil)
	if h.health != nil {
		healthy, detail = h.health(c)
	}

	resp := HealthResponse{
		Status:     "healthy",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: detail,
	}
	status := http.StatusOK
	if !healthy {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, Response{Success: healthy, Data: resp})
}

// SubmitRequest handles POST /api/requests
func (h *Handlers) SubmitRequest(c *gin.Context) {
	var body SubmitRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, apperror.NewValidationError("body", err.Error()))
		return
	}
	session, _ := sessionFrom(c)

	req, err := h.approvals.Submit(c.Request.Context(), service.SubmitInput{
		RequesterID: session.ID,
		Title:       body.Title,
		Description: body.Description,
		Amount:      body.Amount,
		Category:    body.Category,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: req})
}

// ListMine handles GET /api/requests
func (h *Handlers) ListMine(c *gin.Context) {
	session, _ := sessionFrom(c)
	reqs, err := h.approvals.ListByRequester(c.Request.Context(), session.ID, c.Query("status"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, reqs)
}

// ListByStatus handles GET /api/requests/status/:status
func (h *Handlers) ListByStatus(c *gin.Context) {
	reqs, err := h.approvals.ListByStatus(c.Request.Context(), c.Param("status"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, reqs)
}

// ListPending handles GET /api/requests/pending
func (h *Handlers) ListPending(c *gin.Context) {
	session, _ := sessionFrom(c)
	reqs, err := h.approvals.PendingForApprover(c.Request.Context(), session.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, reqs)
}

// GetRequest handles GET /api/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	req, err := h.approvals.GetRequest(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, req)
}

// GetAccess handles GET /api/requests/:id/access
func (h *Handlers) GetAccess(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	session, _ := sessionFrom(c)
	ctx := c.Request.Context()

	canApprove, err := h.approvals.CanApprove(ctx, id, session.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	isRequester, err := h.approvals.IsRequester(ctx, id, session.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, AccessResponse{RequestID: id, CanApprove: canApprove, IsRequester: isRequester})
}

// Approve handles POST /api/requests/:id/approve
func (h *Handlers) Approve(c *gin.Context) {
	h.decide(c, h.approvals.Approve)
}

// Reject handles POST /api/requests/:id/reject
func (h *Handlers) Reject(c *gin.Context) {
	h.decide(c, h.approvals.Reject)
}

func (h *Handlers) decide(c *gin.Context, act func(ctx context.Context, in service.ActionInput) (*entity.PurchaseRequest, error)) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	var body ActionRequest
	if !h.bindOptional(c, &body) {
		return
	}
	session, _ := sessionFrom(c)

	req, err := act(c.Request.Context(), service.ActionInput{
		RequestID: id,
		ActorID:   session.ID,
		Comment:   body.Comment,
		Reason:    body.Reason,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, req)
}

// Cancel handles POST /api/requests/:id/cancel
func (h *Handlers) Cancel(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	var body CancelRequest
	if !h.bindOptional(c, &body) {
		return
	}
	session, _ := sessionFrom(c)

	req, err := h.approvals.Cancel(c.Request.Context(), service.CancelInput{
		RequestID: id,
		ActorID:   session.ID,
		Reason:    body.Reason,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, req)
}

// StartPurchase handles POST /api/requests/:id/start-purchase
func (h *Handlers) StartPurchase(c *gin.Context) {
	h.purchaseStep(c, h.approvals.StartPurchase)
}

// Complete handles POST /api/requests/:id/complete
func (h *Handlers) Complete(c *gin.Context) {
	h.purchaseStep(c, h.approvals.Complete)
}

func (h *Handlers) purchaseStep(c *gin.Context, act func(ctx context.Context, requestID, actorID int64) (*entity.PurchaseRequest, error)) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	session, _ := sessionFrom(c)
	req, err := act(c.Request.Context(), id, session.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, req)
}

// History handles GET /api/requests/:id/history
func (h *Handlers) History(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	entries, err := h.approvals.History(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, entries)
}

// ExportHistory handles GET /api/requests/:id/history/export
func (h *Handlers) ExportHistory(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	doc, err := h.approvals.ExportHistory(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
	c.Data(http.StatusOK, doc.ContentType, doc.Data)
}

// ListTemplates handles GET /api/templates
func (h *Handlers) ListTemplates(c *gin.Context) {
	filter := service.TemplateFilter{Category: c.Query("category")}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			h.fail(c, apperror.NewValidationError("active", "must be true or false"))
			return
		}
		filter.Active = &active
	}

	templates, err := h.templates.List(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, templates)
}

// Categories handles GET /api/templates/categories
func (h *Handlers) Categories(c *gin.Context) {
	categories, err := h.templates.Categories(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, categories)
}

// MatchTemplates handles GET /api/templates/match
func (h *Handlers) MatchTemplates(c *gin.Context) {
	var amount *decimal.Decimal
	if raw := c.Query("amount"); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			h.fail(c, apperror.NewValidationError("amount", "not a decimal number"))
			return
		}
		amount = &d
	}
	var category *string
	if raw := c.Query("category"); raw != "" {
		category = &raw
	}

	templates, err := h.templates.Match(c.Request.Context(), amount, category)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, templates)
}

// GetTemplate handles GET /api/templates/:id
func (h *Handlers) GetTemplate(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	tmpl, err := h.templates.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, tmpl)
}

// CreateTemplate handles POST /api/templates
func (h *Handlers) CreateTemplate(c *gin.Context) {
	var body TemplateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, apperror.NewValidationError("body", err.Error()))
		return
	}
	tmpl := body.toEntity()
	tmpl.ID = 0

	created, err := h.templates.Create(c.Request.Context(), tmpl)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: created})
}

// UpdateTemplate handles PUT /api/templates/:id
func (h *Handlers) UpdateTemplate(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	var body TemplateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, apperror.NewValidationError("body", err.Error()))
		return
	}

	updated, err := h.templates.Update(c.Request.Context(), id, body.toEntity())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, updated)
}

// DeleteTemplate handles DELETE /api/templates/:id
func (h *Handlers) DeleteTemplate(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	if err := h.templates.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeactivateTemplate handles POST /api/templates/:id/deactivate
func (h *Handlers) DeactivateTemplate(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}
	if err := h.templates.Deactivate(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, gin.H{"id": id, "active": false})
}

func (h *Handlers) ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// fail maps err onto the response envelope. Errors outside the apperror
// taxonomy are logged and hidden behind a 500.
func (h *Handlers) fail(c *gin.Context, err error) {
	if _, ok := apperror.As(err); !ok {
		h.logger.Error("Request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"request_id", c.GetString(ctxKeyRequestID),
			"error", err)
	}
	abortWithError(c, err)
}

func (h *Handlers) idParam(c *gin.Context) (int64, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.fail(c, apperror.NewValidationError("id", "invalid id "+strconv.Quote(raw)))
		return 0, false
	}
	return id, true
}

// bindOptional decodes a JSON body when one was sent
func (h *Handlers) bindOptional(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		h.fail(c, apperror.NewValidationError("body", err.Error()))
		return false
	}
	return true
}
