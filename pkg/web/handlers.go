// Package web provides the REST API over the flow lifecycle and session turns.
package web

import (
	"net/http"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	flowService    *services.Flow
	sessionService *services.Sessions
	validator      *validator.Validate
}

func NewAPIHandlers(
	flowService *services.Flow,
	sessionService *services.Sessions,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		flowService:    flowService,
		sessionService: sessionService,
		validator:      validator,
	}
}

// Register mounts every route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	f := router.Group("/flows")
	f.Get("/", h.GetFlows)
	f.Post("/", h.CreateFlow)
	f.Get("/:id", h.GetFlow)
	f.Patch("/:id", h.UpdateFlow)
	f.Delete("/:id", h.DeleteFlow)
	f.Post("/:id/validate", h.ValidateFlow)
	f.Post("/:id/publish", h.PublishFlow)
	f.Post("/:id/unpublish", h.UnpublishFlow)
	f.Post("/:id/archive", h.ArchiveFlow)

	s := router.Group("/sessions")
	s.Post("/", h.StartSession)
	s.Get("/:id", h.GetSession)
	s.Post("/:id/continue", h.ContinueSession)
	s.Post("/:id/transfer", h.TransferSession)

	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, ok := h.flowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Chatflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "Chatflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// Ready is the readiness probe.
func (h *APIHandlers) Ready(c fiber.Ctx) bool {
	_, ok := h.flowService.HealthCheck(c.Context())

	return ok
}

func (h *APIHandlers) GetFlows(c fiber.Ctx) error {
	flows, err := h.flowService.ListFlows(c.Context(), services.ListFlowsRequest{
		TenantID: c.Query("tenant_id"),
		Status:   models.FlowStatus(c.Query("status")),
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flows)
}

func (h *APIHandlers) CreateFlow(c fiber.Ctx) error {
	var req CreateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.flowService.CreateFlow(c.Context(), req.Flow())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetFlow(c fiber.Ctx) error {
	flow, err := h.flowService.GetFlow(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flow)
}

func (h *APIHandlers) UpdateFlow(c fiber.Ctx) error {
	var req UpdateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.flowService.UpdateFlow(c.Context(), c.Params("id"), req.service())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteFlow(c fiber.Ctx) error {
	err := h.flowService.DeleteFlow(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ValidateFlow always answers 200; the body says whether the flow is valid.
func (h *APIHandlers) ValidateFlow(c fiber.Ctx) error {
	result, err := h.flowService.ValidateFlow(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) PublishFlow(c fiber.Ctx) error {
	published, err := h.flowService.PublishFlow(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(published)
}

func (h *APIHandlers) UnpublishFlow(c fiber.Ctx) error {
	unpublished, err := h.flowService.UnpublishFlow(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(unpublished)
}

func (h *APIHandlers) ArchiveFlow(c fiber.Ctx) error {
	archived, err := h.flowService.ArchiveFlow(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(archived)
}

func (h *APIHandlers) StartSession(c fiber.Ctx) error {
	var req StartSessionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.sessionService.Start(c.Context(), req.engine())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *APIHandlers) GetSession(c fiber.Ctx) error {
	session, err := h.sessionService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(session)
}

func (h *APIHandlers) ContinueSession(c fiber.Ctx) error {
	var req ContinueSessionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.sessionService.Continue(c.Context(), c.Params("id"), req.Message)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) TransferSession(c fiber.Ctx) error {
	var req TransferSessionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	session, err := h.sessionService.Transfer(c.Context(), c.Params("id"), req.Target)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(session)
}
