package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/wbklx250-ops/provision-engine/internal/artifact"
	"github.com/wbklx250-ops/provision-engine/internal/domain"
	"github.com/wbklx250-ops/provision-engine/internal/service"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 200
)

type BatchService interface {
	ValidateArtifacts(domainsCSV, tenantsCSV, credentialsCSV string) *artifact.ValidationResult
	CreateAndStart(ctx context.Context, req service.CreateBatchRequest) (*domain.Batch, *artifact.ValidationResult, error)
	Status(ctx context.Context, batchID string) (*service.BatchStatusView, error)
	Activity(ctx context.Context, batchID string, limit int) ([]domain.ActivityLogEntry, error)
	Pause(ctx context.Context, batchID string) error
	Resume(ctx context.Context, batchID string) error
	ConfirmNameservers(ctx context.Context, batchID string) error
	RetryFailed(ctx context.Context, batchID string) error
	RerunAll(ctx context.Context, batchID string) error
	ForceComplete(ctx context.Context, batchID, itemName string) error
}

type BatchHandler struct {
	service BatchService
}

func NewBatchHandler(service BatchService) (*BatchHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("batch service is required")
	}
	return &BatchHandler{service: service}, nil
}

func RegisterBatchRoutes(router fiber.Router, service BatchService) error {
	h, err := NewBatchHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/batches/validate", h.ValidateArtifacts)
	v1.Post("/batches", h.CreateBatch)
	v1.Get("/batches/:id/status", h.GetStatus)
	v1.Get("/batches/:id/activity", h.GetActivity)
	v1.Post("/batches/:id/pause", h.PauseBatch)
	v1.Post("/batches/:id/resume", h.ResumeBatch)
	v1.Post("/batches/:id/confirm-nameservers", h.ConfirmNameservers)
	v1.Post("/batches/:id/retry-failed", h.RetryFailed)
	v1.Post("/batches/:id/rerun-all", h.RerunAll)
	v1.Post("/batches/:id/force-complete", h.ForceComplete)

	return nil
}

type artifactsRequest struct {
	DomainsName     string `json:"domainsName"`
	TenantsName     string `json:"tenantsName"`
	CredentialsName string `json:"credentialsName"`
	DomainsCSV      string `json:"domainsCsv"`
	TenantsCSV      string `json:"tenantsCsv"`
	CredentialsCSV  string `json:"credentialsCsv"`
}

type createBatchRequest struct {
	Name               string           `json:"name"`
	Description        string           `json:"description"`
	RedirectURL        *string          `json:"redirectUrl"`
	SequencerAccountID *string          `json:"sequencerAccountId"`
	Artifacts          artifactsRequest `json:"artifacts"`
}

type batchResponse struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Description         string    `json:"description,omitempty"`
	CurrentStep         int       `json:"currentStep"`
	Status              string    `json:"status"`
	Version             int64     `json:"version"`
	RedirectURL         *string   `json:"redirectUrl,omitempty"`
	SequencerAccountID  *string   `json:"sequencerAccountId,omitempty"`
	DomainsArtifact     string    `json:"domainsArtifact"`
	TenantsArtifact     string    `json:"tenantsArtifact"`
	CredentialsArtifact string    `json:"credentialsArtifact"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

type createBatchResponse struct {
	Batch      batchResponse              `json:"batch"`
	Validation *artifact.ValidationResult `json:"validation,omitempty"`
}

type rejectedBatchResponse struct {
	Success    bool                       `json:"success"`
	Message    string                     `json:"message"`
	Validation *artifact.ValidationResult `json:"validation,omitempty"`
}

type stepResponse struct {
	StepNumber int       `json:"stepNumber"`
	Status     string    `json:"status"`
	Completed  int       `json:"completed"`
	Failed     int       `json:"failed"`
	Total      int       `json:"total"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type nameserverGroupResponse struct {
	Nameservers []string `json:"nameservers"`
	DomainCount int      `json:"domainCount"`
	Domains     []string `json:"domains"`
}

type batchStatusResponse struct {
	Batch            batchResponse             `json:"batch"`
	Steps            []stepResponse            `json:"steps"`
	NameserverGroups []nameserverGroupResponse `json:"nameserverGroups,omitempty"`
}

type activityEntryResponse struct {
	ID         string    `json:"id"`
	StepNumber int       `json:"stepNumber"`
	StepName   string    `json:"stepName"`
	ItemKind   string    `json:"itemKind"`
	ItemName   string    `json:"itemName"`
	Status     string    `json:"status"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type activityResponse struct {
	Data []activityEntryResponse `json:"data"`
}

type forceCompleteRequest struct {
	ItemName string `json:"itemName"`
}

func (h *BatchHandler) ValidateArtifacts(c *fiber.Ctx) error {
	var req artifactsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	result := h.service.ValidateArtifacts(req.DomainsCSV, req.TenantsCSV, req.CredentialsCSV)
	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *BatchHandler) CreateBatch(c *fiber.Ctx) error {
	var req createBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if strings.TrimSpace(req.Name) == "" {
		return toHTTPError(fmt.Errorf("%w: name is required", domain.ErrValidation))
	}

	batch, validation, err := h.service.CreateAndStart(c.Context(), service.CreateBatchRequest{
		Name:                strings.TrimSpace(req.Name),
		Description:         strings.TrimSpace(req.Description),
		RedirectURL:         req.RedirectURL,
		SequencerAccountID:  req.SequencerAccountID,
		DomainsArtifact:     req.Artifacts.DomainsName,
		TenantsArtifact:     req.Artifacts.TenantsName,
		CredentialsArtifact: req.Artifacts.CredentialsName,
		DomainsCSV:          req.Artifacts.DomainsCSV,
		TenantsCSV:          req.Artifacts.TenantsCSV,
		CredentialsCSV:      req.Artifacts.CredentialsCSV,
	})
	if err != nil {
		// Artifact rejections carry the full validation report so the
		// operator can fix the CSVs without a separate validate call.
		if errors.Is(err, domain.ErrValidation) && validation != nil {
			return c.Status(fiber.StatusBadRequest).JSON(rejectedBatchResponse{
				Success:    false,
				Message:    err.Error(),
				Validation: validation,
			})
		}
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(createBatchResponse{
		Batch:      toBatchResponse(batch),
		Validation: validation,
	})
}

func (h *BatchHandler) GetStatus(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	view, err := h.service.Status(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toStatusResponse(view))
}

func (h *BatchHandler) GetActivity(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))

	limit := c.QueryInt("limit", defaultActivityLimit)
	if limit < 1 || limit > maxActivityLimit {
		return toHTTPError(fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxActivityLimit))
	}

	entries, err := h.service.Activity(c.Context(), id, limit)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]activityEntryResponse, 0, len(entries))
	for _, entry := range entries {
		data = append(data, activityEntryResponse{
			ID:         entry.ID,
			StepNumber: entry.StepNumber,
			StepName:   entry.StepName,
			ItemKind:   entry.ItemKind.String(),
			ItemName:   entry.ItemName,
			Status:     entry.Status.String(),
			Message:    entry.Message,
			CreatedAt:  entry.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(activityResponse{Data: data})
}

func (h *BatchHandler) PauseBatch(c *fiber.Ctx) error {
	return h.command(c, h.service.Pause)
}

func (h *BatchHandler) ResumeBatch(c *fiber.Ctx) error {
	return h.command(c, h.service.Resume)
}

func (h *BatchHandler) ConfirmNameservers(c *fiber.Ctx) error {
	return h.command(c, h.service.ConfirmNameservers)
}

func (h *BatchHandler) RetryFailed(c *fiber.Ctx) error {
	return h.command(c, h.service.RetryFailed)
}

func (h *BatchHandler) RerunAll(c *fiber.Ctx) error {
	return h.command(c, h.service.RerunAll)
}

func (h *BatchHandler) ForceComplete(c *fiber.Ctx) error {
	var req forceCompleteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.ForceComplete(c.Context(), id, strings.TrimSpace(req.ItemName)); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"batchId": id,
	})
}

func (h *BatchHandler) command(c *fiber.Ctx, fn func(ctx context.Context, batchID string) error) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := fn(c.Context(), id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"batchId": id,
	})
}

func toBatchResponse(b *domain.Batch) batchResponse {
	if b == nil {
		return batchResponse{}
	}

	return batchResponse{
		ID:                  b.ID,
		Name:                b.Name,
		Description:         b.Description,
		CurrentStep:         b.CurrentStep,
		Status:              b.Status.String(),
		Version:             b.Version,
		RedirectURL:         b.RedirectURL,
		SequencerAccountID:  b.SequencerAccountID,
		DomainsArtifact:     b.DomainsArtifact,
		TenantsArtifact:     b.TenantsArtifact,
		CredentialsArtifact: b.CredentialsArtifact,
		CreatedAt:           b.CreatedAt,
		UpdatedAt:           b.UpdatedAt,
	}
}

func toStatusResponse(view *service.BatchStatusView) batchStatusResponse {
	resp := batchStatusResponse{
		Batch: toBatchResponse(view.Batch),
		Steps: make([]stepResponse, 0, len(view.Steps)),
	}

	for _, step := range view.Steps {
		resp.Steps = append(resp.Steps, stepResponse{
			StepNumber: step.StepNumber,
			Status:     step.Status.String(),
			Completed:  step.Completed,
			Failed:     step.Failed,
			Total:      step.Total,
			UpdatedAt:  step.UpdatedAt,
		})
	}

	for _, group := range view.NameserverGroups {
		resp.NameserverGroups = append(resp.NameserverGroups, nameserverGroupResponse{
			Nameservers: []string{group.Nameservers[0], group.Nameservers[1]},
			DomainCount: group.DomainCount(),
			Domains:     group.Domains,
		})
	}

	return resp
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
