package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/wbklx250-ops/provision-engine/internal/domain"
	"github.com/wbklx250-ops/provision-engine/internal/service"
)

type JobService interface {
	Submit(ctx context.Context, spec domain.JobSpec) (*domain.BackgroundJob, error)
	Get(ctx context.Context, jobID string) (*service.JobView, error)
}

type JobHandler struct {
	service JobService
}

func NewJobHandler(service JobService) (*JobHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("job service is required")
	}
	return &JobHandler{service: service}, nil
}

func RegisterJobRoutes(router fiber.Router, service JobService) error {
	h, err := NewJobHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/jobs", h.SubmitJob)
	v1.Get("/jobs/:id", h.GetJob)

	return nil
}

type submitJobRequest struct {
	Kind               string   `json:"kind"`
	BatchID            string   `json:"batchId"`
	SequencerAccountID string   `json:"sequencerAccountId"`
	SkipExisting       bool     `json:"skipExisting"`
	Items              []string `json:"items"`
}

type jobItemResultResponse struct {
	ItemName  string    `json:"itemName"`
	Outcome   string    `json:"outcome"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type jobResponse struct {
	ID                 string                  `json:"id"`
	Kind               string                  `json:"kind"`
	Status             string                  `json:"status"`
	BatchID            *string                 `json:"batchId,omitempty"`
	SequencerAccountID *string                 `json:"sequencerAccountId,omitempty"`
	SkipExisting       bool                    `json:"skipExisting"`
	Total              int                     `json:"total"`
	Succeeded          int                     `json:"succeeded"`
	Failed             int                     `json:"failed"`
	Skipped            int                     `json:"skipped"`
	CreatedAt          time.Time               `json:"createdAt"`
	UpdatedAt          time.Time               `json:"updatedAt"`
	Results            []jobItemResultResponse `json:"results,omitempty"`
}

func (h *JobHandler) SubmitJob(c *fiber.Ctx) error {
	var req submitJobRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	kind, err := domain.ParseJobKindFromString(req.Kind)
	if err != nil {
		return toHTTPError(err)
	}

	job, err := h.service.Submit(c.Context(), domain.JobSpec{
		Kind:               kind,
		BatchID:            strings.TrimSpace(req.BatchID),
		SequencerAccountID: strings.TrimSpace(req.SequencerAccountID),
		SkipExisting:       req.SkipExisting,
		Items:              req.Items,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toJobResponse(job, nil))
}

func (h *JobHandler) GetJob(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	view, err := h.service.Get(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toJobResponse(view.Job, view.Results))
}

func toJobResponse(job *domain.BackgroundJob, results []domain.JobItemResult) jobResponse {
	if job == nil {
		return jobResponse{}
	}

	resp := jobResponse{
		ID:                 job.ID,
		Kind:               job.Kind.String(),
		Status:             job.Status.String(),
		BatchID:            job.BatchID,
		SequencerAccountID: job.SequencerAccountID,
		SkipExisting:       job.SkipExisting,
		Total:              job.Total,
		Succeeded:          job.Succeeded,
		Failed:             job.Failed,
		Skipped:            job.Skipped,
		CreatedAt:          job.CreatedAt,
		UpdatedAt:          job.UpdatedAt,
	}

	for _, result := range results {
		resp.Results = append(resp.Results, jobItemResultResponse{
			ItemName:  result.ItemName,
			Outcome:   result.Outcome.String(),
			Message:   result.Message,
			CreatedAt: result.CreatedAt,
		})
	}

	return resp
}
