package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/wbklx250-ops/provision-engine/internal/artifact"
	"github.com/wbklx250-ops/provision-engine/internal/domain"
	"github.com/wbklx250-ops/provision-engine/internal/service"
	"github.com/wbklx250-ops/provision-engine/internal/transport"
)

type stubBatchService struct {
	validateFn       func(domainsCSV, tenantsCSV, credentialsCSV string) *artifact.ValidationResult
	createAndStartFn func(ctx context.Context, req service.CreateBatchRequest) (*domain.Batch, *artifact.ValidationResult, error)
	statusFn         func(ctx context.Context, batchID string) (*service.BatchStatusView, error)
	activityFn       func(ctx context.Context, batchID string, limit int) ([]domain.ActivityLogEntry, error)
	pauseFn          func(ctx context.Context, batchID string) error
	resumeFn         func(ctx context.Context, batchID string) error
	confirmFn        func(ctx context.Context, batchID string) error
	retryFailedFn    func(ctx context.Context, batchID string) error
	rerunAllFn       func(ctx context.Context, batchID string) error
	forceCompleteFn  func(ctx context.Context, batchID, itemName string) error
}

func (s *stubBatchService) ValidateArtifacts(domainsCSV, tenantsCSV, credentialsCSV string) *artifact.ValidationResult {
	if s.validateFn != nil {
		return s.validateFn(domainsCSV, tenantsCSV, credentialsCSV)
	}
	return &artifact.ValidationResult{Valid: true, Errors: []string{}, Warnings: []string{}}
}

func (s *stubBatchService) CreateAndStart(ctx context.Context, req service.CreateBatchRequest) (*domain.Batch, *artifact.ValidationResult, error) {
	if s.createAndStartFn != nil {
		return s.createAndStartFn(ctx, req)
	}
	return nil, nil, domain.ErrValidation
}

func (s *stubBatchService) Status(ctx context.Context, batchID string) (*service.BatchStatusView, error) {
	if s.statusFn != nil {
		return s.statusFn(ctx, batchID)
	}
	return nil, domain.ErrNotFound
}

func (s *stubBatchService) Activity(ctx context.Context, batchID string, limit int) ([]domain.ActivityLogEntry, error) {
	if s.activityFn != nil {
		return s.activityFn(ctx, batchID, limit)
	}
	return nil, nil
}

func (s *stubBatchService) Pause(ctx context.Context, batchID string) error {
	if s.pauseFn != nil {
		return s.pauseFn(ctx, batchID)
	}
	return nil
}

func (s *stubBatchService) Resume(ctx context.Context, batchID string) error {
	if s.resumeFn != nil {
		return s.resumeFn(ctx, batchID)
	}
	return nil
}

func (s *stubBatchService) ConfirmNameservers(ctx context.Context, batchID string) error {
	if s.confirmFn != nil {
		return s.confirmFn(ctx, batchID)
	}
	return nil
}

func (s *stubBatchService) RetryFailed(ctx context.Context, batchID string) error {
	if s.retryFailedFn != nil {
		return s.retryFailedFn(ctx, batchID)
	}
	return nil
}

func (s *stubBatchService) RerunAll(ctx context.Context, batchID string) error {
	if s.rerunAllFn != nil {
		return s.rerunAllFn(ctx, batchID)
	}
	return nil
}

func (s *stubBatchService) ForceComplete(ctx context.Context, batchID, itemName string) error {
	if s.forceCompleteFn != nil {
		return s.forceCompleteFn(ctx, batchID, itemName)
	}
	return nil
}

func newBatchTestApp(t *testing.T, svc BatchService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterBatchRoutes(app, svc); err != nil {
		t.Fatalf("RegisterBatchRoutes() error = %v", err)
	}

	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

func TestBatchIntegration_CreateBatch(t *testing.T) {
	t.Parallel()

	svc := &stubBatchService{
		createAndStartFn: func(ctx context.Context, req service.CreateBatchRequest) (*domain.Batch, *artifact.ValidationResult, error) {
			if req.Name != "q3-wave" {
				t.Fatalf("name = %q, want q3-wave", req.Name)
			}
			if req.DomainsCSV == "" {
				t.Fatal("domains csv was not forwarded")
			}
			return &domain.Batch{
					ID:          "batch-1",
					Name:        req.Name,
					CurrentStep: domain.FirstStep,
					Status:      domain.BatchStatusActive,
				}, &artifact.ValidationResult{
					Valid:    true,
					Errors:   []string{},
					Warnings: []string{},
				}, nil
		},
	}

	app := newBatchTestApp(t, svc)

	body := `{"name":"q3-wave","artifacts":{"domainsName":"domains.csv","domainsCsv":"domain,tenant_id\nalpha.com,","tenantsCsv":"tenant_id,admin_email,name\n","credentialsCsv":"username,password\n"}}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/batches", body)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, string(respBody))
	}

	var parsed map[string]any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	batch, ok := parsed["batch"].(map[string]any)
	if !ok {
		t.Fatalf("response lacks batch object: %s", string(respBody))
	}
	if batch["id"] != "batch-1" {
		t.Fatalf("batch id = %v, want batch-1", batch["id"])
	}
	if batch["status"] != domain.BatchStatusActive.String() {
		t.Fatalf("batch status = %v, want active", batch["status"])
	}
}

func TestBatchIntegration_CreateBatchRejectsInvalidArtifacts(t *testing.T) {
	t.Parallel()

	svc := &stubBatchService{
		createAndStartFn: func(ctx context.Context, req service.CreateBatchRequest) (*domain.Batch, *artifact.ValidationResult, error) {
			return nil, &artifact.ValidationResult{
				Valid:  false,
				Errors: []string{`domain list: duplicate domain "alpha.com"`},
			}, fmt.Errorf("%w: artifacts failed validation", domain.ErrValidation)
		},
	}

	app := newBatchTestApp(t, svc)

	body := `{"name":"q3-wave","artifacts":{"domainsCsv":"x","tenantsCsv":"y","credentialsCsv":"z"}}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/batches", body)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	var parsed rejectedBatchResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.Success {
		t.Fatal("success = true on a rejected batch")
	}
	if parsed.Validation == nil || len(parsed.Validation.Errors) != 1 {
		t.Fatalf("validation report missing from rejection: %s", string(respBody))
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/batches", `{"artifacts":{}}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing name", resp.StatusCode)
	}
}

func TestBatchIntegration_ValidateArtifacts(t *testing.T) {
	t.Parallel()

	svc := &stubBatchService{
		validateFn: func(domainsCSV, tenantsCSV, credentialsCSV string) *artifact.ValidationResult {
			return &artifact.ValidationResult{
				Valid:    false,
				Errors:   []string{"tenant list: tenant id \"nope\" is not a well-formed GUID"},
				Warnings: []string{"credentials list: 1 credential matched no tenant"},
			}
		},
	}

	app := newBatchTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodPost, "/v1/batches/validate", `{"domainsCsv":"a","tenantsCsv":"b","credentialsCsv":"c"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200 (validation is a report, not an error)", resp.StatusCode)
	}

	var parsed artifact.ValidationResult
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.Valid {
		t.Fatal("valid = true, want false")
	}
	if len(parsed.Errors) != 1 || len(parsed.Warnings) != 1 {
		t.Fatalf("report = %+v, want 1 error and 1 warning", parsed)
	}
}

func TestBatchIntegration_GetStatus(t *testing.T) {
	t.Parallel()

	svc := &stubBatchService{
		statusFn: func(ctx context.Context, batchID string) (*service.BatchStatusView, error) {
			if batchID != "batch-1" {
				return nil, domain.ErrNotFound
			}
			return &service.BatchStatusView{
				Batch: &domain.Batch{
					ID:          "batch-1",
					Name:        "q3-wave",
					CurrentStep: domain.StepNameserverUpdate,
					Status:      domain.BatchStatusPaused,
					Version:     7,
				},
				Steps: []domain.StepRecord{
					{BatchID: "batch-1", StepNumber: 1, Status: domain.StepStatusCompleted, Completed: 3, Total: 3},
					{BatchID: "batch-1", StepNumber: 2, Status: domain.StepStatusCompleted, Completed: 3, Total: 3},
				},
				NameserverGroups: []domain.NameserverGroup{
					{Nameservers: [2]string{"ns1.host.net", "ns2.host.net"}, Domains: []string{"alpha.com", "beta.com"}},
				},
			}, nil
		},
	}

	app := newBatchTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/batches/batch-1/status", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var parsed batchStatusResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.Batch.Version != 7 {
		t.Fatalf("version = %d, want 7", parsed.Batch.Version)
	}
	if len(parsed.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(parsed.Steps))
	}
	if len(parsed.NameserverGroups) != 1 || parsed.NameserverGroups[0].DomainCount != 2 {
		t.Fatalf("nameserver groups = %+v, want one group of two domains", parsed.NameserverGroups)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/batches/not-exists/status", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestBatchIntegration_GetActivityLimit(t *testing.T) {
	t.Parallel()

	svc := &stubBatchService{
		activityFn: func(ctx context.Context, batchID string, limit int) ([]domain.ActivityLogEntry, error) {
			if limit != 5 {
				t.Fatalf("limit = %d, want 5", limit)
			}
			return []domain.ActivityLogEntry{
				{
					ID: "a-1", BatchID: batchID, StepNumber: 1, StepName: "zone creation",
					ItemKind: domain.ItemKindDomain, ItemName: "alpha.com",
					Status: domain.ActivityCompleted, CreatedAt: time.Now(),
				},
			}, nil
		},
	}

	app := newBatchTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/batches/batch-1/activity?limit=5", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var parsed activityResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if len(parsed.Data) != 1 || parsed.Data[0].ItemName != "alpha.com" {
		t.Fatalf("data = %+v, want the single alpha.com entry", parsed.Data)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/batches/batch-1/activity?limit=0", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for limit=0", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/batches/batch-1/activity?limit=9999", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for oversized limit", resp.StatusCode)
	}
}

func TestBatchIntegration_Commands(t *testing.T) {
	t.Parallel()

	svc := &stubBatchService{
		pauseFn: func(ctx context.Context, batchID string) error {
			return nil
		},
		confirmFn: func(ctx context.Context, batchID string) error {
			return fmt.Errorf("%w: batch is not waiting for nameserver confirmation", domain.ErrConflict)
		},
		retryFailedFn: func(ctx context.Context, batchID string) error {
			return domain.ErrNotFound
		},
	}

	app := newBatchTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodPost, "/v1/batches/batch-1/pause", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("pause status = %d, want 200", resp.StatusCode)
	}
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["success"] != true || parsed["batchId"] != "batch-1" {
		t.Fatalf("command response = %v, want success with batch id", parsed)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/batches/batch-1/confirm-nameservers", "")
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("confirm status = %d, want 409", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/batches/gone/retry-failed", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("retry status = %d, want 404", resp.StatusCode)
	}
}

func TestBatchIntegration_ForceComplete(t *testing.T) {
	t.Parallel()

	var gotItem string
	svc := &stubBatchService{
		forceCompleteFn: func(ctx context.Context, batchID, itemName string) error {
			gotItem = itemName
			return nil
		},
	}

	app := newBatchTestApp(t, svc)

	resp, _ := performRequest(t, app, http.MethodPost, "/v1/batches/batch-1/force-complete", `{"itemName":"alpha.com"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if gotItem != "alpha.com" {
		t.Fatalf("item = %q, want alpha.com", gotItem)
	}

	// No body force-completes the whole step.
	resp, _ = performRequest(t, app, http.MethodPost, "/v1/batches/batch-1/force-complete", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200 for empty body", resp.StatusCode)
	}
	if gotItem != "" {
		t.Fatalf("item = %q, want empty for whole-step force-complete", gotItem)
	}
}
