package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wbklx250-ops/provision-engine/internal/artifact"
	"github.com/wbklx250-ops/provision-engine/internal/domain"
	"github.com/wbklx250-ops/provision-engine/internal/observability"
	"github.com/wbklx250-ops/provision-engine/internal/repository"
)

const minStepConcurrency = 1

// CreateBatchRequest carries everything needed to validate and start a
// provisioning run.
type CreateBatchRequest struct {
	Name               string
	Description        string
	RedirectURL        *string
	SequencerAccountID *string

	DomainsArtifact     string
	TenantsArtifact     string
	CredentialsArtifact string

	DomainsCSV     string
	TenantsCSV     string
	CredentialsCSV string
}

// BatchStatusView is the poll projection of a batch.
type BatchStatusView struct {
	Batch            *domain.Batch
	Steps            []domain.StepRecord
	NameserverGroups []domain.NameserverGroup
}

type runState struct {
	mu      sync.Mutex
	running bool
	paused  bool
}

func (r *runState) setPaused(v bool) {
	r.mu.Lock()
	r.paused = v
	r.mu.Unlock()
}

func (r *runState) isPaused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// Orchestrator owns batch lifecycles: it sequences the step executors,
// maintains step records and the activity log, and enforces the batch
// state machine. One writer per batch at a time.
type Orchestrator struct {
	batches     repository.BatchRepository
	steps       repository.StepRepository
	activity    repository.ActivityRepository
	provision   repository.ProvisionRepository
	engine      *artifact.Engine
	transitions domain.TransitionValidator
	executors   map[int]StepExecutor
	firstStep   int
	lastStep    int
	concurrency int
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time

	// async controls whether pipeline runs detach from the caller.
	// Disabled in tests so runs finish before assertions.
	async bool

	mu   sync.Mutex
	runs map[string]*runState
}

func NewOrchestrator(
	batches repository.BatchRepository,
	steps repository.StepRepository,
	activity repository.ActivityRepository,
	provision repository.ProvisionRepository,
	engine *artifact.Engine,
	transitions domain.TransitionValidator,
	executors []StepExecutor,
	concurrency int,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if batches == nil || steps == nil || activity == nil || provision == nil {
		return nil, fmt.Errorf("all repositories are required")
	}
	if engine == nil {
		return nil, fmt.Errorf("artifact engine is required")
	}
	if transitions == nil {
		return nil, fmt.Errorf("transition validator is required")
	}
	if len(executors) == 0 {
		return nil, fmt.Errorf("at least one step executor is required")
	}
	if concurrency < minStepConcurrency {
		concurrency = minStepConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	byOrder := make(map[int]StepExecutor, len(executors))
	first, last := executors[0].Order(), executors[0].Order()
	for _, e := range executors {
		if _, dup := byOrder[e.Order()]; dup {
			return nil, fmt.Errorf("duplicate executor for step %d", e.Order())
		}
		byOrder[e.Order()] = e
		first = min(first, e.Order())
		last = max(last, e.Order())
	}
	for step := first; step <= last; step++ {
		if _, ok := byOrder[step]; !ok {
			return nil, fmt.Errorf("missing executor for step %d", step)
		}
	}

	return &Orchestrator{
		batches:     batches,
		steps:       steps,
		activity:    activity,
		provision:   provision,
		engine:      engine,
		transitions: transitions,
		executors:   byOrder,
		firstStep:   first,
		lastStep:    last,
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
		async:       true,
		runs:        make(map[string]*runState),
	}, nil
}

// SetMetrics wires the metrics collectors. Optional.
func (s *Orchestrator) SetMetrics(m *observability.Metrics) {
	s.metrics = m
}

// ValidateArtifacts recomputes the match report for the three artifacts.
func (s *Orchestrator) ValidateArtifacts(domainsCSV, tenantsCSV, credentialsCSV string) *artifact.ValidationResult {
	result, _ := s.engine.Validate(domainsCSV, tenantsCSV, credentialsCSV)
	return result
}

// CreateAndStart validates the artifacts, seeds the batch, and starts the
// pipeline. Fails closed: any validation error blocks creation.
func (s *Orchestrator) CreateAndStart(ctx context.Context, req CreateBatchRequest) (*domain.Batch, *artifact.ValidationResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result, parsed := s.engine.Validate(req.DomainsCSV, req.TenantsCSV, req.CredentialsCSV)
	if !result.Valid {
		return nil, result, fmt.Errorf("%w: artifacts failed validation", domain.ErrValidation)
	}

	batch := &domain.Batch{
		ID:                  uuid.NewString(),
		Name:                strings.TrimSpace(req.Name),
		Description:         strings.TrimSpace(req.Description),
		CurrentStep:         s.firstStep,
		Status:              domain.BatchStatusActive,
		RedirectURL:         req.RedirectURL,
		SequencerAccountID:  req.SequencerAccountID,
		DomainsArtifact:     artifactName(req.DomainsArtifact, "domains.csv"),
		TenantsArtifact:     artifactName(req.TenantsArtifact, "tenants.csv"),
		CredentialsArtifact: artifactName(req.CredentialsArtifact, "credentials.csv"),
	}
	if err := batch.Validate(); err != nil {
		return nil, result, err
	}

	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, result, fmt.Errorf("failed to create batch: %w", err)
	}
	if err := s.seed(ctx, batch, parsed); err != nil {
		return nil, result, err
	}

	s.logActivity(ctx, batch.ID, s.firstStep, domain.ItemKindBatch, batch.Name,
		domain.ActivityStarted, "batch created, pipeline starting")
	if s.metrics != nil {
		s.metrics.IncBatchStatus(domain.BatchStatusActive.String())
	}

	if err := s.begin(batch.ID, s.firstStep, false); err != nil {
		return nil, result, err
	}

	return batch, result, nil
}

func (s *Orchestrator) seed(ctx context.Context, batch *domain.Batch, parsed *artifact.Parsed) error {
	tenants := make([]*domain.Tenant, 0, len(parsed.Tenants))
	for _, row := range parsed.Tenants {
		tenants = append(tenants, &domain.Tenant{
			ID:            row.ID,
			BatchID:       batch.ID,
			Name:          row.Name,
			AdminLogin:    row.AdminLogin,
			AdminPassword: row.Password,
		})
	}
	if err := s.provision.CreateTenants(ctx, tenants); err != nil {
		return fmt.Errorf("failed to seed tenants: %w", err)
	}

	domains := make([]*domain.ProvisionDomain, 0, len(parsed.Domains))
	for _, row := range parsed.Domains {
		d := &domain.ProvisionDomain{
			ID:      uuid.NewString(),
			BatchID: batch.ID,
			Name:    row.Name,
		}
		if row.TenantID != "" {
			tenantID := row.TenantID
			d.TenantID = &tenantID
		}
		domains = append(domains, d)
	}
	if err := s.provision.CreateDomains(ctx, domains); err != nil {
		return fmt.Errorf("failed to seed domains: %w", err)
	}

	return nil
}

// Status projects batch, step records, and, only while paused at the
// nameserver gate, the registrar-facing nameserver groups.
func (s *Orchestrator) Status(ctx context.Context, batchID string) (*BatchStatusView, error) {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}

	records, err := s.steps.ListRecords(ctx, batchID)
	if err != nil {
		return nil, err
	}

	view := &BatchStatusView{Batch: batch, Steps: records}

	if s.atNameserverGate(ctx, batch) {
		domains, err := s.provision.ListDomains(ctx, batchID)
		if err != nil {
			return nil, err
		}
		view.NameserverGroups = domain.GroupNameservers(domains)
	}

	return view, nil
}

// Activity returns the most recent log entries first.
func (s *Orchestrator) Activity(ctx context.Context, batchID string, limit int) ([]domain.ActivityLogEntry, error) {
	if _, err := s.batches.GetByID(ctx, batchID); err != nil {
		return nil, err
	}
	return s.activity.ListByBatch(ctx, batchID, limit)
}

// Pause stops dispatching new items. In-flight items finish and are
// recorded; pausing is cooperative, never preemptive.
func (s *Orchestrator) Pause(ctx context.Context, batchID string) error {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return err
	}

	next, err := s.transitions.Apply(ctx, batch.Status, domain.EventPause)
	if err != nil {
		return err
	}

	s.run(batchID).setPaused(true)

	if err := s.batches.UpdateState(ctx, batchID, next, batch.CurrentStep); err != nil {
		return err
	}

	s.logActivity(ctx, batchID, batch.CurrentStep, domain.ItemKindBatch, batch.Name,
		domain.ActivityCompleted, "batch paused by operator")
	if s.metrics != nil {
		s.metrics.IncBatchStatus(next.String())
	}
	return nil
}

// Resume re-enters execution at the current step. Items whose last outcome
// was completed are not re-run.
func (s *Orchestrator) Resume(ctx context.Context, batchID string) error {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return err
	}

	if s.atNameserverGate(ctx, batch) {
		return fmt.Errorf("%w: batch is waiting for nameserver confirmation", domain.ErrConflict)
	}

	state, err := s.claim(batchID)
	if err != nil {
		return err
	}

	next, err := s.transitions.Apply(ctx, batch.Status, domain.EventResume)
	if err != nil {
		s.releaseRun(state)
		return err
	}

	if err := s.batches.UpdateState(ctx, batchID, next, batch.CurrentStep); err != nil {
		s.releaseRun(state)
		return err
	}

	s.logActivity(ctx, batchID, batch.CurrentStep, domain.ItemKindBatch, batch.Name,
		domain.ActivityStarted, "batch resumed by operator")
	if s.metrics != nil {
		s.metrics.IncBatchStatus(next.String())
	}

	s.start(state, batchID, batch.CurrentStep, false)
	return nil
}

// ConfirmNameservers acknowledges the registrar update and resumes the
// pipeline from the step after the gate. Valid only while the batch is
// paused at the gate with the gate step completed.
func (s *Orchestrator) ConfirmNameservers(ctx context.Context, batchID string) error {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return err
	}

	if !s.atNameserverGate(ctx, batch) {
		return fmt.Errorf("%w: batch is not waiting for nameserver confirmation", domain.ErrConflict)
	}

	state, err := s.claim(batchID)
	if err != nil {
		return err
	}

	next, err := s.transitions.Apply(ctx, batch.Status, domain.EventConfirm)
	if err != nil {
		s.releaseRun(state)
		return err
	}

	resumeStep := batch.CurrentStep + 1
	if err := s.batches.UpdateState(ctx, batchID, next, resumeStep); err != nil {
		s.releaseRun(state)
		return err
	}

	s.logActivity(ctx, batchID, batch.CurrentStep, domain.ItemKindBatch, batch.Name,
		domain.ActivityCompleted, "nameserver update confirmed")
	if s.metrics != nil {
		s.metrics.IncBatchStatus(next.String())
	}

	s.start(state, batchID, resumeStep, false)
	return nil
}

// RetryFailed re-runs exactly the items of the current step whose last
// outcome was failed, then continues the pipeline.
func (s *Orchestrator) RetryFailed(ctx context.Context, batchID string) error {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return err
	}

	if batch.Status != domain.BatchStatusError && batch.Status != domain.BatchStatusActive {
		return fmt.Errorf("%w: retry-failed requires an active or errored batch", domain.ErrConflict)
	}

	state, err := s.claim(batchID)
	if err != nil {
		return err
	}

	if batch.Status == domain.BatchStatusError {
		next, err := s.transitions.Apply(ctx, batch.Status, domain.EventRetry)
		if err != nil {
			s.releaseRun(state)
			return err
		}
		if err := s.batches.UpdateState(ctx, batchID, next, batch.CurrentStep); err != nil {
			s.releaseRun(state)
			return err
		}
		if s.metrics != nil {
			s.metrics.IncBatchStatus(next.String())
		}
	}

	s.logActivity(ctx, batchID, batch.CurrentStep, domain.ItemKindBatch, batch.Name,
		domain.ActivityStarted, "retrying failed items")

	s.start(state, batchID, batch.CurrentStep, true)
	return nil
}

// RerunAll resets every step record and item result and restarts from the
// first step.
func (s *Orchestrator) RerunAll(ctx context.Context, batchID string) error {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return err
	}

	state, err := s.claim(batchID)
	if err != nil {
		return err
	}

	next, err := s.transitions.Apply(ctx, batch.Status, domain.EventRerun)
	if err != nil {
		s.releaseRun(state)
		return err
	}

	if err := s.steps.Reset(ctx, batchID); err != nil {
		s.releaseRun(state)
		return fmt.Errorf("failed to reset step records: %w", err)
	}
	if err := s.batches.UpdateState(ctx, batchID, next, s.firstStep); err != nil {
		s.releaseRun(state)
		return err
	}

	s.logActivity(ctx, batchID, s.firstStep, domain.ItemKindBatch, batch.Name,
		domain.ActivityStarted, "rerunning batch from the first step")
	if s.metrics != nil {
		s.metrics.IncBatchStatus(next.String())
	}

	s.start(state, batchID, s.firstStep, false)
	return nil
}

// ForceComplete overrides the current step: itemName targets one item, "*"
// (or empty) the whole step. Always activity-logged; never starts a run.
func (s *Orchestrator) ForceComplete(ctx context.Context, batchID, itemName string) error {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.Status == domain.BatchStatusCompleted {
		return fmt.Errorf("%w: batch is already completed", domain.ErrConflict)
	}

	step := batch.CurrentStep
	itemName = strings.TrimSpace(itemName)

	if itemName == "" || itemName == "*" {
		if err := s.forceCompleteStep(ctx, batch); err != nil {
			return err
		}
		s.logActivity(ctx, batchID, step, domain.ItemKindBatch, batch.Name,
			domain.ActivityCompleted, fmt.Sprintf("step %d force-completed by operator", step))
		return nil
	}

	if err := s.forceCompleteItem(ctx, batch, itemName); err != nil {
		return err
	}
	s.logActivity(ctx, batchID, step, domain.ItemKindBatch, itemName,
		domain.ActivityCompleted, "item force-completed by operator")
	return nil
}

func (s *Orchestrator) forceCompleteStep(ctx context.Context, batch *domain.Batch) error {
	record, err := s.steps.GetRecord(ctx, batch.ID, batch.CurrentStep)
	if err != nil {
		return err
	}

	record.Status = domain.StepStatusCompleted
	record.Completed = record.Total
	record.Failed = 0
	if err := s.steps.UpsertRecord(ctx, record); err != nil {
		return err
	}

	if batch.CurrentStep >= s.lastStep {
		next, err := s.transitions.Apply(ctx, batch.Status, domain.EventComplete)
		if err != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.IncBatchStatus(next.String())
		}
		return s.batches.UpdateState(ctx, batch.ID, next, batch.CurrentStep)
	}

	return s.batches.UpdateState(ctx, batch.ID, batch.Status, batch.CurrentStep+1)
}

func (s *Orchestrator) forceCompleteItem(ctx context.Context, batch *domain.Batch, itemName string) error {
	step := batch.CurrentStep

	var failedDelta int
	kind := domain.ItemKind("")
	existing, err := s.steps.ListItemResults(ctx, batch.ID, step)
	if err != nil {
		return err
	}
	for _, r := range existing {
		if r.ItemName == itemName {
			if r.Outcome == domain.ItemCompleted {
				return nil
			}
			kind = r.ItemKind
			failedDelta = -1
			break
		}
	}

	// No prior attempt: take the kind from the step's own item
	// enumeration so the audit trail stays truthful for tenant and
	// mailbox steps.
	if kind == "" {
		kind = domain.ItemKindDomain
		if executor, ok := s.executors[step]; ok {
			if items, itemsErr := executor.Items(ctx, batch); itemsErr == nil {
				for _, item := range items {
					if item.Name == itemName {
						kind = item.Kind
						break
					}
				}
			}
		}
	}

	result := &domain.StepItemResult{
		BatchID:    batch.ID,
		StepNumber: step,
		ItemName:   itemName,
		ItemKind:   kind,
		Outcome:    domain.ItemCompleted,
		Message:    "force-completed by operator",
		UpdatedAt:  s.now(),
	}
	if err := s.steps.SaveItemResult(ctx, result); err != nil {
		return err
	}

	return s.steps.IncrementCounters(ctx, batch.ID, step, 1, failedDelta)
}

// claim reserves the single-writer slot for a batch. Commands claim before
// mutating any batch state so a rejected command leaves the batch exactly
// as it was, even while a previous run is still draining in-flight items.
func (s *Orchestrator) claim(batchID string) (*runState, error) {
	state := s.run(batchID)

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.running {
		return nil, fmt.Errorf("%w: batch run already in progress", domain.ErrConflict)
	}
	state.running = true
	state.paused = false
	return state, nil
}

func (s *Orchestrator) releaseRun(state *runState) {
	state.mu.Lock()
	state.running = false
	state.mu.Unlock()
}

// start runs the pipeline on a claimed slot and releases it when done.
func (s *Orchestrator) start(state *runState, batchID string, fromStep int, retryFailedFirst bool) {
	if s.async {
		go func() {
			defer s.releaseRun(state)
			s.runPipeline(context.Background(), batchID, fromStep, retryFailedFirst)
		}()
		return
	}

	defer s.releaseRun(state)
	s.runPipeline(context.Background(), batchID, fromStep, retryFailedFirst)
}

func (s *Orchestrator) begin(batchID string, fromStep int, retryFailedFirst bool) error {
	state, err := s.claim(batchID)
	if err != nil {
		return err
	}
	s.start(state, batchID, fromStep, retryFailedFirst)
	return nil
}

func (s *Orchestrator) run(batchID string) *runState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.runs[batchID]
	if !ok {
		state = &runState{}
		s.runs[batchID] = state
	}
	return state
}

// runPipeline drives steps sequentially until the pipeline completes,
// pauses, or errors. Step failures never propagate as errors: they become
// batch state.
func (s *Orchestrator) runPipeline(ctx context.Context, batchID string, fromStep int, retryFailedFirst bool) {
	ctx = observability.WithBatchID(ctx, batchID)
	logger := observability.WithContextLogger(s.logger, ctx)
	state := s.run(batchID)

	onlyFailed := retryFailedFirst
	for step := fromStep; step <= s.lastStep; step++ {
		if state.isPaused() {
			return
		}

		batch, err := s.batches.GetByID(ctx, batchID)
		if err != nil {
			logger.Error("failed to load batch, stopping run", zap.Error(err))
			return
		}
		if batch.Status != domain.BatchStatusActive {
			return
		}

		executor := s.executors[step]
		record, pausedEarly, err := s.runStep(ctx, batch, executor, onlyFailed)
		onlyFailed = false
		if err != nil {
			logger.Error("step run failed, stopping run",
				zap.Int("step", step), zap.Error(err))
			return
		}
		if pausedEarly {
			return
		}

		if record.Status == domain.StepStatusFailed {
			s.fail(ctx, batch, step)
			return
		}

		if executor.HumanGated() {
			s.gate(ctx, batch, step)
			return
		}

		if step == s.lastStep {
			s.complete(ctx, batch, step)
			return
		}

		if err := s.batches.UpdateState(ctx, batchID, domain.BatchStatusActive, step+1); err != nil {
			logger.Error("failed to advance batch", zap.Int("step", step), zap.Error(err))
			return
		}
	}
}

// runStep executes one step's pending (or, on retry, failed) items on a
// bounded worker group. Returns the final record and whether the run was
// cut short by a pause.
func (s *Orchestrator) runStep(ctx context.Context, batch *domain.Batch, executor StepExecutor, onlyFailed bool) (*domain.StepRecord, bool, error) {
	state := s.run(batch.ID)
	step := executor.Order()

	items, err := executor.Items(ctx, batch)
	if err != nil {
		return nil, false, fmt.Errorf("failed to enumerate step items: %w", err)
	}

	previous := make(map[string]domain.ItemOutcomeStatus)
	existing, err := s.steps.ListItemResults(ctx, batch.ID, step)
	if err != nil {
		return nil, false, err
	}
	for _, r := range existing {
		previous[r.ItemName] = r.Outcome
	}

	targets := make([]domain.StepItem, 0, len(items))
	completedAlready := 0
	for _, item := range items {
		outcome, seen := previous[item.Name]
		if outcome == domain.ItemCompleted {
			completedAlready++
			continue
		}
		if onlyFailed && !seen {
			continue
		}
		targets = append(targets, item)
	}

	record := &domain.StepRecord{
		BatchID:    batch.ID,
		StepNumber: step,
		Status:     domain.StepStatusRunning,
		Completed:  completedAlready,
		Failed:     0,
		Total:      len(items),
	}
	if err := s.steps.UpsertRecord(ctx, record); err != nil {
		return nil, false, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	pausedEarly := false
	for _, item := range targets {
		if state.isPaused() {
			pausedEarly = true
			break
		}

		item := item
		g.Go(func() error {
			s.runOneItem(gctx, batch, executor, item)
			return nil
		})
	}
	_ = g.Wait()

	record, err = s.steps.GetRecord(ctx, batch.ID, step)
	if err != nil {
		return nil, false, err
	}

	if pausedEarly {
		if err := s.steps.SetRecordStatus(ctx, batch.ID, step, domain.StepStatusPending); err != nil {
			return nil, false, err
		}
		record.Status = domain.StepStatusPending
		return record, true, nil
	}

	status := domain.StepStatusCompleted
	if record.Total > 0 && record.Completed == 0 {
		status = domain.StepStatusFailed
	}
	if err := s.steps.SetRecordStatus(ctx, batch.ID, step, status); err != nil {
		return nil, false, err
	}
	record.Status = status

	return record, false, nil
}

func (s *Orchestrator) runOneItem(ctx context.Context, batch *domain.Batch, executor StepExecutor, item domain.StepItem) {
	step := executor.Order()

	s.logActivity(ctx, batch.ID, step, item.Kind, item.Name, domain.ActivityStarted, "")

	start := s.now()
	outcome := executor.RunItem(ctx, batch, item)
	if s.metrics != nil {
		s.metrics.ObserveStepItemDuration(executor.Name(), s.now().Sub(start))
		s.metrics.IncStepItem(executor.Name(), string(outcome.Status))
	}

	result := &domain.StepItemResult{
		BatchID:    batch.ID,
		StepNumber: step,
		ItemName:   item.Name,
		ItemKind:   item.Kind,
		Outcome:    outcome.Status,
		Message:    outcome.Message,
		UpdatedAt:  s.now(),
	}
	if err := s.steps.SaveItemResult(ctx, result); err != nil {
		s.logger.Error("failed to save item result",
			zap.String("batchId", batch.ID), zap.Int("step", step),
			zap.String("item", item.Name), zap.Error(err))
	}

	completedDelta, failedDelta := 0, 0
	activityStatus := domain.ActivityCompleted
	if outcome.Status == domain.ItemCompleted {
		completedDelta = 1
	} else {
		failedDelta = 1
		activityStatus = domain.ActivityFailed
	}
	if err := s.steps.IncrementCounters(ctx, batch.ID, step, completedDelta, failedDelta); err != nil {
		s.logger.Error("failed to update step counters",
			zap.String("batchId", batch.ID), zap.Int("step", step), zap.Error(err))
	}

	s.logActivity(ctx, batch.ID, step, item.Kind, item.Name, activityStatus, outcome.Message)
}

func (s *Orchestrator) gate(ctx context.Context, batch *domain.Batch, step int) {
	next, err := s.transitions.Apply(ctx, domain.BatchStatusActive, domain.EventGate)
	if err != nil {
		s.logger.Error("gate transition rejected", zap.String("batchId", batch.ID), zap.Error(err))
		return
	}
	if err := s.batches.UpdateState(ctx, batch.ID, next, step); err != nil {
		s.logger.Error("failed to pause batch at gate", zap.String("batchId", batch.ID), zap.Error(err))
		return
	}
	s.run(batch.ID).setPaused(true)
	s.logActivity(ctx, batch.ID, step, domain.ItemKindBatch, batch.Name,
		domain.ActivityCompleted, "waiting for nameserver confirmation")
	if s.metrics != nil {
		s.metrics.IncBatchStatus(next.String())
	}
}

func (s *Orchestrator) fail(ctx context.Context, batch *domain.Batch, step int) {
	next, err := s.transitions.Apply(ctx, domain.BatchStatusActive, domain.EventFail)
	if err != nil {
		s.logger.Error("fail transition rejected", zap.String("batchId", batch.ID), zap.Error(err))
		return
	}
	if err := s.batches.UpdateState(ctx, batch.ID, next, step); err != nil {
		s.logger.Error("failed to mark batch errored", zap.String("batchId", batch.ID), zap.Error(err))
		return
	}
	s.logActivity(ctx, batch.ID, step, domain.ItemKindBatch, batch.Name,
		domain.ActivityFailed, fmt.Sprintf("step %d failed for every item", step))
	if s.metrics != nil {
		s.metrics.IncBatchStatus(next.String())
	}
}

func (s *Orchestrator) complete(ctx context.Context, batch *domain.Batch, step int) {
	next, err := s.transitions.Apply(ctx, domain.BatchStatusActive, domain.EventComplete)
	if err != nil {
		s.logger.Error("complete transition rejected", zap.String("batchId", batch.ID), zap.Error(err))
		return
	}
	if err := s.batches.UpdateState(ctx, batch.ID, next, step); err != nil {
		s.logger.Error("failed to complete batch", zap.String("batchId", batch.ID), zap.Error(err))
		return
	}
	s.logActivity(ctx, batch.ID, step, domain.ItemKindBatch, batch.Name,
		domain.ActivityCompleted, "all steps completed")
	if s.metrics != nil {
		s.metrics.IncBatchStatus(next.String())
	}
}

// atNameserverGate reports whether the batch is paused waiting for the
// operator to confirm the registrar update.
func (s *Orchestrator) atNameserverGate(ctx context.Context, batch *domain.Batch) bool {
	if batch.Status != domain.BatchStatusPaused {
		return false
	}

	executor, ok := s.executors[batch.CurrentStep]
	if !ok || !executor.HumanGated() {
		return false
	}

	record, err := s.steps.GetRecord(ctx, batch.ID, batch.CurrentStep)
	if err != nil {
		return false
	}
	return record.Status == domain.StepStatusCompleted
}

func (s *Orchestrator) logActivity(ctx context.Context, batchID string, step int, kind domain.ItemKind, name string, status domain.ActivityStatus, message string) {
	entry := &domain.ActivityLogEntry{
		ID:         uuid.NewString(),
		BatchID:    batchID,
		StepNumber: step,
		StepName:   s.stepName(step),
		ItemKind:   kind,
		ItemName:   name,
		Status:     status,
		Message:    message,
		CreatedAt:  s.now(),
	}
	if err := s.activity.Append(ctx, entry); err != nil {
		s.logger.Error("failed to append activity entry",
			zap.String("batchId", batchID), zap.Error(err))
	}
}

func (s *Orchestrator) stepName(step int) string {
	if executor, ok := s.executors[step]; ok {
		return executor.Name()
	}
	return domain.StepName(step)
}

func artifactName(name, fallback string) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}
	return fallback
}
