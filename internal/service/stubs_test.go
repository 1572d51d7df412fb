package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/genc-murat/tactilesql-scheduler/config"
	"github.com/genc-murat/tactilesql-scheduler/internal/errs"
	"github.com/genc-murat/tactilesql-scheduler/internal/event"
	"github.com/genc-murat/tactilesql-scheduler/internal/model"
	"github.com/genc-murat/tactilesql-scheduler/internal/repository"
	"github.com/genc-murat/tactilesql-scheduler/internal/schedule"
	"github.com/genc-murat/tactilesql-scheduler/internal/strategy"
	"github.com/genc-murat/tactilesql-scheduler/pkg/logger"
	"github.com/genc-murat/tactilesql-scheduler/pkg/utils"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// memStore is a mutex-guarded in-memory stand-in for the task store,
// shared by the stub repositories below.
type memStore struct {
	mu        sync.Mutex
	tasks     map[string]*model.TaskDefinition
	triggers  map[string]*model.TaskTrigger
	runs      map[string]*model.TaskRun
	runOrder  []string
	runLogs   []model.TaskRunLog
	auditLogs []model.TaskAuditLog
	retention map[string]int
	nextID    int
}

func newMemStore() *memStore {
	return &memStore{
		tasks:     make(map[string]*model.TaskDefinition),
		triggers:  make(map[string]*model.TaskTrigger),
		runs:      make(map[string]*model.TaskRun),
		retention: make(map[string]int),
	}
}

func (m *memStore) addTask(task *model.TaskDefinition) *model.TaskDefinition {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task.ID == "" {
		m.nextID++
		task.ID = fmt.Sprintf("tsk_%d", m.nextID)
	}
	if task.Status == "" {
		task.Status = model.TaskStatusActive
	}
	m.tasks[task.ID] = task
	return task
}

func (m *memStore) addTrigger(trg *model.TaskTrigger) *model.TaskTrigger {
	m.mu.Lock()
	defer m.mu.Unlock()
	if trg.ID == "" {
		m.nextID++
		trg.ID = fmt.Sprintf("trg_%d", m.nextID)
	}
	m.triggers[trg.ID] = trg
	return trg
}

func (m *memStore) runsForTask(taskID string) []model.TaskRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TaskRun
	for _, id := range m.runOrder {
		if run := m.runs[id]; run != nil && run.TaskID == taskID {
			out = append(out, *run)
		}
	}
	return out
}

func (m *memStore) logsForRun(runID string) []model.TaskRunLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TaskRunLog
	for _, l := range m.runLogs {
		if l.RunID == runID {
			out = append(out, l)
		}
	}
	return out
}

func (m *memStore) auditByType(eventType string) []model.TaskAuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TaskAuditLog
	for _, a := range m.auditLogs {
		if a.EventType == eventType {
			out = append(out, a)
		}
	}
	return out
}

func (m *memStore) trigger(id string) model.TaskTrigger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.triggers[id]
}

func (m *memStore) run(id string) model.TaskRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.runs[id]
}

type stubTaskRepo struct{ store *memStore }

func (r *stubTaskRepo) Create(ctx context.Context, task *model.TaskDefinition, opts ...utils.DBOption) error {
	r.store.addTask(task)
	return nil
}

func (r *stubTaskRepo) GetByID(ctx context.Context, id string, opts ...utils.DBOption) (*model.TaskDefinition, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	task, ok := r.store.tasks[id]
	if !ok {
		return nil, errs.NewNotFound("task", id)
	}
	copy := *task
	return &copy, nil
}

func (r *stubTaskRepo) Get(ctx context.Context, param *model.GetTaskParam, opts ...utils.DBOption) ([]model.TaskDefinition, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []model.TaskDefinition
	for _, t := range r.store.tasks {
		out = append(out, *t)
	}
	return out, nil
}

func (r *stubTaskRepo) Update(ctx context.Context, task *model.TaskDefinition, opts ...utils.DBOption) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.tasks[task.ID]; !ok {
		return errs.NewNotFound("task", task.ID)
	}
	r.store.tasks[task.ID] = task
	return nil
}

func (r *stubTaskRepo) Delete(ctx context.Context, id string, opts ...utils.DBOption) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.tasks, id)
	return nil
}

func (r *stubTaskRepo) Exists(ctx context.Context, id string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	_, ok := r.store.tasks[id]
	return ok, nil
}

type stubTriggerRepo struct {
	store *memStore
}

func (r *stubTriggerRepo) Create(ctx context.Context, trg *model.TaskTrigger, opts ...utils.DBOption) error {
	r.store.addTrigger(trg)
	return nil
}

func (r *stubTriggerRepo) GetByID(ctx context.Context, id string, opts ...utils.DBOption) (*model.TaskTrigger, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	trg, ok := r.store.triggers[id]
	if !ok {
		return nil, errs.NewNotFound("trigger", id)
	}
	copy := *trg
	return &copy, nil
}

func (r *stubTriggerRepo) Get(ctx context.Context, param *model.GetTriggerParam, opts ...utils.DBOption) ([]model.TaskTrigger, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []model.TaskTrigger
	for _, t := range r.store.triggers {
		out = append(out, *t)
	}
	return out, nil
}

func (r *stubTriggerRepo) Update(ctx context.Context, trg *model.TaskTrigger, opts ...utils.DBOption) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.triggers[trg.ID] = trg
	return nil
}

func (r *stubTriggerRepo) Delete(ctx context.Context, id string, opts ...utils.DBOption) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.triggers, id)
	return nil
}

func (r *stubTriggerRepo) DeleteByTask(ctx context.Context, taskID string, opts ...utils.DBOption) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for id, trg := range r.store.triggers {
		if trg.TaskID == taskID {
			delete(r.store.triggers, id)
		}
	}
	return nil
}

func (r *stubTriggerRepo) ClaimDueTriggers(ctx context.Context, owner string, now time.Time, batchSize int, ttl time.Duration) ([]model.TaskTrigger, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var due []*model.TaskTrigger
	for _, trg := range r.store.triggers {
		if !trg.Enabled || !trg.NextRunAt.Valid || trg.NextRunAt.Time.After(now) {
			continue
		}
		if trg.ClaimOwner.Valid && trg.ClaimUntil.Valid && !trg.ClaimUntil.Time.Before(now) {
			continue
		}
		due = append(due, trg)
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].NextRunAt.Time.Equal(due[j].NextRunAt.Time) {
			return due[i].ID < due[j].ID
		}
		return due[i].NextRunAt.Time.Before(due[j].NextRunAt.Time)
	})
	if batchSize > 0 && len(due) > batchSize {
		due = due[:batchSize]
	}

	out := make([]model.TaskTrigger, 0, len(due))
	for _, trg := range due {
		trg.ClaimOwner = sql.NullString{String: owner, Valid: true}
		trg.ClaimUntil = sql.NullTime{Time: now.Add(ttl), Valid: true}
		out = append(out, *trg)
	}
	return out, nil
}

func (r *stubTriggerRepo) ReleaseClaim(ctx context.Context, triggerID, owner string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	trg, ok := r.store.triggers[triggerID]
	if !ok || !trg.ClaimOwner.Valid || trg.ClaimOwner.String != owner {
		return nil
	}
	trg.ClaimOwner = sql.NullString{}
	trg.ClaimUntil = sql.NullTime{}
	return nil
}

func (r *stubTriggerRepo) FinalizeAfterDispatch(ctx context.Context, triggerID string, dispatchTime time.Time) (*model.TaskTrigger, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	trg, ok := r.store.triggers[triggerID]
	if !ok {
		return nil, errs.NewNotFound("trigger", triggerID)
	}

	next, hasNext, err := schedule.NextOccurrence(schedule.NewCronParser(), trg, dispatchTime)
	if err != nil {
		return nil, err
	}
	if hasNext {
		trg.NextRunAt = sql.NullTime{Time: next, Valid: true}
	} else {
		trg.NextRunAt = sql.NullTime{}
		trg.Enabled = false
	}
	trg.LastRunAt = sql.NullTime{Time: dispatchTime, Valid: true}
	trg.ClaimOwner = sql.NullString{}
	trg.ClaimUntil = sql.NullTime{}
	copy := *trg
	return &copy, nil
}

func (r *stubTriggerRepo) HandleMisfire(ctx context.Context, triggerID string, now time.Time) (*model.TaskTrigger, error) {
	return r.FinalizeAfterDispatch(ctx, triggerID, now)
}

type stubRunRepo struct {
	store *memStore
}

func (r *stubRunRepo) CreateTaskRun(ctx context.Context, run *model.TaskRun, opts ...utils.DBOption) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.tasks[run.TaskID]; !ok {
		return errs.NewNotFound("task", run.TaskID)
	}
	if run.ID == "" {
		r.store.nextID++
		run.ID = fmt.Sprintf("run_%d", r.store.nextID)
	}
	if run.Attempt <= 0 {
		run.Attempt = 1
	}
	if run.Status == "" {
		run.Status = model.RunStatusQueued
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = utils.TimeNowUTC()
	}
	stored := *run
	r.store.runs[run.ID] = &stored
	r.store.runOrder = append(r.store.runOrder, run.ID)
	return nil
}

func (r *stubRunRepo) GetRunByID(ctx context.Context, id string) (*model.TaskRun, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	run, ok := r.store.runs[id]
	if !ok {
		return nil, errs.NewNotFound("run", id)
	}
	copy := *run
	return &copy, nil
}

func (r *stubRunRepo) UpdateTaskRunStatus(ctx context.Context, runID string, status model.TaskRunStatus, errorMessage *string, metadataPatch datatypes.JSON) (*model.TaskRun, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	run, ok := r.store.runs[runID]
	if !ok {
		return nil, errs.NewNotFound("run", runID)
	}
	if run.Status.IsTerminal() {
		copy := *run
		return &copy, nil
	}
	run.Status = status
	if errorMessage != nil {
		run.ErrorMessage = sql.NullString{String: *errorMessage, Valid: true}
	}
	if metadataPatch != nil {
		run.Metadata = metadataPatch
	}
	if status.IsTerminal() && !run.FinishedAt.Valid {
		run.FinishedAt = sql.NullTime{Time: utils.TimeNowUTC(), Valid: true}
	}
	copy := *run
	return &copy, nil
}

func (r *stubRunRepo) ListRunsByTask(ctx context.Context, taskID string, limit int) ([]model.TaskRun, error) {
	runs := r.store.runsForTask(taskID)
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (r *stubRunRepo) AppendRunLog(ctx context.Context, runID, taskID, level, message string, logContext datatypes.JSON) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.runLogs = append(r.store.runLogs, model.TaskRunLog{
		RunID:     runID,
		TaskID:    taskID,
		Level:     level,
		Message:   message,
		Context:   logContext,
		CreatedAt: utils.TimeNowUTC(),
	})
	return nil
}

func (r *stubRunRepo) GetRunLogs(ctx context.Context, runID string, limit int) ([]model.TaskRunLog, error) {
	logs := r.store.logsForRun(runID)
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (r *stubRunRepo) AppendAuditLog(ctx context.Context, eventType string, taskID *string, actor, message string, details datatypes.JSON) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	entry := model.TaskAuditLog{
		EventType: eventType,
		Actor:     actor,
		Message:   message,
		Details:   details,
		CreatedAt: utils.TimeNowUTC(),
	}
	if taskID != nil {
		entry.TaskID = sql.NullString{String: *taskID, Valid: true}
	}
	r.store.auditLogs = append(r.store.auditLogs, entry)
	return nil
}

func (r *stubRunRepo) ListAuditLogs(ctx context.Context, param *model.GetAuditLogParam) ([]model.TaskAuditLog, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]model.TaskAuditLog, len(r.store.auditLogs))
	copy(out, r.store.auditLogs)
	return out, nil
}

func (r *stubRunRepo) PurgeOldTaskHistory(ctx context.Context, retentionDays int, now time.Time) (*repository.PurgeResult, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	cutoff := now.AddDate(0, 0, -retentionDays)
	result := &repository.PurgeResult{RetentionDays: retentionDays, CutoffAt: cutoff}

	purged := make(map[string]bool)
	var keptOrder []string
	for _, id := range r.store.runOrder {
		run := r.store.runs[id]
		if run.Status.IsTerminal() && run.FinishedAt.Valid && run.FinishedAt.Time.Before(cutoff) {
			purged[id] = true
			delete(r.store.runs, id)
			result.DeletedRuns++
			continue
		}
		keptOrder = append(keptOrder, id)
	}
	r.store.runOrder = keptOrder

	var keptLogs []model.TaskRunLog
	for _, l := range r.store.runLogs {
		if purged[l.RunID] {
			result.DeletedRunLogs++
			continue
		}
		keptLogs = append(keptLogs, l)
	}
	r.store.runLogs = keptLogs

	var keptAudit []model.TaskAuditLog
	for _, a := range r.store.auditLogs {
		if a.CreatedAt.Before(cutoff) {
			result.DeletedAuditLogs++
			continue
		}
		keptAudit = append(keptAudit, a)
	}
	r.store.auditLogs = keptAudit

	return result, nil
}

type stubSysParamRepo struct {
	store *memStore
}

func (r *stubSysParamRepo) Get(ctx context.Context, name string, destValue interface{}) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	days, ok := r.store.retention[name]
	if !ok {
		return errs.NewNotFound("system_parameter", name)
	}
	if dest, isInt := destValue.(*int); isInt {
		*dest = days
	}
	return nil
}

func (r *stubSysParamRepo) Set(ctx context.Context, name string, value interface{}) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if days, ok := value.(int); ok {
		r.store.retention[name] = days
	}
	return nil
}

func (r *stubSysParamRepo) GetRetentionDays(ctx context.Context) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if days, ok := r.store.retention[model.SysParamHistoryRetentionDays]; ok {
		return days, nil
	}
	return 30, nil
}

// stubUnitOfWork runs the callback without a real transaction.
type stubUnitOfWork struct{}

func (u *stubUnitOfWork) Begin() *gorm.DB { return nil }
func (u *stubUnitOfWork) Commit() error   { return nil }
func (u *stubUnitOfWork) Rollback() error { return nil }
func (u *stubUnitOfWork) Run(fn func(opts ...utils.DBOption) error) error {
	return fn()
}

// stubExecutor lets a test swap execution behavior mid-flight.
type stubExecutor struct {
	mu sync.Mutex
	fn func(task *model.TaskDefinition) error
}

func (e *stubExecutor) setFn(fn func(task *model.TaskDefinition) error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fn = fn
}

func (e *stubExecutor) Execute(ctx context.Context, task *model.TaskDefinition, runID string) (strategy.ExecutionMetadata, error) {
	e.mu.Lock()
	fn := e.fn
	e.mu.Unlock()
	if fn == nil {
		return strategy.ExecutionMetadata{ExitCode: strategy.TASK_EXIT_CODE_SUCCESS}, nil
	}
	if err := fn(task); err != nil {
		return strategy.ExecutionMetadata{ExitCode: strategy.TASK_EXIT_CODE_FAILED}, err
	}
	return strategy.ExecutionMetadata{ExitCode: strategy.TASK_EXIT_CODE_SUCCESS}, nil
}

// recordingSink captures published events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *recordingSink) Publish(evt event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func (s *recordingSink) byType(t event.Type) []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []event.Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		Scheduler: config.Scheduler{
			TickInterval:   10 * time.Millisecond,
			ClaimBatchSize: 10,
			ClaimTTL:       time.Minute,
			MaxConcurrency: 2,
			MisfireGrace:   time.Minute,
			PurgeEvery:     time.Hour,
		},
		Retention: config.Retention{DefaultDays: 30},
		Executor:  config.Executor{DefaultTimeout: 5 * time.Second},
	}
}

func newTestRepository(store *memStore) *repository.Repository {
	return &repository.Repository{
		TaskRepo:        &stubTaskRepo{store: store},
		TriggerRepo:     &stubTriggerRepo{store: store},
		RunRepo:         &stubRunRepo{store: store},
		SystemParamRepo: &stubSysParamRepo{store: store},
		UnitOfWork:      &stubUnitOfWork{},
	}
}

func newTestScheduler(store *memStore, executor TaskExecutor, sink event.Sink) *schedulerService {
	return NewSchedulerService(testConfig(), logger.NewNop(), newTestRepository(store), executor, sink)
}
