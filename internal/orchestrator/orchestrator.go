package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/optiview/optiview/internal/events"
)

// Facade errors.
var (
	ErrAlreadyRunning = errors.New("orchestrator already running")
	ErrNotRunning     = errors.New("orchestrator not running")
)

const (
	defaultTickInterval  = 2 * time.Second
	defaultMaxConcurrent = 3
	completedLogLimit    = 500
)

// Orchestrator drives the optimization workflow for one site. One live
// instance is expected per (organization, site) pair; Start is guarded so a
// second call fails rather than double-scheduling.
type Orchestrator struct {
	cfg      Config
	collab   Collaborators
	engine   *decisionEngine
	handlers *handlerSet
	queue    *taskQueue
	clock    Clock
	emitter  events.Emitter
	logger   *zap.Logger

	stateMu sync.RWMutex
	state   SiteState

	tasksMu   sync.Mutex
	running   map[string]*Task
	completed []*Task

	started atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	// inflight supervises dispatched task goroutines so Stop can await them.
	inflight sync.WaitGroup
	stopOnce sync.Once
}

// New constructs an Orchestrator. The emitter may be nil; the logger too.
func New(cfg Config, collab Collaborators, ids IDGenerator, clock Clock, emitter events.Emitter, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = defaultMaxConcurrent
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	o := &Orchestrator{
		cfg:     cfg,
		collab:  collab,
		engine:  newDecisionEngine(),
		queue:   newTaskQueue(ids, clock),
		clock:   clock,
		emitter: emitter,
		logger:  logger.With(zap.String("org_id", cfg.OrgID), zap.String("site_id", cfg.SiteID)),
		running: make(map[string]*Task),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	o.state.PublisherConnected = collab.Publisher != nil
	o.handlers = &handlerSet{
		cfg:              cfg,
		collab:           collab,
		clock:            clock,
		logger:           o.logger,
		snapshot:         o.State,
		enqueueSuccessor: o.enqueueDeduped,
	}
	return o
}

// Start seeds the initial discovery task and launches the control loop. It
// returns ErrAlreadyRunning on a second call.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	if _, err := o.queue.Enqueue(TaskDef{
		Type:            TaskDiscovery,
		Priority:        PriorityCritical,
		Title:           fmt.Sprintf("Discover pages on %s", o.cfg.SiteURL),
		EstimatedImpact: "high",
	}); err != nil {
		o.started.Store(false)
		return fmt.Errorf("seed discovery task: %w", err)
	}
	o.logger.Info("orchestrator started",
		zap.Duration("tick", o.cfg.TickInterval),
		zap.Int("max_concurrent", o.cfg.MaxConcurrentTasks))
	go o.run(ctx)
	return nil
}

// Stop flags the loop to exit after its current iteration, then awaits
// in-flight tasks until ctx expires. It never cancels a dispatched task.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if !o.started.Load() {
		return ErrNotRunning
	}
	o.stopOnce.Do(func() { close(o.stopCh) })

	select {
	case <-o.doneCh:
	case <-ctx.Done():
		return fmt.Errorf("await loop exit: %w", ctx.Err())
	}

	drained := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		return fmt.Errorf("await in-flight tasks: %w", ctx.Err())
	}

	// Tasks still pending at shutdown are skipped, never failed: nothing ran.
	now := o.clock.Now()
	o.tasksMu.Lock()
	for {
		task := o.queue.Dequeue()
		if task == nil {
			break
		}
		task.Status = StatusSkipped
		task.CompletedAt = &now
		o.completed = append(o.completed, task)
	}
	o.tasksMu.Unlock()

	o.logger.Info("orchestrator stopped")
	return nil
}

// State returns a deep copy of the site state.
func (o *Orchestrator) State() SiteState {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.state.Clone()
}

// Tasks returns pending, running, and completed task snapshots.
func (o *Orchestrator) Tasks() TaskSnapshot {
	snap := TaskSnapshot{Pending: o.queue.Snapshot()}
	o.tasksMu.Lock()
	defer o.tasksMu.Unlock()
	for _, task := range o.running {
		snap.Running = append(snap.Running, *task)
	}
	snap.Completed = make([]Task, len(o.completed))
	for i, task := range o.completed {
		snap.Completed[i] = *task
	}
	return snap
}

// Trigger enqueues a task directly, bypassing decision-engine dedup. It is
// the manual/administrative entry point.
func (o *Orchestrator) Trigger(taskType TaskType, input any) (Task, error) {
	handler, ok := o.handlers.forType(taskType)
	if !ok || handler == nil {
		return Task{}, fmt.Errorf("unknown task type %q", taskType)
	}
	task, err := o.queue.Enqueue(TaskDef{
		Type:     taskType,
		Priority: PriorityHigh,
		Title:    fmt.Sprintf("Manual %s", taskType),
		Input:    input,
	})
	if err != nil {
		return Task{}, err
	}
	return *task, nil
}

func (o *Orchestrator) run(ctx context.Context) {
	defer close(o.doneCh)
	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.step(ctx)
		}
	}
}

// step runs one loop iteration: dispatch up to the concurrency cap, and
// when the queue is drained ask the decision engine for more work.
func (o *Orchestrator) step(ctx context.Context) {
	for o.runningCount() < o.cfg.MaxConcurrentTasks {
		task := o.queue.Dequeue()
		if task == nil {
			break
		}
		o.dispatch(ctx, task)
	}
	if o.queue.Len() == 0 {
		o.decide()
	}
}

func (o *Orchestrator) decide() {
	snap := o.State()
	proposals := o.engine.Propose(o.cfg, &snap, o.activeTypes(), o.clock.Now())
	if len(proposals) == 0 {
		return
	}
	var accepted []string
	for _, proposal := range proposals {
		// Re-check: an earlier proposal in this cycle may have queued the type.
		if o.typeActive(proposal.Def.Type) {
			continue
		}
		if _, err := o.queue.Enqueue(proposal.Def); err != nil {
			o.logger.Error("enqueue proposal failed", zap.String("rule", proposal.Rule), zap.Error(err))
			continue
		}
		accepted = append(accepted, proposal.Rule)
	}
	if len(accepted) == 0 {
		return
	}
	o.logger.Debug("decision cycle proposed tasks", zap.Strings("rules", accepted))
	o.emit(events.Event{
		Type: events.TypeDecisionMade,
		Data: map[string]any{"rules": accepted},
	})
}

// dispatch runs the task in a supervised goroutine; the loop never blocks
// on its completion.
func (o *Orchestrator) dispatch(ctx context.Context, task *Task) {
	now := o.clock.Now()
	task.Status = StatusRunning
	task.StartedAt = &now

	o.tasksMu.Lock()
	o.running[task.ID] = task
	o.tasksMu.Unlock()

	o.emit(events.Event{
		Type:     events.TypeTaskStarted,
		TaskID:   task.ID,
		TaskType: string(task.Type),
	})
	o.logger.Info("task started", zap.String("task_id", task.ID), zap.String("type", string(task.Type)))

	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		o.execute(ctx, task)
	}()
}

func (o *Orchestrator) execute(ctx context.Context, task *Task) {
	handler, ok := o.handlers.forType(task.Type)
	if !ok {
		o.finish(task, nil, fmt.Errorf("no handler for task type %q", task.Type))
		return
	}
	result, patch, err := handler(ctx, task)
	if err == nil && patch != nil {
		o.stateMu.Lock()
		patch(&o.state)
		o.stateMu.Unlock()
		o.emit(events.Event{Type: events.TypeStateUpdated, TaskType: string(task.Type)})
	}
	o.finish(task, result, err)
}

// finish records the terminal transition and moves the task to the
// completed log. A failed task is terminal; the queue never retries, and
// the decision engine re-proposes the type later if its precondition still
// holds.
func (o *Orchestrator) finish(task *Task, result any, err error) {
	now := o.clock.Now()
	var dur time.Duration

	// Terminal field writes happen under tasksMu so Tasks() snapshots never
	// observe a half-written transition.
	o.tasksMu.Lock()
	task.CompletedAt = &now
	if task.StartedAt != nil {
		dur = now.Sub(*task.StartedAt)
	}
	if err != nil {
		task.Status = StatusFailed
		task.Error = err.Error()
	} else {
		task.Status = StatusCompleted
		task.Result = result
	}
	delete(o.running, task.ID)
	o.completed = append(o.completed, task)
	if len(o.completed) > completedLogLimit {
		o.completed = o.completed[len(o.completed)-completedLogLimit:]
	}
	o.tasksMu.Unlock()

	if err != nil {
		o.logger.Warn("task failed",
			zap.String("task_id", task.ID),
			zap.String("type", string(task.Type)),
			zap.Error(err))
		o.emit(events.Event{
			Type:     events.TypeTaskFailed,
			TaskID:   task.ID,
			TaskType: string(task.Type),
			Dur:      dur,
			Note:     err.Error(),
		})
	} else {
		o.logger.Info("task completed",
			zap.String("task_id", task.ID),
			zap.String("type", string(task.Type)),
			zap.Duration("dur", dur))
		o.emit(events.Event{
			Type:     events.TypeTaskCompleted,
			TaskID:   task.ID,
			TaskType: string(task.Type),
			Dur:      dur,
		})
	}
}

// enqueueDeduped inserts a task unless its type is already queued or
// running; handlers use it for explicit successors.
func (o *Orchestrator) enqueueDeduped(def TaskDef) {
	if o.typeActive(def.Type) {
		return
	}
	if _, err := o.queue.Enqueue(def); err != nil {
		o.logger.Error("enqueue successor failed", zap.String("type", string(def.Type)), zap.Error(err))
	}
}

func (o *Orchestrator) typeActive(t TaskType) bool {
	if o.queue.HasType(t) {
		return true
	}
	o.tasksMu.Lock()
	defer o.tasksMu.Unlock()
	for _, task := range o.running {
		if task.Type == t {
			return true
		}
	}
	return false
}

func (o *Orchestrator) activeTypes() map[TaskType]bool {
	active := make(map[TaskType]bool)
	for _, task := range o.queue.Snapshot() {
		active[task.Type] = true
	}
	o.tasksMu.Lock()
	defer o.tasksMu.Unlock()
	for _, task := range o.running {
		active[task.Type] = true
	}
	return active
}

func (o *Orchestrator) runningCount() int {
	o.tasksMu.Lock()
	defer o.tasksMu.Unlock()
	return len(o.running)
}

func (o *Orchestrator) emit(evt events.Event) {
	if o.emitter == nil {
		return
	}
	evt.TS = o.clock.Now()
	evt.OrgID = o.cfg.OrgID
	evt.SiteID = o.cfg.SiteID
	o.emitter.Emit(evt)
}
