package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduitci/conduit/internal/application/artifacts"
	"github.com/conduitci/conduit/internal/application/gate"
	"github.com/conduitci/conduit/internal/application/graph"
	"github.com/conduitci/conduit/pkg/domain"
	"github.com/conduitci/conduit/pkg/ports"
)

// Topics on which lifecycle events are published.
const (
	TopicRunEvents   = "run.events"
	TopicStageEvents = "stage.events"
)

// Executor walks a validated stage graph in dependency order, dispatches
// stages to their adapters over a bounded worker pool, records results and
// artifacts, evaluates gates, and hands the finished run to the notifier.
//
// The semaphore is shared across runs: it caps concurrent external-tool
// invocations process-wide.
type Executor struct {
	storage  ports.RunStorage
	events   ports.EventBus
	metrics  ports.MetricsCollector
	notifier ports.Notifier
	logger   *zap.Logger

	stageTimeout time.Duration
	sem          chan struct{}
	capacity     int
	busy         atomic.Int64
}

// Config holds executor construction parameters.
type Config struct {
	Storage  ports.RunStorage
	Events   ports.EventBus
	Metrics  ports.MetricsCollector
	Notifier ports.Notifier
	Logger   *zap.Logger

	// MaxConcurrentStages bounds simultaneous adapter invocations
	// across all runs.
	MaxConcurrentStages int

	// StageTimeout is the default per-stage timeout; a stage spec may
	// override it.
	StageTimeout time.Duration
}

// New creates an executor.
func New(cfg Config) *Executor {
	capacity := cfg.MaxConcurrentStages
	if capacity < 1 {
		capacity = 1
	}
	return &Executor{
		storage:      cfg.Storage,
		events:       cfg.Events,
		metrics:      cfg.Metrics,
		notifier:     cfg.Notifier,
		logger:       cfg.Logger,
		stageTimeout: cfg.StageTimeout,
		sem:          make(chan struct{}, capacity),
		capacity:     capacity,
	}
}

// Occupancy returns the number of busy worker slots and the pool capacity.
func (e *Executor) Occupancy() (busy, capacity int) {
	return int(e.busy.Load()), e.capacity
}

// Run executes one pipeline run to a terminal status. Stage failures and
// gate failures never surface as an error here: they are recorded on the
// run. The notifier is invoked exactly once on every exit path.
//
// The adapters map must contain an entry for every stage's adapter name.
func (e *Executor) Run(ctx context.Context, run *domain.PipelineRun, g *graph.StageGraph, adapters map[string]ports.StageAdapter) error {
	log := e.logger.With(zap.String("run_id", run.ID))
	defer e.notify(run, log)

	if err := checkSetup(run, g, adapters); err != nil {
		log.Error("run setup invalid", zap.Error(err))
		e.finalize(run, domain.RunStatusFailed, err.Error(), time.Now(), log)
		return err
	}

	started := time.Now()
	run.Status = domain.RunStatusRunning
	run.StartedAt = &started
	e.saveRun(run, log)
	e.publishRunEvent(run, domain.EventTypeRunStarted, nil)
	log.Info("run started",
		zap.String("pipeline", run.Pipeline.Name),
		zap.Int("stages", g.Len()))

	store := artifacts.NewStore()
	var ready []string
	for _, id := range g.TopologicalOrder() {
		if len(g.Dependencies(id)) == 0 {
			ready = append(ready, id)
		}
	}

	done := make(chan *domain.StageResult)
	remaining := g.Len()
	inFlight := 0
	cancelled := false

	for remaining > 0 {
		if !cancelled {
			for len(ready) > 0 {
				id := ready[0]
				ready = ready[1:]
				if run.StageResults[id].Status != domain.StageStatusPending {
					continue
				}
				spec, _ := g.Stage(id)
				e.markRunning(run, id, log)
				inFlight++
				go e.invoke(ctx, run.ID, spec, adapters[spec.Adapter], store, done)
			}
		}

		if inFlight == 0 {
			if remaining > 0 && !cancelled {
				// Unreachable for a validated DAG; guard against hangs.
				log.Error("no runnable stages but run not finished",
					zap.Int("remaining", remaining))
				for _, id := range g.TopologicalOrder() {
					if !run.StageResults[id].Status.Terminal() {
						remaining -= e.recordSkip(run, id, domain.SkipReasonUpstreamFailure, log)
					}
				}
			}
			break
		}

		if cancelled {
			res := <-done
			inFlight--
			remaining -= e.recordResult(run, res, g, &ready, true, log)
			continue
		}

		select {
		case <-ctx.Done():
			cancelled = true
			log.Warn("run cancelled", zap.Error(ctx.Err()))
			for _, id := range g.TopologicalOrder() {
				if run.StageResults[id].Status == domain.StageStatusPending {
					remaining -= e.recordSkip(run, id, domain.SkipReasonCancelled, log)
				}
			}
		case res := <-done:
			inFlight--
			remaining -= e.recordResult(run, res, g, &ready, false, log)
		}
	}

	status := domain.RunStatusSucceeded
	reason := ""
	if cancelled {
		status = domain.RunStatusCancelled
		reason = "run cancelled"
	} else {
		for _, res := range run.StageResults {
			if res.Status == domain.StageStatusFailure {
				status = domain.RunStatusFailed
				reason = fmt.Sprintf("stage %s failed", res.StageID)
				break
			}
		}
	}

	e.finalize(run, status, reason, started, log)
	return nil
}

func checkSetup(run *domain.PipelineRun, g *graph.StageGraph, adapters map[string]ports.StageAdapter) error {
	if run == nil || run.Pipeline == nil {
		return fmt.Errorf("run is incomplete")
	}
	if g == nil || !g.Validated() {
		return fmt.Errorf("stage graph is not validated")
	}
	for _, spec := range g.Stages() {
		if _, ok := adapters[spec.Adapter]; !ok {
			return fmt.Errorf("%w: %q (stage %q)", domain.ErrUnknownAdapter, spec.Adapter, spec.ID)
		}
	}
	return nil
}

// invoke runs a single stage adapter under the bounded pool and the
// per-stage timeout. It always delivers exactly one result on done.
func (e *Executor) invoke(ctx context.Context, runID string, spec domain.StageSpec, adapter ports.StageAdapter, store *artifacts.Store, done chan<- *domain.StageResult) {
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		now := time.Now()
		done <- &domain.StageResult{
			StageID:     spec.ID,
			Status:      domain.StageStatusSkipped,
			SkipReason:  domain.SkipReasonCancelled,
			CompletedAt: &now,
		}
		return
	}
	e.busy.Add(1)
	e.metrics.RecordWorkerOccupancy(int(e.busy.Load()), e.capacity)
	defer func() {
		<-e.sem
		e.busy.Add(-1)
		e.metrics.RecordWorkerOccupancy(int(e.busy.Load()), e.capacity)
	}()

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = e.stageTimeout
	}
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	startedAt := time.Now()
	res, err := adapter.Execute(stageCtx, ports.StageContext{
		RunID:     runID,
		StageID:   spec.ID,
		Params:    spec.Params,
		Artifacts: store,
	})
	completedAt := time.Now()

	if err != nil || res == nil {
		res = adapterFailure(spec.ID, stageCtx, err)
	} else {
		res.StageID = spec.ID
		if perr := persistArtifacts(store, spec.ID, res); perr != nil {
			res.Status = domain.StageStatusFailure
			res.Error = perr.Error()
			res.Findings = append(res.Findings, domain.Finding{
				Type:     domain.FindingTypeAdapterError,
				Severity: domain.SeverityHigh,
				Message:  perr.Error(),
			})
		} else {
			outcome := gate.Evaluate(res, spec.Gate)
			res.GateOutcome = &outcome
			if outcome.Passed {
				res.Status = domain.StageStatusSuccess
				e.metrics.RecordGateEvaluated("pass")
			} else {
				res.Status = domain.StageStatusFailure
				res.Error = "gate failed: " + outcome.Reason
				e.metrics.RecordGateEvaluated("fail")
			}
		}
	}

	res.StartedAt = &startedAt
	res.CompletedAt = &completedAt
	e.metrics.RecordStageExecuted(spec.Adapter, string(res.Status), completedAt.Sub(startedAt))
	done <- res
}

// adapterFailure maps an adapter invocation error to a failed result.
// Timeouts are reported explicitly; errors are never retried here.
func adapterFailure(stageID string, stageCtx context.Context, err error) *domain.StageResult {
	msg := "adapter returned no result"
	if err != nil {
		msg = err.Error()
	}
	if errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		msg = domain.ErrStageTimeout.Error() + ": " + msg
	}
	return &domain.StageResult{
		StageID: stageID,
		Status:  domain.StageStatusFailure,
		Error:   msg,
		Findings: []domain.Finding{{
			Type:     domain.FindingTypeAdapterError,
			Severity: domain.SeverityHigh,
			Message:  msg,
		}},
	}
}

// persistArtifacts writes the adapter's declared outputs into the run's
// artifact store before gate evaluation, replacing each entry with the
// store's canonical reference.
func persistArtifacts(store *artifacts.Store, stageID string, res *domain.StageResult) error {
	if len(res.Artifacts) == 0 {
		return nil
	}
	names := make([]string, 0, len(res.Artifacts))
	for name := range res.Artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ref, err := store.Put(stageID, name, res.Artifacts[name].Reference)
		if err != nil {
			return err
		}
		res.Artifacts[name] = ref
	}
	return nil
}

// markRunning transitions a pending stage to running and announces it.
func (e *Executor) markRunning(run *domain.PipelineRun, stageID string, log *zap.Logger) {
	now := time.Now()
	res := run.StageResults[stageID]
	res.Status = domain.StageStatusRunning
	res.StartedAt = &now
	e.saveRun(run, log)
	e.publishStageEvent(run, stageID, domain.EventTypeStageStarted, nil)
	log.Info("stage started", zap.String("stage_id", stageID))
}

// recordResult writes a stage's terminal result exactly once, cascades
// skips on failure and queues newly-ready dependents on success. It
// returns the number of stages brought to a terminal state.
func (e *Executor) recordResult(run *domain.PipelineRun, res *domain.StageResult, g *graph.StageGraph, ready *[]string, cancelled bool, log *zap.Logger) int {
	cur := run.StageResults[res.StageID]
	if cur.Status.Terminal() {
		log.Error("stage result arrived for terminal stage, dropping",
			zap.String("stage_id", res.StageID),
			zap.String("status", string(cur.Status)))
		return 0
	}

	if cancelled && res.Status != domain.StageStatusSkipped {
		res.Status = domain.StageStatusSkipped
		res.SkipReason = domain.SkipReasonCancelled
	}
	if res.StartedAt == nil {
		res.StartedAt = cur.StartedAt
	}
	run.StageResults[res.StageID] = res
	e.saveRun(run, log)

	terminal := 1
	switch res.Status {
	case domain.StageStatusSuccess:
		e.publishStageEvent(run, res.StageID, domain.EventTypeStageSuccess, map[string]interface{}{
			"artifacts": len(res.Artifacts),
			"findings":  len(res.Findings),
		})
		log.Info("stage succeeded",
			zap.String("stage_id", res.StageID),
			zap.Int("findings", len(res.Findings)))
		for _, dep := range g.Dependents(res.StageID) {
			if stageReady(run, g, dep) {
				*ready = append(*ready, dep)
			}
		}
	case domain.StageStatusFailure:
		e.publishStageEvent(run, res.StageID, domain.EventTypeStageFailure, map[string]interface{}{
			"error": res.Error,
		})
		log.Warn("stage failed",
			zap.String("stage_id", res.StageID),
			zap.String("error", res.Error))
		terminal += e.cascadeSkip(run, g, res.StageID, log)
	case domain.StageStatusSkipped:
		e.publishStageEvent(run, res.StageID, domain.EventTypeStageSkipped, map[string]interface{}{
			"reason": res.SkipReason,
		})
	}
	return terminal
}

// stageReady reports whether a pending stage has every dependency in
// Success. A stage never starts before all dependencies are terminal.
func stageReady(run *domain.PipelineRun, g *graph.StageGraph, stageID string) bool {
	if run.StageResults[stageID].Status != domain.StageStatusPending {
		return false
	}
	for _, dep := range g.Dependencies(stageID) {
		if run.StageResults[dep].Status != domain.StageStatusSuccess {
			return false
		}
	}
	return true
}

// cascadeSkip marks every pending stage transitively depending on the
// failed stage as skipped. Their adapters are never invoked. Returns the
// number of stages skipped.
func (e *Executor) cascadeSkip(run *domain.PipelineRun, g *graph.StageGraph, failedID string, log *zap.Logger) int {
	skipped := 0
	queue := append([]string(nil), g.Dependents(failedID)...)
	visited := map[string]struct{}{failedID: {}}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, seen := visited[id]; seen {
			continue
		}
		visited[id] = struct{}{}
		skipped += e.recordSkip(run, id, domain.SkipReasonUpstreamFailure, log)
		queue = append(queue, g.Dependents(id)...)
	}
	return skipped
}

// recordSkip transitions a pending stage directly to skipped. Returns 1
// if the stage was skipped, 0 if it was already terminal or running.
func (e *Executor) recordSkip(run *domain.PipelineRun, stageID, reason string, log *zap.Logger) int {
	res := run.StageResults[stageID]
	if res.Status != domain.StageStatusPending {
		return 0
	}
	now := time.Now()
	res.Status = domain.StageStatusSkipped
	res.SkipReason = reason
	res.CompletedAt = &now
	e.saveRun(run, log)
	e.publishStageEvent(run, stageID, domain.EventTypeStageSkipped, map[string]interface{}{
		"reason": reason,
	})
	log.Info("stage skipped",
		zap.String("stage_id", stageID),
		zap.String("reason", reason))
	return 1
}

// finalize stamps the run's terminal status and announces it.
func (e *Executor) finalize(run *domain.PipelineRun, status domain.RunStatus, reason string, started time.Time, log *zap.Logger) {
	now := time.Now()
	run.Status = status
	run.Error = reason
	run.CompletedAt = &now
	e.saveRun(run, log)

	eventType := domain.EventTypeRunSucceeded
	switch status {
	case domain.RunStatusFailed:
		eventType = domain.EventTypeRunFailed
	case domain.RunStatusCancelled:
		eventType = domain.EventTypeRunCancelled
	}
	e.publishRunEvent(run, eventType, map[string]interface{}{
		"error": reason,
	})
	e.metrics.RecordRunCompleted(string(status), now.Sub(started))
	log.Info("run finished",
		zap.String("status", string(status)),
		zap.Duration("duration", now.Sub(started)))
}

// notify delivers the terminal notification. It runs on every exit path
// of Run, uses its own context so cancellation of the run cannot suppress
// it, and never escalates delivery errors.
func (e *Executor) notify(run *domain.PipelineRun, log *zap.Logger) {
	if e.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now()
	run.NotifiedAt = &now
	if err := e.notifier.Notify(ctx, run); err != nil {
		run.NotifyError = err.Error()
		e.metrics.RecordNotification("failure")
		e.publishRunEvent(run, domain.EventTypeNotifyFailure, map[string]interface{}{
			"error": err.Error(),
		})
		log.Error("notification delivery failed", zap.Error(err))
	} else {
		e.metrics.RecordNotification("success")
		e.publishRunEvent(run, domain.EventTypeNotifySent, nil)
	}
	e.saveRun(run, log)
}

func (e *Executor) saveRun(run *domain.PipelineRun, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.storage.SaveRun(ctx, run); err != nil {
		log.Error("failed to save run state", zap.Error(err))
	}
}

func (e *Executor) publishRunEvent(run *domain.PipelineRun, eventType domain.EventType, data map[string]interface{}) {
	e.publish(TopicRunEvents, domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		RunID:     run.ID,
		Timestamp: time.Now(),
		Data:      data,
	})
}

func (e *Executor) publishStageEvent(run *domain.PipelineRun, stageID string, eventType domain.EventType, data map[string]interface{}) {
	e.publish(TopicStageEvents, domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		RunID:     run.ID,
		StageID:   stageID,
		Timestamp: time.Now(),
		Data:      data,
	})
}

func (e *Executor) publish(topic string, event domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.events.Publish(ctx, topic, event); err != nil {
		e.logger.Error("failed to publish event",
			zap.String("topic", topic),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}
