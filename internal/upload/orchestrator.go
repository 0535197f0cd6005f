// Package upload runs the single-flight screenshot upload cycle.
package upload

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bryanchriswhite/ScreenShotSender/internal/capture"
	"github.com/bryanchriswhite/ScreenShotSender/internal/dispatch"
	"github.com/bryanchriswhite/ScreenShotSender/internal/logger"
	"github.com/bryanchriswhite/ScreenShotSender/internal/metrics"
	"github.com/bryanchriswhite/ScreenShotSender/internal/network"
	"github.com/bryanchriswhite/ScreenShotSender/internal/status"
)

// Failure messages produced by the orchestrator itself
const (
	MsgNullFlowID      = "Flow id can't be null"
	MsgMissingIdentity = "Application identity is not set"
)

// DefaultRevertDelay is how long a terminal status stays visible before Idle
const DefaultRevertDelay = 3 * time.Second

// Collector is the remote side of an upload cycle
type Collector interface {
	ResolveUploadTarget(ctx context.Context, identity string) network.Result[network.UploadTarget]
	UploadScreenshot(ctx context.Context, flowID int, artifact *capture.Artifact) network.Result[network.Unit]
}

// CollectorSource hands out the collector for one cycle
type CollectorSource func() (Collector, error)

// FromManager adapts a network.Manager to a CollectorSource
func FromManager(m *network.Manager) CollectorSource {
	return func() (Collector, error) {
		client, err := m.Get()
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// Capturer turns a surface into an artifact
type Capturer interface {
	Capture(ctx context.Context, surface capture.Surface) (*capture.Artifact, error)
}

// Runner is the background context cycles and revert timers run on
type Runner interface {
	Go(fn func(ctx context.Context)) bool
	AfterFunc(d time.Duration, fn func()) dispatch.Timer
}

// Receipt is the payload of a Succeeded status
type Receipt struct {
	FlowID   int    `json:"flow_id"`
	Artifact string `json:"artifact"`
}

// Options tunes an Orchestrator
type Options struct {
	RevertDelay time.Duration
	Metrics     *metrics.UploadMetrics
}

// Orchestrator owns the upload status and runs at most one cycle at a time
type Orchestrator struct {
	store       *status.Store
	collectors  CollectorSource
	capturer    Capturer
	runner      Runner
	revertDelay time.Duration
	metrics     *metrics.UploadMetrics

	mu     sync.Mutex
	revert dispatch.Timer
}

// NewOrchestrator creates an orchestrator with its own status store
func NewOrchestrator(collectors CollectorSource, capturer Capturer, runner Runner, opts Options) *Orchestrator {
	delay := opts.RevertDelay
	if delay <= 0 {
		delay = DefaultRevertDelay
	}
	return &Orchestrator{
		store:       status.NewStore(),
		collectors:  collectors,
		capturer:    capturer,
		runner:      runner,
		revertDelay: delay,
		metrics:     opts.Metrics,
	}
}

// Statuses returns the read-only status stream
func (o *Orchestrator) Statuses() status.Reader {
	return o.store
}

// Close ends every status subscription
func (o *Orchestrator) Close() {
	o.store.Close()
}

// Status returns the current status
func (o *Orchestrator) Status() status.Status {
	return o.store.Get()
}

// TriggerUpload starts a cycle for surface unless one is already in progress.
// It returns immediately; the outcome is published on the status stream.
func (o *Orchestrator) TriggerUpload(surface capture.Surface, identity string) bool {
	log := logger.WithComponent("upload")

	cycle, ok := o.store.TryBegin()
	if !ok {
		log.Debug().Msg("Upload already in progress, ignoring trigger")
		o.metrics.TriggerRejected("orchestrator", "in_progress")
		return false
	}

	o.cancelRevert()
	o.metrics.CycleStarted()
	start := time.Now()

	log.Info().
		Uint64("cycle", cycle).
		Str("identity", identity).
		Msg("Upload cycle started")

	started := o.runner.Go(func(ctx context.Context) {
		o.run(ctx, cycle, surface, identity, start)
	})
	if !started {
		// The background context is gone; nothing will ever finish this cycle
		o.store.CompareAndSet(func(cur status.Status) bool {
			return cur.Cycle == cycle && cur.Kind == status.InProgress
		}, status.NewIdle(cycle))
		o.metrics.CycleFinished("aborted", "", time.Since(start))
		log.Warn().Uint64("cycle", cycle).Msg("Upload cycle aborted, background context closed")
		return false
	}
	return true
}

func (o *Orchestrator) run(ctx context.Context, cycle uint64, surface capture.Surface, identity string, start time.Time) {
	var final status.Status
	defer func() {
		if r := recover(); r != nil {
			logger.WithComponent("upload").Error().
				Uint64("cycle", cycle).
				Interface("panic", r).
				Msg("Recovered panic in upload cycle")
			final = status.NewFailed(cycle, fmt.Sprint(r), network.CodeUnknown)
		}
		o.finish(cycle, final, start)
	}()

	final = o.cycle(ctx, cycle, surface, identity)
}

func (o *Orchestrator) cycle(ctx context.Context, cycle uint64, surface capture.Surface, identity string) status.Status {
	log := logger.WithComponent("upload")

	if identity == "" {
		return status.NewFailed(cycle, MsgMissingIdentity, network.CodeUnknown)
	}

	collector, err := o.collectors()
	if err != nil {
		return status.NewFailed(cycle, err.Error(), network.CodeUnknown)
	}

	target := collector.ResolveUploadTarget(ctx, identity)
	if !target.OK() {
		return status.NewFailed(cycle, target.Err.Message, target.Err.Code)
	}
	if target.Data.FlowID == nil {
		return status.NewFailed(cycle, MsgNullFlowID, network.CodeUnknown)
	}
	flowID := *target.Data.FlowID

	artifact, err := o.capturer.Capture(ctx, surface)
	if err != nil {
		log.Warn().Err(err).Uint64("cycle", cycle).Msg("Screenshot capture failed")
		return status.NewFailed(cycle, err.Error(), network.CodeUnknown)
	}

	result := collector.UploadScreenshot(ctx, flowID, artifact)
	if !result.OK() {
		log.Warn().
			Uint64("cycle", cycle).
			Int("flow_id", flowID).
			Str("artifact", artifact.Path).
			Str("error", result.Err.Message).
			Int("code", result.Err.Code).
			Msg("Screenshot upload failed, keeping artifact")
		return status.NewFailed(cycle, result.Err.Message, result.Err.Code)
	}

	if err := artifact.Remove(); err != nil {
		log.Warn().Err(err).Str("artifact", artifact.Path).Msg("Failed to delete uploaded screenshot")
	}

	return status.NewSucceeded(cycle, Receipt{FlowID: flowID, Artifact: artifact.Name})
}

func (o *Orchestrator) finish(cycle uint64, final status.Status, start time.Time) {
	applied := o.store.CompareAndSet(func(cur status.Status) bool {
		return cur.Cycle == cycle && cur.Kind == status.InProgress
	}, final)

	outcome := final.Kind.String()
	o.metrics.CycleFinished(outcome, strconv.Itoa(final.Code), time.Since(start))

	log := logger.WithComponent("upload")
	event := log.Info()
	if final.Kind == status.Failed {
		event = log.Warn().Str("error", final.Message).Int("code", final.Code)
	}
	event.
		Uint64("cycle", cycle).
		Str("outcome", outcome).
		Dur("duration", time.Since(start)).
		Msg("Upload cycle finished")

	if applied {
		o.scheduleRevert(cycle)
	}
}

func (o *Orchestrator) scheduleRevert(cycle uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.revert != nil {
		o.revert.Stop()
	}
	o.revert = o.runner.AfterFunc(o.revertDelay, func() {
		o.store.CompareAndSet(func(cur status.Status) bool {
			return cur.Cycle == cycle && cur.Terminal()
		}, status.NewIdle(cycle))
	})
}

func (o *Orchestrator) cancelRevert() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.revert != nil {
		o.revert.Stop()
		o.revert = nil
	}
}
