// Copyright (C) 2017 ScyllaDB

package repair

import (
	"context"
	"sync"
	"time"

	"github.com/reaperd/reaperd/pkg/node"
	"github.com/reaperd/reaperd/pkg/util/uuid"
	"github.com/scylladb/go-log"
)

// notifyBuffer is the capacity of the runner event queue, node notifications
// beyond it are dropped and recovered by the timeout.
const notifyBuffer = 32

// attemptOutcome tells the supervisor what happened to a dispatched segment.
type attemptOutcome int

const (
	// attemptDone, the segment is repaired.
	attemptDone attemptOutcome = iota
	// attemptRequeued, the attempt hung and the segment was put back to
	// NOT_STARTED, retry after the retry delay.
	attemptRequeued
	// attemptDeferred, the attempt could not start or persist, the segment
	// state is unchanged, retry on a later dispatch cycle.
	attemptDeferred
)

// attemptResult is the outcome of a single segment repair attempt.
type attemptResult struct {
	segmentID uuid.UUID
	outcome   attemptOutcome
	// avoidHost is the coordinator that hung, the next attempt prefers a
	// different host when one exists.
	avoidHost string
	// elapsed is how long the successful attempt took.
	elapsed time.Duration
}

// runnerRegistry tracks segments with an active runner in this process.
// Insert is atomic, only one runner can hold a segment at a time.
type runnerRegistry struct {
	mu      sync.Mutex
	running map[uuid.UUID]*SegmentRunner
}

func newRunnerRegistry() *runnerRegistry {
	return &runnerRegistry{
		running: make(map[uuid.UUID]*SegmentRunner),
	}
}

// tryAcquire registers r as the active runner of the segment. It reports
// false when another runner already holds the segment.
func (g *runnerRegistry) tryAcquire(id uuid.UUID, r *SegmentRunner) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.running[id]; ok {
		return false
	}
	g.running[id] = r
	return true
}

func (g *runnerRegistry) release(id uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, id)
}

func (g *runnerRegistry) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.running)
}

// topologySource resolves the hosts responsible for a token range, it is
// satisfied by an administrative node.Proxy.
type topologySource interface {
	TokenRangeEndpoints(ctx context.Context, keyspace string, r node.TokenRange) ([]string, error)
}

// SegmentRunner executes a single repair attempt of a single segment. It
// triggers the repair on a coordinator node and consumes status
// notifications until the repair finishes or times out. A fresh runner is
// created for every attempt.
type SegmentRunner struct {
	storage  Storage
	provider node.Provider
	topology topologySource
	registry *runnerRegistry

	segment     Segment
	keyspace    string
	tables      []string
	parallelism node.Parallelism
	clusterName string

	timeout   time.Duration
	avoidHost string
	// attach makes the runner adopt a repair already running on a node
	// instead of triggering a new one.
	attach bool

	events chan node.Event
	logger log.Logger
}

// handleEvent implements node.StatusHandler. It forwards notifications into
// the runner goroutine, the node callback thread is never blocked.
func (r *SegmentRunner) handleEvent(ev node.Event) {
	select {
	case r.events <- ev:
	default:
		r.logger.Error(context.Background(), "Notification queue full, dropping event",
			"segment", r.segment.ID,
			"command", ev.CommandID,
			"status", ev.Status,
		)
	}
}

// Run performs the attempt and reports its outcome. The segment is locked in
// the registry for the duration of the attempt so no second runner can work
// on it concurrently.
func (r *SegmentRunner) Run(ctx context.Context) attemptResult {
	if !r.registry.tryAcquire(r.segment.ID, r) {
		r.logger.Debug(ctx, "Segment has an active runner, skipping", "segment", r.segment.ID)
		return attemptResult{segmentID: r.segment.ID, outcome: attemptDeferred}
	}
	defer r.registry.release(r.segment.ID)

	if r.attach {
		return r.adopt(ctx)
	}
	return r.repair(ctx)
}

// repair runs a fresh attempt, the segment must be NOT_STARTED.
func (r *SegmentRunner) repair(ctx context.Context) attemptResult {
	began := timeNow()

	hosts, err := r.topology.TokenRangeEndpoints(ctx, r.keyspace, r.segment.Range())
	if err != nil {
		r.logger.Error(ctx, "Failed to resolve hosts for segment",
			"segment", r.segment.ID,
			"error", err,
		)
		return attemptResult{segmentID: r.segment.ID, outcome: attemptDeferred}
	}

	var (
		proxy node.Proxy
		host  string
	)
	for _, h := range preferOtherHost(hosts, r.avoidHost) {
		p, err := r.provider.ConnectWithHandler(ctx, r.handleEvent, h)
		if err != nil {
			r.logger.Info(ctx, "Cannot connect to host", "host", h, "error", err)
			continue
		}
		proxy, host = p, h
		break
	}
	if proxy == nil {
		r.logger.Error(ctx, "No reachable coordinator for segment", "segment", r.segment.ID)
		return attemptResult{segmentID: r.segment.ID, outcome: attemptDeferred}
	}
	defer proxy.Close()

	commandID, err := proxy.TriggerRepair(ctx, r.segment.Range(), r.keyspace, r.parallelism, r.tables)
	if err != nil {
		r.logger.Error(ctx, "Failed to trigger repair",
			"segment", r.segment.ID,
			"host", host,
			"error", err,
		)
		return attemptResult{segmentID: r.segment.ID, outcome: attemptDeferred}
	}
	r.logger.Debug(ctx, "Triggered repair",
		"segment", r.segment.ID,
		"host", host,
		"command", commandID,
	)

	return r.await(ctx, commandID, host, began)
}

// adopt attaches to a repair command already running on its recorded
// coordinator, notifications for the recorded command id complete the
// segment without a new trigger.
func (r *SegmentRunner) adopt(ctx context.Context) attemptResult {
	began := timeNow()
	host := r.segment.CoordinatorHost

	proxy, err := r.provider.ConnectWithHandler(ctx, r.handleEvent, host)
	if err != nil {
		r.logger.Info(ctx, "Coordinator of running segment gone, requeueing",
			"segment", r.segment.ID,
			"host", host,
			"error", err,
		)
		return r.requeue(ctx, host)
	}
	defer proxy.Close()

	r.logger.Info(ctx, "Attached to repair in progress",
		"segment", r.segment.ID,
		"host", host,
		"command", r.segment.CommandID,
	)
	return r.await(ctx, r.segment.CommandID, host, began)
}

// await consumes status notifications of the command until the repair
// finishes, hangs past the timeout or ctx is canceled.
func (r *SegmentRunner) await(ctx context.Context, commandID int32, host string, began time.Time) attemptResult {
	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	seg := r.segment
	for {
		select {
		case ev := <-r.events:
			if ev.CommandID != commandID {
				r.logger.Debug(ctx, "Dropping stale notification",
					"segment", seg.ID,
					"command", ev.CommandID,
				)
				continue
			}
			switch ev.Status {
			case node.CommandStarted:
				if seg.State != SegmentStateNotStarted {
					continue
				}
				seg = seg.WithRunning(timeNow(), host, commandID)
				if err := r.storage.UpdateSegment(ctx, &seg); err != nil {
					r.logger.Error(ctx, "Failed to persist segment start",
						"segment", seg.ID,
						"error", err,
					)
					return attemptResult{segmentID: seg.ID, outcome: attemptDeferred}
				}
			case node.CommandSessionSuccess:
				r.logger.Debug(ctx, "Repair session success", "segment", seg.ID, "command", commandID)
			case node.CommandSessionFailed:
				// the timeout decides the fate of the attempt
				r.logger.Info(ctx, "Repair session failed",
					"segment", seg.ID,
					"command", commandID,
					"message", ev.Message,
				)
			case node.CommandFinished:
				done := seg.WithDone(timeNow())
				if err := r.storage.UpdateSegment(ctx, &done); err != nil {
					r.logger.Error(ctx, "Failed to persist segment completion",
						"segment", seg.ID,
						"error", err,
					)
					return attemptResult{segmentID: seg.ID, outcome: attemptDeferred}
				}
				elapsed := timeNow().Sub(began)
				repairDurationSeconds.WithLabelValues(r.clusterName).Observe(elapsed.Seconds())
				r.logger.Debug(ctx, "Segment repaired", "segment", seg.ID, "duration", elapsed)
				return attemptResult{segmentID: seg.ID, outcome: attemptDone, elapsed: elapsed}
			}
		case <-timer.C:
			r.logger.Info(ctx, "Segment repair timed out, requeueing",
				"segment", seg.ID,
				"host", host,
				"command", commandID,
			)
			repairSegmentTimeoutsTotal.WithLabelValues(r.clusterName).Inc()
			return r.requeue(ctx, host)
		case <-ctx.Done():
			return attemptResult{segmentID: seg.ID, outcome: attemptDeferred}
		}
	}
}

// requeue puts the segment back to NOT_STARTED clearing the attempt
// bookkeeping, a later attempt picks it up with a fresh command id.
func (r *SegmentRunner) requeue(ctx context.Context, host string) attemptResult {
	reset := r.segment.WithReset()
	if err := r.storage.UpdateSegment(ctx, &reset); err != nil {
		r.logger.Error(ctx, "Failed to requeue segment",
			"segment", r.segment.ID,
			"error", err,
		)
		return attemptResult{segmentID: r.segment.ID, outcome: attemptDeferred}
	}
	return attemptResult{segmentID: r.segment.ID, outcome: attemptRequeued, avoidHost: host}
}

// preferOtherHost moves avoid to the end of the candidate list so that a
// host that hung is retried only when no other candidate exists.
func preferOtherHost(hosts []string, avoid string) []string {
	if avoid == "" || len(hosts) < 2 {
		return hosts
	}
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h != avoid {
			out = append(out, h)
		}
	}
	if len(out) < len(hosts) {
		out = append(out, avoid)
	}
	return out
}
