// Copyright (C) 2017 ScyllaDB

package repair

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/reaperd/reaperd/pkg/cluster"
	"github.com/reaperd/reaperd/pkg/node"
	"github.com/reaperd/reaperd/pkg/service"
	"github.com/reaperd/reaperd/pkg/util/retry"
	"github.com/reaperd/reaperd/pkg/util/timeutc"
	"github.com/reaperd/reaperd/pkg/util/uuid"
	"github.com/scylladb/go-log"
)

// timeNow is settable in tests.
var timeNow = timeutc.Now

// Manager executes repair runs. Segment attempts of all runs share a single
// bounded worker pool, each run is driven by its own supervisor goroutine
// that never occupies a pool slot.
type Manager struct {
	config   Config
	storage  Storage
	provider node.Provider
	logger   log.Logger

	registry *runnerRegistry
	pool     *pool

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	active map[uuid.UUID]struct{}
	wg     sync.WaitGroup
	closed bool
}

// NewManager creates a repair manager with a running worker pool.
func NewManager(config Config, storage Storage, provider node.Provider, logger log.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	if storage == nil {
		return nil, service.ErrNilPtr
	}
	if provider == nil {
		return nil, service.ErrNilPtr
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:   config,
		storage:  storage,
		provider: provider,
		logger:   logger,
		registry: newRunnerRegistry(),
		pool:     newPool(ctx, config.PoolSize),
		ctx:      ctx,
		cancel:   cancel,
		active:   make(map[uuid.UUID]struct{}),
	}, nil
}

// StartRun moves the run to RUNNING and supervises it until all segments are
// repaired. It returns as soon as the state change is durable, the repair
// itself proceeds in the background.
func (m *Manager) StartRun(ctx context.Context, clusterName string, runID uuid.UUID) (*Run, error) {
	run, err := m.storage.GetRun(ctx, clusterName, runID)
	if err != nil {
		return nil, errors.Wrap(err, "load run")
	}
	if run.State != RunStateNotStarted {
		return nil, service.ErrValidate(errors.Errorf("run %s is %s", run.ID, run.State))
	}

	started := run.WithStarted(timeNow())
	if err := m.storage.PutRun(ctx, &started); err != nil {
		return nil, errors.Wrap(err, "update run")
	}

	m.superviseAsync(started)
	return &started, nil
}

// ResumeAll restarts supervision of runs that were RUNNING when the process
// stopped. Runs in other states are not touched. It is safe to call more
// than once, runs already supervised by this manager are skipped.
func (m *Manager) ResumeAll(ctx context.Context) error {
	runs, err := m.storage.ListRunsWithState(ctx, RunStateRunning)
	if err != nil {
		return errors.Wrap(err, "list running runs")
	}
	for _, r := range runs {
		m.logger.Info(ctx, "Resuming repair run", "run", r.ID, "cluster", r.ClusterName)
		m.superviseAsync(*r)
	}
	return nil
}

// superviseAsync spawns the supervisor goroutine unless the run is already
// supervised or the manager is closed.
func (m *Manager) superviseAsync(run Run) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if _, ok := m.active[run.ID]; ok {
		return
	}
	m.active[run.ID] = struct{}{}

	ctx := log.WithNewTraceID(m.ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.active, run.ID)
			m.mu.Unlock()
		}()

		repairRunsRunning.WithLabelValues(run.ClusterName).Inc()
		defer repairRunsRunning.WithLabelValues(run.ClusterName).Dec()

		m.supervise(ctx, run)
	}()
}

// Close stops all supervisors and workers and waits for them to return.
// In-flight repair commands keep running on the nodes, a restart adopts
// them through ResumeAll.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.pool.Close()
	m.pool.Wait()
}

// supervise drives one run to completion.
func (m *Manager) supervise(ctx context.Context, run Run) {
	m.logger.Info(ctx, "Supervising repair run", "run", run.ID, "cluster", run.ClusterName)

	unit, err := m.storage.GetUnit(ctx, run.ClusterName, run.UnitID)
	if err != nil {
		m.logger.Error(ctx, "Failed to load repair unit", "run", run.ID, "error", err)
		return
	}
	c, err := m.storage.GetCluster(ctx, run.ClusterName)
	if err != nil {
		m.logger.Error(ctx, "Failed to load cluster", "run", run.ID, "error", err)
		return
	}

	admin, err := m.connectAdmin(ctx, c)
	if err != nil {
		m.logger.Error(ctx, "Failed to connect to cluster", "run", run.ID, "error", err)
		return
	}
	defer admin.Close()

	if segments, err := m.storage.ListSegments(ctx, run.ID); err == nil {
		done := 0
		for _, seg := range segments {
			if seg.State == SegmentStateDone {
				done++
			}
		}
		repairSegmentsTotal.WithLabelValues(run.ClusterName, run.ID.String()).Set(float64(len(segments)))
		repairSegmentsSuccess.WithLabelValues(run.ClusterName, run.ID.String()).Set(float64(done))
	}

	s := &supervisor{
		manager:  m,
		run:      run,
		unit:     *unit,
		topology: admin,
		logger:   m.logger.Named("supervisor"),
		results:  make(chan attemptResult, m.config.PoolSize),
		inflight: make(map[uuid.UUID]node.TokenRange),
		retryAt:  make(map[uuid.UUID]time.Time),
		avoid:    make(map[uuid.UUID]string),
	}
	s.loop(ctx)
}

// connectAdmin dials the cluster seeds with an exponential backoff, a fresh
// cluster may simply not be up yet.
func (m *Manager) connectAdmin(ctx context.Context, c *cluster.Cluster) (node.Proxy, error) {
	var p node.Proxy
	op := func() error {
		var err error
		p, err = node.ConnectAny(ctx, m.provider, c.Seeds...)
		return err
	}
	notify := func(err error, wait time.Duration) {
		m.logger.Info(ctx, "Cannot connect to cluster, retrying",
			"cluster", c.Name,
			"wait", wait,
			"error", err,
		)
	}
	b := retry.WithMaxRetries(retry.NewExponentialBackoff(time.Second, 30*time.Second, 10*time.Second, 2, 0.2), 5)
	if err := retry.WithNotify(ctx, op, b, notify); err != nil {
		return nil, err
	}
	return p, nil
}

// supervisor drives the segments of a single run through the shared pool.
type supervisor struct {
	manager  *Manager
	run      Run
	unit     Unit
	topology topologySource
	logger   log.Logger

	results  chan attemptResult
	inflight map[uuid.UUID]node.TokenRange
	retryAt  map[uuid.UUID]time.Time
	avoid    map[uuid.UUID]string
	// cursor is the start token of the last sequentially dispatched
	// segment, dispatch continues ring order from there.
	cursor *int64
}

// limit is the number of segments repaired at once.
func (s *supervisor) limit() int {
	if s.run.Parallelism == node.ParallelismSequential {
		return 1
	}
	return s.manager.config.PoolSize
}

func (s *supervisor) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.adoptOrphans(ctx); err != nil {
			s.logger.Error(ctx, "Failed to list segments", "run", s.run.ID, "error", err)
			if !s.sleep(ctx) {
				return
			}
			continue
		}

		if err := s.refill(ctx); err != nil {
			s.logger.Error(ctx, "Failed to dispatch segments", "run", s.run.ID, "error", err)
		}

		if len(s.inflight) == 0 {
			done, err := s.finishIfComplete(ctx)
			if err != nil {
				s.logger.Error(ctx, "Failed to finish run", "run", s.run.ID, "error", err)
			}
			if done {
				return
			}
			if !s.sleep(ctx) {
				return
			}
			continue
		}

		select {
		case r := <-s.results:
			s.handleResult(ctx, r)
		case <-ctx.Done():
			return
		}
	}
}

// adoptOrphans attaches to segments recorded RUNNING that have no runner in
// this process. After a restart these carry repairs still executing on the
// nodes, adopting completes them without triggering a second repair.
func (s *supervisor) adoptOrphans(ctx context.Context) error {
	segments, err := s.manager.storage.ListSegments(ctx, s.run.ID)
	if err != nil {
		return err
	}
	for _, seg := range segments {
		if seg.State != SegmentStateRunning {
			continue
		}
		if _, ok := s.inflight[seg.ID]; ok {
			continue
		}
		if at, ok := s.retryAt[seg.ID]; ok && timeNow().Before(at) {
			continue
		}
		s.logger.Info(ctx, "Adopting running segment",
			"segment", seg.ID,
			"host", seg.CoordinatorHost,
			"command", seg.CommandID,
		)
		s.dispatch(ctx, *seg, true)
	}
	return nil
}

// refill dispatches eligible segments until the parallelism limit is
// reached or no segment is eligible.
func (s *supervisor) refill(ctx context.Context) error {
	for len(s.inflight) < s.limit() {
		seg, err := s.nextSegment(ctx)
		if err != nil {
			return err
		}
		if seg == nil {
			return nil
		}
		s.dispatch(ctx, *seg, false)
	}
	return nil
}

// nextSegment picks the next eligible NOT_STARTED segment in ring order
// starting after the cursor and wrapping around. In PARALLEL mode segments
// overlapping an in-flight range are skipped so no two nodes repair the
// same data at once.
func (s *supervisor) nextSegment(ctx context.Context) (*Segment, error) {
	if s.run.Parallelism == node.ParallelismSequential && len(s.inflight) == 0 {
		seg, err := s.manager.storage.NextFreeSegment(ctx, s.run.ID, s.cursor)
		if err == service.ErrNotFound {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if s.eligible(*seg) {
			return seg, nil
		}
		// the free segment is backing off, fall through to the scan
	}

	segments, err := s.manager.storage.ListSegments(ctx, s.run.ID)
	if err != nil {
		return nil, err
	}

	var wrap, next *Segment
	for _, seg := range segments {
		if !s.eligible(*seg) {
			continue
		}
		if wrap == nil {
			wrap = seg
		}
		if s.cursor == nil || seg.StartToken > *s.cursor {
			next = seg
			break
		}
	}
	if next == nil {
		next = wrap
	}
	return next, nil
}

func (s *supervisor) eligible(seg Segment) bool {
	if seg.State != SegmentStateNotStarted {
		return false
	}
	if _, ok := s.inflight[seg.ID]; ok {
		return false
	}
	if at, ok := s.retryAt[seg.ID]; ok && timeNow().Before(at) {
		return false
	}
	if s.run.Parallelism == node.ParallelismParallel {
		r := seg.Range()
		for _, other := range s.inflight {
			if r.Overlaps(other) {
				return false
			}
		}
	}
	return true
}

// dispatch submits a runner for the segment to the shared pool.
func (s *supervisor) dispatch(ctx context.Context, seg Segment, attach bool) {
	r := &SegmentRunner{
		storage:     s.manager.storage,
		provider:    s.manager.provider,
		topology:    s.topology,
		registry:    s.manager.registry,
		segment:     seg,
		keyspace:    s.unit.Keyspace,
		tables:      s.unit.Tables,
		parallelism: s.run.Parallelism,
		clusterName: s.run.ClusterName,
		timeout:     s.manager.config.SegmentTimeout,
		avoidHost:   s.avoid[seg.ID],
		attach:      attach,
		events:      make(chan node.Event, notifyBuffer),
		logger:      s.manager.logger.Named("runner"),
	}

	s.inflight[seg.ID] = seg.Range()
	if !attach {
		t := seg.StartToken
		s.cursor = &t
	}

	results := s.results
	err := s.manager.pool.Submit(ctx, func(ctx context.Context) {
		select {
		case results <- r.Run(ctx):
		case <-ctx.Done():
		}
	})
	if err != nil {
		delete(s.inflight, seg.ID)
	}
}

func (s *supervisor) handleResult(ctx context.Context, r attemptResult) {
	delete(s.inflight, r.segmentID)

	switch r.outcome {
	case attemptDone:
		delete(s.retryAt, r.segmentID)
		delete(s.avoid, r.segmentID)
		repairSegmentsSuccess.WithLabelValues(s.run.ClusterName, s.run.ID.String()).Inc()
		s.pace(ctx, r.elapsed)
	case attemptRequeued:
		s.retryAt[r.segmentID] = timeNow().Add(s.manager.config.RetryDelay)
		if r.avoidHost != "" {
			s.avoid[r.segmentID] = r.avoidHost
		}
	case attemptDeferred:
		s.retryAt[r.segmentID] = timeNow().Add(s.manager.config.PollInterval)
	}
}

// pace throttles the run between segments. Intensity i means a fraction i
// of wall time is spent repairing, after a segment of duration d the run
// idles d*(1-i)/i.
func (s *supervisor) pace(ctx context.Context, elapsed time.Duration) {
	i := s.run.Intensity
	if i <= 0 || i >= 1 || elapsed <= 0 {
		return
	}
	delay := time.Duration(float64(elapsed) * (1 - i) / i)
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}

// finishIfComplete marks the run DONE when every segment is repaired. It
// reports whether supervision should end.
func (s *supervisor) finishIfComplete(ctx context.Context) (bool, error) {
	segments, err := s.manager.storage.ListSegments(ctx, s.run.ID)
	if err != nil {
		return false, err
	}
	for _, seg := range segments {
		if seg.State != SegmentStateDone {
			return false, nil
		}
	}

	done := s.run.WithDone(timeNow())
	if err := s.manager.storage.PutRun(ctx, &done); err != nil {
		return false, err
	}
	s.run = done
	s.logger.Info(ctx, "Repair run done",
		"run", s.run.ID,
		"cluster", s.run.ClusterName,
		"segments", s.run.SegmentCount,
		"duration", s.run.EndTime.Sub(s.run.StartTime),
	)
	return true, nil
}

// sleep waits the poll interval, it reports false when ctx ends first.
func (s *supervisor) sleep(ctx context.Context) bool {
	select {
	case <-time.After(s.manager.config.PollInterval):
		return true
	case <-ctx.Done():
		return false
	}
}
