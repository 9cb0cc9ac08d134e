package ticktock

import "log/slog"

// Task lifecycle states.
const (
	taskFresh int32 = iota
	taskQueued
	taskRunning
	taskCancelled
	taskDone
)

// QueryTask retrieves and downsamples the points of one series group: all
// TimeSeries across shards sharing the same key. It is the unit of work
// dispatched to the query executor.
type QueryTask struct {
	timeRange   TimeRange
	downsampler *Downsampler
	tsv         []*TimeSeries
	dps         DataPointVector
	signal      *CountingSignal
	state       int32
}

// Tags returns the canonical tags of the task's series.
func (qt *QueryTask) Tags() TagList {
	if len(qt.tsv) == 0 {
		return nil
	}
	return qt.tsv[0].Tags()
}

// ClonedTags returns a private copy of the task's series tags.
func (qt *QueryTask) ClonedTags() TagList {
	if len(qt.tsv) == 0 {
		return nil
	}
	return qt.tsv[0].ClonedTags()
}

// Perform reads every owned series into the task-local vector, closing
// the downsampler afterwards. Failures are logged and swallowed so a
// partial failure never fails the whole query; the completion signal
// always fires.
func (qt *QueryTask) Perform() {
	qt.state = taskRunning
	defer func() {
		if r := recover(); r != nil {
			slog.Error("query task panicked", "err", r)
		}
		qt.state = taskDone
		if qt.signal != nil {
			qt.signal.CountDown()
		}
	}()

	for _, ts := range qt.tsv {
		ts.Query(qt.timeRange, qt.downsampler, &qt.dps)
	}
	if qt.downsampler != nil {
		qt.downsampler.FillIfNeeded(&qt.dps)
		qt.downsampler = nil
	}
}

// cancel marks an abandoned task done without reading anything. The
// signal still fires so the waiting caller cannot deadlock.
func (qt *QueryTask) cancel() {
	qt.state = taskCancelled
	qt.dps = nil
	qt.downsampler = nil
	qt.state = taskDone
	if qt.signal != nil {
		qt.signal.CountDown()
	}
}

// recycle resets the task for pool reuse.
func (qt *QueryTask) recycle() {
	qt.timeRange = TimeRange{}
	qt.downsampler = nil
	qt.tsv = nil
	qt.dps = nil
	qt.signal = nil
	qt.state = taskFresh
}

// buildQueryTasks plans the query: pins every shard intersecting the time
// range, collects matching series, groups them by series key and emits
// one task per group. Shards that contribute nothing are unpinned
// immediately; the rest stay pinned through the returned guard until
// query teardown.
func (q *Query) buildQueryTasks(db *DB) ([]*QueryTask, *tsdbGuard, error) {
	guard := &tsdbGuard{}
	targets := db.TsdbsIntersecting(q.TimeRange)
	slog.Debug("planning query", "metric", q.Metric, "shards", len(targets), "range", q.TimeRange.String())

	byKey := make(map[string]*QueryTask)
	var tasks []*QueryTask

	for _, shard := range targets {
		shard.EnsureReadable()

		matched := shard.QueryForTS(q.Metric, q.Tags)
		if len(matched) == 0 {
			shard.DecCount()
			continue
		}
		guard.hold(shard)

		for _, ts := range matched {
			qt, ok := byKey[ts.Key()]
			if !ok {
				qt = getQueryTask()
				qt.timeRange = q.TimeRange
				if q.Downsample != "" {
					ds, err := NewDownsampler(q.Downsample, q.TimeRange, q.msRes, q.MS)
					if err != nil {
						guard.Release()
						for _, t := range tasks {
							putQueryTask(t)
						}
						return nil, nil, err
					}
					qt.downsampler = ds
				}
				byKey[ts.Key()] = qt
				tasks = append(tasks, qt)
			}
			qt.tsv = append(qt.tsv, ts)
		}
	}

	slog.Debug("planned query tasks", "count", len(tasks))
	return tasks, guard, nil
}

// Execute runs the query sequentially on the calling goroutine.
func (q *Query) Execute(db *DB) ([]*QueryResults, error) {
	tasks, guard, err := q.buildQueryTasks(db)
	if err != nil {
		return nil, err
	}
	defer guard.Release()
	defer func() {
		for _, qt := range tasks {
			putQueryTask(qt)
		}
	}()

	for _, qt := range tasks {
		qt.Perform()
	}

	results := q.assembleResults(tasks)
	q.calculateRate(results)
	return results, nil
}

// ExecuteParallel runs the query across the executor's worker pool. The
// caller submits all tasks but the last and performs that one inline,
// then waits on the counting-signal barrier. Submissions rejected during
// shutdown are performed inline.
func (q *Query) ExecuteParallel(db *DB, ex *QueryExecutor) ([]*QueryResults, error) {
	tasks, guard, err := q.buildQueryTasks(db)
	if err != nil {
		return nil, err
	}
	defer guard.Release()
	defer func() {
		for _, qt := range tasks {
			putQueryTask(qt)
		}
	}()

	if len(tasks) > 1 && ex != nil {
		n := len(tasks) - 1
		signal := NewCountingSignal(n)

		ex.submitMu.Lock()
		for i := 0; i < n; i++ {
			qt := tasks[i]
			qt.signal = signal
			if err := ex.Submit(qt); err != nil {
				slog.Warn("executor rejected task, performing inline", "err", err)
				qt.Perform()
			}
		}
		ex.submitMu.Unlock()

		tasks[n].Perform()
		signal.Wait()
	} else {
		for _, qt := range tasks {
			qt.Perform()
		}
	}

	results := q.assembleResults(tasks)
	q.calculateRate(results)
	return results, nil
}

// calculateRate rate-converts every result in place when requested.
func (q *Query) calculateRate(results []*QueryResults) {
	if q.Rate == nil {
		return
	}
	// After downsampling the timestamps are in the query's output
	// resolution; raw vectors stay in the active resolution.
	ms := q.msRes
	if q.Downsample != "" {
		ms = q.MS
	}
	rc := NewRateCalculator(*q.Rate, ms)
	for _, r := range results {
		r.Dps = rc.Calculate(r.Dps)
	}
}
