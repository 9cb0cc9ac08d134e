package ticktock

import "sync"

// recyclable is implemented by pool-allocated request objects.
type recyclable interface {
	recycle()
}

var (
	queryTaskPool = sync.Pool{
		New: func() any { return new(QueryTask) },
	}
	queryResultsPool = sync.Pool{
		New: func() any { return new(QueryResults) },
	}
)

// getQueryTask allocates a task from the recycler pool.
func getQueryTask() *QueryTask {
	return queryTaskPool.Get().(*QueryTask)
}

// putQueryTask returns a task to the pool after resetting it.
func putQueryTask(qt *QueryTask) {
	qt.recycle()
	queryTaskPool.Put(qt)
}

// getQueryResults allocates a result from the recycler pool.
func getQueryResults() *QueryResults {
	return queryResultsPool.Get().(*QueryResults)
}

// putQueryResults returns a result to the pool after resetting it.
func putQueryResults(r *QueryResults) {
	r.recycle()
	queryResultsPool.Put(r)
}

var _ = []recyclable{(*QueryTask)(nil), (*QueryResults)(nil)}
