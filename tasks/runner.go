package tasks

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
)

// Runner executes submitted tasks on a fixed pool of workers.
type Runner struct {
	queue   Queuer
	storage Storer
	log     *log.Logger

	resultLock sync.RWMutex
	results    map[TaskID]bool
}

func NewRunner(queue Queuer, storage Storer, logger *log.Logger) *Runner {
	return &Runner{
		queue:   queue,
		storage: storage,
		log:     logger,
		results: make(map[TaskID]bool),
	}
}

// Submit stores a task and queues it for execution, returning its id
// immediately.
func (r *Runner) Submit(task Task) TaskID {
	id := task.ID()
	r.storage.Put(task, id)
	r.queue.Enqueue(id)
	return id
}

// Result reports whether a task finished and whether it succeeded.
func (r *Runner) Result(id TaskID) (succeeded, finished bool) {
	r.resultLock.RLock()
	defer r.resultLock.RUnlock()

	succeeded, finished = r.results[id]
	return succeeded, finished
}

// Run spins up workers goroutines pulling from the queue until ctx is
// cancelled.
func (r *Runner) Run(ctx context.Context, workers int) {
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		go r.work(ctx)
	}
}

func (r *Runner) work(ctx context.Context) {
	for {
		id, ok := r.queue.Working(ctx)
		if !ok {
			return
		}

		task, ok := r.storage.Get(id)
		if !ok {
			r.log.Warn("queued task has no payload", "task", id)
			r.queue.Finish(id)
			continue
		}

		ok = task.Run()
		if !ok {
			r.log.Warn("task failed", "task", id)
		}

		r.resultLock.Lock()
		r.results[id] = ok
		r.resultLock.Unlock()

		r.queue.Finish(id)
	}
}
