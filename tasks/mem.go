package tasks

import (
	"context"
	"sync"
)

// MemoryQueue is an in-process task queue. Enqueue blocks when the
// buffer is full, which backpressures submitters instead of dropping
// work.
type MemoryQueue struct {
	waiting chan TaskID

	finishedLock sync.RWMutex
	finished     map[TaskID]bool

	progressLock sync.RWMutex
	progress     map[TaskID]bool
}

// NewMemoryQueue returns a queue buffering up to size waiting tasks.
func NewMemoryQueue(size int) *MemoryQueue {
	if size < 1 {
		size = 1
	}
	return &MemoryQueue{
		waiting:  make(chan TaskID, size),
		finished: make(map[TaskID]bool),
		progress: make(map[TaskID]bool),
	}
}

// Enqueue adds a task id to the waiting state.
func (m *MemoryQueue) Enqueue(taskID TaskID) bool {
	m.waiting <- taskID
	return true
}

// Working blocks for the next waiting task id and moves it to the
// working state. Returns false when ctx is cancelled first.
func (m *MemoryQueue) Working(ctx context.Context) (TaskID, bool) {
	select {
	case <-ctx.Done():
		return "", false
	case tID := <-m.waiting:
		m.progressLock.Lock()
		defer m.progressLock.Unlock()
		m.progress[tID] = true
		return tID, true
	}
}

// ListWorking returns all task ids currently in the working state.
func (m *MemoryQueue) ListWorking() []TaskID {
	m.progressLock.RLock()
	defer m.progressLock.RUnlock()

	tasks := make([]TaskID, 0)
	for tID := range m.progress {
		tasks = append(tasks, tID)
	}
	return tasks
}

// Finish moves a working task id to the finished state.
func (m *MemoryQueue) Finish(taskID TaskID) bool {
	m.progressLock.Lock()
	if _, ok := m.progress[taskID]; !ok {
		m.progressLock.Unlock()
		return false
	}
	delete(m.progress, taskID)
	m.progressLock.Unlock()

	m.finishedLock.Lock()
	defer m.finishedLock.Unlock()
	m.finished[taskID] = true
	return true
}

// ListFinished returns all task ids in the finished state.
func (m *MemoryQueue) ListFinished() []TaskID {
	m.finishedLock.RLock()
	defer m.finishedLock.RUnlock()

	tasks := make([]TaskID, 0)
	for tID := range m.finished {
		tasks = append(tasks, tID)
	}
	return tasks
}

// MemoryStorage is an in-memory task storer.
type MemoryStorage struct {
	taskStorage map[TaskID]Task
	sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		taskStorage: make(map[TaskID]Task),
	}
}

// Get returns the task stored under taskID.
func (s *MemoryStorage) Get(taskID TaskID) (Task, bool) {
	s.RLock()
	defer s.RUnlock()

	t, ok := s.taskStorage[taskID]
	return t, ok
}

// Put stores a task under taskID.
func (s *MemoryStorage) Put(task Task, taskID TaskID) bool {
	s.Lock()
	defer s.Unlock()

	s.taskStorage[taskID] = task
	return true
}
