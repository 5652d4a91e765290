package tasks

import "context"

// TaskID identifies one submitted task.
type TaskID string

// Task is a unit of background work.
type Task interface {
	ID() TaskID
	Run() bool
}

// Queuer tracks task ids through the waiting, working and finished
// states.
type Queuer interface {
	Enqueue(taskID TaskID) bool
	Working(ctx context.Context) (TaskID, bool)
	ListWorking() []TaskID
	Finish(taskID TaskID) bool
	ListFinished() []TaskID
}

// Storer can load and store task payloads by id.
type Storer interface {
	Get(taskID TaskID) (Task, bool)
	Put(task Task, taskID TaskID) bool
}
