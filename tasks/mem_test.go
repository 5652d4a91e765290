package tasks

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTask struct {
	id   TaskID
	ok   bool
	done chan struct{}
}

func (f *fakeTask) ID() TaskID {
	return f.id
}

func (f *fakeTask) Run() bool {
	defer close(f.done)
	return f.ok
}

func TestMemoryQueueLifecycle(t *testing.T) {
	q := NewMemoryQueue(4)

	require.True(t, q.Enqueue("a"))
	id, ok := q.Working(context.Background())
	require.True(t, ok)
	assert.Equal(t, TaskID("a"), id)
	assert.Equal(t, []TaskID{"a"}, q.ListWorking())

	require.True(t, q.Finish("a"))
	assert.Empty(t, q.ListWorking())
	assert.Equal(t, []TaskID{"a"}, q.ListFinished())

	assert.False(t, q.Finish("a"), "finishing twice fails")
	assert.False(t, q.Finish("never-queued"))
}

func TestWorkingReturnsOnCancel(t *testing.T) {
	q := NewMemoryQueue(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Working(ctx)
		done <- ok
	}()

	cancel()

	select {
	case ok := <-done:
		assert.False(t, ok, "cancelled dequeue reports no task")
	case <-time.After(5 * time.Second):
		t.Fatal("Working did not return after cancellation")
	}
}

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()

	task := &fakeTask{id: "x", done: make(chan struct{})}
	require.True(t, s.Put(task, task.ID()))

	got, ok := s.Get("x")
	require.True(t, ok)
	assert.Equal(t, TaskID("x"), got.ID())

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestRunnerExecutesSubmittedTasks(t *testing.T) {
	runner := NewRunner(NewMemoryQueue(4), NewMemoryStorage(), log.New(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Run(ctx, 2)

	good := &fakeTask{id: "good", ok: true, done: make(chan struct{})}
	bad := &fakeTask{id: "bad", ok: false, done: make(chan struct{})}

	assert.Equal(t, TaskID("good"), runner.Submit(good))
	runner.Submit(bad)

	for _, task := range []*fakeTask{good, bad} {
		select {
		case <-task.done:
		case <-time.After(5 * time.Second):
			t.Fatalf("task %s never ran", task.ID())
		}
	}

	require.Eventually(t, func() bool {
		_, finished := runner.Result("good")
		_, alsoFinished := runner.Result("bad")
		return finished && alsoFinished
	}, 5*time.Second, 10*time.Millisecond)

	succeeded, _ := runner.Result("good")
	assert.True(t, succeeded)
	succeeded, _ = runner.Result("bad")
	assert.False(t, succeeded)
}
