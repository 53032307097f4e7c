package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tipbot-core/internal/worker/tasks"
)

type fakeEnqueuer struct {
	mu      sync.Mutex
	tasks   map[string]*asynq.Task
	opts    map[string][]asynq.Option
	deleted []string
}

func newFakeEnqueuer() *fakeEnqueuer {
	return &fakeEnqueuer{tasks: map[string]*asynq.Task{}, opts: map[string][]asynq.Option{}}
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var id string
	for _, o := range opts {
		if o.Type() == asynq.TaskIDOpt {
			id = o.Value().(string)
		}
	}
	if _, ok := f.tasks[id]; ok {
		return nil, asynq.ErrTaskIDConflict
	}
	f.tasks[id] = task
	f.opts[id] = opts
	return &asynq.TaskInfo{ID: id}, nil
}

func (f *fakeEnqueuer) DeleteTask(queue, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[id]; !ok {
		return asynq.ErrTaskNotFound
	}
	delete(f.tasks, id)
	f.deleted = append(f.deleted, queue+"/"+id)
	return nil
}

func TestAsynqSchedulerEnqueuesOncePerDroptip(t *testing.T) {
	fe := newFakeEnqueuer()
	s := NewAsynqScheduler(fe)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC)

	require.NoError(t, s.Schedule(ctx, 42, at))
	// 重启后重复注册不报错
	require.NoError(t, s.Schedule(ctx, 42, at))

	id := tasks.SettleTaskID(42)
	assert.Equal(t, "droptip-settle-42", id)
	require.Contains(t, fe.tasks, id)
	assert.Equal(t, tasks.TypeDroptipSettle, fe.tasks[id].Type())

	values := map[asynq.OptionType]interface{}{}
	for _, o := range fe.opts[id] {
		values[o.Type()] = o.Value()
	}
	assert.Equal(t, tasks.QueueCritical, values[asynq.QueueOpt])
	assert.Equal(t, at, values[asynq.ProcessAtOpt])

	s.Cancel(42)
	s.Cancel(42)
	assert.Equal(t, []string{"critical/droptip-settle-42"}, fe.deleted)
}

func TestAsynqSchedulerHandlerDispatches(t *testing.T) {
	s := NewAsynqScheduler(newFakeEnqueuer())
	var got []uint64
	require.NoError(t, s.Start(func(_ context.Context, id uint64) { got = append(got, id) }))

	task, err := tasks.NewDroptipSettleTask(7)
	require.NoError(t, err)
	require.NoError(t, s.Handler().ProcessTask(context.Background(), task))
	assert.Equal(t, []uint64{7}, got)

	bad := asynq.NewTask(tasks.TypeDroptipSettle, []byte("{"))
	err = s.Handler().ProcessTask(context.Background(), bad)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestAsynqSchedulerRescheduleFromRunningTask(t *testing.T) {
	fe := newFakeEnqueuer()
	s := NewAsynqScheduler(fe)
	ctx := context.Background()
	first := time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC)
	later := first.Add(30 * time.Second)

	require.NoError(t, s.Schedule(ctx, 7, first))
	// 任务提前到达，处理器把 droptip 重新注册到真正的到期时间
	require.NoError(t, s.Start(func(ctx context.Context, id uint64) {
		assert.NoError(t, s.Schedule(ctx, id, later))
	}))

	task, err := tasks.NewDroptipSettleTask(7)
	require.NoError(t, err)
	require.NoError(t, s.Handler().ProcessTask(ctx, task))

	retryID := tasks.RetrySettleTaskID(7, later)
	assert.NotEqual(t, tasks.SettleTaskID(7), retryID)
	require.Contains(t, fe.tasks, retryID)
	values := map[asynq.OptionType]interface{}{}
	for _, o := range fe.opts[retryID] {
		values[o.Type()] = o.Value()
	}
	assert.Equal(t, later, values[asynq.ProcessAtOpt])

	// 其他 droptip 的注册不受影响
	require.NoError(t, s.Start(func(ctx context.Context, _ uint64) {
		assert.NoError(t, s.Schedule(ctx, 8, later))
	}))
	require.NoError(t, s.Handler().ProcessTask(ctx, task))
	assert.Contains(t, fe.tasks, tasks.SettleTaskID(8))
}
