package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/farmlink/farmlink/internal/rbac"
)

type captureEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (c *captureEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

type memoryStore struct {
	rows map[int64][]Message
}

func (s *memoryStore) Insert(_ context.Context, recipientID int64, msg Message) error {
	if s.rows == nil {
		s.rows = make(map[int64][]Message)
	}
	s.rows[recipientID] = append(s.rows[recipientID], msg)
	return nil
}

func TestQueueSinkEnqueuesDeliverTask(t *testing.T) {
	enq := &captureEnqueuer{}
	sink := NewQueueSink(enq)
	err := sink.Notify(context.Background(), Message{Roles: []rbac.Role{rbac.RoleCashier}, Type: TypeSettlementApproved, Title: "ready"})
	require.NoError(t, err)
	require.Len(t, enq.tasks, 1)
	require.Equal(t, TaskTypeDeliver, enq.tasks[0].Type())

	var msg Message
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &msg))
	require.Equal(t, PriorityNormal, msg.Priority)

	require.Error(t, sink.Notify(context.Background(), Message{Type: TypeSettlementPaid}))

	enq.err = errors.New("redis down")
	require.Error(t, sink.Notify(context.Background(), Message{RecipientID: 3, Type: TypeSettlementPaid}))
}

func TestDelivererFansOutToRoles(t *testing.T) {
	store := &memoryStore{}
	dir := rbac.StaticDirectory{
		1: {ID: 1, Role: rbac.RoleCashier},
		2: {ID: 2, Role: rbac.RoleFinance},
		3: {ID: 3, Role: rbac.RoleWarehouseOperator, WarehouseID: 4},
	}
	d := NewDeliverer(store, dir, nil)
	task, err := NewDeliverTask(Message{
		RecipientID: 1,
		Roles:       []rbac.Role{rbac.RoleCashier, rbac.RoleFinance},
		Type:        TypeSettlementApproved,
		Priority:    PriorityHigh,
		Title:       "Settlement approved",
	})
	require.NoError(t, err)
	require.NoError(t, d.Handle(context.Background(), task))

	var got []int64
	for id := range store.rows {
		got = append(got, id)
	}
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	require.Equal(t, []int64{1, 2}, got)
	require.Len(t, store.rows[1], 1, "recipient listed twice receives one row")
}

func TestDelivererSkipsRetryOnBadPayload(t *testing.T) {
	d := NewDeliverer(&memoryStore{}, rbac.StaticDirectory{}, nil)
	err := d.Handle(context.Background(), asynq.NewTask(TaskTypeDeliver, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
