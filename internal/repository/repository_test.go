package repository_test

import (
	"sync/atomic"
	"testing"
	"time"

	"taskSync/internal/models/task"
	"taskSync/internal/models/user"
	"taskSync/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     repository.SyncConfig
		wantErr error
	}{
		{
			name: "valid",
			cfg: repository.SyncConfig{
				Schema:         []string{"Project", task.SchemaName},
				User:           &user.Identity{ID: "u1"},
				PartitionValue: "My Project",
			},
		},
		{
			name: "no user",
			cfg: repository.SyncConfig{
				Schema:         []string{task.SchemaName},
				PartitionValue: "My Project",
			},
			wantErr: repository.ErrNoUser,
		},
		{
			name: "schema without Task",
			cfg: repository.SyncConfig{
				Schema: []string{"Project"},
				User:   &user.Identity{ID: "u1"},
			},
			wantErr: repository.ErrSchema,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPrepareCreate(t *testing.T) {
	tk := task.New("P")
	require.NoError(t, repository.PrepareCreate(tk, "P"))
	assert.NotEqual(t, uuid.Nil, tk.ID)

	id := uuid.New()
	tk = task.New("P")
	tk.ID = id
	require.NoError(t, repository.PrepareCreate(tk, "P"))
	assert.Equal(t, id, tk.ID)

	assert.ErrorIs(t, repository.PrepareCreate(nil, "P"), repository.ErrInvalidTask)
	assert.ErrorIs(t, repository.PrepareCreate(task.New("Q"), "P"), repository.ErrInvalidTask)

	bad := task.New("P")
	bad.Status = "Done"
	assert.ErrorIs(t, repository.PrepareCreate(bad, "P"), repository.ErrInvalidTask)
}

func TestPrepareUpdate(t *testing.T) {
	assert.ErrorIs(t, repository.PrepareUpdate(nil), repository.ErrInvalidTask)
	assert.ErrorIs(t, repository.PrepareUpdate(task.New("P")), repository.ErrInvalidTask)

	tk := task.New("P")
	tk.ID = uuid.New()
	assert.NoError(t, repository.PrepareUpdate(tk))
}

func TestDispatcher_CoalescesNotifications(t *testing.T) {
	d := repository.NewDispatcher()
	defer d.Close()

	release := make(chan struct{})
	var calls atomic.Int32
	d.Add(func() {
		calls.Add(1)
		<-release
	})

	d.Notify()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	// пока слушатель занят, серия уведомлений схлопывается в одно
	for i := 0; i < 10; i++ {
		d.Notify()
	}
	close(release)

	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDispatcher_RemoveAllAndClose(t *testing.T) {
	d := repository.NewDispatcher()

	var calls atomic.Int32
	d.Add(func() { calls.Add(1) })
	d.Add(nil)
	assert.Equal(t, 1, d.Len())

	d.RemoveAll()
	assert.Equal(t, 0, d.Len())
	d.Notify()

	d.Close()
	d.Close()
	d.Notify()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestDispatcher_CloseFromListener(t *testing.T) {
	d := repository.NewDispatcher()

	done := make(chan struct{})
	d.Add(func() {
		d.Close()
		close(done)
	})
	d.Notify()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("слушатель не вызван")
	}
}

func TestHub_PublishToPartition(t *testing.T) {
	h := repository.NewHub()

	a, b, other := repository.NewDispatcher(), repository.NewDispatcher(), repository.NewDispatcher()
	defer a.Close()
	defer b.Close()
	defer other.Close()

	var aCalls, bCalls, otherCalls atomic.Int32
	a.Add(func() { aCalls.Add(1) })
	b.Add(func() { bCalls.Add(1) })
	other.Add(func() { otherCalls.Add(1) })

	h.Join("P", a)
	h.Join("P", b)
	h.Join("Q", other)
	assert.Equal(t, 2, h.Members("P"))

	h.Publish("P")
	require.Eventually(t, func() bool {
		return aCalls.Load() == 1 && bCalls.Load() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), otherCalls.Load())

	h.Leave("P", a)
	h.Leave("P", a)
	assert.Equal(t, 1, h.Members("P"))

	h.Leave("P", b)
	assert.Equal(t, 0, h.Members("P"))
	h.Leave("missing", b)
}
