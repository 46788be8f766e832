// Package repotest - общий набор проверок, которые проходит каждый бэкенд коллекций
package repotest

import (
	"context"
	"errors"
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

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

// Config - корректная конфигурация для нового уникального раздела
func Config() repository.SyncConfig {
	return repository.SyncConfig{
		Schema:         []string{task.SchemaName},
		User:           &user.Identity{ID: user.IdentityFor("a@x.com"), Email: "a@x.com"},
		PartitionValue: "P-" + uuid.NewString(),
	}
}

func open(t *testing.T, opener repository.Opener, cfg repository.SyncConfig) repository.Collection {
	t.Helper()
	coll, err := opener.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = coll.Close() })
	return coll
}

func create(t *testing.T, coll repository.Collection, tasks ...*task.Task) {
	t.Helper()
	err := coll.Write(context.Background(), func(tx repository.Txn) error {
		for _, tk := range tasks {
			if err := tx.Create(context.Background(), tk); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func objects(t *testing.T, coll repository.Collection) []task.Task {
	t.Helper()
	tasks, err := coll.Objects(context.Background())
	require.NoError(t, err)
	return tasks
}

// RunCollectionContract прогоняет контракт Opener/Collection/Txn
func RunCollectionContract(t *testing.T, opener repository.Opener) {
	ctx := context.Background()

	t.Run("open validates config", func(t *testing.T) {
		cfg := Config()
		cfg.User = nil
		_, err := opener.Open(ctx, cfg)
		assert.True(t, errors.Is(err, repository.ErrNoUser))

		cfg = Config()
		cfg.Schema = []string{"Project"}
		_, err = opener.Open(ctx, cfg)
		assert.True(t, errors.Is(err, repository.ErrSchema))
	})

	t.Run("create keeps creation order", func(t *testing.T) {
		cfg := Config()
		coll := open(t, opener, cfg)

		first := task.New(cfg.PartitionValue, task.WithName("Buy milk"))
		second := task.New(cfg.PartitionValue)
		third := task.New(cfg.PartitionValue, task.WithName("Call mom"), task.WithStatus(task.StatusInProgress))
		create(t, coll, first, second, third)

		assert.NotEqual(t, uuid.Nil, first.ID)
		assert.Equal(t, 1, first.Version)
		assert.False(t, first.CreatedAt.IsZero())

		tasks := objects(t, coll)
		require.Len(t, tasks, 3)
		assert.Equal(t, first.ID, tasks[0].ID)
		assert.Equal(t, "Buy milk", tasks[0].Name)
		assert.Equal(t, task.DefaultName, tasks[1].Name)
		assert.Equal(t, task.StatusOpen, tasks[1].Status)
		assert.Equal(t, third.ID, tasks[2].ID)
		assert.Equal(t, task.StatusInProgress, tasks[2].Status)
		for _, tk := range tasks {
			assert.Equal(t, cfg.PartitionValue, tk.Partition)
			assert.Nil(t, tk.UpdatedAt)
		}
	})

	t.Run("create rejects foreign partition and bad status", func(t *testing.T) {
		cfg := Config()
		coll := open(t, opener, cfg)

		err := coll.Write(ctx, func(tx repository.Txn) error {
			return tx.Create(ctx, task.New("other"))
		})
		assert.True(t, errors.Is(err, repository.ErrInvalidTask))

		bad := task.New(cfg.PartitionValue)
		bad.Status = task.Status("Done")
		err = coll.Write(ctx, func(tx repository.Txn) error {
			return tx.Create(ctx, bad)
		})
		assert.True(t, errors.Is(err, repository.ErrInvalidTask))
		assert.Empty(t, objects(t, coll))
	})

	t.Run("duplicate id", func(t *testing.T) {
		cfg := Config()
		coll := open(t, opener, cfg)

		tk := task.New(cfg.PartitionValue)
		create(t, coll, tk)

		dup := task.New(cfg.PartitionValue)
		dup.ID = tk.ID
		err := coll.Write(ctx, func(tx repository.Txn) error {
			return tx.Create(ctx, dup)
		})
		assert.True(t, errors.Is(err, repository.ErrAlreadyExists))
	})

	t.Run("update status", func(t *testing.T) {
		cfg := Config()
		coll := open(t, opener, cfg)

		tk := task.New(cfg.PartitionValue, task.WithName("Buy milk"))
		create(t, coll, tk)

		updated := *tk
		updated.Status = task.StatusComplete
		err := coll.Write(ctx, func(tx repository.Txn) error {
			return tx.Update(ctx, &updated)
		})
		require.NoError(t, err)
		assert.Equal(t, 2, updated.Version)
		assert.NotNil(t, updated.UpdatedAt)

		tasks := objects(t, coll)
		require.Len(t, tasks, 1)
		assert.Equal(t, task.StatusComplete, tasks[0].Status)
		assert.Equal(t, "Buy milk", tasks[0].Name)
		assert.Equal(t, 2, tasks[0].Version)
	})

	t.Run("set status keeps other fields", func(t *testing.T) {
		cfg := Config()
		coll := open(t, opener, cfg)

		tk := task.New(cfg.PartitionValue, task.WithName("Buy milk"))
		create(t, coll, tk)

		err := coll.Write(ctx, func(tx repository.Txn) error {
			return tx.SetStatus(ctx, tk.ID, task.StatusInProgress)
		})
		require.NoError(t, err)

		tasks := objects(t, coll)
		require.Len(t, tasks, 1)
		assert.Equal(t, "Buy milk", tasks[0].Name)
		assert.Equal(t, task.StatusInProgress, tasks[0].Status)
		assert.Equal(t, 2, tasks[0].Version)
		assert.NotNil(t, tasks[0].UpdatedAt)

		err = coll.Write(ctx, func(tx repository.Txn) error {
			return tx.SetStatus(ctx, tk.ID, task.Status("Done"))
		})
		assert.True(t, errors.Is(err, repository.ErrInvalidTask))

		err = coll.Write(ctx, func(tx repository.Txn) error {
			return tx.SetStatus(ctx, uuid.New(), task.StatusComplete)
		})
		assert.True(t, errors.Is(err, repository.ErrNotFound))

		other := open(t, opener, Config())
		err = other.Write(ctx, func(tx repository.Txn) error {
			return tx.SetStatus(ctx, tk.ID, task.StatusComplete)
		})
		assert.True(t, errors.Is(err, repository.ErrNotFound))
		assert.Equal(t, task.StatusInProgress, objects(t, coll)[0].Status)
	})

	t.Run("delete", func(t *testing.T) {
		cfg := Config()
		coll := open(t, opener, cfg)

		keep := task.New(cfg.PartitionValue, task.WithName("keep"))
		drop := task.New(cfg.PartitionValue, task.WithName("drop"))
		create(t, coll, keep, drop)

		err := coll.Write(ctx, func(tx repository.Txn) error {
			return tx.Delete(ctx, drop.ID)
		})
		require.NoError(t, err)

		tasks := objects(t, coll)
		require.Len(t, tasks, 1)
		assert.Equal(t, keep.ID, tasks[0].ID)

		err = coll.Write(ctx, func(tx repository.Txn) error {
			return tx.Delete(ctx, drop.ID)
		})
		assert.True(t, errors.Is(err, repository.ErrNotFound))
	})

	t.Run("partitions are isolated", func(t *testing.T) {
		cfgA, cfgB := Config(), Config()
		collA := open(t, opener, cfgA)
		collB := open(t, opener, cfgB)

		foreign := task.New(cfgB.PartitionValue)
		create(t, collB, foreign)

		assert.Empty(t, objects(t, collA))

		moved := *foreign
		moved.Status = task.StatusComplete
		err := collA.Write(ctx, func(tx repository.Txn) error {
			return tx.Update(ctx, &moved)
		})
		assert.True(t, errors.Is(err, repository.ErrNotFound))

		err = collA.Write(ctx, func(tx repository.Txn) error {
			return tx.Delete(ctx, foreign.ID)
		})
		assert.True(t, errors.Is(err, repository.ErrNotFound))
		assert.Len(t, objects(t, collB), 1)
	})

	t.Run("failed write rolls back", func(t *testing.T) {
		cfg := Config()
		coll := open(t, opener, cfg)

		boom := errors.New("boom")
		err := coll.Write(ctx, func(tx repository.Txn) error {
			if err := tx.Create(ctx, task.New(cfg.PartitionValue)); err != nil {
				return err
			}
			return boom
		})
		assert.True(t, errors.Is(err, boom))
		assert.Empty(t, objects(t, coll))
	})

	t.Run("listeners see other writers", func(t *testing.T) {
		cfg := Config()
		writer := open(t, opener, cfg)
		reader := open(t, opener, cfg)

		var calls atomic.Int32
		reader.AddListener(func() { calls.Add(1) })

		create(t, writer, task.New(cfg.PartitionValue, task.WithName("Buy milk")))

		require.Eventually(t, func() bool {
			return calls.Load() > 0
		}, waitFor, tick)
		assert.Len(t, objects(t, reader), 1)
	})

	t.Run("removed listeners are not called", func(t *testing.T) {
		cfg := Config()
		coll := open(t, opener, cfg)

		var removed, active atomic.Int32
		coll.AddListener(func() { removed.Add(1) })
		coll.RemoveAllListeners()
		coll.AddListener(func() { active.Add(1) })

		create(t, coll, task.New(cfg.PartitionValue))

		require.Eventually(t, func() bool {
			return active.Load() > 0
		}, waitFor, tick)
		assert.Equal(t, int32(0), removed.Load())
	})

	t.Run("closed collection", func(t *testing.T) {
		cfg := Config()
		coll, err := opener.Open(ctx, cfg)
		require.NoError(t, err)

		require.NoError(t, coll.Close())
		require.NoError(t, coll.Close())

		_, err = coll.Objects(ctx)
		assert.True(t, errors.Is(err, repository.ErrClosed))

		err = coll.Write(ctx, func(tx repository.Txn) error { return nil })
		assert.True(t, errors.Is(err, repository.ErrClosed))
	})
}
