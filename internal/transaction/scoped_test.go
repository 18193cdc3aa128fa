package transaction

import (
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoCommitsOnSuccess(t *testing.T) {
	store, fs := newTestStore(t)
	writeFile(t, fs, "/data/a.txt", "v1")

	err := store.Do(func(s *Store) error {
		if err := s.Write("/data/a.txt", []byte("v2"), false); err != nil {
			return err
		}
		return s.Write("/data/b.txt", []byte("new"), false)
	})
	require.NoError(t, err)

	assert.Equal(t, "v2", readFile(t, fs, "/data/a.txt"))
	assert.Equal(t, "new", readFile(t, fs, "/data/b.txt"))
	assert.Empty(t, artifacts(t, fs))
	assert.False(t, store.IsActive())
}

func TestDoRollsBackAndReturnsOriginalError(t *testing.T) {
	store, fs := newTestStore(t)
	writeFile(t, fs, "/data/a.txt", "v1")
	errNetwork := errors.New("network error while scraping")

	err := store.Do(func(s *Store) error {
		require.NoError(t, s.Write("/data/a.txt", []byte("v2"), false))
		require.NoError(t, s.Write("/data/b.txt", []byte("new"), false))
		return errNetwork
	})

	assert.True(t, err == errNetwork, "error must be returned unwrapped, got %v", err)
	assert.Equal(t, "v1", readFile(t, fs, "/data/a.txt"))
	assert.False(t, exists(t, fs, "/data/b.txt"))
	assert.Empty(t, artifacts(t, fs))
	assert.False(t, store.IsActive())
}

func TestDoRollsBackOnPanic(t *testing.T) {
	store, fs := newTestStore(t)
	writeFile(t, fs, "/data/a.txt", "v1")

	assert.PanicsWithValue(t, "boom", func() {
		_ = store.Do(func(s *Store) error {
			require.NoError(t, s.Write("/data/a.txt", []byte("v2"), false))
			panic("boom")
		})
	})

	assert.Equal(t, "v1", readFile(t, fs, "/data/a.txt"))
	assert.False(t, store.IsActive())
}

func TestDoRollsBackOnGoexit(t *testing.T) {
	store, fs := newTestStore(t)
	writeFile(t, fs, "/data/a.txt", "v1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = store.Do(func(s *Store) error {
			if err := s.Write("/data/a.txt", []byte("v2"), false); err != nil {
				return err
			}
			runtime.Goexit()
			return nil
		})
	}()
	<-done

	assert.False(t, store.IsActive())
	assert.Equal(t, "v1", readFile(t, fs, "/data/a.txt"))
	assert.Empty(t, artifacts(t, fs))

	_, err := store.Begin()
	assert.NoError(t, err)
}

func TestDoBeginFailure(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Begin()
	require.NoError(t, err)

	ran := false
	err = store.Do(func(*Store) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, ErrAlreadyActive)
	assert.False(t, ran)
	assert.True(t, store.IsActive())
}

func TestDoBodyResolvesTransaction(t *testing.T) {
	store, fs := newTestStore(t)

	err := store.Do(func(s *Store) error {
		require.NoError(t, s.Write("/data/a.txt", []byte("x"), false))
		return s.Commit()
	})
	assert.ErrorIs(t, err, ErrNotActive)
	assert.Equal(t, "x", readFile(t, fs, "/data/a.txt"))
	assert.False(t, store.IsActive())
}

func TestDoSequential(t *testing.T) {
	store, fs := newTestStore(t)

	for i, content := range []string{"one", "two", "three"} {
		err := store.Do(func(s *Store) error {
			return s.AppendString("/data/log.txt", content+"\n", "")
		})
		require.NoError(t, err, "iteration %d", i)
	}
	failing := errors.New("stop")
	err := store.Do(func(s *Store) error {
		require.NoError(t, s.AppendString("/data/log.txt", "four\n", ""))
		return failing
	})
	require.ErrorIs(t, err, failing)

	assert.Equal(t, "one\ntwo\nthree\n", readFile(t, fs, "/data/log.txt"))
}
