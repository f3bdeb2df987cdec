package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DukeRupert/cropbatch/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateGet(t *testing.T) {
	store := NewStore()

	created := store.Create()
	assert.Empty(t, created.Images)
	assert.Equal(t, domain.DefaultExportConfig(), created.Export)

	got, err := store.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, 1, store.Len())
}

func TestStore_GetUnknown(t *testing.T) {
	_, err := NewStore().Get(uuid.New())
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestStore_GetReturnsCopy(t *testing.T) {
	store := NewStore()
	sess := store.Create()

	_, err := store.Update(sess.ID, func(s *domain.Session) error {
		s.Images = append(s.Images, domain.ImageRecord{ID: uuid.New(), Crop: &domain.CropRect{Width: 10, Height: 10}})
		return nil
	})
	require.NoError(t, err)

	got, err := store.Get(sess.ID)
	require.NoError(t, err)
	got.Images[0].Crop.Width = 999
	got.Images = nil

	again, err := store.Get(sess.ID)
	require.NoError(t, err)
	require.Len(t, again.Images, 1)
	assert.Equal(t, 10.0, again.Images[0].Crop.Width)
}

func TestStore_UpdateFailureLeavesSessionUntouched(t *testing.T) {
	store := NewStore()
	sess := store.Create()
	boom := errors.New("boom")

	_, err := store.Update(sess.ID, func(s *domain.Session) error {
		s.Export.Quality = 5
		s.Images = append(s.Images, domain.ImageRecord{ID: uuid.New()})
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultQuality, got.Export.Quality)
	assert.Empty(t, got.Images)
}

func TestStore_UpdateStampsTime(t *testing.T) {
	store := NewStore()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store.now = func() time.Time { return base }
	sess := store.Create()

	store.now = func() time.Time { return base.Add(time.Minute) }
	updated, err := store.Update(sess.ID, func(s *domain.Session) error { return nil })
	require.NoError(t, err)

	assert.Equal(t, base, updated.CreatedAt)
	assert.Equal(t, base.Add(time.Minute), updated.UpdatedAt)
}

func TestStore_UpdateUnknown(t *testing.T) {
	called := false
	_, err := NewStore().Update(uuid.New(), func(s *domain.Session) error {
		called = true
		return nil
	})
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
	assert.False(t, called)
}

func TestStore_Delete(t *testing.T) {
	store := NewStore()
	sess := store.Create()

	require.NoError(t, store.Delete(sess.ID))
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(store.Delete(sess.ID)))
}

func TestStore_ListOldestFirst(t *testing.T) {
	store := NewStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		store.now = func() time.Time { return at }
		ids = append(ids, store.Create().ID)
	}

	list := store.List()
	require.Len(t, list, 3)
	for i, sess := range list {
		assert.Equal(t, ids[i], sess.ID)
	}
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	store := NewStore()
	sess := store.Create()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(sess.ID, func(s *domain.Session) error {
				s.Images = append(s.Images, domain.ImageRecord{ID: uuid.New()})
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Get(sess.ID)
	require.NoError(t, err)
	assert.Len(t, got.Images, 50)
}
