package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jamroom/internal/core/domain"
)

func TestUpsertAndGetByID(t *testing.T) {
	repo := NewMemorySummaryRepository()
	ctx := context.Background()

	summary := domain.RoomSummary{RoomID: "room_1", Name: "Jazz Night", CreatorName: "Ana", IsOpen: true, UsersLength: 3}
	require.NoError(t, repo.Upsert(ctx, summary))

	got, err := repo.GetByID(ctx, "room_1")
	require.NoError(t, err)
	assert.Equal(t, "Jazz Night", got.Name)
	assert.Equal(t, 3, got.UsersLength)

	summary.UsersLength = 4
	require.NoError(t, repo.Upsert(ctx, summary))
	got, err = repo.GetByID(ctx, "room_1")
	require.NoError(t, err)
	assert.Equal(t, 4, got.UsersLength)

	_, err = repo.GetByID(ctx, "room_missing")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestDeleteRemovesSummary(t *testing.T) {
	repo := NewMemorySummaryRepository()
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, domain.RoomSummary{RoomID: "room_1", Name: "A"}))
	require.NoError(t, repo.Delete(ctx, "room_1"))

	_, err := repo.GetByID(ctx, "room_1")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	// Deleting an absent room is not an error.
	assert.NoError(t, repo.Delete(ctx, "room_1"))
}

func TestListPaginates(t *testing.T) {
	repo := NewMemorySummaryRepository()
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		require.NoError(t, repo.Upsert(ctx, domain.RoomSummary{
			RoomID: domain.RoomID(fmt.Sprintf("room_%02d", i)),
			Name:   fmt.Sprintf("Room %02d", i),
		}))
	}

	first, total, err := repo.List(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 25, total)
	require.Len(t, first, 10)
	assert.Equal(t, "Room 00", first[0].Name)

	third, total, err := repo.List(ctx, 3, 10)
	require.NoError(t, err)
	assert.Equal(t, 25, total)
	assert.Len(t, third, 5)

	beyond, total, err := repo.List(ctx, 4, 10)
	require.NoError(t, err)
	assert.Equal(t, 25, total)
	assert.Empty(t, beyond)

	// Out-of-range page and size fall back to sane values.
	fallback, _, err := repo.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, fallback, 10)
}

func TestSearchFiltersByName(t *testing.T) {
	repo := NewMemorySummaryRepository()
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, domain.RoomSummary{RoomID: "r1", Name: "Jazz Night"}))
	require.NoError(t, repo.Upsert(ctx, domain.RoomSummary{RoomID: "r2", Name: "Rock Sessions"}))
	require.NoError(t, repo.Upsert(ctx, domain.RoomSummary{RoomID: "r3", Name: "Late Night Jazz"}))

	results, total, err := repo.Search(ctx, "jazz", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, results, 2)
	// Results come back sorted by name.
	assert.Equal(t, "Jazz Night", results[0].Name)
	assert.Equal(t, "Late Night Jazz", results[1].Name)

	_, total, err = repo.Search(ctx, "techno", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}
