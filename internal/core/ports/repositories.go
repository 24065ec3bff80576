package ports

import (
	"context"

	"jamroom/internal/core/domain"
)

// SummaryRepository stores the directory projection of rooms. The engine is
// the only writer; the directory HTTP surface is the only reader.
type SummaryRepository interface {
	Upsert(ctx context.Context, summary domain.RoomSummary) error
	Delete(ctx context.Context, roomID domain.RoomID) error
	GetByID(ctx context.Context, roomID domain.RoomID) (*domain.RoomSummary, error)
	List(ctx context.Context, page, perPage int) ([]domain.RoomSummary, int, error)
	Search(ctx context.Context, query string, page, perPage int) ([]domain.RoomSummary, int, error)
}
