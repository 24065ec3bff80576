package distributed

import (
	"context"

	"jamroom/internal/core/domain"
	"jamroom/internal/core/ports"

	"go.uber.org/zap"
)

// PublishingSummaryRepository decorates a SummaryRepository so that every
// directory write is announced on the event bus. Sibling instances listen
// and drop their cached directory pages.
type PublishingSummaryRepository struct {
	inner  ports.SummaryRepository
	bus    *EventBus
	logger *zap.SugaredLogger
}

var _ ports.SummaryRepository = (*PublishingSummaryRepository)(nil)

func NewPublishingSummaryRepository(inner ports.SummaryRepository, bus *EventBus, logger *zap.SugaredLogger) *PublishingSummaryRepository {
	return &PublishingSummaryRepository{inner: inner, bus: bus, logger: logger}
}

func (r *PublishingSummaryRepository) Upsert(ctx context.Context, summary domain.RoomSummary) error {
	if err := r.inner.Upsert(ctx, summary); err != nil {
		return err
	}
	if err := r.bus.PublishSummaryChanged(ctx, summary.RoomID, summary.UsersLength); err != nil {
		// The write landed; a missed invalidation only delays convergence.
		r.logger.Warnw("failed to announce summary change", "room_id", summary.RoomID, "error", err)
	}
	return nil
}

func (r *PublishingSummaryRepository) Delete(ctx context.Context, roomID domain.RoomID) error {
	if err := r.inner.Delete(ctx, roomID); err != nil {
		return err
	}
	if err := r.bus.PublishRoomClosed(ctx, roomID); err != nil {
		r.logger.Warnw("failed to announce room closure", "room_id", roomID, "error", err)
	}
	return nil
}

func (r *PublishingSummaryRepository) GetByID(ctx context.Context, roomID domain.RoomID) (*domain.RoomSummary, error) {
	return r.inner.GetByID(ctx, roomID)
}

func (r *PublishingSummaryRepository) List(ctx context.Context, page, perPage int) ([]domain.RoomSummary, int, error) {
	return r.inner.List(ctx, page, perPage)
}

func (r *PublishingSummaryRepository) Search(ctx context.Context, query string, page, perPage int) ([]domain.RoomSummary, int, error) {
	return r.inner.Search(ctx, query, page, perPage)
}
