package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"jamroom/internal/core/domain"
	"jamroom/internal/core/ports"
)

// MemorySummaryRepository keeps the room directory projection in process
// memory. It is the default when Redis is disabled or unreachable.
type MemorySummaryRepository struct {
	summaries map[domain.RoomID]domain.RoomSummary
	mu        sync.RWMutex
}

func NewMemorySummaryRepository() ports.SummaryRepository {
	return &MemorySummaryRepository{
		summaries: make(map[domain.RoomID]domain.RoomSummary),
	}
}

func (r *MemorySummaryRepository) Upsert(ctx context.Context, summary domain.RoomSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.summaries[summary.RoomID] = summary
	return nil
}

func (r *MemorySummaryRepository) Delete(ctx context.Context, roomID domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.summaries, roomID)
	return nil
}

func (r *MemorySummaryRepository) GetByID(ctx context.Context, roomID domain.RoomID) (*domain.RoomSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summary, exists := r.summaries[roomID]
	if !exists {
		return nil, domain.ErrRoomNotFound
	}
	return &summary, nil
}

func (r *MemorySummaryRepository) List(ctx context.Context, page, perPage int) ([]domain.RoomSummary, int, error) {
	return r.Search(ctx, "", page, perPage)
}

func (r *MemorySummaryRepository) Search(ctx context.Context, query string, page, perPage int) ([]domain.RoomSummary, int, error) {
	r.mu.RLock()
	all := make([]domain.RoomSummary, 0, len(r.summaries))
	for _, summary := range r.summaries {
		if query == "" || strings.Contains(strings.ToLower(summary.Name), strings.ToLower(query)) {
			all = append(all, summary)
		}
	}
	r.mu.RUnlock()

	sortSummaries(all)
	return paginate(all, page, perPage)
}

// sortSummaries orders by name, room ID as the tie-break so pages are stable.
func sortSummaries(summaries []domain.RoomSummary) {
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Name != summaries[j].Name {
			return summaries[i].Name < summaries[j].Name
		}
		return summaries[i].RoomID < summaries[j].RoomID
	})
}

func paginate(all []domain.RoomSummary, page, perPage int) ([]domain.RoomSummary, int, error) {
	total := len(all)
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}

	start := (page - 1) * perPage
	if start >= total {
		return []domain.RoomSummary{}, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}
