package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"jamroom/internal/core/domain"
	"jamroom/internal/core/ports"
	"jamroom/pkg/retry"

	"github.com/redis/go-redis/v9"
)

const summariesKey = "jamroom:directory:summaries"

// storedSummary is the wire form of a directory entry. InvitedIDs is
// persisted here even though it never leaves the directory API.
type storedSummary struct {
	domain.RoomSummary
	InvitedIDs []domain.UserID `json:"invitedIds"`
}

// RedisSummaryRepository keeps the room directory in a single Redis hash
// keyed by room ID. Directory reads scan the hash; the engine is the only
// writer so no cross-instance locking is needed.
type RedisSummaryRepository struct {
	client      *redis.Client
	retryConfig retry.Config
}

func NewRedisSummaryRepository(client *redis.Client) ports.SummaryRepository {
	return &RedisSummaryRepository{
		client:      client,
		retryConfig: retry.DefaultConfig(),
	}
}

func (r *RedisSummaryRepository) Upsert(ctx context.Context, summary domain.RoomSummary) error {
	data, err := json.Marshal(storedSummary{RoomSummary: summary, InvitedIDs: summary.InvitedIDs})
	if err != nil {
		return fmt.Errorf("failed to marshal room summary: %w", err)
	}

	return retry.Retry(ctx, r.retryConfig, func() error {
		return r.client.HSet(ctx, summariesKey, string(summary.RoomID), data).Err()
	})
}

func (r *RedisSummaryRepository) Delete(ctx context.Context, roomID domain.RoomID) error {
	return retry.Retry(ctx, r.retryConfig, func() error {
		return r.client.HDel(ctx, summariesKey, string(roomID)).Err()
	})
}

func (r *RedisSummaryRepository) GetByID(ctx context.Context, roomID domain.RoomID) (*domain.RoomSummary, error) {
	var data string
	err := retry.Retry(ctx, r.retryConfig, func() error {
		var err error
		data, err = r.client.HGet(ctx, summariesKey, string(roomID)).Result()
		if err == redis.Nil {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get room summary: %w", err)
	}
	if data == "" {
		return nil, domain.ErrRoomNotFound
	}

	summary, err := decodeSummary(data)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (r *RedisSummaryRepository) List(ctx context.Context, page, perPage int) ([]domain.RoomSummary, int, error) {
	return r.Search(ctx, "", page, perPage)
}

func (r *RedisSummaryRepository) Search(ctx context.Context, query string, page, perPage int) ([]domain.RoomSummary, int, error) {
	var raw map[string]string
	err := retry.Retry(ctx, r.retryConfig, func() error {
		var err error
		raw, err = r.client.HGetAll(ctx, summariesKey).Result()
		return err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list room summaries: %w", err)
	}

	all := make([]domain.RoomSummary, 0, len(raw))
	for _, data := range raw {
		summary, err := decodeSummary(data)
		if err != nil {
			// Skip undecodable entries rather than failing the whole page.
			continue
		}
		if query == "" || strings.Contains(strings.ToLower(summary.Name), strings.ToLower(query)) {
			all = append(all, summary)
		}
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Name != all[j].Name {
			return all[i].Name < all[j].Name
		}
		return all[i].RoomID < all[j].RoomID
	})

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

func decodeSummary(data string) (domain.RoomSummary, error) {
	var stored storedSummary
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		return domain.RoomSummary{}, fmt.Errorf("failed to unmarshal room summary: %w", err)
	}
	summary := stored.RoomSummary
	summary.InvitedIDs = stored.InvitedIDs
	return summary, nil
}
