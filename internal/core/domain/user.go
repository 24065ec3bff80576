package domain

import "time"

type User struct {
	ID        UserID    `json:"id"`
	Nickname  string    `json:"nickname"`
	CreatedAt time.Time `json:"createdAt"`
}
