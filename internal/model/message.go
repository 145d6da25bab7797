package model

import "time"

const MaxMessageLength = 1000

type Message struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Nickname  string    `json:"nickname"`
	Content   string    `json:"content"`
	IsDeleted bool      `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
