// Package session persists conversation history per stable session key so a
// suspended orchestration run can be resumed by a later, independent
// invocation with its full context replayed.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/linnemanlabs/arbiter/internal/llm"
)

// ClaimKey is the session key for a claim's triage conversation.
func ClaimKey(claimID int64) string {
	return fmt.Sprintf("claim-%d", claimID)
}

// UserKey is the session key for a user's general chat.
func UserKey(userID int64) string {
	return fmt.Sprintf("user-chat-%d", userID)
}

// Turn is one appended conversation entry.
type Turn struct {
	Role      string             `json:"role"`
	Content   []llm.ContentBlock `json:"content"`
	Timestamp time.Time          `json:"timestamp"`
}

// Store is the persistence interface for conversation history. Append and
// full replay, per key, read-your-writes.
type Store interface {
	Append(ctx context.Context, key string, turn *Turn) error
	History(ctx context.Context, key string) ([]*Turn, error)
	Clear(ctx context.Context, key string) error
}

// Messages converts replayed turns into provider messages.
func Messages(turns []*Turn) []llm.Message {
	out := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, llm.Message{Role: t.Role, Content: t.Content})
	}
	return out
}
