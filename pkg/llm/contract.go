package llm

import (
	"context"
	"time"
)

type Role string

const (
	USER      Role = "user"
	ASSISTANT Role = "assistant"
	SYSTEM    Role = "system"
)

type Message struct {
	Role      Role
	Content   string
	CreatedAt time.Time
}

type SelectedModel struct {
	Name    string
	Version string
}

// CompletionRequest is a bounded, non-streaming completion. The turn core
// only ever needs short replies (a verdict token, a pre-reply draft), so the
// contract is deliberately request/response rather than delta streams.
type CompletionRequest struct {
	Msgs      []Message
	Model     SelectedModel
	MaxTokens int64
}

type CompletionResult struct {
	Content   string
	Model     string
	CreatedAt time.Time
}

type Adapter interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
}
