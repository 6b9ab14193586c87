package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/cadencevoice/cadence/internal/turn/judge"
	"github.com/cadencevoice/cadence/internal/types"
	"github.com/cadencevoice/cadence/pkg/Logger"
	"github.com/cadencevoice/cadence/pkg/llm"
)

const stagerInstruction = "You draft the agent's next spoken reply. Given the dialogue " +
	"and the user's latest utterance, write one short, natural reply that the agent " +
	"could say immediately. Reply with the utterance only, no preamble."

// preReplyMaxTokens keeps the draft short enough to speak while the full
// response pipeline catches up.
const preReplyMaxTokens = 96

// PreReplyStager speculatively drafts a reply for a freshly committed turn.
// A failed or slow draft is discarded, never surfaced as an error to the
// session.
type PreReplyStager struct {
	completer judge.Completer
	timeout   time.Duration
	logger    *Logger.Logger
}

func NewPreReplyStager(completer judge.Completer, timeout time.Duration, logger *Logger.Logger) *PreReplyStager {
	return &PreReplyStager{completer: completer, timeout: timeout, logger: logger}
}

// Stage drafts a reply to the committed utterance. The caller cancels ctx if
// the turn is retracted mid-draft.
func (s *PreReplyStager) Stage(ctx context.Context, dialogue []types.TurnEntry, utterance string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msgs := make([]llm.Message, 0, len(dialogue)+2)
	msgs = append(msgs, llm.Message{Role: llm.SYSTEM, Content: stagerInstruction, CreatedAt: time.Now()})
	for _, entry := range dialogue {
		role := llm.USER
		if entry.Kind == types.TurnAgent {
			role = llm.ASSISTANT
		}
		msgs = append(msgs, llm.Message{Role: role, Content: entry.FlatText(), CreatedAt: entry.At})
	}
	msgs = append(msgs, llm.Message{Role: llm.USER, Content: utterance, CreatedAt: time.Now()})

	res, err := s.completer.Complete(reqCtx, llm.CompletionRequest{
		Msgs:      msgs,
		MaxTokens: preReplyMaxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Content), nil
}
