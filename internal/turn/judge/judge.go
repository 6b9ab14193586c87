package judge

import (
	"context"
	"strings"
	"time"

	"github.com/cadencevoice/cadence/internal/types"
	"github.com/cadencevoice/cadence/pkg/Logger"
	"github.com/cadencevoice/cadence/pkg/llm"
)

type Verdict int

const (
	Undetermined Verdict = iota
	Complete
	Incomplete
)

func (v Verdict) String() string {
	switch v {
	case Complete:
		return "complete"
	case Incomplete:
		return "incomplete"
	default:
		return "undetermined"
	}
}

const (
	completeToken   = "COMPLETE"
	incompleteToken = "INCOMPLETE"

	// recentUserTurns bounds the judgment context window.
	recentUserTurns = 2

	systemInstruction = "You judge whether a speaker has finished a conversational turn. " +
		"Given the recent dialogue and the candidate utterance, decide if the " +
		"candidate is a semantically complete contribution or if the speaker is " +
		"mid-thought. Reply with exactly one token: " + completeToken + " or " + incompleteToken + "."
)

// ContextSnapshot is the exact input of one judge invocation, retained in
// the judgment ledger for audit.
type ContextSnapshot struct {
	Messages  []llm.Message `json:"messages"`
	Candidate string        `json:"candidate"`
}

// Completer is the slice of the LLM mux the judge needs.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error)
}

// Judge obtains a binary completeness verdict from a language model. Every
// failure mode (timeout, transport, unparseable reply) degrades to
// Undetermined so a bad LLM call can never terminate a session.
type Judge struct {
	completer Completer
	timeout   time.Duration
	logger    *Logger.Logger
}

func New(completer Completer, timeout time.Duration, logger *Logger.Logger) *Judge {
	return &Judge{completer: completer, timeout: timeout, logger: logger}
}

// BuildContext assembles the bounded judgment context: the system
// instruction, the most recent user turns with their paired agent responses
// (oldest first), and the candidate utterance last.
func (j *Judge) BuildContext(dialogue []types.TurnEntry, candidate string) ContextSnapshot {
	window := recentWindow(dialogue, recentUserTurns)

	msgs := make([]llm.Message, 0, len(window)+2)
	msgs = append(msgs, llm.Message{Role: llm.SYSTEM, Content: systemInstruction, CreatedAt: time.Now()})
	for _, entry := range window {
		role := llm.USER
		if entry.Kind == types.TurnAgent {
			role = llm.ASSISTANT
		}
		msgs = append(msgs, llm.Message{Role: role, Content: entry.FlatText(), CreatedAt: entry.At})
	}
	msgs = append(msgs, llm.Message{Role: llm.USER, Content: candidate, CreatedAt: time.Now()})

	return ContextSnapshot{Messages: msgs, Candidate: candidate}
}

// Judge dispatches the snapshot and parses the single-token reply.
func (j *Judge) Judge(ctx context.Context, snapshot ContextSnapshot) Verdict {
	reqCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	res, err := j.completer.Complete(reqCtx, llm.CompletionRequest{
		Msgs:      snapshot.Messages,
		MaxTokens: 4,
	})
	if err != nil {
		j.logger.Warnf("judge call failed, treating as undetermined: %v", err)
		return Undetermined
	}

	return parseVerdict(res.Content)
}

// parseVerdict maps the raw reply to a verdict. Exact token match only;
// anything else is Undetermined.
func parseVerdict(raw string) Verdict {
	switch strings.TrimSpace(raw) {
	case completeToken:
		return Complete
	case incompleteToken:
		return Incomplete
	default:
		return Undetermined
	}
}

// recentWindow walks the dialogue backwards until it has collected n
// user-side turns, keeping the agent responses paired with them, and returns
// the slice oldest-first.
func recentWindow(dialogue []types.TurnEntry, n int) []types.TurnEntry {
	userSeen := 0
	start := len(dialogue)
	for i := len(dialogue) - 1; i >= 0; i-- {
		if dialogue[i].IsUserSide() {
			userSeen++
		}
		start = i
		if userSeen == n {
			break
		}
	}
	return dialogue[start:]
}
