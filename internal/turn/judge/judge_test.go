package judge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cadencevoice/cadence/internal/types"
	"github.com/cadencevoice/cadence/pkg/Logger"
	"github.com/cadencevoice/cadence/pkg/llm"
)

type fakeCompleter struct {
	reply string
	err   error
	delay time.Duration
	calls int
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResult{Content: f.reply, CreatedAt: time.Now()}, nil
}

func newJudge(c Completer, timeout time.Duration) *Judge {
	return New(c, timeout, Logger.New(true))
}

func TestJudgeParsesVerdictTokens(t *testing.T) {
	cases := []struct {
		reply string
		want  Verdict
	}{
		{"COMPLETE", Complete},
		{" COMPLETE\n", Complete},
		{"INCOMPLETE", Incomplete},
		{"complete", Undetermined},
		{"COMPLETE.", Undetermined},
		{"I think the user is done", Undetermined},
		{"", Undetermined},
	}

	for _, c := range cases {
		j := newJudge(&fakeCompleter{reply: c.reply}, time.Second)
		snap := j.BuildContext(nil, "hello there")
		if got := j.Judge(context.Background(), snap); got != c.want {
			t.Errorf("Judge with reply %q = %v, want %v", c.reply, got, c.want)
		}
	}
}

func TestJudgeTransportErrorIsUndetermined(t *testing.T) {
	j := newJudge(&fakeCompleter{err: errors.New("connection refused")}, time.Second)
	snap := j.BuildContext(nil, "hello")
	if got := j.Judge(context.Background(), snap); got != Undetermined {
		t.Errorf("Transport error should yield Undetermined, got %v", got)
	}
}

func TestJudgeTimeoutIsUndetermined(t *testing.T) {
	j := newJudge(&fakeCompleter{reply: "COMPLETE", delay: 200 * time.Millisecond}, 20*time.Millisecond)
	snap := j.BuildContext(nil, "hello")
	if got := j.Judge(context.Background(), snap); got != Undetermined {
		t.Errorf("Timeout should yield Undetermined, got %v", got)
	}
}

func TestBuildContextBoundsWindow(t *testing.T) {
	now := time.Now()
	dialogue := []types.TurnEntry{
		{Kind: types.TurnUser, Text: "first question", At: now.Add(-50 * time.Second)},
		{Kind: types.TurnAgent, Text: "first answer", At: now.Add(-49 * time.Second)},
		{Kind: types.TurnUser, Text: "second question", At: now.Add(-30 * time.Second)},
		{Kind: types.TurnAgent, Text: "second answer", At: now.Add(-29 * time.Second)},
		{Kind: types.TurnUser, Text: "third question", At: now.Add(-10 * time.Second)},
		{Kind: types.TurnAgent, Text: "third answer", At: now.Add(-9 * time.Second)},
	}

	j := newJudge(&fakeCompleter{reply: "COMPLETE"}, time.Second)
	snap := j.BuildContext(dialogue, "and also")

	// system + 2 user turns with paired agent responses + candidate
	if len(snap.Messages) != 6 {
		t.Fatalf("Expected 6 messages, got %d", len(snap.Messages))
	}
	if snap.Messages[0].Role != llm.SYSTEM {
		t.Error("First message must be the system instruction")
	}
	if snap.Messages[1].Content != "second question" {
		t.Errorf("Window should start at second question, got %q", snap.Messages[1].Content)
	}
	last := snap.Messages[len(snap.Messages)-1]
	if last.Role != llm.USER || last.Content != "and also" {
		t.Errorf("Candidate must be the final user message, got %+v", last)
	}
}

func TestBuildContextFlattensAggregates(t *testing.T) {
	now := time.Now()
	dialogue := []types.TurnEntry{
		{
			Kind: types.TurnAggregate,
			At:   now.Add(-5 * time.Second),
			Parts: []types.TurnEntry{
				{Kind: types.TurnUser, Text: "book a table"},
				{Kind: types.TurnUser, Text: "for four people"},
			},
		},
	}

	j := newJudge(&fakeCompleter{reply: "COMPLETE"}, time.Second)
	snap := j.BuildContext(dialogue, "tonight")

	if snap.Messages[1].Content != "book a table for four people" {
		t.Errorf("Aggregate should flatten in order, got %q", snap.Messages[1].Content)
	}
	if snap.Messages[1].Role != llm.USER {
		t.Error("Aggregate entries are user-side")
	}
}

func TestBuildContextEmptyDialogue(t *testing.T) {
	j := newJudge(&fakeCompleter{reply: "COMPLETE"}, time.Second)
	snap := j.BuildContext(nil, "hi")

	if len(snap.Messages) != 2 {
		t.Fatalf("Expected system + candidate, got %d messages", len(snap.Messages))
	}
}
