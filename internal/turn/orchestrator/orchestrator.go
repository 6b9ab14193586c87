package orchestrator

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/cadencevoice/cadence/internal/repository/turnstore"
	"github.com/cadencevoice/cadence/internal/turn/affect"
	"github.com/cadencevoice/cadence/internal/turn/gate"
	"github.com/cadencevoice/cadence/internal/turn/judge"
	"github.com/cadencevoice/cadence/internal/turn/ledger"
	"github.com/cadencevoice/cadence/internal/turn/segment"
	"github.com/cadencevoice/cadence/internal/types"
	"github.com/cadencevoice/cadence/pkg/Logger"
	"github.com/google/uuid"
	"github.com/looplab/fsm"
)

// Session states. SILENCE_PENDING is folded into listening: the gate keeps
// the distinction internally.
const (
	StateListening = "listening"
	StateEscalated = "escalated"
	StateCommitted = "committed"
)

const (
	eventEscalate  = "escalate"
	eventCommit    = "commit"
	eventResume    = "resume"
	eventInterrupt = "interrupt"
)

// Sink receives the orchestrator's egress: one UserState per committed,
// non-retracted turn, plus the optional staged pre-reply hint.
type Sink interface {
	PublishUserState(ctx context.Context, st types.UserState) error
	PublishPreReply(ctx context.Context, sessionID uuid.UUID, turnID uint64, text string) error
}

type Config struct {
	SilenceThreshold     time.Duration
	ClassifierJoinWindow time.Duration
	RecentJudgmentWindow int
	// DialogueWindow bounds the in-memory dialogue history fed to the judge.
	DialogueWindow int
}

func (c Config) withDefaults() Config {
	if c.DialogueWindow <= 0 {
		c.DialogueWindow = 32
	}
	if c.RecentJudgmentWindow <= 0 {
		c.RecentJudgmentWindow = 8
	}
	return c
}

type eventKind int

const (
	evFrame eventKind = iota
	evPartial
	evEmotion
	evIntent
	evAgentResponse
	evVerdict
	evPreReply
)

type verdictResult struct {
	verdict   judge.Verdict
	snapshot  judge.ContextSnapshot
	candidate string
}

type preReplyResult struct {
	turnID uint64
	text   string
	err    error
}

type inputEvent struct {
	kind      eventKind
	frame     types.AudioFrame
	partial   types.PartialTranscript
	emotion   types.Emotion
	intent    types.Intent
	agentText string
	agentAt   time.Time
	verdict   verdictResult
	preReply  preReplyResult
}

// turnTask is the mutable working record of the in-progress turn. Exactly
// one live task per turn; replaced when the next turn starts. The state is
// held back until staging resolves so the persisted row carries the
// pre-reply, and a retracted turn is never persisted at all.
type turnTask struct {
	turnID   uint64
	state    types.UserState
	preReply string
	finished bool
}

// Orchestrator is the per-session turn state machine. One goroutine (Run)
// owns every mutation; frame ingestion and the judge await are decoupled
// through the event channel so ingestion never blocks.
type Orchestrator struct {
	sessionID uuid.UUID
	cfg       Config
	logger    *Logger.Logger

	machine   *fsm.FSM
	assembler *segment.Assembler
	gate      *gate.SilenceGate
	judge     *judge.Judge
	ledger    *ledger.Ledger
	joiner    *affect.Joiner
	stager    *PreReplyStager
	store     turnstore.Store
	sink      Sink

	events chan inputEvent
	ctx    context.Context

	dialogue      []types.TurnEntry
	partial       *types.PartialTranscript
	task          *turnTask
	nextTurnID    uint64
	judgeInFlight bool
	lastSegment   *types.SpeechSegment
	lastUtterance string
	resumedParts  []types.TurnEntry
	stageCancel   context.CancelFunc
}

func New(
	sessionID uuid.UUID,
	cfg Config,
	j *judge.Judge,
	stager *PreReplyStager,
	led *ledger.Ledger,
	store turnstore.Store,
	sink Sink,
	logger *Logger.Logger,
) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		sessionID: sessionID,
		cfg:       cfg,
		logger:    logger,
		machine: fsm.NewFSM(
			StateListening,
			fsm.Events{
				{Name: eventEscalate, Src: []string{StateListening}, Dst: StateEscalated},
				{Name: eventCommit, Src: []string{StateEscalated}, Dst: StateCommitted},
				{Name: eventResume, Src: []string{StateEscalated, StateCommitted}, Dst: StateListening},
				{Name: eventInterrupt, Src: []string{StateCommitted}, Dst: StateListening},
			},
			fsm.Callbacks{},
		),
		assembler:  segment.New(cfg.SilenceThreshold),
		gate:       gate.New(cfg.SilenceThreshold),
		judge:      j,
		ledger:     led,
		joiner:     affect.New(cfg.ClassifierJoinWindow),
		stager:     stager,
		store:      store,
		sink:       sink,
		events:     make(chan inputEvent, 256),
		nextTurnID: 1,
	}
}

// AttachSink sets the egress sink. Must be called before Run when the sink
// (the transport session) is constructed after the orchestrator.
func (o *Orchestrator) AttachSink(sink Sink) {
	o.sink = sink
}

// SeedDialogue primes the dialogue history from previously persisted turns
// so a reconnecting session's judge context survives the disconnect, and
// keeps turn IDs monotonic across the reconnect. Must be called before Run.
func (o *Orchestrator) SeedDialogue(past []types.UserState) {
	for _, st := range past {
		o.appendDialogue(types.TurnEntry{Kind: types.TurnUser, Text: st.Utterance, At: st.CreatedAt})
		if st.TurnID >= o.nextTurnID {
			o.nextTurnID = st.TurnID + 1
		}
	}
}

func (o *Orchestrator) SessionID() uuid.UUID { return o.sessionID }
func (o *Orchestrator) State() string        { return o.machine.Current() }
func (o *Orchestrator) Ledger() *ledger.Ledger {
	return o.ledger
}

// Run drives the session until ctx is canceled. It must be the only caller
// of the handle* methods.
func (o *Orchestrator) Run(ctx context.Context) {
	o.ctx = ctx
	for {
		select {
		case <-ctx.Done():
			o.logger.Infof("orchestrator for session %s shutting down in state %s", o.sessionID, o.machine.Current())
			return
		case ev := <-o.events:
			o.dispatch(ctx, ev)
		}
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, ev inputEvent) {
	switch ev.kind {
	case evFrame:
		o.handleFrame(ctx, ev.frame)
	case evPartial:
		o.handlePartial(ev.partial)
	case evEmotion:
		o.joiner.ObserveEmotion(ev.emotion)
	case evIntent:
		o.joiner.ObserveIntent(ev.intent)
	case evAgentResponse:
		o.appendDialogue(types.TurnEntry{Kind: types.TurnAgent, Text: ev.agentText, At: ev.agentAt})
	case evVerdict:
		o.handleVerdict(ctx, ev.verdict)
	case evPreReply:
		o.handlePreReply(ctx, ev.preReply)
	}
}

// Ingestion surface. Non-blocking: the event buffer absorbs bursts and
// frames are dropped with a warning when the session is hopelessly behind.

func (o *Orchestrator) IngestFrame(f types.AudioFrame) {
	select {
	case o.events <- inputEvent{kind: evFrame, frame: f}:
	default:
		o.logger.Warnf("event buffer full for session %s, dropping frame", o.sessionID)
	}
}

func (o *Orchestrator) IngestPartial(p types.PartialTranscript) {
	select {
	case o.events <- inputEvent{kind: evPartial, partial: p}:
	default:
		o.logger.Warnf("event buffer full for session %s, dropping partial transcript", o.sessionID)
	}
}

func (o *Orchestrator) ObserveEmotion(e types.Emotion) {
	select {
	case o.events <- inputEvent{kind: evEmotion, emotion: e}:
	default:
	}
}

func (o *Orchestrator) ObserveIntent(i types.Intent) {
	select {
	case o.events <- inputEvent{kind: evIntent, intent: i}:
	default:
	}
}

// ObserveAgentResponse records the agent's delivered reply so the judge
// sees both sides of the dialogue.
func (o *Orchestrator) ObserveAgentResponse(text string, at time.Time) {
	select {
	case o.events <- inputEvent{kind: evAgentResponse, agentText: text, agentAt: at}:
	default:
	}
}

// post delivers results from child goroutines (judge, stager) back into the
// event loop. Unlike ingestion these must not be dropped.
func (o *Orchestrator) post(ev inputEvent) {
	select {
	case o.events <- ev:
	case <-o.ctx.Done():
	}
}

func (o *Orchestrator) handleFrame(ctx context.Context, f types.AudioFrame) {
	// System-side audio (the agent's own TTS leaking into capture) never
	// drives turn decisions: it must not read as the user resuming, extend
	// their segment, or reset the silence episode.
	if f.IsOperator {
		return
	}

	// Speech after a commit means the committed verdict was wrong: the
	// speaker is continuing the same logical turn.
	if f.HasSpeech && o.machine.Current() == StateCommitted {
		o.interrupt(ctx)
	}

	ev, err := o.assembler.Ingest(f)
	if err != nil {
		if errors.Is(err, segment.ErrMalformedInput) {
			o.logger.Warnf("dropping malformed frame for session %s (ts=%v)", o.sessionID, f.Timestamp)
			return
		}
		o.logger.Errorf("frame ingest failed for session %s: %v", o.sessionID, err)
		return
	}

	if f.HasSpeech {
		o.gate.Reset()
		return
	}

	if ev != nil && ev.Kind == segment.SegmentClosed {
		o.lastSegment = ev.Segment
	}

	if o.machine.Current() != StateListening {
		return
	}
	if o.candidateText() == "" {
		return
	}

	silence := o.assembler.Silence(f.Timestamp)
	if o.gate.Evaluate(silence) == gate.Escalate {
		o.escalate(ctx)
	}
}

func (o *Orchestrator) handlePartial(p types.PartialTranscript) {
	// Replaced, never merged.
	o.partial = &p
}

func (o *Orchestrator) escalate(ctx context.Context) {
	if o.judgeInFlight {
		return
	}
	candidate := o.candidateText()
	if err := o.machine.Event(ctx, eventEscalate); err != nil {
		o.logger.Errorf("escalate transition failed for session %s: %v", o.sessionID, err)
		return
	}

	snapshot := o.judge.BuildContext(o.dialogueCopy(), candidate)
	o.judgeInFlight = true
	o.logger.Debugf("session %s escalating, candidate %q", o.sessionID, candidate)

	go func() {
		verdict := o.judge.Judge(o.ctx, snapshot)
		o.post(inputEvent{kind: evVerdict, verdict: verdictResult{
			verdict:   verdict,
			snapshot:  snapshot,
			candidate: candidate,
		}})
	}()
}

func (o *Orchestrator) handleVerdict(ctx context.Context, res verdictResult) {
	o.judgeInFlight = false
	if o.machine.Current() != StateEscalated {
		return
	}

	o.ledger.Record(res.snapshot, res.verdict)
	o.logger.Infof("session %s judge verdict: %s", o.sessionID, res.verdict)

	if res.verdict == judge.Complete {
		o.commit(ctx, res.candidate)
		return
	}
	// Incomplete or Undetermined: keep accumulating. The gate stays latched
	// until speech resets the silence episode, so one episode never issues
	// a second judge call.
	if err := o.machine.Event(ctx, eventResume); err != nil {
		o.logger.Errorf("resume transition failed for session %s: %v", o.sessionID, err)
	}
}

// commit closes the turn with the judged candidate. Partials that arrived
// while the verdict was pending are not folded in: the committed utterance
// is exactly the text the judge ruled complete, and later speech belongs to
// the next turn (or to an interruption of this one).
func (o *Orchestrator) commit(ctx context.Context, candidate string) {
	if err := o.machine.Event(ctx, eventCommit); err != nil {
		o.logger.Errorf("commit transition failed for session %s: %v", o.sessionID, err)
		return
	}

	if seg := o.assembler.ForceClose(); seg != nil {
		o.lastSegment = seg
	}
	endAt := time.Now()
	var duration time.Duration
	if o.lastSegment != nil {
		duration = o.lastSegment.Duration()
		if !o.lastSegment.EndedAt.IsZero() {
			endAt = o.lastSegment.EndedAt
		}
	}

	turnID := o.nextTurnID
	o.nextTurnID++
	emotion, intent := o.joiner.Join(endAt)

	final := types.FinalTranscript{Text: candidate, Duration: duration, At: endAt}
	o.logger.Debugf("session %s final transcript: %q (%v of speech)", o.sessionID, final.Text, final.Duration)

	st := types.UserState{
		SessionID: o.sessionID,
		TurnID:    turnID,
		Utterance: final.Text,
		Emotion:   emotion,
		Intent:    intent,
		Metadata: map[string]string{
			"speech_duration_ms": strconv.FormatInt(final.Duration.Milliseconds(), 10),
		},
		CreatedAt: time.Now(),
	}

	o.task = &turnTask{turnID: turnID, state: st, finished: true}
	o.lastUtterance = candidate
	o.partial = nil

	// Sole externally observable commit signal, exactly once per
	// non-retracted turn.
	if err := o.sink.PublishUserState(ctx, st); err != nil {
		o.logger.Errorf("failed to publish user state for session %s turn %d: %v", o.sessionID, turnID, err)
	}

	entry := types.TurnEntry{Kind: types.TurnUser, Text: candidate, At: endAt}
	if len(o.resumedParts) > 0 {
		parts := append(o.resumedParts, entry)
		entry = types.TurnEntry{Kind: types.TurnAggregate, At: endAt, Parts: parts}
		o.resumedParts = nil
	}
	o.appendDialogue(entry)

	o.stagePreReply(turnID, candidate)
	o.logger.Infof("session %s committed turn %d (%v of speech)", o.sessionID, turnID, duration)
}

func (o *Orchestrator) stagePreReply(turnID uint64, candidate string) {
	if o.stager == nil {
		// Nothing to stage; downstream consumption is complete immediately.
		o.post(inputEvent{kind: evPreReply, preReply: preReplyResult{turnID: turnID}})
		return
	}

	stageCtx, cancel := context.WithCancel(o.ctx)
	o.stageCancel = cancel
	dialogue := o.dialogueCopy()

	go func() {
		defer cancel()
		text, err := o.stager.Stage(stageCtx, dialogue, candidate)
		o.post(inputEvent{kind: evPreReply, preReply: preReplyResult{turnID: turnID, text: text, err: err}})
	}()
}

func (o *Orchestrator) handlePreReply(ctx context.Context, res preReplyResult) {
	if o.machine.Current() != StateCommitted || o.task == nil || o.task.turnID != res.turnID {
		// Interrupted or torn down while staging: the draft is discarded.
		return
	}

	if res.err != nil {
		o.logger.Warnf("pre-reply staging failed for session %s turn %d: %v", o.sessionID, res.turnID, res.err)
	} else if res.text != "" {
		o.task.preReply = res.text
		o.ledger.SetLastPreReply(res.text)
		if err := o.sink.PublishPreReply(ctx, o.sessionID, res.turnID, res.text); err != nil {
			o.logger.Errorf("failed to publish pre-reply for session %s: %v", o.sessionID, err)
		}
	}

	// Persist only now: the row carries the resolved pre-reply, and a turn
	// retracted mid-staging never reaches storage.
	if o.store != nil {
		st := o.task.state
		preReply := o.task.preReply
		go func() {
			if err := o.store.SaveTurn(o.ctx, st, preReply); err != nil {
				o.logger.Warnf("turn persistence failed for session %s turn %d: %v", o.sessionID, st.TurnID, err)
			}
		}()
	}

	// Downstream consumption of this turn is complete; the next turn may
	// start without being read as an interruption.
	if err := o.machine.Event(ctx, eventResume); err != nil {
		o.logger.Errorf("post-commit resume failed for session %s: %v", o.sessionID, err)
	}
}

func (o *Orchestrator) interrupt(ctx context.Context) {
	if err := o.machine.Event(ctx, eventInterrupt); err != nil {
		o.logger.Errorf("interrupt transition failed for session %s: %v", o.sessionID, err)
		return
	}

	o.ledger.MarkLastIncorrect()
	if o.stageCancel != nil {
		o.stageCancel()
		o.stageCancel = nil
	}
	o.task = nil

	// Pull the retracted turn back out of the dialogue; it will return as
	// part of an aggregate once the resumed utterance commits.
	if n := len(o.dialogue); n > 0 && o.dialogue[n-1].IsUserSide() {
		part := o.dialogue[n-1]
		o.dialogue = o.dialogue[:n-1]
		if part.Kind == types.TurnAggregate {
			o.resumedParts = append(o.resumedParts, part.Parts...)
		} else {
			o.resumedParts = append(o.resumedParts, part)
		}
	}

	o.assembler.Resume(o.lastSegment)
	o.partial = &types.PartialTranscript{Text: o.lastUtterance, At: time.Now()}
	o.gate.Reset()

	o.logger.Warnf("session %s: speech resumed after commit, turn retracted", o.sessionID)
}

func (o *Orchestrator) candidateText() string {
	if o.partial == nil {
		return ""
	}
	return o.partial.Text
}

func (o *Orchestrator) appendDialogue(entry types.TurnEntry) {
	o.dialogue = append(o.dialogue, entry)
	if overflow := len(o.dialogue) - o.cfg.DialogueWindow; overflow > 0 {
		o.dialogue = append(o.dialogue[:0:0], o.dialogue[overflow:]...)
	}
}

func (o *Orchestrator) dialogueCopy() []types.TurnEntry {
	cp := make([]types.TurnEntry, len(o.dialogue))
	copy(cp, o.dialogue)
	return cp
}

// Stats is a side-effect-free diagnostic snapshot.
func (o *Orchestrator) Stats() map[string]interface{} {
	return map[string]interface{}{
		"session_id":    o.sessionID.String(),
		"state":         o.machine.Current(),
		"ledger_len":    o.ledger.Len(),
		"recent_window": o.cfg.RecentJudgmentWindow,
	}
}
