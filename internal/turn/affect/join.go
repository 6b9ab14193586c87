package affect

import (
	"time"

	"github.com/cadencevoice/cadence/internal/types"
)

// Joiner buffers emotion/intent classifications arriving from the external
// classifier and joins them to committed turns by timestamp proximity:
// nearest preceding classification within the window, else neutral/unknown
// defaults. Owned by one session's orchestrator; not safe for concurrent use.
type Joiner struct {
	window   time.Duration
	emotions []types.Emotion
	intents  []types.Intent
}

func New(window time.Duration) *Joiner {
	return &Joiner{window: window}
}

func (j *Joiner) ObserveEmotion(e types.Emotion) {
	j.emotions = append(j.emotions, e)
}

func (j *Joiner) ObserveIntent(i types.Intent) {
	j.intents = append(j.intents, i)
}

// Join resolves the classifications for a turn ending at the given instant
// and prunes observations that can no longer match any future turn.
func (j *Joiner) Join(at time.Time) (types.Emotion, types.Intent) {
	emotion := types.NeutralEmotion(at)
	for i := len(j.emotions) - 1; i >= 0; i-- {
		e := j.emotions[i]
		if e.Timestamp.After(at) {
			continue
		}
		if at.Sub(e.Timestamp) <= j.window {
			emotion = e
		}
		break
	}

	intent := types.UnknownIntent(at)
	for i := len(j.intents) - 1; i >= 0; i-- {
		it := j.intents[i]
		if it.Timestamp.After(at) {
			continue
		}
		if at.Sub(it.Timestamp) <= j.window {
			intent = it
		}
		break
	}

	j.prune(at)
	return emotion, intent
}

func (j *Joiner) prune(at time.Time) {
	cutoff := at.Add(-j.window)
	firstLive := 0
	for firstLive < len(j.emotions) && j.emotions[firstLive].Timestamp.Before(cutoff) {
		firstLive++
	}
	j.emotions = append(j.emotions[:0:0], j.emotions[firstLive:]...)

	firstLive = 0
	for firstLive < len(j.intents) && j.intents[firstLive].Timestamp.Before(cutoff) {
		firstLive++
	}
	j.intents = append(j.intents[:0:0], j.intents[firstLive:]...)
}
