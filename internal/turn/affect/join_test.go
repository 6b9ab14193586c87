package affect

import (
	"testing"
	"time"

	"github.com/cadencevoice/cadence/internal/types"
)

func TestJoinPicksNearestPreceding(t *testing.T) {
	now := time.Now()
	j := New(3 * time.Second)

	j.ObserveEmotion(types.Emotion{Category: "calm", Confidence: 0.7, Timestamp: now.Add(-2 * time.Second)})
	j.ObserveEmotion(types.Emotion{Category: "excited", Confidence: 0.9, Timestamp: now.Add(-500 * time.Millisecond)})
	j.ObserveIntent(types.Intent{IntentType: "order_food", Confidence: 0.8, Timestamp: now.Add(-time.Second)})

	emotion, intent := j.Join(now)
	if emotion.Category != "excited" {
		t.Errorf("Expected nearest preceding emotion 'excited', got %q", emotion.Category)
	}
	if intent.IntentType != "order_food" {
		t.Errorf("Expected intent 'order_food', got %q", intent.IntentType)
	}
}

func TestJoinIgnoresClassificationsAfterTurnEnd(t *testing.T) {
	now := time.Now()
	j := New(3 * time.Second)

	j.ObserveEmotion(types.Emotion{Category: "calm", Confidence: 0.7, Timestamp: now.Add(-time.Second)})
	j.ObserveEmotion(types.Emotion{Category: "angry", Confidence: 0.9, Timestamp: now.Add(time.Second)})

	emotion, _ := j.Join(now)
	if emotion.Category != "calm" {
		t.Errorf("Classification after turn end must be skipped, got %q", emotion.Category)
	}
}

func TestJoinDefaultsOutsideWindow(t *testing.T) {
	now := time.Now()
	j := New(3 * time.Second)

	j.ObserveEmotion(types.Emotion{Category: "sad", Confidence: 0.8, Timestamp: now.Add(-10 * time.Second)})

	emotion, intent := j.Join(now)
	if emotion.Category != types.EmotionNeutral {
		t.Errorf("Stale emotion should default to neutral, got %q", emotion.Category)
	}
	if intent.IntentType != types.IntentUnknown {
		t.Errorf("Missing intent should default to unknown, got %q", intent.IntentType)
	}
}

func TestJoinDefaultsOnEmpty(t *testing.T) {
	j := New(3 * time.Second)
	emotion, intent := j.Join(time.Now())
	if emotion.Category != types.EmotionNeutral || intent.IntentType != types.IntentUnknown {
		t.Errorf("Empty joiner should yield defaults, got %q/%q", emotion.Category, intent.IntentType)
	}
}
