package turnstore

import (
	"time"

	"github.com/cadencevoice/cadence/internal/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TurnEntity is the durable record of one committed, non-retracted turn.
type TurnEntity struct {
	ID        uuid.UUID `gorm:"primaryKey;type:char(36);not null"`
	SessionID uuid.UUID `gorm:"column:session_id;type:char(36);not null;index"`
	TurnID    uint64    `gorm:"column:turn_id;not null"`

	Utterance         string  `gorm:"type:text"`
	Emotion           string  `gorm:"type:varchar(32)"`
	EmotionConfidence float64 `gorm:"column:emotion_confidence"`
	Intent            string  `gorm:"type:varchar(64)"`
	IntentConfidence  float64 `gorm:"column:intent_confidence"`
	PreReply          string  `gorm:"column:pre_reply;type:text"`

	CreatedAt time.Time      `gorm:"autoCreateTime(3)"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (TurnEntity) TableName() string {
	return "turns"
}

func (te *TurnEntity) FromDomain(st types.UserState, preReply string) {
	te.ID = uuid.New()
	te.SessionID = st.SessionID
	te.TurnID = st.TurnID
	te.Utterance = st.Utterance
	te.Emotion = st.Emotion.Category
	te.EmotionConfidence = st.Emotion.Confidence
	te.Intent = st.Intent.IntentType
	te.IntentConfidence = st.Intent.Confidence
	te.PreReply = preReply
}

func (te *TurnEntity) ToDomain() types.UserState {
	return types.UserState{
		SessionID: te.SessionID,
		TurnID:    te.TurnID,
		Utterance: te.Utterance,
		Emotion:   types.Emotion{Category: te.Emotion, Confidence: te.EmotionConfidence, Timestamp: te.CreatedAt},
		Intent:    types.Intent{IntentType: te.Intent, Confidence: te.IntentConfidence, Timestamp: te.CreatedAt},
		CreatedAt: te.CreatedAt,
	}
}
