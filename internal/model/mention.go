package model

// Sentiment is the tone of an answer toward an entity, supplied by the
// external sentiment service.
type Sentiment string

// Sentiment constants.
const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// MaxRank caps textual rank positions; anything deeper counts as rank 10.
const MaxRank = 10

// Mention records whether one answer referenced one entity, and where.
// Rank is nil when the entity was not mentioned, else 1-based and <= MaxRank.
type Mention struct {
	Rank             *int
	Sentiment        Sentiment
	AnswerID         string
	EvidenceSnippets []string
	Type             EntityType
	ID               int64
	EntityID         int64
	Mentioned        bool
}
