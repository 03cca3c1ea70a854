package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	trainingPairsKey = "training:pairs"
	trainingCacheTTL = 30 * time.Second

	// Minimum token-set similarity before a trained answer is used
	// instead of the LLM.
	trainedMatchThreshold = 0.75
)

// ErrPairNotFound indicates the trained pair ID does not exist.
var ErrPairNotFound = errors.New("conversation: trained pair not found")

// TrainedPair is a curated question/answer the clinic staff maintain from
// the dashboard. Matching is fuzzy, so one pair covers close phrasings.
type TrainedPair struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Language  string    `json:"language,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TrainingStore keeps trained pairs in a Redis hash with a short-lived
// in-memory cache for the hot matching path.
type TrainingStore struct {
	redis *redis.Client

	mu       sync.RWMutex
	cache    []TrainedPair
	cachedAt time.Time
}

func NewTrainingStore(redis *redis.Client) *TrainingStore {
	if redis == nil {
		panic("conversation: redis client cannot be nil")
	}
	return &TrainingStore{redis: redis}
}

// Upsert creates or replaces a trained pair.
func (s *TrainingStore) Upsert(ctx context.Context, pair TrainedPair) (TrainedPair, error) {
	if strings.TrimSpace(pair.Question) == "" || strings.TrimSpace(pair.Answer) == "" {
		return TrainedPair{}, errors.New("conversation: trained pair requires question and answer")
	}
	if pair.ID == "" {
		pair.ID = uuid.NewString()
	}
	if pair.Language == "" {
		pair.Language = DetectLanguage(pair.Question)
	}
	pair.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(pair)
	if err != nil {
		return TrainedPair{}, fmt.Errorf("conversation: failed to marshal trained pair: %w", err)
	}
	if err := s.redis.HSet(ctx, trainingPairsKey, pair.ID, data).Err(); err != nil {
		return TrainedPair{}, fmt.Errorf("conversation: failed to persist trained pair: %w", err)
	}
	s.invalidate()
	return pair, nil
}

// Delete removes a trained pair by ID.
func (s *TrainingStore) Delete(ctx context.Context, id string) error {
	n, err := s.redis.HDel(ctx, trainingPairsKey, id).Result()
	if err != nil {
		return fmt.Errorf("conversation: failed to delete trained pair: %w", err)
	}
	if n == 0 {
		return ErrPairNotFound
	}
	s.invalidate()
	return nil
}

// List returns all trained pairs.
func (s *TrainingStore) List(ctx context.Context) ([]TrainedPair, error) {
	raw, err := s.redis.HGetAll(ctx, trainingPairsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to list trained pairs: %w", err)
	}

	pairs := make([]TrainedPair, 0, len(raw))
	for _, item := range raw {
		var pair TrainedPair
		if err := json.Unmarshal([]byte(item), &pair); err != nil {
			return nil, fmt.Errorf("conversation: failed to decode trained pair: %w", err)
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// Match returns the best trained pair for the message if it clears the
// similarity threshold.
func (s *TrainingStore) Match(ctx context.Context, message string) (*TrainedPair, float64, error) {
	pairs, err := s.load(ctx)
	if err != nil {
		return nil, 0, err
	}

	msgTokens := tokenSet(message)
	if len(msgTokens) == 0 {
		return nil, 0, nil
	}

	var best *TrainedPair
	var bestScore float64
	for i := range pairs {
		score := diceSimilarity(msgTokens, tokenSet(pairs[i].Question))
		if score > bestScore {
			best = &pairs[i]
			bestScore = score
		}
	}

	if best == nil || bestScore < trainedMatchThreshold {
		return nil, bestScore, nil
	}
	return best, bestScore, nil
}

func (s *TrainingStore) load(ctx context.Context) ([]TrainedPair, error) {
	s.mu.RLock()
	if s.cache != nil && time.Since(s.cachedAt) < trainingCacheTTL {
		pairs := s.cache
		s.mu.RUnlock()
		return pairs, nil
	}
	s.mu.RUnlock()

	pairs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache = pairs
	s.cachedAt = time.Now()
	s.mu.Unlock()
	return pairs, nil
}

func (s *TrainingStore) invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
}

// tokenSet normalizes text into a set of comparable tokens: lowercase,
// punctuation stripped, Arabic diacritics/tatweel removed, alef variants
// folded.
func tokenSet(text string) map[string]struct{} {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case r == 0x640: // tatweel
			continue
		case r >= 0x64B && r <= 0x652: // harakat
			continue
		case r == 'أ' || r == 'إ' || r == 'آ':
			b.WriteRune('ا')
		case r == 'ة':
			b.WriteRune('ه')
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	set := make(map[string]struct{})
	for _, tok := range strings.Fields(b.String()) {
		set[tok] = struct{}{}
	}
	return set
}

// diceSimilarity is the Sørensen–Dice coefficient over two token sets.
func diceSimilarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var common int
	for tok := range a {
		if _, ok := b[tok]; ok {
			common++
		}
	}
	return 2 * float64(common) / float64(len(a)+len(b))
}
