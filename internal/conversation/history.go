package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/orquestrai/sells-broker/internal/listings"
)

const (
	conversationTTL = 24 * time.Hour

	// cacheWindow bounds what the model sees; durableWindow bounds what the
	// database keeps per conversation.
	cacheWindow   = 20
	durableWindow = 50
)

// MessageRepository is the durable side of conversation history.
type MessageRepository interface {
	Append(ctx context.Context, conversationID, role, content string) error
	Recent(ctx context.Context, conversationID string, limit int) ([]ChatMessage, error)
	Prune(ctx context.Context, conversationID string, keep int) error
}

// SelectedProperty is the listing a lead has picked out, kept alongside the
// conversation so scheduling can attach it to the visit.
type SelectedProperty struct {
	Title   string             `json:"title"`
	Info    string             `json:"info"`
	Listing *listings.Property `json:"listing,omitempty"`
}

// LandingContext carries what a lead filled on the landing page, so the
// assistant can greet them without re-asking.
type LandingContext struct {
	Name         string             `json:"name"`
	Neighborhood string             `json:"neighborhood"`
	Bedrooms     string             `json:"bedrooms"`
	Source       string             `json:"source"`
	Property     *listings.Property `json:"property,omitempty"`
}

// historyStore layers a Redis cache over the durable message repository.
// Reads come from Redis when warm; writes go to both.
type historyStore struct {
	redis  *redis.Client
	repo   MessageRepository
	tracer trace.Tracer
}

func newHistoryStore(rdb *redis.Client, repo MessageRepository, tracer trace.Tracer) *historyStore {
	if rdb == nil {
		panic("conversation: redis client cannot be nil")
	}
	if repo == nil {
		panic("conversation: message repository cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("sellsbroker.internal.conversation.history")
	}
	return &historyStore{redis: rdb, repo: repo, tracer: tracer}
}

// Append records one turn in both layers and trims each to its window.
func (s *historyStore) Append(ctx context.Context, conversationID, role, content string) error {
	ctx, span := s.tracer.Start(ctx, "conversation.append_history")
	defer span.End()

	history, err := s.History(ctx, conversationID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	history = append(history, ChatMessage{Role: role, Content: content, Timestamp: time.Now()})
	if len(history) > cacheWindow {
		history = history[len(history)-cacheWindow:]
	}

	data, err := json.Marshal(history)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: marshal history: %w", err)
	}
	if err := s.redis.Set(ctx, conversationKey(conversationID), data, conversationTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: cache history: %w", err)
	}

	if err := s.repo.Append(ctx, conversationID, role, content); err != nil {
		span.RecordError(err)
		return err
	}
	if err := s.repo.Prune(ctx, conversationID, durableWindow); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// History returns the recent turns, reading through to the database when the
// cache is cold.
func (s *historyStore) History(ctx context.Context, conversationID string) ([]ChatMessage, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_history")
	defer span.End()

	data, err := s.redis.Get(ctx, conversationKey(conversationID)).Bytes()
	if err == nil {
		var history []ChatMessage
		if err := json.Unmarshal(data, &history); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("conversation: decode cached history: %w", err)
		}
		return history, nil
	}
	if err != redis.Nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: load cached history: %w", err)
	}

	history, err := s.repo.Recent(ctx, conversationID, cacheWindow)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(history) > 0 {
		if data, err := json.Marshal(history); err == nil {
			_ = s.redis.Set(ctx, conversationKey(conversationID), data, conversationTTL).Err()
		}
	}
	return history, nil
}

// SaveSelectedProperty stores (or with nil, clears) the lead's current pick.
func (s *historyStore) SaveSelectedProperty(ctx context.Context, conversationID string, sel *SelectedProperty) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_selected_property")
	defer span.End()

	if sel == nil {
		if err := s.redis.Del(ctx, selectedPropertyKey(conversationID)).Err(); err != nil {
			span.RecordError(err)
			return fmt.Errorf("conversation: clear selected property: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(sel)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: marshal selected property: %w", err)
	}
	if err := s.redis.Set(ctx, selectedPropertyKey(conversationID), data, conversationTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: persist selected property: %w", err)
	}
	return nil
}

// SelectedProperty returns the lead's current pick, or nil when none.
func (s *historyStore) SelectedProperty(ctx context.Context, conversationID string) (*SelectedProperty, error) {
	data, err := s.redis.Get(ctx, selectedPropertyKey(conversationID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("conversation: load selected property: %w", err)
	}
	var sel SelectedProperty
	if err := json.Unmarshal(data, &sel); err != nil {
		return nil, fmt.Errorf("conversation: decode selected property: %w", err)
	}
	return &sel, nil
}

// SaveLandingContext stores the landing-page form data for a conversation.
func (s *historyStore) SaveLandingContext(ctx context.Context, conversationID string, lc *LandingContext) error {
	data, err := json.Marshal(lc)
	if err != nil {
		return fmt.Errorf("conversation: marshal landing context: %w", err)
	}
	if err := s.redis.Set(ctx, landingKey(conversationID), data, conversationTTL).Err(); err != nil {
		return fmt.Errorf("conversation: persist landing context: %w", err)
	}
	return nil
}

// LandingContext returns the landing-page form data, or nil when the lead
// did not come through the landing page.
func (s *historyStore) LandingContext(ctx context.Context, conversationID string) (*LandingContext, error) {
	data, err := s.redis.Get(ctx, landingKey(conversationID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("conversation: load landing context: %w", err)
	}
	var lc LandingContext
	if err := json.Unmarshal(data, &lc); err != nil {
		return nil, fmt.Errorf("conversation: decode landing context: %w", err)
	}
	return &lc, nil
}

func conversationKey(id string) string {
	return fmt.Sprintf("conversation:%s", id)
}

func selectedPropertyKey(id string) string {
	return fmt.Sprintf("selected_property:%s", id)
}

func landingKey(id string) string {
	return fmt.Sprintf("landing_lead:%s", id)
}
