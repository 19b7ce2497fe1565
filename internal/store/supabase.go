package store

import (
	"context"
	"fmt"
	"time"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
)

// Conversation is one dashboard conversation, keyed by a contact phone
// number or, for voice calls, a synthetic call-scoped address.
type Conversation struct {
	ID          string    `json:"id"`
	PhoneNumber string    `json:"phone_number"`
	LeadName    *string   `json:"lead_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Message is one stored message within a conversation. Direction is
// "inbound", "outbound" or "system".
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Direction      string    `json:"direction"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

// PushToken is a registered APNs device token.
type PushToken struct {
	ID          string    `json:"id"`
	DeviceToken string    `json:"device_token"`
	CreatedAt   time.Time `json:"created_at"`
}

// Config holds Supabase connection configuration.
type Config struct {
	URL    string
	APIKey string
}

// Store persists conversations and messages via Supabase.
type Store struct {
	client *supabase.Client
}

// New creates a new Supabase-backed store.
func New(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &Store{client: client}, nil
}

// GetOrCreateConversation returns the most recent conversation for a phone
// number, creating one when none exists.
func (s *Store) GetOrCreateConversation(ctx context.Context, phoneNumber, name string) (*Conversation, error) {
	var existing []Conversation
	_, err := s.client.From("conversations").
		Select("*", "", false).
		Eq("phone_number", phoneNumber).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(1, "").
		ExecuteTo(&existing)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conversation: %w", err)
	}
	if len(existing) > 0 {
		return &existing[0], nil
	}

	row := map[string]any{"phone_number": phoneNumber}
	if name != "" {
		row["lead_name"] = name
	}

	var created []Conversation
	_, err = s.client.From("conversations").
		Insert(row, false, "", "representation", "").
		ExecuteTo(&created)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	if len(created) == 0 {
		return nil, fmt.Errorf("conversation insert returned no rows")
	}
	return &created[0], nil
}

// GetConversation returns one conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	_, err := s.client.From("conversations").
		Select("*", "", false).
		Eq("id", id).
		Single().
		ExecuteTo(&conv)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

// ListConversations returns all conversations, most recently updated first.
func (s *Store) ListConversations(ctx context.Context) ([]Conversation, error) {
	var convs []Conversation
	_, err := s.client.From("conversations").
		Select("*", "", false).
		Order("updated_at", &postgrest.OrderOpts{Ascending: false}).
		ExecuteTo(&convs)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}

// StoreMessage inserts one message and touches the conversation's
// updated_at timestamp.
func (s *Store) StoreMessage(ctx context.Context, conversationID, direction, content string) (*Message, error) {
	row := map[string]any{
		"conversation_id": conversationID,
		"direction":       direction,
		"content":         content,
		"timestamp":       time.Now().UTC().Format(time.RFC3339Nano),
	}

	var created []Message
	_, err := s.client.From("messages").
		Insert(row, false, "", "representation", "").
		ExecuteTo(&created)
	if err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}
	if len(created) == 0 {
		return nil, fmt.Errorf("message insert returned no rows")
	}

	// Best effort; the message itself is already stored.
	var updated []Conversation
	_, _ = s.client.From("conversations").
		Update(map[string]any{"updated_at": time.Now().UTC().Format(time.RFC3339Nano)}, "", "").
		Eq("id", conversationID).
		ExecuteTo(&updated)

	return &created[0], nil
}

// ListMessages returns all messages for a conversation in timestamp order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	var msgs []Message
	_, err := s.client.From("messages").
		Select("*", "", false).
		Eq("conversation_id", conversationID).
		Order("timestamp", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&msgs)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

// RegisterPushToken stores an APNs device token, upserting on the token
// value so repeated registrations are idempotent.
func (s *Store) RegisterPushToken(ctx context.Context, deviceToken string) error {
	row := map[string]any{"device_token": deviceToken}

	var created []PushToken
	_, err := s.client.From("push_tokens").
		Insert(row, true, "device_token", "representation", "").
		ExecuteTo(&created)
	if err != nil {
		return fmt.Errorf("failed to register push token: %w", err)
	}
	return nil
}

// ListPushTokens returns all registered APNs device tokens.
func (s *Store) ListPushTokens(ctx context.Context) ([]string, error) {
	var rows []PushToken
	_, err := s.client.From("push_tokens").
		Select("*", "", false).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list push tokens: %w", err)
	}

	tokens := make([]string, 0, len(rows))
	for _, r := range rows {
		tokens = append(tokens, r.DeviceToken)
	}
	return tokens, nil
}
