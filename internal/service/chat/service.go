package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/teamchat-server/internal/store"
)

// ErrForbidden is returned when the caller is not a member of the room.
var ErrForbidden = errors.New("user is not a room member")

// Broadcaster publishes a created message to live subscribers of its room.
// Implementations must not block on delivery and never report failures.
type Broadcaster interface {
	BroadcastMessage(msg *store.Message)
}

// Store is the storage the chat service needs.
type Store interface {
	store.MembershipGate
	store.MessageStore
}

// Service authorizes, persists and publishes room messages.
type Service struct {
	store       Store
	broadcaster Broadcaster
	log         *zerolog.Logger
}

// New creates a chat service. broadcaster may be nil, in which case messages are only persisted.
func New(st Store, broadcaster Broadcaster, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		store:       st,
		broadcaster: broadcaster,
		log:         logger,
	}
}

// ListMessages returns the first limit messages of a room in creation order.
func (s *Service) ListMessages(ctx context.Context, userID, roomID string, limit int) ([]*store.Message, error) {
	if err := s.authorize(ctx, userID, roomID); err != nil {
		return nil, err
	}

	msgs, err := s.store.ListMessages(ctx, roomID, store.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// CreateMessage stores a message from userID and publishes it to room subscribers.
// An empty msgType means TEXT.
func (s *Service) CreateMessage(ctx context.Context, userID, roomID, content string, msgType store.MessageType) (*store.Message, error) {
	if err := s.authorize(ctx, userID, roomID); err != nil {
		return nil, err
	}

	body, err := store.NormalizeContent(content)
	if err != nil {
		return nil, err
	}

	msg, err := s.store.CreateMessage(ctx, roomID, userID, body, msgType)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastMessage(msg)
	}

	s.log.Debug().
		Str("room", roomID).
		Str("user", userID).
		Str("message", msg.ID).
		Str("type", string(msg.Type)).
		Msg("message created")
	return msg, nil
}

func (s *Service) authorize(ctx context.Context, userID, roomID string) error {
	ok, err := s.store.IsMember(ctx, userID, roomID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}
