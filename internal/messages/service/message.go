package service

import (
	"context"
	"errors"
	"time"

	"darna/internal/directory"
	messageserrors "darna/internal/messages/errors"
	"darna/internal/messages/repository"
	"darna/internal/messages/validator"
	"darna/pkg/config"
	mongodb "darna/pkg/db/mongo"
	apperrors "darna/pkg/errors"
	"darna/pkg/model"
	"darna/pkg/notify"
	"darna/pkg/sanitizer"

	"github.com/google/uuid"
)

// Conversations is the part of the conversation service messages need.
type Conversations interface {
	Get(ctx context.Context, id, viewerID string) (*model.Conversation, error)
	TouchLastMessage(ctx context.Context, id string, at time.Time) error
}

type MessageService interface {
	// Load returns the conversation's messages oldest first.
	Load(ctx context.Context, conversationID, viewerID string) ([]model.Message, error)
	// Append stores a message from senderID. Repeating a call with the same
	// client reference returns the stored message instead of a copy.
	Append(ctx context.Context, conversationID, senderID string, input *model.MessageCreate) (*model.Message, error)
	MarkSeen(ctx context.Context, conversationID, viewerID string) (int64, error)
	MarkDelivered(ctx context.Context, conversationID, viewerID string) (int64, error)
}

type messageService struct {
	repo          repository.MessageRepository
	conversations Conversations
	validator     *validator.MessageValidator
	profiles      directory.ProfileLookup
	txManager     mongodb.TransactionManager
	notifier      notify.Notifier
	cfg           *config.Config
}

func NewMessageService(
	repo repository.MessageRepository,
	conversations Conversations,
	validator *validator.MessageValidator,
	profiles directory.ProfileLookup,
	txManager mongodb.TransactionManager,
	notifier notify.Notifier,
	cfg *config.Config,
) MessageService {
	return &messageService{
		repo:          repo,
		conversations: conversations,
		validator:     validator,
		profiles:      profiles,
		txManager:     txManager,
		notifier:      notifier,
		cfg:           cfg,
	}
}

func (s *messageService) Load(ctx context.Context, conversationID, viewerID string) ([]model.Message, error) {
	if _, err := s.conversations.Get(ctx, conversationID, viewerID); err != nil {
		return nil, err
	}

	msgs, err := s.repo.FindByConversation(ctx, conversationID)
	if err != nil {
		s.cfg.Log.Error("Failed to load messages", "conversation_id", conversationID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve messages", err)
	}

	model.SortMessages(msgs)
	s.enrichSenders(ctx, msgs)
	return msgs, nil
}

func (s *messageService) Append(ctx context.Context, conversationID, senderID string, input *model.MessageCreate) (*model.Message, error) {
	input.Content = sanitizer.NormalizeText(input.Content)
	input.ClientRef = sanitizer.TrimSpace(input.ClientRef)
	if input.Content == "" {
		return nil, apperrors.Validation("Message content cannot be empty", map[string]any{"field": "Content"})
	}
	if err := s.validator.Validate(input); err != nil {
		s.cfg.Log.Warn("Message validation failed", "error", err)
		return nil, apperrors.Validation("Message validation failed", map[string]any{"errors": err})
	}

	conv, err := s.conversations.Get(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}

	if input.ClientRef != "" {
		existing, err := s.repo.FindByClientRef(ctx, conversationID, input.ClientRef)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, messageserrors.ErrNotFound) {
			return nil, apperrors.Internal("Failed to check for duplicate message", err)
		}
	} else {
		input.ClientRef = uuid.New().String()
	}

	msg := &model.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        input.Content,
		Status:         model.MessageSent,
		ClientRef:      input.ClientRef,
	}

	err = s.txManager.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repo.Create(txCtx, msg); err != nil {
			return err
		}
		return s.conversations.TouchLastMessage(txCtx, conversationID, msg.CreatedAt)
	})
	if err != nil {
		if errors.Is(err, messageserrors.ErrDuplicateClientRef) {
			if existing, findErr := s.repo.FindByClientRef(ctx, conversationID, input.ClientRef); findErr == nil {
				return existing, nil
			}
		}
		if apperrors.IsAppError(err) {
			return nil, err
		}
		s.cfg.Log.Error("Failed to append message", "conversation_id", conversationID, "error", err)
		return nil, apperrors.Internal("Failed to send message", err)
	}

	s.cfg.Log.Debug("Message appended",
		"id", msg.ID,
		"conversation_id", conversationID,
		"sender_id", senderID,
	)

	s.notifier.Notify(ctx, notify.Notification{
		Kind:           notify.KindMessageReceived,
		RecipientID:    conv.Counterpart(senderID),
		Title:          "New message",
		Body:           preview(msg.Content),
		ConversationID: conversationID,
		PropertyID:     conv.PropertyID,
		CreatedAt:      msg.CreatedAt,
	})
	return msg, nil
}

func (s *messageService) MarkSeen(ctx context.Context, conversationID, viewerID string) (int64, error) {
	if _, err := s.conversations.Get(ctx, conversationID, viewerID); err != nil {
		return 0, err
	}
	n, err := s.repo.MarkSeen(ctx, conversationID, viewerID)
	if err != nil {
		return 0, apperrors.Internal("Failed to mark messages as seen", err)
	}
	return n, nil
}

func (s *messageService) MarkDelivered(ctx context.Context, conversationID, viewerID string) (int64, error) {
	if _, err := s.conversations.Get(ctx, conversationID, viewerID); err != nil {
		return 0, err
	}
	n, err := s.repo.MarkDelivered(ctx, conversationID, viewerID)
	if err != nil {
		return 0, apperrors.Internal("Failed to mark messages as delivered", err)
	}
	return n, nil
}

func (s *messageService) enrichSenders(ctx context.Context, msgs []model.Message) {
	if len(msgs) == 0 {
		return
	}
	ids := make([]string, 0, 2)
	for i := range msgs {
		ids = append(ids, msgs[i].SenderID)
	}

	profiles, err := s.profiles.GetMany(ctx, mongodb.Unique(ids))
	if err != nil {
		transient := apperrors.TransientFetch("profiles", err)
		s.cfg.Log.Warn("Enrichment skipped", "code", transient.Code, "error", transient)
		return
	}
	for i := range msgs {
		if p, ok := profiles[msgs[i].SenderID]; ok {
			msgs[i].SenderName = sanitizer.NormalizeName(p.DisplayName)
		}
	}
}

func preview(content string) string {
	const limit = 120
	r := []rune(content)
	if len(r) <= limit {
		return content
	}
	return string(r[:limit]) + "…"
}
