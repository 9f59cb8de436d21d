package service

import (
	"context"
	"errors"
	"sort"
	"time"

	conversationserrors "darna/internal/conversations/errors"
	"darna/internal/conversations/repository"
	"darna/internal/directory"
	"darna/pkg/config"
	apperrors "darna/pkg/errors"
	"darna/pkg/model"
	"darna/pkg/sanitizer"
)

// MessageReader loads the authoritative message sets that views are derived
// from.
type MessageReader interface {
	FindByConversations(ctx context.Context, conversationIDs []string) (map[string][]model.Message, error)
}

type ConversationService interface {
	// Refresh builds every conversation view for viewerID, most recent first.
	Refresh(ctx context.Context, viewerID string) ([]model.ConversationView, error)
	RefreshOne(ctx context.Context, viewerID, conversationID string) (*model.ConversationView, error)
	TotalUnread(ctx context.Context, viewerID string) (int, error)
	FindOrCreate(ctx context.Context, clientID, ownerID, propertyID string) (*model.Conversation, error)
	Get(ctx context.Context, id, viewerID string) (*model.Conversation, error)
	TouchLastMessage(ctx context.Context, id string, at time.Time) error
}

type conversationService struct {
	repo     repository.ConversationRepository
	messages MessageReader
	profiles directory.ProfileLookup
	cfg      *config.Config
}

func NewConversationService(
	repo repository.ConversationRepository,
	messages MessageReader,
	profiles directory.ProfileLookup,
	cfg *config.Config,
) ConversationService {
	return &conversationService{
		repo:     repo,
		messages: messages,
		profiles: profiles,
		cfg:      cfg,
	}
}

func (s *conversationService) Refresh(ctx context.Context, viewerID string) ([]model.ConversationView, error) {
	if viewerID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}

	convs, err := s.repo.FindByParticipant(ctx, viewerID)
	if err != nil {
		s.cfg.Log.Error("Failed to list conversations", "viewer_id", viewerID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve conversations", err)
	}
	return s.buildViews(ctx, viewerID, convs)
}

func (s *conversationService) RefreshOne(ctx context.Context, viewerID, conversationID string) (*model.ConversationView, error) {
	conv, err := s.Get(ctx, conversationID, viewerID)
	if err != nil {
		return nil, err
	}
	views, err := s.buildViews(ctx, viewerID, []model.Conversation{*conv})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *conversationService) TotalUnread(ctx context.Context, viewerID string) (int, error) {
	views, err := s.Refresh(ctx, viewerID)
	if err != nil {
		return 0, err
	}
	return SumUnread(views), nil
}

func (s *conversationService) buildViews(ctx context.Context, viewerID string, convs []model.Conversation) ([]model.ConversationView, error) {
	views := make([]model.ConversationView, 0, len(convs))
	if len(convs) == 0 {
		return views, nil
	}

	ids := make([]string, 0, len(convs))
	others := make([]string, 0, len(convs))
	for i := range convs {
		ids = append(ids, convs[i].ID)
		others = append(others, convs[i].Counterpart(viewerID))
	}

	byConv, err := s.messages.FindByConversations(ctx, ids)
	if err != nil {
		s.cfg.Log.Error("Failed to load messages for conversations", "viewer_id", viewerID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve messages", err)
	}

	profiles, err := s.profiles.GetMany(ctx, others)
	if err != nil {
		transient := apperrors.TransientFetch("profiles", err)
		s.cfg.Log.Warn("Enrichment skipped", "code", transient.Code, "error", transient)
	}

	for _, conv := range convs {
		view := model.BuildConversationView(conv, viewerID, byConv[conv.ID])
		if p, ok := profiles[view.OtherUserID]; ok {
			p.DisplayName = sanitizer.NormalizeName(p.DisplayName)
			view.OtherUser = &p
		}
		views = append(views, view)
	}

	SortViews(views)
	return views, nil
}

func (s *conversationService) FindOrCreate(ctx context.Context, clientID, ownerID, propertyID string) (*model.Conversation, error) {
	clientID = sanitizer.TrimSpace(clientID)
	ownerID = sanitizer.TrimSpace(ownerID)
	propertyID = sanitizer.TrimSpace(propertyID)

	if clientID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}
	if ownerID == "" {
		return nil, apperrors.Validation("owner_id is required", map[string]any{"field": "OwnerID"})
	}
	if clientID == ownerID {
		return nil, apperrors.Validation("You cannot start a conversation with yourself", map[string]any{"field": "OwnerID"})
	}

	existing, err := s.repo.FindByTriple(ctx, clientID, ownerID, propertyID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, conversationserrors.ErrNotFound) {
		return nil, apperrors.Internal("Failed to look up conversation", err)
	}

	conv := &model.Conversation{
		ClientID:   clientID,
		OwnerID:    ownerID,
		PropertyID: propertyID,
	}
	err = s.repo.Create(ctx, conv)
	if err == nil {
		s.cfg.Log.Info("Conversation created",
			"id", conv.ID,
			"client_id", clientID,
			"owner_id", ownerID,
			"property_id", propertyID,
		)
		return conv, nil
	}
	if !errors.Is(err, conversationserrors.ErrDuplicate) {
		s.cfg.Log.Error("Failed to create conversation", "error", err)
		return nil, apperrors.Internal("Failed to create conversation", err)
	}

	// Lost the insert race; the winner's row is the conversation.
	existing, err = s.repo.FindByTriple(ctx, clientID, ownerID, propertyID)
	if err != nil {
		return nil, apperrors.Internal("Failed to load conversation after concurrent create", err)
	}
	return existing, nil
}

func (s *conversationService) Get(ctx context.Context, id, viewerID string) (*model.Conversation, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Conversation ID cannot be empty")
	}
	conv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(id, err)
	}
	if !conv.HasParticipant(viewerID) {
		return nil, apperrors.Forbidden("You are not a participant of this conversation")
	}
	return conv, nil
}

func (s *conversationService) TouchLastMessage(ctx context.Context, id string, at time.Time) error {
	if err := s.repo.TouchLastMessage(ctx, id, at); err != nil {
		return mapRepoError(id, err)
	}
	return nil
}

func mapRepoError(id string, err error) error {
	switch {
	case errors.Is(err, conversationserrors.ErrNotFound):
		return apperrors.NotFoundWithID("Conversation", id)
	case errors.Is(err, conversationserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid conversation ID format")
	default:
		return apperrors.Internal("Failed to access conversation", err)
	}
}

// SortViews orders views by last activity, newest first.
func SortViews(views []model.ConversationView) {
	sort.SliceStable(views, func(i, j int) bool {
		if !views[i].LastMessageAt.Equal(views[j].LastMessageAt) {
			return views[i].LastMessageAt.After(views[j].LastMessageAt)
		}
		return views[i].ID > views[j].ID
	})
}

func SumUnread(views []model.ConversationView) int {
	total := 0
	for i := range views {
		total += views[i].UnreadCount
	}
	return total
}
