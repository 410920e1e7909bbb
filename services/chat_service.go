package services

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"time"

	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/domain/event"
	apperrors "chat-hub/errors"
	"chat-hub/moderation"
	"chat-hub/observability"
	"chat-hub/repositories"
	"chat-hub/runtime"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IChatService interface {
	Send(ctx context.Context, cmd domain.SendCommand) (domain.Message, error)
	Conversation(ctx context.Context, cmd domain.FetchCommand) ([]domain.Message, *string, error)
	GroupMessages(ctx context.Context, cmd domain.FetchCommand) ([]domain.Message, *string, error)
	MarkRead(ctx context.Context, cmd domain.MarkReadCommand) error
	MarkSeen(ctx context.Context, cmd domain.MarkSeenCommand) error
	UnreadCounts(ctx context.Context, viewerID string) (map[string]int, error)
	Attach(userID string, conn contract.Conn) int64
	Detach(userID string, connID int64)
	OnlineUsers() []string
}

// ChatService implements every operation of the messaging core. Failures
// before and during persistence propagate to the caller; everything past the
// Dispatch call is best-effort live push and stays contained.
type ChatService struct {
	log          *slog.Logger
	validate     *validator.Validate
	moderator    *moderation.Moderator
	repository   repositories.IMessageRepository
	orchestrator *runtime.Orchestrator
	monitoring   *observability.Monitoring
}

func NewChatService(log *slog.Logger,
	moderator *moderation.Moderator,
	repository repositories.IMessageRepository,
	orchestrator *runtime.Orchestrator,
	monitoring *observability.Monitoring) *ChatService {
	return &ChatService{
		log:          log,
		validate:     validator.New(),
		moderator:    moderator,
		repository:   repository,
		orchestrator: orchestrator,
		monitoring:   monitoring,
	}
}

// Send validates, censors and persists a message, then triggers fan-out.
// The returned message carries the server-assigned id and timestamp; clients
// wait for its echo instead of rendering a local copy.
func (s *ChatService) Send(_ context.Context, cmd domain.SendCommand) (domain.Message, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return domain.Message{}, err
	}
	if cmd.Text == "" && len(cmd.Image) == 0 {
		// Tolerated, but worth a trace: the UI normally prevents it.
		s.log.Debug("empty message accepted", "sender", cmd.SenderID)
	}

	image, err := encodeImage(cmd.Image)
	if err != nil {
		return domain.Message{}, err
	}

	text, _ := s.moderator.Censor(cmd.Text)

	m := domain.Message{
		ID:         uuid.New(),
		SenderID:   cmd.SenderID,
		ReceiverID: cmd.ReceiverID,
		ChatType:   cmd.ChatType,
		Text:       text,
		Image:      image,
		CreatedAt:  time.Now().UTC(),
		Status:     domain.StatusSent,
	}

	// Durability first: no fan-out is attempted for a message that failed
	// to persist, and the sender sees the failure synchronously.
	if err := s.repository.Store(m); err != nil {
		return domain.Message{}, err
	}

	s.monitoring.IncrSent()
	s.orchestrator.Dispatch(event.MessageCreated{Message: m})
	return m, nil
}

// Conversation returns one page of the direct history between viewer and
// peer, newest first. Reading is a separate, explicit MarkRead call.
func (s *ChatService) Conversation(_ context.Context, cmd domain.FetchCommand) ([]domain.Message, *string, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, nil, err
	}
	if cmd.PeerID == "" {
		return nil, nil, apperrors.ErrMissingReceiver
	}
	return s.repository.Conversation(cmd.ViewerID, cmd.PeerID, cmd.Cursor)
}

// GroupMessages returns one page of the global channel, newest first.
func (s *ChatService) GroupMessages(_ context.Context, cmd domain.FetchCommand) ([]domain.Message, *string, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, nil, err
	}
	return s.repository.GroupMessages(cmd.Cursor)
}

// MarkRead promotes every unread message from peer to viewer, notifies the
// peer's connections, and pushes the viewer's refreshed counters. Replays
// find nothing to promote and only refresh the counters again.
func (s *ChatService) MarkRead(_ context.Context, cmd domain.MarkReadCommand) error {
	if err := s.validate.Struct(cmd); err != nil {
		return err
	}

	at := time.Now().UTC()
	promoted, err := s.repository.MarkRead(cmd.ViewerID, cmd.PeerID, at)
	if err != nil {
		return err
	}

	if len(promoted) > 0 {
		s.monitoring.AddRead(len(promoted))
		s.orchestrator.Dispatch(event.MessagesRead{
			ViewerID: cmd.ViewerID,
			PeerID:   cmd.PeerID,
			MessageIDs: lo.Map(promoted, func(m domain.Message, _ int) uuid.UUID {
				return m.ID
			}),
			At: at,
		})
	}

	counts, err := s.repository.UnreadCounts(cmd.ViewerID)
	if err != nil {
		return err
	}
	s.orchestrator.Dispatch(event.UnreadCounts{ViewerID: cmd.ViewerID, Counts: counts})
	return nil
}

// MarkSeen records group-message seen state. Set semantics absorb replays; a
// receipt is only pushed when membership actually grew.
func (s *ChatService) MarkSeen(_ context.Context, cmd domain.MarkSeenCommand) error {
	if err := s.validate.Struct(cmd); err != nil {
		return err
	}
	id, err := uuid.Parse(cmd.MessageID)
	if err != nil {
		return err
	}

	m, changed, err := s.repository.MarkSeen(id, cmd.ViewerID)
	if err != nil {
		return err
	}
	if changed {
		s.monitoring.IncrSeen()
		s.orchestrator.Dispatch(event.MessageSeen{
			MessageID: m.ID,
			SenderID:  m.SenderID,
			ViewerID:  cmd.ViewerID,
		})
	}
	return nil
}

// UnreadCounts is a pure read of store state, safe to call at any time.
func (s *ChatService) UnreadCounts(_ context.Context, viewerID string) (map[string]int, error) {
	return s.repository.UnreadCounts(viewerID)
}

func (s *ChatService) Attach(userID string, conn contract.Conn) int64 {
	return s.orchestrator.Attach(userID, conn)
}

func (s *ChatService) Detach(userID string, connID int64) {
	s.orchestrator.Detach(userID, connID)
}

func (s *ChatService) OnlineUsers() []string {
	return s.orchestrator.Registry().OnlineUserIDs()
}

// encodeImage sniffs the attachment and stores it as a data URL. Anything
// that is not an image is rejected before persistence.
func encodeImage(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	mt := mimetype.Detect(raw)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", apperrors.ErrNotAnImage
	}
	return "data:" + mt.String() + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}
