package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/AnnoyBoT/internal/metrics"
	"github.com/Kerhoff/AnnoyBoT/internal/models"
	"github.com/Kerhoff/AnnoyBoT/internal/repository"
)

// inviteCodeLength is the number of hex characters of a suggested invite code
const inviteCodeLength = 8

// Messenger sends messages through the chat platform
type Messenger interface {
	Reply(ctx context.Context, token models.ReplyToken, texts []string) error
	PushText(ctx context.Context, groupIDs []string, texts []string, silent bool) error
	PushImage(ctx context.Context, groupIDs []string, imageURL string, silent bool) error
}

// ContentFetcher downloads the binary content attached to a message
type ContentFetcher interface {
	Download(ctx context.Context, contentID string) (*models.Blob, error)
}

// Uploader stores a blob and returns a durable URL for it
type Uploader interface {
	Upload(ctx context.Context, blob *models.Blob) (string, error)
}

// Config holds the service settings that do not come from collaborators
type Config struct {
	// DashboardURL is the activation page linked from receiving groups
	DashboardURL string
	// Now defaults to time.Now
	Now func() time.Time
}

// Service is the conversation state machine. It owns the group registry
// and decides which replies and broadcasts each chat event produces.
type Service struct {
	// mu serializes every read-modify-write of the registry record
	mu        sync.Mutex
	registry  repository.RegistryRepository
	messenger Messenger
	content   ContentFetcher
	uploader  Uploader
	metrics   *metrics.Metrics
	logger    *logrus.Logger
	validate  *validator.Validate
	cfg       Config
}

// New creates a new Service with all required dependencies.
func New(
	registry repository.RegistryRepository,
	messenger Messenger,
	content ContentFetcher,
	uploader Uploader,
	m *metrics.Metrics,
	logger *logrus.Logger,
	cfg Config,
) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		registry:  registry,
		messenger: messenger,
		content:   content,
		uploader:  uploader,
		metrics:   m,
		logger:    logger,
		validate:  validator.New(),
		cfg:       cfg,
	}
}

// HandleJoin processes the bot being added to a chat. The first group ever
// joined becomes the controlling group.
func (s *Service) HandleJoin(ctx context.Context, event models.JoinEvent) error {
	log := s.logger.WithFields(logrus.Fields{
		"event":    "join",
		"group_id": event.Source.GroupID,
	})
	return s.finish("join", log, s.handleJoin(ctx, log, event))
}

func (s *Service) handleJoin(ctx context.Context, log *logrus.Entry, event models.JoinEvent) error {
	if !event.Source.IsGroup() {
		return ErrNotAGroupSource
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.registry.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check registry: %w", err)
	}

	group := event.Source.Group()

	if !exists {
		log.Info("Joined controlling group")

		if err := s.registry.Save(ctx, models.NewControllingGroup(group)); err != nil {
			return fmt.Errorf("create controlling group: %w", err)
		}

		return s.messenger.Reply(ctx, event.ReplyToken, []string{
			msgOnboardingUsage,
			msgOnboardingInviteCode,
			GenerateInviteCode(s.cfg.Now()),
			msgOnboardingPrompt,
		})
	}

	log.Info("Joined receiving group")

	link, err := DashboardLink(s.cfg.DashboardURL, group)
	if err != nil {
		return err
	}

	return s.messenger.Reply(ctx, event.ReplyToken, []string{
		msgReceivingInfo,
		fmt.Sprintf(msgReceivingDashboard, link),
	})
}

// HandleLeave processes the bot being removed from a chat. Only receiving
// groups are unsubscribed; leave events from any other group are dropped.
func (s *Service) HandleLeave(ctx context.Context, event models.LeaveEvent) error {
	log := s.logger.WithFields(logrus.Fields{
		"event":    "leave",
		"group_id": event.Source.GroupID,
	})
	return s.finish("leave", log, s.handleLeave(ctx, log, event))
}

func (s *Service) handleLeave(ctx context.Context, log *logrus.Entry, event models.LeaveEvent) error {
	if !event.Source.IsGroup() {
		return ErrNotAGroupSource
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	controlling, err := s.registry.Load(ctx)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	removed, ok := controlling.RemoveReceivingGroup(event.Source.Group())
	if !ok {
		return ErrNotReceivingGroup
	}

	if err := s.registry.Save(ctx, controlling); err != nil {
		return fmt.Errorf("remove receiving group: %w", err)
	}

	log.WithField("group_name", removed.GroupName).Info("Receiving group removed")

	return s.messenger.PushText(ctx,
		[]string{controlling.GroupID},
		[]string{fmt.Sprintf(msgLeft, removed.GroupName)},
		false,
	)
}

// HandleMigrate follows a group to its new id. The controlling group and
// receiving groups are both rewritten; other groups are dropped.
func (s *Service) HandleMigrate(ctx context.Context, event models.MigrateEvent) error {
	log := s.logger.WithFields(logrus.Fields{
		"event":        "migrate",
		"group_id":     event.Source.GroupID,
		"new_group_id": event.NewGroupID,
	})
	return s.finish("migrate", log, s.handleMigrate(ctx, log, event))
}

func (s *Service) handleMigrate(ctx context.Context, log *logrus.Entry, event models.MigrateEvent) error {
	if !event.Source.IsGroup() || event.NewGroupID == "" {
		return ErrNotAGroupSource
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.registry.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check registry: %w", err)
	}
	if !exists {
		return errIgnored
	}

	controlling, err := s.registry.Load(ctx)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	if !controlling.MigrateGroup(event.Source.GroupID, event.NewGroupID) {
		return ErrNotReceivingGroup
	}

	if err := s.registry.Save(ctx, controlling); err != nil {
		return fmt.Errorf("migrate group: %w", err)
	}

	log.Info("Group migrated")
	return nil
}

// finish logs the outcome of an event and decides what reaches the transport:
// dropped and ignored events are swallowed, everything else propagates.
func (s *Service) finish(kind string, log *logrus.Entry, err error) error {
	switch {
	case err == nil:
		s.metrics.EventHandled(kind, metrics.OutcomeHandled)
		return nil
	case errors.Is(err, errIgnored):
		log.Debug("Event ignored")
		s.metrics.EventHandled(kind, metrics.OutcomeIgnored)
		return nil
	case isDropped(err):
		log.WithError(err).Warn("Event dropped")
		s.metrics.EventHandled(kind, metrics.OutcomeDropped)
		return nil
	default:
		s.metrics.EventHandled(kind, metrics.OutcomeFailed)
		return fmt.Errorf("%s event: %w", kind, err)
	}
}

// GenerateInviteCode derives a short random-looking string from t. It is
// only suggested to the admins and never stored.
func GenerateInviteCode(t time.Time) string {
	sum := sha256.Sum256([]byte(t.Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])[:inviteCodeLength]
}

// DashboardLink returns the activation page URL for group
func DashboardLink(dashboardURL string, group models.Group) (string, error) {
	u, err := url.Parse(dashboardURL)
	if err != nil {
		return "", fmt.Errorf("parse dashboard url: %w", err)
	}
	q := u.Query()
	q.Set("group_id", group.GroupID)
	q.Set("group_name", group.GroupName)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
