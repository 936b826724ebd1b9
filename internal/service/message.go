package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/AnnoyBoT/internal/models"
)

const (
	commandAnnoy  = "annoy"
	commandCancel = "cancel"
)

// HandleMessage processes a message. Only the controlling group drives the
// conversation: it sets the invite code, starts an announcement with
// "annoy" and then supplies the announcement itself.
func (s *Service) HandleMessage(ctx context.Context, event models.MessageEvent) error {
	log := s.logger.WithFields(logrus.Fields{
		"event":    "message",
		"group_id": event.Source.GroupID,
		"user_id":  event.Source.UserID,
		"kind":     event.Message.Kind,
	})
	return s.finish("message", log, s.handleMessage(ctx, log, event))
}

func (s *Service) handleMessage(ctx context.Context, log *logrus.Entry, event models.MessageEvent) error {
	if !event.Source.IsGroup() {
		return ErrNotAGroupSource
	}
	if event.Source.UserID == "" {
		return fmt.Errorf("%w: no sender", ErrNotAGroupSource)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	controlling, err := s.registry.Load(ctx)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	if !controlling.IsControllingGroup(event.Source.GroupID) {
		return ErrNotControllingGroup
	}

	log = log.WithField("phase", controlling.Phase())
	msg := event.Message

	switch controlling.Phase() {
	case models.PhaseAwaitingInviteCode:
		return s.setInviteCode(ctx, log, controlling, event)
	case models.PhaseIdle:
		if msg.Kind == models.MessageText && isCommand(msg.Text, commandAnnoy) {
			return s.startAnnouncement(ctx, log, controlling, event)
		}
	case models.PhaseAwaitingAnnouncement:
		if controlling.IsAwaitingFrom(event.Source.UserID) {
			return s.captureAnnouncement(ctx, log, controlling, event)
		}
	}

	return errIgnored
}

// setInviteCode consumes the first text message of the controlling group
func (s *Service) setInviteCode(ctx context.Context, log *logrus.Entry, controlling *models.ControllingGroup, event models.MessageEvent) error {
	if event.Message.Kind != models.MessageText {
		return errIgnored
	}
	code := strings.TrimSpace(event.Message.Text)
	if code == "" {
		return errIgnored
	}

	controlling.InviteCode = code
	if err := s.registry.Save(ctx, controlling); err != nil {
		return fmt.Errorf("save invite code: %w", err)
	}

	log.Info("Invite code configured")

	return s.messenger.Reply(ctx, event.ReplyToken, []string{msgInviteCodeSet, msgInviteCodeNextStep})
}

func (s *Service) startAnnouncement(ctx context.Context, log *logrus.Entry, controlling *models.ControllingGroup, event models.MessageEvent) error {
	controlling.StartAnnouncement(event.Source.UserID)
	if err := s.registry.Save(ctx, controlling); err != nil {
		return fmt.Errorf("start announcement: %w", err)
	}

	log.Info("Waiting for announcement")

	return s.messenger.Reply(ctx, event.ReplyToken, []string{msgAnnoyTypes, msgAnnoyPrompt})
}

// captureAnnouncement relays the invoker's message. The prompt is cleared
// and saved before anything is sent.
func (s *Service) captureAnnouncement(ctx context.Context, log *logrus.Entry, controlling *models.ControllingGroup, event models.MessageEvent) error {
	controlling.ClearAnnouncement()
	if err := s.registry.Save(ctx, controlling); err != nil {
		return fmt.Errorf("clear announcement: %w", err)
	}

	msg := event.Message
	groupIDs := controlling.ReceivingGroupIDs()

	switch msg.Kind {
	case models.MessageText:
		if isCommand(msg.Text, commandCancel) {
			log.Info("Announcement cancelled")
			return s.messenger.Reply(ctx, event.ReplyToken, []string{msgCancelled})
		}

		if err := s.messenger.PushText(ctx, groupIDs, []string{strings.TrimSpace(msg.Text)}, false); err != nil {
			return fmt.Errorf("broadcast text: %w", err)
		}
		s.metrics.Broadcast(string(models.MessageText), len(groupIDs))

	case models.MessageImage:
		imageURL, err := s.storeImage(ctx, msg.ContentID)
		if err != nil {
			return err
		}

		if err := s.messenger.PushImage(ctx, groupIDs, imageURL, false); err != nil {
			return fmt.Errorf("broadcast image: %w", err)
		}
		s.metrics.Broadcast(string(models.MessageImage), len(groupIDs))

	default:
		log.WithError(ErrUnsupportedMessageType).Info("Announcement cancelled")
		return s.messenger.Reply(ctx, event.ReplyToken, []string{unsupportedText(msg.Kind)})
	}

	log.WithField("recipients", len(groupIDs)).Info("Announcement broadcast")

	return s.messenger.Reply(ctx, event.ReplyToken, recipientsReply(controlling))
}

// storeImage moves message content into object storage
func (s *Service) storeImage(ctx context.Context, contentID string) (string, error) {
	blob, err := s.content.Download(ctx, contentID)
	if err != nil {
		return "", fmt.Errorf("download content: %w", err)
	}
	defer func() {
		if err := blob.Remove(); err != nil {
			s.logger.WithError(err).WithField("path", blob.Path).Debug("Failed to remove downloaded content")
		}
	}()

	imageURL, err := s.uploader.Upload(ctx, blob)
	if err != nil {
		return "", fmt.Errorf("upload content: %w", err)
	}
	return imageURL, nil
}

func recipientsReply(controlling *models.ControllingGroup) []string {
	names := controlling.ReceivingGroupNames()
	if len(names) == 0 {
		return []string{msgNoRecipients}
	}
	return []string{msgRecipients, strings.Join(names, "\n")}
}

func unsupportedText(kind models.MessageKind) string {
	switch kind {
	case models.MessageVideo:
		return msgVideoUnsupported
	case models.MessageAudio:
		return msgAudioUnsupported
	case models.MessageFile:
		return msgFileUnsupported
	default:
		return msgOtherUnsupported
	}
}

func isCommand(text, command string) bool {
	return strings.EqualFold(strings.TrimSpace(text), command)
}
