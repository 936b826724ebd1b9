package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/AnnoyBoT/internal/models"
)

// Chat member statuses reported in my_chat_member updates
const (
	statusLeft       = "left"
	statusKicked     = "kicked"
	statusRestricted = "restricted"
)

// EventHandler consumes classified chat events
type EventHandler interface {
	HandleJoin(ctx context.Context, event models.JoinEvent) error
	HandleLeave(ctx context.Context, event models.LeaveEvent) error
	HandleMessage(ctx context.Context, event models.MessageEvent) error
	HandleMigrate(ctx context.Context, event models.MigrateEvent) error
}

// Router turns Telegram updates into chat events
type Router struct {
	logger  *logrus.Logger
	handler EventHandler
}

// NewRouter creates a new update router
func NewRouter(logger *logrus.Logger, handler EventHandler) *Router {
	return &Router{
		logger:  logger,
		handler: handler,
	}
}

// HandleUpdate classifies the update and hands it to the event handler.
// Updates that carry no join, leave, migrate or message event are skipped.
func (r *Router) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	switch {
	case update.MyChatMember != nil:
		return r.handleMembership(ctx, update.MyChatMember)
	case update.Message != nil:
		return r.handleMessage(ctx, update.Message)
	}
	return nil
}

func (r *Router) handleMembership(ctx context.Context, member *tgbotapi.ChatMemberUpdated) error {
	source := sourceOf(&member.Chat, &member.From)

	r.logger.WithFields(logrus.Fields{
		"chat_id":    member.Chat.ID,
		"old_status": member.OldChatMember.Status,
		"new_status": member.NewChatMember.Status,
	}).Info("Received membership update")

	switch {
	case joined(member):
		return r.handler.HandleJoin(ctx, models.JoinEvent{
			Source:     source,
			ReplyToken: replyToken(member.Chat.ID, 0),
		})
	case left(member):
		return r.handler.HandleLeave(ctx, models.LeaveEvent{Source: source})
	}
	return nil
}

func (r *Router) handleMessage(ctx context.Context, message *tgbotapi.Message) error {
	if message.Chat == nil {
		return nil
	}

	if message.MigrateToChatID != 0 {
		r.logger.WithFields(logrus.Fields{
			"chat_id":     message.Chat.ID,
			"new_chat_id": message.MigrateToChatID,
		}).Info("Received chat migration")

		return r.handler.HandleMigrate(ctx, models.MigrateEvent{
			Source:     sourceOf(message.Chat, nil),
			NewGroupID: strconv.FormatInt(message.MigrateToChatID, 10),
		})
	}

	content, ok := messageContent(message)
	if !ok {
		return nil
	}

	source := sourceOf(message.Chat, message.From)
	if message.SenderChat != nil {
		// Anonymous admins and linked channels post on behalf of a chat.
		source.UserID = senderChatID(message.SenderChat.ID)
	}

	r.logger.WithFields(logrus.Fields{
		"chat_id":    message.Chat.ID,
		"message_id": message.MessageID,
		"kind":       content.Kind,
	}).Debug("Received message")

	return r.handler.HandleMessage(ctx, models.MessageEvent{
		Source:     source,
		Message:    content,
		ReplyToken: replyToken(message.Chat.ID, message.MessageID),
	})
}

func joined(member *tgbotapi.ChatMemberUpdated) bool {
	return isOut(member.OldChatMember) && !isOut(member.NewChatMember)
}

func left(member *tgbotapi.ChatMemberUpdated) bool {
	return !isOut(member.OldChatMember) && isOut(member.NewChatMember)
}

// isOut reports whether the bot is outside the chat. A restricted member is
// only inside while IsMember is set.
func isOut(member tgbotapi.ChatMember) bool {
	switch member.Status {
	case "", statusLeft, statusKicked:
		return true
	case statusRestricted:
		return !member.IsMember
	}
	return false
}

func senderChatID(chatID int64) string {
	return "chat:" + strconv.FormatInt(chatID, 10)
}

func sourceOf(chat *tgbotapi.Chat, from *tgbotapi.User) models.Source {
	source := models.Source{
		GroupID:   strconv.FormatInt(chat.ID, 10),
		GroupName: chat.Title,
	}
	switch {
	case chat.IsGroup() || chat.IsSuperGroup():
		source.Type = models.SourceGroup
	case chat.IsChannel():
		source.Type = models.SourceChannel
	default:
		source.Type = models.SourceUser
	}
	if from != nil {
		source.UserID = strconv.FormatInt(from.ID, 10)
	}
	return source
}

// messageContent maps a message to its announcement kind. Service messages
// such as member joins or title changes carry no content and are skipped.
func messageContent(message *tgbotapi.Message) (models.Message, bool) {
	switch {
	case len(message.Photo) > 0:
		// Photo sizes are ordered from smallest to largest.
		largest := message.Photo[len(message.Photo)-1]
		return models.Message{Kind: models.MessageImage, ContentID: largest.FileID}, true
	case message.Video != nil:
		return models.Message{Kind: models.MessageVideo, ContentID: message.Video.FileID}, true
	case message.VideoNote != nil:
		return models.Message{Kind: models.MessageVideo, ContentID: message.VideoNote.FileID}, true
	case message.Animation != nil:
		return models.Message{Kind: models.MessageVideo, ContentID: message.Animation.FileID}, true
	case message.Audio != nil:
		return models.Message{Kind: models.MessageAudio, ContentID: message.Audio.FileID}, true
	case message.Voice != nil:
		return models.Message{Kind: models.MessageAudio, ContentID: message.Voice.FileID}, true
	case message.Document != nil:
		return models.Message{Kind: models.MessageFile, ContentID: message.Document.FileID}, true
	case message.Text != "":
		return models.Message{Kind: models.MessageText, Text: message.Text}, true
	case message.Sticker != nil, message.Location != nil, message.Contact != nil,
		message.Poll != nil, message.Venue != nil:
		return models.Message{Kind: models.MessageOther}, true
	}
	return models.Message{}, false
}

// replyToken encodes where a reply goes. A zero messageID replies to the
// chat without quoting a message.
func replyToken(chatID int64, messageID int) models.ReplyToken {
	if messageID == 0 {
		return models.ReplyToken(strconv.FormatInt(chatID, 10))
	}
	return models.ReplyToken(fmt.Sprintf("%d:%d", chatID, messageID))
}

func parseReplyToken(token models.ReplyToken) (int64, int, error) {
	chatPart, messagePart, hasMessage := strings.Cut(string(token), ":")

	chatID, err := strconv.ParseInt(chatPart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid reply token %q: %w", token, err)
	}
	if !hasMessage {
		return chatID, 0, nil
	}

	messageID, err := strconv.Atoi(messagePart)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid reply token %q: %w", token, err)
	}
	return chatID, messageID, nil
}

func parseChatID(groupID string) (int64, error) {
	chatID, err := strconv.ParseInt(groupID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid group id %q: %w", groupID, err)
	}
	return chatID, nil
}
