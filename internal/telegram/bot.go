package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/Kerhoff/AnnoyBoT/internal/models"
)

// SecretTokenHeader carries the webhook secret on every delivery
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// ErrInvalidSignature is returned for webhook deliveries with a wrong secret
var ErrInvalidSignature = errors.New("invalid webhook signature")

var allowedUpdates = []string{"message", "my_chat_member"}

// maxWebhookBody caps the size of a single webhook delivery
const maxWebhookBody = 1 << 20

// Bot wraps the Telegram bot API
type Bot struct {
	api      *tgbotapi.BotAPI
	logger   *logrus.Logger
	ready    *atomic.Bool
	client   *http.Client
	fileLink func(fileID string) (string, error)
	tempDir  string
}

// NewBot creates a new Telegram bot instance
func NewBot(token string, logger *logrus.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	return newBot(api, logger), nil
}

// NewBotWithEndpoint creates a bot talking to a custom Bot API server
func NewBotWithEndpoint(token, endpoint string, logger *logrus.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	return newBot(api, logger), nil
}

func newBot(api *tgbotapi.BotAPI, logger *logrus.Logger) *Bot {
	logger.Infof("Authorized on account %s", api.Self.UserName)

	return &Bot{
		api:      api,
		logger:   logger,
		ready:    atomic.NewBool(false),
		client:   http.DefaultClient,
		fileLink: api.GetFileDirectURL,
	}
}

// Ready reports whether the bot is receiving updates
func (b *Bot) Ready() bool {
	return b.ready.Load()
}

// SetWebhook registers the webhook URL together with its secret token
func (b *Bot) SetWebhook(webhookURL, secret string) error {
	params := tgbotapi.Params{}
	params["url"] = webhookURL
	params.AddNonEmpty("secret_token", secret)
	if err := params.AddInterface("allowed_updates", allowedUpdates); err != nil {
		return fmt.Errorf("failed to encode allowed updates: %w", err)
	}

	if _, err := b.api.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}

	b.ready.Store(true)
	b.logger.Infof("Webhook set to %s", webhookURL)
	return nil
}

// Start starts the bot with long polling. Updates are handled one at a time
// in arrival order.
func (b *Bot) Start(ctx context.Context, handler EventHandler) error {
	// Delete webhook if exists and use polling
	_, err := b.api.Request(tgbotapi.DeleteWebhookConfig{})
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = allowedUpdates

	updates := b.api.GetUpdatesChan(u)
	router := NewRouter(b.logger, handler)

	b.ready.Store(true)
	defer b.ready.Store(false)
	b.logger.Info("Bot started with long polling")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Stopping bot...")
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, router, update)
		}
	}
}

// WebhookHandler serves webhook deliveries. Every delivery must carry secret;
// an empty secret rejects them all. Handler failures are logged and still
// acknowledged with 200.
func (b *Bot) WebhookHandler(handler EventHandler, secret string) http.Handler {
	router := NewRouter(b.logger, handler)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := verifySecret(r, secret); err != nil {
			b.logger.WithField("remote", r.RemoteAddr).Warn("Rejected webhook delivery")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		var update tgbotapi.Update
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&update); err != nil {
			http.Error(w, "invalid update payload", http.StatusBadRequest)
			return
		}

		b.handleUpdate(r.Context(), router, update)
		w.WriteHeader(http.StatusOK)
	})
}

func verifySecret(r *http.Request, secret string) error {
	got := r.Header.Get(SecretTokenHeader)
	if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// handleUpdate processes incoming updates
func (b *Bot) handleUpdate(ctx context.Context, router *Router, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorf("Panic in update handler: %v", r)
		}
	}()

	if err := router.HandleUpdate(ctx, update); err != nil {
		b.logger.WithError(err).WithField("update_id", update.UpdateID).Error("Failed to handle update")
	}
}

// Reply answers the message identified by token. Only the first text quotes
// the incoming message.
func (b *Bot) Reply(ctx context.Context, token models.ReplyToken, texts []string) error {
	chatID, messageID, err := parseReplyToken(token)
	if err != nil {
		return err
	}

	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(text))
		if i == 0 {
			msg.ReplyToMessageID = messageID
		}
		if _, err := b.api.Send(msg); err != nil {
			return fmt.Errorf("failed to send reply: %w", err)
		}
	}
	return nil
}

// PushText sends texts to every group. A failing group does not stop the
// others; all failures are returned together.
func (b *Bot) PushText(ctx context.Context, groupIDs []string, texts []string, silent bool) error {
	return b.push(ctx, groupIDs, func(chatID int64) error {
		for _, text := range texts {
			msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(text))
			msg.DisableNotification = silent
			if _, err := b.api.Send(msg); err != nil {
				return err
			}
		}
		return nil
	})
}

// PushImage sends the image at imageURL to every group
func (b *Bot) PushImage(ctx context.Context, groupIDs []string, imageURL string, silent bool) error {
	return b.push(ctx, groupIDs, func(chatID int64) error {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(imageURL))
		photo.DisableNotification = silent
		_, err := b.api.Send(photo)
		return err
	})
}

func (b *Bot) push(ctx context.Context, groupIDs []string, send func(chatID int64) error) error {
	var result *multierror.Error

	for _, groupID := range groupIDs {
		if err := ctx.Err(); err != nil {
			return multierror.Append(result, err)
		}

		chatID, err := parseChatID(groupID)
		if err == nil {
			err = send(chatID)
		}
		if err != nil {
			b.logger.WithError(err).WithField("group_id", groupID).Warn("Failed to push message")
			result = multierror.Append(result, fmt.Errorf("group %s: %w", groupID, err))
		}
	}

	return result.ErrorOrNil()
}
