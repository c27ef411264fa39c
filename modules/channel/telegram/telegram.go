package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/flemzord/omnihear/internal/channel"
	"github.com/flemzord/omnihear/internal/core"
	"github.com/flemzord/omnihear/internal/gateway"
	"github.com/flemzord/omnihear/internal/security"
	"github.com/flemzord/omnihear/pkg/message"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Telegram{})
}

var (
	_ channel.Channel          = (*Telegram)(nil)
	_ channel.TypingChannel    = (*Telegram)(nil)
	_ channel.MediaFetcher     = (*Telegram)(nil)
	_ channel.CallbackAnswerer = (*Telegram)(nil)
	_ core.Configurable        = (*Telegram)(nil)
	_ core.Provisioner         = (*Telegram)(nil)
	_ core.Validator           = (*Telegram)(nil)
	_ core.Starter             = (*Telegram)(nil)
	_ core.Stopper             = (*Telegram)(nil)
)

// channelName is the name carried on messages from this channel.
const channelName = "telegram"

// Telegram implements the Telegram Bot API channel.
type Telegram struct {
	config    Config
	client    *Client
	logger    *slog.Logger
	allowList *channel.AllowList
	inbox     func(message.InboundMessage) error
	appCtx    *core.AppContext

	poller *Poller // polling mode only
}

// ModuleInfo implements core.Module.
func (t *Telegram) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "channel.telegram",
		New: func() core.Module { return &Telegram{} },
	}
}

// Configure implements core.Configurable.
func (t *Telegram) Configure(node *yaml.Node) error {
	if err := node.Decode(&t.config); err != nil {
		return fmt.Errorf("telegram: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (t *Telegram) Provision(ctx *core.AppContext) error {
	t.config.defaults()
	t.appCtx = ctx
	t.logger = ctx.Logger

	httpClient, err := newHTTPClient(t.config.ProxyURL, t.config.RequestTimeout)
	if err != nil {
		return err
	}
	t.client = NewClient(t.config.Token, t.config.APIURL, httpClient)

	users := t.config.AllowUsers
	if t.config.AllowAll {
		users = append([]string{channel.Wildcard}, users...)
	}
	t.allowList = channel.NewAllowList(users, t.config.AllowGroups)

	if creds, ok := core.Service[*security.CredentialStore](ctx, "security.credentials"); ok && t.config.Token != "" {
		creds.Set("telegram.token", t.config.Token)
	}
	return nil
}

// Validate implements core.Validator.
func (t *Telegram) Validate() error {
	return t.config.validate()
}

// Start implements core.Starter. The token is checked with getMe before
// updates start flowing.
func (t *Telegram) Start() error {
	if t.inbox == nil {
		return channel.ErrNoInbox
	}

	ctx := context.Background()
	me, err := t.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram: getMe failed (check token): %w", err)
	}
	t.logger.Info("telegram bot authenticated", "id", me.ID, "username", me.Username)

	h := &updateHandler{
		inbox:       t.inbox,
		allowList:   t.allowList,
		logger:      t.logger,
		botUsername: me.Username,
	}
	if t.config.Mode == modeWebhook {
		return t.startWebhook(ctx, h)
	}
	t.startPolling(ctx, h)
	return nil
}

func (t *Telegram) startPolling(ctx context.Context, h *updateHandler) {
	// getUpdates fails with 409 while a webhook is set.
	if err := t.client.DeleteWebhook(ctx); err != nil {
		t.logger.Warn("telegram: deleteWebhook before polling failed", "error", err)
	}
	t.poller = NewPoller(t.client, h, t.logger, t.config)
	t.poller.Start()
	t.logger.Info("telegram polling started", "timeout", t.config.PollingTimeout)
}

func (t *Telegram) startWebhook(ctx context.Context, h *updateHandler) error {
	webhooks, ok := core.Service[*gateway.WebhookDispatcher](t.appCtx, gateway.ServiceWebhooks)
	if !ok {
		return errors.New("telegram: webhook mode needs the gateway.http module")
	}
	if t.config.WebhookSecret == "" {
		t.logger.Warn("telegram webhook running without webhook_secret")
	}
	// Telegram proves itself with the secret token header, not an HMAC.
	webhooks.Register(channelName, NewWebhookReceiver(h, t.config.WebhookSecret), "")

	err := t.client.SetWebhook(ctx, SetWebhookRequest{
		URL:            t.config.WebhookURL,
		SecretToken:    t.config.WebhookSecret,
		AllowedUpdates: t.config.AllowedUpdates,
	})
	if err != nil {
		return fmt.Errorf("telegram: setWebhook failed: %w", err)
	}
	t.logger.Info("telegram webhook configured", "url", t.config.WebhookURL)
	return nil
}

// Stop implements core.Stopper.
func (t *Telegram) Stop(ctx context.Context) error {
	if t.poller != nil {
		t.poller.Stop()
	}
	if t.config.Mode == modeWebhook {
		if err := t.client.DeleteWebhook(ctx); err != nil {
			t.logger.Warn("telegram: deleteWebhook on shutdown failed", "error", err)
		}
	}
	return nil
}

// Send implements channel.Channel.
func (t *Telegram) Send(ctx context.Context, msg message.OutboundMessage) error {
	return t.sendOutbound(ctx, msg)
}

// SetInbox implements channel.Channel.
func (t *Telegram) SetInbox(fn func(msg message.InboundMessage) error) {
	t.inbox = fn
}

// SendTyping implements channel.TypingChannel.
func (t *Telegram) SendTyping(ctx context.Context, chat message.Chat, action string) error {
	chatID, err := strconv.ParseInt(chat.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat ID %q: %w", chat.ID, err)
	}
	return t.client.SendChatAction(ctx, chatID, action)
}

// AnswerCallback implements channel.CallbackAnswerer.
func (t *Telegram) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return t.client.AnswerCallbackQuery(ctx, AnswerCallbackQueryRequest{
		CallbackQueryID: callbackID,
		Text:            text,
	})
}

// updateHandler converts, filters and forwards updates for both delivery
// modes.
type updateHandler struct {
	inbox       func(message.InboundMessage) error
	allowList   *channel.AllowList
	logger      *slog.Logger
	botUsername string
}

func (h *updateHandler) handle(update *Update) {
	msg, err := convertInbound(update, h.botUsername, channelName)
	if err != nil {
		h.logger.Debug("skipping update", "update_id", update.UpdateID, "reason", err)
		return
	}

	if !h.allowList.IsAllowed(msg) {
		h.logger.Debug("update denied by allow list",
			"update_id", update.UpdateID,
			"sender", msg.Sender.ID,
			"chat", msg.Chat.ID,
		)
		return
	}

	if err := h.inbox(msg); err != nil {
		h.logger.Warn("inbox rejected update", "update_id", update.UpdateID, "error", err)
	}
}
