package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/AzielCF/az-wabot/botengine"
	domainBot "github.com/AzielCF/az-wabot/domains/bot"
	domainChat "github.com/AzielCF/az-wabot/domains/chat"
	domainMessage "github.com/AzielCF/az-wabot/domains/message"
	"github.com/AzielCF/az-wabot/infrastructure/gateway"
	"github.com/AzielCF/az-wabot/infrastructure/llm"
	"github.com/AzielCF/az-wabot/infrastructure/media"
	pkgError "github.com/AzielCF/az-wabot/pkg/error"
)

// assignedBot pairs an assignment with its resolved instance and type,
// in dispatch order.
type assignedBot struct {
	instance domainBot.Instance
	impl     botengine.Bot
	config   map[string]any
}

// pollTick runs one full poll pass for a chat: fetch new messages since
// the watermark, fan each one out to the assigned bots, and advance the
// watermark per message.
func (p *Processor) pollTick(ctx context.Context, chatID string) error {
	chat, err := p.store.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.Enabled {
		return nil
	}

	bots, prefixes, err := p.resolveBots(ctx, chatID)
	if err != nil {
		return err
	}

	sinceID := ""
	if chat.LastProcessedMessageID != nil {
		sinceID = *chat.LastProcessedMessageID
	}

	msgs, err := p.fetchWithBackoff(ctx, chat.JID, sinceID)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	// Cold start: consume existing history without dispatching so bots
	// never retroactively reply to old messages.
	if chat.LastProcessedMessageID == nil {
		return p.catchUp(ctx, chat, bots, msgs)
	}

	skippable, err := p.prefilter(ctx, chat, bots, msgs)
	if err != nil {
		return err
	}

	for _, msg := range msgs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch {
		case skippable[msg.ID]:
			// Already has a terminal row for every bot.
		case msg.Content == "" && msg.MediaType == "":
			// Presence or reaction noise with nothing to dispatch on.
		case msg.IsFromMe && startsWithAnyPrefix(msg.Content, prefixes):
			p.recordAll(ctx, chat.ID, msg.ID, bots, domainMessage.StatusSkipped, "")
		default:
			p.dispatchMessage(ctx, chat, bots, msg)
		}
		if err := p.store.AdvanceChatWatermark(ctx, chat.ID, msg.ID, msg.Timestamp); err != nil {
			return err
		}
	}
	return nil
}

// resolveBots loads the chat's enabled assignments and resolves each to a
// registered, enabled bot instance with a validated config. Assignments
// that cannot be resolved are logged and left out of the fan-out.
func (p *Processor) resolveBots(ctx context.Context, chatID string) ([]assignedBot, []string, error) {
	assignments, err := p.store.ListEnabledAssignments(ctx, chatID)
	if err != nil {
		return nil, nil, err
	}

	var bots []assignedBot
	var prefixes []string
	for _, a := range assignments {
		instance, err := p.store.GetBotInstance(ctx, a.BotInstanceID)
		if err != nil {
			logrus.WithError(err).Warnf("[PROCESSOR] Assignment %s references missing bot instance %s", a.ID, a.BotInstanceID)
			continue
		}
		if !instance.Enabled {
			continue
		}
		impl, ok := p.registry.Get(instance.TypeKey)
		if !ok {
			logrus.Errorf("[PROCESSOR] Bot instance %s has unknown type %q", instance.ID, instance.TypeKey)
			continue
		}
		cfg, err := botengine.NormalizeConfig(impl.Info().ConfigSchema, instance.Config)
		if err != nil {
			logrus.WithError(err).Errorf("[PROCESSOR] Bot instance %s config no longer validates", instance.ID)
			continue
		}
		bots = append(bots, assignedBot{instance: instance, impl: impl, config: cfg})
		if prefix := botengine.ConfigString(cfg, "prefix", ""); prefix != "" {
			prefixes = append(prefixes, prefix)
		}
	}
	return bots, prefixes, nil
}

func (p *Processor) fetchWithBackoff(ctx context.Context, chatJID, sinceID string) ([]gateway.Message, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		msgs, err := p.gw.FetchMessages(ctx, chatJID, sinceID, p.msgLimit)
		if err == nil {
			return msgs, nil
		}
		lastErr = err
		if !gateway.IsRetriable(err) || attempt >= len(fetchBackoff) {
			return nil, lastErr
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(fetchBackoff[attempt]):
		}
	}
}

// catchUp records skipped rows for every (bot, message) pair and moves the
// watermark to the newest message.
func (p *Processor) catchUp(ctx context.Context, chat domainChat.Chat, bots []assignedBot, msgs []gateway.Message) error {
	for _, msg := range msgs {
		p.recordAll(ctx, chat.ID, msg.ID, bots, domainMessage.StatusSkipped, "")
	}
	newest := msgs[len(msgs)-1]
	if err := p.store.AdvanceChatWatermark(ctx, chat.ID, newest.ID, newest.Timestamp); err != nil {
		return err
	}
	logrus.Infof("[PROCESSOR] Chat %s cold start: consumed %d history messages without dispatch", chat.JID, len(msgs))
	return nil
}

// prefilter marks the messages that already reached a terminal row for
// every assigned bot, so re-fetched messages cost one query instead of
// one insert attempt per bot.
func (p *Processor) prefilter(ctx context.Context, chat domainChat.Chat, bots []assignedBot, msgs []gateway.Message) (map[string]bool, error) {
	if len(bots) == 0 || len(msgs) == 0 {
		return map[string]bool{}, nil
	}
	botIDs := make([]string, 0, len(bots))
	for _, b := range bots {
		botIDs = append(botIDs, b.instance.ID)
	}
	externalIDs := make([]string, 0, len(msgs))
	for _, m := range msgs {
		externalIDs = append(externalIDs, m.ID)
	}
	return p.store.FilterFullyProcessed(ctx, chat.ID, botIDs, externalIDs)
}

// dispatchMessage fans one message out to the assigned bots in priority
// order. Media is downloaded at most once and shared across bots.
func (p *Processor) dispatchMessage(ctx context.Context, chat domainChat.Chat, bots []assignedBot, msg gateway.Message) {
	var (
		mediaLoaded bool
		mediaBytes  []byte
		mediaErr    error
	)
	loadMedia := func() ([]byte, error) {
		if mediaLoaded {
			return mediaBytes, mediaErr
		}
		mediaLoaded = true
		key := chat.JID + "|" + msg.ID
		mediaErr = p.media.Run(ctx, key, func(jobCtx context.Context) error {
			data, _, err := p.gw.DownloadMedia(jobCtx, msg.ID)
			if err != nil {
				return err
			}
			mediaBytes = data
			return nil
		})
		return mediaBytes, mediaErr
	}

	for _, b := range bots {
		if ctx.Err() != nil {
			return
		}
		p.dispatchToBot(ctx, chat, b, msg, loadMedia)
	}
}

// dispatchToBot performs one (bot, message) dispatch: claim the ledger
// row, invoke the bot, record the terminal status, then send the reply.
// The reply goes out strictly after the row is terminal so a crash in
// between cannot produce a duplicate reply on restart.
func (p *Processor) dispatchToBot(ctx context.Context, chat domainChat.Chat, b assignedBot, msg gateway.Message, loadMedia func() ([]byte, error)) {
	inserted, err := p.store.EnsureProcessed(ctx, domainMessage.ProcessedMessage{
		ID:                uuid.NewString(),
		BotInstanceID:     b.instance.ID,
		ChatID:            chat.ID,
		ExternalMessageID: msg.ID,
		Status:            domainMessage.StatusPending,
	})
	if err != nil {
		logrus.WithError(err).Errorf("[PROCESSOR] Failed to claim message %s for bot %s", msg.ID, b.instance.ID)
		return
	}
	if !inserted {
		return
	}
	atomic.AddInt64(&p.messagesDispatched, 1)

	mediaType := canonicalMediaType(msg.MediaType)
	botMsg := botengine.Message{
		ExternalID: msg.ID,
		ChatID:     chat.ID,
		ChatJID:    chat.JID,
		SenderJID:  msg.SenderJID,
		IsFromMe:   msg.IsFromMe,
		Timestamp:  msg.Timestamp,
		Text:       msg.Content,
		MediaType:  mediaType,
		MimeType:   msg.MimeType,
	}
	if mediaType != "" && hasCapability(b.impl.Info().Capabilities, mediaType) {
		botMsg.Media, botMsg.MediaErr = loadMedia()
	}

	env := &botengine.Env{
		LLM:       p.llm,
		Extractor: p.extractor,
		Store:     p.store,
		Models:    p.models,
		Config:    b.config,
	}

	// Media handling is the expensive part (ffmpeg, transcription, vision),
	// so it runs under the same limiter that bounds downloads. Text-only
	// dispatches stay outside it.
	var reply *botengine.Reply
	var botErr error
	if botMsg.Media != nil {
		key := chat.JID + "|" + msg.ID + "|" + b.instance.ID
		botErr = p.media.Run(ctx, key, func(jobCtx context.Context) error {
			var perr error
			reply, perr = p.safeProcess(jobCtx, b, env, botMsg)
			return perr
		})
	} else {
		reply, botErr = p.safeProcess(ctx, b, env, botMsg)
	}

	status := domainMessage.StatusOk
	errorKind := ""
	if botErr != nil {
		status = domainMessage.StatusFailed
		errorKind = classifyDispatchError(botErr)
		atomic.AddInt64(&p.dispatchErrors, 1)
	}
	excerpt := ""
	if reply != nil {
		excerpt = truncateExcerpt(reply.Text)
	}

	if err := p.store.UpdateProcessed(ctx, b.instance.ID, msg.ID, status, excerpt, errorKind); err != nil {
		logrus.WithError(err).Errorf("[PROCESSOR] Failed to finalize message %s for bot %s", msg.ID, b.instance.ID)
		return
	}

	if reply != nil {
		if _, err := p.gw.SendText(ctx, chat.JID, reply.Text); err != nil {
			logrus.WithError(err).Errorf("[PROCESSOR] Failed to send reply for message %s in chat %s", msg.ID, chat.JID)
		} else {
			atomic.AddInt64(&p.repliesSent, 1)
		}
	}

	if p.events != nil {
		p.events.PublishMessageProcessed(chat.JID, domainMessage.ProcessedMessage{
			BotInstanceID:     b.instance.ID,
			ChatID:            chat.ID,
			ExternalMessageID: msg.ID,
			Status:            status,
			ResponseExcerpt:   excerpt,
			ErrorKind:         errorKind,
			ProcessedAt:       time.Now().UTC(),
		})
	}
}

// safeProcess shields the poller from panicking bots.
func (p *Processor) safeProcess(ctx context.Context, b assignedBot, env *botengine.Env, msg botengine.Message) (reply *botengine.Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("[PROCESSOR] Bot %s panicked on message %s: %v", b.instance.ID, msg.ExternalID, r)
			reply = nil
			err = fmt.Errorf("bot panicked: %v", r)
		}
	}()
	return b.impl.Process(ctx, env, msg)
}

// recordAll inserts a terminal row for every bot without invoking any.
func (p *Processor) recordAll(ctx context.Context, chatID, externalID string, bots []assignedBot, status domainMessage.Status, errorKind string) {
	for _, b := range bots {
		_, err := p.store.EnsureProcessed(ctx, domainMessage.ProcessedMessage{
			ID:                uuid.NewString(),
			BotInstanceID:     b.instance.ID,
			ChatID:            chatID,
			ExternalMessageID: externalID,
			Status:            status,
			ErrorKind:         errorKind,
			ProcessedAt:       time.Now().UTC(),
		})
		if err != nil {
			logrus.WithError(err).Errorf("[PROCESSOR] Failed to record %s row for message %s", status, externalID)
		}
	}
}

func startsWithAnyPrefix(content string, prefixes []string) bool {
	trimmed := strings.TrimSpace(content)
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

// canonicalMediaType folds gateway media type aliases onto the capability
// names. Voice notes are plain audio as far as any bot is concerned.
func canonicalMediaType(mediaType string) string {
	if mediaType == "voice" {
		return "audio"
	}
	return mediaType
}

func hasCapability(caps []domainBot.Capability, mediaType string) bool {
	for _, c := range caps {
		if string(c) == mediaType {
			return true
		}
	}
	return false
}

// classifyDispatchError maps dispatch failures to the error_kind recorded
// on the ledger row.
func classifyDispatchError(err error) string {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		return string(gwErr.Kind)
	}
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		return string(llmErr.Kind)
	}
	switch {
	case errors.Is(err, media.ErrNoAudio):
		return "NoAudio"
	case errors.Is(err, media.ErrTooLarge):
		return "TooLarge"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Cancelled"
	}
	var restErr pkgError.RestError
	if errors.As(err, &restErr) {
		return restErr.ErrCode()
	}
	return "Internal"
}
