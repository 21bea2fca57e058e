// Package bot is the Telegram front-end of the agent.
package bot

import (
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/liut/agrochat/pkg/models/aigc"
	"github.com/liut/agrochat/pkg/services/backend"
	"github.com/liut/agrochat/pkg/services/stores"
)

const (
	dftTimeout      = 300 * time.Second
	dftEditInterval = time.Second
	maxMediaGroup   = 10
)

// API is the part of tgbotapi.BotAPI used here
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	SendMediaGroup(config tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
}

// Agent opens a streamed answer of the backend
type Agent interface {
	Agent(ctx context.Context, path string, ar backend.AgentRequest) (io.ReadCloser, error)
}

// Config ...
type Config struct {
	API      API
	Agent    Agent
	Sessions *stores.Sessions
	Assets   stores.AssetStore // optional, images are skipped without it
	Preset   aigc.Preset

	Timeout      time.Duration
	EditInterval time.Duration
}

// Bot routes updates to handlers
type Bot struct {
	api    API
	agent  Agent
	sto    *stores.Sessions
	assets stores.AssetStore
	preset aigc.Preset

	timeout      time.Duration
	editInterval time.Duration

	started time.Time
	now     func() time.Time
}

// New ...
func New(cfg Config) *Bot {
	b := &Bot{
		api:          cfg.API,
		agent:        cfg.Agent,
		sto:          cfg.Sessions,
		assets:       cfg.Assets,
		preset:       cfg.Preset.WithDefaults(),
		timeout:      cfg.Timeout,
		editInterval: cfg.EditInterval,
		now:          time.Now,
	}
	if b.timeout <= 0 {
		b.timeout = dftTimeout
	}
	if b.editInterval <= 0 {
		b.editInterval = dftEditInterval
	}
	b.started = b.now()
	return b
}

// Run handles updates until ctx is done or the channel is closed,
// then waits for the handlers in flight
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	logger().Infow("bot started", "companies", len(b.preset.Companies), "models", len(b.preset.Models))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.HandleUpdate(ctx, upd)
			}()
		}
	}
}

// HandleUpdate dispatches one update
func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			logger().Errorw("handle update panic", "id", upd.UpdateID, "err", r)
		}
	}()

	if cq := upd.CallbackQuery; cq != nil {
		b.onCallback(ctx, cq)
		return
	}
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	// updates queued while the bot was down are skipped
	if int64(msg.Date) < b.started.Unix() {
		logger().Debugw("skip stale message", "chat", msg.Chat.ID, "date", msg.Date)
		return
	}
	switch {
	case msg.IsCommand():
		if msg.Command() == "start" {
			b.onStart(ctx, msg)
		}
	case msg.Text == btnNewDialog:
		b.onNewDialog(ctx, msg)
	case msg.Text == btnInstructions:
		b.onInstructions(msg)
	case len(strings.TrimSpace(msg.Text)) > 0:
		b.onText(ctx, msg)
	}
}

func sessionID(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}
