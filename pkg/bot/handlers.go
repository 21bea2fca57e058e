package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/liut/agrochat/pkg/models/aigc"
	"github.com/liut/agrochat/pkg/services/backend"
	"github.com/liut/agrochat/pkg/services/sources"
	"github.com/liut/agrochat/pkg/services/sse"
)

const errNotModified = "message is not modified"

var upperRU = cases.Upper(language.Russian)

func (b *Bot) onStart(ctx context.Context, msg *tgbotapi.Message) {
	if err := b.sto.Reset(ctx, sessionID(msg.Chat.ID)); err != nil {
		logger().Infow("reset session fail", "chat", msg.Chat.ID, "err", err)
	}
	text := b.preset.Welcome
	if len(text) == 0 {
		text = txtWelcome
	}
	mc := tgbotapi.NewMessage(msg.Chat.ID, text)
	mc.ReplyMarkup = startKeyboard()
	b.send(mc)
}

func (b *Bot) onNewDialog(ctx context.Context, msg *tgbotapi.Message) {
	if err := b.sto.Reset(ctx, sessionID(msg.Chat.ID)); err != nil {
		logger().Infow("reset session fail", "chat", msg.Chat.ID, "err", err)
	}
	mc := tgbotapi.NewMessage(msg.Chat.ID, txtChooseCompany)
	mc.ReplyMarkup = companyKeyboard(b.preset)
	b.send(mc)
}

func (b *Bot) onInstructions(msg *tgbotapi.Message) {
	text := b.preset.Instructions
	if len(text) == 0 {
		text = txtDftInstruction
	}
	b.send(tgbotapi.NewMessage(msg.Chat.ID, text))
}

func (b *Bot) onCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	defer func() {
		if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			logger().Debugw("answer callback fail", "id", cq.ID, "err", err)
		}
	}()
	if cq.Message == nil || cq.Message.Chat == nil {
		return
	}
	chatID, msgID := cq.Message.Chat.ID, cq.Message.MessageID
	switch {
	case strings.HasPrefix(cq.Data, cbCompany):
		b.onCompany(ctx, chatID, msgID, strings.TrimPrefix(cq.Data, cbCompany))
	case strings.HasPrefix(cq.Data, cbModel):
		b.onModel(ctx, chatID, msgID, strings.TrimPrefix(cq.Data, cbModel))
	default:
		logger().Infow("unknown callback", "chat", chatID, "data", cq.Data)
	}
}

func (b *Bot) onCompany(ctx context.Context, chatID int64, msgID int, code string) {
	company, ok := b.preset.Company(code)
	if !ok {
		b.edit(chatID, msgID, txtUnknownChoice)
		return
	}
	_, err := b.sto.Update(ctx, sessionID(chatID), func(sess *aigc.Session) error {
		sess.Company = strings.ToLower(company.Code)
		sess.AddTurn(aigc.RoleSystem, fmt.Sprintf(txtSystemCompany, sess.Company))
		return nil
	})
	if err != nil {
		logger().Infow("save company fail", "chat", chatID, "err", err)
		b.edit(chatID, msgID, txtFailure)
		return
	}
	ec := tgbotapi.NewEditMessageTextAndMarkup(chatID, msgID,
		fmt.Sprintf(txtChooseModel, upperRU.String(company.Name)), modelKeyboard(b.preset))
	b.request(ec)
}

func (b *Bot) onModel(ctx context.Context, chatID int64, msgID int, code string) {
	model, ok := b.preset.Model(code)
	if !ok {
		b.edit(chatID, msgID, txtUnknownChoice)
		return
	}
	sess, err := b.sto.Update(ctx, sessionID(chatID), func(sess *aigc.Session) error {
		sess.Model = model.Code
		return nil
	})
	if err != nil {
		logger().Infow("save model fail", "chat", chatID, "err", err)
		b.edit(chatID, msgID, txtFailure)
		return
	}
	companyName := sess.Company
	if c, ok := b.preset.Company(sess.Company); ok {
		companyName = c.Name
	}
	b.edit(chatID, msgID, fmt.Sprintf(txtModelChosen, model.Name, upperRU.String(companyName)))
}

func (b *Bot) onText(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	sid := sessionID(chatID)
	sess, err := b.sto.Get(ctx, sid)
	if err != nil {
		logger().Infow("load session fail", "chat", chatID, "err", err)
		b.send(tgbotapi.NewMessage(chatID, txtFailure))
		return
	}
	if len(sess.Company) == 0 {
		mc := tgbotapi.NewMessage(chatID, txtNoCompany)
		mc.ReplyMarkup = companyKeyboard(b.preset)
		b.send(mc)
		return
	}
	if len(sess.Model) == 0 {
		mc := tgbotapi.NewMessage(chatID, txtNoModel)
		mc.ReplyMarkup = modelKeyboard(b.preset)
		b.send(mc)
		return
	}

	sess, err = b.sto.Update(ctx, sid, func(sess *aigc.Session) error {
		sess.AddTurn(aigc.RoleUser, msg.Text)
		return nil
	})
	if err != nil {
		logger().Infow("save question fail", "chat", chatID, "err", err)
		b.send(tgbotapi.NewMessage(chatID, txtFailure))
		return
	}

	placeholder, err := b.api.Send(tgbotapi.NewMessage(chatID, txtProcessing))
	if err != nil {
		logger().Infow("send placeholder fail", "chat", chatID, "err", err)
		return
	}
	msgID := placeholder.MessageID

	model, ok := b.preset.Model(sess.Model)
	if !ok {
		b.edit(chatID, msgID, txtBadModel)
		return
	}

	answer, err := b.stream(ctx, chatID, msgID, model.Path, backend.AgentRequest{
		ChatHistory: sess.History,
		Company:     sess.Company,
	})
	if err != nil {
		logger().Infow("agent fail", "chat", chatID, "model", model.Code, "err", err)
		var se *backend.StatusError
		if errors.As(err, &se) {
			b.edit(chatID, msgID, txtAPIError)
		} else {
			b.edit(chatID, msgID, txtFailure)
		}
		return
	}

	if len(strings.TrimSpace(answer)) == 0 {
		b.edit(chatID, msgID, txtEmptyAnswer)
	} else {
		parts := formatAnswer(answer)
		b.editHTML(chatID, msgID, parts[0])
		for _, part := range parts[1:] {
			mc := tgbotapi.NewMessage(chatID, part)
			mc.ParseMode = tgbotapi.ModeHTML
			b.send(mc)
		}
	}

	_, err = b.sto.Update(ctx, sid, func(sess *aigc.Session) error {
		sess.AddTurn(aigc.RoleAssistant, answer)
		return nil
	})
	if err != nil {
		logger().Infow("save answer fail", "chat", chatID, "err", err)
	}
}

// stream relays the agent answer into the placeholder message
func (b *Bot) stream(ctx context.Context, chatID int64, msgID int, path string, ar backend.AgentRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	body, err := b.agent.Agent(ctx, path, ar)
	if err != nil {
		return "", err
	}
	defer body.Close()

	lastEdit := b.now()
	return sse.Consume(body, sse.Handler{
		OnDelta: func(_, text string) error {
			if now := b.now(); now.Sub(lastEdit) >= b.editInterval {
				b.editHTML(chatID, msgID, formatAnswer(text)[0])
				lastEdit = now
			}
			return nil
		},
		OnMetadata: func(md aigc.Metadata) error {
			b.sendSources(ctx, chatID, md)
			return nil
		},
	})
}

// sendSources posts page images and the reference list of an answer
func (b *Bot) sendSources(ctx context.Context, chatID int64, md aigc.Metadata) {
	refs := sources.Collect(md)
	b.sendImages(ctx, chatID, refs.Images)
	if text := refs.HTML(); len(text) > 0 {
		mc := tgbotapi.NewMessage(chatID, text)
		mc.ParseMode = tgbotapi.ModeHTML
		b.send(mc)
	}
}

func (b *Bot) sendImages(ctx context.Context, chatID int64, keys []string) {
	if b.assets == nil || len(keys) == 0 {
		return
	}
	var files []tgbotapi.FileBytes
	for _, key := range keys {
		data, err := b.assets.FetchObject(ctx, key)
		if err != nil {
			logger().Infow("fetch image fail", "key", key, "err", err)
			continue
		}
		files = append(files, tgbotapi.FileBytes{Name: sources.ImageName(key), Bytes: data})
	}
	for len(files) > 0 {
		n := min(maxMediaGroup, len(files))
		chunk := files[:n]
		files = files[n:]
		// a media group needs at least two items
		if len(chunk) == 1 {
			b.send(tgbotapi.NewPhoto(chatID, chunk[0]))
			continue
		}
		media := make([]any, 0, len(chunk))
		for _, f := range chunk {
			media = append(media, tgbotapi.NewInputMediaPhoto(f))
		}
		if _, err := b.api.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, media)); err != nil {
			logger().Infow("send media group fail", "chat", chatID, "size", len(media), "err", err)
		}
	}
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		logger().Infow("send fail", "err", err)
	}
}

func (b *Bot) edit(chatID int64, msgID int, text string) {
	b.request(tgbotapi.NewEditMessageText(chatID, msgID, text))
}

func (b *Bot) editHTML(chatID int64, msgID int, text string) {
	ec := tgbotapi.NewEditMessageText(chatID, msgID, text)
	ec.ParseMode = tgbotapi.ModeHTML
	b.request(ec)
}

func (b *Bot) request(c tgbotapi.Chattable) {
	_, err := b.api.Request(c)
	if err == nil {
		return
	}
	if strings.Contains(err.Error(), errNotModified) {
		logger().Debugw("edit skipped", "err", err)
		return
	}
	logger().Infow("request fail", "err", err)
}
