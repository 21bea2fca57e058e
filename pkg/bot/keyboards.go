package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/liut/agrochat/pkg/models/aigc"
)

// callback data prefixes
const (
	cbCompany = "company_"
	cbModel   = "model_"

	buttonsPerRow = 2
)

func startKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnNewDialog)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnInstructions)),
	)
	kb.ResizeKeyboard = true
	return kb
}

func companyKeyboard(p aigc.Preset) tgbotapi.InlineKeyboardMarkup {
	buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(p.Companies))
	for _, c := range p.Companies {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(c.Name, cbCompany+c.Code))
	}
	return inlineRows(buttons)
}

func modelKeyboard(p aigc.Preset) tgbotapi.InlineKeyboardMarkup {
	buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(p.Models))
	for _, m := range p.Models {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(m.Name, cbModel+m.Code))
	}
	return inlineRows(buttons)
}

func inlineRows(buttons []tgbotapi.InlineKeyboardButton) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for len(buttons) > 0 {
		n := min(buttonsPerRow, len(buttons))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons[:n]...))
		buttons = buttons[n:]
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
