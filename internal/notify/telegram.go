package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"signal_bot/internal/engine"
	"signal_bot/internal/models"
)

const maxMessageLen = 4096

// Bot — часть *tgbot.BotAPI, которой пользуется нотифайер.
type Bot interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
	Request(c tgbot.Chattable) (*tgbot.APIResponse, error)
	GetUpdatesChan(config tgbot.UpdateConfig) tgbot.UpdatesChannel
	StopReceivingUpdates()
}

// Telegram — канал до оператора: уведомления, кнопки подтверждения и команды.
// Принимает апдейты только из одного настроенного чата.
type Telegram struct {
	bot    Bot
	chatID int64
	log    *zap.Logger

	mu sync.RWMutex
	h  Handlers

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTelegram(token string, chatID int64, log *zap.Logger) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return NewTelegramWithBot(b, chatID, log), nil
}

func NewTelegramWithBot(bot Bot, chatID int64, log *zap.Logger) *Telegram {
	return &Telegram{
		bot:    bot,
		chatID: chatID,
		log:    log.Named("telegram"),
	}
}

// Attach подключает обработчики команд и кнопок. До вызова бот отвечает,
// что ещё не готов.
func (t *Telegram) Attach(h Handlers) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.h = h
}

func (t *Telegram) handlers() Handlers {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.h
}

// Send шлёт Markdown; если Telegram не смог разобрать разметку, повторяет простым текстом.
func (t *Telegram) Send(_ context.Context, text string) error {
	_, err := t.send(text, nil)
	return err
}

func (t *Telegram) Ask(_ context.Context, text string, choices []models.Choice) error {
	buttons := make([]tgbot.InlineKeyboardButton, 0, len(choices))
	for _, c := range choices {
		buttons = append(buttons, tgbot.NewInlineKeyboardButtonData(c.Text, c.Data))
	}
	kb := tgbot.NewInlineKeyboardMarkup(tgbot.NewInlineKeyboardRow(buttons...))
	_, err := t.send(text, &kb)
	return err
}

func (t *Telegram) send(text string, kb *tgbot.InlineKeyboardMarkup) (tgbot.Message, error) {
	text = clip(text)

	msg := tgbot.NewMessage(t.chatID, text)
	msg.ParseMode = tgbot.ModeMarkdown
	if kb != nil {
		msg.ReplyMarkup = *kb
	}
	sent, err := t.bot.Send(msg)
	if err == nil {
		return sent, nil
	}

	var tgErr *tgbot.Error
	if !errors.As(err, &tgErr) || tgErr.Code != 400 {
		return sent, fmt.Errorf("telegram send: %w", err)
	}
	t.log.Warn("markdown rejected, resending as plain text", zap.Error(err))
	msg.ParseMode = ""
	sent, err = t.bot.Send(msg)
	if err != nil {
		return sent, fmt.Errorf("telegram send: %w", err)
	}
	return sent, nil
}

func clip(text string) string {
	if utf8.RuneCountInString(text) <= maxMessageLen {
		return text
	}
	r := []rune(text)
	return string(r[:maxMessageLen-1]) + "…"
}

// Start запускает long-polling. Каждый апдейт обрабатывается в своей горутине.
func (t *Telegram) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message", "callback_query"}
	updates := t.bot.GetUpdatesChan(u)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				t.wg.Add(1)
				go func() {
					defer t.wg.Done()
					t.handleUpdate(ctx, upd)
				}()
			}
		}
	}()
	t.log.Info("telegram polling started", zap.Int64("chat_id", t.chatID))
}

func (t *Telegram) Stop() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	t.bot.StopReceivingUpdates()
	t.wg.Wait()
	t.log.Info("telegram polling stopped")
}

func (t *Telegram) handleUpdate(ctx context.Context, upd tgbot.Update) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("telegram update handler panic", zap.Any("panic", r))
		}
	}()

	if cb := upd.CallbackQuery; cb != nil {
		if cb.Message == nil || cb.Message.Chat == nil || cb.Message.Chat.ID != t.chatID {
			t.log.Warn("callback from unauthorized chat ignored")
			return
		}
		t.HandleCallback(ctx, cb)
		return
	}

	if msg := upd.Message; msg != nil {
		if msg.Chat == nil || msg.Chat.ID != t.chatID {
			chat := int64(0)
			if msg.Chat != nil {
				chat = msg.Chat.ID
			}
			t.log.Warn("message from unauthorized chat ignored", zap.Int64("chat_id", chat))
			return
		}
		if msg.IsCommand() {
			t.reply(ctx, t.handleCommand(ctx, msg.Command(), msg.CommandArguments()))
		}
	}
}

// HandleCallback обрабатывает нажатие кнопки подтверждения. Клавиатура
// снимается в любом случае, под исходным текстом дописывается итог.
func (t *Telegram) HandleCallback(ctx context.Context, cb *tgbot.CallbackQuery) {
	id, confirm, ok := engine.ParseChoice(cb.Data)
	if !ok {
		t.answer(cb.ID, "")
		return
	}

	h := t.handlers()
	if h.Engine == nil {
		t.answer(cb.ID, "Бот ещё не готов")
		return
	}

	var status string
	if confirm {
		_, err := h.Engine.Confirm(ctx, id)
		switch {
		case errors.Is(err, models.ErrSignalNotFound):
			status = "⌛ Сигнал уже обработан или истёк"
		case err != nil:
			status = "❌ Ошибка открытия: " + err.Error()
		default:
			status = "✅ Подтверждено"
		}
	} else {
		err := h.Engine.Reject(ctx, id)
		switch {
		case errors.Is(err, models.ErrSignalNotFound):
			status = "⌛ Сигнал уже обработан или истёк"
		case err != nil:
			status = "❌ Ошибка: " + err.Error()
		default:
			status = "❌ Отклонено"
		}
	}
	t.answer(cb.ID, "")

	if cb.Message != nil {
		t.resolvePrompt(cb.Message, status)
	}
}

func (t *Telegram) answer(callbackID, text string) {
	if _, err := t.bot.Request(tgbot.NewCallback(callbackID, text)); err != nil {
		t.log.Debug("answer callback failed", zap.Error(err))
	}
}

func (t *Telegram) resolvePrompt(msg *tgbot.Message, status string) {
	rm := tgbot.InlineKeyboardMarkup{InlineKeyboard: [][]tgbot.InlineKeyboardButton{}}
	if _, err := t.bot.Request(tgbot.NewEditMessageReplyMarkup(t.chatID, msg.MessageID, rm)); err != nil {
		t.log.Debug("remove keyboard failed", zap.Error(err))
	}
	edit := tgbot.NewEditMessageText(t.chatID, msg.MessageID, clip(fmt.Sprintf("%s\n\n%s", msg.Text, status)))
	if _, err := t.bot.Request(edit); err != nil {
		t.log.Debug("edit prompt failed", zap.Error(err))
	}
}

func (t *Telegram) reply(ctx context.Context, text string) {
	if text == "" {
		return
	}
	if err := t.Send(ctx, text); err != nil {
		t.log.Error("command reply failed", zap.Error(err))
	}
}
