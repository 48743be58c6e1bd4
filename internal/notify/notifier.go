package notify

import (
	"context"

	"go.uber.org/zap"

	"signal_bot/internal/models"
)

// Stdout — заглушка без Telegram: всё пишет в лог. Подтверждать сигналы
// в этом режиме можно только через HTTP.
type Stdout struct {
	log *zap.Logger
}

func NewStdout(log *zap.Logger) *Stdout {
	return &Stdout{log: log.Named("notify")}
}

func (s *Stdout) Send(_ context.Context, text string) error {
	s.log.Info("notify", zap.String("text", text))
	return nil
}

func (s *Stdout) Ask(_ context.Context, text string, choices []models.Choice) error {
	data := make([]string, 0, len(choices))
	for _, c := range choices {
		data = append(data, c.Data)
	}
	s.log.Info("confirmation requested", zap.String("text", text), zap.Strings("choices", data))
	return nil
}
