package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

type SignalAction string

const (
	ActionBuy  SignalAction = "BUY"
	ActionTP1  SignalAction = "TP1"
	ActionTP2  SignalAction = "TP2"
	ActionTP3  SignalAction = "TP3"
	ActionSL   SignalAction = "SL"
	ActionExit SignalAction = "EXIT"
)

// TakeProfitLevel returns 1..3 for TPn actions and 0 otherwise.
func (a SignalAction) TakeProfitLevel() int {
	switch a {
	case ActionTP1:
		return 1
	case ActionTP2:
		return 2
	case ActionTP3:
		return 3
	}
	return 0
}

// Signal — входящее сообщение от алерта (TradingView и т.п.).
type Signal struct {
	Action   SignalAction `json:"action"`
	Ticker   string       `json:"ticker"`
	Price    float64      `json:"price"`
	Strategy string       `json:"strategy"`
	Message  string       `json:"message,omitempty"`
	Secret   string       `json:"secret,omitempty"`
}

// UnmarshalJSON accepts price both as a JSON number and as a string,
// alert templates send either.
func (s *Signal) UnmarshalJSON(data []byte) error {
	type plain Signal
	aux := struct {
		*plain
		Price json.RawMessage `json:"price"`
	}{plain: (*plain)(s)}
	if err := sonic.ConfigStd.Unmarshal(data, &aux); err != nil {
		return err
	}
	raw := strings.Trim(strings.TrimSpace(string(aux.Price)), `"`)
	if raw == "" || raw == "null" {
		s.Price = 0
		return nil
	}
	px, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("price %q: %w", raw, err)
	}
	s.Price = px
	return nil
}

// Normalize trims the envelope and upper-cases action and ticker.
func (s Signal) Normalize() Signal {
	s.Action = SignalAction(strings.ToUpper(strings.TrimSpace(string(s.Action))))
	s.Ticker = strings.ToUpper(strings.TrimSpace(s.Ticker))
	s.Strategy = strings.TrimSpace(s.Strategy)
	s.Secret = ""
	return s
}

// PendingSignal — BUY, ожидающий подтверждения оператора.
type PendingSignal struct {
	ID         string    `json:"id"`
	Signal     Signal    `json:"signal"`
	Symbol     string    `json:"symbol"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// ExpiresAt is the moment after which the signal must not stay pending.
func (p PendingSignal) ExpiresAt(timeout time.Duration) time.Time {
	return p.ReceivedAt.Add(timeout)
}

type Choice struct {
	Text string
	Data string
}
