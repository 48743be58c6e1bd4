package symbols

import (
	"strings"

	"signal_bot/internal/modules/config"
)

// Mapper переводит тикер из алерта в символ биржи.
type Mapper struct {
	mapping  []config.SymbolMapping
	suffixes []string
}

func NewMapper(cfg config.SymbolsConfig) *Mapper {
	m := &Mapper{}
	for _, mp := range cfg.Mapping {
		from := normalize(mp.From)
		if from == "" || mp.To == "" {
			continue
		}
		m.mapping = append(m.mapping, config.SymbolMapping{From: from, To: strings.ToUpper(mp.To)})
	}
	for _, s := range cfg.QuoteSuffixes {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			m.suffixes = append(m.suffixes, s)
		}
	}
	return m
}

// Resolve: точное совпадение, затем вхождение, затем вставка "_" перед известной котировкой.
func (m *Mapper) Resolve(ticker string) string {
	t := normalize(ticker)
	if t == "" {
		return ""
	}

	for _, mp := range m.mapping {
		if mp.From == t {
			return mp.To
		}
	}
	for _, mp := range m.mapping {
		if strings.Contains(t, mp.From) {
			return mp.To
		}
	}

	if strings.Contains(t, "_") {
		return t
	}
	for _, q := range m.suffixes {
		if strings.HasSuffix(t, q) && len(t) > len(q) {
			return t[:len(t)-len(q)] + "_" + q
		}
	}
	return t
}

func normalize(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	// TradingView шлёт "BINANCE:BTCUSDT" и "BTCUSDT.P"
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(s, ".P")
	return strings.ReplaceAll(s, "/", "")
}
