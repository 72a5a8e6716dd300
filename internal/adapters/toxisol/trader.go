package toxisol

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/nexus-trading/screener/internal/token"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// ToxiSol trade sink: simulated command dispatch
// ---------------------------------------------------------------------------

// Config identifies the ToxiSol bot and the trading wallet.
type Config struct {
	BotUsername      string
	WalletAddress    string
	WalletPrivateKey string
}

// Trader builds ToxiSol bot commands. Dispatch is simulated: the command is
// logged and reported as executed. The private key is held for a future
// signer and never logged.
type Trader struct {
	config Config

	executed atomic.Int64
	failed   atomic.Int64
}

// NewTrader creates a ToxiSol trade sink.
func NewTrader(cfg Config) *Trader {
	return &Trader{config: cfg}
}

// Command renders the bot command for a trade.
func (t *Trader) Command(address string, action token.TradeAction, amount decimal.Decimal) string {
	return fmt.Sprintf("%s /%s %s %s %s",
		t.config.BotUsername, strings.ToLower(string(action)), address, amount.String(), t.config.WalletAddress)
}

// ExecuteTrade simulates a buy or sell and returns the outcome text.
func (t *Trader) ExecuteTrade(ctx context.Context, address string, action token.TradeAction, amount decimal.Decimal) (bool, string) {
	if err := ctx.Err(); err != nil {
		t.failed.Add(1)
		return false, fmt.Sprintf("Error executing %s on ToxiSol: %v", action, err)
	}
	if action != token.ActionBuy && action != token.ActionSell {
		t.failed.Add(1)
		return false, fmt.Sprintf("Error executing %s on ToxiSol: unsupported action", action)
	}
	if address == "" || !amount.IsPositive() {
		t.failed.Add(1)
		return false, fmt.Sprintf("Error executing %s on ToxiSol: invalid address or amount", action)
	}

	log.Info().
		Str("command", t.Command(address, action, amount)).
		Msg("toxisol: simulating trade")

	t.executed.Add(1)
	verb := strings.ToUpper(string(action[:1])) + string(action[1:])
	return true, fmt.Sprintf("%s executed for %s (%s SOL)", verb, address, amount.String())
}

// Stats returns trade counters.
type Stats struct {
	Executed int64 `json:"executed"`
	Failed   int64 `json:"failed"`
}

func (t *Trader) Stats() Stats {
	return Stats{Executed: t.executed.Load(), Failed: t.failed.Load()}
}
