package dexscreener

import (
	"errors"
	"fmt"

	"github.com/nexus-trading/screener/internal/token"
	"github.com/shopspring/decimal"
)

// ErrMalformedPair marks a single pair that cannot be turned into a candidate.
// The pair is skipped; the rest of the batch is still screened.
var ErrMalformedPair = errors.New("malformed pair")

// Response is the body of the pairs endpoint.
type Response struct {
	SchemaVersion string `json:"schemaVersion"`
	Pairs         []Pair `json:"pairs"`
}

// Pair is one trading pair as reported by DexScreener. DevAddress,
// TotalSupply and Txns.Recent are extensions some feeds attach.
type Pair struct {
	ChainID       string      `json:"chainId"`
	DexID         string      `json:"dexId"`
	URL           string      `json:"url"`
	PairAddress   string      `json:"pairAddress"`
	BaseToken     Token       `json:"baseToken"`
	QuoteToken    Token       `json:"quoteToken"`
	PriceNative   string      `json:"priceNative"`
	PriceUsd      string      `json:"priceUsd"`
	Txns          Txns        `json:"txns"`
	Volume        Volume      `json:"volume"`
	PriceChange   PriceChange `json:"priceChange"`
	Liquidity     *Liquidity  `json:"liquidity"`
	Fdv           float64     `json:"fdv"`
	MarketCap     float64     `json:"marketCap"`
	PairCreatedAt int64       `json:"pairCreatedAt"`
	DevAddress    string      `json:"dev_address"`
	TotalSupply   *float64    `json:"totalSupply"`
}

type Token struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type Liquidity struct {
	Usd   float64 `json:"usd"`
	Base  float64 `json:"base"`
	Quote float64 `json:"quote"`
}

type Txns struct {
	M5     TxnSummary  `json:"m5"`
	H1     TxnSummary  `json:"h1"`
	H6     TxnSummary  `json:"h6"`
	H24    TxnSummary  `json:"h24"`
	Recent []RecentTxn `json:"recent"`
}

type TxnSummary struct {
	Buys  int `json:"buys"`
	Sells int `json:"sells"`
}

type RecentTxn struct {
	Timestamp   int64   `json:"timestamp"` // unix ms
	BuyerWallet string  `json:"buyer_wallet"`
	Amount      float64 `json:"amount"`
}

type Volume struct {
	M5  float64 `json:"m5"`
	H1  float64 `json:"h1"`
	H6  float64 `json:"h6"`
	H24 float64 `json:"h24"`
}

type PriceChange struct {
	M5  float64 `json:"m5"`
	H1  float64 `json:"h1"`
	H6  float64 `json:"h6"`
	H24 float64 `json:"h24"`
}

// Normalize converts a raw pair into a screening candidate. The pair address
// is the token key. Missing liquidity reads as zero and a missing total
// supply as 1.
func Normalize(p Pair) (token.Candidate, error) {
	if p.PairAddress == "" {
		return token.Candidate{}, fmt.Errorf("%w: empty pairAddress", ErrMalformedPair)
	}

	price := decimal.Zero
	if p.PriceUsd != "" {
		d, err := decimal.NewFromString(p.PriceUsd)
		if err != nil {
			return token.Candidate{}, fmt.Errorf("%w: %s: priceUsd %q: %v", ErrMalformedPair, p.PairAddress, p.PriceUsd, err)
		}
		price = d
	}

	liquidity := 0.0
	if p.Liquidity != nil {
		liquidity = p.Liquidity.Usd
	}
	supply := 1.0
	if p.TotalSupply != nil {
		supply = *p.TotalSupply
	}

	recent := make([]token.Transaction, 0, len(p.Txns.Recent))
	for _, tx := range p.Txns.Recent {
		recent = append(recent, token.Transaction{
			Timestamp:   tx.Timestamp,
			BuyerWallet: tx.BuyerWallet,
			Amount:      tx.Amount,
		})
	}

	return token.Candidate{
		Snapshot: token.Snapshot{
			Address:        p.PairAddress,
			Name:           p.BaseToken.Name,
			Symbol:         p.BaseToken.Symbol,
			MarketCap:      p.MarketCap,
			Volume24h:      p.Volume.H24,
			Liquidity:      liquidity,
			PriceUSD:       price,
			PriceChange24h: p.PriceChange.H24,
			PairCreatedAt:  p.PairCreatedAt,
			TotalSupply:    supply,
			DevAddress:     p.DevAddress,
			Status:         token.StatusUnknown,
			ListedOnCEX:    CheckCEXListing(p),
		},
		VolumeH6:   p.Volume.H6,
		Trades24h:  p.Txns.H24.Buys + p.Txns.H24.Sells,
		RecentTxns: recent,
	}, nil
}

// CheckCEXListing reports whether the base token trades on a centralized
// exchange. No listing source is wired, so it always reports false.
func CheckCEXListing(Pair) bool {
	return false
}
