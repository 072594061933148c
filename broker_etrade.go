// FILE: broker_etrade.go
// Package main – OAuth1.0a-signed equities broker (C8's real backend).
//
// Request shape (build URL, sign via TokenManager, decode JSON) is the same
// pattern the teacher used in broker_coinbase.go for its JWT-bearer client —
// read in full before that file was removed (see DESIGN.md) — just re-signed
// with OAuth1.0a instead of a bearer token.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ETradeBroker is a live-or-sandbox OAuth1.0a broker client.
type ETradeBroker struct {
	apiBase string
	hc      *http.Client
	signer  *TokenManager
}

// NewETradeBroker builds a broker client bound to the given base URL
// ("https://api.etrade.com" for live, "https://apisb.etrade.com" for sandbox).
func NewETradeBroker(apiBase string, signer *TokenManager) *ETradeBroker {
	return &ETradeBroker{
		apiBase: strings.TrimRight(apiBase, "/"),
		hc:      &http.Client{Timeout: 10 * time.Second},
		signer:  signer,
	}
}

func (b *ETradeBroker) Name() string { return "etrade" }

// doSigned performs a signed HTTP call, retrying once after 500ms on a
// transient network error per spec.md §4.3's "Network error on a batch" rule.
func (b *ETradeBroker) doSigned(ctx context.Context, method, path string, params map[string]string) ([]byte, error) {
	u := b.apiBase + path
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, newErr("broker", ErrBrokerPermanent, err)
	}
	if len(params) > 0 {
		q := req.URL.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}
	signed, err := b.signer.Sign(req, params)
	if err != nil {
		if te, ok := err.(*TradingError); ok && te.Kind == ErrTokenExpired {
			return nil, te
		}
		return nil, newErr("broker", ErrBrokerTransient, err)
	}

	body, statusCode, err := b.send(signed.Request)
	if err != nil {
		// one retry after 500ms
		time.Sleep(500 * time.Millisecond)
		body, statusCode, err = b.send(signed.Request)
		if err != nil {
			return nil, newErr("broker", ErrBrokerTransient, err)
		}
	}
	if statusCode == http.StatusUnauthorized {
		b.signer.MarkExpiredFromAuthFailure()
		return nil, newErr("broker", ErrTokenExpired, fmt.Errorf("401 from broker"))
	}
	if statusCode >= 400 {
		return nil, newErr("broker", ErrBrokerPermanent, fmt.Errorf("broker status %d: %s", statusCode, string(body)))
	}
	return body, nil
}

func (b *ETradeBroker) send(req *http.Request) ([]byte, int, error) {
	res, err := b.hc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, res.StatusCode, err
	}
	return body, res.StatusCode, nil
}

type accountsResponse struct {
	Accounts []struct {
		AccountID  string `json:"accountId"`
		AccountKey string `json:"accountIdKey"`
	} `json:"accounts"`
}

func (b *ETradeBroker) ListAccounts(ctx context.Context) ([]BrokerAccount, error) {
	body, err := b.doSigned(ctx, http.MethodGet, "/v1/accounts/list", nil)
	if err != nil {
		return nil, err
	}
	var parsed accountsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, newErr("broker", ErrBrokerPermanent, err)
	}
	out := make([]BrokerAccount, 0, len(parsed.Accounts))
	for _, a := range parsed.Accounts {
		out = append(out, BrokerAccount{ID: a.AccountID, Key: a.AccountKey})
	}
	return out, nil
}

type balanceResponse struct {
	AvailableCash string `json:"availableCash"`
	TotalValue    string `json:"totalAccountValue"`
}

func (b *ETradeBroker) GetBalance(ctx context.Context, accountKey string) (BrokerBalance, error) {
	body, err := b.doSigned(ctx, http.MethodGet, fmt.Sprintf("/v1/accounts/%s/balance", url.PathEscape(accountKey)), nil)
	if err != nil {
		return BrokerBalance{}, err
	}
	var parsed balanceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return BrokerBalance{}, newErr("broker", ErrBrokerPermanent, err)
	}
	cash, _ := decimal.NewFromString(parsed.AvailableCash)
	total, _ := decimal.NewFromString(parsed.TotalValue)
	return BrokerBalance{AvailableCash: cash, TotalAccountValue: total}, nil
}

type quoteResponse struct {
	QuoteData []struct {
		Symbol    string `json:"symbol"`
		Last      string `json:"lastTrade"`
		Bid       string `json:"bid"`
		Ask       string `json:"ask"`
		Volume    int64  `json:"totalVolume"`
		High      string `json:"high"`
		Low       string `json:"low"`
		PrevClose string `json:"previousClose"`
	} `json:"quoteData"`
}

// BatchQuotes fetches up to quote_batch_size (25) symbols in one signed call.
// Callers (C3) are responsible for splitting larger requests into batches.
func (b *ETradeBroker) BatchQuotes(ctx context.Context, accountKey string, symbols []Symbol) (map[Symbol]BrokerQuote, error) {
	strs := make([]string, len(symbols))
	for i, s := range symbols {
		strs[i] = string(s)
	}
	body, err := b.doSigned(ctx, http.MethodGet, "/v1/market/quote/"+url.PathEscape(strings.Join(strs, ",")), nil)
	if err != nil {
		return nil, err
	}
	var parsed quoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, newErr("broker", ErrBrokerPermanent, err)
	}
	out := make(map[Symbol]BrokerQuote, len(parsed.QuoteData))
	for _, q := range parsed.QuoteData {
		bq := BrokerQuote{Symbol: Symbol(q.Symbol), Volume: q.Volume}
		bq.Last, _ = decimal.NewFromString(q.Last)
		if bid, err := decimal.NewFromString(q.Bid); err == nil {
			bq.Bid, bq.HasBid = bid, true
		}
		if ask, err := decimal.NewFromString(q.Ask); err == nil {
			bq.Ask, bq.HasAsk = ask, true
		}
		bq.DayHigh, _ = decimal.NewFromString(q.High)
		bq.DayLow, _ = decimal.NewFromString(q.Low)
		bq.PrevClose, _ = decimal.NewFromString(q.PrevClose)
		out[bq.Symbol] = bq
	}
	return out, nil
}

type orderResponse struct {
	OrderID   int64  `json:"orderId"`
	Status    string `json:"orderStatus"`
	FillPrice string `json:"executedPrice,omitempty"`
	FillQty   string `json:"filledQuantity,omitempty"`
}

// PlaceOrder submits a signed market order, carrying clientTag so retried
// opens with the same tag resolve to the same broker order (spec.md §4.8
// idempotency / P7).
func (b *ETradeBroker) PlaceOrder(ctx context.Context, accountKey string, symbol Symbol, side Side, qty decimal.Decimal, clientTag string) (*PlacedOrder, error) {
	params := map[string]string{
		"symbol":     string(symbol),
		"orderAction": string(side),
		"quantity":   qty.String(),
		"priceType":  string(OrderMarket),
		"clientOrderId": clientTag,
	}
	body, err := b.doSigned(ctx, http.MethodPost, fmt.Sprintf("/v1/accounts/%s/orders/place", url.PathEscape(accountKey)), params)
	if err != nil {
		return nil, err
	}
	var parsed orderResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, newErr("broker", ErrBrokerPermanent, err)
	}
	fillPrice, _ := decimal.NewFromString(parsed.FillPrice)
	fillQty, _ := decimal.NewFromString(parsed.FillQty)
	return &PlacedOrder{
		OrderID:    strconv.FormatInt(parsed.OrderID, 10),
		Status:     parsed.Status,
		FillPrice:  fillPrice,
		FillQty:    fillQty,
		CreateTime: time.Now().UTC(),
	}, nil
}

type positionsResponse struct {
	Positions []struct {
		Symbol      string `json:"symbol"`
		Quantity    string `json:"quantity"`
		MarketValue string `json:"marketValue"`
	} `json:"positions"`
}

func (b *ETradeBroker) Positions(ctx context.Context, accountKey string) ([]BrokerPosition, error) {
	body, err := b.doSigned(ctx, http.MethodGet, fmt.Sprintf("/v1/accounts/%s/portfolio", url.PathEscape(accountKey)), nil)
	if err != nil {
		return nil, err
	}
	var parsed positionsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, newErr("broker", ErrBrokerPermanent, err)
	}
	out := make([]BrokerPosition, 0, len(parsed.Positions))
	for _, p := range parsed.Positions {
		qty, _ := decimal.NewFromString(p.Quantity)
		mv, _ := decimal.NewFromString(p.MarketValue)
		out = append(out, BrokerPosition{Symbol: Symbol(p.Symbol), Quantity: qty, MarketValue: mv})
	}
	return out, nil
}
