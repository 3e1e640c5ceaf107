package tools

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

	"github.com/normanking/wayfarer/internal/llm"
	"github.com/normanking/wayfarer/internal/trip"
)

// CurrencyConfig configures the exchange-rate provider.
type CurrencyConfig struct {
	Endpoint string // base URL, e.g. https://api.exchangerate.host
	APIKey   string
	Timeout  time.Duration
}

// CurrencyTool converts an amount between two currencies using an
// exchangerate.host-compatible convert endpoint.
type CurrencyTool struct {
	config CurrencyConfig
	client *http.Client
}

// NewCurrencyTool creates the currency tool.
func NewCurrencyTool(cfg CurrencyConfig) *CurrencyTool {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &CurrencyTool{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Category returns the tool identifier.
func (t *CurrencyTool) Category() trip.ToolCategory { return trip.ToolCurrency }

// Execute converts params amount/from/to into a quote.
func (t *CurrencyTool) Execute(ctx context.Context, req *trip.ToolRequest) (*trip.ToolPayload, error) {
	if t.config.Endpoint == "" {
		return nil, llm.ErrUnavailable
	}

	from := strings.ToUpper(req.Param("from"))
	to := strings.ToUpper(req.Param("to"))
	if from == "" || to == "" {
		return nil, fmt.Errorf("missing currency codes")
	}
	amount, err := strconv.ParseFloat(req.Param("amount"), 64)
	if err != nil || amount <= 0 {
		amount = 1
	}

	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)
	q.Set("amount", strconv.FormatFloat(amount, 'f', -1, 64))
	if t.config.APIKey != "" {
		q.Set("access_key", t.config.APIKey)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "GET", t.config.Endpoint+"/convert?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, llm.MaxErrorBodySize))
		return nil, fmt.Errorf("currency API error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var convResp struct {
		Success bool    `json:"success"`
		Result  float64 `json:"result"`
		Info    struct {
			Rate float64 `json:"rate"`
		} `json:"info"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&convResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if !convResp.Success || convResp.Result <= 0 {
		return nil, fmt.Errorf("%w: conversion %s->%s rejected", ErrInvalidResponse, from, to)
	}

	rate := convResp.Info.Rate
	if rate == 0 {
		rate = convResp.Result / amount
	}
	return &trip.ToolPayload{Rate: &trip.CurrencyQuote{
		Amount:    amount,
		From:      from,
		To:        to,
		Converted: convResp.Result,
		Rate:      rate,
	}}, nil
}
