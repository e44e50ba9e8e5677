// Package openai provides OpenAI Realtime pricing data and per-session usage
// accounting.
package openai

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// TokenPricing is the cost per million tokens in USD for a realtime model.
// Cached input is billed at the cached rate instead of the full input rate.
type TokenPricing struct {
	TextInputPerMillion   float64 `json:"text_input_per_million"`
	TextCachedPerMillion  float64 `json:"text_cached_per_million"`
	TextOutputPerMillion  float64 `json:"text_output_per_million"`
	AudioInputPerMillion  float64 `json:"audio_input_per_million"`
	AudioCachedPerMillion float64 `json:"audio_cached_per_million"`
	AudioOutputPerMillion float64 `json:"audio_output_per_million"`
}

// PricingTable maps a model name, or the prefix of dated snapshots, to its
// pricing.
type PricingTable map[string]TokenPricing

// DefaultPricing holds published list prices for the realtime models.
var DefaultPricing = PricingTable{
	"gpt-realtime": {
		TextInputPerMillion: 4, TextCachedPerMillion: 0.4, TextOutputPerMillion: 16,
		AudioInputPerMillion: 32, AudioCachedPerMillion: 0.4, AudioOutputPerMillion: 64,
	},
	"gpt-4o-realtime-preview": {
		TextInputPerMillion: 5, TextCachedPerMillion: 2.5, TextOutputPerMillion: 20,
		AudioInputPerMillion: 40, AudioCachedPerMillion: 2.5, AudioOutputPerMillion: 80,
	},
	"gpt-4o-mini-realtime-preview": {
		TextInputPerMillion: 0.6, TextCachedPerMillion: 0.3, TextOutputPerMillion: 2.4,
		AudioInputPerMillion: 10, AudioCachedPerMillion: 0.3, AudioOutputPerMillion: 20,
	},
}

// LoadPricingTable reads a JSON object of model name to TokenPricing.
func LoadPricingTable(path string) (PricingTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing file: %w", err)
	}

	var table PricingTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse pricing file %s: %w", path, err)
	}

	return table, nil
}

// Lookup returns the pricing for model. An exact match wins; otherwise the
// longest key that prefixes model is used, so dated snapshots resolve to
// their family.
func (t PricingTable) Lookup(model string) (TokenPricing, bool) {
	if p, ok := t[model]; ok {
		return p, true
	}

	var (
		best    TokenPricing
		bestLen int
	)
	for name, p := range t {
		if len(name) > bestLen && strings.HasPrefix(model, name+"-") {
			best, bestLen = p, len(name)
		}
	}

	return best, bestLen > 0
}

// Usage accumulates token counts over a realtime session.
type Usage struct {
	Responses        int
	TextInput        int
	TextCachedInput  int
	AudioInput       int
	AudioCachedInput int
	TextOutput       int
	AudioOutput      int
}

// Add folds one response's usage into u.
func (u *Usage) Add(other Usage) {
	u.Responses += other.Responses
	u.TextInput += other.TextInput
	u.TextCachedInput += other.TextCachedInput
	u.AudioInput += other.AudioInput
	u.AudioCachedInput += other.AudioCachedInput
	u.TextOutput += other.TextOutput
	u.AudioOutput += other.AudioOutput
}

// InputTokens is the total input, cached included.
func (u Usage) InputTokens() int {
	return u.TextInput + u.AudioInput
}

// OutputTokens is the total output.
func (u Usage) OutputTokens() int {
	return u.TextOutput + u.AudioOutput
}

// Cost returns the USD cost of u. Cached counts are a subset of the input
// counts and are billed only at the cached rate.
func (p TokenPricing) Cost(u Usage) float64 {
	perMillion := func(tokens int, rate float64) float64 {
		return float64(tokens) / 1_000_000 * rate
	}

	cost := perMillion(u.TextInput-u.TextCachedInput, p.TextInputPerMillion)
	cost += perMillion(u.TextCachedInput, p.TextCachedPerMillion)
	cost += perMillion(u.AudioInput-u.AudioCachedInput, p.AudioInputPerMillion)
	cost += perMillion(u.AudioCachedInput, p.AudioCachedPerMillion)
	cost += perMillion(u.TextOutput, p.TextOutputPerMillion)
	cost += perMillion(u.AudioOutput, p.AudioOutputPerMillion)

	return cost
}
