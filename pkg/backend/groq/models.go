package groq

import (
	"context"
	"maps"
	"slices"

	"github.com/papercomputeco/canvas/pkg/backend"
)

// limits are Groq's published free tier limits per hosted model.
var limits = map[string]backend.ModelLimits{
	"deepseek-r1-distill-llama-70b": {RequestsPerMinute: 30, RequestsPerDay: 1000, TokensPerMinute: 6000, TokensPerDay: backend.NoLimit},
	"deepseek-r1-distill-qwen-32b":  {RequestsPerMinute: 30, RequestsPerDay: 1000, TokensPerMinute: 6000, TokensPerDay: backend.NoLimit},
	"gemma2-9b-it":                  {RequestsPerMinute: 30, RequestsPerDay: 14400, TokensPerMinute: 15000, TokensPerDay: 500000},
	"llama-3.1-8b-instant":          {RequestsPerMinute: 30, RequestsPerDay: 14400, TokensPerMinute: 6000, TokensPerDay: 500000},
	"llama-3.2-11b-vision-preview":  {RequestsPerMinute: 30, RequestsPerDay: 7000, TokensPerMinute: 7000, TokensPerDay: 500000},
	"llama-3.2-1b-preview":          {RequestsPerMinute: 30, RequestsPerDay: 7000, TokensPerMinute: 7000, TokensPerDay: 500000},
	"llama-3.2-3b-preview":          {RequestsPerMinute: 30, RequestsPerDay: 7000, TokensPerMinute: 7000, TokensPerDay: 500000},
	"llama-3.2-90b-vision-preview":  {RequestsPerMinute: 15, RequestsPerDay: 3500, TokensPerMinute: 7000, TokensPerDay: 250000},
	"llama-3.3-70b-specdec":         {RequestsPerMinute: 30, RequestsPerDay: 1000, TokensPerMinute: 6000, TokensPerDay: 100000},
	"llama-3.3-70b-versatile":       {RequestsPerMinute: 30, RequestsPerDay: 1000, TokensPerMinute: 6000, TokensPerDay: 100000},
	"llama-guard-3-8b":              {RequestsPerMinute: 30, RequestsPerDay: 14400, TokensPerMinute: 15000, TokensPerDay: 500000},
	"llama3-70b-8192":               {RequestsPerMinute: 30, RequestsPerDay: 14400, TokensPerMinute: 6000, TokensPerDay: 500000},
	"llama3-8b-8192":                {RequestsPerMinute: 30, RequestsPerDay: 14400, TokensPerMinute: 6000, TokensPerDay: 500000},
	"mistral-saba-24b":              {RequestsPerMinute: 30, RequestsPerDay: 1000, TokensPerMinute: 6000, TokensPerDay: 500000},
	"mixtral-8x7b-32768":            {RequestsPerMinute: 30, RequestsPerDay: 14400, TokensPerMinute: 5000, TokensPerDay: 500000},
	"qwen-2.5-32b":                  {RequestsPerMinute: 30, RequestsPerDay: 1000, TokensPerMinute: 6000, TokensPerDay: backend.NoLimit},
	"qwen-2.5-coder-32b":            {RequestsPerMinute: 30, RequestsPerDay: 1000, TokensPerMinute: 6000, TokensPerDay: backend.NoLimit},
}

// Models returns the hosted models in name order.
func (b *Backend) Models(context.Context) ([]string, error) {
	return slices.Sorted(maps.Keys(limits)), nil
}

// ModelLimits returns a copy of the rate limit table.
func (b *Backend) ModelLimits() map[string]backend.ModelLimits {
	return maps.Clone(limits)
}
