package analytics

import (
	"context"
	"fmt"

	"FuturesCast/internal/domain/models"
	domsvc "FuturesCast/internal/domain/service"
	applogger "FuturesCast/pkg/logger"
)

// fallbackConfidence is attached to prices recovered from free text.
const fallbackConfidence = 0.3

// WebSearchFallback asks a search-enabled chat model for a published forecast and pulls the
// price out of its prose answer.
type WebSearchFallback struct {
	llm       *LLMBase
	extractor domsvc.PriceExtractor
	log       *applogger.Logger
}

func NewWebSearchFallback(llm *LLMBase, extractor domsvc.PriceExtractor, log *applogger.Logger) *WebSearchFallback {
	if extractor == nil {
		extractor = NewRegexPriceExtractor()
	}
	if log == nil {
		log = applogger.Nop()
	}
	return &WebSearchFallback{llm: llm, extractor: extractor, log: log}
}

// Extract never fails: ok=false when no call succeeded or no plausible price was found.
func (f *WebSearchFallback) Extract(ctx context.Context, symbol, horizonLabel string, currentPrice float64) (models.FallbackQuote, bool) {
	prompt := fmt.Sprintf(
		"Find a published %s price forecast for the commodity behind futures symbol %s "+
			"(last known price %.2f) and list the sources. "+
			"End the answer with one line of the form %q followed by the forecast as a single number.",
		horizonLabel, symbol, currentPrice, ForecastLabel)

	text, err := f.llm.Complete(ctx, "", prompt, false)
	if err != nil {
		f.log.Warn("web search fallback failed",
			applogger.String("symbol", symbol),
			applogger.String("horizon", horizonLabel),
			applogger.Error(err))
		return models.FallbackQuote{}, false
	}

	price, ok := f.extractor.ExtractPrice(text, currentPrice)
	if !ok {
		f.log.Warn("no price found in web search answer",
			applogger.String("symbol", symbol),
			applogger.String("horizon", horizonLabel))
		return models.FallbackQuote{}, false
	}
	return models.FallbackQuote{
		Price:      price,
		Confidence: fallbackConfidence,
		Sources:    ExtractSources(text),
	}, true
}

var _ domsvc.TextForecastFallback = (*WebSearchFallback)(nil)
