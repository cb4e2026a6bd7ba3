package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"FuturesCast/internal/domain/models"
	domsvc "FuturesCast/internal/domain/service"
	applogger "FuturesCast/pkg/logger"
)

const (
	riskMethodology          = "llm_risk_assessment"
	defaultOverallConfidence = 0.6
)

const riskSystemPrompt = `You are a commodity market risk analyst. You quantify how current ` +
	`geopolitical, supply/demand, economic, weather and regulatory factors should shift futures ` +
	`prices away from the market consensus. Respond with a single JSON object only.`

// OpenAIRiskAnalyzer scores risk factors for every requested horizon in a single completion.
type OpenAIRiskAnalyzer struct {
	llm *LLMBase
	now func() time.Time
	log *applogger.Logger
}

func NewOpenAIRiskAnalyzer(llm *LLMBase, log *applogger.Logger) *OpenAIRiskAnalyzer {
	if log == nil {
		log = applogger.Nop()
	}
	return &OpenAIRiskAnalyzer{llm: llm, now: time.Now, log: log}
}

// WithClock overrides the validity-period clock.
func (a *OpenAIRiskAnalyzer) WithClock(now func() time.Time) *OpenAIRiskAnalyzer {
	if now != nil {
		a.now = now
	}
	return a
}

type riskPayload struct {
	Adjustments []struct {
		RiskType         string   `json:"risk_type"`
		AdjustmentFactor *float64 `json:"adjustment_factor"`
		ConfidenceImpact float64  `json:"confidence_impact"`
		Description      string   `json:"description"`
		HorizonMonths    int      `json:"horizon_months"`
		Sources          []string `json:"sources"`
	} `json:"adjustments"`
	OverallConfidence *float64 `json:"overall_confidence"`
	KeyFactors        []string `json:"key_factors"`
	Sources           []string `json:"sources"`
}

func (a *OpenAIRiskAnalyzer) Analyze(ctx context.Context, currentPrice float64, symbol string, q models.RiskQuery) models.Result[*models.RiskAnalysis] {
	categories := q.Categories
	if len(categories) == 0 {
		categories = models.AllRiskTypes()
	}
	horizons := append([]int(nil), q.Horizons...)
	sort.Ints(horizons)

	content, err := a.llm.Complete(ctx, riskSystemPrompt, buildRiskPrompt(symbol, currentPrice, horizons, categories), true)
	if err != nil {
		return models.Failed[*models.RiskAnalysis](err)
	}

	var p riskPayload
	if err := json.Unmarshal([]byte(extractJSONObject(content)), &p); err != nil {
		return models.Failed[*models.RiskAnalysis](fmt.Errorf("%w: risk response is not valid JSON: %v",
			models.ErrProviderUnavailable, err))
	}
	return a.toAnalysis(p, horizons, categories)
}

func (a *OpenAIRiskAnalyzer) toAnalysis(p riskPayload, horizons []int, categories []models.RiskType) models.Result[*models.RiskAnalysis] {
	allowed := make(map[models.RiskType]bool, len(categories))
	for _, c := range categories {
		allowed[c] = true
	}
	wanted := make(map[int]bool, len(horizons))
	maxHorizon := 0
	for _, h := range horizons {
		wanted[h] = true
		if h > maxHorizon {
			maxHorizon = h
		}
	}

	now := a.now().UTC()
	validity := models.ValidityPeriod{Start: now, End: now.AddDate(0, maxHorizon, 0)}

	out := &models.RiskAnalysis{
		OverallConfidence: defaultOverallConfidence,
		KeyFactors:        p.KeyFactors,
		Sources:           p.Sources,
	}
	if p.OverallConfidence != nil && !math.IsNaN(*p.OverallConfidence) {
		out.OverallConfidence = math.Max(0, math.Min(1, *p.OverallConfidence))
	} else {
		out.UsedFallback = true
	}

	var warnings []string
	for i, raw := range p.Adjustments {
		rt := models.RiskType(strings.ToLower(strings.TrimSpace(raw.RiskType)))
		switch {
		case !allowed[rt]:
			warnings = append(warnings, fmt.Sprintf("adjustment %d: unsupported risk type %q", i, raw.RiskType))
			continue
		case raw.AdjustmentFactor == nil || math.IsNaN(*raw.AdjustmentFactor) || math.IsInf(*raw.AdjustmentFactor, 0):
			warnings = append(warnings, fmt.Sprintf("adjustment %d: missing or invalid factor", i))
			continue
		case raw.HorizonMonths > 0 && !wanted[raw.HorizonMonths]:
			warnings = append(warnings, fmt.Sprintf("adjustment %d: horizon %d not requested", i, raw.HorizonMonths))
			continue
		}
		out.Adjustments = append(out.Adjustments, models.RiskAdjustment{
			RiskType:         rt,
			AdjustmentFactor: *raw.AdjustmentFactor,
			ConfidenceImpact: raw.ConfidenceImpact,
			Description:      raw.Description,
			Methodology:      riskMethodology,
			HorizonMonths:    raw.HorizonMonths,
			ValidityPeriod:   validity,
			Sources:          raw.Sources,
		})
	}
	if len(warnings) > 0 {
		a.log.Warn("risk analysis entries dropped", applogger.Strings("warnings", warnings))
	}
	return models.Degraded(out, warnings)
}

func buildRiskPrompt(symbol string, currentPrice float64, horizons []int, categories []models.RiskType) string {
	labels := make([]string, len(horizons))
	for i, h := range horizons {
		labels[i] = fmt.Sprintf("%d", h)
	}
	cats := make([]string, len(categories))
	for i, c := range categories {
		cats[i] = string(c)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Commodity futures symbol: %s\n", symbol)
	fmt.Fprintf(&sb, "Current spot price: %.4f\n", currentPrice)
	fmt.Fprintf(&sb, "Forecast horizons (months): %s\n", strings.Join(labels, ", "))
	fmt.Fprintf(&sb, "Risk categories: %s\n\n", strings.Join(cats, ", "))
	sb.WriteString(`Return JSON with this shape:
{
  "adjustments": [
    {"risk_type": "<category>", "adjustment_factor": <signed fraction, 0.03 = +3%>,
     "confidence_impact": <0..1>, "description": "<one sentence>",
     "horizon_months": <one of the horizons, or 0 for all>, "sources": ["<url>"]}
  ],
  "overall_confidence": <0..1>,
  "key_factors": ["<short phrase>"],
  "sources": ["<url>"]
}
Only include categories with a material effect. Keep factors realistic: most are within ±10%.`)
	return sb.String()
}

// extractJSONObject trims prose or code fences around the outermost JSON object.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

var _ domsvc.RiskProvider = (*OpenAIRiskAnalyzer)(nil)
