package analytics

import (
	"regexp"
	"strconv"
	"strings"

	domsvc "FuturesCast/internal/domain/service"
)

var (
	numberRe   = regexp.MustCompile(`(\$\s?)?(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)(\s?%)?`)
	forecastRe = regexp.MustCompile(`(?i)\b(forecast|target|expect|project|predict|outlook|estimate|average|consensus|reach)`)
	sentenceRe = regexp.MustCompile(`[!?\n;]+|\.\s+`)
	sourceRe   = regexp.MustCompile(`https?://[^\s)\]>"']+`)
	labelRe    = regexp.MustCompile(`(?im)^[\s*_#-]*forecast price[\s*_]*:(.*)$`)
)

// ForecastLabel prefixes the line the web search prompt asks the model to end with.
const ForecastLabel = "Forecast price:"

// RegexPriceExtractor finds the most plausible price in free text. A "Forecast price:" line
// wins, then the number closest after a forecast keyword in the same sentence, then dollar
// amounts, then bare numbers; a candidate must fall within [MinRatio, MaxRatio] of the
// current price.
type RegexPriceExtractor struct {
	MinRatio float64
	MaxRatio float64
}

func NewRegexPriceExtractor() *RegexPriceExtractor {
	return &RegexPriceExtractor{MinRatio: 0.5, MaxRatio: 1.5}
}

type priceToken struct {
	value    float64
	currency bool
	start    int
	end      int
}

func (e *RegexPriceExtractor) ExtractPrice(text string, currentPrice float64) (float64, bool) {
	if strings.TrimSpace(text) == "" {
		return 0, false
	}

	for _, m := range labelRe.FindAllStringSubmatch(text, -1) {
		if v, ok := e.pick(tokens(m[1]), currentPrice, false); ok {
			return v, true
		}
	}

	for _, sentence := range sentenceRe.Split(text, -1) {
		if v, ok := e.nearestToKeyword(sentence, currentPrice); ok {
			return v, true
		}
	}

	all := tokens(text)
	if v, ok := e.pick(all, currentPrice, true); ok {
		return v, true
	}
	return e.pick(all, currentPrice, false)
}

func (e *RegexPriceExtractor) pick(ts []priceToken, currentPrice float64, currencyOnly bool) (float64, bool) {
	for _, t := range ts {
		if currencyOnly && !t.currency {
			continue
		}
		if e.plausible(t.value, currentPrice) {
			return t.value, true
		}
	}
	return 0, false
}

// nearestToKeyword scores plausible numbers by their distance to a forecast keyword.
// Numbers after a keyword beat numbers before any keyword, so "trades at $75, forecast
// is $78" yields 78.
func (e *RegexPriceExtractor) nearestToKeyword(sentence string, currentPrice float64) (float64, bool) {
	kws := forecastRe.FindAllStringIndex(sentence, -1)
	if len(kws) == 0 {
		return 0, false
	}
	best, bestScore := 0.0, -1
	for _, t := range tokens(sentence) {
		if !e.plausible(t.value, currentPrice) {
			continue
		}
		score := -1
		for _, kw := range kws {
			var d int
			if kw[1] <= t.start {
				d = t.start - kw[1]
			} else {
				d = len(sentence) + kw[0] - t.end
			}
			if score < 0 || d < score {
				score = d
			}
		}
		if bestScore < 0 || score < bestScore {
			best, bestScore = t.value, score
		}
	}
	return best, bestScore >= 0
}

func (e *RegexPriceExtractor) plausible(v, currentPrice float64) bool {
	if v <= 0 {
		return false
	}
	if currentPrice <= 0 {
		return true
	}
	return v >= currentPrice*e.MinRatio && v <= currentPrice*e.MaxRatio
}

// tokens lists numeric candidates in order, skipping percentages and bare years.
func tokens(s string) []priceToken {
	var out []priceToken
	for _, idx := range numberRe.FindAllStringSubmatchIndex(s, -1) {
		if idx[6] >= 0 {
			continue
		}
		raw := strings.ReplaceAll(s[idx[4]:idx[5]], ",", "")
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		currency := idx[2] >= 0
		if !currency && !strings.Contains(raw, ".") && v >= 1900 && v <= 2100 {
			continue
		}
		out = append(out, priceToken{value: v, currency: currency, start: idx[0], end: idx[1]})
	}
	return out
}

// ExtractSources returns the distinct URLs cited in text, in order of appearance.
func ExtractSources(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, u := range sourceRe.FindAllString(text, -1) {
		u = strings.TrimRight(u, ".,")
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

var _ domsvc.PriceExtractor = (*RegexPriceExtractor)(nil)
