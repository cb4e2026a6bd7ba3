package models

import "time"

// ContractMapping ties a forecast horizon to the futures contract that best represents it.
type ContractMapping struct {
	HorizonMonths    int       `json:"horizon_months"`
	HorizonLabel     string    `json:"horizon"`
	TargetDate       time.Time `json:"target_date"`
	ContractSymbol   string    `json:"contract_symbol"`
	ContractMonth    string    `json:"contract_month"`
	ContractYear     int       `json:"contract_year"`
	ExpirationDate   time.Time `json:"expiration_date"`
	DaysToExpiration int       `json:"days_to_expiration"`
}

// FuturesContract is a single point on a futures curve.
type FuturesContract struct {
	Symbol           string    `json:"symbol"`
	Maturity         string    `json:"maturity"` // ISO date of expiration
	Price            float64   `json:"price"`
	Volume           *float64  `json:"volume,omitempty"`
	OpenInterest     *float64  `json:"open_interest,omitempty"`
	DaysToExpiration int       `json:"days_to_expiration"`
	AsOf             time.Time `json:"as_of"`
}

type CurveMetrics struct {
	Contango      bool    `json:"contango"`
	Backwardation bool    `json:"backwardation"`
	AverageSpread float64 `json:"average_spread"`
	Steepness     float64 `json:"steepness"` // annualized price slope
}

// FuturesCurve holds the contracts of one underlying ordered by expiration.
type FuturesCurve struct {
	UnderlyingSymbol string            `json:"underlying_symbol"`
	CurveDate        time.Time         `json:"curve_date"`
	Contracts        []FuturesContract `json:"contracts"`
	Metrics          CurveMetrics      `json:"curve_metrics"`
	Sources          []string          `json:"sources"`
	LastUpdated      time.Time         `json:"last_updated"`
}

// Quote is what a QuoteProvider returns for one contract symbol.
type Quote struct {
	Symbol       string    `json:"symbol"`
	Price        float64   `json:"price"`
	Volume       *float64  `json:"volume,omitempty"`
	OpenInterest *float64  `json:"open_interest,omitempty"`
	AsOf         time.Time `json:"as_of"`
	Source       string    `json:"source,omitempty"`
}
