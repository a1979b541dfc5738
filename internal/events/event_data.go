package events

// TradeExecutedData contains data for TradeExecuted events
type TradeExecutedData struct {
	Symbol       string   `json:"symbol"`
	Type         string   `json:"type"`
	Quantity     float64  `json:"quantity"`
	Price        float64  `json:"price"`
	RealizedGain *float64 `json:"realized_gain,omitempty"`
}

// PricesRefreshedData contains data for PricesRefreshed events
type PricesRefreshedData struct {
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// PortfolioChangedData contains data for PortfolioChanged events
type PortfolioChangedData struct {
	Reason string `json:"reason"` // "trade", "refresh"
}
