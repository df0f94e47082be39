package models

// Requests for the status HTTP endpoints. Defined in domain for consistency and reuse.

type TradesRequest struct {
	Symbol string `query:"symbol" json:"symbol"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=5000"`
	Offset int    `query:"offset" json:"offset" default:"0" validate:"gte=0"`
}

type EquityRequest struct {
	Points int `query:"points" json:"points" default:"500" validate:"gte=1,lte=20000"`
}

type CandlesRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=100000"`
}
