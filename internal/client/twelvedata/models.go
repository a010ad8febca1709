package twelvedata

// Response payloads for the Twelve Data REST API. Numeric fields arrive
// as strings and are parsed at the boundary.

// apiError is embedded in every endpoint's response; Status is "error"
// when the provider rejected the call.
type apiError struct {
	Status  string `json:"status,omitempty"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type timeSeriesResponse struct {
	apiError
	Meta   timeSeriesMeta  `json:"meta"`
	Values []timeSeriesBar `json:"values"`
}

type timeSeriesMeta struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Currency string `json:"currency"`
	Exchange string `json:"exchange"`
}

type timeSeriesBar struct {
	Datetime string `json:"datetime"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
}

type quoteResponse struct {
	apiError
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	Currency      string `json:"currency"`
	Datetime      string `json:"datetime"`
	Close         string `json:"close"`
	Change        string `json:"change"`
	PercentChange string `json:"percent_change"`
}

type eodResponse struct {
	apiError
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
	Currency string `json:"currency"`
	Datetime string `json:"datetime"`
	Close    string `json:"close"`
}

type symbolSearchResponse struct {
	apiError
	Data []symbolSearchMatch `json:"data"`
}

type symbolSearchMatch struct {
	Symbol         string `json:"symbol"`
	InstrumentName string `json:"instrument_name"`
	Exchange       string `json:"exchange"`
	MICCode        string `json:"mic_code"`
	ExchangeTZ     string `json:"exchange_timezone"`
	InstrumentType string `json:"instrument_type"`
	Country        string `json:"country"`
	Currency       string `json:"currency"`
}

// EODPrice is a single historical end-of-day close.
type EODPrice struct {
	Symbol string  `json:"symbol"`
	Date   string  `json:"date"`
	Close  float64 `json:"close"`
}
