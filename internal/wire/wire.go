// Package wire implements the engine side of the client protocol: the
// {operation, values} request envelope, the typed per-operation payloads
// with go-playground/validator tags, and the response shapes the session
// layer serializes back to clients. The session layer owns transport
// framing and authentication; this package receives one parsed line plus
// an already-authenticated actor and hands back a response object.
package wire

import "encoding/json"

// Operation names consumed by the engine.
const (
	OpInsertLimitOrder   = "insertLimitOrder"
	OpInsertMarketOrder  = "insertMarketOrder"
	OpInsertStopOrder    = "insertStopOrder"
	OpCancelOrder        = "cancelOrder"
	OpGetPriceHistory    = "getPriceHistory"
	OpRegisterPriceAlert = "registerPriceAlert"
)

// Response codes for cancelOrder and registerPriceAlert.
const (
	CodeOK     = 100
	CodeFailed = 101
)

// RejectedOrderID is returned in place of a real order id when a submit
// operation fails validation or a business rule.
const RejectedOrderID = -1

// Request is the envelope every client operation arrives in. Values stays
// raw until the operation is known.
type Request struct {
	Operation string          `json:"operation"`
	Values    json.RawMessage `json:"values"`
}

// InsertLimitValues is the payload of insertLimitOrder.
type InsertLimitValues struct {
	Type  string `json:"type" validate:"required,oneof=bid ask"`
	Size  int64  `json:"size" validate:"required,gt=0"`
	Price int64  `json:"price" validate:"required,gt=0"`
}

// InsertMarketValues is the payload of insertMarketOrder.
type InsertMarketValues struct {
	Type string `json:"type" validate:"required,oneof=bid ask"`
	Size int64  `json:"size" validate:"required,gt=0"`
}

// InsertStopValues is the payload of insertStopOrder. Price is the stop
// trigger, not a limit price.
type InsertStopValues struct {
	Type  string `json:"type" validate:"required,oneof=bid ask"`
	Size  int64  `json:"size" validate:"required,gt=0"`
	Price int64  `json:"price" validate:"required,gt=0"`
}

// CancelValues is the payload of cancelOrder.
type CancelValues struct {
	OrderID int64 `json:"orderId" validate:"required,gt=0"`
}

// PriceHistoryValues is the payload of getPriceHistory. Month is "MMYYYY".
type PriceHistoryValues struct {
	Month string `json:"month" validate:"required,len=6,numeric"`
}

// RegisterAlertValues is the payload of registerPriceAlert.
type RegisterAlertValues struct {
	ThresholdPrice int64 `json:"thresholdPrice" validate:"required,gt=0"`
}

// OrderIDResponse answers the three submit operations. OrderID is
// RejectedOrderID on any failure.
type OrderIDResponse struct {
	OrderID int64 `json:"orderId"`
}

// StatusResponse answers cancelOrder and registerPriceAlert.
type StatusResponse struct {
	Response     int    `json:"response"`
	ErrorMessage string `json:"errorMessage"`
}

// OhlcEntry is one day of getPriceHistory's response, prices in millis.
type OhlcEntry struct {
	Date       string `json:"date"` // DD/MM/YYYY
	OpenPrice  int64  `json:"openPrice"`
	HighPrice  int64  `json:"highPrice"`
	LowPrice   int64  `json:"lowPrice"`
	ClosePrice int64  `json:"closePrice"`
}

// PriceHistoryResponse answers getPriceHistory. TotalDays is the calendar
// length of the requested month; PriceHistory carries one entry per day
// that traded, ascending.
type PriceHistoryResponse struct {
	Month        string      `json:"month"`
	TotalDays    int         `json:"totalDays"`
	PriceHistory []OhlcEntry `json:"priceHistory"`
}

// ErrorResponse answers any request the engine could not route: unknown
// operation, malformed values, malformed month.
type ErrorResponse struct {
	ErrorMessage string `json:"errorMessage"`
}
