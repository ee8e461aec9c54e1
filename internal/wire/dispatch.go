package wire

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/btcxchange/internal/engine/ordermanager"
	"github.com/abdoElHodaky/btcxchange/internal/engine/pricehistory"
	"github.com/abdoElHodaky/btcxchange/internal/engine/types"
	"github.com/abdoElHodaky/btcxchange/internal/engineerr"
)

// Dispatcher routes one parsed request line, on behalf of an authenticated
// actor, to the order manager and shapes the result for the wire. It holds
// no state beyond its collaborators and is safe for concurrent use.
type Dispatcher struct {
	manager  *ordermanager.Manager
	validate *validator.Validate
	logger   *zap.Logger
}

// NewDispatcher builds a Dispatcher over manager.
func NewDispatcher(manager *ordermanager.Manager, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{manager: manager, validate: validator.New(), logger: logger}
}

// Handle decodes the {operation, values} envelope in line and executes it
// as actor. The returned value is always one of the response structs in
// this package, ready for the session layer to serialize.
func (d *Dispatcher) Handle(actor string, line []byte) interface{} {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return ErrorResponse{ErrorMessage: "malformed request envelope"}
	}
	return d.Dispatch(actor, req)
}

// Dispatch executes an already-decoded request envelope as actor.
func (d *Dispatcher) Dispatch(actor string, req Request) interface{} {
	switch req.Operation {
	case OpInsertLimitOrder:
		return d.insertLimit(actor, req.Values)
	case OpInsertMarketOrder:
		return d.insertMarket(actor, req.Values)
	case OpInsertStopOrder:
		return d.insertStop(actor, req.Values)
	case OpCancelOrder:
		return d.cancel(actor, req.Values)
	case OpGetPriceHistory:
		return d.priceHistory(req.Values)
	case OpRegisterPriceAlert:
		return d.registerAlert(actor, req.Values)
	default:
		d.logger.Debug("unknown operation", zap.String("operation", req.Operation))
		return ErrorResponse{ErrorMessage: "unknown operation: " + req.Operation}
	}
}

// decodeValues unmarshals raw into dst and runs the validator tags. A
// failure at either step is reported the same way: the request payload is
// unusable.
func (d *Dispatcher) decodeValues(raw json.RawMessage, dst interface{}) bool {
	if err := json.Unmarshal(raw, dst); err != nil {
		return false
	}
	return d.validate.Struct(dst) == nil
}

func (d *Dispatcher) insertLimit(actor string, raw json.RawMessage) OrderIDResponse {
	var v InsertLimitValues
	if !d.decodeValues(raw, &v) {
		return OrderIDResponse{OrderID: RejectedOrderID}
	}
	side, err := ParseSide(v.Type)
	if err != nil {
		return OrderIDResponse{OrderID: RejectedOrderID}
	}
	orderID, err := d.manager.SubmitLimit(actor, side, v.Size, v.Price)
	if err != nil {
		d.logger.Debug("limit order rejected", zap.String("actor", actor), zap.Error(err))
		return OrderIDResponse{OrderID: RejectedOrderID}
	}
	return OrderIDResponse{OrderID: orderID}
}

func (d *Dispatcher) insertMarket(actor string, raw json.RawMessage) OrderIDResponse {
	var v InsertMarketValues
	if !d.decodeValues(raw, &v) {
		return OrderIDResponse{OrderID: RejectedOrderID}
	}
	side, err := ParseSide(v.Type)
	if err != nil {
		return OrderIDResponse{OrderID: RejectedOrderID}
	}
	orderID, err := d.manager.SubmitMarket(actor, side, v.Size)
	if err != nil {
		d.logger.Debug("market order rejected", zap.String("actor", actor), zap.Error(err))
		return OrderIDResponse{OrderID: RejectedOrderID}
	}
	return OrderIDResponse{OrderID: orderID}
}

func (d *Dispatcher) insertStop(actor string, raw json.RawMessage) OrderIDResponse {
	var v InsertStopValues
	if !d.decodeValues(raw, &v) {
		return OrderIDResponse{OrderID: RejectedOrderID}
	}
	side, err := ParseSide(v.Type)
	if err != nil {
		return OrderIDResponse{OrderID: RejectedOrderID}
	}
	orderID, err := d.manager.SubmitStop(actor, side, v.Size, v.Price)
	if err != nil {
		d.logger.Debug("stop order rejected", zap.String("actor", actor), zap.Error(err))
		return OrderIDResponse{OrderID: RejectedOrderID}
	}
	return OrderIDResponse{OrderID: orderID}
}

func (d *Dispatcher) cancel(actor string, raw json.RawMessage) StatusResponse {
	var v CancelValues
	if !d.decodeValues(raw, &v) {
		return StatusResponse{Response: CodeFailed, ErrorMessage: "invalid cancel request"}
	}
	if err := d.manager.Cancel(actor, v.OrderID); err != nil {
		return StatusResponse{Response: CodeFailed, ErrorMessage: errorMessage(err)}
	}
	return StatusResponse{Response: CodeOK}
}

func (d *Dispatcher) priceHistory(raw json.RawMessage) interface{} {
	var v PriceHistoryValues
	if !d.decodeValues(raw, &v) {
		return ErrorResponse{ErrorMessage: "month must be MMYYYY"}
	}
	days, err := d.manager.PriceHistory(v.Month)
	if err != nil {
		return ErrorResponse{ErrorMessage: errorMessage(err)}
	}
	resp, err := translateHistory(v.Month, days)
	if err != nil {
		return ErrorResponse{ErrorMessage: errorMessage(err)}
	}
	return resp
}

func (d *Dispatcher) registerAlert(actor string, raw json.RawMessage) StatusResponse {
	var v RegisterAlertValues
	if !d.decodeValues(raw, &v) {
		return StatusResponse{Response: CodeFailed, ErrorMessage: "thresholdPrice must be positive"}
	}
	if err := d.manager.RegisterThreshold(actor, v.ThresholdPrice); err != nil {
		return StatusResponse{Response: CodeFailed, ErrorMessage: errorMessage(err)}
	}
	return StatusResponse{Response: CodeOK}
}

// ParseSide maps the wire side string to types.Side, rejecting anything
// the validator's oneof tag should already have caught — defense at the
// boundary in case a caller skips validation.
func ParseSide(side string) (types.Side, error) {
	switch types.Side(side) {
	case types.Bid, types.Ask:
		return types.Side(side), nil
	default:
		return "", engineerr.New(engineerr.CodeInvalidSide, "side must be bid or ask")
	}
}

// errorMessage extracts a client-safe message from an engine error. A
// non-engineerr error is a bug, not a rejected request, and is reported
// generically rather than leaking internal detail.
func errorMessage(err error) string {
	if engErr, ok := err.(*engineerr.Error); ok {
		return engErr.Message
	}
	return "internal error"
}

// translateHistory converts the engine's OhlcDay series into the wire
// response shape: DD/MM/YYYY dates, millis prices, and the calendar length
// of the requested month.
func translateHistory(month string, days []types.OhlcDay) (PriceHistoryResponse, error) {
	total, err := pricehistory.TotalDays(month)
	if err != nil {
		return PriceHistoryResponse{}, err
	}

	resp := PriceHistoryResponse{Month: month, TotalDays: total, PriceHistory: make([]OhlcEntry, 0, len(days))}
	for _, d := range days {
		date, err := pricehistory.FormatDateDDMMYYYY(d.Date)
		if err != nil {
			return PriceHistoryResponse{}, err
		}
		resp.PriceHistory = append(resp.PriceHistory, OhlcEntry{
			Date:       date,
			OpenPrice:  d.Open,
			HighPrice:  d.High,
			LowPrice:   d.Low,
			ClosePrice: d.Close,
		})
	}
	return resp, nil
}
