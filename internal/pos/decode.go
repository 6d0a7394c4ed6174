package pos

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/divestreams/pos/internal/domain"
)

// DecodeCheckoutRequest parses a checkout body. Numbers may arrive as JSON numbers or as
// strings (form submissions), and every failure is reported as a SchemaViolation with the
// offending path.
func DecodeCheckoutRequest(data []byte) (domain.CheckoutRequest, error) {
	fields, err := decodeObject("", data)
	if err != nil {
		return domain.CheckoutRequest{}, err
	}

	var req domain.CheckoutRequest

	rawItems, err := decodeArray("items", fields["items"])
	if err != nil {
		return domain.CheckoutRequest{}, err
	}
	req.Items = make([]domain.LineItem, 0, len(rawItems))
	for i, raw := range rawItems {
		item, err := DecodeLineItem(raw)
		if err != nil {
			return domain.CheckoutRequest{}, prefixed(itemPath(i), err)
		}
		req.Items = append(req.Items, item)
	}

	rawPayments, err := decodeArray("payments", fields["payments"])
	if err != nil {
		return domain.CheckoutRequest{}, err
	}
	req.Payments = make([]domain.PaymentInstrument, 0, len(rawPayments))
	for i, raw := range rawPayments {
		payment, err := DecodePayment(raw)
		if err != nil {
			return domain.CheckoutRequest{}, prefixed(paymentPath(i), err)
		}
		req.Payments = append(req.Payments, payment)
	}

	if req.CustomerID, err = optionalUUID(fields, "customerId"); err != nil {
		return domain.CheckoutRequest{}, err
	}
	if req.Subtotal, err = requiredMoney(fields, "subtotal"); err != nil {
		return domain.CheckoutRequest{}, err
	}
	if req.Tax, err = requiredMoney(fields, "tax"); err != nil {
		return domain.CheckoutRequest{}, err
	}
	if req.Total, err = requiredMoney(fields, "total"); err != nil {
		return domain.CheckoutRequest{}, err
	}
	if req.Notes, err = optionalString(fields, "notes"); err != nil {
		return domain.CheckoutRequest{}, err
	}
	return req, nil
}

// DecodeLineItem parses one kind-tagged line item.
func DecodeLineItem(data []byte) (domain.LineItem, error) {
	fields, err := decodeObject("", data)
	if err != nil {
		return nil, err
	}
	kind, err := requiredString(fields, "kind")
	if err != nil {
		return nil, err
	}

	switch domain.LineItemKind(strings.ToLower(kind)) {
	case domain.LineItemProduct:
		var item domain.ProductItem
		if item.ProductID, err = requiredUUID(fields, "productId"); err != nil {
			return nil, err
		}
		if item.Name, err = requiredString(fields, "name"); err != nil {
			return nil, err
		}
		if item.Quantity, err = requiredInt(fields, "quantity"); err != nil {
			return nil, err
		}
		if item.UnitPrice, err = requiredMoney(fields, "unitPrice"); err != nil {
			return nil, err
		}
		if item.Total, err = requiredMoney(fields, "total"); err != nil {
			return nil, err
		}
		return item, nil
	case domain.LineItemRental:
		var item domain.RentalItem
		if item.EquipmentID, err = requiredUUID(fields, "equipmentId"); err != nil {
			return nil, err
		}
		if item.Name, err = requiredString(fields, "name"); err != nil {
			return nil, err
		}
		if item.Size, err = optionalString(fields, "size"); err != nil {
			return nil, err
		}
		if item.Days, err = requiredInt(fields, "days"); err != nil {
			return nil, err
		}
		if item.DailyRate, err = requiredMoney(fields, "dailyRate"); err != nil {
			return nil, err
		}
		if item.Total, err = requiredMoney(fields, "total"); err != nil {
			return nil, err
		}
		return item, nil
	case domain.LineItemBooking:
		var item domain.BookingItem
		if item.TripID, err = requiredUUID(fields, "tripId"); err != nil {
			return nil, err
		}
		if item.TourName, err = requiredString(fields, "tourName"); err != nil {
			return nil, err
		}
		if item.Participants, err = requiredInt(fields, "participants"); err != nil {
			return nil, err
		}
		if item.UnitPrice, err = requiredMoney(fields, "unitPrice"); err != nil {
			return nil, err
		}
		if item.Total, err = requiredMoney(fields, "total"); err != nil {
			return nil, err
		}
		return item, nil
	default:
		return nil, violation("kind", "unknown line item kind %q", kind)
	}
}

// DecodePayment parses one method-tagged payment instrument.
func DecodePayment(data []byte) (domain.PaymentInstrument, error) {
	fields, err := decodeObject("", data)
	if err != nil {
		return nil, err
	}
	method, err := requiredString(fields, "method")
	if err != nil {
		return nil, err
	}

	switch domain.PaymentMethod(strings.ToLower(method)) {
	case domain.PaymentMethodCash:
		var cash domain.CashPayment
		if cash.Amount, err = requiredMoney(fields, "amount"); err != nil {
			return nil, err
		}
		if cash.Tendered, err = requiredMoney(fields, "tendered"); err != nil {
			return nil, err
		}
		if cash.Change, err = optionalMoney(fields, "change"); err != nil {
			return nil, err
		}
		return cash, nil
	case domain.PaymentMethodCard:
		var card domain.CardPayment
		if card.Amount, err = requiredMoney(fields, "amount"); err != nil {
			return nil, err
		}
		if card.PaymentReference, err = requiredString(fields, "paymentReference"); err != nil {
			return nil, err
		}
		return card, nil
	default:
		return nil, violation("method", "unknown payment method %q", method)
	}
}

func decodeObject(path string, data []byte) (map[string]json.RawMessage, error) {
	if isAbsent(data) {
		return nil, violation(path, "object is required")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, violation(path, "must be a JSON object")
	}
	return fields, nil
}

func decodeArray(path string, data json.RawMessage) ([]json.RawMessage, error) {
	if isAbsent(data) {
		return nil, nil
	}
	var out []json.RawMessage
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, violation(path, "%s must be an array", path)
	}
	return out, nil
}

func isAbsent(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func optionalString(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok || isAbsent(raw) {
		return "", nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", violation(key, "%s must be a string", key)
	}
	return value, nil
}

func requiredString(fields map[string]json.RawMessage, key string) (string, error) {
	value, err := optionalString(fields, key)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(value) == "" {
		return "", violation(key, "%s is required", key)
	}
	return value, nil
}

func requiredUUID(fields map[string]json.RawMessage, key string) (uuid.UUID, error) {
	value, err := requiredString(fields, key)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil, violation(key, "%s must be a valid UUID", key)
	}
	return id, nil
}

func optionalUUID(fields map[string]json.RawMessage, key string) (*uuid.UUID, error) {
	value, err := optionalString(fields, key)
	if err != nil || strings.TrimSpace(value) == "" {
		return nil, err
	}
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return nil, violation(key, "%s must be a valid UUID", key)
	}
	return &id, nil
}

func requiredInt(fields map[string]json.RawMessage, key string) (int64, error) {
	raw, ok := fields[key]
	if !ok || isAbsent(raw) {
		return 0, violation(key, "%s is required", key)
	}
	var value int64
	if err := json.Unmarshal(raw, &value); err == nil {
		return value, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64); err == nil {
			return parsed, nil
		}
	}
	return 0, violation(key, "%s must be a positive integer", key)
}

func optionalMoney(fields map[string]json.RawMessage, key string) (domain.Money, error) {
	raw, ok := fields[key]
	if !ok || isAbsent(raw) {
		return 0, nil
	}
	var value domain.Money
	if err := json.Unmarshal(raw, &value); err != nil {
		if errors.Is(err, domain.ErrMoneyPrecision) {
			return 0, violation(key, "%s must have at most 2 decimal places", key)
		}
		return 0, violation(key, "%s must be a decimal amount", key)
	}
	return value, nil
}

func requiredMoney(fields map[string]json.RawMessage, key string) (domain.Money, error) {
	raw, ok := fields[key]
	if !ok || isAbsent(raw) {
		return 0, violation(key, "%s is required", key)
	}
	return optionalMoney(fields, key)
}
