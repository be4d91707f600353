package protocol

import (
	"encoding/json"
	"fmt"
	"math"
)

// ParseBid extracts the amount of a bid envelope. A frame of another kind or
// whose data is not an object fails with ErrSchema; a missing, non-numeric,
// negative or non-finite amount fails with ErrMalformedBid.
func ParseBid(env Envelope) (float64, error) {
	if env.Kind != KindBid {
		return 0, fmt.Errorf("%w: expected %s, got %s", ErrSchema, KindBid, env.Kind)
	}

	var data map[string]any
	if err := env.Data(&data); err != nil {
		return 0, err
	}
	if data == nil {
		return 0, fmt.Errorf("%w: bid data is null", ErrSchema)
	}

	raw, ok := data["bid"]
	if !ok {
		return 0, fmt.Errorf("%w: missing bid", ErrMalformedBid)
	}
	amount, ok := asFloat(raw)
	if !ok {
		return 0, fmt.Errorf("%w: bid %v is not a number", ErrMalformedBid, raw)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return 0, fmt.Errorf("%w: bid %v out of range", ErrMalformedBid, amount)
	}
	return amount, nil
}

// DecodeBid decodes a raw frame and parses it as a bid
func DecodeBid(codec Codec, frame []byte) (round *int, amount float64, err error) {
	env, err := codec.Decode(frame)
	if err != nil {
		return nil, 0, err
	}
	amount, err = ParseBid(env)
	return env.Round, amount, err
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
