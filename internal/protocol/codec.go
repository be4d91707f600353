package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
)

var (
	// ErrSchema is returned for frames that do not follow the envelope schema
	ErrSchema = errors.New("protocol schema violation")

	// ErrMalformedBid is returned when a bid frame does not carry a single
	// non-negative number.
	ErrMalformedBid = errors.New("malformed bid")
)

// Kind names the message carried by an envelope
type Kind string

const (
	KindQueued      Kind = "queued"
	KindStart       Kind = "start"
	KindBidRequest  Kind = "bid_request"
	KindBid         Kind = "bid"
	KindRoundResult Kind = "round_result"
	KindFinalReport Kind = "final_report"
	KindInfo        Kind = "info"
	KindWarning     Kind = "warning"
)

// Envelope is a decoded frame whose payload has not been interpreted yet
type Envelope struct {
	Kind  Kind
	Round *int

	data      []byte
	unmarshal func([]byte, any) error
}

// Data decodes the payload into v
func (e Envelope) Data(v any) error {
	if len(e.data) == 0 {
		return fmt.Errorf("%w: %s frame has no data", ErrSchema, e.Kind)
	}
	if err := e.unmarshal(e.data, v); err != nil {
		return fmt.Errorf("%w: %s data: %v", ErrSchema, e.Kind, err)
	}
	return nil
}

// Codec turns envelopes into websocket frames and back
type Codec interface {
	Name() string

	// FrameType is the websocket message type the codec writes
	FrameType() int

	Encode(kind Kind, round *int, data any) ([]byte, error)
	Decode(frame []byte) (Envelope, error)
}

// CodecFor returns the codec registered under name ("" selects JSON)
func CodecFor(name string) (Codec, error) {
	switch name {
	case "", JSON.Name():
		return JSON, nil
	case CBOR.Name():
		return CBOR, nil
	}
	return nil, fmt.Errorf("unknown encoding %q", name)
}

// Round returns a pointer suitable for the round field of an envelope
func Round(i int) *int {
	return &i
}

var (
	JSON Codec = jsonCodec{}
	CBOR Codec = newCBORCodec()
)

type jsonFrame struct {
	Kind  Kind            `json:"kind"`
	Round *int            `json:"round,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type jsonCodec struct{}

func (jsonCodec) Name() string   { return "json" }
func (jsonCodec) FrameType() int { return websocket.TextMessage }

func (jsonCodec) Encode(kind Kind, round *int, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s data: %w", kind, err)
	}
	return json.Marshal(jsonFrame{Kind: kind, Round: round, Data: raw})
}

func (jsonCodec) Decode(frame []byte) (Envelope, error) {
	var f jsonFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if f.Kind == "" {
		return Envelope{}, fmt.Errorf("%w: missing kind", ErrSchema)
	}
	return Envelope{Kind: f.Kind, Round: f.Round, data: f.Data, unmarshal: json.Unmarshal}, nil
}

type cborFrame struct {
	Kind  Kind            `cbor:"kind"`
	Round *int            `cbor:"round,omitempty"`
	Data  cbor.RawMessage `cbor:"data,omitempty"`
}

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORCodec() cborCodec {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	// Nested maps decode with string keys like their JSON counterparts
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return cborCodec{enc: enc, dec: dec}
}

func (cborCodec) Name() string   { return "cbor" }
func (cborCodec) FrameType() int { return websocket.BinaryMessage }

func (c cborCodec) Encode(kind Kind, round *int, data any) ([]byte, error) {
	raw, err := c.enc.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s data: %w", kind, err)
	}
	return c.enc.Marshal(cborFrame{Kind: kind, Round: round, Data: raw})
}

func (c cborCodec) Decode(frame []byte) (Envelope, error) {
	var f cborFrame
	if err := c.dec.Unmarshal(frame, &f); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if f.Kind == "" {
		return Envelope{}, fmt.Errorf("%w: missing kind", ErrSchema)
	}
	return Envelope{Kind: f.Kind, Round: f.Round, data: f.Data, unmarshal: c.dec.Unmarshal}, nil
}
