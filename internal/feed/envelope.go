package feed

import (
	"github.com/tidwall/gjson"

	"github.com/Aidin1998/feedrelay/pkg/errors"
)

// Message types the feed uses for subscription state and errors
const (
	TypeSubscriptions = "subscriptions"
	TypeError         = "error"
)

// Envelope is the part of a feed message the relay reads. The rest of the
// payload is never decoded.
type Envelope struct {
	Type      string
	ProductID string
	// Reason carries the feed's error text for TypeError messages.
	Reason string
}

// Parse extracts the envelope from a raw feed frame. The frame must be a JSON
// object with a string "type"; "product_id" is optional.
func Parse(raw []byte) (Envelope, error) {
	if !gjson.ValidBytes(raw) {
		return Envelope{}, errors.MalformedMessage.Explain("invalid json")
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return Envelope{}, errors.MalformedMessage.Explain("not a json object")
	}

	typ := doc.Get("type")
	if typ.Type != gjson.String || typ.Str == "" {
		return Envelope{}, errors.MalformedMessage.Explain("missing type")
	}

	env := Envelope{Type: typ.Str}
	if pid := doc.Get("product_id"); pid.Type == gjson.String {
		env.ProductID = pid.Str
	}
	if env.Type == TypeError {
		env.Reason = doc.Get("reason").String()
		if env.Reason == "" {
			env.Reason = doc.Get("message").String()
		}
	}
	return env, nil
}
