package feed

import (
	"encoding/json"
	"fmt"
)

// DefaultURL is the public Coinbase Exchange websocket feed.
const DefaultURL = "wss://ws-feed.exchange.coinbase.com"

// ChannelTicker delivers one update per trade for each subscribed product.
const ChannelTicker = "ticker"

// Subscription names the products and channels requested from the feed
type Subscription struct {
	ProductIDs []string
	Channels   []string
}

type channelSpec struct {
	Name       string   `json:"name"`
	ProductIDs []string `json:"product_ids"`
}

type subscribeRequest struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []any    `json:"channels"`
}

// Message encodes the subscribe request. Every channel is listed both by bare
// name and as an object scoped to the product list.
func (s Subscription) Message() ([]byte, error) {
	if len(s.ProductIDs) == 0 {
		return nil, fmt.Errorf("subscription has no product ids")
	}
	channels := s.Channels
	if len(channels) == 0 {
		channels = []string{ChannelTicker}
	}

	req := subscribeRequest{
		Type:       "subscribe",
		ProductIDs: s.ProductIDs,
		Channels:   make([]any, 0, len(channels)*2),
	}
	for _, ch := range channels {
		req.Channels = append(req.Channels, ch, channelSpec{Name: ch, ProductIDs: s.ProductIDs})
	}
	return json.Marshal(req)
}
