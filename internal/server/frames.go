package server

import (
	"encoding/json"

	"github.com/adred-codev/ratefeed/internal/rates"
	"github.com/adred-codev/ratefeed/internal/symbols"
)

// Actions understood on the wire. Clients send assets and subscribe; the
// server replies with assets, asset_history and point frames.
const (
	actionAssets    = "assets"
	actionSubscribe = "subscribe"
	actionHistory   = "asset_history"
	actionPoint     = "point"
)

// inboundFrame is the envelope of every client frame. Message stays raw
// until the action is known.
type inboundFrame struct {
	Action  string          `json:"action"`
	Message json.RawMessage `json:"message"`
}

type subscribeMessage struct {
	AssetID int `json:"assetId"`
}

type outboundFrame struct {
	Action  string `json:"action"`
	Message any    `json:"message"`
}

type assetsMessage struct {
	Assets []symbols.Symbol `json:"assets"`
}

type historyMessage struct {
	Points []rates.Point `json:"points"`
}

func encodeAssetsFrame(assets []symbols.Symbol) ([]byte, error) {
	return json.Marshal(outboundFrame{
		Action:  actionAssets,
		Message: assetsMessage{Assets: assets},
	})
}

func encodeHistoryFrame(points []rates.Point) ([]byte, error) {
	if points == nil {
		points = []rates.Point{}
	}
	return json.Marshal(outboundFrame{
		Action:  actionHistory,
		Message: historyMessage{Points: points},
	})
}

func encodePointFrame(point rates.Point) ([]byte, error) {
	return json.Marshal(outboundFrame{
		Action:  actionPoint,
		Message: point,
	})
}
