package rates

// Point is a derived mid-price observation for one symbol at one epoch
// second. It is both the internal dispatch unit and the persisted record;
// the JSON field names are part of the client wire format and the storage
// layout.
type Point struct {
	AssetID   int     `json:"assetId" bson:"assetId"`
	AssetName string  `json:"assetName" bson:"assetName"`
	Time      int64   `json:"time" bson:"time"`
	Value     float64 `json:"value" bson:"value"`
}

// MidPrice derives the point value from an upstream quote.
func MidPrice(bid, ask float64) float64 {
	return (ask + bid) / 2
}
