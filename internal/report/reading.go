package report

import "time"

// Reading is one channel value leaving the pipeline.
type Reading struct {
	Node    string    `json:"node" cbor:"1,keyasint"`
	Boot    string    `json:"boot" cbor:"2,keyasint"`
	Sensor  string    `json:"sensor" cbor:"3,keyasint"`
	Channel string    `json:"channel" cbor:"4,keyasint"`
	Index   int       `json:"index" cbor:"5,keyasint"`
	Value   float64   `json:"value" cbor:"6,keyasint"`
	Status  string    `json:"status" cbor:"7,keyasint"`
	Unit    int       `json:"unit" cbor:"8,keyasint"`
	Count   uint32    `json:"count" cbor:"9,keyasint"`
	Time    time.Time `json:"time" cbor:"10,keyasint"`
}

// Alarm is raised when a channel crosses one of its thresholds.
type Alarm struct {
	Node      string    `json:"node" cbor:"1,keyasint"`
	Sensor    string    `json:"sensor" cbor:"2,keyasint"`
	Channel   string    `json:"channel" cbor:"3,keyasint"`
	Index     int       `json:"index" cbor:"4,keyasint"`
	Value     float64   `json:"value" cbor:"5,keyasint"`
	Threshold float64   `json:"threshold" cbor:"6,keyasint"`
	Kind      string    `json:"kind" cbor:"7,keyasint"` // "above" or "below"
	Time      time.Time `json:"time" cbor:"8,keyasint"`
}
