package cellular

import "fmt"

// ServingCell identifies the tower currently providing the connection.
// ParseServing rejects identifiers outside the ranges noted below.
type ServingCell struct {
	RAT         RadioAccessTechnology `json:"rat"`
	MCC         uint32                `json:"mcc"`     // mobile country code, 0-999
	MNC         uint32                `json:"mnc"`     // mobile network code, 0-999
	CellID      uint32                `json:"cell_id"` // 28 bits
	LAC         uint32                `json:"lac"`     // tracking/location area code, 16 bits
	SignalPower int                   `json:"signal_power"`
}

// Clear resets the record to its invalid default.
func (c *ServingCell) Clear() {
	*c = ServingCell{RAT: RATNone}
}

// IsValid reports whether the record holds parsed data.
func (c ServingCell) IsValid() bool {
	return c.RAT.Known()
}

func (c ServingCell) String() string {
	return fmt.Sprintf("rat=%s mcc=%d mnc=%d lac=%x cellId=%x signalPower=%d",
		c.RAT, c.MCC, c.MNC, c.LAC, c.CellID, c.SignalPower)
}

// NeighborCell is a nearby tower seen by the modem but not connected to.
// ParseNeighbor rejects a NeighborID above 503.
type NeighborCell struct {
	RAT            RadioAccessTechnology `json:"rat"`
	EARFCN         uint32                `json:"earfcn"`
	NeighborID     uint32                `json:"neighbor_id"` // physical cell id, 0-503
	SignalQuality  int                   `json:"signal_quality"`
	SignalPower    int                   `json:"signal_power"`
	SignalStrength int                   `json:"signal_strength"`
}

// Clear resets the record to its invalid default.
func (c *NeighborCell) Clear() {
	*c = NeighborCell{RAT: RATNone}
}

// IsValid reports whether the record holds parsed data.
func (c NeighborCell) IsValid() bool {
	return c.RAT.Known()
}

func (c NeighborCell) String() string {
	return fmt.Sprintf("rat=%s earfcn=%d neighborId=%d signalQuality=%d signalPower=%d signalStrength=%d",
		c.RAT, c.EARFCN, c.NeighborID, c.SignalQuality, c.SignalPower, c.SignalStrength)
}
