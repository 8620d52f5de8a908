package cellular

// LocationTower is the compact per-tower record consumed by location
// services. Serving cells carry rat/mcc/mnc/lac/cid; neighbors carry nid/ch.
// Both carry str.
type LocationTower struct {
	RAT      string  `json:"rat,omitempty"`
	MCC      *uint32 `json:"mcc,omitempty"`
	MNC      *uint32 `json:"mnc,omitempty"`
	LAC      *uint32 `json:"lac,omitempty"`
	CellID   *uint32 `json:"cid,omitempty"`
	Neighbor *uint32 `json:"nid,omitempty"`
	Channel  *uint32 `json:"ch,omitempty"`
	Strength int     `json:"str"`
}

func u32(v uint32) *uint32 { return &v }

// LocationTowers renders the serving cell followed by the neighbors, at most
// limit entries in total (0 = all). An invalid snapshot renders nothing.
func (t TowerInfo) LocationTowers(limit int) []LocationTower {
	if !t.IsValid() {
		return nil
	}

	towers := make([]LocationTower, 0, 1+len(t.Neighbors))
	towers = append(towers, LocationTower{
		RAT:      t.Serving.RAT.Token(),
		MCC:      u32(t.Serving.MCC),
		MNC:      u32(t.Serving.MNC),
		LAC:      u32(t.Serving.LAC),
		CellID:   u32(t.Serving.CellID),
		Strength: t.Serving.SignalPower,
	})
	for _, n := range t.Neighbors {
		if limit > 0 && len(towers) >= limit {
			break
		}
		towers = append(towers, LocationTower{
			Neighbor: u32(n.NeighborID),
			Channel:  u32(n.EARFCN),
			Strength: n.SignalPower,
		})
	}
	return towers
}
