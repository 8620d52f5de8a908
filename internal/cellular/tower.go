package cellular

import (
	"fmt"
	"strings"
)

// TowerInfo is one serving cell and the neighbors seen during a single scan.
// The zero value is not valid; use NewTowerInfo or Clear.
type TowerInfo struct {
	Serving   ServingCell    `json:"serving"`
	Neighbors []NeighborCell `json:"neighbors"`
}

// NewTowerInfo returns an empty, invalid TowerInfo.
func NewTowerInfo() TowerInfo {
	return TowerInfo{Serving: ServingCell{RAT: RATNone}}
}

// Clear drops the serving cell and all neighbors.
func (t *TowerInfo) Clear() {
	t.Serving.Clear()
	t.Neighbors = nil
}

// Assign replaces the contents of t with a deep copy of other. It does not
// merge.
func (t *TowerInfo) Assign(other TowerInfo) {
	t.Serving = other.Serving
	t.Neighbors = nil
	if len(other.Neighbors) > 0 {
		t.Neighbors = make([]NeighborCell, len(other.Neighbors))
		copy(t.Neighbors, other.Neighbors)
	}
}

// Clone returns a deep copy of t.
func (t TowerInfo) Clone() TowerInfo {
	var c TowerInfo
	c.Assign(t)
	return c
}

// IsValid reports whether a serving cell was found. Neighbors alone are not
// enough to make a snapshot usable.
func (t TowerInfo) IsValid() bool {
	return t.Serving.IsValid()
}

// ParseServing parses a serving cell line into t.Serving. A failed parse
// leaves the serving cell cleared.
func (t *TowerInfo) ParseServing(line string) error {
	serving, err := ParseServing(line)
	t.Serving = serving
	return err
}

// ParseNeighbor parses a neighbor line and appends it when it is valid and
// limit (0 = unlimited) has not been reached. Repeated sightings of the same
// cell are appended again.
func (t *TowerInfo) ParseNeighbor(line string, limit int) error {
	neighbor, err := ParseNeighbor(line)
	if err != nil {
		return err
	}
	if limit > 0 && len(t.Neighbors) >= limit {
		return nil
	}
	t.Neighbors = append(t.Neighbors, neighbor)
	return nil
}

func (t TowerInfo) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "serving: %s", t.Serving)
	for i, n := range t.Neighbors {
		fmt.Fprintf(&b, "; neighbor %d: %s", i, n)
	}
	return b.String()
}
