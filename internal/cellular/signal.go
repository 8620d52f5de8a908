package cellular

import "fmt"

// NoQuality is the AT+CSQ bit error rate reported when it is not known.
const NoQuality = 99

// Signal is one instantaneous signal-strength reading.
type Signal struct {
	Strength int `json:"strength"` // dBm, negative when the modem has a reading
	Quality  int `json:"quality"`  // bit error rate class 0-7, NoQuality if unknown
}

// NoSignal is what a modem without a usable reading reports.
var NoSignal = Signal{Strength: 0, Quality: NoQuality}

// HasReading reports whether s carries a real measurement.
func (s Signal) HasReading() bool {
	return s.Strength < 0
}

func (s Signal) String() string {
	if !s.HasReading() {
		return "no reading"
	}
	return fmt.Sprintf("%d dBm", s.Strength)
}
