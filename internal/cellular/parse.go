package cellular

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNotEnoughData is returned when a response line is truncated or a
	// required field cannot be extracted.
	ErrNotEnoughData = errors.New("not enough data in response line")

	// ErrUnsupportedTechnology is returned when every required field parsed
	// but the radio technology token is not one we recognise.
	ErrUnsupportedTechnology = errors.New("unsupported radio access technology")
)

const (
	qengPrefix          = "+QENG:"
	servingTag          = "servingcell"
	neighborTagPrefix   = "neighbourcell "
	servingSkippedCount = 5 // pcid, earfcn, band, ul_bw, dl_bw
)

// Upper bounds of the identifiers a response line may carry.
const (
	maxMCC    = 999
	maxMNC    = 999
	maxCellID = 1<<28 - 1
	maxTAC    = 1<<16 - 1
	maxPCI    = 503
	maxEARFCN = 1<<32 - 1
)

// field is one comma separated element of a QENG response.
type field struct {
	text   string
	quoted bool
}

// splitFields breaks the payload following "+QENG:" into fields. Commas
// inside double quotes do not split. Leading and trailing spaces around each
// field are dropped.
func splitFields(payload string) []field {
	var (
		fields  []field
		b       strings.Builder
		inQuote bool
		quoted  bool
	)
	flush := func() {
		text := b.String()
		if !quoted {
			text = strings.TrimSpace(text)
		}
		fields = append(fields, field{text: text, quoted: quoted})
		b.Reset()
		quoted = false
	}
	for _, r := range payload {
		switch {
		case r == '"':
			inQuote = !inQuote
			quoted = true
		case r == ',' && !inQuote:
			flush()
		case inQuote:
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\r' || r == '\n':
			// whitespace outside quotes is insignificant
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return fields
}

// fieldReader walks the fields of a line, tracking the first failure so the
// caller can check once at the end.
type fieldReader struct {
	fields []field
	pos    int
	err    error
}

func newFieldReader(line string) (*fieldReader, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, qengPrefix) {
		return nil, fmt.Errorf("%w: missing %s prefix", ErrNotEnoughData, qengPrefix)
	}
	return &fieldReader{fields: splitFields(strings.TrimPrefix(trimmed, qengPrefix))}, nil
}

func (fr *fieldReader) next(name string) (field, bool) {
	if fr.err != nil {
		return field{}, false
	}
	if fr.pos >= len(fr.fields) {
		fr.err = fmt.Errorf("%w: missing %s", ErrNotEnoughData, name)
		return field{}, false
	}
	f := fr.fields[fr.pos]
	fr.pos++
	return f, true
}

func (fr *fieldReader) quoted(name string) string {
	f, ok := fr.next(name)
	if !ok {
		return ""
	}
	if !f.quoted {
		fr.err = fmt.Errorf("%w: %s is not a quoted string", ErrNotEnoughData, name)
		return ""
	}
	return f.text
}

func (fr *fieldReader) skip(name string) {
	f, ok := fr.next(name)
	if ok && f.text == "" {
		fr.err = fmt.Errorf("%w: empty %s", ErrNotEnoughData, name)
	}
}

// uint reads an unquoted unsigned field no larger than limit.
func (fr *fieldReader) uint(name string, base int, limit uint64) uint32 {
	f, ok := fr.next(name)
	if !ok {
		return 0
	}
	v, err := strconv.ParseUint(f.text, base, 32)
	if err != nil || f.quoted {
		fr.err = fmt.Errorf("%w: bad %s %q", ErrNotEnoughData, name, f.text)
		return 0
	}
	if v > limit {
		fr.err = fmt.Errorf("%w: %s %q out of range", ErrNotEnoughData, name, f.text)
		return 0
	}
	return uint32(v)
}

func (fr *fieldReader) int(name string) int {
	f, ok := fr.next(name)
	if !ok {
		return 0
	}
	v, err := strconv.Atoi(f.text)
	if err != nil || f.quoted {
		fr.err = fmt.Errorf("%w: bad %s %q", ErrNotEnoughData, name, f.text)
		return 0
	}
	return v
}

// ParseServing parses an AT+QENG="servingcell" response line such as
//
//	+QENG: "servingcell","NOCONN","LTE","FDD",310,410,1A2B3C,123,5230,13,5,5,1A,-85,-10,-55,14
//
// On error the returned record is cleared and therefore invalid.
func ParseServing(line string) (ServingCell, error) {
	fr, err := newFieldReader(line)
	if err != nil {
		return ServingCell{RAT: RATNone}, err
	}

	if tag := fr.quoted("tag"); fr.err == nil && tag != servingTag {
		return ServingCell{RAT: RATNone}, fmt.Errorf("%w: not a serving cell line", ErrNotEnoughData)
	}
	fr.quoted("state")
	ratStr := fr.quoted("rat")
	fr.quoted("duplex")
	mcc := fr.uint("mcc", 10, maxMCC)
	mnc := fr.uint("mnc", 10, maxMNC)
	cellID := fr.uint("cellid", 16, maxCellID)
	for i := 0; i < servingSkippedCount; i++ {
		fr.skip("field")
	}
	tac := fr.uint("tac", 16, maxTAC)
	rsrp := fr.int("rsrp")
	if fr.err != nil {
		return ServingCell{RAT: RATNone}, fr.err
	}

	rat := ParseRadioAccessTechnology(ratStr)
	if rat == RATNone {
		return ServingCell{RAT: RATNone}, fmt.Errorf("%w: %q", ErrUnsupportedTechnology, ratStr)
	}

	return ServingCell{
		RAT:         rat,
		MCC:         mcc,
		MNC:         mnc,
		CellID:      cellID,
		LAC:         tac,
		SignalPower: rsrp,
	}, nil
}

// ParseNeighbor parses an AT+QENG="neighbourcell" response line such as
//
//	+QENG: "neighbourcell intra","LTE",5230,123,-12,-95,-65,0,37,7,16,6,44
//
// On error the returned record is cleared and therefore invalid.
func ParseNeighbor(line string) (NeighborCell, error) {
	fr, err := newFieldReader(line)
	if err != nil {
		return NeighborCell{RAT: RATNone}, err
	}

	tag := fr.quoted("tag")
	if fr.err == nil && (!strings.HasPrefix(tag, neighborTagPrefix) || len(tag) == len(neighborTagPrefix)) {
		return NeighborCell{RAT: RATNone}, fmt.Errorf("%w: not a neighbour cell line", ErrNotEnoughData)
	}
	ratStr := fr.quoted("rat")
	earfcn := fr.uint("earfcn", 10, maxEARFCN)
	pci := fr.uint("pcid", 10, maxPCI)
	rsrq := fr.int("rsrq")
	rsrp := fr.int("rsrp")
	rssi := fr.int("rssi")
	if fr.err != nil {
		return NeighborCell{RAT: RATNone}, fr.err
	}

	rat := ParseRadioAccessTechnology(ratStr)
	if rat == RATNone {
		return NeighborCell{RAT: RATNone}, fmt.Errorf("%w: %q", ErrUnsupportedTechnology, ratStr)
	}

	return NeighborCell{
		RAT:            rat,
		EARFCN:         earfcn,
		NeighborID:     pci,
		SignalQuality:  rsrq,
		SignalPower:    rsrp,
		SignalStrength: rssi,
	}, nil
}
