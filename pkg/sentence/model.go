package sentence

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentence layout. Offsets are 0-based, end-exclusive.
const (
	SentenceLength = 47
	Terminator     = ']'

	// Only R/hr is ever reported. Sv/hr exists on the instrument but the
	// sentence gives no way to tell which one is active.
	UnitRoentgenPerHour = "R/hr"
	UnitSievertPerHour  = "Sv/hr"
)

type field struct {
	start, end int
}

var (
	fieldSeqNo     = field{0, 2}
	fieldID        = field{2, 3}
	fieldRate      = field{3, 8}
	fieldDose      = field{9, 14}
	fieldUnfRate   = field{15, 20}
	fieldFlags     = field{21, 25}
	fieldDebugRaw  = field{26, 37}
	fieldDebugData = field{38, 43}
	fieldChecksum  = field{44, 46}
)

func (f field) slice(line string) string {
	return line[f.start:f.end]
}

type Probe uint8

const (
	ProbeUnknown Probe = iota
	ProbeInternalLow
	ProbeInternalHigh
)

func (p Probe) String() string {
	switch p {
	case ProbeInternalLow:
		return "Internal low range"
	case ProbeInternalHigh:
		return "Internal high range"
	default:
		return "Unknown"
	}
}

func (p Probe) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Probe) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Internal low range":
		*p = ProbeInternalLow
	case "Internal high range":
		*p = ProbeInternalHigh
	default:
		*p = ProbeUnknown
	}
	return nil
}

// DebugField holds what could be made of the debug block. Exactly one of
// RateAlarmThresh, DoseAlarmThresh or the DebugData* passthrough is set.
type DebugField struct {
	RateAlarmThresh *float64 `json:"rate_alarm_thresh,omitempty"`
	DoseAlarmThresh *float64 `json:"dose_alarm_thresh,omitempty"`

	// Unknown debug IDs are passed up verbatim.
	DebugDataID string `json:"debug_data_id,omitempty"`
	DebugData   string `json:"debug_data,omitempty"`
	DebugUnk    string `json:"debug_unk,omitempty"`

	ProbeFlag string `json:"probe_flag"`
}

// ParsedReport is one decoded sentence. When Valid is false nothing else
// in the report is meaningful.
type ParsedReport struct {
	Valid bool   `json:"valid"`
	SeqNo int    `json:"seq_no"`
	ID    string `json:"id"`

	// Dose values in Unit, rounded to 6 decimals
	DoseRt    float64 `json:"dose_rt"`
	DoseAcc   float64 `json:"dose_acc"`
	DoseRtUnf float64 `json:"dose_rt_unf"`

	RateAlarm bool  `json:"rate_alarm"`
	DoseAlarm bool  `json:"dose_alarm"`
	BattAlarm bool  `json:"batt_alarm"`
	Probe     Probe `json:"probe"`

	Unit string `json:"unit"`

	// Parsed from hex but never verified against the sentence.
	Checksum int `json:"checksum"`

	DebugField
}

// Invalid is the bare marker returned for anything that failed to decode.
func Invalid() ParsedReport {
	return ParsedReport{Valid: false}
}

func (r *ParsedReport) ToJsonBytes() []byte {
	data, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	return data
}

// ReportFromJsonBytes returns nil if the message isn't a report.
func ReportFromJsonBytes(data []byte) *ParsedReport {
	var report ParsedReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil
	}
	return &report
}

var (
	ErrMalformedSentence = errors.New("malformed sentence")
	ErrInvalidField      = errors.New("invalid field")
)

// NumericFormatError is returned for values not in MM±E / MMM±E notation.
type NumericFormatError struct {
	Value string
}

func (e *NumericFormatError) Error() string {
	return fmt.Sprintf("invalid numeric notation %q", e.Value)
}

// FlagFormatError is returned when a flag block character is outside its set.
type FlagFormatError struct {
	Position int
	Char     byte
}

func (e *FlagFormatError) Error() string {
	return fmt.Sprintf("invalid flag %q at position %d", e.Char, e.Position)
}
