// Package sentence decodes the fixed-width ASCII sentences emitted by the
// Canberra/NRC ADM-300 survey meter.
//
// Example sentence:
//
//	01a232+1 143-1 209+1 R..L.I00U3aA4401 600-1 71]
package sentence

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DecodeNumericNotation converts MM±E (4 chars) or MMM±E (5 chars) into a
// decimal. The mantissa is a fraction: "23+1" is 0.0023 * 10^1.
func DecodeNumericNotation(value string) (float64, error) {
	var divisor float64
	switch len(value) {
	case 4:
		divisor = 10000
	case 5:
		divisor = 100000
	default:
		return 0, &NumericFormatError{Value: value}
	}

	mantissa, ok := parseDigits(value[:len(value)-2])
	if !ok {
		return 0, &NumericFormatError{Value: value}
	}
	exp, ok := parseDigits(value[len(value)-1:])
	if !ok {
		return 0, &NumericFormatError{Value: value}
	}

	num := float64(mantissa) / divisor
	switch value[len(value)-2] {
	case '-':
		num *= math.Pow(0.1, float64(exp))
	case '+':
		num *= math.Pow(10, float64(exp))
	default:
		return 0, &NumericFormatError{Value: value}
	}

	return num, nil
}

// DecodeDebugField interprets the 11 char debug block and its 5 char data
// field. The ID at offset 10 selects what the data means; IDs without a
// known meaning are passed through untouched.
func DecodeDebugField(raw, data string) (DebugField, error) {
	if len(raw) != fieldDebugRaw.end-fieldDebugRaw.start {
		return DebugField{}, fmt.Errorf("debug block %q: %w", raw, ErrInvalidField)
	}

	debug := DebugField{ProbeFlag: raw[0:1]}
	debugID := raw[10:11]

	switch debugID {
	case "1":
		thresh, err := DecodeNumericNotation(data)
		if err != nil {
			return DebugField{}, fmt.Errorf("rate alarm threshold: %w", err)
		}
		thresh = round6(thresh)
		debug.RateAlarmThresh = &thresh
	case "2":
		thresh, err := DecodeNumericNotation(data)
		if err != nil {
			return DebugField{}, fmt.Errorf("dose alarm threshold: %w", err)
		}
		thresh = round6(thresh)
		debug.DoseAlarmThresh = &thresh
	default:
		debug.DebugDataID = debugID
		debug.DebugData = data
		debug.DebugUnk = raw[1:10]
	}

	return debug, nil
}

// DecodeSentence is Decode without the failure cause.
func DecodeSentence(line string) ParsedReport {
	report, _ := Decode(line)
	return report
}

// Decode parses one sentence. Decoding is all or nothing: on any failure
// the bare Invalid() marker is returned along with the cause.
func Decode(line string) (ParsedReport, error) {
	line = strings.TrimRight(line, " \t\r\n\v\f")

	if len(line) != SentenceLength || line[SentenceLength-1] != Terminator {
		return Invalid(), fmt.Errorf("%w: length %d", ErrMalformedSentence, len(line))
	}

	seqNo, ok := parseDigits(fieldSeqNo.slice(line))
	if !ok {
		return Invalid(), fmt.Errorf("sequence number %q: %w", fieldSeqNo.slice(line), ErrInvalidField)
	}

	flags := fieldFlags.slice(line)
	rateAlarm, err := decodeFlag(flags, 0, 'R')
	if err != nil {
		return Invalid(), err
	}
	doseAlarm, err := decodeFlag(flags, 1, 'D')
	if err != nil {
		return Invalid(), err
	}
	battAlarm, err := decodeFlag(flags, 2, 'B')
	if err != nil {
		return Invalid(), err
	}

	var probe Probe
	switch flags[3] {
	case 'L':
		probe = ProbeInternalLow
	case 'G':
		probe = ProbeInternalHigh
	default:
		// External probes have never been observed; report them as unknown.
		probe = ProbeUnknown
	}

	doseRt, err := DecodeNumericNotation(fieldRate.slice(line))
	if err != nil {
		return Invalid(), fmt.Errorf("dose rate: %w", err)
	}
	doseAcc, err := DecodeNumericNotation(fieldDose.slice(line))
	if err != nil {
		return Invalid(), fmt.Errorf("accumulated dose: %w", err)
	}
	doseRtUnf, err := DecodeNumericNotation(fieldUnfRate.slice(line))
	if err != nil {
		return Invalid(), fmt.Errorf("unfiltered dose rate: %w", err)
	}

	checksum, err := strconv.ParseUint(fieldChecksum.slice(line), 16, 8)
	if err != nil {
		return Invalid(), fmt.Errorf("checksum %q: %w", fieldChecksum.slice(line), ErrInvalidField)
	}

	debug, err := DecodeDebugField(fieldDebugRaw.slice(line), fieldDebugData.slice(line))
	if err != nil {
		return Invalid(), err
	}

	return ParsedReport{
		Valid:      true,
		SeqNo:      seqNo,
		ID:         fieldID.slice(line),
		DoseRt:     round6(doseRt),
		DoseAcc:    round6(doseAcc),
		DoseRtUnf:  round6(doseRtUnf),
		RateAlarm:  rateAlarm,
		DoseAlarm:  doseAlarm,
		BattAlarm:  battAlarm,
		Probe:      probe,
		Unit:       UnitRoentgenPerHour,
		Checksum:   int(checksum),
		DebugField: debug,
	}, nil
}

// '.' means clear, the given char means raised.
func decodeFlag(flags string, pos int, raised byte) (bool, error) {
	switch flags[pos] {
	case '.':
		return false, nil
	case raised:
		return true, nil
	default:
		return false, &FlagFormatError{Position: pos, Char: flags[pos]}
	}
}

// parseDigits accepts ASCII digits only, no sign or whitespace.
func parseDigits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
