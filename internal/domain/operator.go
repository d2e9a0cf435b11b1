/**
 * @description
 * This file defines the mobile operator identity and the prefix-based phone
 * classifier. Every Ivorian mobile number is 10 digits long and its first two
 * digits identify the carrier: 01 is Moov, 05 is MTN and 07 is Orange. Any
 * other prefix (or a string too short to have one) classifies to
 * OperatorUnknown.
 *
 * @notes
 * - Classification is a pure lookup with no side effects. It is invoked on
 *   every keystroke of a phone field by the client, so it must stay cheap.
 * - OperatorUnknown is a representable value, not an error: the transfer flow
 *   displays it as "Inconnu" while other flows reject the number during
 *   validation instead.
 */

package domain

import "strings"

// Operator identifies a mobile carrier inferred from a phone number's prefix.
type Operator string

const (
	OperatorOrange  Operator = "orange"
	OperatorMTN     Operator = "mtn"
	OperatorMoov    Operator = "moov"
	OperatorUnknown Operator = ""
)

// CountryCallingCode is prepended when a number is handed to the airtime
// aggregator, which expects internationalized MSISDNs.
const CountryCallingCode = "+225"

// operatorByPrefix is the fixed prefix table. It is never mutated after load.
var operatorByPrefix = map[string]Operator{
	"01": OperatorMoov,
	"05": OperatorMTN,
	"07": OperatorOrange,
}

// Classify maps a phone number to its operator by its first two digits.
// Unrecognized prefixes and strings shorter than two characters yield
// OperatorUnknown.
func Classify(phone string) Operator {
	if len(phone) < 2 {
		return OperatorUnknown
	}
	if op, ok := operatorByPrefix[phone[:2]]; ok {
		return op
	}
	return OperatorUnknown
}

// DisplayName returns the user-facing carrier label. OperatorUnknown renders
// as "Inconnu", which is what the transfer flow shows next to an unrecognized
// recipient number.
func (o Operator) DisplayName() string {
	switch o {
	case OperatorOrange:
		return "Orange"
	case OperatorMTN:
		return "MTN"
	case OperatorMoov:
		return "Moov"
	default:
		return "Inconnu"
	}
}

// IsKnown reports whether the operator is one of the three recognized carriers.
func (o Operator) IsKnown() bool {
	return o == OperatorOrange || o == OperatorMTN || o == OperatorMoov
}

// ParseOperator converts an API query value into an Operator. It accepts the
// lowercase identifiers used on the wire and is case-insensitive.
func ParseOperator(s string) Operator {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "orange":
		return OperatorOrange
	case "mtn":
		return OperatorMTN
	case "moov":
		return OperatorMoov
	default:
		return OperatorUnknown
	}
}

// Internationalize converts a 10-digit local number into the +225-prefixed
// MSISDN format expected by the airtime aggregator. Numbers already carrying
// the country code are passed through unchanged.
func Internationalize(phone string) string {
	trimmed := strings.TrimSpace(phone)
	if strings.HasPrefix(trimmed, CountryCallingCode) {
		return trimmed
	}
	if strings.HasPrefix(trimmed, "225") && len(trimmed) == 13 {
		return "+" + trimmed
	}
	return CountryCallingCode + trimmed
}
