package pgtypes

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PostgreSQL's binary numeric format packs the value into base-10000
// "digit" groups: int16 ndigits, int16 weight (place value of the first
// group, in units of 10000^weight), int16 sign, int16 dscale (displayed
// fractional digits), then ndigits uint16 groups, most significant first.
const (
	numericSignPositive = 0x0000
	numericSignNegative = 0x4000
	numericSignNaN      = 0xC000
)

func encodeNumeric(value any) ([]byte, error) {
	var d decimal.Decimal
	switch v := value.(type) {
	case decimal.Decimal:
		d = v
	case string:
		parsed, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("pgtypes: invalid numeric literal %q: %w", v, err)
		}
		d = parsed
	default:
		return nil, typeMismatch("numeric_out", value)
	}

	negative := d.Sign() < 0
	s := d.Abs().String()

	intPart, fracPart, _ := strings.Cut(s, ".")
	dscale := len(fracPart)

	pointPos := len(intPart)
	leftPad := (4 - pointPos%4) % 4
	paddedInt := strings.Repeat("0", leftPad) + intPart
	rightPad := (4 - dscale%4) % 4
	paddedFrac := fracPart + strings.Repeat("0", rightPad)

	full := paddedInt + paddedFrac
	groupCount := len(full) / 4
	digits := make([]uint16, groupCount)
	for i := 0; i < groupCount; i++ {
		var g uint16
		fmt.Sscanf(full[i*4:i*4+4], "%4d", &g)
		digits[i] = g
	}
	weight := int16(pointPos+leftPad)/4 - 1

	start := 0
	for start < len(digits) && digits[start] == 0 {
		start++
		weight--
	}
	end := len(digits)
	for end > start && digits[end-1] == 0 {
		end--
	}
	digits = digits[start:end]

	sign := uint16(numericSignPositive)
	if negative {
		sign = numericSignNegative
	}

	buf := make([]byte, 8+len(digits)*2)
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(digits)))
	binary.BigEndian.PutUint16(buf[2:4], uint16(weight))
	binary.BigEndian.PutUint16(buf[4:6], sign)
	binary.BigEndian.PutUint16(buf[6:8], uint16(dscale))
	for i, g := range digits {
		binary.BigEndian.PutUint16(buf[8+i*2:10+i*2], g)
	}
	return buf, nil
}

func decodeNumeric(raw []byte) (any, error) {
	if len(raw) < 8 {
		return nil, fmt.Errorf("pgtypes: numeric wire value shorter than header")
	}
	ndigits := binary.BigEndian.Uint16(raw[0:2])
	weight := int16(binary.BigEndian.Uint16(raw[2:4]))
	sign := binary.BigEndian.Uint16(raw[4:6])
	dscale := int(binary.BigEndian.Uint16(raw[6:8]))

	if sign == numericSignNaN {
		return nil, fmt.Errorf("pgtypes: NaN numeric values are not supported")
	}
	if len(raw) < 8+int(ndigits)*2 {
		return nil, fmt.Errorf("pgtypes: numeric wire value shorter than its digit count implies")
	}

	digits := make([]uint16, ndigits)
	for i := range digits {
		digits[i] = binary.BigEndian.Uint16(raw[8+i*2 : 10+i*2])
	}

	groupAt := func(pos int32) uint16 {
		i := int32(weight) - pos
		if i >= 0 && i < int32(ndigits) {
			return digits[i]
		}
		return 0
	}

	var intPart strings.Builder
	if weight >= 0 {
		for pos := int32(weight); pos >= 0; pos-- {
			fmt.Fprintf(&intPart, "%04d", groupAt(pos))
		}
	} else {
		intPart.WriteByte('0')
	}
	intStr := strings.TrimLeft(intPart.String(), "0")
	if intStr == "" {
		intStr = "0"
	}

	fracGroups := (dscale + 3) / 4
	var fracPart strings.Builder
	for i := 1; i <= fracGroups; i++ {
		fmt.Fprintf(&fracPart, "%04d", groupAt(-int32(i)))
	}
	fracStr := fracPart.String()
	if len(fracStr) > dscale {
		fracStr = fracStr[:dscale]
	}

	full := intStr
	if dscale > 0 {
		full += "." + fracStr
	}
	if sign == numericSignNegative {
		full = "-" + full
	}

	d, err := decimal.NewFromString(full)
	if err != nil {
		return nil, fmt.Errorf("pgtypes: reconstructed numeric %q is invalid: %w", full, err)
	}
	return d, nil
}
