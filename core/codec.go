package core

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/errors"
)

// Encoding of a value: one kind byte followed by
//   Int:      8 bytes big endian with the sign bit flipped
//   Double:   8 bytes of order-preserving IEEE bits
//   Numeric:  uvarint length + reduced decimal text
//   Text:     uvarint length + bytes
// Ints and doubles sort in numeric order under bytewise comparison.

var errCorruptEncoding = errors.New("corrupt value encoding")

func appendValue(buf []byte, v Value) []byte {
	buf = append(buf, byte(v.kind))
	switch v.kind {
	case KindInt:
		buf = binary.BigEndian.AppendUint64(buf, uint64(v.i)^(1<<63))
	case KindDouble:
		f := v.f
		if f == 0 {
			// -0 and +0 must produce the same key.
			f = 0
		}
		bits := math.Float64bits(f)
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		buf = binary.BigEndian.AppendUint64(buf, bits)
	case KindNumeric:
		buf = appendString(buf, canonicalDecimal(v.d))
	case KindText:
		buf = appendString(buf, v.s)
	}
	return buf
}

func appendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

// canonicalDecimal renders equal decimals identically, so 1.0 and 1.00
// produce the same group key.
func canonicalDecimal(d *apd.Decimal) string {
	if d.IsZero() {
		return "0"
	}
	reduced, _ := new(apd.Decimal).Reduce(d)
	return reduced.String()
}

func decodeValue(buf []byte) (Value, []byte, error) {
	if len(buf) == 0 {
		return Null(), nil, errCorruptEncoding
	}
	kind, buf := Kind(buf[0]), buf[1:]
	switch kind {
	case KindNull:
		return Null(), buf, nil
	case KindInt:
		if len(buf) < 8 {
			return Null(), nil, errCorruptEncoding
		}
		return Int(int64(binary.BigEndian.Uint64(buf) ^ (1 << 63))), buf[8:], nil
	case KindDouble:
		if len(buf) < 8 {
			return Null(), nil, errCorruptEncoding
		}
		bits := binary.BigEndian.Uint64(buf)
		if bits&(1<<63) != 0 {
			bits &^= 1 << 63
		} else {
			bits = ^bits
		}
		return Double(math.Float64frombits(bits)), buf[8:], nil
	case KindNumeric:
		s, rest, err := decodeString(buf)
		if err != nil {
			return Null(), nil, err
		}
		v, err := NumericFromString(s)
		return v, rest, err
	case KindText:
		s, rest, err := decodeString(buf)
		if err != nil {
			return Null(), nil, err
		}
		return Text(s), rest, nil
	}
	return Null(), nil, errors.Wrapf(errCorruptEncoding, "unknown kind %d", kind)
}

func decodeString(buf []byte) (string, []byte, error) {
	n, read := binary.Uvarint(buf)
	if read <= 0 || uint64(len(buf)-read) < n {
		return "", nil, errCorruptEncoding
	}
	buf = buf[read:]
	return string(buf[:n]), buf[n:], nil
}

func EncodeRow(row Row) []byte {
	buf := binary.AppendUvarint(nil, uint64(len(row)))
	for _, v := range row {
		buf = appendValue(buf, v)
	}
	return buf
}

func DecodeRow(buf []byte) (Row, error) {
	n, read := binary.Uvarint(buf)
	if read <= 0 {
		return nil, errCorruptEncoding
	}
	buf = buf[read:]
	row := make(Row, 0, n)
	for i := uint64(0); i < n; i++ {
		var v Value
		var err error
		v, buf, err = decodeValue(buf)
		if err != nil {
			return nil, err
		}
		row = append(row, v)
	}
	if len(buf) != 0 {
		return nil, errors.Wrapf(errCorruptEncoding, "%d trailing bytes", len(buf))
	}
	return row, nil
}
