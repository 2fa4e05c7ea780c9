package core

import (
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// DecimalPrecision is the number of significant digits kept by Numeric
// division. Numeric addition and subtraction are exact up to
// MaxExactDigits digits and fail with ErrOverflow beyond that.
const (
	DecimalPrecision = 34
	MaxExactDigits   = 4096
)

var decimalContext = apd.BaseContext.WithPrecision(DecimalPrecision)

// exactContext is wide enough to hold x+y without rounding, and traps
// inexact results that would exceed MaxExactDigits.
func exactContext(x, y *apd.Decimal) *apd.Context {
	top := x.NumDigits() + int64(x.Exponent)
	if t := y.NumDigits() + int64(y.Exponent); t > top {
		top = t
	}
	bottom := int64(x.Exponent)
	if int64(y.Exponent) < bottom {
		bottom = int64(y.Exponent)
	}
	digits := top - bottom + 1
	if digits < DecimalPrecision {
		digits = DecimalPrecision
	}
	if digits > MaxExactDigits {
		digits = MaxExactDigits
	}
	ctx := apd.BaseContext.WithPrecision(uint32(digits))
	ctx.Traps |= apd.Inexact
	return ctx
}

// DataType is the declared type of a column.
type DataType uint8

const (
	TypeUnknown DataType = iota
	TypeBigInt
	TypeFloat
	TypeDouble
	TypeNumeric
	TypeText
)

var dataTypeNames = map[DataType]string{
	TypeUnknown: "unknown",
	TypeBigInt:  "bigint",
	TypeFloat:   "float",
	TypeDouble:  "double",
	TypeNumeric: "numeric",
	TypeText:    "text",
}

func (t DataType) String() string {
	if name, ok := dataTypeNames[t]; ok {
		return name
	}
	return "DataType(" + strconv.Itoa(int(t)) + ")"
}

func (t DataType) IsAnyFloat() bool {
	return t == TypeFloat || t == TypeDouble
}

func ParseDataType(name string) (DataType, error) {
	for t, n := range dataTypeNames {
		if strings.EqualFold(n, name) {
			return t, nil
		}
	}
	return TypeUnknown, errors.Newf("unknown data type %q", name)
}

func (t DataType) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}

func (t *DataType) UnmarshalYAML(node *yaml.Node) error {
	var name string
	if err := node.Decode(&name); err != nil {
		return err
	}
	parsed, err := ParseDataType(name)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindDouble
	KindNumeric
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindNumeric:
		return "numeric"
	case KindText:
		return "text"
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is an immutable typed scalar. The zero Value is NULL.
type Value struct {
	kind Kind
	i    int64
	f    float64
	d    *apd.Decimal
	s    string
}

func Null() Value {
	return Value{}
}

func Int(v int64) Value {
	return Value{kind: KindInt, i: v}
}

func Double(v float64) Value {
	return Value{kind: KindDouble, f: v}
}

// Numeric copies d.
func Numeric(d *apd.Decimal) Value {
	c := new(apd.Decimal).Set(d)
	return Value{kind: KindNumeric, d: c}
}

func NumericFromString(s string) (Value, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return Null(), errors.Wrapf(err, "parsing numeric %q", s)
	}
	return Value{kind: KindNumeric, d: d}, nil
}

func Text(s string) Value {
	return Value{kind: KindText, s: s}
}

// Zero returns the additive identity of t.
func Zero(t DataType) Value {
	switch t {
	case TypeFloat, TypeDouble:
		return Double(0)
	case TypeNumeric:
		return Value{kind: KindNumeric, d: apd.New(0, 0)}
	case TypeText:
		return Text("")
	default:
		return Int(0)
	}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsNull() bool {
	return v.kind == KindNull
}

func (v Value) isNumber() bool {
	return v.kind == KindInt || v.kind == KindDouble || v.kind == KindNumeric
}

func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// AsFloat converts any numeric kind to float64.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindDouble:
		return v.f, true
	case KindNumeric:
		f, err := v.d.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// AsDecimal returns a fresh decimal for Int and Numeric values.
func (v Value) AsDecimal() (*apd.Decimal, bool) {
	switch v.kind {
	case KindInt:
		return apd.New(v.i, 0), true
	case KindNumeric:
		return new(apd.Decimal).Set(v.d), true
	}
	return nil, false
}

func (v Value) AsText() (string, bool) {
	if v.kind != KindText {
		return "", false
	}
	return v.s, true
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindDouble:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindNumeric:
		if v.d.IsZero() {
			return "0"
		}
		return v.d.Text('f')
	default:
		return v.s
	}
}

func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindInt:
		return v.i == other.i
	case KindDouble:
		return v.f == other.f
	case KindNumeric:
		return v.d.Cmp(other.d) == 0
	default:
		return v.s == other.s
	}
}

// Compare orders two values of comparable kinds. Numbers compare across
// kinds by value; NULL sorts before everything.
func Compare(a, b Value) (int, error) {
	switch {
	case a.kind == KindNull || b.kind == KindNull:
		return compareKinds(a.kind == KindNull, b.kind == KindNull), nil
	case a.kind == KindText && b.kind == KindText:
		return strings.Compare(a.s, b.s), nil
	case !a.isNumber() || !b.isNumber():
		return 0, typeMismatch("<=>", a, b)
	case a.kind == KindDouble || b.kind == KindDouble:
		x, _ := a.AsFloat()
		y, _ := b.AsFloat()
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
		return 0, nil
	}
	x, _ := a.AsDecimal()
	y, _ := b.AsDecimal()
	return x.Cmp(y), nil
}

func compareKinds(aNull, bNull bool) int {
	switch {
	case aNull && bNull:
		return 0
	case aNull:
		return -1
	}
	return 1
}

func typeMismatch(op string, a, b Value) error {
	return errors.Wrapf(ErrTypeMismatch, "%s %s %s", a.kind, op, b.kind)
}

// Add returns a+b. Double dominates Numeric, which dominates Int.
func Add(a, b Value) (Value, error) {
	return arith('+', a, b)
}

func Sub(a, b Value) (Value, error) {
	return arith('-', a, b)
}

func Div(a, b Value) (Value, error) {
	return arith('/', a, b)
}

func arith(op byte, a, b Value) (Value, error) {
	if !a.isNumber() || !b.isNumber() {
		return Null(), typeMismatch(string(op), a, b)
	}
	if a.kind == KindDouble || b.kind == KindDouble {
		x, _ := a.AsFloat()
		y, _ := b.AsFloat()
		switch op {
		case '+':
			return Double(x + y), nil
		case '-':
			return Double(x - y), nil
		default:
			if y == 0 {
				return Null(), ErrDivisionByZero
			}
			return Double(x / y), nil
		}
	}
	if a.kind == KindInt && b.kind == KindInt && op != '/' {
		return addInt(a.i, b.i, op == '-')
	}
	x, _ := a.AsDecimal()
	y, _ := b.AsDecimal()
	res := new(apd.Decimal)
	var err error
	switch op {
	case '+':
		_, err = exactContext(x, y).Add(res, x, y)
	case '-':
		_, err = exactContext(x, y).Sub(res, x, y)
	default:
		if y.IsZero() {
			return Null(), ErrDivisionByZero
		}
		_, err = decimalContext.Quo(res, x, y)
	}
	if err != nil {
		return Null(), errors.Wrap(ErrOverflow, err.Error())
	}
	return Value{kind: KindNumeric, d: res}, nil
}

func addInt(x, y int64, negate bool) (Value, error) {
	if negate {
		if y == math.MinInt64 {
			return Null(), errors.Wrapf(ErrOverflow, "%d - %d", x, y)
		}
		y = -y
	}
	sum := x + y
	if (y > 0 && sum < x) || (y < 0 && sum > x) {
		return Null(), errors.Wrapf(ErrOverflow, "%d + %d", x, y)
	}
	return Int(sum), nil
}

// Cast converts v to the representation of t. NULL casts to NULL.
func (v Value) Cast(t DataType) (Value, error) {
	if v.kind == KindNull || t == TypeUnknown {
		return v, nil
	}
	switch t {
	case TypeBigInt:
		switch v.kind {
		case KindInt:
			return v, nil
		case KindNumeric:
			i, err := v.d.Int64()
			if err == nil {
				return Int(i), nil
			}
		}
	case TypeFloat, TypeDouble:
		if f, ok := v.AsFloat(); ok {
			return Double(f), nil
		}
	case TypeNumeric:
		switch v.kind {
		case KindInt, KindNumeric:
			d, _ := v.AsDecimal()
			return Value{kind: KindNumeric, d: d}, nil
		case KindDouble:
			d, err := new(apd.Decimal).SetFloat64(v.f)
			if err == nil {
				return Value{kind: KindNumeric, d: d}, nil
			}
		}
	case TypeText:
		return Text(v.String()), nil
	}
	return Null(), errors.Wrapf(ErrTypeMismatch, "cannot cast %s to %s", v.kind, t)
}

// Row is an ordered tuple of values.
type Row []Value

func (row Row) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, v := range row {
		if i > 0 {
			b.WriteString(", ")
		}
		if v.kind == KindText {
			b.WriteString(strconv.Quote(v.s))
		} else {
			b.WriteString(v.String())
		}
	}
	b.WriteByte(')')
	return b.String()
}

func (row Row) Equal(other Row) bool {
	if len(row) != len(other) {
		return false
	}
	for i := range row {
		if !row[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

func (row Row) Clone() Row {
	c := make(Row, len(row))
	copy(c, row)
	return c
}
