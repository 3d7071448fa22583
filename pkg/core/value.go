package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ValueType discriminates the shapes a UDF value can take.
type ValueType int

const (
	TypeNone ValueType = iota
	TypeString
	TypeText
	TypeInt
	TypeReal
	TypeBool
	TypeDate
)

func (t ValueType) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeString:
		return "string"
	case TypeText:
		return "text"
	case TypeInt:
		return "int"
	case TypeReal:
		return "real"
	case TypeBool:
		return "bool"
	case TypeDate:
		return "date"
	}
	return "ValueType(" + strconv.Itoa(int(t)) + ")"
}

// Date is a calendar date without a time component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// ParseDate parses a strict YYYY-MM-DD calendar date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t in its own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Value is a tagged UDF value. The zero Value is the absent value.
type Value struct {
	typ ValueType
	s   string
	i   int64
	f   float64
	b   bool
	d   Date
}

func None() Value                { return Value{} }
func StringValue(s string) Value { return Value{typ: TypeString, s: s} }
func TextValue(s string) Value   { return Value{typ: TypeText, s: s} }
func IntValue(i int64) Value     { return Value{typ: TypeInt, i: i} }
func RealValue(f float64) Value  { return Value{typ: TypeReal, f: f} }
func BoolValue(b bool) Value     { return Value{typ: TypeBool, b: b} }
func DateValue(d Date) Value     { return Value{typ: TypeDate, d: d} }
func (v Value) Type() ValueType  { return v.typ }
func (v Value) IsNone() bool     { return v.typ == TypeNone }
func (v Value) IsNumeric() bool  { return v.typ == TypeInt || v.typ == TypeReal }
func (v Value) IsTextual() bool  { return v.typ == TypeString || v.typ == TypeText }

// ValueOf converts a Go value into a Value. Strings containing a line break
// become text values. time.Time is truncated to its calendar date.
func ValueOf(x any) (Value, error) {
	switch x := x.(type) {
	case nil:
		return None(), nil
	case Value:
		return x, nil
	case string:
		if strings.Contains(x, "\n") {
			return TextValue(x), nil
		}
		return StringValue(x), nil
	case bool:
		return BoolValue(x), nil
	case int:
		return IntValue(int64(x)), nil
	case int8:
		return IntValue(int64(x)), nil
	case int16:
		return IntValue(int64(x)), nil
	case int32:
		return IntValue(int64(x)), nil
	case int64:
		return IntValue(x), nil
	case uint:
		return uintValue(uint64(x))
	case uint8:
		return IntValue(int64(x)), nil
	case uint16:
		return IntValue(int64(x)), nil
	case uint32:
		return IntValue(int64(x)), nil
	case uint64:
		return uintValue(x)
	case float32:
		return RealValue(float64(x)), nil
	case float64:
		return RealValue(x), nil
	case Date:
		return DateValue(x), nil
	case time.Time:
		return DateValue(DateOf(x)), nil
	}
	return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, x)
}

func uintValue(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return Value{}, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedValue, u)
	}
	return IntValue(int64(u)), nil
}

// Str returns the string payload of a string or text value.
func (v Value) Str() (string, bool) {
	if !v.IsTextual() {
		return "", false
	}
	return v.s, true
}

// Int returns the payload of an integer value.
func (v Value) Int() (int64, bool) {
	if v.typ != TypeInt {
		return 0, false
	}
	return v.i, true
}

// Float returns the payload of any numeric value as a float64.
func (v Value) Float() (float64, bool) {
	switch v.typ {
	case TypeInt:
		return float64(v.i), true
	case TypeReal:
		return v.f, true
	}
	return 0, false
}

func (v Value) Bool() (bool, bool) {
	if v.typ != TypeBool {
		return false, false
	}
	return v.b, true
}

func (v Value) Date() (Date, bool) {
	if v.typ != TypeDate {
		return Date{}, false
	}
	return v.d, true
}

// Interface returns the payload as a plain Go value (nil, string, int64,
// float64, bool or Date).
func (v Value) Interface() any {
	switch v.typ {
	case TypeString, TypeText:
		return v.s
	case TypeInt:
		return v.i
	case TypeReal:
		return v.f
	case TypeBool:
		return v.b
	case TypeDate:
		return v.d
	}
	return nil
}

// Equal compares payloads. Numeric values compare by numeric value across
// int and real, textual values compare by content across string and text.
func (v Value) Equal(o Value) bool {
	switch {
	case v.IsNumeric() && o.IsNumeric():
		a, _ := v.Float()
		b, _ := o.Float()
		return a == b
	case v.IsTextual() && o.IsTextual():
		return v.s == o.s
	case v.typ != o.typ:
		return false
	}
	switch v.typ {
	case TypeBool:
		return v.b == o.b
	case TypeDate:
		return v.d == o.d
	}
	return true
}

// String renders the value for display. The absent value renders empty.
func (v Value) String() string {
	if v.typ == TypeBool {
		return strconv.FormatBool(v.b)
	}
	return v.wireText()
}

// wireText renders the value the way it is stored in a field element.
// Booleans are title-cased; this matches what the server accepts on write
// even though it emits lowercase.
func (v Value) wireText() string {
	switch v.typ {
	case TypeString, TypeText:
		return v.s
	case TypeInt:
		return strconv.FormatInt(v.i, 10)
	case TypeReal:
		return formatReal(v.f)
	case TypeBool:
		if v.b {
			return "True"
		}
		return "False"
	case TypeDate:
		return v.d.String()
	}
	return ""
}

// formatReal keeps a fraction on whole numbers ("3.0") so that a real reads
// back as a real.
func formatReal(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if math.IsInf(f, 0) || math.IsNaN(f) || strings.ContainsRune(s, '.') {
		return s
	}
	return s + ".0"
}

// parseFieldValue infers a value from a field's declared type and its text.
// Empty text is always absent. Unknown declared types keep the raw text.
// Booleans compare case-insensitively so that title-cased text written by
// this package reads back unchanged.
func parseFieldValue(declared, text string) (Value, error) {
	if text == "" {
		return None(), nil
	}
	switch strings.ToLower(declared) {
	case "numeric":
		text = strings.TrimSpace(text)
		if text == "" {
			return None(), nil
		}
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return IntValue(i), nil
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: numeric %q", ErrMalformedData, text)
		}
		return RealValue(f), nil
	case "boolean":
		return BoolValue(strings.EqualFold(text, "true")), nil
	case "date":
		d, err := ParseDate(text)
		if err != nil {
			return Value{}, fmt.Errorf("%w: date %q", ErrMalformedData, text)
		}
		return DateValue(d), nil
	case "text":
		return TextValue(text), nil
	}
	return StringValue(text), nil
}

// fieldTypeOf names the field type a new element gets for v.
func fieldTypeOf(v Value) (string, error) {
	switch v.typ {
	case TypeString:
		return "String", nil
	case TypeText:
		return "Text", nil
	case TypeInt, TypeReal:
		return "Numeric", nil
	case TypeBool:
		return "Boolean", nil
	case TypeDate:
		return "Date", nil
	}
	return "", fmt.Errorf("%w: cannot infer a field type for %s", ErrUnsupportedValue, v.typ)
}

// coerce validates v against a declared field type and returns it in the
// shape a fresh read of the field would produce.
func coerce(declared string, v Value) (Value, error) {
	if v.IsNone() {
		return v, nil
	}
	mismatch := func(want string) (Value, error) {
		return Value{}, fmt.Errorf("%w: %s field requires %s, got %s", ErrTypeMismatch, declared, want, v.typ)
	}
	switch strings.ToLower(declared) {
	case "string":
		if !v.IsTextual() {
			return mismatch("a string")
		}
		return StringValue(v.s), nil
	case "text":
		if !v.IsTextual() {
			return mismatch("a string")
		}
		return TextValue(v.s), nil
	case "numeric":
		if !v.IsNumeric() {
			return mismatch("a number")
		}
		return v, nil
	case "boolean":
		if v.typ != TypeBool {
			return mismatch("a boolean")
		}
		return v, nil
	case "date":
		if v.typ != TypeDate {
			return mismatch("a date")
		}
		return v, nil
	}
	return Value{}, fmt.Errorf("%w: field type %q", ErrUnsupportedValue, declared)
}
