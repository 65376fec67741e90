package script

import (
	"math"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/browser-source/internal/bridge/envelope"
)

// marshalArg converts a script value to an envelope argument. Integral
// numbers in the int32 range become ints, other numbers doubles. Values
// of any other type are not representable.
func marshalArg(v goja.Value) (envelope.Value, bool) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return envelope.Value{}, false
	}

	switch x := v.Export().(type) {
	case string:
		return envelope.String(x), true
	case bool:
		return envelope.Bool(x), true
	case int64:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			return envelope.Int(int32(x)), true
		}
		return envelope.Double(float64(x)), true
	case float64:
		if isInt32(x) {
			return envelope.Int(int32(x)), true
		}
		return envelope.Double(x), true
	default:
		return envelope.Value{}, false
	}
}

func isInt32(f float64) bool {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return false
	}
	if f == 0 && math.Signbit(f) {
		return false
	}
	return f >= math.MinInt32 && f <= math.MaxInt32
}
