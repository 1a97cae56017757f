package strict

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/SimonDaKappa/go-pave-bridge/engine"
	"github.com/SimonDaKappa/go-pave-bridge/model"
)

// check applies declared constraints to a coerced value. Length bounds
// apply to the value itself; for lists and tuples every other bound
// applies to each element.
func (v *validation) check(ref *model.TypeRef, c model.Constraints, val reflect.Value, path engine.Path) bool {
	if c.IsZero() {
		return true
	}
	for val.Kind() == reflect.Ptr || val.Kind() == reflect.Interface {
		if val.IsNil() {
			return true
		}
		val = val.Elem()
	}

	before := len(v.issues)
	switch ref.Kind {
	case model.KindList, model.KindTuple:
		v.checkLength(val.Len(), "List", "item", c, path)
		each := c
		each.MinLength, each.MaxLength = nil, nil
		if each.IsZero() {
			break
		}
		for i := 0; i < val.Len(); i++ {
			elem := ref.Elem
			if ref.Kind == model.KindTuple {
				elem = ref.Items[i]
			}
			v.check(elem, each, val.Index(i), path.Append(engine.Index(i)))
		}
	case model.KindMap:
		v.checkLength(val.Len(), "Dictionary", "item", c, path)
	default:
		v.checkValue(ref, c, val, path)
	}
	return len(v.issues) == before
}

func (v *validation) checkValue(ref *model.TypeRef, c model.Constraints, val reflect.Value, path engine.Path) {
	switch ref.Kind {
	case model.KindInt, model.KindUint, model.KindFloat, model.KindDecimal:
		f, p := asFloat(plainScalar(val))
		if p == nil {
			v.checkNumber(f, c, path)
		}
	case model.KindString, model.KindEmail, model.KindURL, model.KindIP, model.KindLiteral, model.KindEnum:
		if val.Kind() == reflect.String {
			s := val.String()
			v.checkLength(utf8.RuneCountInString(s), "String", "character", c, path)
			if c.Pattern != "" {
				re, err := v.e.pattern(c.Pattern)
				switch {
				case err != nil:
					v.fail(path, engine.CodePattern, fmt.Sprintf("Invalid pattern '%s': %v", c.Pattern, err))
				case !re.MatchString(s):
					v.fail(path, engine.CodePattern, fmt.Sprintf("String should match pattern '%s'", c.Pattern))
				}
			}
		} else {
			f, p := asFloat(plainScalar(val))
			if p == nil {
				v.checkNumber(f, c, path)
			}
		}
	case model.KindBytes:
		v.checkLength(val.Len(), "Data", "byte", c, path)
	}

	if len(c.Choices) > 0 {
		plain := plainScalar(val)
		for _, choice := range c.Choices {
			if engine.PlainEqual(plain, choice) {
				return
			}
		}
		v.fail(path, engine.CodeChoice, "Must be one of: "+joinChoices(c.Choices)+".")
	}
}

func (v *validation) checkNumber(f float64, c model.Constraints, path engine.Path) {
	if c.Min != nil && f < *c.Min {
		v.fail(path, engine.CodeGreaterEqual, "Input should be greater than or equal to "+num(*c.Min))
	}
	if c.Max != nil && f > *c.Max {
		v.fail(path, engine.CodeLessEqual, "Input should be less than or equal to "+num(*c.Max))
	}
	if c.ExclusiveMin != nil && f <= *c.ExclusiveMin {
		v.fail(path, engine.CodeGreater, "Input should be greater than "+num(*c.ExclusiveMin))
	}
	if c.ExclusiveMax != nil && f >= *c.ExclusiveMax {
		v.fail(path, engine.CodeLess, "Input should be less than "+num(*c.ExclusiveMax))
	}
	if c.MultipleOf != nil {
		q := f / *c.MultipleOf
		if math.Abs(q-math.Round(q)) > 1e-9 {
			v.fail(path, engine.CodeMultipleOf, "Input should be a multiple of "+num(*c.MultipleOf))
		}
	}
}

func (v *validation) checkLength(n int, what, unit string, c model.Constraints, path engine.Path) {
	if c.MinLength != nil && n < *c.MinLength {
		v.fail(path, engine.CodeTooShort, fmt.Sprintf("%s should have at least %s", what, plural(*c.MinLength, unit)))
	}
	if c.MaxLength != nil && n > *c.MaxLength {
		v.fail(path, engine.CodeTooLong, fmt.Sprintf("%s should have at most %s", what, plural(*c.MaxLength, unit)))
	}
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}

func joinChoices(choices []any) string {
	parts := make([]string, len(choices))
	for i, c := range choices {
		if s, ok := c.(string); ok {
			parts[i] = s
		} else {
			parts[i] = formatAny(c)
		}
	}
	return strings.Join(parts, ", ")
}
