package editor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/CTAG07/Liquidize/pkg/inference"
)

// ErrInvalidValue is returned when raw input does not fit the field.
var ErrInvalidValue = errors.New("invalid value")

// Coerce converts raw control input into the value stored in metadata.
func Coerce(f Field, raw string) (any, error) {
	switch f.Widget {
	case WidgetToggle:
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "", "false", "off", "0", "no":
			return false, nil
		case "true", "on", "1", "yes":
			return true, nil
		}
		return nil, fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, raw)

	case WidgetNumber:
		n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, raw)
		}
		return number(n), nil

	case WidgetSelect:
		lit := inference.ParseLiteral(raw)
		for _, o := range f.Options {
			if inference.ParseLiteral(o.Value).Equal(lit) {
				return literalValue(lit), nil
			}
		}
		return nil, fmt.Errorf("%w: %q is not one of the options of %s", ErrInvalidValue, raw, f.Key)

	case WidgetList:
		items := []any{}
		for _, line := range strings.Split(raw, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				items = append(items, literalValue(inference.ParseLiteral(line)))
			}
		}
		return items, nil

	case WidgetJSON:
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return obj, nil

	default:
		return raw, nil
	}
}

func literalValue(l inference.Literal) any {
	if l.Kind() == inference.KindNumber {
		return number(l.Value().(float64))
	}
	return l.Value()
}
