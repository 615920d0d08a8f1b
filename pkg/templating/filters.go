package templating

import (
	"encoding/json"
	"reflect"

	"github.com/osteele/liquid"
)

func registerFilters(engine *liquid.Engine) {
	engine.RegisterFilter("json", jsonFilter)
	engine.RegisterFilter("yesno", yesno)
	engine.RegisterFilter("pluralize", pluralize)
}

func jsonFilter(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// yesno follows Liquid truthiness: only nil and false are falsy.
func yesno(v any, yes, no string) string {
	if yes == "" {
		yes = "yes"
	}
	if no == "" {
		no = "no"
	}
	if v == nil {
		return no
	}
	if b, ok := v.(bool); ok && !b {
		return no
	}
	return yes
}

func pluralize(n any, singular, plural string) string {
	if singular == "" {
		singular = "item"
	}
	if plural == "" {
		plural = singular + "s"
	}
	if f, ok := toFloat(n); ok && f == 1 {
		return singular
	}
	return plural
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}
