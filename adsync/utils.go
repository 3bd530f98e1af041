package adsync

import (
	"strconv"
	"strings"
)

// ParseFieldValues flattens the string values of Keeper record fields.
func ParseFieldValues(fields []map[string]any) (values []string) {
	for _, field := range fields {
		var v any
		var ok bool
		if v, ok = field["value"]; ok {
			if v == nil {
				continue
			}
			switch vt := v.(type) {
			case []any:
				for _, v = range vt {
					var value string
					if value, ok = v.(string); ok {
						values = append(values, value)
					}
				}
			case string:
				values = append(values, vt)
			}
		}
	}
	return
}

func firstValue(intf any) any {
	if av, ok := intf.([]any); ok {
		if len(av) > 0 {
			return av[0]
		}
		return nil
	}
	return intf
}

func toBoolean(intf any) (result bool, ok bool) {
	var supportedValue = firstValue(intf)
	if supportedValue == nil {
		return
	}
	switch fv := supportedValue.(type) {
	case bool:
		result = fv
		ok = true
	case string:
		switch strings.ToLower(strings.TrimSpace(fv)) {
		case "1", "true", "ok", "yes":
			result = true
			ok = true
		case "0", "false", "no":
			result = false
			ok = true
		}
	}
	return
}

func toString(intf any) (result string, ok bool) {
	if intf == nil {
		return
	}
	result, ok = intf.(string)
	return
}

func toInt64(intf any) (result int64, ok bool) {
	intf = firstValue(intf)
	if intf == nil {
		return
	}
	ok = true
	switch iv := intf.(type) {
	case int:
		result = int64(iv)
	case int32:
		result = int64(iv)
	case int64:
		result = iv
	case float32:
		result = int64(iv)
	case float64:
		result = int64(iv)
	case string:
		if irv, err := strconv.Atoi(strings.TrimSpace(iv)); err == nil {
			result = int64(irv)
		} else {
			ok = false
		}
	default:
		ok = false
	}
	return
}

type Set[K comparable] map[K]struct{}

func NewSet[K comparable]() Set[K] {
	return make(Set[K])
}
func MakeSet[K comparable](keys []K) Set[K] {
	var ns = NewSet[K]()
	for _, k := range keys {
		ns.Add(k)
	}
	return ns
}
func (s Set[K]) Has(key K) (ok bool) {
	_, ok = s[key]
	return
}
func (s Set[K]) Add(key K) {
	s[key] = struct{}{}
}
func (s Set[K]) ToArray() (result []K) {
	for k := range s {
		result = append(result, k)
	}
	return
}
