package drivercore

// Typed readers over dotted state paths. They report false when the path is
// missing or holds a value of another kind.

// GetFloat returns a numeric value as float64
func (o *Observable) GetFloat(path string) (float64, bool) {
	v, ok := o.Lookup(path)
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

// GetInt returns an integer value. Floats are accepted when they hold a whole number.
func (o *Observable) GetInt(path string) (int64, bool) {
	v, ok := o.Lookup(path)
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint:
		return int64(val), true
	case uint32:
		return int64(val), true
	case float64:
		if val == float64(int64(val)) {
			return int64(val), true
		}
	}
	return 0, false
}

// GetBool returns a boolean value
func (o *Observable) GetBool(path string) (bool, bool) {
	v, ok := o.Lookup(path)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// GetString returns a string value
func (o *Observable) GetString(path string) (string, bool) {
	v, ok := o.Lookup(path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
