package models

import "time"

// SObject represents a generic record
type SObject map[string]interface{}

// GetString returns the string value of key, or "".
func (s SObject) GetString(key string) string {
	if val, ok := s[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetBool returns the bool value of key, or false.
func (s SObject) GetBool(key string) bool {
	if val, ok := s[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}

// GetTime returns the time value of key, parsing RFC3339 strings.
func (s SObject) GetTime(key string) time.Time {
	if val, ok := s[key]; ok {
		if t, ok := val.(time.Time); ok {
			return t
		}
		if tStr, ok := val.(string); ok {
			parsed, _ := time.Parse(time.RFC3339, tStr)
			return parsed
		}
	}
	return time.Time{}
}

// Copy returns a shallow copy of the record.
func (s SObject) Copy() SObject {
	if s == nil {
		return nil
	}
	c := make(SObject, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}
