package fieldtypes

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9 ()\-.]{3,40}$`)
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

func validateText(value interface{}, opts Options) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected text value")
	}
	if opts.MaxLength > 0 && len([]rune(s)) > opts.MaxLength {
		return fmt.Errorf("is too long (max %d)", opts.MaxLength)
	}
	return nil
}

func validateEmail(value interface{}, opts Options) error {
	if err := validateText(value, opts); err != nil {
		return err
	}
	if s := value.(string); s != "" && !emailPattern.MatchString(s) {
		return fmt.Errorf("invalid email address")
	}
	return nil
}

func validatePhone(value interface{}, opts Options) error {
	if err := validateText(value, opts); err != nil {
		return err
	}
	if s := value.(string); s != "" && !phonePattern.MatchString(s) {
		return fmt.Errorf("invalid phone number")
	}
	return nil
}

func validateURL(value interface{}, opts Options) error {
	if err := validateText(value, opts); err != nil {
		return err
	}
	s := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid URL")
	}
	return nil
}

func validateNumber(value interface{}, _ Options) error {
	if _, err := toNumber(value); err != nil {
		return fmt.Errorf("expected numeric value")
	}
	return nil
}

func validateBoolean(value interface{}, _ Options) error {
	if _, err := toBoolean(value); err != nil {
		return fmt.Errorf("expected boolean")
	}
	return nil
}

func validateDate(value interface{}, _ Options) error {
	if _, err := toDate(value); err != nil {
		return fmt.Errorf("expected date (YYYY-MM-DD)")
	}
	return nil
}

func validateDateTime(value interface{}, _ Options) error {
	if _, err := toDateTime(value); err != nil {
		return fmt.Errorf("expected date/time")
	}
	return nil
}

func validatePicklist(value interface{}, opts Options) error {
	if err := validateText(value, opts); err != nil {
		return err
	}
	s := value.(string)
	if s == "" || len(opts.Picklist) == 0 {
		return nil
	}
	for _, option := range opts.Picklist {
		if option == s {
			return nil
		}
	}
	return fmt.Errorf("'%s' is not a valid option", s)
}

func toNumber(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	}
	return nil, fmt.Errorf("not a number: %T", value)
}

func toBoolean(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int:
		if v == 0 || v == 1 {
			return v == 1, nil
		}
	case int64:
		if v == 0 || v == 1 {
			return v == 1, nil
		}
	case float64:
		if v == 0 || v == 1 {
			return v == 1, nil
		}
	case string:
		return strconv.ParseBool(v)
	}
	return nil, fmt.Errorf("not a boolean: %v", value)
}

func toDate(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case time.Time:
		return v.Format(dateLayout), nil
	case string:
		if t, err := time.Parse(dateLayout, v); err == nil {
			return t.Format(dateLayout), nil
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, err
		}
		return t.Format(dateLayout), nil
	}
	return nil, fmt.Errorf("not a date: %T", value)
}

func toDateTime(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format(dateTimeLayout), nil
	case string:
		for _, layout := range []string{time.RFC3339, dateTimeLayout, dateLayout} {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC().Format(dateTimeLayout), nil
			}
		}
		return nil, fmt.Errorf("unrecognized date/time '%s'", v)
	}
	return nil, fmt.Errorf("not a date/time: %T", value)
}

func toJSON(value interface{}) (interface{}, error) {
	if s, ok := value.(string); ok {
		if !json.Valid([]byte(s)) {
			return nil, fmt.Errorf("invalid JSON")
		}
		return s, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// hashPassword stores bcrypt hashes only; values that already are hashes pass through.
func hashPassword(value interface{}) (interface{}, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected text value")
	}
	if s == "" || IsPasswordHash(s) {
		return s, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(s), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return string(hash), nil
}

// IsPasswordHash reports whether s looks like a bcrypt hash.
func IsPasswordHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}
