package config

import (
	"errors"
	"fmt"
)

// Config error codes (E200-E299).
const (
	ErrCodeNotFound  = "E201" // config file missing or unreadable
	ErrCodeParse     = "E202" // malformed YAML or unknown field
	ErrCodeSchema    = "E203" // schema constraint violated
	ErrCodeDuplicate = "E204" // duplicate rule name or shortcut action
	ErrCodeEmpty     = "E205" // empty document
)

// ConfigError describes why a configuration file was rejected.
type ConfigError struct {
	Code    string
	File    string
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	loc := e.File
	if e.Field != "" {
		if loc != "" {
			loc += ": "
		}
		loc += e.Field
	}
	if loc == "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, loc, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code string) bool {
	var ce *ConfigError
	return errors.As(err, &ce) && ce.Code == code
}

// IsConfigError reports whether err is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err is a missing-file ConfigError.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsParseError reports whether err is a YAML parse ConfigError.
func IsParseError(err error) bool { return hasCode(err, ErrCodeParse) }

// IsSchemaError reports whether err is a schema ConfigError.
func IsSchemaError(err error) bool { return hasCode(err, ErrCodeSchema) }

// IsDuplicate reports whether err is a duplicate-entry ConfigError.
func IsDuplicate(err error) bool { return hasCode(err, ErrCodeDuplicate) }

// IsEmpty reports whether err is an empty-document ConfigError.
func IsEmpty(err error) bool { return hasCode(err, ErrCodeEmpty) }
