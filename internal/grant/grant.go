// Package grant decodes and structurally validates client-credentials token responses.
package grant

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Required response fields, in the order they are reported.
const (
	FieldAccessToken = "access_token"
	FieldTokenType   = "token_type"
	FieldExpiresIn   = "expires_in"
	FieldScope       = "scope"
	FieldCreatedAt   = "created_at"
)

// Times are kept in epoch milliseconds downstream, so seconds must stay
// within these bounds.
const (
	maxSeconds = math.MaxInt64 / 1000
	minSeconds = math.MinInt64 / 1000
)

// ErrInvalid is matched by every *ValidationError.
var ErrInvalid = errors.New("grant: token response does not match the expected shape")

// Grant is a validated token response.
type Grant struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64 // seconds, never negative
	Scope       string
	CreatedAt   int64 // epoch seconds
}

// ValidationError lists every required field that was missing or malformed.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "grant: token response is not a JSON object"
	}
	return fmt.Sprintf("grant: missing or malformed fields: %s", strings.Join(e.Fields, ", "))
}

// Is reports ErrInvalid so callers can match without a type assertion.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

// Decode parses body and maps it to a Grant. Absence and type mismatch are
// treated the same way.
func Decode(body []byte) (Grant, error) {
	raw, err := decodeObject(body)
	if err != nil {
		return Grant{}, &ValidationError{}
	}
	return Validate(raw)
}

// Validate checks an already decoded JSON object. Numbers may be json.Number
// or float64, depending on how the caller decoded the body.
func Validate(raw map[string]interface{}) (Grant, error) {
	var (
		g       Grant
		invalid []string
	)

	var accessOK, typeOK, scopeOK bool
	g.AccessToken, accessOK = stringField(raw, FieldAccessToken)
	g.TokenType, typeOK = stringField(raw, FieldTokenType)
	g.Scope, scopeOK = stringField(raw, FieldScope)

	expiresIn, expiresOK := integerField(raw, FieldExpiresIn)
	createdAt, createdOK := integerField(raw, FieldCreatedAt)
	createdOK = createdOK && createdAt >= minSeconds && createdAt <= maxSeconds
	// created_at + expires_in must still fit in epoch milliseconds.
	expiresOK = expiresOK && expiresIn >= 0 && expiresIn <= maxSeconds &&
		(!createdOK || expiresIn <= maxSeconds-max(createdAt, 0))
	g.ExpiresIn, g.CreatedAt = expiresIn, createdAt

	for _, f := range []struct {
		name string
		ok   bool
	}{
		{FieldAccessToken, accessOK},
		{FieldTokenType, typeOK},
		{FieldExpiresIn, expiresOK},
		{FieldScope, scopeOK},
		{FieldCreatedAt, createdOK},
	} {
		if !f.ok {
			invalid = append(invalid, f.name)
		}
	}

	if len(invalid) > 0 {
		return Grant{}, &ValidationError{Fields: invalid}
	}
	return g, nil
}

func decodeObject(body []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("null body")
	}
	return raw, nil
}

func stringField(raw map[string]interface{}, key string) (string, bool) {
	value, ok := raw[key].(string)
	return value, ok
}

func integerField(raw map[string]interface{}, key string) (int64, bool) {
	switch value := raw[key].(type) {
	case json.Number:
		number, err := value.Int64()
		if err != nil {
			return 0, false
		}
		return number, true
	case float64:
		if value != float64(int64(value)) {
			return 0, false
		}
		return int64(value), true
	case int64:
		return value, true
	case int:
		return int64(value), true
	default:
		return 0, false
	}
}

