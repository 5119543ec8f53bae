package attack

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Verdict int

const (
	VerdictNegative Verdict = iota
	VerdictPositive
	VerdictUnparseable
)

func (v Verdict) String() string {
	switch v {
	case VerdictPositive:
		return "positive"
	case VerdictNegative:
		return "negative"
	case VerdictUnparseable:
		return "unparseable"
	default:
		return "unknown"
	}
}

// Rules holds the configured phrases. An empty phrase disables its signal.
type Rules struct {
	WrongCredentialsPhrase string
	SuccessPhrase          string
}

// LoginResponse is the decoded JSON object returned by the login endpoint.
// Only error, clear, link and message are inspected.
type LoginResponse map[string]interface{}

func ParseResponse(body []byte) (LoginResponse, error) {
	var resp LoginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("response is JSON null")
	}
	return resp, nil
}

// Classify reports Positive as soon as any one signal fires. A positive is
// only a possible success and needs manual verification.
func Classify(resp LoginResponse, rules Rules) Verdict {
	if value, ok := resp["error"]; ok && !truthy(value) {
		return VerdictPositive
	}

	if truthy(resp["clear"]) {
		return VerdictPositive
	}

	if link, ok := resp["link"]; ok && link != nil {
		return VerdictPositive
	}

	if message, ok := resp["message"]; ok && message != nil {
		text := fmt.Sprint(message)
		if rules.WrongCredentialsPhrase != "" && !strings.Contains(text, rules.WrongCredentialsPhrase) {
			return VerdictPositive
		}
		if rules.SuccessPhrase != "" && strings.Contains(text, rules.SuccessPhrase) {
			return VerdictPositive
		}
	}

	return VerdictNegative
}

func ClassifyBody(body []byte, rules Rules) Verdict {
	resp, err := ParseResponse(body)
	if err != nil {
		return VerdictUnparseable
	}
	return Classify(resp, rules)
}

func truthy(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	case []interface{}:
		return len(v) > 0
	case map[string]interface{}:
		return len(v) > 0
	default:
		return true
	}
}
