package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ErrMalformedResponse is returned when the model reply is not the expected JSON.
var ErrMalformedResponse = errors.New("extraction: malformed oracle response")

// jsonPayload returns the JSON document in text, tolerating fenced code blocks
// and prose around a bare object.
func jsonPayload(text string) []byte {
	text = strings.TrimSpace(text)
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		return []byte(strings.TrimSpace(m[1]))
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		return []byte(text[start : end+1])
	}
	return []byte(text)
}

func decodeJSON(text string, out any) error {
	payload := jsonPayload(text)
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty reply", ErrMalformedResponse)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// looseFloat accepts JSON numbers and numeric strings such as "32,5" or "R$ 1.250,00".
type looseFloat struct {
	Value *float64
}

func (f *looseFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		f.Value = nil
		return nil
	}
	if data[0] != '"' {
		var v float64
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		f.Value = &v
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	f.Value = parseNumber(s)
	return nil
}

func parseNumber(s string) *float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' || r == '-' {
			return r
		}
		return -1
	}, s)
	if s == "" {
		return nil
	}
	// pt-BR: "." groups thousands and "," marks decimals
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// looseString accepts strings and numbers; blank strings become nil.
type looseString struct {
	Value *string
}

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		s.Value = nil
		return nil
	}
	if data[0] != '"' {
		v := string(data)
		s.Value = &v
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	v = strings.TrimSpace(v)
	if v == "" {
		s.Value = nil
		return nil
	}
	s.Value = &v
	return nil
}
