package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// DefaultLocale is consulted when a requested locale has no translation.
const DefaultLocale = "en"

// LocalizedText is either a plain string or a set of per-locale strings.
// Backend payloads use both forms for the same field.
type LocalizedText struct {
	Plain    string
	ByLocale map[string]string
}

// PlainText returns a LocalizedText holding a single untranslated value.
func PlainText(s string) LocalizedText {
	return LocalizedText{Plain: s}
}

// Resolve picks the text for locale, then DefaultLocale, then the first
// non-empty translation in key order, then the plain value.
func (t LocalizedText) Resolve(locale string) string {
	if len(t.ByLocale) == 0 {
		return t.Plain
	}
	if s := t.ByLocale[locale]; s != "" {
		return s
	}
	if s := t.ByLocale[DefaultLocale]; s != "" {
		return s
	}
	keys := make([]string, 0, len(t.ByLocale))
	for k := range t.ByLocale {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s := t.ByLocale[k]; s != "" {
			return s
		}
	}
	return t.Plain
}

// IsZero reports whether the text carries no value in any form.
func (t LocalizedText) IsZero() bool {
	return t.Plain == "" && len(t.ByLocale) == 0
}

// UnmarshalJSON accepts a JSON string, an object of locale to string, or null.
func (t *LocalizedText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = LocalizedText{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("failed to decode localized text: %w", err)
		}
		*t = LocalizedText{Plain: s}
		return nil
	case '{':
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to decode localized text: %w", err)
		}
		m := make(map[string]string, len(raw))
		for k, v := range raw {
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				// non-string translations are ignored
				continue
			}
			m[k] = s
		}
		*t = LocalizedText{ByLocale: m}
		return nil
	default:
		// numbers and booleans show up in hand-edited catalogs
		*t = LocalizedText{Plain: string(data)}
		return nil
	}
}

// MarshalJSON writes the per-locale form when present, the plain string otherwise.
func (t LocalizedText) MarshalJSON() ([]byte, error) {
	if len(t.ByLocale) > 0 {
		return json.Marshal(t.ByLocale)
	}
	return json.Marshal(t.Plain)
}
