// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package apierror

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// defaultFieldMessage is used when an entry names a field but has no text.
const defaultFieldMessage = "Invalid value."

// reservedKeys are envelope keys that never name an input field.
var reservedKeys = map[string]bool{
	"detail":           true,
	"message":          true,
	"error":            true,
	"code":             true,
	"success":          true,
	"status":           true,
	"data":             true,
	"type":             true,
	"errors":           true,
	"non_field_errors": true,
}

// ExtractFieldErrors parses a validation payload into an ordered list of
// field errors. It recognises, in order:
//
//   - detail as an array of {loc, msg, type} entries (field = last loc segment)
//   - non_field_errors, mapped to the "general" field
//   - field maps under "errors", with string or array-of-strings messages
//   - field maps at the top level, where only array-of-strings values
//     count so envelope extras such as request_id are never fields
//   - detail as a lone string, mapped to "general" when nothing else matched
//
// Empty, non-JSON and non-object payloads return nil.
func ExtractFieldErrors(payload []byte) []FieldError {
	obj := decodeObject(payload)
	if obj == nil {
		return nil
	}

	if list, ok := obj["detail"].([]any); ok {
		if fields := locEntries(list); len(fields) > 0 {
			return fields
		}
	}

	var fields []FieldError
	fields = append(fields, messages(GeneralField, obj["non_field_errors"])...)

	if nested, ok := obj["errors"].(map[string]any); ok {
		fields = append(fields, fieldMap("", nested, true)...)
	}
	fields = append(fields, topLevelFields(obj)...)

	if len(fields) == 0 {
		if s, ok := obj["detail"].(string); ok && strings.TrimSpace(s) != "" {
			fields = append(fields, FieldError{Field: GeneralField, Message: strings.TrimSpace(s)})
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}

// locEntries handles positional-path validation errors.
func locEntries(list []any) []FieldError {
	var fields []FieldError
	for _, item := range list {
		switch entry := item.(type) {
		case map[string]any:
			field := lastSegment(entry["loc"])
			msg, _ := entry["msg"].(string)
			if strings.TrimSpace(msg) == "" {
				msg = defaultFieldMessage
			}
			code, _ := entry["type"].(string)
			fields = append(fields, FieldError{Field: field, Message: msg, Code: code})
		case string:
			if strings.TrimSpace(entry) != "" {
				fields = append(fields, FieldError{Field: GeneralField, Message: entry})
			}
		}
	}
	return fields
}

func lastSegment(loc any) string {
	path, ok := loc.([]any)
	if !ok || len(path) == 0 {
		if s, ok := loc.(string); ok && s != "" {
			return s
		}
		return GeneralField
	}
	switch seg := path[len(path)-1].(type) {
	case string:
		if seg != "" {
			return seg
		}
	case float64:
		return strconv.FormatFloat(seg, 'f', -1, 64)
	case json.Number:
		return seg.String()
	}
	return GeneralField
}

// topLevelFields reads the serializer shape from the payload root. Reserved
// envelope keys are skipped.
func topLevelFields(obj map[string]any) []FieldError {
	fields := make(map[string]any, len(obj))
	for k, v := range obj {
		if !reservedKeys[k] {
			fields[k] = v
		}
	}
	return fieldMap("", fields, false)
}

// fieldMap flattens {field: [msg...]} maps. Nested objects are prefixed with
// their parent key. Keys are sorted for a stable order. Plain string values
// are messages only when allowStrings is set.
func fieldMap(prefix string, obj map[string]any, allowStrings bool) []FieldError {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var fields []FieldError
	for _, k := range keys {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}
		switch v := obj[k].(type) {
		case map[string]any:
			fields = append(fields, fieldMap(name, v, allowStrings)...)
		case string:
			if allowStrings {
				fields = append(fields, messages(name, v)...)
			}
		default:
			fields = append(fields, messages(name, v)...)
		}
	}
	return fields
}

// messages converts a string or array-of-strings value into field errors.
// Other shapes are ignored.
func messages(field string, v any) []FieldError {
	switch val := v.(type) {
	case string:
		if s := strings.TrimSpace(val); s != "" {
			return []FieldError{{Field: field, Message: s}}
		}
	case []any:
		var out []FieldError
		for _, item := range val {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, FieldError{Field: field, Message: strings.TrimSpace(s)})
			}
		}
		return out
	}
	return nil
}
