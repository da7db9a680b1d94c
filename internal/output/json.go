package output

import (
	"encoding/json"
)

// ToJSON renders a result, a list of results or a snapshot as indented JSON.
func ToJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
