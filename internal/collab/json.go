package collab

import "encoding/json"

func marshalVariables(vars map[string]interface{}) string {
	b, err := json.Marshal(vars)
	if err != nil {
		return "{}"
	}
	return string(b)
}
