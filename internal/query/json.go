package query

import "encoding/json"

func decodeMeta(s string, out *map[string]string) error {
	return json.Unmarshal([]byte(s), out)
}

func decodeCompressed(s string, out *[]string) error {
	return json.Unmarshal([]byte(s), out)
}
