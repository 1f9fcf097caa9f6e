package model

import (
	"encoding/json"
	"fmt"
)

// jsonbScan decodes a jsonb column into dest. Postgres hands the driver either
// []byte or string depending on the connection mode; NULL leaves dest zeroed.
func jsonbScan(dest any, src any) error {
	if src == nil {
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("jsonb scan: unsupported source type %T", src)
	}
}

// setRaw marshals v into the raw key map, ignoring marshal errors for the
// plain scalar types used in blob fields (they cannot fail).
func setRaw(out map[string]json.RawMessage, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	out[key] = b
}
