package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

var (
	_ sql.Scanner   = (*VariantScope)(nil)
	_ driver.Valuer = VariantScope{}
)

// Scan reads the discounts.variant_scope JSONB column. SQL NULL leaves the
// scope untouched; callers scanning into **VariantScope get nil instead.
func (v *VariantScope) Scan(src any) error {
	var raw []byte
	switch s := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = s
	case string:
		raw = []byte(s)
	default:
		return fmt.Errorf("variant scope: cannot scan %T", src)
	}
	// UnmarshalJSON turns numeric ids into strings.
	return json.Unmarshal(raw, v)
}

// Value writes the scope as JSONB.
func (v VariantScope) Value() (driver.Value, error) {
	return json.Marshal(v)
}
