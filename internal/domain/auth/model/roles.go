package model

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Roles is stored as a comma separated text column.
type Roles []string

func (r Roles) Value() (driver.Value, error) {
	return strings.Join(r, ","), nil
}

func (r *Roles) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case nil:
		*r = nil
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("roles: unsupported type %T", src)
	}
	if s == "" {
		*r = Roles{}
		return nil
	}
	*r = strings.Split(s, ",")
	return nil
}
