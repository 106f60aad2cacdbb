package repository

import (
	"database/sql"
	"time"
)

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func int64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

func nullInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
