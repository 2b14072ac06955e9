package store

import (
	"database/sql"
	"time"

	"github.com/roasbeef/p4review/internal/db/sqlc"
)

// ToSqlcNullString maps "" to NULL.
func ToSqlcNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ToSqlcNullInt64 maps 0 to NULL.
func ToSqlcNullInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}

// ActivityFromSqlc converts a sqlc activity row.
func ActivityFromSqlc(r sqlc.Activity) Activity {
	return Activity{
		ID:          r.ID,
		Type:        r.ActivityType,
		User:        r.UserID,
		Action:      r.Action,
		Target:      r.Target,
		ReviewID:    r.ReviewID.Int64,
		Change:      r.ChangeID.Int64,
		Description: r.Description,
		Created:     time.Unix(r.CreatedAt, 0),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
