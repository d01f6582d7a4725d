package repo

import (
	"context"
	"database/sql"
	"fmt"

	"reviewline/internal/domain"
)

// TargetExists reports whether an addressable object of the given type
// exists. Bitstreams have no dedicated table here; they resolve through
// the item they belong to.
func (r Repo) TargetExists(ctx context.Context, targetType, id string) (bool, error) {
	var table string
	switch targetType {
	case domain.TypeSite:
		table = "sites"
	case domain.TypeCommunity:
		table = "communities"
	case domain.TypeCollection:
		table = "collections"
	case domain.TypeItem, domain.TypeBitstream:
		table = "items"
	case domain.TypeEPerson:
		table = "actors"
	default:
		return false, fmt.Errorf("unknown target type %q", targetType)
	}
	var one int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id=?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}
