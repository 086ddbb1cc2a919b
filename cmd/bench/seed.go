package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
)

const seedBatchSize = 5000

// seedAdmins upserts every adminEvery-th user in [1, total] as an admin.
func seedAdmins(ctx context.Context, db *sql.DB, total, adminEvery int, out io.Writer) error {
	if adminEvery <= 0 {
		return fmt.Errorf("admin-every must be positive, got %d", adminEvery)
	}
	fmt.Fprintf(out, "Seeding %d admins out of %d users...\n", total/adminEvery, total)

	ids := make([]int64, 0, seedBatchSize)
	flush := func() error {
		if len(ids) == 0 {
			return nil
		}
		valueStrings := make([]string, 0, len(ids))
		valueArgs := make([]interface{}, 0, len(ids))
		for i, id := range ids {
			valueStrings = append(valueStrings, fmt.Sprintf("($%d, TRUE, NOW())", i+1))
			valueArgs = append(valueArgs, id)
		}
		query := fmt.Sprintf("INSERT INTO users (id, is_admin, added_at) VALUES %s ON CONFLICT (id) DO UPDATE SET is_admin = TRUE", strings.Join(valueStrings, ","))
		if _, err := db.ExecContext(ctx, query, valueArgs...); err != nil {
			return fmt.Errorf("batch ending at %d failed: %w", ids[len(ids)-1], err)
		}
		ids = ids[:0]
		return nil
	}

	for id := adminEvery; id <= total; id += adminEvery {
		ids = append(ids, int64(id))
		if len(ids) == seedBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}
