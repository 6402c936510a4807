package migration

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

// isSQLiteBusy matches SQLITE_BUSY and its extended codes, falling back to
// the message for wrapped errors that lost the code.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coded interface{ Code() int }
	if errors.As(err, &coded) && coded.Code()&0xff == sqliteBusyCode {
		return true
	}
	text := err.Error()
	return strings.Contains(text, "SQLITE_BUSY") || strings.Contains(text, "database is locked")
}

// retryOnBusy reruns op while sqlite reports the database locked by another
// scan loop or worker, doubling the pause up to busyRetryMaxBackoff.
// Postgres errors never match and pass straight through.
func retryOnBusy(ctx context.Context, op func() error) error {
	pause := busyRetryInitialBackoff
	for attempt := 1; ; attempt++ {
		err := op()
		if !isSQLiteBusy(err) || attempt >= busyRetryAttempts {
			return err
		}
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		pause = min(pause*2, busyRetryMaxBackoff)
	}
}

func (s *Store) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	ctx = ensureContext(ctx)
	query = s.dialect.rebind(query)
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, unavailable(op, err)
	}
	return affected, nil
}

func (s *Store) query(ctx context.Context, op, query string, args ...any) ([]*Record, error) {
	ctx = ensureContext(ctx)
	query = s.dialect.rebind(query)
	var records []*Record
	err := retryOnBusy(ctx, func() error {
		records = records[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, unavailable(op, err)
	}
	return records, nil
}

func (s *Store) queryInt(ctx context.Context, op, query string, args ...any) (int, error) {
	ctx = ensureContext(ctx)
	query = s.dialect.rebind(query)
	var value sql.NullInt64
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, query, args...).Scan(&value)
	})
	if err != nil {
		return 0, unavailable(op, err)
	}
	return int(value.Int64), nil
}

// requireRow converts a zero-row update into ErrNotFound.
func (s *Store) requireRow(ctx context.Context, affected int64, linkID, siteID string) error {
	if affected > 0 {
		return nil
	}
	if _, err := s.Get(ctx, linkID, siteID); err != nil {
		return err
	}
	return nil
}
