package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/texgraph/internal/buffer"
)

// Stats summarizes the persistent cache.
type Stats struct {
	Entries int   `json:"entries"`
	Buffers int   `json:"buffers"`
	Bytes   int64 `json:"bytes"`
	// LastSeq is the most recent use stamp, 0 when empty.
	LastSeq int64 `json:"last_seq"`
}

// SaveBuffers stores all outputs of one computation under key, replacing an
// existing entry. kind is recorded for diagnostics only.
func (s *Store) SaveBuffers(ctx context.Context, key, kind string, outs []*buffer.Buffer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save buffers: begin: %w", err)
	}
	defer tx.Rollback()

	seq, err := nextSeq(ctx, tx)
	if err != nil {
		return fmt.Errorf("save buffers: %w", err)
	}

	var total int64
	for _, b := range outs {
		total += int64(len(b.Pix()) * 4)
	}

	if err := deleteEntry(ctx, tx, key); err != nil {
		return fmt.Errorf("save buffers: replace: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO entries (key, kind, outputs, bytes, seq)
		VALUES (?, ?, ?, ?, ?)
	`, key, kind, len(outs), total, seq); err != nil {
		return fmt.Errorf("save buffers: entry: %w", err)
	}

	for slot, b := range outs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO buffers (key, slot, width, height, channels, digest, pixels)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, key, slot, b.Width(), b.Height(), b.Channels(), b.Digest(), EncodePixels(b.Pix()))
		if err != nil {
			return fmt.Errorf("save buffers: slot %d: %w", slot, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save buffers: commit: %w", err)
	}
	return nil
}

// LoadBuffers returns the outputs stored under key and marks the entry as
// recently used. A corrupt entry is deleted and reported as a miss.
func (s *Store) LoadBuffers(ctx context.Context, key string) ([]*buffer.Buffer, bool, error) {
	var outputs int
	err := s.db.QueryRowContext(ctx, `SELECT outputs FROM entries WHERE key = ?`, key).Scan(&outputs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load buffers: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT slot, width, height, channels, digest, pixels
		FROM buffers
		WHERE key = ?
		ORDER BY slot ASC
	`, key)
	if err != nil {
		return nil, false, fmt.Errorf("load buffers: %w", err)
	}

	outs := make([]*buffer.Buffer, 0, outputs)
	var corrupt error
	for rows.Next() {
		var (
			slot, w, h, ch int
			digest         string
			data           []byte
		)
		if err := rows.Scan(&slot, &w, &h, &ch, &digest, &data); err != nil {
			rows.Close()
			return nil, false, fmt.Errorf("load buffers: scan: %w", err)
		}
		if slot != len(outs) {
			corrupt = fmt.Errorf("slot %d missing", len(outs))
			break
		}
		b, err := DecodeBuffer(w, h, ch, digest, data)
		if err != nil {
			corrupt = err
			break
		}
		outs = append(outs, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("load buffers: rows: %w", err)
	}
	if corrupt == nil && len(outs) != outputs {
		corrupt = fmt.Errorf("expected %d outputs, found %d", outputs, len(outs))
	}
	if corrupt != nil {
		slog.Warn("dropping corrupt cache entry", "key", key, "error", corrupt)
		if err := deleteEntry(ctx, s.db, key); err != nil {
			return nil, false, fmt.Errorf("load buffers: drop corrupt entry: %w", err)
		}
		return nil, false, nil
	}

	if err := s.touch(ctx, key); err != nil {
		return nil, false, err
	}
	return outs, true, nil
}

// Stats reports entry counts and stored pixel bytes.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(bytes), 0), COALESCE(MAX(seq), 0) FROM entries
	`).Scan(&st.Entries, &st.Bytes, &st.LastSeq)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM buffers`).Scan(&st.Buffers); err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// Prune keeps the keep most recently used entries and deletes the rest.
// It returns the number of entries removed.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		return 0, fmt.Errorf("prune: keep must be >= 0, got %d", keep)
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM entries
		WHERE key NOT IN (
			SELECT key FROM entries
			ORDER BY seq DESC, key ASC
			LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return int(n), nil
}

func (s *Store) touch(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("touch: begin: %w", err)
	}
	defer tx.Rollback()

	seq, err := nextSeq(ctx, tx)
	if err != nil {
		return fmt.Errorf("touch: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE entries SET seq = ? WHERE key = ?`, seq, key); err != nil {
		return fmt.Errorf("touch: %w", err)
	}
	return tx.Commit()
}

func nextSeq(ctx context.Context, tx *sql.Tx) (int64, error) {
	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM entries`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	return seq, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// deleteEntry removes an entry and its buffers. The explicit buffers delete
// keeps this correct even on a connection without foreign_keys.
func deleteEntry(ctx context.Context, db execer, key string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM buffers WHERE key = ?`, key); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, key)
	return err
}
