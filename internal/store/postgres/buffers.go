package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/roach88/texgraph/internal/buffer"
	"github.com/roach88/texgraph/internal/store"
)

// SaveBuffers stores all outputs of one computation under key, replacing an
// existing entry.
func (s *PGStore) SaveBuffers(ctx context.Context, key, kind string, outs []*buffer.Buffer) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("save buffers: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var total int64
	for _, b := range outs {
		total += int64(len(b.Pix()) * 4)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM texgraph_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("save buffers: replace: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO texgraph_entries (key, kind, outputs, bytes, seq)
		VALUES ($1, $2, $3, $4, nextval('texgraph_cache_seq'))
	`, key, kind, len(outs), total); err != nil {
		return fmt.Errorf("save buffers: entry: %w", err)
	}

	for slot, b := range outs {
		_, err := tx.Exec(ctx, `
			INSERT INTO texgraph_buffers (key, slot, width, height, channels, digest, pixels)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, key, slot, b.Width(), b.Height(), b.Channels(), b.Digest(), store.EncodePixels(b.Pix()))
		if err != nil {
			return fmt.Errorf("save buffers: slot %d: %w", slot, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("save buffers: commit: %w", err)
	}
	return nil
}

// LoadBuffers returns the outputs stored under key and bumps its seq. A
// corrupt entry is deleted and reported as a miss.
func (s *PGStore) LoadBuffers(ctx context.Context, key string) ([]*buffer.Buffer, bool, error) {
	var outputs int
	err := s.db.QueryRow(ctx, `SELECT outputs FROM texgraph_entries WHERE key = $1`, key).Scan(&outputs)
	if isNoRows(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load buffers: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT slot, width, height, channels, digest, pixels
		FROM texgraph_buffers
		WHERE key = $1
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
		b, err := store.DecodeBuffer(w, h, ch, digest, data)
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
		if _, err := s.db.Exec(ctx, `DELETE FROM texgraph_entries WHERE key = $1`, key); err != nil {
			return nil, false, fmt.Errorf("load buffers: drop corrupt entry: %w", err)
		}
		return nil, false, nil
	}

	if _, err := s.db.Exec(ctx, `UPDATE texgraph_entries SET seq = nextval('texgraph_cache_seq') WHERE key = $1`, key); err != nil {
		return nil, false, fmt.Errorf("touch: %w", err)
	}
	return outs, true, nil
}

// Stats reports entry counts and stored pixel bytes.
func (s *PGStore) Stats(ctx context.Context) (store.Stats, error) {
	var st store.Stats
	err := s.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM texgraph_entries),
			(SELECT COUNT(*) FROM texgraph_buffers),
			(SELECT COALESCE(SUM(bytes), 0)::BIGINT FROM texgraph_entries),
			(SELECT COALESCE(MAX(seq), 0) FROM texgraph_entries)
	`).Scan(&st.Entries, &st.Buffers, &st.Bytes, &st.LastSeq)
	if err != nil {
		return store.Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// Prune keeps the keep most recently used entries and deletes the rest.
// It returns the number of entries removed.
func (s *PGStore) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		return 0, fmt.Errorf("prune: keep must be >= 0, got %d", keep)
	}
	ct, err := s.db.Exec(ctx, `
		DELETE FROM texgraph_entries
		WHERE key NOT IN (
			SELECT key FROM texgraph_entries
			ORDER BY seq DESC, key ASC
			LIMIT $1
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return int(ct.RowsAffected()), nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
