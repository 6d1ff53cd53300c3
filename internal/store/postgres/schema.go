package postgres

import "context"

const schemaSQL = `
CREATE SEQUENCE IF NOT EXISTS texgraph_cache_seq;

CREATE TABLE IF NOT EXISTS texgraph_entries (
    key     TEXT PRIMARY KEY,
    kind    TEXT NOT NULL,
    outputs INTEGER NOT NULL,
    bytes   BIGINT NOT NULL,
    seq     BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS texgraph_buffers (
    key      TEXT NOT NULL REFERENCES texgraph_entries(key) ON DELETE CASCADE,
    slot     INTEGER NOT NULL,
    width    INTEGER NOT NULL,
    height   INTEGER NOT NULL,
    channels INTEGER NOT NULL,
    digest   TEXT NOT NULL,
    pixels   BYTEA NOT NULL,
    PRIMARY KEY (key, slot)
);

CREATE INDEX IF NOT EXISTS idx_texgraph_entries_seq ON texgraph_entries(seq);
`

// CreateSchema creates the cache tables if they don't exist.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

// DropSchema drops the cache tables and sequence.
func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS texgraph_buffers, texgraph_entries CASCADE; DROP SEQUENCE IF EXISTS texgraph_cache_seq;`)
	return err
}
