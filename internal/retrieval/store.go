/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package retrieval

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	_ "github.com/mattn/go-sqlite3"
)

// chunkStore persists chunks and per-file checksums in SQLite
type chunkStore struct {
	db *sql.DB
}

// openStore opens or creates the index database
func openStore(path string) (*chunkStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}
	// Each connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	s := &chunkStore{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index schema: %w", err)
	}
	return s, nil
}

func (s *chunkStore) close() error {
	return s.db.Close()
}

func (s *chunkStore) createSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS index_meta (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS source_files (
        file_path TEXT PRIMARY KEY,
        checksum TEXT NOT NULL,
        num_chunks INTEGER DEFAULT 0,
        processed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS chunks (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        file_path TEXT NOT NULL,
        section TEXT,
        text TEXT NOT NULL,
        embedding BLOB
    );

    CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_path);
    `
	_, err := s.db.Exec(schema)
	return err
}

// embeddingModel returns the provider/model the stored vectors came from
func (s *chunkStore) embeddingModel() (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM index_meta WHERE key = 'embedding_model'`).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// reset drops every chunk and records the model for future vectors
func (s *chunkStore) reset(model string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{`DELETE FROM chunks`, `DELETE FROM source_files`} {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`
        INSERT INTO index_meta (key, value) VALUES ('embedding_model', ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value
    `, model); err != nil {
		return err
	}
	return tx.Commit()
}

// checksums returns the recorded checksum per file
func (s *chunkStore) checksums() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT file_path, checksum FROM source_files`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var path, sum string
		if err := rows.Scan(&path, &sum); err != nil {
			return nil, err
		}
		out[path] = sum
	}
	return out, rows.Err()
}

// replaceFile swaps the chunks of one file in a single transaction
func (s *chunkStore) replaceFile(path, checksum string, chunks []Chunk) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chunks WHERE file_path = ?`, path); err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO chunks (file_path, section, text, embedding) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		var blob []byte
		if len(c.Embedding) > 0 {
			blob = serializeEmbedding(c.Embedding)
		}
		if _, err := stmt.Exec(path, c.Section, c.Text, blob); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}

	if _, err := tx.Exec(`
        INSERT INTO source_files (file_path, checksum, num_chunks) VALUES (?, ?, ?)
        ON CONFLICT(file_path) DO UPDATE SET checksum = excluded.checksum,
            num_chunks = excluded.num_chunks, processed_at = CURRENT_TIMESTAMP
    `, path, checksum, len(chunks)); err != nil {
		return fmt.Errorf("failed to record source file: %w", err)
	}

	return tx.Commit()
}

// deleteFile removes a file that left the corpus
func (s *chunkStore) deleteFile(path string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chunks WHERE file_path = ?`, path); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM source_files WHERE file_path = ?`, path); err != nil {
		return err
	}
	return tx.Commit()
}

// allChunks loads every chunk for ranking
func (s *chunkStore) allChunks() ([]Chunk, error) {
	rows, err := s.db.Query(`SELECT file_path, COALESCE(section, ''), text, embedding FROM chunks ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var blob []byte
		if err := rows.Scan(&c.Source, &c.Section, &c.Text, &blob); err != nil {
			return nil, err
		}
		c.Embedding = deserializeEmbedding(blob)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// serializeEmbedding converts a float32 slice to little-endian bytes
func serializeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeEmbedding converts bytes back to a float32 slice
func deserializeEmbedding(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	embedding := make([]float32, len(data)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return embedding
}
