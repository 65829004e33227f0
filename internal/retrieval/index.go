/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package retrieval indexes a local corpus of reference documents and
// returns the passages most relevant to a question.
package retrieval

import (
	"context"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"pgedge-dataset-agent/internal/config"
	"pgedge-dataset-agent/internal/embedding"
	"pgedge-dataset-agent/internal/logging"
)

// Options configures an index
type Options struct {
	DocsDir      string
	IndexPath    string
	ChunkSize    int
	ChunkOverlap int
	Workers      int
}

// OptionsFrom converts the retrieval section of the agent configuration
func OptionsFrom(cfg config.RetrievalConfig) Options {
	return Options{
		DocsDir:      cfg.DocsDir,
		IndexPath:    cfg.IndexPath,
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		Workers:      cfg.Workers,
	}
}

// Stats summarises a refresh
type Stats struct {
	Files   int
	Indexed int
	Skipped int
	Removed int
	Chunks  int
}

// Result is a ranked passage
type Result struct {
	Source string
	Text   string
	Score  float64
}

// pendingFile is a changed file awaiting embedding and storage
type pendingFile struct {
	path     string
	checksum string
	chunks   []Chunk
}

// Index ranks corpus chunks by embedding similarity, or by BM25 when no
// embedding provider is configured
type Index struct {
	opts     Options
	provider embedding.Provider
	store    *chunkStore

	mu     sync.RWMutex
	chunks []Chunk
	last   Stats
}

// Open opens the index at opts.IndexPath and refreshes it from opts.DocsDir
func Open(ctx context.Context, opts Options, provider embedding.Provider) (*Index, error) {
	if opts.IndexPath == "" {
		opts.IndexPath = ":memory:"
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}

	store, err := openStore(opts.IndexPath)
	if err != nil {
		return nil, err
	}

	ix := &Index{opts: opts, provider: provider, store: store}
	if opts.DocsDir != "" {
		if _, err := ix.Refresh(ctx); err != nil {
			store.close()
			return nil, err
		}
	} else if err := ix.loadChunks(); err != nil {
		store.close()
		return nil, err
	}
	return ix, nil
}

// Close releases the index database
func (ix *Index) Close() error {
	if ix == nil {
		return nil
	}
	return ix.store.close()
}

// Len returns the number of indexed chunks
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.chunks)
}

// Stats returns the result of the most recent refresh
func (ix *Index) Stats() Stats {
	if ix == nil {
		return Stats{}
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.last
}

func (ix *Index) modelKey() string {
	if ix.provider == nil {
		return ""
	}
	return ix.provider.ProviderName() + "/" + ix.provider.ModelName()
}

// Refresh re-indexes changed files, skips unchanged ones and removes
// files that no longer exist
func (ix *Index) Refresh(ctx context.Context) (Stats, error) {
	start := time.Now()
	var stats Stats

	stored, err := ix.store.embeddingModel()
	if err != nil {
		return stats, fmt.Errorf("failed to read index metadata: %w", err)
	}
	if stored != ix.modelKey() {
		// Vectors from another model are not comparable
		if err := ix.store.reset(ix.modelKey()); err != nil {
			return stats, fmt.Errorf("failed to reset index: %w", err)
		}
	}

	files, err := corpusFiles(ix.opts.DocsDir)
	if err != nil {
		return stats, err
	}
	stats.Files = len(files)

	known, err := ix.store.checksums()
	if err != nil {
		return stats, fmt.Errorf("failed to read checksums: %w", err)
	}

	var pending []*pendingFile
	chunker := Chunker{Size: ix.opts.ChunkSize, Overlap: ix.opts.ChunkOverlap}
	seen := make(map[string]bool, len(files))

	for _, rel := range files {
		seen[rel] = true
		content, err := os.ReadFile(filepath.Join(ix.opts.DocsDir, rel))
		if err != nil {
			return stats, fmt.Errorf("failed to read %s: %w", rel, err)
		}

		sum := blake2b.Sum256(content)
		checksum := hex.EncodeToString(sum[:])
		if known[rel] == checksum {
			stats.Skipped++
			continue
		}

		markdown, err := Convert(content, DetectDocumentType(rel))
		if err != nil {
			logging.Warn("retrieval_convert_failed", "file", rel, "error", err)
			continue
		}
		pending = append(pending, &pendingFile{path: rel, checksum: checksum, chunks: chunker.Split(markdown, rel)})
	}

	if ix.provider != nil {
		if err := ix.embedAll(ctx, pending); err != nil {
			return stats, err
		}
	}

	for _, p := range pending {
		if err := ix.store.replaceFile(p.path, p.checksum, p.chunks); err != nil {
			return stats, err
		}
		stats.Indexed++
	}

	for path := range known {
		if !seen[path] {
			if err := ix.store.deleteFile(path); err != nil {
				return stats, fmt.Errorf("failed to remove %s: %w", path, err)
			}
			stats.Removed++
		}
	}

	if err := ix.loadChunks(); err != nil {
		return stats, err
	}
	stats.Chunks = ix.Len()

	ix.mu.Lock()
	ix.last = stats
	ix.mu.Unlock()

	logging.Info("retrieval_index_refreshed",
		"docs_dir", ix.opts.DocsDir,
		"files", stats.Files,
		"indexed", stats.Indexed,
		"skipped", stats.Skipped,
		"removed", stats.Removed,
		"chunks", stats.Chunks,
		"duration", time.Since(start).String(),
	)
	return stats, nil
}

// embedAll embeds every pending chunk with at most opts.Workers requests in flight
func (ix *Index) embedAll(ctx context.Context, pending []*pendingFile) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.opts.Workers)

	for _, p := range pending {
		for i := range p.chunks {
			c := &p.chunks[i]
			g.Go(func() error {
				vec, err := ix.provider.Embed(gctx, c.Text)
				if err != nil {
					return fmt.Errorf("failed to embed chunk of %s: %w", c.Source, err)
				}
				c.Embedding = make([]float32, len(vec))
				for j, v := range vec {
					c.Embedding[j] = float32(v)
				}
				return nil
			})
		}
	}
	return g.Wait()
}

func (ix *Index) loadChunks() error {
	chunks, err := ix.store.allChunks()
	if err != nil {
		return fmt.Errorf("failed to load chunks: %w", err)
	}
	ix.mu.Lock()
	ix.chunks = chunks
	ix.mu.Unlock()
	return nil
}

// corpusFiles lists supported files under dir as slash-separated relative paths
func corpusFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || DetectDocumentType(path) == TypeUnknown {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// Search ranks chunks against the question
func (ix *Index) Search(ctx context.Context, question string, k int) ([]Result, error) {
	if ix == nil || k <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	chunks := ix.chunks
	ix.mu.RUnlock()
	if len(chunks) == 0 {
		return nil, nil
	}

	results := make([]Result, len(chunks))
	if ix.provider != nil {
		vec, err := ix.provider.Embed(ctx, question)
		if err != nil {
			return nil, fmt.Errorf("failed to embed question: %w", err)
		}
		for i, c := range chunks {
			results[i] = Result{Source: c.Source, Text: c.Text, Score: cosine(vec, c.Embedding)}
		}
	} else {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		for i, score := range bm25Scores(question, texts) {
			results[i] = Result{Source: chunks[i].Source, Text: chunks[i].Text, Score: score}
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	out := make([]Result, 0, k)
	for _, r := range results {
		if len(out) == k || r.Score <= 0 {
			break
		}
		out = append(out, r)
	}
	return out, nil
}

// Retrieve returns the texts of the top k passages. Failures are logged
// and yield no context.
func (ix *Index) Retrieve(ctx context.Context, question string, k int) []string {
	results, err := ix.Search(ctx, question, k)
	if err != nil {
		logging.Warn("retrieval_failed", "error", err)
		return nil
	}
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	return texts
}
