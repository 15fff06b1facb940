// Package index holds the vector index built from document chunks. It is a
// thin layer over a single chromem-go collection that can be exported to and
// imported from one file.
package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"docchat/internal/ai"
)

const collectionName = "documents"

var (
	ErrIndexLoad  = errors.New("vector index load failed")
	ErrEmptyIndex = errors.New("no chunks to index")

	errTextQuery = errors.New("index only supports precomputed embeddings")
)

type Options struct {
	Compress      bool
	EncryptionKey string
}

type Match struct {
	Position   int     `json:"position"`
	Content    string  `json:"content"`
	Similarity float32 `json:"similarity"`
}

// Index is immutable once built; concurrent searches are safe.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// Build embeds every chunk and returns a fresh index. No partial index is
// returned on error.
func Build(ctx context.Context, embedder ai.Embedder, chunks []string) (*Index, error) {
	if len(chunks) == 0 {
		return nil, ErrEmptyIndex
	}
	vectors, err := embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: embedding count mismatch: got %d, want %d", ai.ErrEmbeddingService, len(vectors), len(chunks))
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection(collectionName, nil, rejectTextQuery)
	if err != nil {
		return nil, fmt.Errorf("create collection failed: %w", err)
	}

	docs := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = chromem.Document{
			ID:        fmt.Sprintf("chunk-%06d", i),
			Metadata:  map[string]string{"position": strconv.Itoa(i)},
			Embedding: vectors[i],
			Content:   chunk,
		}
	}
	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("add documents failed: %w", err)
	}
	return &Index{db: db, collection: collection}, nil
}

func (idx *Index) Len() int {
	if idx == nil || idx.collection == nil {
		return 0
	}
	return idx.collection.Count()
}

// Search returns at most min(k, Len()) chunks, most similar first.
func (idx *Index) Search(ctx context.Context, queryEmbedding []float32, k int) ([]Match, error) {
	n := min(k, idx.Len())
	if n <= 0 {
		return nil, nil
	}
	results, err := idx.collection.QueryEmbedding(ctx, queryEmbedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query index failed: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		pos, _ := strconv.Atoi(r.Metadata["position"])
		matches = append(matches, Match{Position: pos, Content: r.Content, Similarity: r.Similarity})
	}
	slices.SortStableFunc(matches, func(a, b Match) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		default:
			return a.Position - b.Position
		}
	})
	return matches, nil
}

// Save exports the index to path. The file is written next to the target and
// renamed over it, so readers never observe a partial file.
func (idx *Index) Save(path string, opts Options) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index dir failed: %w", err)
	}
	tmp := path + ".tmp-" + uuid.NewString()
	if err := idx.db.ExportToFile(tmp, opts.Compress, opts.EncryptionKey, collectionName); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("export index failed: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace index file failed: %w", err)
	}
	return nil
}

// Load imports an index previously written by Save. Every failure, including
// a missing file, is reported as ErrIndexLoad.
func Load(path string, opts Options) (*Index, error) {
	db := chromem.NewDB()
	if err := db.ImportFromFile(path, opts.EncryptionKey, collectionName); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexLoad, err)
	}
	collection := db.GetCollection(collectionName, rejectTextQuery)
	if collection == nil {
		return nil, fmt.Errorf("%w: collection %q not found in %s", ErrIndexLoad, collectionName, path)
	}
	if collection.Count() == 0 {
		return nil, fmt.Errorf("%w: %s holds no documents", ErrIndexLoad, path)
	}
	return &Index{db: db, collection: collection}, nil
}

func rejectTextQuery(context.Context, string) ([]float32, error) {
	return nil, errTextQuery
}
