package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skillbase/ragengine/internal/domain"
	"github.com/skillbase/ragengine/internal/persist"
)

// Defaults for the retrieval tuning knobs.
const (
	DefaultOverfetchFactor = 4
	DefaultCheckpointEvery = 1
	DefaultTopK            = 5
)

// Config tunes the retrieval service.
type Config struct {
	// OverfetchFactor multiplies topK for the raw index search. The index
	// has no native scope filter, so candidates outside the requested
	// course are dropped afterwards; over-fetching keeps enough survivors.
	OverfetchFactor int

	// CheckpointEvery is the number of successfully processed documents
	// between disk checkpoints. 1 means write-through; larger values trade
	// durability latency for ingest throughput.
	CheckpointEvery int
}

func (c *Config) applyDefaults() {
	if c.OverfetchFactor <= 0 {
		c.OverfetchFactor = DefaultOverfetchFactor
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = DefaultCheckpointEvery
	}
}

// Service orchestrates chunking, embedding, index insertion and scoped
// similarity search. It owns the index/metadata pair and guards them with a
// single-writer multi-reader lock; embedding, the slow network-bound step,
// always runs outside that lock.
type Service struct {
	mu       sync.RWMutex
	chunker  domain.Chunker
	embedder domain.Embedder
	idx      domain.VectorIndex
	meta     domain.MetadataStore
	pm       *persist.Manager
	log      *zap.Logger
	cfg      Config

	// documents committed since the last checkpoint
	dirty int
}

// New assembles the service and restores persisted state. A corrupt or
// missing checkpoint results in an empty, usable engine; it never blocks
// startup.
func New(cfg Config, chunker domain.Chunker, embedder domain.Embedder, idx domain.VectorIndex,
	meta domain.MetadataStore, pm *persist.Manager, log *zap.Logger) (*Service, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cfg.applyDefaults()
	if embedder.Dimensions() != idx.Dimensions() {
		return nil, domain.Errorf(domain.KindValidation,
			"embedder produces %d dimensions, index expects %d", embedder.Dimensions(), idx.Dimensions())
	}
	s := &Service{
		chunker:  chunker,
		embedder: embedder,
		idx:      idx,
		meta:     meta,
		pm:       pm,
		log:      log,
		cfg:      cfg,
	}
	if pm != nil {
		if err := pm.Load(idx, meta); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ProcessDocument chunks, embeds and indexes one document as a single logical
// transaction. If embedding any chunk fails, no rows are committed and the
// index is left exactly as before the call. Returns the number of chunks
// created.
func (s *Service) ProcessDocument(ctx context.Context, doc domain.Document) (int, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return 0, domain.Errorf(domain.KindValidation, "document %s has no text to embed", doc.ID)
	}
	chunks := s.chunker.Chunk(doc.Text)
	if len(chunks) == 0 {
		return 0, nil
	}

	// Embed every chunk before touching the index. The lock is not held
	// here, so searches stay available while a slow model call is in
	// flight, and a failure anywhere leaves nothing to roll back.
	vectors := make([][]float32, len(chunks))
	for i, text := range chunks {
		vec, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return 0, err
		}
		vectors[i] = vec
	}

	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	rowIDs, err := s.idx.Add(vectors)
	if err != nil {
		return 0, err
	}
	for i, rowID := range rowIDs {
		putErr := s.meta.Put(domain.MetadataEntry{
			RowID:        rowID,
			DocumentID:   doc.ID,
			CourseID:     doc.CourseID,
			InstructorID: doc.InstructorID,
			ChunkIndex:   i,
			Content:      chunks[i],
			Metadata:     doc.Metadata,
			CreatedAt:    now,
		})
		if putErr != nil {
			// Freshly assigned row ids cannot collide unless the
			// index/metadata invariant is already broken.
			s.log.Error("metadata write failed for fresh row id",
				zap.Int64("row_id", rowID),
				zap.String("document_id", doc.ID),
				zap.Error(putErr))
			return 0, putErr
		}
	}

	s.dirty++
	if s.pm != nil && s.dirty >= s.cfg.CheckpointEvery {
		if err := s.pm.Save(s.idx, s.meta); err != nil {
			return 0, err
		}
		s.dirty = 0
	}

	s.log.Info("document embedded",
		zap.String("document_id", doc.ID),
		zap.String("course_id", doc.CourseID),
		zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// Search embeds the query, over-fetches raw candidates from the index,
// filters them by scope via metadata lookups and returns up to topK results
// in descending score order. Fewer than topK survivors is not an error, and
// neither is an empty index.
func (s *Service) Search(ctx context.Context, query string, scope domain.Scope, topK int) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.Errorf(domain.KindValidation, "query text is empty")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	hits, err := s.idx.Search(vec, topK*s.cfg.OverfetchFactor)
	if err != nil {
		return nil, err
	}

	results := make([]domain.SearchResult, 0, topK)
	for _, hit := range hits {
		entry, err := s.meta.Get(hit.RowID)
		if err != nil {
			// A row without metadata breaks the core invariant.
			s.log.Error("index row has no metadata entry",
				zap.Int64("row_id", hit.RowID),
				zap.Error(err))
			return nil, err
		}
		if !scope.Matches(entry) {
			continue
		}
		results = append(results, domain.SearchResult{
			Content:    entry.Content,
			DocumentID: entry.DocumentID,
			ChunkIndex: entry.ChunkIndex,
			Score:      hit.Score,
		})
		if len(results) == topK {
			break
		}
	}
	return results, nil
}

// Close flushes any uncheckpointed state to disk. Part of the explicit
// construct-on-startup, flush-on-shutdown lifecycle.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pm == nil || s.dirty == 0 {
		return nil
	}
	if err := s.pm.Save(s.idx, s.meta); err != nil {
		return err
	}
	s.dirty = 0
	return nil
}

var _ domain.RetrievalService = (*Service)(nil)
