package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skillbase/ragengine/internal/chunker"
	"github.com/skillbase/ragengine/internal/domain"
	"github.com/skillbase/ragengine/internal/embedding/hash"
	"github.com/skillbase/ragengine/internal/index/memory"
	"github.com/skillbase/ragengine/internal/metadata"
	"github.com/skillbase/ragengine/internal/persist"
)

const testDims = 64

type fixture struct {
	svc  *Service
	idx  *memory.Index
	meta *metadata.Store
}

func newFixture(t *testing.T, cfg Config, emb domain.Embedder, pm *persist.Manager) fixture {
	t.Helper()
	if emb == nil {
		emb = hash.NewEmbedder(testDims)
	}
	ch, err := chunker.NewTokenChunker(6, 1)
	require.NoError(t, err)
	idx, err := memory.NewIndex(testDims)
	require.NoError(t, err)
	meta := metadata.NewStore()
	svc, err := New(cfg, ch, emb, idx, meta, pm, zap.NewNop())
	require.NoError(t, err)
	return fixture{svc: svc, idx: idx, meta: meta}
}

// flakyEmbedder fails on a chosen call and delegates otherwise.
type flakyEmbedder struct {
	inner  domain.Embedder
	failAt int
	calls  int
}

func (f *flakyEmbedder) Name() string    { return "flaky" }
func (f *flakyEmbedder) Dimensions() int { return f.inner.Dimensions() }
func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.calls == f.failAt {
		return nil, domain.Errorf(domain.KindEmbedding, "model unavailable")
	}
	return f.inner.Embed(ctx, text)
}

// gatedEmbedder blocks embedding of texts containing the gate token until
// released, and delegates everything else.
type gatedEmbedder struct {
	inner   domain.Embedder
	token   string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedEmbedder) Name() string    { return "gated" }
func (g *gatedEmbedder) Dimensions() int { return g.inner.Dimensions() }
func (g *gatedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, g.token) {
		g.once.Do(func() { close(g.entered) })
		<-g.release
	}
	return g.inner.Embed(ctx, text)
}

func doc(id, courseID, text string) domain.Document {
	return domain.Document{ID: id, CourseID: courseID, Title: id, Text: text}
}

func TestService_ProcessDocument_CreatesChunks(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)

	n, err := f.svc.ProcessDocument(context.Background(), doc("doc-a", "course-1",
		"Construction safety. Wear PPE at all times."))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, f.idx.Len())
	assert.Equal(t, 2, f.meta.Len())
}

func TestService_ProcessDocument_EmptyTextFailsValidation(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)

	_, err := f.svc.ProcessDocument(context.Background(), doc("doc-a", "course-1", "   \n "))
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, 0, f.idx.Len())
}

func TestService_ProcessDocument_AllOrNothing(t *testing.T) {
	// Five chunks of six tokens with one token of overlap need 26 tokens.
	words := make([]string, 26)
	for i := range words {
		words[i] = "tok" + string(rune('a'+i))
	}
	text := strings.Join(words, " ")

	emb := &flakyEmbedder{inner: hash.NewEmbedder(testDims), failAt: 3}
	f := newFixture(t, Config{}, emb, nil)

	_, err := f.svc.ProcessDocument(context.Background(), doc("doc-a", "course-1", text))
	require.Error(t, err)
	assert.True(t, domain.IsEmbedding(err))
	assert.Equal(t, 0, f.idx.Len(), "failed batch must not grow the index")
	assert.Equal(t, 0, f.meta.Len(), "failed batch must not grow the metadata store")
	assert.Equal(t, 3, emb.calls, "embedding must stop at the first failure")
}

func TestService_Search_EmptyIndex(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)

	results, err := f.svc.Search(context.Background(), "anything at all", domain.Scope{}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestService_Search_EmptyQueryFailsValidation(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)

	_, err := f.svc.Search(context.Background(), "  ", domain.Scope{}, 5)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestService_Search_SelfRetrieval(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)
	ctx := context.Background()

	_, err := f.svc.ProcessDocument(ctx, doc("doc-a", "course-1",
		"Ladders must be secured before climbing. Inspect harnesses daily for wear and tear. Report damaged equipment to the site supervisor immediately."))
	require.NoError(t, err)

	entry, err := f.meta.Get(0)
	require.NoError(t, err)

	results, err := f.svc.Search(ctx, entry.Content, domain.Scope{}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, entry.DocumentID, results[0].DocumentID)
	assert.Equal(t, entry.ChunkIndex, results[0].ChunkIndex)
	assert.GreaterOrEqual(t, float64(results[0].Score), 0.999)
}

func TestService_Search_ScopeIsolation(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)
	ctx := context.Background()

	_, err := f.svc.ProcessDocument(ctx, doc("doc-a", "course-1",
		"Concrete curing requires consistent moisture for several days."))
	require.NoError(t, err)
	_, err = f.svc.ProcessDocument(ctx, doc("doc-b", "course-2",
		"Concrete curing requires consistent moisture for several days."))
	require.NoError(t, err)

	results, err := f.svc.Search(ctx, "concrete curing moisture", domain.Scope{CourseID: "course-1"}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "doc-a", r.DocumentID, "course-2 chunks must never leak into course-1 scope")
	}
}

func TestService_Search_SafetyNoticeScenario(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)
	ctx := context.Background()

	n, err := f.svc.ProcessDocument(ctx, doc("doc-a", "course-1",
		"Construction safety. Wear PPE at all times."))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	results, err := f.svc.Search(ctx, "PPE safety", domain.Scope{}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "Wear PPE")
}

func TestService_Search_DescendingScores(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)
	ctx := context.Background()

	texts := []string{
		"Excavation edges must be shored against collapse.",
		"Welding requires a hot work permit and a fire watch.",
		"Shoring and trench boxes protect workers in excavations.",
	}
	for i, text := range texts {
		_, err := f.svc.ProcessDocument(ctx, domain.Document{ID: "doc-" + string(rune('a'+i)), CourseID: "course-1", Text: text})
		require.NoError(t, err)
	}

	results, err := f.svc.Search(ctx, "excavation shoring collapse", domain.Scope{}, 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestService_SearchProceedsDuringSlowIngest(t *testing.T) {
	emb := &gatedEmbedder{
		inner:   hash.NewEmbedder(testDims),
		token:   "glacial",
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	f := newFixture(t, Config{}, emb, nil)
	ctx := context.Background()

	_, err := f.svc.ProcessDocument(ctx, doc("doc-a", "course-1",
		"Scaffolding must be inspected before each shift."))
	require.NoError(t, err)

	// Embedding happens outside the service lock, so a stalled model call
	// must not make readers wait.
	ingestDone := make(chan error, 1)
	go func() {
		_, err := f.svc.ProcessDocument(ctx, doc("doc-b", "course-1",
			"Work at a glacial pace near overhead power lines."))
		ingestDone <- err
	}()
	<-emb.entered

	searchDone := make(chan []domain.SearchResult, 1)
	searchErr := make(chan error, 1)
	go func() {
		results, err := f.svc.Search(ctx, "scaffolding inspection shift", domain.Scope{}, 1)
		searchErr <- err
		searchDone <- results
	}()

	select {
	case err := <-searchErr:
		require.NoError(t, err)
		results := <-searchDone
		require.Len(t, results, 1)
		assert.Equal(t, "doc-a", results[0].DocumentID)
	case <-time.After(2 * time.Second):
		close(emb.release)
		t.Fatal("search blocked behind an in-flight embedding batch")
	}

	close(emb.release)
	require.NoError(t, <-ingestDone)
	assert.Equal(t, 4, f.idx.Len())
}

func TestService_CheckpointWriteThrough(t *testing.T) {
	dir := t.TempDir()
	pm, err := persist.NewManager(dir, zap.NewNop())
	require.NoError(t, err)

	f := newFixture(t, Config{CheckpointEvery: 1}, nil, pm)
	_, err = f.svc.ProcessDocument(context.Background(), doc("doc-a", "course-1",
		"Hard hats are mandatory everywhere on site."))
	require.NoError(t, err)

	assert.FileExists(t, pm.IndexPath())
	assert.FileExists(t, pm.MetadataPath())
}

func TestService_RestartRestoresState(t *testing.T) {
	dir := t.TempDir()
	pm, err := persist.NewManager(dir, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	f := newFixture(t, Config{}, nil, pm)
	_, err = f.svc.ProcessDocument(ctx, doc("doc-a", "course-1",
		"Hearing protection is required in designated noise zones."))
	require.NoError(t, err)
	require.NoError(t, f.svc.Close())

	pm2, err := persist.NewManager(dir, zap.NewNop())
	require.NoError(t, err)
	f2 := newFixture(t, Config{}, nil, pm2)

	results, err := f2.svc.Search(ctx, "hearing protection noise", domain.Scope{}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-a", results[0].DocumentID)
}

func TestService_BatchedCheckpointFlushOnClose(t *testing.T) {
	dir := t.TempDir()
	pm, err := persist.NewManager(dir, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	f := newFixture(t, Config{CheckpointEvery: 10}, nil, pm)
	_, err = f.svc.ProcessDocument(ctx, doc("doc-a", "course-1",
		"Fall protection is required above six feet."))
	require.NoError(t, err)
	assert.NoFileExists(t, pm.IndexPath(), "batched config must not checkpoint per document")

	require.NoError(t, f.svc.Close())
	assert.FileExists(t, pm.IndexPath())
	assert.FileExists(t, pm.MetadataPath())
}

func TestService_ReembeddingAppendsRows(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)
	ctx := context.Background()

	d := doc("doc-a", "course-1", "Crane signals must follow the standard hand chart.")
	_, err := f.svc.ProcessDocument(ctx, d)
	require.NoError(t, err)
	before := f.idx.Len()

	_, err = f.svc.ProcessDocument(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, before*2, f.idx.Len(), "re-embedding appends new rows, it never deletes old ones")
}

func TestNew_DimensionMismatchRejected(t *testing.T) {
	ch, err := chunker.NewTokenChunker(6, 1)
	require.NoError(t, err)
	idx, err := memory.NewIndex(32)
	require.NoError(t, err)

	_, err = New(Config{}, ch, hash.NewEmbedder(64), idx, metadata.NewStore(), nil, zap.NewNop())
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}
