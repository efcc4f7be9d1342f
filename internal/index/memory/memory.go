package memory

import (
	"bufio"
	"container/heap"
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/skillbase/ragengine/internal/domain"
	"github.com/skillbase/ragengine/internal/index"
)

// File format: magic, version, dimension, row count, then the dense row-major
// float32 matrix, all little-endian.
const (
	fileMagic   = "RGIX"
	fileVersion = uint32(1)
)

// Index is an exact nearest-neighbor index over a dense in-memory matrix of
// unit-norm vectors. Search is a linear scan with a min-heap tracking the
// top-k inner products. Not safe for concurrent writers; an internal RWMutex
// enforces single-writer multi-reader access.
type Index struct {
	mu         sync.RWMutex
	dimensions int
	data       []float32 // row-major, len == rows*dimensions
	rows       int64
}

// NewIndex creates an empty index with the dimension fixed for its lifetime.
func NewIndex(dimensions int) (*Index, error) {
	if dimensions <= 0 {
		return nil, domain.Errorf(domain.KindValidation, "index dimension must be positive, got %d", dimensions)
	}
	return &Index{dimensions: dimensions}, nil
}

// Add appends vectors and returns their assigned row ids, sequential from the
// current row count. All vectors are validated before any mutation so a bad
// batch never leaves the index partially grown.
func (idx *Index) Add(vectors [][]float32) ([]int64, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for i, v := range vectors {
		if len(v) != idx.dimensions {
			return nil, domain.Errorf(domain.KindValidation,
				"vector %d has %d dimensions, index expects %d", i, len(v), idx.dimensions)
		}
	}
	ids := make([]int64, len(vectors))
	for i, v := range vectors {
		ids[i] = idx.rows + int64(i)
		idx.data = append(idx.data, v...)
	}
	idx.rows += int64(len(vectors))
	return ids, nil
}

// Search returns up to k hits sorted by descending inner product. An empty
// index yields an empty result, not an error.
func (idx *Index) Search(query []float32, k int) ([]domain.Hit, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if len(query) != idx.dimensions {
		return nil, domain.Errorf(domain.KindValidation,
			"query has %d dimensions, index expects %d", len(query), idx.dimensions)
	}
	if idx.rows == 0 || k <= 0 {
		return []domain.Hit{}, nil
	}

	h := &hitHeap{}
	heap.Init(h)
	for row := int64(0); row < idx.rows; row++ {
		vec := idx.data[row*int64(idx.dimensions) : (row+1)*int64(idx.dimensions)]
		score := index.Dot(query, vec)
		if h.Len() < k {
			heap.Push(h, domain.Hit{RowID: row, Score: score})
		} else if score > (*h)[0].Score {
			heap.Pop(h)
			heap.Push(h, domain.Hit{RowID: row, Score: score})
		}
	}

	// Pop ascending, fill back-to-front for descending order.
	hits := make([]domain.Hit, h.Len())
	for i := len(hits) - 1; i >= 0; i-- {
		hits[i] = heap.Pop(h).(domain.Hit)
	}
	return hits, nil
}

// Len returns the number of stored vectors.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return int(idx.rows)
}

// Dimensions returns the fixed vector dimension.
func (idx *Index) Dimensions() int { return idx.dimensions }

// Truncate discards every row with id >= rows and keeps the prefix. The
// persistence layer uses it to rewind the index to the last row count the
// metadata side-car agrees with.
func (idx *Index) Truncate(rows int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if rows < 0 || rows > idx.rows {
		return domain.Errorf(domain.KindValidation,
			"cannot truncate index of %d rows to %d", idx.rows, rows)
	}
	idx.data = idx.data[:rows*int64(idx.dimensions)]
	idx.rows = rows
	return nil
}

// Reset discards all vectors. Row ids restart from zero; callers resetting
// the index must reset the metadata side-car with it.
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.data = nil
	idx.rows = 0
}

// Save writes the vector matrix and row count to path.
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return domain.NewError(domain.KindIndexIO, "create index file", err)
	}
	w := bufio.NewWriter(f)
	if err := idx.writeTo(w); err != nil {
		_ = f.Close()
		return domain.NewError(domain.KindIndexIO, "write index file", err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return domain.NewError(domain.KindIndexIO, "flush index file", err)
	}
	if err := f.Close(); err != nil {
		return domain.NewError(domain.KindIndexIO, "close index file", err)
	}
	return nil
}

func (idx *Index) writeTo(w io.Writer) error {
	if _, err := w.Write([]byte(fileMagic)); err != nil {
		return err
	}
	for _, v := range []uint32{fileVersion, uint32(idx.dimensions)} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(idx.rows)); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, idx.data)
}

// Load replaces the index contents with the matrix stored at path. A missing,
// corrupt or wrong-dimension file fails without mutating the index; the
// persistence layer decides whether to reset to empty.
func (idx *Index) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return domain.NewError(domain.KindIndexIO, "open index file", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return domain.NewError(domain.KindIndexIO, "read index header", err)
	}
	if string(magic) != fileMagic {
		return domain.Errorf(domain.KindIndexIO, "bad index magic %q", magic)
	}
	var version, dims uint32
	var rows uint64
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return domain.NewError(domain.KindIndexIO, "read index header", err)
	}
	if version != fileVersion {
		return domain.Errorf(domain.KindIndexIO, "unsupported index version %d", version)
	}
	if err := binary.Read(r, binary.LittleEndian, &dims); err != nil {
		return domain.NewError(domain.KindIndexIO, "read index header", err)
	}
	if int(dims) != idx.dimensions {
		return domain.Errorf(domain.KindIndexIO,
			"index file has dimension %d, configured dimension is %d", dims, idx.dimensions)
	}
	if err := binary.Read(r, binary.LittleEndian, &rows); err != nil {
		return domain.NewError(domain.KindIndexIO, "read index header", err)
	}
	// The row count is untrusted input; check it against the actual file
	// size before allocating, or a corrupt header could demand an absurd
	// matrix. Division keeps the check overflow-safe for any claimed count.
	fi, err := f.Stat()
	if err != nil {
		return domain.NewError(domain.KindIndexIO, "stat index file", err)
	}
	headerLen := int64(len(fileMagic)) + 4 + 4 + 8
	payload := fi.Size() - headerLen
	vecBytes := uint64(dims) * 4
	if payload < 0 || uint64(payload)%vecBytes != 0 || uint64(payload)/vecBytes != rows {
		return domain.Errorf(domain.KindIndexIO,
			"index file claims %d rows but holds %d matrix bytes", rows, payload)
	}
	data := make([]float32, rows*uint64(dims))
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return domain.NewError(domain.KindIndexIO, "read index matrix", err)
	}
	if _, err := r.ReadByte(); err != io.EOF {
		return domain.Errorf(domain.KindIndexIO, "trailing bytes in index file")
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.data = data
	idx.rows = int64(rows)
	return nil
}

var _ index.Index = (*Index)(nil)

// hitHeap is a min-heap by score so the weakest of the current top-k can be
// evicted in O(log k).
type hitHeap []domain.Hit

func (h hitHeap) Len() int            { return len(h) }
func (h hitHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h hitHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x interface{}) { *h = append(*h, x.(domain.Hit)) }
func (h *hitHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
