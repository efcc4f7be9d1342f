package memory

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillbase/ragengine/internal/domain"
	"github.com/skillbase/ragengine/internal/index"
)

func unit(vals ...float32) []float32 {
	index.Normalize(vals)
	return vals
}

func TestNewIndex_InvalidDimension(t *testing.T) {
	_, err := NewIndex(0)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestIndex_Add_AssignsSequentialRowIDs(t *testing.T) {
	idx, err := NewIndex(3)
	require.NoError(t, err)

	ids, err := idx.Add([][]float32{unit(1, 0, 0), unit(0, 1, 0)})
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1}, ids)

	ids, err = idx.Add([][]float32{unit(0, 0, 1)})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)
	assert.Equal(t, 3, idx.Len())
}

func TestIndex_Add_DimensionMismatchLeavesIndexUntouched(t *testing.T) {
	idx, err := NewIndex(3)
	require.NoError(t, err)

	_, err = idx.Add([][]float32{unit(1, 0, 0), {1, 0}})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, 0, idx.Len(), "failed batch must not mutate the index")
}

func TestIndex_Search_Empty(t *testing.T) {
	idx, err := NewIndex(4)
	require.NoError(t, err)

	hits, err := idx.Search(unit(1, 0, 0, 0), 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_Search_DescendingOrder(t *testing.T) {
	idx, err := NewIndex(2)
	require.NoError(t, err)

	_, err = idx.Add([][]float32{
		unit(1, 0),
		unit(0, 1),
		unit(1, 1),
	})
	require.NoError(t, err)

	hits, err := idx.Search(unit(1, 0), 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, int64(0), hits[0].RowID)
	assert.Equal(t, int64(2), hits[1].RowID)
	assert.Equal(t, int64(1), hits[2].RowID)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
	assert.GreaterOrEqual(t, hits[1].Score, hits[2].Score)
	assert.InDelta(t, 1.0, float64(hits[0].Score), 1e-5)
}

func TestIndex_Search_QueryDimensionMismatch(t *testing.T) {
	idx, err := NewIndex(3)
	require.NoError(t, err)

	_, err = idx.Search([]float32{1, 0}, 1)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestIndex_SaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.bin")

	idx, err := NewIndex(3)
	require.NoError(t, err)
	_, err = idx.Add([][]float32{
		unit(1, 0, 0),
		unit(0, 1, 0),
		unit(1, 1, 0),
		unit(0, 1, 1),
	})
	require.NoError(t, err)

	query := unit(1, 0.5, 0)
	before, err := idx.Search(query, 4)
	require.NoError(t, err)

	require.NoError(t, idx.Save(path))

	fresh, err := NewIndex(3)
	require.NoError(t, err)
	require.NoError(t, fresh.Load(path))
	assert.Equal(t, idx.Len(), fresh.Len())

	after, err := fresh.Search(query, 4)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].RowID, after[i].RowID)
		assert.InDelta(t, float64(before[i].Score), float64(after[i].Score), 1e-6)
	}
}

func TestIndex_Load_MissingFile(t *testing.T) {
	idx, err := NewIndex(3)
	require.NoError(t, err)

	err = idx.Load(filepath.Join(t.TempDir(), "nope.bin"))
	require.Error(t, err)
	assert.True(t, domain.IsIndexIO(err))
}

func TestIndex_Load_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.bin")
	require.NoError(t, os.WriteFile(path, []byte("not an index"), 0o644))

	idx, err := NewIndex(3)
	require.NoError(t, err)
	err = idx.Load(path)
	require.Error(t, err)
	assert.True(t, domain.IsIndexIO(err))
	assert.Equal(t, 0, idx.Len(), "failed load must not mutate the index")
}

func TestIndex_Load_OversizedRowCountRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.bin")

	// Valid header, absurd row count, no matrix behind it.
	var buf bytes.Buffer
	buf.WriteString("RGIX")
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(1)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(3)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(1)<<61))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	idx, err := NewIndex(3)
	require.NoError(t, err)
	err = idx.Load(path)
	require.Error(t, err, "a huge claimed row count must fail, not allocate")
	assert.True(t, domain.IsIndexIO(err))
	assert.Equal(t, 0, idx.Len())
}

func TestIndex_Load_RowCountBeyondFileRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.bin")

	// Claims two rows but carries only one vector of data.
	var buf bytes.Buffer
	buf.WriteString("RGIX")
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(1)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(3)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(2)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, unit(1, 0, 0)))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	idx, err := NewIndex(3)
	require.NoError(t, err)
	err = idx.Load(path)
	require.Error(t, err)
	assert.True(t, domain.IsIndexIO(err))
	assert.Equal(t, 0, idx.Len())
}

func TestIndex_Load_WrongDimension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.bin")

	idx3, err := NewIndex(3)
	require.NoError(t, err)
	_, err = idx3.Add([][]float32{unit(1, 0, 0)})
	require.NoError(t, err)
	require.NoError(t, idx3.Save(path))

	idx4, err := NewIndex(4)
	require.NoError(t, err)
	err = idx4.Load(path)
	require.Error(t, err)
	assert.True(t, domain.IsIndexIO(err), "wrong-dimension file must never load silently")
}

func TestIndex_Truncate_KeepsPrefix(t *testing.T) {
	idx, err := NewIndex(2)
	require.NoError(t, err)
	_, err = idx.Add([][]float32{unit(1, 0), unit(0, 1), unit(1, 1)})
	require.NoError(t, err)

	require.NoError(t, idx.Truncate(1))
	assert.Equal(t, 1, idx.Len())

	hits, err := idx.Search(unit(1, 0), 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(0), hits[0].RowID)

	// row ids continue from the truncated count
	ids, err := idx.Add([][]float32{unit(0, 1)})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
}

func TestIndex_Truncate_BeyondLenRejected(t *testing.T) {
	idx, err := NewIndex(2)
	require.NoError(t, err)
	_, err = idx.Add([][]float32{unit(1, 0)})
	require.NoError(t, err)

	err = idx.Truncate(5)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, 1, idx.Len())
}

func TestIndex_Reset(t *testing.T) {
	idx, err := NewIndex(2)
	require.NoError(t, err)
	_, err = idx.Add([][]float32{unit(1, 0)})
	require.NoError(t, err)

	idx.Reset()
	assert.Equal(t, 0, idx.Len())

	ids, err := idx.Add([][]float32{unit(0, 1)})
	require.NoError(t, err)
	assert.Equal(t, []int64{0}, ids)
}
