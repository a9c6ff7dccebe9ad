package tabular

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/votable/pkg/codec"
)

func sampleMeta() TableMeta {
	return TableMeta{
		Name: "stars",
		Columns: []ColumnInfo{
			ColumnFromDecoder("ra", codec.MustDecoder("double", "", "")),
			ColumnFromDecoder("name", codec.MustDecoder("char", "*", "")),
		},
		RowCount: -1,
	}
}

func filledStore(t *testing.T, n int) *RowStore {
	t.Helper()
	s := NewRowStore(TableMeta{})
	require.NoError(t, s.StartTable(sampleMeta()))
	for i := 0; i < n; i++ {
		require.NoError(t, s.Row([]any{float64(i) * 1.5, string(rune('a' + i%26))}))
	}
	require.NoError(t, s.EndTable())
	return s
}

func TestRowStore_Handler(t *testing.T) {
	s := filledStore(t, 3)

	assert.True(t, s.Ended())
	assert.Equal(t, "stars", s.Name())
	assert.Equal(t, 2, s.ColumnCount())
	assert.Equal(t, int64(3), s.RowCount())
	assert.Equal(t, codec.ClassFloat64, s.ColumnClass(0))
	assert.Equal(t, codec.ClassString, s.ColumnClass(1))

	err := s.Row([]any{1.0})
	assert.Error(t, err)
}

func TestRowStore_RowIsCopied(t *testing.T) {
	s := NewRowStore(sampleMeta())
	row := []any{1.0, "x"}
	require.NoError(t, s.Row(row))
	row[1] = "changed"

	a, err := s.Access()
	require.NoError(t, err)
	require.NoError(t, a.SetRow(0))
	v, err := a.Cell(1)
	require.NoError(t, err)
	assert.Equal(t, "x", v)
}

func TestRowStore_Sequence(t *testing.T) {
	s := filledStore(t, 2)
	seq, err := s.Rows()
	require.NoError(t, err)

	_, err = seq.Row()
	assert.ErrorIs(t, err, ErrNoCurrentRow)

	var names []any
	for {
		ok, err := seq.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		v, err := seq.Cell(1)
		require.NoError(t, err)
		names = append(names, v)
	}
	assert.Equal(t, []any{"a", "b"}, names)

	_, err = seq.Cell(0)
	assert.ErrorIs(t, err, ErrNoCurrentRow)

	require.NoError(t, seq.Close())
	_, err = seq.Cell(0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRowStore_RandomAccess(t *testing.T) {
	s := filledStore(t, 10)
	a, err := s.Access()
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.SetRow(7))
	first, err := a.Row()
	require.NoError(t, err)

	require.NoError(t, a.SetRow(2))
	require.NoError(t, a.SetRow(7))
	second, err := a.Row()
	require.NoError(t, err)
	assert.True(t, codec.RowsEqual(first, second))

	_, err = a.Cell(5)
	assert.ErrorIs(t, err, ErrColumnIndex)

	assert.ErrorIs(t, a.SetRow(10), ErrRowIndex)
	assert.ErrorIs(t, a.SetRow(-1), ErrRowIndex)
	_, err = a.Row()
	assert.ErrorIs(t, err, ErrNoCurrentRow)
}

func TestRowStore_ConcurrentSequences(t *testing.T) {
	s := filledStore(t, 500)

	var wg sync.WaitGroup
	sums := make([]float64, 8)
	for g := range sums {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			rows, err := ReadAllRows(s)
			if !assert.NoError(t, err) {
				return
			}
			for _, r := range rows {
				sums[g] += r[0].(float64)
			}
		}(g)
	}
	wg.Wait()

	for _, sum := range sums {
		assert.Equal(t, sums[0], sum)
	}
}

func TestEmpty(t *testing.T) {
	e := Empty("nothing", sampleMeta().Columns, nil)
	assert.Equal(t, int64(0), e.RowCount())
	assert.True(t, e.RandomAccess())
	assert.Equal(t, codec.ClassString, e.ColumnClass(1))

	rows, err := ReadAllRows(e)
	require.NoError(t, err)
	assert.Empty(t, rows)

	a, err := e.Access()
	require.NoError(t, err)
	assert.ErrorIs(t, a.SetRow(0), ErrRowIndex)
}

func TestMaterializeAndExternal(t *testing.T) {
	src := filledStore(t, 4)

	ext := External(src, "renamed", nil, nil)
	assert.Equal(t, "renamed", ext.Name())
	assert.Equal(t, src.Columns(), ext.Columns())

	m, err := Materialize(ext)
	require.NoError(t, err)
	assert.Equal(t, "renamed", m.Name())
	assert.Equal(t, int64(4), m.RowCount())

	want, err := ReadAllRows(src)
	require.NoError(t, err)
	got, err := ReadAllRows(m)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, codec.RowsEqual(want[i], got[i]))
	}

	ra, err := RandomAccessOf(ext)
	require.NoError(t, err)
	assert.Same(t, ext, ra)
}

type recordingHandler struct {
	events []string
}

func (h *recordingHandler) StartTable(meta TableMeta) error {
	h.events = append(h.events, "start:"+meta.Name)
	return nil
}

func (h *recordingHandler) Row(row []any) error {
	h.events = append(h.events, "row")
	return nil
}

func (h *recordingHandler) EndTable() error {
	h.events = append(h.events, "end")
	return nil
}

func TestPipeTable(t *testing.T) {
	a, b := &recordingHandler{}, &recordingHandler{}
	n, err := PipeTable(filledStore(t, 2), MultiHandler{a, b})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	want := []string{"start:stars", "row", "row", "end"}
	assert.Equal(t, want, a.events)
	assert.Equal(t, want, b.events)
}
