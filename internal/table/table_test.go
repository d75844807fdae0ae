package table

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSchema(t *testing.T, names ...string) Schema {
	t.Helper()

	s, err := NewSchema(IntegerFields(names...)...)
	require.NoError(t, err)

	return s
}

func TestAssemble(t *testing.T) {
	schema := mustSchema(t, "Confirmed Cases")

	t.Run("rows become sorted table", func(t *testing.T) {
		tbl, err := Assemble("cases", schema, []Row{
			{Key: "bergen", Values: []float64{5}},
			{Key: "atlantic", Values: []float64{3}},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"atlantic", "bergen"}, tbl.Keys())

		v, ok := tbl.Value("bergen", "Confirmed Cases")
		require.True(t, ok)
		assert.InDelta(t, 5, v, 0)
	})

	t.Run("duplicate key", func(t *testing.T) {
		_, err := Assemble("cases", schema, []Row{
			{Key: "bergen", Values: []float64{5}},
			{Key: "bergen", Values: []float64{6}},
		})
		require.ErrorIs(t, err, ErrDuplicateKey)
		assert.Contains(t, err.Error(), "records 0 and 1")
	})

	t.Run("empty", func(t *testing.T) {
		_, err := Assemble("cases", schema, nil)
		require.ErrorIs(t, err, ErrEmptyTable)
	})
}

func TestFieldTableIsImmutable(t *testing.T) {
	rows := map[string][]float64{"a": {1, 2}}

	tbl, err := New("t", []string{"x", "y"}, rows)
	require.NoError(t, err)

	rows["a"][0] = 99

	got, ok := tbl.Row("a")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2}, got)

	got[1] = 42
	v, _ := tbl.Value("a", "y")
	assert.InDelta(t, 2, v, 0)

	fields := tbl.Fields()
	fields[0] = "z"
	assert.True(t, tbl.HasField("x"))
}

func TestFieldTableColumn(t *testing.T) {
	tbl, err := New("t", []string{"x", "y"}, map[string][]float64{"a": {1, 2}, "b": {3, 4}})
	require.NoError(t, err)

	col, err := tbl.Column("y")
	require.NoError(t, err)

	if diff := cmp.Diff(map[string]float64{"a": 2, "b": 4}, col); diff != "" {
		t.Errorf("Column mismatch (-want +got):\n%s", diff)
	}

	_, err = tbl.Column("missing")
	require.ErrorIs(t, err, ErrUnknownField)
}

func TestNewRejectsRaggedRows(t *testing.T) {
	_, err := New("t", []string{"x"}, map[string][]float64{"a": {1, 2}})
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestCSVRoundTrip(t *testing.T) {
	tbl, err := New("nj", []string{"Vaccine Doses", "Confirmed Cases", "Population"}, map[string][]float64{
		"cape_may": {500, 20, 92039},
		"atlantic": {1000, 10, 263670},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tbl, "County"))

	want := "County,Confirmed Cases,Population,Vaccine Doses\n" +
		"atlantic,10,263670,1000\n" +
		"cape_may,20,92039,500\n"
	assert.Equal(t, want, buf.String())

	path := filepath.Join(t.TempDir(), "out", "nj.csv")
	require.NoError(t, WriteCSVFile(path, tbl, "County"))

	back, err := ReadCSVFile(path)
	require.NoError(t, err)
	assert.Equal(t, tbl.Keys(), back.Keys())

	v, ok := back.Value("cape_may", "Population")
	require.True(t, ok)
	assert.InDelta(t, 92039, v, 0)
}
