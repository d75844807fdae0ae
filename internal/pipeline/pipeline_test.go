package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"njvaxbot/internal/binner"
	"njvaxbot/internal/config"
	"njvaxbot/internal/fetch"
	"njvaxbot/internal/logger"
	"njvaxbot/internal/metrics"
	"njvaxbot/internal/normalizer"
	"njvaxbot/internal/render"
	"njvaxbot/internal/run"
	"njvaxbot/internal/table"
)

type fakeProvider struct {
	name    string
	batches [][]table.RawRecord
	calls   int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Fetch(context.Context) ([]table.RawRecord, error) {
	i := min(f.calls, len(f.batches)-1)
	f.calls++

	return f.batches[i], nil
}

type fakeSink struct {
	tokens map[string]map[string]string
	err    error
}

func (s *fakeSink) Render(_ context.Context, templatePath, outputPath string, tokens map[string]string) error {
	if s.err != nil {
		return s.err
	}

	if s.tokens == nil {
		s.tokens = make(map[string]map[string]string)
	}

	s.tokens[outputPath] = tokens

	return nil
}

var testNow = time.Date(2021, 3, 8, 14, 30, 0, 0, time.UTC)

var testPalette = []string{"c1", "c2", "c3", "c4", "c5"}

func schemaOf(t *testing.T, fields ...table.Field) *table.Schema {
	t.Helper()

	s, err := table.NewSchema(fields...)
	require.NoError(t, err)

	return &s
}

func fakeSource(t *testing.T, name, field string, records ...table.RawRecord) Source {
	t.Helper()

	p := &fakeProvider{name: name, batches: [][]table.RawRecord{records}}

	return Source{Provider: p, Schema: schemaOf(t, table.Field{Name: field})}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	return &config.Config{
		Run: config.RunConfig{
			Timezone:  "UTC",
			DataDir:   filepath.Join(dir, "data"),
			ImageDir:  filepath.Join(dir, "images"),
			ExportDir: filepath.Join(dir, "exports"),
		},
		Palettes: map[string][]string{"p": testPalette},
		NJ: config.NJConfig{
			ReferenceName: "population",
			Reference: normalizer.Reference{
				{Key: "alpha", Value: 10000},
				{Key: "beta", Value: 20000},
			},
			Layers: []config.LayerConfig{
				{Name: "doses", Table: "normalized", Field: "doses", Palette: "p", Mode: "linear", Template: "t.svg"},
			},
		},
		Chicago: config.ChicagoConfig{
			Layers: []config.LayerConfig{
				{Name: "vax", Table: "vaccination", Field: "pct", Palette: "p", Mode: "percent", Template: "v.svg"},
			},
			Caption: config.CaptionConfig{
				Template:        "Chicago is currently reporting {count} people fully vaccinated: {percent}% of the population",
				Table:           "vaccination",
				CountField:      "completed",
				PopulationField: "population",
			},
		},
	}
}

func newPipeline(t *testing.T, cfg *config.Config, budget int, sink render.Sink, rec *metrics.Recorder) *Pipeline {
	t.Helper()

	fetcher, err := fetch.New(budget, 0, logger.Discard())
	require.NoError(t, err)

	return New(cfg, logger.Discard(), fetcher, sink, rec)
}

func testRun(t *testing.T) run.Context {
	t.Helper()

	rc, err := run.New(testNow, "UTC")
	require.NoError(t, err)

	return rc
}

func TestRunNJ_AlphaBeta(t *testing.T) {
	cfg := testConfig(t)
	sink := &fakeSink{}
	rec := metrics.New()
	p := newPipeline(t, cfg, 0, sink, rec)

	cases := fakeSource(t, "cases", "cases", table.RawRecord{"alpha", "100"}, table.RawRecord{"beta", "50"})
	doses := fakeSource(t, "doses", "doses", table.RawRecord{"alpha", "1,000"}, table.RawRecord{"beta", "500"})

	res, err := p.RunNJ(context.Background(), testRun(t), NJSources{Cases: cases, Vaccine: doses})
	require.NoError(t, err)

	joined := res.Tables.Joined
	assert.Equal(t, []string{"alpha", "beta"}, joined.Keys())
	assert.Equal(t, []string{"cases", "doses", "population"}, joined.Fields())

	alpha, _ := joined.Row("alpha")
	beta, _ := joined.Row("beta")
	assert.Equal(t, []float64{100, 1000, 10000}, alpha)
	assert.Equal(t, []float64{50, 500, 20000}, beta)

	out := filepath.Join(cfg.Run.ImageDir, "2021-03-08", "doses_2021-03-08.png")
	require.Equal(t, []string{out}, res.Images)

	tokens := sink.tokens[out]
	require.NotNil(t, tokens)
	assert.Equal(t, "c1", tokens["beta"])
	assert.Equal(t, "c5", tokens["alpha"])
	assert.Equal(t, "1.0", tokens["key_label5"])

	reread, err := table.ReadCSVFile(res.CSVPath)
	require.NoError(t, err)
	assert.Equal(t, joined.Rows(), reread.Rows())

	_, err = os.Stat(res.ReportPath)
	require.NoError(t, err)

	assert.Equal(t, float64(2), testutil.ToFloat64(rec.JoinedRows.WithLabelValues("nj")))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.LayersRendered.WithLabelValues("nj", "doses")))
}

func TestRunNJ_DroppedKeys(t *testing.T) {
	cfg := testConfig(t)
	cfg.NJ.Reference = append(cfg.NJ.Reference, normalizer.ReferenceEntry{Key: "gamma", Value: 5})
	rec := metrics.New()

	cases := fakeSource(t, "cases", "cases",
		table.RawRecord{"alpha", "100"}, table.RawRecord{"beta", "50"}, table.RawRecord{"gamma", "7"})
	doses := fakeSource(t, "doses", "doses", table.RawRecord{"alpha", "1000"}, table.RawRecord{"beta", "500"})

	res, err := newPipeline(t, cfg, 0, &fakeSink{}, rec).
		RunNJ(context.Background(), testRun(t), NJSources{Cases: cases, Vaccine: doses})
	require.NoError(t, err)

	assert.Equal(t, []string{"gamma"}, res.Tables.Report.DroppedKeys())
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.DroppedKeys.WithLabelValues("nj")))

	cfg.NJ.FailOnDropped = true

	_, err = newPipeline(t, cfg, 0, &fakeSink{}, nil).
		RunNJ(context.Background(), testRun(t), NJSources{Cases: cases, Vaccine: doses})
	require.ErrorIs(t, err, normalizer.ErrKeysDropped)
}

func TestRunNJ_DerivedSchemaAndRetry(t *testing.T) {
	cfg := testConfig(t)
	cfg.NJ.LabelSuffixes = []string{" County"}
	cfg.NJ.Layers[0].Field = "Confirmed Cases"

	cases := &fakeProvider{name: "cases", batches: [][]table.RawRecord{
		nil,
		{
			{"Alpha County", "100 Total Confirmed Cases"},
			{"Beta County", "50 Total Confirmed Cases"},
		},
	}}
	doses := fakeSource(t, "doses", "doses", table.RawRecord{"alpha", "1000"}, table.RawRecord{"beta", "500"})

	p := newPipeline(t, cfg, 1, &fakeSink{}, nil)

	res, err := p.RunNJ(context.Background(), testRun(t), NJSources{Cases: Source{Provider: cases}, Vaccine: doses})
	require.NoError(t, err)

	assert.Equal(t, 2, cases.calls)
	assert.True(t, res.Tables.Joined.HasField("Confirmed Cases"))

	stats := p.Attempts().Stats()
	assert.Equal(t, 3, stats.TotalAttempts)
}

func TestRunNJ_Errors(t *testing.T) {
	t.Run("fetch exhausted", func(t *testing.T) {
		cfg := testConfig(t)
		empty := &fakeProvider{name: "cases", batches: [][]table.RawRecord{nil}}
		doses := fakeSource(t, "doses", "doses", table.RawRecord{"alpha", "1"})

		_, err := newPipeline(t, cfg, 2, &fakeSink{}, nil).RunNJ(context.Background(), testRun(t),
			NJSources{Cases: Source{Provider: empty, Schema: schemaOf(t, table.Field{Name: "cases"})}, Vaccine: doses})
		require.ErrorIs(t, err, fetch.ErrFetchExhausted)
		assert.Equal(t, 3, empty.calls)
	})

	t.Run("duplicate key", func(t *testing.T) {
		cfg := testConfig(t)
		cases := fakeSource(t, "cases", "cases", table.RawRecord{"Alpha", "1"}, table.RawRecord{"alpha", "2"})
		doses := fakeSource(t, "doses", "doses", table.RawRecord{"alpha", "1"})

		_, err := newPipeline(t, cfg, 0, &fakeSink{}, nil).
			RunNJ(context.Background(), testRun(t), NJSources{Cases: cases, Vaccine: doses})
		require.ErrorIs(t, err, table.ErrDuplicateKey)
	})

	t.Run("render failure", func(t *testing.T) {
		cfg := testConfig(t)
		cases := fakeSource(t, "cases", "cases", table.RawRecord{"alpha", "100"}, table.RawRecord{"beta", "50"})
		doses := fakeSource(t, "doses", "doses", table.RawRecord{"alpha", "1000"}, table.RawRecord{"beta", "500"})
		sink := &fakeSink{err: render.ErrRender}

		_, err := newPipeline(t, cfg, 0, sink, nil).
			RunNJ(context.Background(), testRun(t), NJSources{Cases: cases, Vaccine: doses})
		require.ErrorIs(t, err, render.ErrRender)
	})

	t.Run("unknown layer table", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.NJ.Layers[0].Table = "raw"
		cases := fakeSource(t, "cases", "cases", table.RawRecord{"alpha", "100"}, table.RawRecord{"beta", "50"})
		doses := fakeSource(t, "doses", "doses", table.RawRecord{"alpha", "1000"}, table.RawRecord{"beta", "500"})

		_, err := newPipeline(t, cfg, 0, &fakeSink{}, nil).
			RunNJ(context.Background(), testRun(t), NJSources{Cases: cases, Vaccine: doses})
		require.ErrorIs(t, err, ErrUnknownTable)
	})
}

func chicagoSources(t *testing.T) ChicagoSources {
	t.Helper()

	vax := &fakeProvider{name: "vaccination", batches: [][]table.RawRecord{{
		{"60601", "0.5", "1000", "2000"},
		{"60602", "0.7", "12345", "20000"},
	}}}

	deaths := &fakeProvider{name: "deaths", batches: [][]table.RawRecord{{
		{"60601", "12.5", "3"},
		{"60602", "40.1", "9"},
	}}}

	return ChicagoSources{
		Vaccination: Source{Provider: vax, Schema: schemaOf(t,
			table.Field{Name: "pct", Kind: table.Decimal},
			table.Field{Name: "completed"},
			table.Field{Name: "population"},
		)},
		Deaths: Source{Provider: deaths, Schema: schemaOf(t,
			table.Field{Name: "rate", Kind: table.Decimal},
			table.Field{Name: "deaths"},
		)},
	}
}

func TestRunChicago(t *testing.T) {
	cfg := testConfig(t)
	cfg.Chicago.Layers = append(cfg.Chicago.Layers,
		config.LayerConfig{Name: "deaths", Table: "deaths", Field: "rate", Palette: "p", Mode: "linear", Template: "d.svg"})
	sink := &fakeSink{}

	res, err := newPipeline(t, cfg, 0, sink, metrics.New()).RunChicago(context.Background(), testRun(t), chicagoSources(t))
	require.NoError(t, err)

	assert.Equal(t,
		"Chicago is currently reporting 13,345 people fully vaccinated: 60.7% of the population",
		res.Caption)

	caption, err := os.ReadFile(res.CaptionPath)
	require.NoError(t, err)
	assert.Equal(t, res.Caption+"\n", string(caption))
	assert.Equal(t, filepath.Join(cfg.Run.ExportDir, "caption-2021-03-08-1430.txt"), res.CaptionPath)

	vaxOut := filepath.Join(cfg.Run.ExportDir, "vax-2021-03-08-1430.png")
	require.Contains(t, sink.tokens, vaxOut)
	assert.Equal(t, "c1", sink.tokens[vaxOut]["60601"])
	assert.Equal(t, "c5", sink.tokens[vaxOut]["60602"])
	assert.Equal(t, "70.0%", sink.tokens[vaxOut]["key_label5"])

	deathsOut := filepath.Join(cfg.Run.ExportDir, "deaths-2021-03-08-1430.png")
	assert.Equal(t, "40.1", sink.tokens[deathsOut]["key_label5"])
}

func TestCaption_ZeroPopulation(t *testing.T) {
	tbl, err := table.New("vaccination", []string{"completed", "population"}, map[string][]float64{
		"60601": {10, 0},
	})
	require.NoError(t, err)

	_, err = Caption(testConfig(t).Chicago.Caption, tbl)
	require.True(t, errors.Is(err, ErrZeroPopulation))
}

func TestRenderCSV(t *testing.T) {
	tbl, err := table.New("joined", []string{"doses"}, map[string][]float64{
		"alpha": {1000},
		"beta":  {500},
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nj.csv")
	require.NoError(t, table.WriteCSVFile(path, tbl, IndexLabel))

	palette, err := binner.NewPalette(testPalette)
	require.NoError(t, err)

	sink := &fakeSink{}

	res, err := RenderCSV(context.Background(), sink, path, "doses", palette, binner.Linear, "t.svg", "out.png")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Index("beta"))
	assert.Equal(t, 5, res.Index("alpha"))
	assert.Equal(t, "1000.0", sink.tokens["out.png"]["key_label5"])

	_, err = RenderCSV(context.Background(), sink, path, "missing", palette, binner.Linear, "t.svg", "out.png")
	require.ErrorIs(t, err, table.ErrUnknownField)
}
