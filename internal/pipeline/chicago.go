package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"github.com/valyala/fasttemplate"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"njvaxbot/internal/config"
	"njvaxbot/internal/normalizer"
	"njvaxbot/internal/run"
	"njvaxbot/internal/source"
	"njvaxbot/internal/table"
	"njvaxbot/internal/telemetry"
)

// ErrZeroPopulation is returned when the caption's population total is zero.
var ErrZeroPopulation = errors.New("population total is zero")

// ChicagoSources are the Socrata views read by the Chicago run.
type ChicagoSources struct {
	Vaccination Source
	Deaths      Source
}

// ChicagoResult describes what a Chicago run produced.
type ChicagoResult struct {
	Tables      map[string]*table.FieldTable
	Caption     string
	CaptionPath string
	Images      []string
}

// NewChicagoSources builds the Socrata providers described by cfg.
func NewChicagoSources(cfg config.ChicagoConfig, scraper *source.Scraper) (ChicagoSources, error) {
	vax, err := socrataSource(cfg.Vaccination, scraper)
	if err != nil {
		return ChicagoSources{}, err
	}

	deaths, err := socrataSource(cfg.Deaths, scraper)
	if err != nil {
		return ChicagoSources{}, err
	}

	return ChicagoSources{Vaccination: vax, Deaths: deaths}, nil
}

func socrataSource(s config.SocrataConfig, scraper *source.Scraper) (Source, error) {
	schema, err := s.Schema()
	if err != nil {
		return Source{}, fmt.Errorf("%s: %w", s.Name, err)
	}

	return Source{
		Provider: source.NewSocrata(scraper, source.Socrata{
			SourceName:     s.Name,
			URL:            s.URL,
			File:           s.File,
			KeyColumn:      s.KeyColumn,
			SnapshotColumn: s.SnapshotColumn,
			SnapshotLayout: s.SnapshotLayout,
			ValueColumns:   s.Columns(),
		}),
		Schema: &schema,
	}, nil
}

// RunChicago reads the latest vaccination and death snapshots, renders every
// configured layer and writes the caption next to the images.
func (p *Pipeline) RunChicago(ctx context.Context, rc run.Context, srcs ChicagoSources) (_ *ChicagoResult, err error) {
	started := time.Now()
	defer func() { p.finish("chicago", started, err) }()

	ctx, span := telemetry.Start(ctx, "pipeline.chicago", "run_id", rc.ID.String(), "stamp", rc.Stamp)
	defer func() { telemetry.End(span, err) }()

	cfg := p.cfg.Chicago
	log := p.log.With("pipeline", "chicago", "run_id", rc.ID.String())

	log.Info("🚀 Starting Chicago pipeline", "stamp", rc.Stamp)

	// 1. Ingestion
	log.Info("Phase 1: Ingestion (Fetching & Parsing)...")

	validator := normalizer.NewValidator()
	out := &ChicagoResult{Tables: make(map[string]*table.FieldTable)}

	for _, src := range []Source{srcs.Vaccination, srcs.Deaths} {
		t, err := p.load(ctx, src, nil)
		if err != nil {
			return nil, err
		}

		if err := validator.ValidateTable(t); err != nil {
			return nil, err
		}

		out.Tables[t.Name()] = t
	}

	// 2. Render
	log.Info("Phase 2: Render (Binning & Maps)...")

	for _, layer := range cfg.Layers {
		t, err := lookup(out.Tables, layer.Table)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", layer.Name, err)
		}

		path := filepath.Join(p.cfg.Run.ExportDir, fmt.Sprintf("%s-%s.png", layer.Name, rc.Stamp))

		if err := p.renderLayer(ctx, "chicago", layer, t, path); err != nil {
			return nil, err
		}

		out.Images = append(out.Images, path)
	}

	// 3. Caption
	log.Info("Phase 3: Caption...")

	t, err := lookup(out.Tables, cfg.Caption.Table)
	if err != nil {
		return nil, fmt.Errorf("caption: %w", err)
	}

	out.Caption, err = Caption(cfg.Caption, t)
	if err != nil {
		return nil, err
	}

	out.CaptionPath = filepath.Join(p.cfg.Run.ExportDir, fmt.Sprintf("caption-%s.txt", rc.Stamp))

	if err := writeFile(out.CaptionPath, out.Caption+"\n"); err != nil {
		return nil, err
	}

	log.Info(fmt.Sprintf("📝 %s", out.Caption))
	log.Info(fmt.Sprintf("✨ Chicago pipeline complete: %d maps in %v", len(out.Images), time.Since(started)))

	return out, nil
}

// Caption fills the caption template from the column totals of t.
// {count} is the total with thousands separators and {percent} is
// count / population * 100 rounded to one decimal.
func Caption(cfg config.CaptionConfig, t *table.FieldTable) (string, error) {
	count, err := columnSum(t, cfg.CountField)
	if err != nil {
		return "", err
	}

	population, err := columnSum(t, cfg.PopulationField)
	if err != nil {
		return "", err
	}

	if population == 0 {
		return "", fmt.Errorf("%w: %s", ErrZeroPopulation, cfg.PopulationField)
	}

	percent := decimal.NewFromFloat(count).Div(decimal.NewFromFloat(population)).Mul(decimal.NewFromInt(100))

	return fasttemplate.ExecuteString(cfg.Template, "{", "}", map[string]any{
		"count":   message.NewPrinter(language.English).Sprintf("%d", int64(count)),
		"percent": percent.StringFixed(1),
	}), nil
}

func columnSum(t *table.FieldTable, field string) (float64, error) {
	col, err := t.Column(field)
	if err != nil {
		return 0, err
	}

	var sum float64
	for _, v := range col {
		sum += v
	}

	return sum, nil
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}
