package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"njvaxbot/internal/config"
	"njvaxbot/internal/formatter"
	"njvaxbot/internal/normalizer"
	"njvaxbot/internal/run"
	"njvaxbot/internal/source"
	"njvaxbot/internal/table"
	"njvaxbot/internal/telemetry"
	"njvaxbot/internal/validator"
	"njvaxbot/pkg/metadata"
)

// IndexLabel is the index column of the NJ export.
const IndexLabel = "County"

// NJSources are the two dashboards joined by the NJ run.
type NJSources struct {
	Cases   Source
	Vaccine Source
}

// NJResult describes what an NJ run produced.
type NJResult struct {
	Tables     *normalizer.Result
	CSVPath    string
	ReportPath string
	Images     []string
}

// NewNJSources builds the dashboard providers described by cfg.
func NewNJSources(cfg config.NJConfig, scraper *source.Scraper) (NJSources, error) {
	cases, err := dashboardSource(cfg.Cases, scraper)
	if err != nil {
		return NJSources{}, err
	}

	vaccine, err := dashboardSource(cfg.Vaccine, scraper)
	if err != nil {
		return NJSources{}, err
	}

	return NJSources{Cases: cases, Vaccine: vaccine}, nil
}

func dashboardSource(d config.DashboardConfig, scraper *source.Scraper) (Source, error) {
	src := Source{
		Provider: source.NewDashboard(scraper, source.Dashboard{
			SourceName:    d.Name,
			URL:           d.URL,
			File:          d.File,
			RowSelector:   d.RowSelector,
			LabelSelector: d.LabelSelector,
			CellSelector:  d.CellSelector,
			SplitLines:    d.SplitLines,
		}),
	}

	if d.DeriveSchema {
		return src, nil
	}

	schema, err := d.Schema()
	if err != nil {
		return Source{}, fmt.Errorf("%s: %w", d.Name, err)
	}

	src.Schema = &schema

	return src, nil
}

// RunNJ fetches both dashboards, joins them with the county populations,
// exports the joined table and renders every configured layer.
func (p *Pipeline) RunNJ(ctx context.Context, rc run.Context, srcs NJSources) (_ *NJResult, err error) {
	started := time.Now()
	defer func() { p.finish("nj", started, err) }()

	ctx, span := telemetry.Start(ctx, "pipeline.nj", "run_id", rc.ID.String(), "date", rc.Date)
	defer func() { telemetry.End(span, err) }()

	cfg := p.cfg.NJ
	log := p.log.With("pipeline", "nj", "run_id", rc.ID.String())

	log.Info("🚀 Starting NJ pipeline", "date", rc.Date)

	// 1. Ingestion
	log.Info("Phase 1: Ingestion (Fetching & Parsing)...")

	var tables []*table.FieldTable

	for _, src := range []Source{srcs.Cases, srcs.Vaccine} {
		t, err := p.load(ctx, src, cfg.LabelSuffixes)
		if err != nil {
			return nil, err
		}

		tables = append(tables, t)
	}

	// 2. Join and normalization
	log.Info("Phase 2: Processing (Join & Normalization)...")

	processor := normalizer.NewProcessor(cfg.Discrepancies, normalizer.JoinOptions{FailOnDropped: cfg.FailOnDropped})

	res, err := processor.Process(tables, cfg.Reference, cfg.ReferenceName)
	if err != nil {
		return nil, err
	}

	for _, d := range res.Report.Dropped {
		log.Warn(fmt.Sprintf("⚠️  Dropped %s: missing from %s", d.Key, strings.Join(d.MissingFrom, ", ")))
	}

	for _, w := range res.Warnings {
		log.Warn(fmt.Sprintf("⚠️  %s", w))
	}

	if p.metrics != nil {
		p.metrics.ObserveJoin("nj", res.Joined.Len(), len(res.Report.Dropped))
	}

	log.Info(fmt.Sprintf("✅ Joined %d counties (%d dropped)", res.Joined.Len(), len(res.Report.Dropped)))

	// 3. Export
	log.Info("Phase 3: Export (CSV & Report)...")

	out := &NJResult{
		Tables:     res,
		CSVPath:    filepath.Join(p.cfg.Run.DataDir, fmt.Sprintf("nj_covid_%s.csv", rc.Date)),
		ReportPath: filepath.Join(p.cfg.Run.DataDir, fmt.Sprintf("nj_covid_%s.md", rc.Date)),
	}

	if err := table.WriteCSVFile(out.CSVPath, res.Joined, IndexLabel); err != nil {
		return nil, err
	}

	report := formatter.Report("NJ COVID data "+rc.Date, IndexLabel, res.Joined, metadata.Metadata{
		Generated: rc.Now,
		RunID:     rc.ID.String(),
		Source:    "nj",
	})

	check, err := validator.NewReportValidator(len(cfg.Reference)).Validate(report)
	if err != nil {
		return nil, err
	}

	for _, w := range check.Warnings {
		log.Warn(fmt.Sprintf("⚠️  %s", w))
	}

	if err := writeFile(out.ReportPath, report); err != nil {
		return nil, err
	}

	log.Info(fmt.Sprintf("💾 Wrote %s and %s", out.CSVPath, out.ReportPath))

	// 4. Render
	log.Info("Phase 4: Render (Binning & Maps)...")

	byName := map[string]*table.FieldTable{
		"joined":     res.Joined,
		"normalized": res.Normalized,
		"per_capita": res.PerCapita,
		"share":      res.Share,
	}

	for _, layer := range cfg.Layers {
		t, err := lookup(byName, layer.Table)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", layer.Name, err)
		}

		path := imagePath(p.cfg.Run.ImageDir, rc.Date, layer.Name)

		if err := p.renderLayer(ctx, "nj", layer, t, path); err != nil {
			return nil, err
		}

		out.Images = append(out.Images, path)
	}

	log.Info(fmt.Sprintf("✨ NJ pipeline complete: %d maps in %v", len(out.Images), time.Since(started)))

	return out, nil
}
