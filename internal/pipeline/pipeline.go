// Package pipeline sequences fetch, parse, assemble, normalize, bin and render
// for the NJ county and Chicago zip code maps.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"njvaxbot/internal/binner"
	"njvaxbot/internal/config"
	"njvaxbot/internal/fetch"
	"njvaxbot/internal/logger"
	"njvaxbot/internal/metrics"
	"njvaxbot/internal/render"
	"njvaxbot/internal/source"
	"njvaxbot/internal/table"
	"njvaxbot/internal/telemetry"
)

// ErrUnknownTable is returned when a layer names a table the run did not produce.
var ErrUnknownTable = errors.New("unknown table")

// Source pairs a provider with the schema of its records. A nil Schema is
// derived from the first record, which still parses as data.
type Source struct {
	Provider source.Provider
	Schema   *table.Schema
}

// Pipeline holds the collaborators shared by every run.
type Pipeline struct {
	cfg     *config.Config
	log     *logger.Logger
	fetcher *fetch.Retrying
	sink    render.Sink
	metrics *metrics.Recorder
}

// New creates a pipeline. rec may be nil.
func New(cfg *config.Config, l *logger.Logger, fetcher *fetch.Retrying, sink render.Sink, rec *metrics.Recorder) *Pipeline {
	if l == nil {
		l = logger.Discard()
	}

	if rec != nil {
		fetcher.Observer = rec
	}

	return &Pipeline{cfg: cfg, log: l, fetcher: fetcher, sink: sink, metrics: rec}
}

// Metrics returns the recorder, if any.
func (p *Pipeline) Metrics() *metrics.Recorder {
	return p.metrics
}

// Attempts returns the fetch attempt log of the run.
func (p *Pipeline) Attempts() *fetch.AttemptLog {
	return p.fetcher.Attempts
}

// load fetches, parses and assembles one source table.
func (p *Pipeline) load(ctx context.Context, src Source, suffixes []string) (_ *table.FieldTable, err error) {
	name := src.Provider.Name()

	ctx, span := telemetry.Start(ctx, "pipeline.load", "source", name)
	defer func() { telemetry.End(span, err) }()

	start := time.Now()

	records, err := p.fetcher.Do(ctx, name, src.Provider.Fetch)
	if err != nil {
		return nil, err
	}

	var schema table.Schema

	if src.Schema != nil {
		schema = *src.Schema
	} else {
		schema, err = table.DeriveSchema(records[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}

	rows, err := table.NewParser(schema, suffixes...).ParseAll(records)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	t, err := table.Assemble(name, schema, rows)
	if err != nil {
		return nil, err
	}

	p.log.Info(fmt.Sprintf("✅ Loaded %s: %d rows, %d fields in %v", name, t.Len(), len(t.Fields()), time.Since(start)),
		"source", name)

	return t, nil
}

// renderLayer bins one column of t and hands the tokens to the sink.
func (p *Pipeline) renderLayer(ctx context.Context, pipeline string, layer config.LayerConfig, t *table.FieldTable, out string) (err error) {
	ctx, span := telemetry.Start(ctx, "pipeline.render", "layer", layer.Name, "table", t.Name())
	defer func() { telemetry.End(span, err) }()

	palette, err := p.cfg.Palette(layer.Palette)
	if err != nil {
		return err
	}

	mode, err := binner.ParseMode(layer.Mode)
	if err != nil {
		return err
	}

	res, err := BinColumn(t, layer.Field, palette, mode)
	if err != nil {
		return fmt.Errorf("layer %s: %w", layer.Name, err)
	}

	if err := p.sink.Render(ctx, layer.Template, out, res.Tokens()); err != nil {
		return fmt.Errorf("layer %s: %w", layer.Name, err)
	}

	if p.metrics != nil {
		p.metrics.ObserveLayer(pipeline, layer.Name)
	}

	p.log.Info(fmt.Sprintf("🖼️  Rendered %s -> %s", layer.Name, out), "breakpoints", res.Labels)

	return nil
}

// BinColumn bins the values of field in t.
func BinColumn(t *table.FieldTable, field string, palette binner.Palette, mode binner.Mode) (*binner.Result, error) {
	values, err := t.Column(field)
	if err != nil {
		return nil, err
	}

	return binner.Bin(values, palette, mode)
}

// RenderCSV re-renders one column of a previously exported CSV without fetching.
func RenderCSV(ctx context.Context, sink render.Sink, csvPath, field string, palette binner.Palette, mode binner.Mode, templatePath, out string) (*binner.Result, error) {
	t, err := table.ReadCSVFile(csvPath)
	if err != nil {
		return nil, err
	}

	res, err := BinColumn(t, field, palette, mode)
	if err != nil {
		return nil, err
	}

	if err := sink.Render(ctx, templatePath, out, res.Tokens()); err != nil {
		return nil, err
	}

	return res, nil
}

func lookup(tables map[string]*table.FieldTable, name string) (*table.FieldTable, error) {
	t, ok := tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}

	return t, nil
}

func (p *Pipeline) finish(pipeline string, started time.Time, err error) {
	p.fetcher.Attempts.LogSummary(p.log)

	if p.metrics == nil {
		return
	}

	p.metrics.ObserveRun(pipeline, started, err)

	if path := p.cfg.Metrics.Textfile; path != "" {
		if werr := p.metrics.WriteTextfile(path); werr != nil {
			p.log.Warn(fmt.Sprintf("⚠️  %v", werr))
		}
	}

	if url := p.cfg.Metrics.PushURL; url != "" {
		job := p.cfg.Metrics.Job
		if job == "" {
			job = "njvaxbot"
		}

		if perr := p.metrics.Push(url, job+"_"+pipeline); perr != nil {
			p.log.Warn(fmt.Sprintf("⚠️  %v", perr))
		}
	}
}

func imagePath(dir, date, layer string) string {
	return filepath.Join(dir, date, fmt.Sprintf("%s_%s.png", layer, date))
}
