package source

import (
	"context"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"njvaxbot/internal/table"
)

// ErrMissingLocation is returned when a source has neither a URL nor a file.
var ErrMissingLocation = errors.New("source needs a url or a file")

// Dashboard extracts records from a rendered dashboard page.
//
// Every element matched by RowSelector becomes one record. With SplitLines the
// element's text lines become the cells (label first, then values). Otherwise the
// label is the text of the first LabelSelector match and the values are the
// texts of every CellSelector match.
type Dashboard struct {
	scraper       *Scraper
	SourceName    string
	URL           string
	File          string
	RowSelector   string
	LabelSelector string
	CellSelector  string
	SplitLines    bool
}

// NewDashboard creates a dashboard provider backed by scraper.
func NewDashboard(scraper *Scraper, d Dashboard) *Dashboard {
	d.scraper = scraper

	return &d
}

// Name returns the source name.
func (d *Dashboard) Name() string {
	return d.SourceName
}

// Fetch loads the page and extracts one record per matched element.
// A page without matches yields no records and no error so the caller can retry.
func (d *Dashboard) Fetch(ctx context.Context) ([]table.RawRecord, error) {
	if d.URL == "" && d.File == "" {
		return nil, ErrMissingLocation
	}

	html, err := d.scraper.Load(ctx, d.URL, d.File)
	if err != nil {
		return nil, err
	}

	return d.Extract(html)
}

// Extract parses html and returns the records.
func (d *Dashboard) Extract(html string) ([]table.RawRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var records []table.RawRecord

	doc.Find(d.RowSelector).Each(func(_ int, sel *goquery.Selection) {
		var rec table.RawRecord

		if d.SplitLines {
			rec = textLines(sel)
		} else {
			rec = d.cells(sel)
		}

		if len(rec) > 0 {
			records = append(records, rec)
		}
	})

	return records, nil
}

func (d *Dashboard) cells(sel *goquery.Selection) table.RawRecord {
	var rec table.RawRecord

	cells := sel.Find(d.CellSelector)

	if d.LabelSelector != "" {
		label := sel.Find(d.LabelSelector).First()
		if label.Length() == 0 {
			return nil
		}

		rec = append(rec, strings.TrimSpace(label.Text()))
	}

	cells.Each(func(_ int, c *goquery.Selection) {
		rec = append(rec, strings.TrimSpace(c.Text()))
	})

	return rec
}

// textLines returns every non-empty line of every text node under sel, so
// sibling block elements and <br> separated text both count as separate lines.
func textLines(sel *goquery.Selection) table.RawRecord {
	var (
		rec  table.RawRecord
		walk func(n *html.Node)
	)

	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			for _, line := range strings.Split(n.Data, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					rec = append(rec, line)
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	for _, n := range sel.Nodes {
		walk(n)
	}

	return rec
}
