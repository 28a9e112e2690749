// Package source reads the public trip agenda page.
package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/starford/tripwatch/internal/message"
	"github.com/starford/tripwatch/internal/models"
)

// Agenda fetches and parses the trip agenda.
type Agenda struct {
	client    *resty.Client
	agendaURL string
	base      *url.URL
	logger    *slog.Logger
}

// Config configures an Agenda.
type Config struct {
	AgendaURL string
	// BaseURL resolves relative trip links.
	BaseURL string
	Timeout time.Duration
}

// NewAgenda creates an agenda reader.
func NewAgenda(cfg Config, logger *slog.Logger) (*Agenda, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("source: parse base url: %w", err)
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "tripwatch/1.0")
	return &Agenda{
		client:    client,
		agendaURL: cfg.AgendaURL,
		base:      base,
		logger:    logger,
	}, nil
}

// Fetch downloads the agenda page and returns its trips in page order.
func (a *Agenda) Fetch(ctx context.Context) ([]models.Trip, error) {
	res, err := a.client.R().SetContext(ctx).Get(a.agendaURL)
	if err != nil {
		return nil, fmt.Errorf("source: get agenda: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("source: get agenda: unexpected status %s", res.Status())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return nil, fmt.Errorf("source: parse agenda: %w", err)
	}
	trips := a.Parse(doc)
	a.logger.Debug("source: extracted trips", slog.Int("count", len(trips)))
	return trips, nil
}

// Parse extracts trips from an agenda document. Inside #content every h3
// names a month and is followed by the table of that month's trips; the
// first table on the page is layout padding.
func (a *Agenda) Parse(doc *goquery.Document) []models.Trip {
	content := doc.Find("#content")
	months := content.Find("h3")
	tables := content.Find("table")

	var trips []models.Trip
	months.Each(func(i int, h3 *goquery.Selection) {
		table := tables.Eq(i + 1)
		if table.Length() == 0 {
			return
		}
		month := collapse(h3.Text())
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			if t, ok := a.parseRow(row, month); ok {
				trips = append(trips, t)
			}
		})
	})
	return trips
}

func (a *Agenda) parseRow(row *goquery.Selection, month string) (models.Trip, bool) {
	cells := row.Find("td")
	if cells.Length() < 2 {
		a.logger.Debug("source: skipping row without date and title cells", slog.String("month", month))
		return models.Trip{}, false
	}
	href, ok := row.Find("a").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		a.logger.Warn("source: skipping row without link",
			slog.String("month", month),
			slog.String("row", collapse(row.Text())))
		return models.Trip{}, false
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		a.logger.Warn("source: skipping row with bad link",
			slog.String("href", href),
			slog.String("error", err.Error()))
		return models.Trip{}, false
	}

	date := collapse(cells.Eq(0).Text())
	title := collapse(cells.Eq(1).Text())
	return models.Trip{
		Link:        a.base.ResolveReference(ref).String(),
		DisplayText: message.DisplayText(date, title, month),
	}, true
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
