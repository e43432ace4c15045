// Package parser turns a DiveMeets profile page into a structured profile.
//
// The page has no stable schema: the whole profile lives in the first table cell, mixing
// loose inline text, bold labels and nested tables. The cell is serialised, normalised and
// split on runs of line breaks into fragments, and each fragment is re-parsed on its own.
package parser

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/divemeets-skill-rating/models"
)

// DefaultLinkBase resolves the relative result links in the statistics table.
const DefaultLinkBase = "https://secure.meetcontrol.com/divemeets/system/"

const (
	lineBreak        = "<br/>"
	groupBreak       = lineBreak + lineBreak
	sectionBreak     = groupBreak + groupBreak
	tableClose       = "</table>"
	infoMarker       = "DiveMeets #"
	statisticsMarker = "Dive Statistics"
	imageMarker      = "img"
)

// looseText matches inline text sitting directly in front of a line break. Any
// character outside a tag counts, so entities and accented letters stay whole.
var looseText = regexp.MustCompile(`[^<>]+<br/>`)

// Option configures a Parser.
type Option func(*Parser)

// WithLogger routes parse diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithLinkBase sets the base URL used to resolve result links.
func WithLinkBase(base *url.URL) Option {
	return func(p *Parser) {
		if base != nil {
			p.linkBase = base
		}
	}
}

// Parser parses profile pages. It holds no per-page state and is safe for concurrent use.
type Parser struct {
	linkBase *url.URL
	logger   *slog.Logger
}

// New builds a Parser with the DiveMeets link base and the default logger.
func New(opts ...Option) *Parser {
	base, _ := url.Parse(DefaultLinkBase)
	p := &Parser{
		linkBase: base,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts the info and statistics sections of a profile page.
//
// A nil error means the page was well-formed enough to attempt every section it has. It does
// not mean both sections are set: callers check Profile.HasInfo and Profile.HasStatistics.
func (p *Parser) Parse(content []byte) (*models.Profile, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	cell := doc.Find("td").First()
	if cell.Length() == 0 {
		p.logger.Warn("profile page has no table cell")
		return nil, ErrNoContentFound
	}

	markup, err := goquery.OuterHtml(cell)
	if err != nil {
		return nil, fmt.Errorf("render content cell: %w", err)
	}
	markup = WrapLooseText(NormalizeMarkup(markup))

	profile := &models.Profile{}
	for _, fragment := range Fragments(markup) {
		if strings.Contains(fragment, imageMarker) {
			continue
		}

		fragmentDoc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
		if err != nil {
			return profile, fmt.Errorf("parse fragment: %w", err)
		}
		body := fragmentDoc.Find("body")
		if body.Length() == 0 {
			p.logger.Warn("profile fragment has no body")
			return profile, ErrNoBody
		}

		text := body.Text()
		switch {
		case strings.Contains(text, infoMarker):
			profile.Info = p.parseInfo(body)
			profile.InfoStatus = models.SectionParsed
		case strings.Contains(text, statisticsMarker):
			stats, err := p.parseStatistics(body)
			if err != nil {
				p.logger.Warn("dive statistics not parsed", slog.Any("error", err))
				profile.DiveStatistics = nil
				profile.StatisticsStatus = models.SectionMalformed
				continue
			}
			profile.DiveStatistics = stats
			profile.StatisticsStatus = models.SectionParsed
		}
	}

	return profile, nil
}

// NormalizeMarkup drops newlines and whitespace-only gaps between tags.
func NormalizeMarkup(markup string) string {
	markup = strings.ReplaceAll(markup, "\r", "")
	markup = strings.ReplaceAll(markup, "\n", "")
	return strings.ReplaceAll(markup, "> <", "><")
}

// WrapLooseText wraps inline text that directly precedes a line break in a div, so every
// labelled value becomes its own block.
func WrapLooseText(markup string) string {
	return looseText.ReplaceAllStringFunc(markup, func(match string) string {
		text := strings.TrimSpace(strings.TrimSuffix(match, lineBreak))
		if text == "" {
			return match
		}
		return "<div>" + text + "</div>" + lineBreak
	})
}

// Fragments splits normalised markup into the pieces that are parsed independently.
func Fragments(markup string) []string {
	var out []string
	for _, block := range strings.Split(markup, sectionBreak) {
		out = append(out, breakDown(block)...)
	}
	return out
}

func breakDown(block string) []string {
	switch {
	case strings.Contains(block, infoMarker):
		return strings.Split(block, groupBreak)
	case strings.Contains(block, statisticsMarker) && strings.Contains(block, tableClose):
		var tables []string
		for _, piece := range strings.Split(block, tableClose) {
			if piece == "" {
				continue
			}
			tables = append(tables, piece+tableClose)
		}
		return tables
	default:
		return []string{block}
	}
}
