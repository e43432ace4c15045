package parser

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/divemeets-skill-rating/models"
)

// minStatisticCells is the number of columns a results row must have.
const minStatisticCells = 6

// parseStatistics decodes every data row of the results table. Data rows are the ones that
// carry a bgcolor attribute. One bad row invalidates the whole section.
func (p *Parser) parseStatistics(body *goquery.Selection) ([]models.DiveStatistic, error) {
	rows := body.Find("[bgcolor]")
	stats := make([]models.DiveStatistic, 0, rows.Length())

	var rowErr error
	rows.EachWithBreak(func(i int, row *goquery.Selection) bool {
		stat, err := p.parseStatisticRow(row)
		if err != nil {
			rowErr = fmt.Errorf("row %d: %w", i, err)
			return false
		}
		stats = append(stats, stat)
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}
	return stats, nil
}

func (p *Parser) parseStatisticRow(row *goquery.Selection) (models.DiveStatistic, error) {
	cells := row.Find("td")
	if cells.Length() < minStatisticCells {
		return models.DiveStatistic{}, fmt.Errorf("%w: %d cells, want at least %d",
			ErrMalformedStatisticsRow, cells.Length(), minStatisticCells)
	}

	stat := models.DiveStatistic{
		Number: strings.TrimSpace(cells.Eq(0).Text()),
		Name:   strings.TrimSpace(cells.Eq(2).Text()),
	}

	height, err := parseHeight(cells.Eq(1).Text())
	if err != nil {
		return models.DiveStatistic{}, fmt.Errorf("%w: %w", ErrMalformedStatisticsRow, err)
	}
	stat.Height = height

	stat.HighScore, stat.HighScoreLink, err = p.parseScoreCell(cells.Eq(3), "high score")
	if err != nil {
		return models.DiveStatistic{}, fmt.Errorf("%w: %w", ErrMalformedStatisticsRow, err)
	}
	stat.AvgScore, stat.AvgScoreLink, err = p.parseScoreCell(cells.Eq(4), "average score")
	if err != nil {
		return models.DiveStatistic{}, fmt.Errorf("%w: %w", ErrMalformedStatisticsRow, err)
	}

	timesText := strings.TrimSpace(cells.Eq(5).Text())
	times, err := strconv.Atoi(timesText)
	if err != nil {
		p.logger.Warn("number of times not parsed",
			slog.String("dive", stat.Number),
			slog.String("value", timesText),
		)
		times = 0
	}
	stat.NumberOfTimes = times

	if err := validateStatistic(stat); err != nil {
		return models.DiveStatistic{}, err
	}
	return stat, nil
}

// parseHeight reads a height cell such as "3M" or "7.5M": the trailing unit is dropped.
func parseHeight(text string) (float64, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return 0, &FieldError{Field: "height", Value: text, Err: strconv.ErrSyntax}
	}
	_, size := utf8.DecodeLastRuneInString(raw)
	height, err := strconv.ParseFloat(strings.TrimSpace(raw[:len(raw)-size]), 64)
	if err != nil {
		return 0, &FieldError{Field: "height", Value: text, Err: err}
	}
	return height, nil
}

func (p *Parser) parseScoreCell(cell *goquery.Selection, field string) (float64, string, error) {
	text := strings.TrimSpace(cell.Text())
	score, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, "", &FieldError{Field: field, Value: text, Err: err}
	}

	href, ok := cell.Find("a").First().Attr("href")
	if !ok {
		return 0, "", fmt.Errorf("%s has no result link", field)
	}
	link, err := p.linkBase.Parse(strings.TrimSpace(href))
	if err != nil {
		return 0, "", &FieldError{Field: field + " link", Value: href, Err: err}
	}
	return score, link.String(), nil
}

func validateStatistic(stat models.DiveStatistic) error {
	if family := stat.Family(); family < '1' || family > '6' {
		return fmt.Errorf("%w: dive number %q", ErrMalformedStatisticsRow, stat.Number)
	}
	if stat.Height <= 0 {
		return fmt.Errorf("%w: height %v", ErrMalformedStatisticsRow, stat.Height)
	}
	return nil
}
