package parser

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/divemeets-skill-rating/models"
)

type labeledValue struct {
	label string
	value string
}

// infoField maps a label to a ProfileInfo field. Labels are matched by substring, in table
// order, so "FINA Age:" has to be tried before "Age:".
type infoField struct {
	markers []string
	numeric bool
	assign  func(info *models.ProfileInfo, value string) error
}

var infoFields = []infoField{
	{markers: []string{"Name:"}, assign: assignName},
	{markers: []string{"City/State:", "State:"}, assign: func(info *models.ProfileInfo, v string) error {
		info.CityState = stringPtr(v)
		return nil
	}},
	{markers: []string{"Country:"}, assign: func(info *models.ProfileInfo, v string) error {
		info.Country = stringPtr(v)
		return nil
	}},
	{markers: []string{"Gender:"}, assign: func(info *models.ProfileInfo, v string) error {
		info.Gender = stringPtr(strings.TrimSpace(v))
		return nil
	}},
	{markers: []string{"FINA Age:"}, numeric: true, assign: func(info *models.ProfileInfo, v string) error {
		return assignInt(&info.FinaAge, "FINA age", v)
	}},
	{markers: []string{"Age:"}, numeric: true, assign: func(info *models.ProfileInfo, v string) error {
		return assignInt(&info.Age, "age", v)
	}},
	{markers: []string{"High School Graduation:"}, numeric: true, assign: func(info *models.ProfileInfo, v string) error {
		return assignInt(&info.HSGradYear, "high school graduation", v)
	}},
	{markers: []string{"DiveMeets #:"}, assign: func(info *models.ProfileInfo, v string) error {
		info.DiverID = v
		return nil
	}},
}

func (f infoField) matches(label string) bool {
	for _, marker := range f.markers {
		if strings.Contains(label, marker) {
			return true
		}
	}
	return false
}

func (p *Parser) parseInfo(body *goquery.Selection) *models.ProfileInfo {
	info := &models.ProfileInfo{}

	for _, pair := range collectLabels(body) {
		for _, field := range infoFields {
			if !field.matches(pair.label) {
				continue
			}
			if err := field.assign(info, pair.value); err != nil {
				p.logger.Warn("profile field not parsed",
					slog.String("label", pair.label),
					slog.Any("error", err),
				)
				if field.numeric {
					info.NumericFieldsSuspect = true
				}
			}
			break
		}
	}

	if info.NumericFieldsSuspect {
		p.logger.Warn("numeric profile fields suspect", slog.String("diver_id", info.DiverID))
	}
	return info
}

// collectLabels walks the fragment in document order. A strong or b element sets the current
// label and the next div supplies its value. A label seen twice keeps its first position and
// its last value.
func collectLabels(body *goquery.Selection) []labeledValue {
	var (
		pairs   []labeledValue
		indexOf = make(map[string]int)
		label   string
	)

	body.Find("*").Each(func(_ int, s *goquery.Selection) {
		name := goquery.NodeName(s)
		text := s.Text()
		if text == "" || name == "span" {
			return
		}
		switch name {
		case "strong", "b":
			label = strings.TrimSpace(text)
		case "div":
			value := strings.TrimSpace(text)
			if i, ok := indexOf[label]; ok {
				pairs[i].value = value
				return
			}
			indexOf[label] = len(pairs)
			pairs = append(pairs, labeledValue{label: label, value: value})
		}
	})
	return pairs
}

func assignName(info *models.ProfileInfo, value string) error {
	parts := strings.Fields(value)
	if len(parts) == 0 {
		return nil
	}
	info.Last = parts[len(parts)-1]
	info.First = strings.Join(parts[:len(parts)-1], " ")
	return nil
}

func assignInt(dst **int, field, value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return &FieldError{Field: field, Value: value, Err: err}
	}
	*dst = &n
	return nil
}

func stringPtr(s string) *string {
	return &s
}
