// Package models defines data structures shared by the parser, scoring engine and batch pipeline.
package models

import (
	"sort"
	"time"
)

// ProfileInfo holds the identity attributes scraped from a profile page.
type ProfileInfo struct {
	First      string
	Last       string
	CityState  *string
	Country    *string
	Gender     *string
	Age        *int
	FinaAge    *int
	DiverID    string
	HSGradYear *int

	// NumericFieldsSuspect is set when an age or graduation year failed to parse.
	NumericFieldsSuspect bool
}

// DiveStatistic is one row of a diver's historical results table.
type DiveStatistic struct {
	Number        string  `csv:"number" json:"number"`
	Name          string  `csv:"name" json:"name"`
	Height        float64 `csv:"height" json:"height"`
	HighScore     float64 `csv:"high_score" json:"highScore"`
	HighScoreLink string  `csv:"high_score_link" json:"highScoreLink"`
	AvgScore      float64 `csv:"avg_score" json:"avgScore"`
	AvgScoreLink  string  `csv:"avg_score_link" json:"avgScoreLink"`
	NumberOfTimes int     `csv:"number_of_times" json:"numberOfTimes"`
}

// Family returns the dive family digit ('1'..'6'), or 0 if the number is empty.
func (d DiveStatistic) Family() byte {
	if d.Number == "" {
		return 0
	}
	return d.Number[0]
}

// Prefix returns the dive number without its trailing position/rotation code.
func (d DiveStatistic) Prefix() string {
	if d.Number == "" {
		return ""
	}
	return d.Number[:len(d.Number)-1]
}

// SectionStatus records how a profile section ended up after parsing.
type SectionStatus int

const (
	// SectionMissing means the page had no such section.
	SectionMissing SectionStatus = iota
	// SectionMalformed means the section was present but could not be parsed.
	SectionMalformed
	// SectionParsed means the section parsed and its value is set.
	SectionParsed
)

func (s SectionStatus) String() string {
	switch s {
	case SectionParsed:
		return "parsed"
	case SectionMalformed:
		return "malformed"
	default:
		return "missing"
	}
}

// Profile aggregates the optional sections of one profile page.
type Profile struct {
	Info           *ProfileInfo
	DiveStatistics []DiveStatistic

	InfoStatus       SectionStatus
	StatisticsStatus SectionStatus
}

// HasInfo reports whether the info section parsed.
func (p *Profile) HasInfo() bool {
	return p != nil && p.InfoStatus == SectionParsed && p.Info != nil
}

// HasStatistics reports whether the statistics section parsed. An empty table still counts.
func (p *Profile) HasStatistics() bool {
	return p != nil && p.StatisticsStatus == SectionParsed
}

// SkillRatingResult is the output of the rating engine.
type SkillRatingResult struct {
	Springboard float64 `json:"springboard"`
	Platform    float64 `json:"platform"`
	Total       float64 `json:"total"`
}

// DiverRecord is the persisted rating row for one diver.
type DiverRecord struct {
	ID                string    `csv:"id" json:"id"`
	FirstName         string    `csv:"first_name" json:"firstName"`
	LastName          string    `csv:"last_name" json:"lastName"`
	Gender            string    `csv:"gender" json:"gender"`
	FinaAge           *int      `csv:"fina_age" json:"finaAge"`
	HSGradYear        *int      `csv:"hs_grad_year" json:"hsGradYear"`
	SpringboardRating float64   `csv:"springboard_rating" json:"springboardRating"`
	PlatformRating    float64   `csv:"platform_rating" json:"platformRating"`
	TotalRating       float64   `csv:"total_rating" json:"totalRating"`
	Version           int       `csv:"-" json:"_version"`
	Deleted           bool      `csv:"-" json:"_deleted"`
	CreatedAt         time.Time `csv:"-" json:"createdAt"`
	UpdatedAt         time.Time `csv:"-" json:"updatedAt"`
	LastChangedAt     time.Time `csv:"-" json:"_lastChangedAt"`
}

// NewDiverRecord assembles a record from a parsed profile and its rating.
func NewDiverRecord(id string, info *ProfileInfo, rating SkillRatingResult) *DiverRecord {
	rec := &DiverRecord{
		ID:                id,
		SpringboardRating: rating.Springboard,
		PlatformRating:    rating.Platform,
		TotalRating:       rating.Total,
		Version:           1,
	}
	if info != nil {
		rec.FirstName = info.First
		rec.LastName = info.Last
		rec.FinaAge = info.FinaAge
		rec.HSGradYear = info.HSGradYear
		if info.Gender != nil {
			rec.Gender = *info.Gender
		}
	}
	return rec
}

// BatchResult summarises one batch run.
type BatchResult struct {
	RunID     string
	StartTime time.Time
	EndTime   time.Time

	Total       int
	Processed   int
	Rated       int
	FetchFailed int
	ParseFailed int
	WriteFailed int
	Duplicates  int

	SkippedByReason map[string]int
	FetchErrors     map[string]int
	Outcomes        map[string]int
	FailedIDs       []string
}

// Duration returns the wall time of the run.
func (r *BatchResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Skipped returns the total number of identifiers skipped for missing fields.
func (r *BatchResult) Skipped() int {
	total := 0
	for _, n := range r.SkippedByReason {
		total += n
	}
	return total
}

// Counts flattens the result into named values suitable for a metric sink.
func (r *BatchResult) Counts() map[string]float64 {
	out := map[string]float64{
		"Total":       float64(r.Total),
		"Processed":   float64(r.Processed),
		"Rated":       float64(r.Rated),
		"FetchFailed": float64(r.FetchFailed),
		"ParseFailed": float64(r.ParseFailed),
		"WriteFailed": float64(r.WriteFailed),
		"Skipped":     float64(r.Skipped()),
		"Duplicates":  float64(r.Duplicates),
	}
	for outcome, n := range r.Outcomes {
		out["Outcome_"+outcome] = float64(n)
	}
	return out
}

// SortedFailedIDs returns a sorted copy of the failed identifiers.
func (r *BatchResult) SortedFailedIDs() []string {
	out := make([]string, len(r.FailedIDs))
	copy(out, r.FailedIDs)
	sort.Strings(out)
	return out
}
