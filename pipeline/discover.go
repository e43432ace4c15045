package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"strconv"

	"github.com/aluiziolira/divemeets-skill-rating/config"
	"github.com/aluiziolira/divemeets-skill-rating/models"
	"github.com/aluiziolira/divemeets-skill-rating/scraper"
)

// Eligibility is the age window that makes a diver worth rating.
type Eligibility struct {
	MinFinaAge  int
	MaxFinaAge  int
	MinGradYear int
	MaxGradYear int
}

// EligibilityFromConfig reads the window bounds from cfg.
func EligibilityFromConfig(cfg *config.Config) Eligibility {
	return Eligibility{
		MinFinaAge:  cfg.MinFinaAge,
		MaxFinaAge:  cfg.MaxFinaAge,
		MinGradYear: cfg.MinGradYear,
		MaxGradYear: cfg.MaxGradYear,
	}
}

// Eligible reports whether info falls inside the window. A known FINA age decides on its
// own when it is in range; otherwise the graduation year is checked. Bounds are inclusive.
func (e Eligibility) Eligible(info *models.ProfileInfo) bool {
	if info == nil {
		return false
	}
	if info.FinaAge != nil && *info.FinaAge >= e.MinFinaAge && *info.FinaAge <= e.MaxFinaAge {
		return true
	}
	return info.HSGradYear != nil && *info.HSGradYear >= e.MinGradYear && *info.HSGradYear <= e.MaxGradYear
}

// Discover fetches and parses every identifier and returns the eligible ones in ascending
// numeric order. Nothing is scored or written.
func (p *Processor) Discover(ctx context.Context, list []string, window Eligibility) ([]string, *models.BatchResult, error) {
	var eligible []string
	check := func(_ context.Context, logger *slog.Logger, res scraper.Result) outcome {
		profile, err := p.parser.Parse(res.Content)
		if err != nil {
			logger.Error("could not parse profile", slog.Any("error", err))
			return outcome{kind: kindParseFailed, err: err}
		}
		if !profile.HasInfo() || !window.Eligible(profile.Info) {
			return outcome{kind: kindIneligible}
		}
		logger.Debug("eligible")
		return outcome{kind: kindEligible, reason: res.ID}
	}

	result, err := p.run(ctx, list, check, func(o outcome) {
		if o.kind == kindEligible {
			eligible = append(eligible, o.reason)
		}
	})
	if err != nil {
		return nil, nil, err
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, _ := strconv.Atoi(eligible[i])
		b, _ := strconv.Atoi(eligible[j])
		return a < b
	})
	return eligible, result, nil
}
