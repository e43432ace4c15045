package commands

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/divemeets-skill-rating/models"
	"github.com/aluiziolira/divemeets-skill-rating/store"
)

func TestStaleCommandReportsCount(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "divers.db")
	t.Setenv("SKILLRATING_DATABASE_PATH", dbPath)

	ctx := context.Background()
	s, err := store.OpenSQLite(ctx, dbPath)
	require.NoError(t, err)
	_, err = s.Create(ctx, models.NewDiverRecord("1", &models.ProfileInfo{First: "Ann", Last: "Lee"}, models.SkillRatingResult{}))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	rootCmd.SetArgs([]string{"stale", "--stale-after", "1ns"})
	require.NoError(t, rootCmd.ExecuteContext(ctx))

	count, err := testutil.GatherAndCount(registry, "skillrating_reported_value")
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, 1.0, reportedValue(t, metricStaleEntries))
	require.Equal(t, 0.0, reportedValue(t, metricCheckFailure))
}

func reportedValue(t *testing.T, name string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "skillrating_reported_value" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "metric" && label.GetValue() == name {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s not reported", name)
	return 0
}

func TestIdentifiers(t *testing.T) {
	newCmd := func() *cobra.Command {
		cmd := &cobra.Command{}
		cmd.Flags().Int("start", 0, "")
		return cmd
	}

	_, err := identifiers(newCmd(), "", 0, 0)
	require.Error(t, err)

	cmd := newCmd()
	require.NoError(t, cmd.Flags().Set("start", "5"))
	list, err := identifiers(cmd, "", 5, 8)
	require.NoError(t, err)
	require.Equal(t, []string{"5", "6", "7"}, list)

	_, err = identifiers(newCmd(), filepath.Join(t.TempDir(), "missing.txt"), 0, 0)
	require.Error(t, err)
}
