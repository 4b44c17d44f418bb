package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"homesync/internal/week"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	syncHousehold string
	syncWeek      string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Rebuild a household's shopping list for one week",
	Long: `Runs the same reconciliation as the sync endpoint and prints the
resulting list as JSON. The week defaults to the current one.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncHousehold, "household", "", "Household id")
	syncCmd.Flags().StringVar(&syncWeek, "week", "", "Week start (YYYY-MM-DD), defaults to this week's Monday")
	syncCmd.MarkFlagRequired("household")
}

func runSync(cmd *cobra.Command, args []string) error {
	if _, err := uuid.Parse(syncHousehold); err != nil {
		return errors.New("--household must be a UUID")
	}
	weekStart := week.Current(time.Now())
	if syncWeek != "" {
		w, err := week.Canonical(syncWeek)
		if err != nil {
			return err
		}
		weekStart = w
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	items, err := a.reconciler(nil).Reconcile(cmd.Context(), syncHousehold, weekStart)
	if err != nil {
		return fmt.Errorf("sync %s %s: %w", syncHousehold, weekStart, err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}
