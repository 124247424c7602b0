package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var healthSweep bool

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show repository health",
	Long: `Show the health of active repositories.

By default the cached state is reported. With --sweep, every active
repository is re-checked on disk first.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		store := openStorage(ctx, cfg)

		cache := openHealthCache(ctx, store)

		if healthSweep {
			result, err := cache.Sweep(ctx)
			if err != nil {
				fail("%v", err)
			}
			fmt.Printf("Swept %d repositories, %d missing\n", result.Total, result.Missing)
		}

		repos, err := store.ListActiveRepositories(ctx)
		if err != nil {
			fail("%v", err)
		}
		if len(repos) == 0 {
			fmt.Println("No active repositories.")
			return
		}

		healthy := 0
		for _, repo := range repos {
			check, err := cache.Get(ctx, repo.ID)
			if err != nil {
				fail("%v", err)
			}
			if check.Healthy {
				healthy++
			}
			fmt.Printf("%-20s %s\n", repo.Name, healthSummary(check))
		}
		fmt.Printf("\n%d/%d healthy\n", healthy, len(repos))
	},
}

func init() {
	healthCmd.Flags().BoolVar(&healthSweep, "sweep", false, "Re-check every repository on disk first")
	rootCmd.AddCommand(healthCmd)
}
