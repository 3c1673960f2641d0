package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var decayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Decay engine operations",
}

var decayRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one decay pass: expiry, purge, compression, summarization, quota",
	Run: func(cmd *cobra.Command, args []string) {
		svcs, err := openServices()
		exitOnErr(err)
		defer svcs.close()

		stats, err := svcs.decayE.Run(context.Background())
		exitOnErr(err)

		fmt.Printf("status: %s\n", stats.Status)
		fmt.Printf("expired: %d  purged: %d  compressed groups: %d (%d originals)\n",
			stats.ExpiredCount, stats.PurgedCount, stats.CompressedGroups, stats.CompressedOriginals)
		fmt.Printf("summarized sessions: %d  quota evicted: %d\n", stats.SummarizedCount, stats.QuotaEvictedCount)
		fmt.Printf("count before/after: %d -> %d\n", stats.CountBefore, stats.CountAfter)
		fmt.Printf("bytes reclaimed (estimate): %d\n", stats.BytesReclaimed)
		if stats.ErrorMessage != "" {
			fmt.Printf("error: %s\n", stats.ErrorMessage)
		}
	},
}

var decayRecommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Report decay recommendations without mutating state",
	Run: func(cmd *cobra.Command, args []string) {
		svcs, err := openServices()
		exitOnErr(err)
		defer svcs.close()

		rec, err := svcs.decayE.GetRecommendations(context.Background())
		exitOnErr(err)

		fmt.Printf("old fraction: %.2f\n", rec.OldFraction)
		fmt.Println("age buckets:")
		for k, v := range rec.AgeBuckets {
			fmt.Printf("  %s: %d\n", k, v)
		}
		for _, s := range rec.Suggestions {
			fmt.Printf("  - %s\n", s)
		}
	},
}

func init() {
	decayCmd.AddCommand(decayRunCmd, decayRecommendCmd)
	rootCmd.AddCommand(decayCmd)
}
