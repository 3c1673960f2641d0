package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Session operations",
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create <user> <name>",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		svcs, err := openServices()
		exitOnErr(err)
		defer svcs.close()

		sess, err := svcs.sess.Create(context.Background(), args[0], args[1])
		exitOnErr(err)
		fmt.Printf("session created: %s\n", sess.ID)
	},
}

var sessionSummaryCmd = &cobra.Command{
	Use:   "summary <session-id>",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svcs, err := openServices()
		exitOnErr(err)
		defer svcs.close()

		summary, err := svcs.sess.GenerateSummary(context.Background(), args[0])
		exitOnErr(err)

		fmt.Println(summary.Summary)
		fmt.Printf("topics: %v\n", summary.KeyTopics)
		fmt.Printf("memories: %d  importance: %.2f\n", summary.MemoryCount, summary.ImportanceScore)
	},
}

var sessionSearchCmd = &cobra.Command{
	Use:   "search <user> <keywords...>",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		svcs, err := openServices()
		exitOnErr(err)
		defer svcs.close()

		sessions, err := svcs.sess.CrossSessionSearch(context.Background(), args[0], args[1:])
		exitOnErr(err)

		fmt.Printf("%d session(s)\n", len(sessions))
		for _, s := range sessions {
			fmt.Printf("  %s  %s  (%d memories)\n", s.ID, s.Name, s.MemoryCount)
		}
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svcs, err := openServices()
		exitOnErr(err)
		defer svcs.close()

		exitOnErr(svcs.sess.Delete(context.Background(), args[0], sessionDeleteMemories))
		fmt.Println("session deleted")
	},
}

var sessionAnalyticsCmd = &cobra.Command{
	Use:   "analytics <user>",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svcs, err := openServices()
		exitOnErr(err)
		defer svcs.close()

		a, err := svcs.sess.Analytics(context.Background(), args[0])
		exitOnErr(err)

		fmt.Printf("sessions: %d  memories: %d  mean/session: %.2f\n", a.SessionCount, a.TotalMemoryCount, a.MeanMemoriesPerSession)
		if a.MostActiveSession != "" {
			fmt.Printf("most active: %s (%d memories)\n", a.MostActiveSession, a.MostActiveCount)
		}
	},
}

var sessionDeleteMemories bool

func init() {
	sessionDeleteCmd.Flags().BoolVar(&sessionDeleteMemories, "delete-memories", false, "also delete the session's memories")

	sessionCmd.AddCommand(sessionCreateCmd, sessionSummaryCmd, sessionSearchCmd, sessionDeleteCmd, sessionAnalyticsCmd)
	rootCmd.AddCommand(sessionCmd)
}
