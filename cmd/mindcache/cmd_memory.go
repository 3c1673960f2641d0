package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mindcache/mindcache/internal/model"
)

var (
	saveImportance float64
	saveTTLHours   int

	recallSession string
	recallLimit   int
	recallOffset  int

	searchLimit int

	updateContent    string
	updateImportance float64
	clearTTL         bool
)

var saveCmd = &cobra.Command{
	Use:   "save <user> <session> <content...>",
	Short: "Store a memory",
	Args:  cobra.MinimumNArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		svcs, err := openServices()
		exitOnErr(err)
		defer svcs.close()

		content := strings.Join(args[2:], " ")
		m := model.Memory{
			UserID:     args[0],
			SessionID:  args[1],
			Content:    content,
			Importance: float32(saveImportance),
		}
		if saveTTLHours > 0 {
			m.TTLHours = &saveTTLHours
		}

		id, err := svcs.mem.Save(context.Background(), m)
		exitOnErr(err)

		fmt.Println("memory stored")
		fmt.Printf("id: %s\n", id)
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Fetch a memory by id",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svcs, err := openServices()
		exitOnErr(err)
		defer svcs.close()

		mem, err := svcs.mem.Get(context.Background(), args[0])
		exitOnErr(err)
		printMemory(mem)
	},
}

var recallCmd = &cobra.Command{
	Use:   "recall <user>",
	Short: "Page through a user's memories",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svcs, err := openServices()
		exitOnErr(err)
		defer svcs.close()

		resp, err := svcs.mem.Recall(context.Background(), model.Filter{
			UserID:    args[0],
			SessionID: recallSession,
			Limit:     recallLimit,
			Offset:    recallOffset,
		})
		exitOnErr(err)

		fmt.Printf("%d of %d memories\n\n", len(resp.Data), resp.TotalCount)
		for i := range resp.Data {
			printMemory(&resp.Data[i])
			fmt.Println()
		}
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <user> <keywords...>",
	Short: "Keyword-search a user's memories",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		svcs, err := openServices()
		exitOnErr(err)
		defer svcs.close()

		resp, err := svcs.mem.Recall(context.Background(), model.Filter{
			UserID:   args[0],
			Keywords: args[1:],
			Limit:    searchLimit,
		})
		exitOnErr(err)

		fmt.Printf("%d result(s)\n\n", len(resp.Data))
		for i := range resp.Data {
			printMemory(&resp.Data[i])
			fmt.Println()
		}
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a memory's content, importance, or TTL",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svcs, err := openServices()
		exitOnErr(err)
		defer svcs.close()

		patch := model.MemoryUpdate{}
		if updateContent != "" {
			patch.Content = &updateContent
		}
		if cmd.Flags().Changed("importance") {
			v := float32(updateImportance)
			patch.Importance = &v
		}
		if clearTTL {
			patch.TTLHoursSet = true
			patch.TTLHours = nil
		}

		mem, err := svcs.mem.Update(context.Background(), args[0], patch)
		exitOnErr(err)

		fmt.Println("memory updated")
		printMemory(mem)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a memory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svcs, err := openServices()
		exitOnErr(err)
		defer svcs.close()

		ok, err := svcs.mem.Delete(context.Background(), args[0])
		exitOnErr(err)
		if !ok {
			fmt.Println("memory not found")
			os.Exit(1)
		}
		fmt.Println("memory deleted")
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <user>",
	Short: "Export every memory belonging to a user",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svcs, err := openServices()
		exitOnErr(err)
		defer svcs.close()

		memories, err := svcs.mem.Export(context.Background(), args[0])
		exitOnErr(err)

		fmt.Printf("%d memories\n\n", len(memories))
		for i := range memories {
			printMemory(&memories[i])
			fmt.Println()
		}
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <user>",
	Short: "Show importance and age histograms for a user",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svcs, err := openServices()
		exitOnErr(err)
		defer svcs.close()

		stats, err := svcs.mem.Stats(context.Background(), args[0])
		exitOnErr(err)

		fmt.Printf("total: %d\n", stats.TotalCount)
		fmt.Printf("mean importance: %.2f\n", stats.MeanImportance)
		fmt.Println("importance histogram:")
		for k, v := range stats.ImportanceHistogram {
			fmt.Printf("  %s: %d\n", k, v)
		}
		fmt.Println("age histogram:")
		for k, v := range stats.AgeHistogram {
			fmt.Printf("  %s: %d\n", k, v)
		}
	},
}

func printMemory(m *model.Memory) {
	fmt.Printf("id: %s\n", m.ID)
	fmt.Printf("user: %s session: %s\n", m.UserID, m.SessionID)
	fmt.Printf("content: %s\n", m.Content)
	fmt.Printf("importance: %.2f\n", m.Importance)
	fmt.Printf("created: %s\n", m.CreatedAt.Format("2006-01-02 15:04:05"))
	if m.ExpiresAt != nil {
		fmt.Printf("expires: %s\n", m.ExpiresAt.Format("2006-01-02 15:04:05"))
	}
}

func exitOnErr(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	saveCmd.Flags().Float64VarP(&saveImportance, "importance", "i", 0.5, "importance in [0,1]")
	saveCmd.Flags().IntVar(&saveTTLHours, "ttl-hours", 0, "time-to-live in hours (0 = no TTL)")

	recallCmd.Flags().StringVar(&recallSession, "session", "", "restrict to one session")
	recallCmd.Flags().IntVarP(&recallLimit, "limit", "l", 50, "page size")
	recallCmd.Flags().IntVarP(&recallOffset, "offset", "o", 0, "page offset")

	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 10, "max results")

	updateCmd.Flags().StringVar(&updateContent, "content", "", "new content")
	updateCmd.Flags().Float64Var(&updateImportance, "importance", 0, "new importance in [0,1]")
	updateCmd.Flags().BoolVar(&clearTTL, "clear-ttl", false, "remove the memory's TTL")

	rootCmd.AddCommand(saveCmd, getCmd, recallCmd, searchCmd, updateCmd, deleteCmd, exportCmd, statsCmd)
}
