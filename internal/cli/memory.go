package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lorekeep/lorekeep-go/pkg/memory"
)

func init() {
	memoryCmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect agent memory collections",
	}

	statsCmd := &cobra.Command{
		Use:   "stats <agent-id>",
		Short: "Dump memory statistics for one agent (counts by tier and type)",
		Args:  cobra.ExactArgs(1),
		Run:   runMemoryStats,
	}
	listCmd := &cobra.Command{
		Use:   "list <agent-id>",
		Short: "List an agent's memories in store order",
		Args:  cobra.ExactArgs(1),
		Run:   runMemoryList,
	}
	searchCmd := &cobra.Command{
		Use:   "search <agent-id> <query>",
		Short: "Semantic search over an agent's memories (requires the vector collaborator)",
		Args:  cobra.ExactArgs(2),
		Run:   runMemorySearch,
	}
	searchCmd.Flags().IntVar(&searchMinImportance, "min-importance", 0, "Only return memories at or above this importance")
	searchCmd.Flags().StringVar(&searchTier, "tier", "", "Only return memories in this tier (PINNED, IMPORTANT, REGULAR)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "Maximum results (default: engine top-k)")

	memoryCmd.AddCommand(statsCmd)
	memoryCmd.AddCommand(listCmd)
	memoryCmd.AddCommand(searchCmd)
	RootCmd.AddCommand(memoryCmd)
}

var (
	searchMinImportance int
	searchTier          string
	searchLimit         int
)

func runMemoryStats(cmd *cobra.Command, args []string) {
	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	stats := e.Memories().Stats(args[0])
	b, _ := json.MarshalIndent(stats, "", "  ")
	fmt.Println(string(b))
}

func runMemorySearch(cmd *cobra.Command, args []string) {
	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	hits, err := e.Memories().Search(cmd.Context(), args[0], args[1], searchLimit, memory.SearchFilter{
		MinImportance: searchMinImportance,
		Tier:          memory.Tier(searchTier),
	})
	if err != nil {
		exitErr("search", err)
	}
	for _, h := range hits {
		fmt.Printf("%.3f %-10s imp=%-2d %s\n", h.Similarity, h.Memory.TierOf(), h.Memory.Importance, h.Memory.ShortForm)
	}
}

func runMemoryList(cmd *cobra.Command, args []string) {
	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	for _, m := range e.Memories().Memories(args[0]) {
		marker := " "
		if m.Superseded {
			marker = "x"
		}
		fmt.Printf("[%s] %-16s imp=%-2d %s %s\n", marker, m.EventType, m.Importance, m.Timestamp.Format("2006-01-02 15:04"), m.ShortForm)
	}
}
