package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lorekeep/lorekeep-go/pkg/core"
)

func init() {
	questCmd := &cobra.Command{
		Use:   "quest",
		Short: "Inspect and mutate quest state",
	}

	questCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every quest and its state",
		Run:   runQuestList,
	})
	questCmd.AddCommand(&cobra.Command{
		Use:   "force-start <quest-id>",
		Short: "Move a quest to ACTIVE regardless of conditions",
		Args:  cobra.ExactArgs(1),
		Run:   runQuestForceStart,
	})
	questCmd.AddCommand(&cobra.Command{
		Use:   "force-complete <quest-id>",
		Short: "Complete every required objective and finish the quest",
		Args:  cobra.ExactArgs(1),
		Run:   runQuestForceComplete,
	})
	questCmd.AddCommand(&cobra.Command{
		Use:   "reset <quest-id>",
		Short: "Return a quest to UNAVAILABLE and clear objectives",
		Args:  cobra.ExactArgs(1),
		Run:   runQuestReset,
	})

	objectiveCmd := &cobra.Command{
		Use:   "objective",
		Short: "Mutate objective state",
	}
	objectiveCmd.AddCommand(&cobra.Command{
		Use:   "complete <quest-id> <objective-id>",
		Short: "Force-complete one objective",
		Args:  cobra.ExactArgs(2),
		Run:   runObjectiveComplete,
	})

	RootCmd.AddCommand(questCmd)
	RootCmd.AddCommand(objectiveCmd)
}

func runQuestList(cmd *cobra.Command, args []string) {
	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	for _, q := range e.Quests().Quests() {
		done := 0
		for _, o := range q.Objectives {
			if o.Completed {
				done++
			}
		}
		fmt.Printf("%-30s %-12s %d/%d objectives  %s\n", q.ID, q.State, done, len(q.Objectives), q.Title)
	}
}

func runQuestForceStart(cmd *cobra.Command, args []string) {
	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	if err := e.Quests().ForceStart(args[0]); err != nil {
		exitErr("force-start", err)
	}
	printQuest(e, args[0])
}

func runQuestForceComplete(cmd *cobra.Command, args []string) {
	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	if err := e.Quests().ForceComplete(args[0]); err != nil {
		exitErr("force-complete", err)
	}
	printQuest(e, args[0])
}

func runQuestReset(cmd *cobra.Command, args []string) {
	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	if err := e.Quests().Reset(args[0]); err != nil {
		exitErr("reset", err)
	}
	printQuest(e, args[0])
}

func runObjectiveComplete(cmd *cobra.Command, args []string) {
	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	if err := e.Quests().ForceCompleteObjective(args[0], args[1]); err != nil {
		exitErr("objective complete", err)
	}
	printQuest(e, args[0])
}

func printQuest(e *core.Engine, id string) {
	q, ok := e.Quests().Get(id)
	if !ok {
		exitErr("print quest", fmt.Errorf("unknown quest %q", id))
	}
	b, _ := json.MarshalIndent(q, "", "  ")
	fmt.Println(string(b))
}
