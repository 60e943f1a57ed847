package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	relCmd := &cobra.Command{
		Use:   "relationship",
		Short: "Inspect and mutate agent relationships with the player",
	}

	relCmd.AddCommand(&cobra.Command{
		Use:   "get <agent-id>",
		Short: "Print an agent's relationship with the player",
		Args:  cobra.ExactArgs(1),
		Run:   runRelationshipGet,
	})
	relCmd.AddCommand(&cobra.Command{
		Use:   "set <agent-id> <dimension> <value>",
		Short: "Set one relationship dimension (triggers quest re-evaluation)",
		Args:  cobra.ExactArgs(3),
		Run:   runRelationshipSet,
	})

	RootCmd.AddCommand(relCmd)
}

func runRelationshipGet(cmd *cobra.Command, args []string) {
	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	b, _ := json.MarshalIndent(e.Relationship(args[0]), "", "  ")
	fmt.Println(string(b))
}

func runRelationshipSet(cmd *cobra.Command, args []string) {
	value, err := strconv.Atoi(args[2])
	if err != nil {
		exitErr("parse value", err)
	}

	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	state, err := e.SetRelationship(args[0], args[1], value)
	if err != nil {
		exitErr("set relationship", err)
	}
	b, _ := json.MarshalIndent(state, "", "  ")
	fmt.Println(string(b))
}
