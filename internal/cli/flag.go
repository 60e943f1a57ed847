package cli

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	flagCmd := &cobra.Command{
		Use:   "flag",
		Short: "Inspect and mutate world flags",
	}

	flagCmd.AddCommand(&cobra.Command{
		Use:   "get <name>",
		Short: "Print one world flag",
		Args:  cobra.ExactArgs(1),
		Run:   runFlagGet,
	})
	flagCmd.AddCommand(&cobra.Command{
		Use:   "set <name> <true|false>",
		Short: "Set one world flag (triggers quest re-evaluation)",
		Args:  cobra.ExactArgs(2),
		Run:   runFlagSet,
	})
	flagCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every world flag",
		Run:   runFlagList,
	})

	RootCmd.AddCommand(flagCmd)
}

func runFlagGet(cmd *cobra.Command, args []string) {
	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	fmt.Printf("%s=%t\n", args[0], e.World().Flag(args[0]))
}

func runFlagSet(cmd *cobra.Command, args []string) {
	value, err := strconv.ParseBool(args[1])
	if err != nil {
		exitErr("parse value", err)
	}

	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	e.World().SetFlag(args[0], value)
	fmt.Printf("%s=%t\n", args[0], e.World().Flag(args[0]))
}

func runFlagList(cmd *cobra.Command, args []string) {
	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	flags := e.World().Flags()
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s=%t\n", name, flags[name])
	}
}
