package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sweeney/garage-door/internal/door"
)

func newTableCmd() *cobra.Command {
	var mermaid bool

	cmd := &cobra.Command{
		Use:   "table",
		Short: "Print the door transition table",
		Long:  "Prints every accepted (status, event) combination with the resulting status and actions. Use --mermaid for a state diagram of the status changes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if mermaid {
				return writeMermaid(cmd.OutOrStdout(), door.Table())
			}
			return writeTable(cmd.OutOrStdout(), door.Table())
		},
	}

	cmd.Flags().BoolVar(&mermaid, "mermaid", false, "print a Mermaid state diagram instead")
	return cmd
}

func writeTable(w io.Writer, rows []door.Row) error {
	for _, r := range rows {
		actions := make([]string, len(r.Actions))
		for i, a := range r.Actions {
			actions[i] = a.String()
		}
		if _, err := fmt.Fprintf(w, "%-14s %-18s %-14s %s\n", r.From, r.Event, r.Next, strings.Join(actions, ",")); err != nil {
			return err
		}
	}
	return nil
}

// writeMermaid draws only the rows that change status.
func writeMermaid(w io.Writer, rows []door.Row) error {
	id := func(s door.Status) string { return strings.ReplaceAll(string(s), "-", "_") }

	var b strings.Builder
	b.WriteString("stateDiagram-v2\n")
	for _, s := range door.Statuses() {
		if s != door.Status(id(s)) {
			fmt.Fprintf(&b, "    state %q as %s\n", string(s), id(s))
		}
	}
	for _, r := range rows {
		if r.Next == r.From {
			continue
		}
		fmt.Fprintf(&b, "    %s --> %s: %s\n", id(r.From), id(r.Next), r.Event)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
