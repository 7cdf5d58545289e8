package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var peopleCmd = &cobra.Command{
	Use:   "people",
	Short: "Inspect the enrolled voice database",
}

var peopleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled people",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.close()

		people, err := a.people.All(ctx)
		if err != nil {
			return err
		}
		if len(people) == 0 {
			fmt.Println("No people enrolled yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tALIASES\tPROFILES")
		for _, p := range people {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n",
				p.ID, p.Name, strings.Join(p.Aliases, ", "), len(p.Profiles))
		}
		return w.Flush()
	},
}

func init() {
	peopleCmd.AddCommand(peopleListCmd)
}
