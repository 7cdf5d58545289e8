package commands

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/earshothq/earshot/pkg/pipeline"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f"))
	speakerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681"))

	statusStyles = map[pipeline.Status]lipgloss.Style{
		pipeline.StatusIdentified:     lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff9f")),
		pipeline.StatusSuggested:      lipgloss.NewStyle().Foreground(lipgloss.Color("#e3b341")),
		pipeline.StatusAsked:          lipgloss.NewStyle().Foreground(lipgloss.Color("#58a6ff")),
		pipeline.StatusUnidentifiable: dimStyle,
	}
)

var processCmd = &cobra.Command{
	Use:   "process <recording.wav>",
	Short: "Identify the speakers in a recording",
	Long: `Process diarizes the recording, matches every speaker against the
voice database, and sends a clip of each unknown voice to the chat
bridge as an identification question.

The bridge process must be running; answers are picked up by
'earshot serve'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.sess.Load(ctx); err != nil {
			return err
		}
		report, err := a.pipeline().Process(ctx, args[0])
		if report != nil {
			printReport(report)
		}
		return err
	},
}

func printReport(r *pipeline.Report) {
	fmt.Println(titleStyle.Render(r.Recording) +
		dimStyle.Render(fmt.Sprintf("  %s, %d speakers", r.Duration, len(r.Speakers))))
	for _, sp := range r.Speakers {
		line := "  " + speakerStyle.Render(sp.Speaker) +
			dimStyle.Render(fmt.Sprintf(" (%s speech) ", sp.Speech)) +
			statusStyles[sp.Status].Render(sp.Status.String())
		switch sp.Status {
		case pipeline.StatusIdentified, pipeline.StatusSuggested:
			line += fmt.Sprintf(" %s", sp.PersonName) +
				dimStyle.Render(fmt.Sprintf(" (score %.2f)", sp.Score))
		case pipeline.StatusAsked:
			line += dimStyle.Render(fmt.Sprintf(" (clip tier %s)", sp.Tier))
		case pipeline.StatusUnidentifiable:
			if sp.Err != nil {
				line += dimStyle.Render(fmt.Sprintf(" (%v)", sp.Err))
			}
		}
		fmt.Println(line)
	}
}
