package cli

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentic-layer/sdk-go/internal/resolver"
	"github.com/agentic-layer/sdk-go/pkg/printer"
)

var (
	cardOutput    string
	cardNoHeaders bool
	cardRetry     retryFlags
)

var CardCmd = &cobra.Command{
	Use:   "card <agent-url>",
	Short: "Fetch and show a remote agent card",
	Long: `Fetches the agent card of a remote A2A agent the same way the runtime
does at startup, including retries. The URL may be the agent base URL or the
full /.well-known/agent-card.json location.`,
	Args: cobra.ExactArgs(1),
	RunE: runCard,
}

func init() {
	addOutputFlag(CardCmd, &cardOutput)
	addNoHeadersFlag(CardCmd, &cardNoHeaders)
	CardCmd.Flags().IntVar(&cardRetry.retries, "retries", resolver.DefaultRetries, "Retries after the first failed fetch")
	CardCmd.Flags().DurationVar(&cardRetry.timeout, "timeout", resolver.DefaultCardTimeout, "Timeout per fetch attempt")
}

func runCard(cmd *cobra.Command, args []string) error {
	u, err := parseURLArg(args[0])
	if err != nil {
		return err
	}
	p, err := newPrinter(cmd, cardOutput)
	if err != nil {
		return err
	}

	card, err := cardRetry.factory(slog.Default()).FetchCard(cmd.Context(), u.Host, u)
	if err != nil {
		return err
	}
	if p.Structured() {
		return p.Print(card)
	}

	t := printer.NewTablePrinter(cmd.OutOrStdout(), tableOptions(cardOutput, cardNoHeaders)...)
	t.SetHeaders("Name", "Version", "URL", "Input Modes", "Description")
	t.AddRow(card.Name, card.Version, card.URL, strings.Join(card.DefaultInputModes, ","), card.Description)
	return t.Render()
}
