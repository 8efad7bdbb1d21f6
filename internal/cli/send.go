package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/agentic-layer/sdk-go/internal/remote"
	"github.com/agentic-layer/sdk-go/internal/resolver"
	"github.com/agentic-layer/sdk-go/pkg/credentials"
)

var (
	sendToken     string
	sendHeaders   []string
	sendContextID string
	sendTimeout   time.Duration
	sendRetry     retryFlags
)

var SendCmd = &cobra.Command{
	Use:   "send <agent-url> <message>",
	Short: "Send one message to a remote A2A agent and print the reply",
	Long: `Resolves the agent card at <agent-url> and sends <message> with
message/send. Use --context-id to continue an earlier conversation.`,
	Args: cobra.ExactArgs(2),
	RunE: runSend,
}

func init() {
	SendCmd.Flags().StringVar(&sendToken, "token", "", "Value sent as "+credentials.ExternalTokenHeader)
	SendCmd.Flags().StringArrayVarP(&sendHeaders, "header", "H", nil, "Extra request header as Name=value (repeatable)")
	SendCmd.Flags().StringVar(&sendContextID, "context-id", "", "Conversation to continue")
	SendCmd.Flags().DurationVar(&sendTimeout, "timeout", 5*time.Minute, "Timeout for the reply")
	SendCmd.Flags().IntVar(&sendRetry.retries, "retries", resolver.DefaultRetries, "Retries for the card fetch")
	SendCmd.Flags().DurationVar(&sendRetry.timeout, "card-timeout", resolver.DefaultCardTimeout, "Timeout per card fetch attempt")
}

func runSend(cmd *cobra.Command, args []string) error {
	u, err := parseURLArg(args[0])
	if err != nil {
		return err
	}
	text := strings.TrimSpace(args[1])
	if text == "" {
		return fmt.Errorf("message must not be empty")
	}
	headers, err := parseKeyValuePairs(sendHeaders)
	if err != nil {
		return err
	}

	ctx := credentials.WithCredentials(cmd.Context(), credentials.New(sendToken, headers))
	card, err := sendRetry.factory(slog.Default()).FetchCard(ctx, u.Host, u)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(headers)+1)
	names = append(names, credentials.ExternalTokenHeader)
	for name := range headers {
		names = append(names, name)
	}
	httpClient := &http.Client{
		Transport: credentials.NewTransport(otelhttp.NewTransport(http.DefaultTransport), credentials.NewHeaderProvider(names)),
	}
	a, err := remote.NewAgent(card.Name, card, remote.WithAgentHTTPClient(httpClient), remote.WithAgentTimeout(sendTimeout))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	reply, err := a.Send(ctx, sendContextID, text)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), reply)
	return err
}
