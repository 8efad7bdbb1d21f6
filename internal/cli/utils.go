package cli

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentic-layer/sdk-go/pkg/printer"
)

// parseKeyValuePairs parses key=value pairs from command line flags
func parseKeyValuePairs(pairs []string) (map[string]string, error) {
	result := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid key=value pair (missing =): %s", pair)
		}
		result[strings.TrimSpace(key)] = value
	}
	return result, nil
}

// parseURLArg accepts host:port shorthands and defaults them to http.
func parseURLArg(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("url must not be empty")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid url %q: missing host", raw)
	}
	return u, nil
}

func addOutputFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "output", "o", string(printer.OutputTypeTable), "Output format (table, wide, json, yaml)")
}

func addNoHeadersFlag(cmd *cobra.Command, target *bool) {
	cmd.Flags().BoolVar(target, "no-headers", false, "Omit the header row in table output")
}

func tableOptions(output string, noHeaders bool) []printer.Option {
	opts := []printer.Option{printer.WithWide(output == string(printer.OutputTypeWide))}
	if noHeaders {
		opts = append(opts, printer.WithNoHeaders())
	}
	return opts
}

func newPrinter(cmd *cobra.Command, output string) (*printer.Printer, error) {
	t, err := printer.ParseOutputType(output)
	if err != nil {
		return nil, err
	}
	p := printer.New(t)
	p.SetOutput(cmd.OutOrStdout())
	return p, nil
}
