package printer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Printer writes structured values in the selected output format.
type Printer struct {
	out        io.Writer
	outputType OutputType
}

// New creates a printer writing to stdout.
func New(outputType OutputType) *Printer {
	return &Printer{out: os.Stdout, outputType: outputType}
}

// SetOutput sets the output writer
func (p *Printer) SetOutput(out io.Writer) {
	p.out = out
}

// Structured reports whether the output type bypasses the table renderer.
func (p *Printer) Structured() bool {
	return p.outputType == OutputTypeJSON || p.outputType == OutputTypeYAML
}

// Print writes data as JSON or YAML.
func (p *Printer) Print(data any) error {
	switch p.outputType {
	case OutputTypeJSON:
		return p.PrintJSON(data)
	case OutputTypeYAML:
		return p.PrintYAML(data)
	default:
		return fmt.Errorf("output type %q is not a structured format", p.outputType)
	}
}

// PrintJSON prints data in JSON format
func (p *Printer) PrintJSON(data any) error {
	encoder := json.NewEncoder(p.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// PrintYAML prints data as YAML. The value goes through JSON first so the
// keys match the json tags of the wire types.
func (p *Printer) PrintYAML(data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(p.out)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

// ParseOutputType validates a --output flag value.
func ParseOutputType(s string) (OutputType, error) {
	switch t := OutputType(s); t {
	case OutputTypeTable, OutputTypeWide, OutputTypeJSON, OutputTypeYAML:
		return t, nil
	case "":
		return OutputTypeTable, nil
	default:
		return "", fmt.Errorf("unknown output format %q (table, wide, json, yaml)", s)
	}
}
