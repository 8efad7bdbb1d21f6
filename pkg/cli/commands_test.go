package cli

import (
	"fmt"
	"slices"
	"testing"

	"github.com/spf13/cobra"
)

// TestCommandTree verifies the CLI command hierarchy is correct.
func TestCommandTree(t *testing.T) {
	root := Root()

	expectedTopLevel := []string{
		"card",
		"send",
		"serve",
		"tools",
		"version",
	}

	gotTopLevel := childNames(root)
	slices.Sort(expectedTopLevel)

	if !slices.Equal(expectedTopLevel, gotTopLevel) {
		t.Fatalf("top-level commands:\n  got:  %v\n  want: %v", gotTopLevel, expectedTopLevel)
	}
}

// TestCommandsHaveRequiredMetadata verifies every command has Use and Short fields set.
func TestCommandsHaveRequiredMetadata(t *testing.T) {
	root := Root()

	var walk func(cmd *cobra.Command, path string)
	walk = func(cmd *cobra.Command, path string) {
		if cmd.Use == "" {
			t.Errorf("%s: Use field is empty", path)
		}
		if cmd.Short == "" {
			t.Errorf("%s: Short field is empty", path)
		}
		for _, child := range cmd.Commands() {
			walk(child, path+"/"+child.Name())
		}
	}

	for _, cmd := range root.Commands() {
		walk(cmd, "agent-runtime/"+cmd.Name())
	}
}

func TestCommandFlags(t *testing.T) {
	root := Root()

	tests := []struct {
		command  string
		flag     string
		defValue string
	}{
		{"card", "output", "table"},
		{"card", "retries", "2"},
		{"card", "timeout", "10s"},
		{"tools", "output", "table"},
		{"tools", "timeout", "30s"},
		{"tools", "no-headers", "false"},
		{"card", "no-headers", "false"},
		{"send", "token", ""},
		{"send", "context-id", ""},
		{"send", "timeout", "5m0s"},
		{"serve", "address", ""},
		{"version", "output", ""},
	}

	for _, tt := range tests {
		t.Run(tt.command+"/"+tt.flag, func(t *testing.T) {
			cmd := findSubcommand(root, tt.command)
			if cmd == nil {
				t.Fatalf("command %q not found", tt.command)
			}
			f := cmd.Flags().Lookup(tt.flag)
			if f == nil {
				t.Fatalf("flag --%s not found on %s", tt.flag, tt.command)
			}
			if f.DefValue != tt.defValue {
				t.Errorf("flag --%s default = %q, want %q", tt.flag, f.DefValue, tt.defValue)
			}
		})
	}
}

// TestRootPersistentFlags verifies persistent flags on the root command.
func TestRootPersistentFlags(t *testing.T) {
	if Root().PersistentFlags().Lookup("verbose") == nil {
		t.Fatal("persistent flag --verbose not found on root command")
	}
}

// TestArgsValidators verifies that commands enforce correct argument counts.
func TestArgsValidators(t *testing.T) {
	root := Root()

	tests := []struct {
		command string
		args    int
		wantErr bool
	}{
		{"serve", 0, false},
		{"serve", 1, true},
		{"card", 1, false},
		{"card", 0, true},
		{"tools", 1, false},
		{"tools", 2, true},
		{"send", 2, false},
		{"send", 1, true},
		{"version", 0, false},
		{"version", 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.command+"/"+argsDesc(tt.args, tt.wantErr), func(t *testing.T) {
			cmd := findSubcommand(root, tt.command)
			if cmd == nil {
				t.Fatalf("command %q not found", tt.command)
			}
			if cmd.Args == nil {
				t.Fatalf("command %q has no Args validator", tt.command)
			}
			args := make([]string, tt.args)
			for i := range args {
				args[i] = "test"
			}
			err := cmd.Args(cmd, args)
			if (err != nil) != tt.wantErr {
				t.Errorf("command %q Args(%d args) error = %v, wantErr %v", tt.command, tt.args, err, tt.wantErr)
			}
		})
	}
}

// childNames returns sorted names of a command's direct children.
func childNames(cmd *cobra.Command) []string {
	children := cmd.Commands()
	names := make([]string, 0, len(children))
	for _, c := range children {
		names = append(names, c.Name())
	}
	slices.Sort(names)
	return names
}

// findSubcommand finds a direct child command by name.
func findSubcommand(parent *cobra.Command, name string) *cobra.Command {
	for _, cmd := range parent.Commands() {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

// argsDesc returns a short description for test naming.
func argsDesc(n int, wantErr bool) string {
	if wantErr {
		return fmt.Sprintf("rejects_%d_args", n)
	}
	return fmt.Sprintf("accepts_%d_args", n)
}
