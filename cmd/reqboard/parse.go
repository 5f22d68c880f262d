package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/reqboard/reqboard/internal/request"
)

var parseCmd = &cobra.Command{
	Use:     "parse [file]",
	GroupID: "tools",
	Short:   "Parse a request block and print its fields",
	Long: `Parse a request block the way the board does and print the result as YAML.

Reads the file argument, or stdin when none is given. Useful for checking how a
message will show up before posting it.

Example:
  printf 'User: @alice\nRequest: Fix login\nDate: tomorrow\n' | reqboard parse`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = cmd.InOrStdin()
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()
			in = f
		}

		block, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("failed to read request: %w", err)
		}

		return printFields(cmd.OutOrStdout(), request.ParseFields(string(block)))
	},
}

// parsedFields is the YAML shape printed by `reqboard parse`.
type parsedFields struct {
	request.Fields `yaml:",inline"`
	ShortDate      string `yaml:"shortDate"`
	Valid          bool   `yaml:"valid"`
}

func printFields(w io.Writer, f request.Fields) error {
	r := request.Request{RequestDate: f.RequestDate}
	out := parsedFields{Fields: f, ShortDate: r.ShortDate(), Valid: f.Valid()}

	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to encode fields: %w", err)
	}

	title := "Valid request"
	style := doneStyle()
	if !out.Valid {
		title = "Not a request (needs User and Request lines)"
		style = errorStyle()
	}
	fmt.Fprintln(w, style.Render(title))
	_, err = w.Write(data)
	return err
}

func init() {
	rootCmd.AddCommand(parseCmd)
}
