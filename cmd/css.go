package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prismd/prismd/internal/registry"
	"github.com/prismd/prismd/internal/stylesheet"
)

var (
	cssStyle  string
	cssOutput string
	cssList   bool
)

var cssCmd = &cobra.Command{
	Use:   "css",
	Short: "Emit a stylesheet for the rendered scope classes",
	Long: `Generate CSS covering every scope class the HTML renderer emits,
with colors taken from a named chroma style.

Examples:
  prismd css --style monokai > prismd.css
  prismd css --style nord -o static/prismd.css
  prismd css --list`,
	RunE: runCSS,
}

func init() {
	rootCmd.AddCommand(cssCmd)

	cssCmd.Flags().StringVarP(&cssStyle, "style", "s", "github", "chroma style name")
	cssCmd.Flags().StringVarP(&cssOutput, "output", "o", "", "write to file instead of stdout")
	cssCmd.Flags().BoolVar(&cssList, "list", false, "list available styles and exit")
}

func runCSS(_ *cobra.Command, _ []string) error {
	if cssList {
		fmt.Println(strings.Join(stylesheet.Names(), "\n"))
		return nil
	}

	css, err := stylesheet.Generate(cssStyle, registry.Default().ScopeNames())
	if err != nil {
		return err
	}

	if cssOutput == "" {
		fmt.Print(css)
		return nil
	}
	if err := os.WriteFile(cssOutput, []byte(css), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", cssOutput, err)
	}
	return nil
}
