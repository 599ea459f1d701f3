package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/prismd/prismd/internal/client"
	"github.com/prismd/prismd/internal/engine"
	"github.com/prismd/prismd/internal/language"
)

var (
	renderAddr       string
	renderLang       string
	renderOut        string
	renderTimeoutMS  uint32
	renderInjections bool
)

var renderCmd = &cobra.Command{
	Use:     "render FILE...",
	Aliases: []string{"r"},
	Short:   "Render local files against a prismd server",
	Long: `Render one or more local files to HTML in a single batch.

The language is inferred from each filename unless --language forces one
for the whole batch. Output is written to stdout, or one .html file per
input with --out-dir.

Examples:
  prismd render -a localhost:8443 main.go
  prismd render -a localhost:8443 -l rust src/*.rs -o rendered/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringVarP(&renderAddr, "addr", "a", "localhost:8443", "server address")
	renderCmd.Flags().StringVarP(&renderLang, "language", "l", "", "force a language for every file instead of inferring from filenames")
	renderCmd.Flags().StringVarP(&renderOut, "out-dir", "o", "", "write one .html file per input here instead of stdout")
	renderCmd.Flags().Uint32Var(&renderTimeoutMS, "timeout-ms", 0, "per-file timeout override in milliseconds")
	renderCmd.Flags().BoolVar(&renderInjections, "injections", false, "highlight embedded languages inside host documents")
}

func runRender(cmd *cobra.Command, args []string) error {
	if len(args) > 1<<16 {
		return fmt.Errorf("too many files: %d (limit %d)", len(args), 1<<16)
	}

	var forced language.ID
	if renderLang != "" {
		forced = language.FromName(renderLang)
		if forced == language.Unspecified {
			return fmt.Errorf("unknown language %q", renderLang)
		}
	}

	var opts []string
	if renderInjections {
		opts = append(opts, "injections")
	}

	req := &engine.Request{TimeoutMS: renderTimeoutMS}
	for i, path := range args {
		contents, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		req.Files = append(req.Files, engine.File{
			Ident:    uint16(i),
			Filename: filepath.Base(path),
			Language: forced,
			Contents: contents,
			Options:  opts,
		})
	}

	resp, err := client.New(renderAddr).Render(cmd.Context(), req)
	if err != nil {
		return err
	}

	byIdent := make(map[uint16]*engine.Document, len(resp.Documents))
	for i := range resp.Documents {
		byIdent[resp.Documents[i].Ident] = &resp.Documents[i]
	}
	failures := make(map[uint16]string, len(resp.Failures))
	for _, f := range resp.Failures {
		failures[f.Ident] = f.Reason.String()
	}

	var failed bool
	for i, path := range args {
		ident := uint16(i)
		if reason, ok := failures[ident]; ok {
			fmt.Fprintf(os.Stderr, "%s: %s\n", path, reason)
			failed = true
			continue
		}
		doc, ok := byIdent[ident]
		if !ok {
			fmt.Fprintf(os.Stderr, "%s: missing from response\n", path)
			failed = true
			continue
		}
		if err := writeDocument(path, doc); err != nil {
			return err
		}
	}
	if failed {
		return fmt.Errorf("some files failed to render")
	}
	return nil
}

func writeDocument(path string, doc *engine.Document) error {
	if renderOut == "" {
		for _, line := range doc.Lines {
			fmt.Println(line)
		}
		return nil
	}
	if err := os.MkdirAll(renderOut, 0o755); err != nil {
		return err
	}
	out := filepath.Join(renderOut, filepath.Base(path)+".html")
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintf(f, "<pre class=\"prismd\"><code>")
	for _, line := range doc.Lines {
		fmt.Fprintln(f, line)
	}
	fmt.Fprintf(f, "</code></pre>\n")
	return nil
}
