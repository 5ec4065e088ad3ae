package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"blossom/internal/filetree"
	"blossom/internal/logging"
	"blossom/internal/pipeline"
	"blossom/internal/preview"
	"blossom/internal/types"
	"blossom/internal/workspace"
)

var (
	extractOut     string
	extractTree    bool
	extractPreview string
)

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Extract source files from saved model output",
	Long: `Reads generated text from a file (or stdin when no file is given) and pulls
the fenced or headed source files out of it.

By default the files are printed as JSON. --out writes them under a directory,
--tree prints the file tree and --preview writes the rendered preview document.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractOut, "out", "o", "", "Write the files under this directory")
	extractCmd.Flags().BoolVar(&extractTree, "tree", false, "Print the file tree instead of JSON")
	extractCmd.Flags().StringVar(&extractPreview, "preview", "", "Write the preview document to this path")
}

func runExtract(cmd *cobra.Command, args []string) error {
	var (
		raw []byte
		err error
	)
	if len(args) == 1 {
		raw, err = os.ReadFile(args[0])
	} else {
		raw, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("failed to read generated text: %w", err)
	}

	log := logger
	if log == nil {
		if log, err = logging.New("", "warn"); err != nil {
			return err
		}
	}

	res := pipeline.FromText(types.GeneratedText{Text: string(raw)}, preview.DefaultSandbox())
	out := cmd.OutOrStdout()

	if extractOut != "" {
		n, err := workspace.Materialize(extractOut, res.Files, log)
		if err != nil {
			return err
		}
		log.Info("files written", zap.String("dir", extractOut), zap.Int("count", n))
	}
	if extractPreview != "" {
		if err := os.WriteFile(extractPreview, []byte(res.Document), 0o644); err != nil {
			return fmt.Errorf("failed to write preview: %w", err)
		}
	}

	if extractTree {
		_, err := io.WriteString(out, filetree.Format(res.Tree))
		return err
	}
	if extractOut != "" || extractPreview != "" {
		return nil
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res.Files)
}
