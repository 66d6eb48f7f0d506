package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/isurajpanda/epub-to-html/internal/converter"
)

var rootCmd = &cobra.Command{
	Use:   "epub2html [flags] INPUT",
	Short: "Convert EPUB files to standalone HTML",
	Long: `epub2html converts an EPUB ebook into a single self-contained HTML
page with a navigable table of contents.

INPUT may be a single .epub file or a directory of them; directories are
converted as a batch and a failing book does not stop the rest.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inputPath := args[0]
		outputDir, _ := cmd.Flags().GetString("output")
		cssPath, _ := cmd.Flags().GetString("css")
		imageMode, _ := cmd.Flags().GetString("image-mode")
		workers, _ := cmd.Flags().GetInt("workers")
		keepFragments, _ := cmd.Flags().GetBool("keep-fragments")

		if outputDir == "" {
			outputDir = filepath.Dir(inputPath)
		}

		var mode converter.ImageMode
		switch imageMode {
		case "inline":
			mode = converter.ImageModeInline
		case "files":
			mode = converter.ImageModeFiles
		default:
			return fmt.Errorf("invalid --image-mode %q (want inline or files)", imageMode)
		}

		p := converter.NewPipeline(converter.ConvertOptions{
			InputPath:     inputPath,
			OutputDir:     outputDir,
			CustomCSSPath: cssPath,
			ImageMode:     mode,
			Workers:       workers,
			KeepFragments: keepFragments,
		})

		if err := p.Run(); err != nil {
			return fmt.Errorf("conversion failed: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().StringP("output", "o", "", "Output directory (default: alongside the input)")
	rootCmd.Flags().String("css", "", "Path to a custom CSS file appended to the reader styles")
	rootCmd.Flags().String("image-mode", "inline", "How to emit images: inline (data URIs) or files")
	rootCmd.Flags().Int("workers", 4, "Number of documents rewritten concurrently")
	rootCmd.Flags().Bool("keep-fragments", false, "Preserve in-page fragments on internal links instead of collapsing to chapter anchors")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
