package main

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"certmap/internal/domain"
	"certmap/internal/extractor"
	"certmap/internal/mapper"
	"certmap/internal/normalizer"
)

var extractCmd = &cobra.Command{
	Use:   "extract [file.pdf]",
	Short: "Print the layout extraction of a PDF",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

var mapCmd = &cobra.Command{
	Use:   "map [file.pdf|extraction.json]",
	Short: "Print the normalized mapping of a PDF or a saved extraction",
	Long:  `Maps a PDF, or an extraction previously printed by "certmap extract", and normalizes the result. A document with no recognizable field maps to category "Other" only.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runMap,
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize [mapping.json]",
	Short: "Normalize a mapping read from a file or stdin (-)",
	Args:  cobra.ExactArgs(1),
	RunE:  runNormalize,
}

var rawMapping bool

func init() {
	mapCmd.Flags().BoolVar(&rawMapping, "raw", false, "Skip normalization")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(mapCmd)
	rootCmd.AddCommand(normalizeCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ext, err := extractor.New(timeout).ExtractFile(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), ext)
}

func runMap(cmd *cobra.Command, args []string) error {
	var ext *domain.Extraction
	if strings.EqualFold(filepath.Ext(args[0]), ".json") || args[0] == "-" {
		ext = &domain.Extraction{}
		if err := readJSON(cmd, args[0], ext); err != nil {
			return err
		}
	} else {
		var err error
		ext, err = extractor.New(timeout).ExtractFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
	}

	m := mapper.Map(ext)
	if !rawMapping {
		m = normalizer.Normalize(m)
	}
	return writeJSON(cmd.OutOrStdout(), m)
}

func runNormalize(cmd *cobra.Command, args []string) error {
	var m domain.Mapping
	if err := readJSON(cmd, args[0], &m); err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), normalizer.Normalize(&m))
}
