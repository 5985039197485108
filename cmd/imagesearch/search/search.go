// Package searchcmder provides the search cobra command for querying the
// image index from the terminal.
package searchcmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/totenbilder/imagesearch/cmd/imagesearch/stack"
	"github.com/totenbilder/imagesearch/pkg/config"
	"github.com/totenbilder/imagesearch/pkg/search"
	"github.com/totenbilder/imagesearch/pkg/utils"
)

// maxNameWidth bounds the filename column of the plain text output.
const maxNameWidth = 60

type searchCommander struct {
	similar     string
	limit       int
	offset      int
	delta       string
	jsonOut     bool
	provider    string
	target      string
	collection  string
	sqlitePath  string
	embedTarget string
	dims        uint

	out    io.Writer
	logger *slog.Logger
}

var searchFlags = []string{
	config.FlagVectorStoreProvider,
	config.FlagVectorStoreTarget,
	config.FlagCollection,
	config.FlagSQLitePath,
	config.FlagEmbeddingTarget,
	config.FlagEmbeddingDims,
}

var searchRequirements = config.Requirements{
	VectorStore: true,
	Embedding:   true,
}

const searchLongDesc string = `Search the image index by text or by a reference image.

A text query is embedded with the multilingual text model and compared
against the stored image embeddings. --similar takes the object key of an
already indexed image and reuses its stored vector instead.

Examples:
  imagesearch search "schwarz-weiß Portrait einer Frau"
  imagesearch search "Grabstein mit Engel" --limit 10 --delta ">0"
  imagesearch search --similar fotos/1234.jpg --json`

const searchShortDesc string = "Search the image index"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var query string
			if len(args) == 1 {
				query = args[0]
			}

			cfg, err := stack.LoadConfig(cmd, searchFlags, searchRequirements)
			if err != nil {
				return err
			}
			cmder.logger, err = stack.NewLogger(cmd)
			if err != nil {
				return err
			}
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context(), cfg, query)
		},
	}

	cmd.Flags().StringVar(&cmder.similar, "similar", "", "Object key of an indexed image to find similar images for")
	cmd.Flags().IntVarP(&cmder.limit, "limit", "n", 0, "Maximum number of results (default from search.default_limit)")
	cmd.Flags().IntVar(&cmder.offset, "offset", 0, "Number of results to skip")
	cmd.Flags().StringVar(&cmder.delta, "delta", "", `Delta filter: "alle", "0" or ">0"`)
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print results as JSON")

	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreProvider, &cmder.provider)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreTarget, &cmder.target)
	config.AddStringFlag(cmd, config.Flags, config.FlagCollection, &cmder.collection)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLitePath, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingTarget, &cmder.embedTarget)
	config.AddUintFlag(cmd, config.Flags, config.FlagEmbeddingDims, &cmder.dims)

	return cmd
}

func (c *searchCommander) run(ctx context.Context, cfg *config.Config, query string) error {
	s, err := stack.Build(ctx, cfg, c.logger, searchRequirements)
	if err != nil {
		return err
	}
	defer s.Close()

	svc, err := s.NewSearch()
	if err != nil {
		return err
	}

	results, err := svc.Search(ctx, search.Request{
		Query:     query,
		SimilarTo: c.similar,
		Limit:     c.limit,
		Offset:    c.offset,
		Delta:     c.delta,
	})
	if err != nil {
		return err
	}

	return c.print(results)
}

func (c *searchCommander) print(results []search.Result) error {
	if c.jsonOut {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Fprintln(c.out, "No results found.")
		return nil
	}

	names := make([]string, len(results))
	width := 0
	for i, r := range results {
		names[i] = utils.Truncate(r.Filename, maxNameWidth)
		width = max(width, utf8.RuneCountInString(names[i]))
	}
	for i, r := range results {
		fmt.Fprintf(c.out, "%3d. %.3f  %s%s  %s\n",
			i+1+c.offset, r.Score, names[i], strings.Repeat(" ", width-utf8.RuneCountInString(names[i])), r.ImageURL)
	}
	return nil
}
