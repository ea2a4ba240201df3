package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/opendata-map/internal/core/config"
	"github.com/mohammed-shakir/opendata-map/internal/dataset"
)

func newRecommendCmd(a *app) *cobra.Command {
	var (
		file   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "recommend --file project.json",
		Short: "Ask the LLM for recommendations on a renewable energy project",
		Long: `Validates a project record against the projects schema and asks the
configured LLM for strengths, improvements, recommendations and impacts.
Use --file - to read the project from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.Require(config.PathRecommend); err != nil {
				return err
			}
			raw, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			d, err := cat.Get(dataset.Projects)
			if err != nil {
				return err
			}
			project, err := d.Schema().ValidateOne(raw)
			if err != nil {
				return err
			}
			req, err := a.newRequester(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := req.Recommend(cmd.Context(), project)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				b, err := sonic.ConfigStd.MarshalIndent(rec, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(b))
				return err
			}
			_, err = fmt.Fprintln(out, strings.TrimSpace(rec.Content))
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "project JSON file, - for stdin")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print content and parsed sections as JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readInput(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}
	return b, nil
}
