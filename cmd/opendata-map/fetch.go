package main

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/opendata-map/internal/cache/keys"
	"github.com/mohammed-shakir/opendata-map/internal/core/config"
	"github.com/mohammed-shakir/opendata-map/internal/layers"
	"github.com/mohammed-shakir/opendata-map/internal/years"
)

func newDatasetsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List the datasets in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range cat.All() {
				if _, err := fmt.Fprintf(out, "%s\t%s\t%s\n", d.Name, d.Layer.Kind, d.Title); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

type fetchFlags struct {
	year   string
	where  string
	bin    string
	res    string
	pretty bool
}

func newFetchCmd(a *app) *cobra.Command {
	var f fetchFlags
	cmd := &cobra.Command{
		Use:   "fetch <dataset>",
		Short: "Fetch a dataset and print it as GeoJSON",
		Long: `Fetches every page of a dataset, validates it and prints the
FeatureCollection on stdout.

Example:
  opendata-map fetch outages --year 2024 --bin h3 --res 8`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Require(config.PathFetch); err != nil {
				return err
			}
			year, err := years.ParseYear(f.year)
			if err != nil {
				return err
			}
			res, err := layers.ParseRes(f.bin, f.res, a.cfg.HeatmapH3Res)
			if err != nil {
				return err
			}
			store, closeStore, err := a.newStore(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer closeStore()

			fc, err := store.FeatureCollection(cmd.Context(), layers.Request{
				Dataset: args[0], Year: year, Res: res, Where: f.where,
			})
			if err != nil {
				return err
			}
			var b []byte
			if f.pretty {
				b, err = sonic.ConfigStd.MarshalIndent(fc, "", "  ")
			} else {
				b, err = sonic.Marshal(fc)
			}
			if err != nil {
				return fmt.Errorf("encode feature collection: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}
	cmd.Flags().StringVar(&f.year, "year", years.All, `four digit year or "all"`)
	cmd.Flags().StringVar(&f.where, "where", "", "extra SoQL $where clause")
	cmd.Flags().StringVar(&f.bin, "bin", "", `"h3" to aggregate points into hexagons`)
	cmd.Flags().StringVar(&f.res, "res", "", "H3 resolution 0..15 (default heatmap_h3_res)")
	cmd.Flags().BoolVar(&f.pretty, "pretty", false, "indent the output")
	return cmd
}

func newYearsCmd(a *app) *cobra.Command {
	var mapped bool
	cmd := &cobra.Command{
		Use:   "years <dataset>",
		Short: "List the years present in a dataset, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Require(config.PathFetch); err != nil {
				return err
			}
			store, closeStore, err := a.newStore(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer closeStore()

			var ys []string
			if mapped {
				fc, ferr := store.FeatureCollection(cmd.Context(), layers.Request{
					Dataset: args[0], Year: years.All, Res: keys.Points,
				})
				if ferr != nil {
					return ferr
				}
				ys = years.FeatureYears(fc)
			} else if ys, err = store.Years(cmd.Context(), args[0]); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, y := range ys {
				if _, err := fmt.Fprintln(out, y); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&mapped, "mapped", false, "only years with at least one feature that has coordinates")
	return cmd
}
