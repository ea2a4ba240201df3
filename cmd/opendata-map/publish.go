package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/opendata-map/internal/refresh"
)

func newPublishCmd(a *app) *cobra.Command {
	var reload bool
	cmd := &cobra.Command{
		Use:   "publish <dataset>...",
		Short: "Publish dataset refresh events to Kafka",
		Long: `Publishes one refresh event per dataset on kafka_topic. Running servers
drop the dataset and, with --reload, fetch it again immediately.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			for _, name := range args {
				if _, err := cat.Get(name); err != nil {
					return err
				}
			}
			op := refresh.OpInvalidate
			if reload {
				op = refresh.OpRefresh
			}

			pub, err := refresh.NewPublisher(refresh.Config{
				Brokers: a.cfg.KafkaBrokers,
				Topic:   a.cfg.KafkaTopic,
			}, "opendata-map-cli", a.logger)
			if err != nil {
				return err
			}
			defer func() { _ = pub.Close() }()

			for _, name := range args {
				ev, err := pub.Publish(cmd.Context(), op, name)
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", ev.Dataset, ev.Op, ev.TS.Format("2006-01-02T15:04:05.000Z07:00")); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&reload, "reload", false, "ask servers to reload the dataset right away")
	return cmd
}
