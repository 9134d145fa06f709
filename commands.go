package main

import (
	"context"
	"encoding/json"
	"fmt"

	"alarm/live/internal/fetcher"
	"alarm/live/internal/server"

	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the refresh loop and serve the live map",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), a)
		},
	}
}

func runServe(ctx context.Context, a *app) error {
	srv, err := server.New(ctx, a.cfg, a.logger)
	if err != nil {
		a.logger.Error().Err(err).Msg("init server")
		return err
	}
	defer srv.Close()

	if err := srv.Run(ctx); err != nil {
		a.logger.Error().Err(err).Msg("server stopped")
		return err
	}
	return nil
}

func newListCmd(a *app) *cobra.Command {
	var region string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the reports currently on a region's listing page",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := fetcher.New(server.FetcherOptions(a.cfg.Source), a.logger)
			if err != nil {
				return err
			}
			if region == "" {
				region = a.cfg.Source.RegionURL
			}

			items, err := client.ListReports(cmd.Context(), region)
			if err != nil {
				a.logger.Error().Err(err).Str("region", region).Msg("list reports")
				return err
			}

			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No reports listed.")
				return nil
			}
			for _, item := range items {
				fmt.Fprintf(cmd.OutOrStdout(), "%-6s %-10s %s  %s\n", item.Date, item.Type, item.Title, item.URL)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&region, "region", "r", "", "Region listing URL (default SOURCE_REGION_URL)")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <path>",
		Short: "Print one report's details as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := fetcher.New(server.FetcherOptions(a.cfg.Source), a.logger)
			if err != nil {
				return err
			}

			details, err := client.GetReportDetails(cmd.Context(), args[0])
			if err != nil {
				a.logger.Error().Err(err).Str("path", args[0]).Msg("get report details")
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(details)
		},
	}
}
