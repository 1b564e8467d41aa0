package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/merlin/internal/recommend"
)

func newRecommendCmd(opts *options) *cobra.Command {
	var catalog string
	var topK int

	cmd := &cobra.Command{
		Use:   "recommend <description...>",
		Short: "Print the catalog products most similar to a description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if catalog == "" {
				cfg, err := opts.load()
				if err != nil {
					return err
				}
				catalog = cfg.Catalog.Path
				if topK == 0 {
					topK = cfg.Catalog.TopK
				}
			}

			svc, err := recommend.LoadService(catalog, nil, 0, topK)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			products := svc.Recommend(cmd.Context(), strings.Join(args, " "), topK)
			if len(products) == 0 {
				fmt.Fprintln(out, "no similar products")
				return nil
			}
			for i, p := range products {
				fmt.Fprintf(out, "%d. %s\n   %s\n", i+1, p.Title, p.Description)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&catalog, "catalog", "", "catalog file (default is catalog.path from the config)")
	cmd.Flags().IntVarP(&topK, "top", "k", 0, "number of products to return (default is catalog.top_k)")
	return cmd
}
