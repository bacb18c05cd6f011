package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fillesume/storefront/internal/catalog"
	"github.com/fillesume/storefront/internal/commerce"
	"github.com/fillesume/storefront/internal/format"
	"github.com/fillesume/storefront/internal/platform/observability"
)

type catalogFlags struct {
	category string
	min      float64
	max      float64
	sort     string
	asJSON   bool
}

func catalogCmd(global *globalFlags) *cobra.Command {
	flags := &catalogFlags{}
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the filtered shop listing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger, err := observability.NewLoggerWithLevel(firstNonEmpty(global.logLevel, "warn"))
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cfg, fetcher, err := loadConfig(ctx, logger, global)
			if err != nil {
				return err
			}
			defer func() { _ = fetcher.Close() }()

			client := commerce.NewClient(cfg.Commerce, commerce.WithLogger(observability.EventLogger(logger)))
			svc, err := catalog.NewService(catalog.ServiceDeps{
				Source:      client,
				ShopSize:    cfg.Commerce.ShopSize,
				GallerySize: cfg.Commerce.GallerySize,
			})
			if err != nil {
				return err
			}

			result, err := svc.Shop(ctx, flags.filter(cmd))
			if err != nil {
				return fmt.Errorf("load catalog: %w", err)
			}
			if result.Source == commerce.SourceDemo {
				logger.Warn("commerce backend unavailable; showing the demo catalog", zap.Int("products", len(result.Products)))
			}
			if flags.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			return printListing(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&flags.category, "category", catalog.AllCategories, "product type to show, or all")
	cmd.Flags().Float64Var(&flags.min, "min", catalog.DefaultMinPrice, "minimum price in euros")
	cmd.Flags().Float64Var(&flags.max, "max", catalog.DefaultMaxPrice, "maximum price in euros")
	cmd.Flags().StringVar(&flags.sort, "sort", string(catalog.SortTitle), "title, price-low or price-high")
	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "print the raw listing as JSON")
	return cmd
}

// filter goes through ParseFilter so the command and the HTTP query share normalisation.
func (f *catalogFlags) filter(cmd *cobra.Command) catalog.Filter {
	values := url.Values{}
	values.Set("category", f.category)
	values.Set("sort", f.sort)
	if cmd.Flags().Changed("min") {
		values.Set("min", strconv.FormatFloat(f.min, 'f', -1, 64))
	}
	if cmd.Flags().Changed("max") {
		values.Set("max", strconv.FormatFloat(f.max, 'f', -1, 64))
	}
	return catalog.ParseFilter(values)
}

func printListing(w io.Writer, result catalog.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tPRICE")
	for _, p := range result.Products {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.NumericID(), p.Title, p.ProductType, format.Money(p.Price))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d products (%s); categories: %v\n", len(result.Products), result.Source, result.Categories)
	return err
}
