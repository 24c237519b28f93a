package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"pricewatch-api/internal/models"
	"pricewatch-api/internal/registry"
	"pricewatch-api/internal/services"
	"pricewatch-api/pkg/utils"
)

var (
	compareCountry string
	compareNoCache bool
	compareJSON    bool

	retailersCountry string
)

var compareCmd = &cobra.Command{
	Use:   "compare <search term>",
	Short: "Compare prices for one product and print the result",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCompare,
}

var retailersCmd = &cobra.Command{
	Use:   "retailers",
	Short: "List configured retailers",
	RunE:  runRetailers,
}

func init() {
	compareCmd.Flags().StringVar(&compareCountry, "country", "", "limit to retailers in US or BR")
	compareCmd.Flags().BoolVar(&compareNoCache, "no-cache", false, "ignore cached comparisons")
	compareCmd.Flags().BoolVar(&compareJSON, "json", false, "print the raw JSON result")
	retailersCmd.Flags().StringVar(&retailersCountry, "country", "", "only list retailers in US or BR")
}

func runCompare(cmd *cobra.Command, args []string) error {
	country, err := models.ParseCountry(compareCountry)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	resp, err := a.aggregator.Compare(ctx, strings.Join(args, " "), services.CompareOptions{
		Country:   country,
		SkipCache: compareNoCache,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if compareJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Fprintf(out, "%s (%d of %d retailers", resp.SearchTerm, resp.RetailerCount, resp.Attempted)
	if resp.FromCache {
		fmt.Fprint(out, ", cached")
	}
	fmt.Fprintln(out, ")")
	if resp.Warning != "" {
		fmt.Fprintln(out, resp.Warning)
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tRETAILER\tPRICE\tAVAILABILITY\tURL")
	for _, p := range resp.Prices {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", p.PriceRank, p.Retailer, utils.FormatPrice(p.Price, p.Currency), p.Availability, p.SourceURL)
	}
	return tw.Flush()
}

func runRetailers(cmd *cobra.Command, _ []string) error {
	country, err := models.ParseCountry(retailersCountry)
	if err != nil {
		return err
	}
	reg, err := registry.Default(registry.APIKeys{
		Walmart: cfg.Retailers.WalmartAPIKey,
		Ebay:    cfg.Retailers.EbayAPIKey,
	}, zerolog.Nop())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCOUNTRY\tACCESS\tRATE/MIN\tBASE URL")
	for _, r := range reg.List(country) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.Name, r.Country, r.AccessMethod, r.RateLimitPerMinute, r.BaseURL)
	}
	return tw.Flush()
}
