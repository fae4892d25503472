// pointctl is an offline companion tool: fetch carrier points straight
// from the aggregator endpoints, inspect snapshot files, and run nearest
// and text searches against a snapshot without the API process.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BearBump/PointBox/config"
	"github.com/BearBump/PointBox/internal/carriers"
	"github.com/BearBump/PointBox/internal/geo"
	"github.com/BearBump/PointBox/internal/integrations/aggregator"
	"github.com/BearBump/PointBox/internal/models"
	"github.com/BearBump/PointBox/internal/search"
	"github.com/BearBump/PointBox/internal/snapshot"
)

var (
	configPath string
	country    string
)

var rootCmd = &cobra.Command{
	Use:   "pointctl",
	Short: "Pickup point toolbox",
	Long:  `Fetch carrier pickup points, manage snapshot files and query them locally.`,
}

var (
	fetchCarrier string
	fetchOut     string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch points from carrier endpoints",
	Long:  `Fetch pickup points for one carrier (or all of them) and write a snapshot file.`,
	RunE:  runFetch,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <snapshot>",
	Short: "Summarize a snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var (
	nearestLat   float64
	nearestLng   float64
	nearestCount int
)

var nearestCmd = &cobra.Command{
	Use:   "nearest <snapshot>",
	Short: "Find the closest points in a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runNearest,
}

var searchQuery string

var searchCmd = &cobra.Command{
	Use:   "search <snapshot>",
	Short: "Text-search points in a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (optional)")
	rootCmd.PersistentFlags().StringVar(&country, "country", "pl", "Country code")

	fetchCmd.Flags().StringVar(&fetchCarrier, "carrier", "all", "Carrier id or 'all'")
	fetchCmd.Flags().StringVarP(&fetchOut, "out", "o", "points-snapshot.json", "Snapshot output path")

	nearestCmd.Flags().Float64Var(&nearestLat, "lat", 0, "Latitude")
	nearestCmd.Flags().Float64Var(&nearestLng, "lng", 0, "Longitude")
	nearestCmd.Flags().IntVarP(&nearestCount, "count", "n", 5, "Number of results")
	_ = nearestCmd.MarkFlagRequired("lat")
	_ = nearestCmd.MarkFlagRequired("lng")

	searchCmd.Flags().StringVarP(&searchQuery, "query", "q", "", "Search query")
	_ = searchCmd.MarkFlagRequired("query")

	rootCmd.AddCommand(fetchCmd, inspectCmd, nearestCmd, searchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadRegistry() (*carriers.Registry, error) {
	if configPath == "" {
		return carriers.Default(), nil
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return cfg.CarrierRegistry(), nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry()
	if err != nil {
		return err
	}
	client := aggregator.New(registry)

	ctx := context.Background()
	var pts []*models.Point
	if fetchCarrier == "all" {
		pts = client.FetchAll(ctx, registry.IDs(), country)
	} else {
		pts, err = client.FetchForCarrier(ctx, fetchCarrier, country)
		if err != nil {
			return err
		}
	}

	codec := snapshot.NewCodec("1.0", "pointctl")
	if err := codec.SaveFile(fetchOut, pts); err != nil {
		return err
	}
	fmt.Printf("fetched %d points (%s, %s) -> %s\n", len(pts), fetchCarrier, country, fetchOut)
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	snap, err := snapshot.NewCodec("1.0", "pointctl").LoadFile(args[0])
	if err != nil {
		return err
	}

	byCarrier := map[string]int{}
	withCoords := 0
	for _, p := range snap.Points {
		byCarrier[p.Carrier]++
		if p.HasCoordinates() {
			withCoords++
		}
	}

	out := map[string]any{
		"timestamp":    snap.Timestamp,
		"version":      snap.Version,
		"points":       len(snap.Points),
		"withCoords":   withCoords,
		"uniqueCities": snap.Metadata.UniqueCities,
		"byCarrier":    byCarrier,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runNearest(cmd *cobra.Command, args []string) error {
	snap, err := snapshot.NewCodec("1.0", "pointctl").LoadFile(args[0])
	if err != nil {
		return err
	}

	results := geo.Nearest(snap.Points, nearestLat, nearestLng, nearestCount, geo.DefaultNearestOptions())
	for _, d := range results {
		fmt.Printf("%8.3f km  %-12s %-10s %s, %s\n",
			d.Kilometers, d.Point.ID, d.Point.Carrier, d.Point.Address, d.Point.City)
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	snap, err := snapshot.NewCodec("1.0", "pointctl").LoadFile(args[0])
	if err != nil {
		return err
	}

	ix := search.NewIndex()
	ix.Build(snap.Points)
	for _, p := range ix.Search(searchQuery) {
		fmt.Printf("%-12s %-10s %s, %s\n", p.ID, p.Carrier, p.Address, p.City)
	}
	return nil
}
