package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/DeepDiveOCR/ocr-safesign/config"
	"github.com/DeepDiveOCR/ocr-safesign/internal/api"
	"github.com/DeepDiveOCR/ocr-safesign/internal/app"
	"github.com/DeepDiveOCR/ocr-safesign/internal/estimator"
	"github.com/DeepDiveOCR/ocr-safesign/internal/geo"
	"github.com/DeepDiveOCR/ocr-safesign/internal/models"
)

type estimateFlags struct {
	address      string
	buildingType string
	area         float64
	kind         string
	asOf         string
	outliers     bool
	tolerance    float64
	threshold    float64
}

func main() {
	rootCmd := createEstimateCmd()
	rootCmd.AddCommand(createImportCmd())
	rootCmd.AddCommand(createNearbyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the engine. Logs go to stderr so
// stdout carries only the JSON result.
func setup() (*app.App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := app.NewLogger(cfg.Server.LogLevel)
	logger.SetOutput(os.Stderr)
	return app.New(cfg, logger)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func createEstimateCmd() *cobra.Command {
	var f estimateFlags

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the price per ㎡ of a unit",
		Long: `Estimate the price per square meter of exclusive area for a unit from
registry transactions of the same lot, widening the time window year by year
and falling back to nearby complexes when the lot has too few deals.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()

			req, err := api.EstimateRequest{
				Address:      f.address,
				BuildingType: f.buildingType,
				Area:         f.area,
				DealKind:     f.kind,
				AsOf:         f.asOf,
			}.ToEngine()
			if err != nil {
				return err
			}
			return runEstimate(cmd.Context(), a.Engine, req, f)
		},
	}

	cmd.Flags().StringVar(&f.address, "address", "", "lot address, e.g. 서울특별시 강남구 논현동 203-1")
	cmd.Flags().StringVar(&f.buildingType, "type", "", "building type: 아파트, 다세대, 연립 or 오피스텔")
	cmd.Flags().Float64Var(&f.area, "area", 0, "exclusive area in ㎡")
	cmd.Flags().StringVar(&f.kind, "kind", "trade", "deal kind: trade or rent")
	cmd.Flags().StringVar(&f.asOf, "as-of", "", "reference date YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&f.outliers, "outliers", false, "also report outlier transactions")
	cmd.Flags().Float64Var(&f.tolerance, "tolerance", estimator.UsePolicyDefault, "outlier area band in ㎡, 0 for the exact area (negative uses the policy value)")
	cmd.Flags().Float64Var(&f.threshold, "threshold", estimator.UsePolicyDefault, "outlier deviation ratio (negative uses the policy value)")
	cmd.MarkFlagRequired("address")
	cmd.MarkFlagRequired("type")
	cmd.MarkFlagRequired("area")

	return cmd
}

func runEstimate(ctx context.Context, engine *estimator.Engine, req estimator.Request, f estimateFlags) error {
	if !f.outliers {
		result, err := engine.Estimate(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(result)
	}

	result, report, err := engine.DetectOutliers(ctx, req, f.tolerance, f.threshold)
	if err != nil {
		return err
	}
	return printJSON(api.OutlierResponse{Estimate: result, Report: report})
}

func createImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "import",
		Short:        "Import the reference coordinate tables",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()

			started := time.Now()
			stats, err := a.ImportReference(cmd.Context())
			a.Logger.WithFields(logrus.Fields{
				"elapsed": time.Since(started).String(),
			}).Info("Import done")
			if perr := printJSON(stats); perr != nil {
				return perr
			}
			return err
		},
	}
}

func createNearbyCmd() *cobra.Command {
	var (
		address      string
		buildingType string
		radiusKm     float64
	)

	cmd := &cobra.Command{
		Use:          "nearby",
		Short:        "List reference complexes near an address as GeoJSON",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			bt, err := models.ParseBuildingType(buildingType)
			if err != nil {
				return err
			}
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()

			origin, ranked, err := a.Engine.Nearby(cmd.Context(), address, bt, radiusKm)
			if err != nil {
				return err
			}
			return printJSON(geo.FeatureCollection(origin, ranked))
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "address to search around")
	cmd.Flags().StringVar(&buildingType, "type", string(models.Apartment), "building type")
	cmd.Flags().Float64Var(&radiusKm, "radius", 0, "search radius in km (default from policy)")
	cmd.MarkFlagRequired("address")

	return cmd
}
