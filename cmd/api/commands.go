package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/photo-tagger/internal/application/analysis"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back schema migrations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), true, 0)
		},
	})
	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			return runMigrations(cmd.Context(), false, steps)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)
	return cmd
}

func analyzeCmd() *cobra.Command {
	var (
		userID   int64
		force    bool
		noVision bool
		noPlaces bool
		minConf  float64
		original bool
		radius   int
	)
	cmd := &cobra.Command{
		Use:   "analyze <photo-id>",
		Short: "Analyze one photo and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			photoID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				req := a.service.Policy.Defaults.Request(photoID, userID)
				req.ForceReanalysis = force
				req.EnableObjectDetection = !noVision
				req.EnablePlaceDetection = !noPlaces
				if cmd.Flags().Changed("min-confidence") {
					req.MinConfidence = minConf
				}
				if original {
					req.UseThumbnail = false
				}
				if radius > 0 {
					req.PlaceSearchRadius = radius
				}

				resp, err := a.service.AnalyzePhoto(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(resp)
			})
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "owner user id (required)")
	cmd.Flags().BoolVar(&force, "force", false, "ignore an existing analysis")
	cmd.Flags().BoolVar(&noVision, "no-vision", false, "skip the vision classifier")
	cmd.Flags().BoolVar(&noPlaces, "no-places", false, "skip the place resolver")
	cmd.Flags().Float64Var(&minConf, "min-confidence", 0, "minimum confidence for returned suggestions")
	cmd.Flags().BoolVar(&original, "original", false, "analyze the original instead of the thumbnail")
	cmd.Flags().IntVar(&radius, "radius", 0, "place search radius in metres")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func batchCmd() *cobra.Command {
	var (
		userID   int64
		force    bool
		parallel int
	)
	cmd := &cobra.Command{
		Use:   "batch <photo-id>...",
		Short: "Analyze many photos with bounded parallelism",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				res := a.scheduler.Run(ctx, analysis.BatchRequest{
					PhotoIDs:        ids,
					UserID:          userID,
					ForceReanalysis: force,
					MaxParallelism:  parallel,
				})
				return printJSON(res)
			})
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "owner user id (required)")
	cmd.Flags().BoolVar(&force, "force", false, "re-analyze photos that already have an analysis")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "max concurrent analyses (default from config)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func applyCmd() *cobra.Command {
	var (
		userID  int64
		photoID int64
	)
	cmd := &cobra.Command{
		Use:   "apply <suggestion-id>...",
		Short: "Adopt suggestions as photo tags or categories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				req := analysis.ApplyRequest{SuggestionIDs: ids}
				if userID > 0 {
					req.UserID = &userID
				}
				if photoID > 0 {
					req.PhotoID = &photoID
				}
				return printJSON(a.service.ApplySuggestions(ctx, req))
			})
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user recorded as the adder")
	cmd.Flags().Int64Var(&photoID, "photo", 0, "only apply suggestions of this photo")
	return cmd
}

func withApp(ctx context.Context, fn func(context.Context, *app) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := parseID(a)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
