package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"photoforge/internal/capture"
	"photoforge/internal/catalog"
	"photoforge/internal/config"
	"photoforge/internal/engine"
	"photoforge/internal/pipeline"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	detailFlag    string
	outputDir     string
	stepDelay     time.Duration
	configPath    string
	keepAssetFile bool
)

// reconstructCmd runs the full pipeline over an existing photo folder.
var reconstructCmd = &cobra.Command{
	Use:   "reconstruct [photo-dir]",
	Short: "Reconstruct a 3D scene asset from a folder of photos",
	Long: `Loads every photo in the folder into a capture session, finishes the
session, and runs a reconstruction job over the frozen photo set. Progress is
streamed to stdout; the completed asset is written to the output directory and
recorded in the catalog.

Example:
  photoforge reconstruct ./shots --detail medium --output ./assets`,
	Args: cobra.ExactArgs(1),
	RunE: runReconstruct,
}

func init() {
	reconstructCmd.Flags().StringVar(&detailFlag, "detail", "", "Detail level: preview, reduced, medium, full, raw (default from config)")
	reconstructCmd.Flags().StringVarP(&outputDir, "output", "o", "assets", "Output directory for the packaged scene")
	reconstructCmd.Flags().DurationVar(&stepDelay, "step-delay", 200*time.Millisecond, "Pause between engine events")
	reconstructCmd.Flags().StringVar(&configPath, "config", "photoforge.yaml", "Config file path")
	reconstructCmd.Flags().BoolVar(&keepAssetFile, "keep", true, "Keep the asset file when the job record is released")
}

func runReconstruct(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	detail, err := resolveDetail(cfg)
	if err != nil {
		return err
	}

	sess, err := sessionFromDir(cfg, args[0])
	if err != nil {
		return err
	}
	defer sess.Reset()

	logger.Info("Session ready",
		zap.String("session", sess.ID()),
		zap.Int("photos", sess.Count()),
		zap.String("detail", string(detail)))

	eng := engine.NewScriptedEngine(outputDir)
	eng.StepDelay = stepDelay
	coord := pipeline.NewCoordinator(eng)
	defer coord.Close()

	var recorder pipeline.AssetRecorder
	if cfg.Catalog.Enabled {
		cat, err := catalog.New(cfg.Catalog.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open catalog: %w", err)
		}
		defer cat.Close()
		recorder = cat
	}
	handoff := pipeline.NewHandoff(coord, recorder)

	jobID, err := coord.Submit(ctx, sess, detail)
	if err != nil {
		return fmt.Errorf("failed to submit job: %w", err)
	}
	updates, err := coord.Observe(jobID)
	if err != nil {
		return err
	}

	// Ctrl-C requests cooperative cancellation; the job stays running until
	// the engine acknowledges.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-sigCh:
			logger.Info("Cancellation requested", zap.String("job", jobID))
			return coord.Cancel(jobID)
		case <-gctx.Done():
			return nil
		}
	})

	g.Go(func() error {
		return streamProgress(gctx, coord, jobID, updates, cfg.GetStallTimeout())
	})

	final, err := coord.Wait(ctx, jobID)
	if err != nil {
		return err
	}
	cancel()
	if err := g.Wait(); err != nil {
		logger.Warn("Progress stream ended with error", zap.Error(err))
	}

	return report(handoff, coord, jobID, final, keepAssetFile)
}

// streamProgress prints observer updates and cancels the job if no update
// arrives within the stall timeout.
func streamProgress(ctx context.Context, coord *pipeline.Coordinator, jobID string, updates <-chan pipeline.JobSnapshot, stallTimeout time.Duration) error {
	stall := time.NewTimer(stallTimeout)
	defer stall.Stop()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			if !stall.Stop() {
				select {
				case <-stall.C:
				default:
				}
			}
			stall.Reset(stallTimeout)

			if snap.State.Terminal() {
				continue // final report happens after Wait
			}
			fmt.Printf("  [%s] %3.0f%%\n", snap.State, snap.Progress*100)

		case <-stall.C:
			logger.Warn("No progress within stall timeout, cancelling",
				zap.String("job", jobID),
				zap.Duration("timeout", stallTimeout))
			return coord.Cancel(jobID)

		case <-ctx.Done():
			return nil
		}
	}
}

// report prints the terminal outcome and releases the job record. keep
// retains the asset file past the release.
func report(handoff *pipeline.Handoff, coord *pipeline.Coordinator, jobID string, final pipeline.JobSnapshot, keep bool) error {
	metrics, _ := coord.Metrics(jobID)

	switch final.State {
	case pipeline.JobCompleted:
		fmt.Printf("\nCompleted in %s (%d events)\n", metrics.Duration.Round(time.Millisecond), metrics.EventCount)
		fmt.Printf("  asset:  %s\n", final.Asset.FileReference)
		fmt.Printf("  format: %s\n", final.Asset.Format)
		fmt.Printf("  size:   %d bytes\n", final.Asset.SizeBytes)
		fmt.Printf("  detail: %s\n", final.Asset.DetailLevel)
		if keep {
			handoff.Retain(jobID)
		}
		return handoff.Release(jobID)

	case pipeline.JobCancelled:
		fmt.Printf("\nCancelled after %s\n", metrics.Duration.Round(time.Millisecond))
		return handoff.Release(jobID)

	default:
		fmt.Printf("\nFailed after %s: %v\n", metrics.Duration.Round(time.Millisecond), final.Err)
		if err := handoff.Release(jobID); err != nil {
			logger.Warn("Failed to release job", zap.Error(err))
		}
		return final.Err
	}
}

// resolveDetail picks the detail level from the flag or config default.
func resolveDetail(cfg *config.Config) (engine.DetailLevel, error) {
	raw := detailFlag
	if raw == "" {
		raw = cfg.Reconstruction.DetailLevel
	}
	return engine.ParseDetailLevel(raw)
}

// sessionFromDir builds a Ready session from the photos in a directory.
func sessionFromDir(cfg *config.Config, dir string) (*capture.Session, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read photo directory: %w", err)
	}

	accepted := make(map[string]bool, len(cfg.Watcher.Extensions))
	for _, ext := range cfg.Watcher.Extensions {
		accepted[strings.ToLower(ext)] = true
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !accepted[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	if len(names) == 0 {
		return nil, fmt.Errorf("no photos found in %s (accepted: %s)", dir, strings.Join(cfg.Watcher.Extensions, ", "))
	}

	sess := capture.NewSession(cfg.Capture.TempDir, capture.Policy{
		MinPhotos:      cfg.Capture.MinPhotos,
		RecommendedMin: cfg.Capture.RecommendedMin,
		RecommendedMax: cfg.Capture.RecommendedMax,
	})
	if err := sess.Start(); err != nil {
		return nil, err
	}

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			sess.Reset()
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		if _, err := sess.AddPhoto(data); err != nil {
			sess.Reset()
			return nil, err
		}
	}

	if err := sess.Finish(); err != nil {
		sess.Reset()
		return nil, err
	}
	return sess, nil
}
