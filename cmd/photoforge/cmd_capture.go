package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"photoforge/internal/capture"
	"photoforge/internal/catalog"
	"photoforge/internal/config"
	"photoforge/internal/engine"
	"photoforge/internal/pipeline"
	"photoforge/internal/watch"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	captureTarget      int
	captureReconstruct bool
)

// captureCmd feeds a session from a drop folder until interrupted.
var captureCmd = &cobra.Command{
	Use:   "capture [drop-dir]",
	Short: "Capture photos dropped into a folder",
	Long: `Starts a capture session and ingests photos as they appear in the drop
folder. Photos already in the folder are ingested first. Capture stops when
the target count is reached or on Ctrl-C, then the session is finished.

With --reconstruct the finished session is immediately reconstructed.

Example:
  photoforge capture ./incoming --target 40 --reconstruct`,
	Args: cobra.ExactArgs(1),
	RunE: runCapture,
}

func init() {
	captureCmd.Flags().IntVar(&captureTarget, "target", 0, "Stop after this many photos (0 = until interrupted)")
	captureCmd.Flags().BoolVar(&captureReconstruct, "reconstruct", false, "Reconstruct immediately after capture")
	captureCmd.Flags().StringVar(&detailFlag, "detail", "", "Detail level for --reconstruct (default from config)")
	captureCmd.Flags().StringVarP(&outputDir, "output", "o", "assets", "Output directory for --reconstruct")
	captureCmd.Flags().DurationVar(&stepDelay, "step-delay", 200*time.Millisecond, "Pause between engine events")
	captureCmd.Flags().StringVar(&configPath, "config", "photoforge.yaml", "Config file path")
}

func runCapture(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	sess := capture.NewSession(cfg.Capture.TempDir, capture.Policy{
		MinPhotos:      cfg.Capture.MinPhotos,
		RecommendedMin: cfg.Capture.RecommendedMin,
		RecommendedMax: cfg.Capture.RecommendedMax,
	})
	if err := sess.Start(); err != nil {
		return err
	}
	defer func() {
		if sess.State() != capture.StateReady {
			sess.Reset()
		}
	}()

	dw, err := watch.NewDropWatcher(args[0], sess, cfg.Watcher.Extensions, cfg.GetWatcherDebounce())
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := dw.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer dw.Stop()

	if err := dw.IngestExisting(); err != nil {
		return err
	}

	fmt.Printf("Capturing into session %s from %s (Ctrl-C to finish)\n", sess.ID(), args[0])
	logger.Info("Capture started",
		zap.String("session", sess.ID()),
		zap.String("drop_dir", args[0]),
		zap.Int("target", captureTarget))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	lastCount := -1
capturing:
	for {
		select {
		case <-sigCh:
			fmt.Println("\nFinishing capture")
			break capturing
		case <-ctx.Done():
			break capturing
		case <-ticker.C:
			if n := sess.Count(); n != lastCount {
				fmt.Printf("  %d photo(s) captured\n", n)
				lastCount = n
			}
			if captureTarget > 0 && sess.Count() >= captureTarget {
				fmt.Println("Target reached, finishing capture")
				break capturing
			}
		}
	}
	dw.Stop()

	if err := sess.Finish(); err != nil {
		return fmt.Errorf("cannot finish session: %w", err)
	}

	stats := dw.GetStats()
	fmt.Printf("Session %s ready: %d photos (%d events seen, %d errors)\n",
		sess.ID(), sess.Count(), stats.FilesSeen, stats.Errors)

	if !captureReconstruct {
		// Session photos are temp files; without a reconstruction they are
		// not needed any further.
		return sess.Reset()
	}

	return reconstructSession(ctx, cfg, sess)
}

// reconstructSession runs a reconstruction job over a Ready session, sharing
// the progress/report path with the reconstruct command.
func reconstructSession(ctx context.Context, cfg *config.Config, sess *capture.Session) error {
	defer sess.Reset()

	detail, err := resolveDetail(cfg)
	if err != nil {
		return err
	}

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

	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()
	streamDone := make(chan error, 1)
	go func() {
		streamDone <- streamProgress(streamCtx, coord, jobID, updates, cfg.GetStallTimeout())
	}()

	final, err := coord.Wait(ctx, jobID)
	if err != nil {
		return err
	}
	stopStream()
	<-streamDone

	return report(handoff, coord, jobID, final, true)
}
