package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-refinery/internal/pipeline"
	"github.com/JakeFAU/profile-refinery/internal/progress"
	"github.com/JakeFAU/profile-refinery/internal/store"
)

func newRunCmd() *cobra.Command {
	var namesFile string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline over a names file and stream progress",
		Long: `Reads one practitioner name per line (blank lines and lines starting
with # are skipped) and runs all four phases, printing progress as it goes.
Pass "-" to read names from stdin. Ctrl-C stops the run after the current
name and still prints the final summary.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			names, err := readNamesFile(cmd.InOrStdin(), namesFile)
			if err != nil {
				return err
			}
			return runPipeline(cmd.Context(), appInstance, names, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&namesFile, "names", "", `file with one name per line, or "-" for stdin`)
	_ = cmd.MarkFlagRequired("names")
	return cmd
}

func readNamesFile(stdin io.Reader, path string) ([]string, error) {
	var r io.Reader = stdin
	if path != "-" {
		// #nosec G304 -- the operator chooses the input file.
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open names file: %w", err)
		}
		defer f.Close()
		r = f
	}
	names, err := pipeline.ReadNames(r)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, errors.New("names file contains no names")
	}
	return names, nil
}

func runPipeline(ctx context.Context, appInstance App, names []string, out io.Writer) error {
	logger := appInstance.Logger()
	runner := appInstance.Runner()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The run keeps its own context so a signal stops it between names
	// instead of abandoning the event stream.
	events, err := runner.Run(context.WithoutCancel(ctx), names)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	go func() {
		<-sigCtx.Done()
		if runner.Running() {
			logger.Info("stop requested")
			runner.Stop()
		}
	}()

	for evt := range events {
		printEvent(out, evt)
	}

	records, err := appInstance.Store().ReadAll(ctx)
	if err != nil {
		logger.Warn("reading final records failed", zap.Error(err))
		return nil
	}
	printStats(out, store.Summarize(records))
	return nil
}

func printEvent(out io.Writer, evt progress.Event) {
	ts := evt.TS.Local().Format("15:04:05")
	switch evt.Kind {
	case progress.KindPhase:
		fmt.Fprintf(out, "[%s] Phase %d: %s\n", ts, evt.Phase, evt.Phase)
	case progress.KindLog:
		fmt.Fprintf(out, "[%s] %s\n", ts, evt.Text)
	}
}

func printStats(out io.Writer, s store.Stats) {
	fmt.Fprintf(out, "\nTotal: %d  Verified: %d  Enriched: %d  Manual_Review: %d  Failed: %d\n",
		s.Total, s.Verified, s.Enriched, s.ManualReview, s.Failed)
}
