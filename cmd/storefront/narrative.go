package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fillesume/storefront/internal/narrative"
	"github.com/fillesume/storefront/internal/platform/config"
)

func narrativeCmd(global *globalFlags) *cobra.Command {
	var (
		progress     []float64
		scheduleFile string
		complete     bool
		windows      bool
	)
	cmd := &cobra.Command{
		Use:   "narrative",
		Short: "Replay scroll progress through the narrative schedule",
		Example: `  storefront narrative --progress 0.1,0.3,0.62,0.8
  storefront narrative --schedule schedule.yaml --progress 0.62 --complete`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if scheduleFile == "" {
				scheduleFile = config.Lookup("NARRATIVE_SCHEDULE_FILE", config.WithEnvFile(global.envFile))
			}
			schedule, err := loadSchedule(config.NarrativeConfig{ScheduleFile: scheduleFile})
			if err != nil {
				return err
			}

			seq := narrative.NewSequencer(schedule)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROGRESS\tSTAGE\tSEGMENT\tHOLDING\tOVERLAY\tCOMPLETED\tSCENES")
			for _, p := range progress {
				writeObservation(tw, seq.Observe(p))
			}
			if complete {
				writeObservation(tw, seq.Complete())
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "\nreveals: %d\n", seq.Reveals()); err != nil {
				return err
			}
			if windows {
				return writeWindows(cmd)
			}
			return nil
		},
	}
	cmd.Flags().Float64SliceVar(&progress, "progress", []float64{0, 0.25, 0.5, 0.62, 0.75, 1}, "scroll progress samples in [0,1]")
	cmd.Flags().StringVar(&scheduleFile, "schedule", "", "YAML schedule file (defaults to STOREFRONT_NARRATIVE_SCHEDULE_FILE, then the built-in schedule)")
	cmd.Flags().BoolVar(&complete, "complete", false, "finish the mixing game after the samples")
	cmd.Flags().BoolVar(&windows, "windows", false, "also print the stage window of every scene")
	return cmd
}

func writeObservation(tw *tabwriter.Writer, obs narrative.Observation) {
	scenes := make([]string, 0, 3)
	for _, scene := range narrative.VisibleScenes(obs.Stage) {
		scenes = append(scenes, string(scene))
	}
	fmt.Fprintf(tw, "%.3f\t%.3f\t%d\t%s\t%s\t%s\t%s\n",
		obs.Progress, float64(obs.Stage), obs.Segment,
		strconv.FormatBool(obs.Holding), strconv.FormatBool(obs.OverlayOpen), strconv.FormatBool(obs.Completed),
		strings.Join(scenes, ","))
}

func writeWindows(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENE\tFROM\tTO")
	for _, scene := range narrative.AllScenes() {
		w, _ := narrative.Window(scene)
		to := "open"
		if !math.IsInf(w.Width, 1) {
			to = strconv.FormatFloat(w.Start+w.Width, 'f', 1, 64)
		}
		fmt.Fprintf(tw, "%s\t%.1f\t%s\n", scene, w.Start, to)
	}
	return tw.Flush()
}
