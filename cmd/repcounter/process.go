package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ayusman/repcounter/internal/pose"
	"github.com/ayusman/repcounter/internal/video"
)

var processOpts struct {
	input  string
	output string
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Count repetitions in a video file and write an annotated copy",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProcess(cmd.Context())
	},
}

func init() {
	processCmd.Flags().StringVarP(&processOpts.input, "input", "i", "", "Path to the input video")
	processCmd.Flags().StringVarP(&processOpts.output, "output", "o", "processed.mp4", "Path of the annotated output video")
	processCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(processCmd)
}

func runProcess(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	runner := video.NewRunner(cfg.Video, cfg.Counter, pose.NewMediaPipeFactory(cfg.Pose))

	var bar *progressbar.ProgressBar
	runner.OnProgress = func(done, total int) {
		if bar == nil {
			if total <= 0 {
				total = -1
			}
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Counting repetitions"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
			)
		}
		bar.Set(done)
	}

	rep, err := runner.Run(ctx, processOpts.input, processOpts.output)
	if bar != nil {
		bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Repetitions: %d\n", rep.Count)
	fmt.Printf("Output:      %s (%s)\n", rep.Output, rep.Codec)
	fmt.Printf("Frames:      %d (%d with a person)\n", rep.Frames, rep.Detected)
	fmt.Printf("Speed:       %.1f fps\n", rep.AvgFPS)
	return nil
}
