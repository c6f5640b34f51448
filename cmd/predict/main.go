// Command predict classifies mushroom images from the command line, using
// the same configuration and pipeline as the HTTP server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/mycolab/shroom-api/internal/config"
	"github.com/mycolab/shroom-api/internal/model"
	"github.com/mycolab/shroom-api/internal/service"
)

var (
	configFile string
	topK       int
)

var rootCmd = &cobra.Command{
	Use:          "predict [images...]",
	Short:        "Classify mushroom images from the command line",
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runPredict,
}

func init() {
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "config.yaml", "configuration file")
	rootCmd.Flags().IntVarP(&topK, "top-k", "k", 3, "number of top predictions to show")
}

func runPredict(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	svc := service.New(cfg, func(cfg *config.Config, numClasses int) (model.Scorer, error) {
		return model.OpenONNX(cfg.Model, numClasses)
	})
	if err := svc.Start(); err != nil {
		return err
	}
	defer svc.Close()

	var bar *progressbar.ProgressBar
	if len(args) > 1 {
		bar = progressbar.NewOptions(len(args),
			progressbar.OptionSetDescription("Classifying"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
	}

	ctx := context.Background()
	for _, path := range args {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		preds, err := svc.Predict(ctx, raw, "", topK)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if bar != nil {
			bar.Add(1)
			fmt.Fprintln(os.Stderr)
		}
		fmt.Printf("%s:\n", path)
		for _, p := range preds {
			fmt.Printf("  %s: %.2f%%\n", p.Name, p.Confidence*100)
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
