package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/keen-eye/survey-engine/internal/catalog"
	"github.com/keen-eye/survey-engine/internal/device"
	"github.com/keen-eye/survey-engine/internal/export"
	"github.com/keen-eye/survey-engine/internal/models"
	"github.com/keen-eye/survey-engine/internal/quiz"
	"github.com/keen-eye/survey-engine/internal/report"
	"github.com/keen-eye/survey-engine/internal/scoring"
	"github.com/keen-eye/survey-engine/internal/storage"
)

func main() {
	var catalogFile string

	rootCmd := &cobra.Command{
		Use:          "survey-cli",
		Short:        "Offline tooling for the resolution survey: generate, score, export and report",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&catalogFile, "catalog", "", "Catalog YAML file (default: built-in catalog)")

	rootCmd.AddCommand(
		newGenerateCmd(&catalogFile),
		newScoreCmd(&catalogFile),
		newExportCmd(&catalogFile),
		newMigrateCmd(),
		newStatsCmd(&catalogFile),
		newSimulateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newGenerateCmd(catalogFile *string) *cobra.Command {
	var seed uint64

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Print one session's trial sequence as JSON",
		Long: `Generate the shuffled comparison and retest trials for one session.

Example: survey-cli generate --seed 42 > trials.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(*catalogFile)
			if err != nil {
				return err
			}

			var src rand.Source
			if cmd.Flags().Changed("seed") {
				src = rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
			}

			gen, err := quiz.NewGenerator(cat, src)
			if err != nil {
				return err
			}
			return printJSON(gen.Generate())
		},
	}

	cmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed for a reproducible sequence")

	return cmd
}

func newScoreCmd(catalogFile *string) *cobra.Command {
	var screen screenFlags

	cmd := &cobra.Command{
		Use:   "score [answers-file]",
		Short: "Score a JSON array of answers",
		Long: `Score a finished session from its answers and print the result.

Example: survey-cli score answers.json --width 390 --height 844 --pixel-ratio 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, _, err := scoreFile(*catalogFile, args[0], screen)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	screen.register(cmd)

	return cmd
}

func newExportCmd(catalogFile *string) *cobra.Command {
	var (
		screen screenFlags
		output string
	)

	cmd := &cobra.Command{
		Use:   "export [answers-file]",
		Short: "Score answers and write the result workbook",
		Long: `Score a finished session and write an .xlsx workbook with the summary,
the per-pair detection rates and every answer.

Example: survey-cli export answers.json -o session.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, answers, err := scoreFile(*catalogFile, args[0], screen)
			if err != nil {
				return err
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			defer f.Close()

			sessionID := answers[0].SessionID
			if sessionID == "" {
				sessionID = models.NewOfflineID(time.Now())
			}
			if err := export.WriteWorkbook(f, sessionID, result, answers); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (score %d)\n", output, result.Score)
			return nil
		},
	}

	screen.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "survey.xlsx", "Workbook path")

	return cmd
}

func newMigrateCmd() *cobra.Command {
	var dsn string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			if err := storage.MigrateFromDSN(ctx, dsn); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", os.Getenv("DATABASE_DSN"), "PostgreSQL DSN (default: $DATABASE_DSN)")

	return cmd
}

func newStatsCmd(catalogFile *string) *cobra.Command {
	var (
		dsn   string
		score int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print population statistics from the database",
		Long: `Print session counts, the percentile distribution, device mix and pooled
detection rates. With --score, also print the share of completed sessions
that scored below it.

Example: survey-cli stats --score 80`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(*catalogFile)
			if err != nil {
				return err
			}

			r, err := report.Open(dsn, scoring.NewCatalogEngine(cat))
			if err != nil {
				return err
			}
			defer r.Close()

			stats, err := r.Stats(cmd.Context())
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("score") {
				return printJSON(stats)
			}

			rank, err := r.ScoreRank(cmd.Context(), score)
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{
				"stats": stats,
				"score": score,
				"rank":  rank,
			})
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", os.Getenv("DATABASE_DSN"), "PostgreSQL DSN (default: $DATABASE_DSN)")
	cmd.Flags().IntVar(&score, "score", 0, "Score to rank against completed sessions")

	return cmd
}

// screenFlags describes the device the answers were collected on
type screenFlags struct {
	width      int
	height     int
	pixelRatio float64
	userAgent  string
}

func (s *screenFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&s.width, "width", 1920, "Screen width in CSS pixels")
	cmd.Flags().IntVar(&s.height, "height", 1080, "Screen height in CSS pixels")
	cmd.Flags().Float64Var(&s.pixelRatio, "pixel-ratio", 1, "Device pixel ratio")
	cmd.Flags().StringVar(&s.userAgent, "user-agent", "", "User-Agent of the client")
}

func (s *screenFlags) device(now time.Time) models.DeviceInfo {
	return device.Detect(&models.ScreenReport{
		Width:      s.width,
		Height:     s.height,
		PixelRatio: s.pixelRatio,
	}, s.userAgent, now)
}

func scoreFile(catalogFile, path string, screen screenFlags) (*models.Result, []models.Answer, error) {
	cat, err := catalog.Load(catalogFile)
	if err != nil {
		return nil, nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read answers: %w", err)
	}

	var answers []models.Answer
	if err := json.Unmarshal(data, &answers); err != nil {
		return nil, nil, fmt.Errorf("failed to parse answers: %w", err)
	}

	now := time.Now().UTC()
	result, err := scoring.NewCatalogEngine(cat).Score(answers, screen.device(now), now)
	if err != nil {
		return nil, nil, err
	}
	return result, answers, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
