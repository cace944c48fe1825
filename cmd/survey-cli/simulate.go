package main

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"

	"github.com/keen-eye/survey-engine/internal/models"
	"github.com/keen-eye/survey-engine/pkg/client"
)

func newSimulateCmd() *cobra.Command {
	var (
		baseURL string
		runs    int
		acuity  int
		lapse   float64
		seed    uint64
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run simulated participants against a survey server",
		Long: `Take the survey against a running server with simulated participants.

A participant sees a difference when the two tiers are at least --acuity steps
apart and guesses otherwise; --lapse is the chance of a careless answer.

Example: survey-cli simulate --url http://localhost:8080 --runs 20 --acuity 2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := client.NewClient(baseURL, client.WithTimeout(10*time.Second))

			info, err := c.Catalog(ctx)
			if err != nil {
				return err
			}
			rank := make(map[models.Resolution]int, len(info.Resolutions))
			for i, r := range info.Resolutions {
				rank[r.Name] = i
			}

			p := participant{
				rng:    rand.New(rand.NewPCG(seed, seed+1)),
				rank:   rank,
				acuity: acuity,
				lapse:  lapse,
			}

			for run := 1; run <= runs; run++ {
				sess, err := c.StartSession(ctx, &models.ScreenReport{Width: 1920, Height: 1080, PixelRatio: 1})
				if err != nil {
					return err
				}

				for _, trial := range sess.Trials {
					choice, rt := p.answer(trial)
					if _, err := c.SubmitAnswer(ctx, sess.ID, models.SubmitAnswerRequest{
						QuestionID:     trial.ID,
						UserAnswer:     choice,
						ResponseTimeMs: rt,
					}); err != nil {
						return fmt.Errorf("run %d: %w", run, err)
					}
				}

				result, err := c.GetResult(ctx, sess.ID)
				if err != nil {
					return fmt.Errorf("run %d: %w", run, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "run %d session=%s score=%d percentile=%d recommendation=%s\n",
					run, sess.ID, result.Score, result.Percentile, result.Recommendation)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "Survey server base URL")
	cmd.Flags().IntVar(&runs, "runs", 1, "Number of simulated sessions")
	cmd.Flags().IntVar(&acuity, "acuity", 1, "Smallest tier gap the participant can see")
	cmd.Flags().Float64Var(&lapse, "lapse", 0.05, "Probability of a careless answer")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "Random seed")

	return cmd
}

type participant struct {
	rng    *rand.Rand
	rank   map[models.Resolution]int
	acuity int
	lapse  float64
}

func (p *participant) answer(t models.Trial) (models.Side, int64) {
	gap := p.rank[t.LeftResolution] - p.rank[t.RightResolution]
	if gap < 0 {
		gap = -gap
	}

	rt := int64(800 + p.rng.IntN(1200))
	if gap >= p.acuity && p.rng.Float64() >= p.lapse {
		return t.CorrectAnswer, rt
	}

	// guessing takes longer
	rt += int64(p.rng.IntN(1500))
	if p.rng.IntN(2) == 0 {
		return models.SideLeft, rt
	}
	return models.SideRight, rt
}
