package cli

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/spf13/cobra"

	"github.com/identity-guardian/guardian/internal/models"
	"github.com/identity-guardian/guardian/pkg/output"
)

var seedKinds = []models.SignalKind{
	models.KindBehavioral,
	models.KindDormant,
	models.KindPrivEscalation,
	models.KindRiskySignin,
	models.KindSoDViolation,
	models.KindPolicyViolation,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed synthetic signals",
	Long: `Generate synthetic monitoring signals for testing.

Signals are spread over the configured time window so that temporal
correlation has something to find.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")
		subjects, _ := cmd.Flags().GetInt("subjects")
		spread, _ := cmd.Flags().GetDuration("spread")
		seed, _ := cmd.Flags().GetInt64("seed")

		faker := gofakeit.New(seed)
		api := apiClient(cmd)

		subjectIDs := make([]string, subjects)
		for i := range subjectIDs {
			subjectIDs[i] = fmt.Sprintf("u-%s", faker.DigitN(5))
		}

		now := time.Now()
		sent := 0
		for i := 0; i < count; i++ {
			kind := seedKinds[faker.Number(0, len(seedKinds)-1)]
			raw := map[string]interface{}{
				"subject_id":  subjectIDs[faker.Number(0, subjects-1)],
				"kind":        string(kind),
				"severity":    faker.Float64Range(0.1, 1.0),
				"observed_at": now.Add(-time.Duration(faker.Number(0, int(spread.Seconds()))) * time.Second).Format(time.RFC3339),
				"source":      "seeder",
				"detail": map[string]interface{}{
					"ip":       faker.IPv4Address(),
					"username": faker.Username(),
				},
			}

			if _, err := api.IngestSignal(raw); err != nil {
				output.Error("Failed to send signal %d: %v", i+1, err)
				continue
			}
			sent++
		}

		output.Success("Seeded %d/%d signals across %d subjects", sent, count, subjects)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().Int("count", 100, "number of signals to generate")
	seedCmd.Flags().Int("subjects", 10, "number of distinct subjects")
	seedCmd.Flags().Duration("spread", 12*time.Hour, "time window to spread signals over")
	seedCmd.Flags().Int64("seed", 0, "random seed (0 for nondeterministic)")
}
