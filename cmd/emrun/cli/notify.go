package cli

import (
	"context"
	"fmt"
	"time"

	"emrun/internal/config"
	"emrun/internal/notify"

	"github.com/spf13/cobra"
)

var notifyTest bool

var (
	buildNotifySenders = notify.BuildSenders
	sendNotifyAll      = notify.SendAll
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Send notification test events",
	RunE:  runNotify,
}

func init() {
	notifyCmd.Flags().BoolVar(&notifyTest, "test", false, "send a test notification to all configured channels")
	rootCmd.AddCommand(notifyCmd)
}

type notifyTestOutput struct {
	Test    bool                   `json:"test"`
	Success bool                   `json:"success"`
	Results []notify.ChannelResult `json:"results"`
	Error   string                 `json:"error,omitempty"`
}

func runNotify(cmd *cobra.Command, args []string) error {
	if !notifyTest {
		return fmt.Errorf("notify currently supports only --test")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	results, err := runNotifyTest(cmd.Context(), cfg)
	if jsonOut {
		out := notifyTestOutput{Test: true, Success: err == nil, Results: results}
		if err != nil {
			out.Error = err.Error()
		}
		printJSON(out)
		return err
	}

	for _, result := range results {
		if result.Success {
			fmt.Printf("%s: ok\n", result.Channel)
			continue
		}
		if result.Error != "" {
			fmt.Printf("%s: failed (%s)\n", result.Channel, result.Error)
			continue
		}
		fmt.Printf("%s: failed\n", result.Channel)
	}
	if err != nil {
		return err
	}
	fmt.Println("notification test succeeded")
	return nil
}

func runNotifyTest(ctx context.Context, cfg *config.Config) ([]notify.ChannelResult, error) {
	senders := buildNotifySenders(cfg.Notifications, nil)
	if len(senders) == 0 {
		return nil, fmt.Errorf("no notification channels configured")
	}

	payload := notify.TestPayload()
	if cfg.WorkDir != "" {
		payload.WorkDir = cfg.WorkDir
	}
	if cfg.Queue.Pool != "" {
		payload.Pool = cfg.Queue.Pool
	}
	payload.Timestamp = time.Now().UTC().Format(time.RFC3339)

	results := sendNotifyAll(ctx, senders, payload, 4*time.Second)
	for _, result := range results {
		if result.Success {
			return results, nil
		}
	}
	return results, fmt.Errorf("all notification channels failed: %s", notify.SummarizeFailures(results))
}
