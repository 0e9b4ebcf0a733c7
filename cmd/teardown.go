// File: cmd/teardown.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/ebaybot/internal/observability"
	"github.com/xkilldash9x/ebaybot/internal/process"
	"github.com/xkilldash9x/ebaybot/internal/registry"
	"github.com/xkilldash9x/ebaybot/internal/teardown"
)

// newKiller is a variable so tests never signal real processes.
var newKiller = func() process.Killer {
	return process.NewGroupKiller()
}

func newTeardownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "teardown",
		Short: "Stop a detached session using its process registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			controller := teardown.NewController(
				registry.New(cfg.Session.RegistryPath),
				newKiller(),
				nil,
				cfg.Profile.Root,
				logger,
			)
			report, err := controller.Teardown(cmd.Context())
			if report != nil {
				printReport(cmd, report)
			}
			if err != nil {
				return err
			}
			if rerr := report.Err(); rerr != nil {
				// Per-entry failures were already logged; the rest was cleaned up.
				logger.Warn("Teardown finished with errors", zap.Error(rerr))
			}
			return nil
		},
	}
}

func printReport(cmd *cobra.Command, report *teardown.Report) {
	out := cmd.OutOrStdout()
	for _, o := range report.Outcomes {
		switch {
		case o.Err != nil:
			fmt.Fprintf(out, "%-12s failed: %v\n", o.Role, o.Err)
		case o.Skipped:
			fmt.Fprintf(out, "%-12s skipped\n", o.Role)
		default:
			fmt.Fprintf(out, "%-12s killed pid %d\n", o.Role, o.PID)
		}
	}
	for _, dir := range report.SweptProfiles {
		fmt.Fprintf(out, "removed profile %s\n", dir)
	}
}
