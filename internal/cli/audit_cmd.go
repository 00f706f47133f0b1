package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shopclerk/shopclerk/internal/config"
	"github.com/shopclerk/shopclerk/internal/store"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect and replay recorded sessions",
	}

	cmd.AddCommand(newAuditListCmd())
	cmd.AddCommand(newAuditReplayCmd())
	return cmd
}

func newAuditListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <session-id>",
		Short: "List the recorded turns of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			audit, err := openAuditStore(cfg.Audit)
			if err != nil {
				return err
			}
			defer audit.Close()

			ctx := context.Background()
			turns, err := audit.ListTurns(ctx, args[0], 0)
			if err != nil {
				return err
			}
			if len(turns) == 0 {
				fmt.Println("no recorded turns")
				return nil
			}
			for _, turn := range turns {
				flag := " "
				if turn.Blocked {
					flag = "!"
				}
				action := turn.ActionID
				if action == "" {
					action = "-"
				}
				fmt.Printf("%s %4d  %-20s cmds=%-2d %s\n", flag, turn.ID, action, len(turn.Commands), turn.Input)
			}
			return nil
		},
	}
}

func newAuditReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <session-id>",
		Short: "Rebuild a session's state from its command log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			audit, err := openAuditStore(cfg.Audit)
			if err != nil {
				return err
			}
			defer audit.Close()

			ctx := context.Background()
			base, err := audit.GetSession(ctx, args[0])
			if err != nil {
				return err
			}
			state, err := store.Replay(ctx, audit, base)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(state)
		},
	}
}
