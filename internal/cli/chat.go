package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shopclerk/shopclerk/internal/config"
	"github.com/shopclerk/shopclerk/internal/domain"
)

func newChatCmd() *cobra.Command {
	var (
		mode     string
		customer string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive shopping session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			eng, err := buildEngine(cfg)
			if err != nil {
				return err
			}
			defer eng.close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			session, err := eng.orch.StartSession(ctx, domain.Mode(mode), domain.SessionContext{CustomerID: customer})
			if err != nil {
				return err
			}
			defer eng.orch.EndSession(session.ID)

			fmt.Printf("Session %s (%s). Type a message, or /quit to exit.\n", session.ID, mode)

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					break
				}
				input := strings.TrimSpace(scanner.Text())
				switch input {
				case "":
					continue
				case "/quit", "/exit":
					return nil
				case "/cart":
					printCart(eng, session.ID)
					continue
				}

				res, err := eng.orch.Turn(ctx, session.ID, input)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				fmt.Println(res.Response)
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "b2c", "session mode (b2c, b2b)")
	cmd.Flags().StringVar(&customer, "customer", "", "customer id for order history and quotes")

	return cmd
}

func printCart(eng *engine, sessionID string) {
	state, err := eng.orch.Session(sessionID)
	if err != nil {
		fmt.Println("session unavailable")
		return
	}
	if len(state.Cart.Items) == 0 {
		fmt.Println("Cart is empty.")
		return
	}
	for _, item := range state.Cart.Items {
		fmt.Printf("  %-12s %-24s x%-4d $%.2f\n", item.SKU, item.Name, item.Quantity, item.LineTotal)
	}
	fmt.Printf("  Total: $%.2f %s\n", state.Cart.Total, state.Context.Currency)
}
