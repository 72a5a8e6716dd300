package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nexus-trading/screener/internal/blacklist"
)

func blacklistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blacklist",
		Short: "Inspect or extend the coin and developer blacklists",
	}
	cmd.AddCommand(blacklistListCmd())
	cmd.AddCommand(blacklistAddCmd())
	return cmd
}

func openBlacklist() (*blacklist.Store, error) {
	if _, err := loadConfig(); err != nil {
		return nil, err
	}
	return blacklist.NewStore(blacklist.NewFilePersister(configPath))
}

func blacklistListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List blacklisted coins and developers",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			bl, err := openBlacklist()
			if err != nil {
				return err
			}
			defer bl.Close()

			fmt.Fprintf(os.Stdout, "Coins (%d):\n", len(bl.Coins()))
			for _, c := range bl.Coins() {
				fmt.Fprintf(os.Stdout, "  %s\n", c)
			}
			fmt.Fprintf(os.Stdout, "Developers (%d):\n", len(bl.Developers()))
			for _, d := range bl.Developers() {
				fmt.Fprintf(os.Stdout, "  %s\n", d)
			}
			return nil
		},
	}
}

func blacklistAddCmd() *cobra.Command {
	var (
		dev    bool
		reason string
	)

	cmd := &cobra.Command{
		Use:   "add <address>",
		Short: "Ban a token address, or a developer address with --dev",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			address := strings.TrimSpace(args[0])
			if address == "" {
				return fmt.Errorf("address must not be empty")
			}
			bl, err := openBlacklist()
			if err != nil {
				return err
			}
			defer bl.Close()

			if dev {
				bl.AddDeveloper(address, reason)
			} else {
				bl.AddCoin(address, reason)
			}
			st := bl.Stats()
			fmt.Fprintf(os.Stdout, "blacklist now holds %d coins and %d developers\n", st.Coins, st.Devs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dev, "dev", false, "Treat the address as a developer address")
	cmd.Flags().StringVar(&reason, "reason", "manual", "Reason recorded in the log")
	return cmd
}
