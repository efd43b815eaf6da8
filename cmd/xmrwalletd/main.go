package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kaigoh/xmrwallet/internal/walletd"
	"github.com/kaigoh/xmrwallet/internal/xmrwallet"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	xmrwalletclient "xmrwallet-client"
)

const (
	flagConfig        = "config"
	flagAPI           = "api"
	configKeyConfig   = "config"
	configKeyAPI      = "api"
	defaultConfigPath = "config.yml"
	defaultAPIURL     = "http://127.0.0.1:8080"
	envPrefix         = "XMRWALLET"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "xmrwalletd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "xmrwalletd",
		Short:         "Monero wallet daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(cmd)
		},
	}
	cmd.PersistentFlags().String(flagConfig, defaultConfigPath, "path to config.yml")
	cmd.PersistentFlags().String(flagAPI, defaultAPIURL, "base URL of a running daemon")

	cmd.AddCommand(newRunCommand(), newStatusCommand(), newHistoryCommand(), newRefreshCommand(), newTransferCommand(), newPaymentIDCommand())
	return cmd
}

func bindFlags(cmd *cobra.Command) error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlag(configKeyConfig, cmd.Flags().Lookup(flagConfig)); err != nil {
		return err
	}
	return viper.BindPFlag(configKeyAPI, cmd.Flags().Lookup(flagAPI))
}

func apiClient() *xmrwalletclient.Client {
	base := viper.GetString(configKeyAPI)
	if base == "" {
		base = defaultAPIURL
	}
	return xmrwalletclient.New(base)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Open the configured wallet and serve the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			// We DON'T want to be running as root...
			if os.Getuid() == 0 {
				log.Fatalf("Don't run xmrwalletd as root!")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return walletd.Run(ctx, viper.GetString(configKeyConfig))
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show wallet address, balance and status",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := apiClient().Wallet(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(info)
		},
	}
}

func newHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List incoming, outgoing and unconfirmed transfers",
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := apiClient().History(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(history)
		},
	}
}

func newRefreshCommand() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Trigger a refresh pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return apiClient().Refresh(cmd.Context(), wait)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "run the pass synchronously and report its outcome")
	return cmd
}

func newTransferCommand() *cobra.Command {
	var req xmrwalletclient.TransferRequest
	cmd := &cobra.Command{
		Use:   "transfer <address> <amount>",
		Short: "Build (but do not relay) a transfer and print the verified receipt",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Destination = strings.TrimSpace(args[0])
			req.Amount = strings.TrimSpace(args[1])
			receipt, err := apiClient().Transfer(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(receipt)
		},
	}
	cmd.Flags().StringVar(&req.PaymentID, "payment-id", "", "16 or 64 hex character payment id")
	cmd.Flags().Uint32Var(&req.Mixin, "mixin", 0, "ring members besides the real output (0 uses the wallet default)")
	cmd.Flags().StringVar(&req.Priority, "priority", "default", "fee priority: default, low, medium, high")
	return cmd
}

func newPaymentIDCommand() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "payment-id",
		Short: "Generate a random short payment id",
		RunE: func(cmd *cobra.Command, args []string) error {
			if offline {
				_, err := fmt.Fprintln(os.Stdout, xmrwallet.GenPaymentID())
				return err
			}
			id, err := apiClient().PaymentID(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(os.Stdout, id)
			return err
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "generate locally without contacting the daemon")
	return cmd
}
