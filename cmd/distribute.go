package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fyts-validation/internal/blockchain"
	"fyts-validation/internal/distribution"
	"fyts-validation/pkg/logger"
)

func distributeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "distribute",
		Short: "Transfer approved FYTS rewards listed in a CSV",
		Long: `Reads wallet,tokens[,run_id] rows and sends one ERC-20 transfer per row
from the configured signer, waiting for each to confirm. Rows whose run_id was
already paid are skipped; rows without a run_id are matched against the
processed file by count. --ignore-processed pays every row.`,
		RunE: runDistribute,
	}

	cmd.Flags().String("csv", "", "recipients CSV (default distribution.input_csv)")
	cmd.Flags().Bool("yes", false, "skip the safety countdown")
	cmd.Flags().Bool("dry-run", false, "validate every row without sending transactions")
	cmd.Flags().Bool("ignore-processed", false, "pay rows even if they appear in the processed file")
	cmd.Flags().Duration("delay", 0, "pause between transfers (default distribution.delay)")
	return cmd
}

func runDistribute(cmd *cobra.Command, args []string) error {
	csvPath, _ := cmd.Flags().GetString("csv")
	skipCountdown, _ := cmd.Flags().GetBool("yes")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	ignoreProcessed, _ := cmd.Flags().GetBool("ignore-processed")
	delay, _ := cmd.Flags().GetDuration("delay")

	distCfg := cfg.Distribution
	if csvPath == "" {
		csvPath = distCfg.InputCSV
	}
	if delay <= 0 {
		delay = distCfg.Delay
	}

	if cfg.Chain.PrivateKey == "" && !dryRun {
		return fmt.Errorf("chain.private_key (FYTS_CHAIN_PRIVATE_KEY) is required to send transfers")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	entries, skipped, err := distribution.LoadEntriesFile(csvPath)
	if err != nil {
		return err
	}
	logger.WithFields(map[string]interface{}{
		"file":    csvPath,
		"entries": len(entries),
		"skipped": len(skipped),
	}).Info("Loaded recipients")

	client, err := blockchain.NewClient(ctx, &cfg.Chain)
	if err != nil {
		return err
	}
	defer client.Close()

	native, err := client.NativeBalance(ctx, client.SignerAddress())
	if err != nil {
		return err
	}
	logger.WithFields(map[string]interface{}{
		"network":     cfg.Chain.Name,
		"chain_id":    client.ChainID().String(),
		"signer":      client.SignerAddress().Hex(),
		"gas_balance": blockchain.FormatUnits(native, 18),
	}).Info("Distribution wallet")

	if !skipCountdown && !dryRun {
		if err := countdown(ctx, distCfg.StartDelay, cfg.Chain.Mainnet); err != nil {
			return err
		}
	}

	ledger, err := distribution.OpenLedger(distCfg.LogDir, distCfg.ProcessedFile, time.Now())
	if err != nil {
		return err
	}
	defer ledger.Close()

	distributor := distribution.NewDistributor(client, ledger, distribution.Options{
		Delay:           delay,
		DryRun:          dryRun,
		IgnoreProcessed: ignoreProcessed,
	})

	summary, err := distributor.Run(ctx, entries)
	if summary != nil {
		fmt.Print(distribution.FormatSummary(summary))
	}
	return err
}

// countdown 发送前的安全等待，期间可 Ctrl+C 取消
func countdown(ctx context.Context, d time.Duration, mainnet bool) error {
	if d <= 0 {
		return nil
	}
	if mainnet {
		fmt.Println("WARNING: this will send real tokens on MAINNET.")
	}
	fmt.Printf("Starting in %s... press Ctrl+C to cancel\n", d)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("distribution cancelled before start")
	case <-timer.C:
		return nil
	}
}
