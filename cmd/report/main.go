package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"jinktrader/config"
	"jinktrader/internal/adapters/logger"
	"jinktrader/internal/adapters/sqlite"
	"jinktrader/internal/analytics"
	"jinktrader/internal/utils"
)

func main() {
	limit := flag.Int("limit", 500, "number of recent trades to analyze")
	csvPath := flag.String("csv", "", "optional path to export the trades as CSV")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	appLogger, err := logger.New("warn")
	if err != nil {
		log.Fatalf("Error initializing logger: %v", err)
	}
	defer appLogger.Sync()

	journal, err := sqlite.NewJournal(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("Error opening trade journal: %v", err)
	}
	defer journal.Close()

	ctx := context.Background()
	entries, err := journal.FindRecent(ctx, *limit)
	if err != nil {
		log.Fatalf("Error reading trade journal: %v", err)
	}
	if len(entries) == 0 {
		log.Println("No trades recorded yet.")
		return
	}

	if *csvPath != "" {
		if err := utils.WriteJournalToCSV(entries, *csvPath); err != nil {
			log.Fatalf("Error exporting CSV: %v", err)
		}
		fmt.Printf("Exported %d trades to %s\n", len(entries), *csvPath)
	}

	metrics := analytics.AnalyzePerformance(entries)
	totalProfit, err := journal.TotalProfitPct(ctx)
	if err != nil {
		log.Fatalf("Error calculating total profit: %v", err)
	}

	fmt.Printf("## Trade Summary (last %d trades)\n\n", len(entries))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Trades\tWins\tLosses\tErrors\tWinRate\tAvgWin\tAvgLoss\tExpectancy\tAvgHold\t")
	fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%.2f%%\t%.2f%%\t%.2f%%\t%.2f%%\t%s\t\n",
		metrics.TotalTrades,
		metrics.WinningTrades,
		metrics.LosingTrades,
		metrics.ErroredTrades,
		metrics.WinRate*100,
		metrics.AverageWin,
		metrics.AverageLoss,
		metrics.Expectancy,
		metrics.AverageHoldingTime.Round(time.Second),
	)
	w.Flush()

	fmt.Println("\n## Close Reasons")
	for reason, count := range metrics.CloseReasons {
		fmt.Printf("  %-8s %d\n", reason, count)
	}

	fmt.Println("\n## Monthly Returns")
	for _, mr := range metrics.GetMonthlyReturns() {
		fmt.Printf("  %s  %+.2f%%\n", mr.Month.Format("2006-01"), mr.Return)
	}

	fmt.Printf("\nTotal profit across all closed trades: %+.2f%%\n", totalProfit)
}
