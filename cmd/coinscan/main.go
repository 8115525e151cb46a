// CoinScan — browser-free crypto gainers dashboard and CLI.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vvarelai/coinscan/api"
	"github.com/vvarelai/coinscan/internal/config"
	"github.com/vvarelai/coinscan/internal/exchange"
	"github.com/vvarelai/coinscan/internal/export"
	"github.com/vvarelai/coinscan/internal/logger"
	"github.com/vvarelai/coinscan/internal/scanner"
	"github.com/vvarelai/coinscan/pkg/models"
	"github.com/vvarelai/coinscan/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var (
	cfg *config.Config
	log *zap.Logger
)

func main() {
	// A .env file next to the binary supplies API keys in dev setups.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "coinscan",
	Short: "CoinScan — top crypto gainers with Binance availability and news",
	Long: `CoinScan fetches the top coins from CoinGecko, ranks the biggest
24h gainers above a volume floor, checks whether each one trades on
Binance, and optionally enriches the list with recent news.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		log, err = logger.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(newsCmd)
	rootCmd.AddCommand(pairsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("CoinScan %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Scan Command ---

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Rank the top 10 gainers and check Binance availability",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := scanner.New(cfg, log)
		result, err := runScan(cmd.Context(), s)
		if err != nil {
			return err
		}

		if withNews, _ := cmd.Flags().GetBool("news"); withNews {
			all, err := s.NewsForAll(cmd.Context())
			if err != nil {
				fmt.Fprintf(os.Stderr, "⚠️  news enrichment incomplete: %v\n", err)
			}
			printNews(result.Ranked, all)
		}

		if csvDir, _ := cmd.Flags().GetString("csv"); csvDir != "" {
			path, err := export.SaveCSV(csvDir, result)
			if err != nil {
				return err
			}
			fmt.Printf("\n💾 Saved %s\n", path)
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().Bool("news", false, "fetch recent news for each gainer")
	scanCmd.Flags().String("csv", "", "directory to save a timestamped CSV export")
}

// runScan executes the pipeline and prints the gainers table. A partial
// upstream fetch prints a warning but still shows what arrived.
func runScan(ctx context.Context, s *scanner.Scanner) (*models.ScanResult, error) {
	fmt.Println("🔍 Scanning markets...")
	result, err := s.Scan(ctx)
	if result == nil {
		return nil, err
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  partial market data: %v\n", err)
	}

	if len(result.Rows) == 0 {
		fmt.Println("No gainers matched the filters.")
		return result, nil
	}

	printTable(result)
	return result, nil
}

func printTable(result *models.ScanResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tNAME\tSYMBOL\tPRICE\t24H CHANGE\tBINANCE\tBINANCE PRICE\tBINANCE VOLUME")
	for i, row := range result.Rows {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i+1, row.Name, row.Symbol, row.MarketPrice, row.ChangePct,
			row.ExchangeStatus, row.ExchangePrice, row.ExchangeVolume)
	}
	w.Flush()
	fmt.Printf("\nas of %s\n", utils.FormatTimestampUTC(result.FetchedAt))
}

func printNews(ranked []models.RankedCoin, all map[string]models.NewsResult) {
	fmt.Println("\n📰 Latest News")
	for _, coin := range ranked {
		result, ok := all[coin.Name]
		if !ok {
			continue
		}
		fmt.Printf("\n%s:\n", coin.Name)
		switch {
		case len(result.Items) > 0:
			for _, item := range result.Items {
				fmt.Printf("  • %s (%s)\n    %s\n", item.Title, item.Source, item.URL)
			}
		case result.Message != "":
			fmt.Printf("  %s\n", result.Message)
		default:
			fmt.Printf("  ⚠️  %s\n", result.Error)
		}
	}
}

// --- News Command ---

var newsCmd = &cobra.Command{
	Use:   "news [coin-name]",
	Short: "Fetch recent news for the current gainers",
	Long: `Run a scan and fetch recent news for every ranked gainer, or for a
single coin by display name (e.g. "coinscan news Solana").`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := scanner.New(cfg, log)

		if market, _ := cmd.Flags().GetBool("market"); market {
			items, err := s.MarketHeadlines(cmd.Context(), 10)
			if err != nil {
				return err
			}
			fmt.Println("📰 Market Headlines")
			for _, item := range items {
				fmt.Printf("  • %s (%s)\n    %s\n", item.Title, item.Source, item.URL)
			}
			return nil
		}

		result, err := runScan(cmd.Context(), s)
		if err != nil {
			return err
		}

		if len(args) == 1 {
			coin, ok := s.RankedByName(args[0])
			if !ok {
				return fmt.Errorf("%q is not in the current top gainers", args[0])
			}
			printNews([]models.RankedCoin{coin}, map[string]models.NewsResult{
				coin.Name: s.NewsFor(cmd.Context(), coin),
			})
			return nil
		}

		all, err := s.NewsForAll(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  news enrichment incomplete: %v\n", err)
		}
		printNews(result.Ranked, all)
		return nil
	},
}

func init() {
	newsCmd.Flags().Bool("market", false, "show market-wide RSS headlines without scanning")
}

// --- Pairs Command ---

var pairsCmd = &cobra.Command{
	Use:   "pairs",
	Short: "Show the Binance tradable pair set for the quote asset",
	RunE: func(cmd *cobra.Command, args []string) error {
		pairsTTL := time.Duration(cfg.Exchange.PairsCacheTTLSec) * time.Second
		client := exchange.NewClient(cfg.Exchange.QuoteAsset, pairsTTL, log)
		pairs := client.FetchTradablePairs(cmd.Context())

		switch pairs.State {
		case models.PairsFetched:
			fmt.Printf("✅ %d %s pairs trading on Binance\n", pairs.Len(), client.QuoteAsset())
		case models.PairsFetchFailed:
			fmt.Println("❌ Binance pair list could not be fetched")
		default:
			fmt.Println("❌ Binance pair list was not fetched")
		}
		return nil
	},
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server and dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.API.Port = port
		}

		s := scanner.New(cfg, log)
		srv := api.NewServer(cfg, s, version, log)
		if noUI, _ := cmd.Flags().GetBool("no-ui"); noUI {
			srv.SetServeUI(false)
		}

		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		fmt.Printf("🌐 CoinScan dashboard on http://%s\n", addr)
		return srv.ListenAndServe(addr)
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "port override for the API server")
	serveCmd.Flags().Bool("no-ui", false, "disable the embedded web dashboard")
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration, API key status, and upstream reachability",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  CoinScan — Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:     %s (%s)\n", version, commit)
		fmt.Printf("  Time (UTC):  %s\n", utils.FormatTimestampUTC(utils.NowUTC()))
		fmt.Println()

		fmt.Println("  Configuration:")
		fmt.Printf("    Market:      %d pages × %d coins\n", cfg.Market.Pages, cfg.Market.PerPage)
		fmt.Printf("    Exchange:    Binance (%s pairs)\n", cfg.Exchange.QuoteAsset)
		fmt.Printf("    News:        %d items per coin\n", cfg.News.Count)
		fmt.Printf("    API Server:  %s:%d\n", cfg.API.Host, cfg.API.Port)
		fmt.Println()

		fmt.Println("  API Keys:")
		for _, k := range config.CheckAPIKeys(cfg) {
			status := "❌ not set"
			if k.IsSet {
				status = fmt.Sprintf("✅ set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Printf("    %-25s %s\n", k.Name+":", status)
		}
		fmt.Println()

		fmt.Println("  Upstreams:")
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		for _, u := range api.CheckUpstreams(ctx, api.DefaultStatusURLs) {
			status := "❌ unreachable"
			if u.Reachable {
				status = fmt.Sprintf("✅ reachable (%dms)", u.LatencyMS)
			}
			fmt.Printf("    %-25s %s\n", u.Name+":", status)
		}

		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}
