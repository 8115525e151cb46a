// Package export serializes scan results for download, currently as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vvarelai/coinscan/pkg/models"
	"github.com/vvarelai/coinscan/pkg/utils"
)

// csvHeader matches the dashboard table columns.
var csvHeader = []string{
	"Name",
	"Symbol",
	"CoinGecko Price (USD)",
	"24h Change (%)",
	"Binance Status",
	"Binance Price (USDT)",
	"Binance Volume (USDT)",
}

// WriteCSV writes the formatted table rows as CSV, header first. Formatted
// cells go out verbatim so the file matches what the dashboard shows.
func WriteCSV(w io.Writer, rows []models.TableRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.Name,
			row.Symbol,
			row.MarketPrice,
			row.ChangePct,
			row.ExchangeStatus,
			row.ExchangePrice,
			row.ExchangeVolume,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row for %s: %w", row.Symbol, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Filename returns the timestamped CSV filename for a scan result.
func Filename(result *models.ScanResult) string {
	return "top_10_gainers_" + utils.FileStamp(result.FetchedAt) + ".csv"
}

// SaveCSV writes the result's rows to a timestamped file in dir and returns
// the full path.
func SaveCSV(dir string, result *models.ScanResult) (string, error) {
	path := filepath.Join(dir, Filename(result))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	if err := WriteCSV(f, result.Rows); err != nil {
		return "", err
	}
	return path, nil
}
