package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/PedroDircksen/Lighthouse/internal/sheets"
)

var importRange string

func init() {
	importCmd.Flags().StringVar(&importRange, "range", "", "Sheet range to read, e.g. 'Clientes!A1:D'")
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Read client rows from the configured spreadsheet",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		src, err := sheets.New(sheets.Config{
			APIKey:        cfg.Sheets.APIKey,
			SpreadsheetID: cfg.Sheets.SpreadsheetID,
		})
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if importRange == "" {
			names, err := src.SheetNames(ctx)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		}

		rows, err := src.FetchAll(ctx, importRange)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				return err
			}
		}
		return nil
	},
}
