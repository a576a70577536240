package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/username/orphanrun/pkg/feed"
	"github.com/username/orphanrun/pkg/spi/csvfile"
)

var (
	importCSV     string
	importReplace bool
	exportCSV     string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load a blocks CSV into the configured redis or postgres store",
	Long: `import reads a blocks CSV and stores its records. A (height, chain) pair
that is already stored keeps its first record, so re-importing a grown file
only adds the new rows.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if importCSV == "" {
			return errors.New("--csv is required")
		}
		ctx := contextOf(cmd)

		f, err := csvfile.New(importCSV, logger).Fetch(ctx)
		if err != nil {
			return err
		}
		snap := feed.Parse(f.Header, f.Rows)

		st, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		if importReplace {
			if err := st.Clear(ctx); err != nil {
				return err
			}
			logger.Info("cleared store before import")
		}
		n, err := st.SaveRecords(ctx, snap.Records)
		if err != nil {
			return err
		}
		logger.Info("import finished",
			zap.String("csv", importCSV),
			zap.Int("rows", snap.RowsSeen),
			zap.Int("dropped", snap.Dropped),
			zap.Int("stored", n))
		fmt.Fprintf(cmd.OutOrStdout(), "stored %d of %d records from %s\n", n, len(snap.Records), importCSV)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the records of the configured store to a blocks CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportCSV == "" {
			return errors.New("--csv is required")
		}
		st, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		records, err := st.LoadRecords(contextOf(cmd))
		if err != nil {
			return err
		}
		if err := csvfile.WriteRecords(exportCSV, records); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d records to %s\n", len(records), exportCSV)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importCSV, "csv", "", "blocks CSV to import")
	importCmd.Flags().BoolVar(&importReplace, "replace", false, "delete stored records first")
	exportCmd.Flags().StringVar(&exportCSV, "csv", "", "destination CSV")
}
