package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dentalclinic/records/internal/config"
	"github.com/dentalclinic/records/internal/domain/search"
	"github.com/dentalclinic/records/internal/domain/visit"
)

func exportCmd() *cobra.Command {
	var field, value, mode, out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write matching visits to an .xlsx file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := newLogger(cfg.Env, cfg.LogLevel)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.close()

			svc := visit.NewService(st.repo, st.shape, logger, nil)
			n, err := runExport(ctx, search.NewResolver(svc, search.Mode(cfg.SearchMode), logger, nil), field, value, mode, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d row(s) to %s\n", n, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&field, "field", "name", "Field to filter on (name, surname, dental_number, diagnosis, icd_10, type_of_visit, date)")
	cmd.Flags().StringVar(&value, "value", "", "Value to match")
	cmd.Flags().StringVar(&mode, "mode", string(search.ModeCollapsed), "Row mode: collapsed or exploded")
	cmd.Flags().StringVar(&out, "out", search.ExportFilename, "Output file")
	return cmd
}

// runExport resolves the filter and writes the workbook to path. It returns
// the number of data rows written.
func runExport(ctx context.Context, resolver *search.Resolver, field, value, modeName, path string) (int, error) {
	sel, err := search.ParseSelector(field)
	if err != nil {
		return 0, err
	}
	mode, err := search.ParseMode(modeName)
	if err != nil {
		return 0, err
	}
	table, err := resolver.Export(ctx, sel, value, mode, nil)
	if err != nil {
		return 0, err
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	if err := table.WriteXLSX(f); err != nil {
		f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", path, err)
	}
	return table.Len(), nil
}
