// Package report renders the trial balance as a spreadsheet.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/tbledger/apiserver/types"
)

const (
	SheetName   = "Trial Balance"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var header = []any{"Name", "Number", "Opening Balance", "Activity", "Closing Balance"}

// WriteTrialBalance writes accounts as an xlsx workbook with one header row
// followed by one row per account, then a totals row.
func WriteTrialBalance(w io.Writer, accounts []types.Account) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	if err := setRow(f, 1, header); err != nil {
		return err
	}

	var opening, activity, closing int
	for i, account := range accounts {
		row := []any{account.Name, account.Number, account.OpeningBalance, account.Activity, account.ClosingBalance}
		if err := setRow(f, i+2, row); err != nil {
			return err
		}
		opening += account.OpeningBalance
		activity += account.Activity
		closing += account.ClosingBalance
	}

	if err := setRow(f, len(accounts)+2, []any{"Total", nil, opening, activity, closing}); err != nil {
		return err
	}

	if err := f.SetColWidth(SheetName, "A", "A", 32); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}
