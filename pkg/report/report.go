// Package report renders debts as an XLSX workbook.
package report

import (
	"fmt"
	"io"

	"github.com/mcclellann/finanzas/pkg/models"
	"github.com/xuri/excelize/v2"
)

const (
	ActiveSheet  = "Deudas"
	SettledSheet = "Saldadas"
)

var (
	activeHeader = []any{
		"ID", "Entidad", "Deuda total", "Saldo pendiente", "Valor cuota",
		"Cuotas", "Cuotas pagadas", "Total pagado", "Fecha inicio", "En mora",
	}
	settledHeader = []any{
		"ID", "Entidad", "Deuda total", "Valor cuota", "Cuotas", "Cuotas pagadas",
		"Total pagado", "Sobrepago", "Fecha inicio", "Saldada",
	}
)

// WriteDebts writes a workbook with one sheet for active debts and one for
// the settled archive.
func WriteDebts(w io.Writer, active []*models.Debt, settled []*models.SettledDebt) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ActiveSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SettledSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	rows := make([][]any, 0, len(active))
	for _, d := range active {
		rows = append(rows, []any{
			d.ID.String(), d.Entity, d.TotalDebt.InexactFloat64(), d.RemainingBalance.InexactFloat64(),
			d.InstallmentValue.InexactFloat64(), d.InstallmentCount, d.InstallmentsPaid,
			d.TotalPaid.InexactFloat64(), d.StartDate.String(), yesNo(d.IsLate),
		})
	}
	if err := writeSheet(f, ActiveSheet, activeHeader, rows, bold); err != nil {
		return err
	}

	rows = make([][]any, 0, len(settled))
	for _, sd := range settled {
		d := sd.Debt
		rows = append(rows, []any{
			sd.DebtID.String(), d.Entity, d.TotalDebt.InexactFloat64(), d.InstallmentValue.InexactFloat64(),
			d.InstallmentCount, d.InstallmentsPaid, d.TotalPaid.InexactFloat64(),
			sd.Overpaid.InexactFloat64(), d.StartDate.String(), sd.SettledAt.Format("2006-01-02"),
		})
	}
	if err := writeSheet(f, SettledSheet, settledHeader, rows, bold); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, header []any, rows [][]any, headerStyle int) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "Sí"
	}
	return "No"
}
