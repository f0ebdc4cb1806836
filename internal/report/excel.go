package report

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"konsinyasi-backend/internal/models"
)

const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	consignmentSheet = "Consignments"
	transactionSheet = "Transaction"
)

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) error {
	for i, v := range values {
		if d, ok := v.(decimal.Decimal); ok {
			v = d.InexactFloat64()
		}
		if err := f.SetCellValue(sheet, cell(i+1, row), v); err != nil {
			return err
		}
	}
	return nil
}

func newBook(sheet string) (*excelize.File, int, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	return f, bold, nil
}

// ConsignmentsWorkbook lists one row per consignment line. Consignments need
// Store and Items loaded.
func ConsignmentsWorkbook(list []models.Consignment) (*excelize.File, error) {
	f, bold, err := newBook(consignmentSheet)
	if err != nil {
		return nil, err
	}

	header := []any{"Code", "Store", "Consignment Date", "Pickup Date", "Status",
		"Product Code", "Product", "Price", "Qty", "Sold", "Returned", "Remaining"}
	if err := writeRow(f, consignmentSheet, 1, header...); err != nil {
		_ = f.Close()
		return nil, err
	}
	_ = f.SetCellStyle(consignmentSheet, "A1", cell(len(header), 1), bold)

	row := 2
	for _, c := range list {
		storeName := ""
		if c.Store != nil {
			storeName = c.Store.Name
		}
		for _, it := range c.Items {
			if err := writeRow(f, consignmentSheet, row,
				c.Code, storeName,
				c.ConsignmentDate.Format("2006-01-02"), c.PickupDate.Format("2006-01-02"),
				string(c.Status), it.Code, it.Name, it.Price,
				it.Qty, it.Sales, it.Returned, it.Remaining(),
			); err != nil {
				_ = f.Close()
				return nil, err
			}
			row++
		}
	}
	_ = f.SetColWidth(consignmentSheet, "A", "L", 16)
	return f, nil
}

// TransactionWorkbook is a printable receipt of one transaction. It needs
// Consignment.Store and Items.ProductItem loaded.
func TransactionWorkbook(t models.Transaction) (*excelize.File, error) {
	f, bold, err := newBook(transactionSheet)
	if err != nil {
		return nil, err
	}

	code, storeName := "", ""
	if t.Consignment != nil {
		code = t.Consignment.Code
		if t.Consignment.Store != nil {
			storeName = t.Consignment.Store.Name
		}
	}
	meta := [][]any{
		{"Transaction", fmt.Sprintf("#%d", t.ID)},
		{"Consignment", code},
		{"Store", storeName},
		{"Date", t.TransactionDate.Format("2006-01-02")},
		{"Notes", t.Notes},
	}
	for i, m := range meta {
		if err := writeRow(f, transactionSheet, i+1, m...); err != nil {
			_ = f.Close()
			return nil, err
		}
		_ = f.SetCellStyle(transactionSheet, cell(1, i+1), cell(1, i+1), bold)
	}

	headerRow := len(meta) + 2
	header := []any{"Code", "Product", "Unit Price", "Qty", "Sold", "Returned", "Subtotal"}
	if err := writeRow(f, transactionSheet, headerRow, header...); err != nil {
		_ = f.Close()
		return nil, err
	}
	_ = f.SetCellStyle(transactionSheet, cell(1, headerRow), cell(len(header), headerRow), bold)

	row := headerRow + 1
	for _, it := range t.Items {
		var lineCode, name string
		var qty int
		if it.ProductItem != nil {
			lineCode, name, qty = it.ProductItem.Code, it.ProductItem.Name, it.ProductItem.Qty
		}
		if err := writeRow(f, transactionSheet, row,
			lineCode, name, it.UnitPrice, qty, it.Sold, it.Returned, it.Subtotal(),
		); err != nil {
			_ = f.Close()
			return nil, err
		}
		row++
	}

	totals := t.Totals()
	if err := writeRow(f, transactionSheet, row, "Total", "", "", "", totals.TotalSold, totals.TotalReturned, totals.TotalAmount); err != nil {
		_ = f.Close()
		return nil, err
	}
	_ = f.SetCellStyle(transactionSheet, cell(1, row), cell(len(header), row), bold)
	_ = f.SetColWidth(transactionSheet, "A", "G", 16)
	return f, nil
}
