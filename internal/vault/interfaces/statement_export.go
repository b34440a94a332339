package interfaces

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"cosmossdk.io/math"
	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"tranche-vault/internal/vault/application"
	vault "tranche-vault/internal/vault/domain"
)

const dateLayout = "2006-01-02 15:04"

// StatementSource is the read side of a vault engine.
type StatementSource interface {
	AssetClass() string
	Position(holder string) application.Position
	PreviewRedeem(shares math.Uint) (math.Uint, error)
	RequestsByOwner(owner string) []vault.Request
}

// Statement is a holder's position and redemption history in one vault.
type Statement struct {
	AssetClass  string
	Owner       string
	GeneratedAt time.Time
	Decimals    int32
	Position    application.Position
	Value       math.Uint
	Requests    []vault.Request
}

// BuildStatement collects the statement for owner at now.
func BuildStatement(source StatementSource, owner string, decimals int32, now time.Time) (Statement, error) {
	if source == nil {
		return Statement{}, errors.New("statement: nil source")
	}
	position := source.Position(owner)
	value, err := source.PreviewRedeem(position.Balance)
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		AssetClass:  source.AssetClass(),
		Owner:       owner,
		GeneratedAt: now.UTC(),
		Decimals:    decimals,
		Position:    position,
		Value:       value,
		Requests:    source.RequestsByOwner(owner),
	}, nil
}

// FormatUnits renders a base-unit amount with decimals fractional digits.
func FormatUnits(amount math.Uint, decimals int32) string {
	if amount == (math.Uint{}) {
		amount = math.ZeroUint()
	}
	if decimals <= 0 {
		return amount.String()
	}
	return decimal.NewFromBigInt(amount.BigInt(), -decimals).StringFixed(decimals)
}

func (s Statement) units(amount math.Uint) string {
	return FormatUnits(amount, s.Decimals)
}

// BuildStatementPDF renders the statement as a single-page PDF.
func BuildStatementPDF(stmt Statement) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Vault Statement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Asset class: %s", stmt.AssetClass))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Holder: %s", stmt.Owner))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", stmt.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.Cell(0, 6, fmt.Sprintf("Shares: %s", stmt.units(stmt.Position.Balance)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Unlocked shares: %s", stmt.units(stmt.Position.Unlocked)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Pending redemption shares: %s", stmt.units(stmt.Position.Committed)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Estimated value: %s", stmt.units(stmt.Value)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Unlocks", "1", 0, "C", false, 0, "")
	pdf.CellFormat(60, 6, "Shares", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, tranche := range stmt.Position.Tranches {
		if tranche.Shares.IsZero() {
			continue
		}
		pdf.CellFormat(60, 6, tranche.UnlockAt.UTC().Format(dateLayout), "1", 0, "C", false, 0, "")
		pdf.CellFormat(60, 6, stmt.units(tranche.Shares), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	if len(stmt.Requests) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(15, 6, "ID", "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, "Requested", "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, "Settles", "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, "Shares", "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, "Penalty", "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, "Status", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 10)
		for _, request := range stmt.Requests {
			pdf.CellFormat(15, 6, fmt.Sprintf("%d", request.ID), "1", 0, "C", false, 0, "")
			pdf.CellFormat(40, 6, request.RequestTime.UTC().Format(dateLayout), "1", 0, "C", false, 0, "")
			pdf.CellFormat(40, 6, request.SettlementDate.UTC().Format(dateLayout), "1", 0, "C", false, 0, "")
			pdf.CellFormat(30, 6, stmt.units(request.Shares), "1", 0, "R", false, 0, "")
			pdf.CellFormat(30, 6, stmt.units(request.Penalty), "1", 0, "R", false, 0, "")
			pdf.CellFormat(25, 6, string(request.Status()), "1", 0, "C", false, 0, "")
			pdf.Ln(-1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildStatementXLSX renders the statement as a workbook with summary, tranches and requests sheets.
func BuildStatementXLSX(stmt Statement) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	tranchesSheet := "tranches"
	requestsSheet := "requests"
	f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(tranchesSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(requestsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Vault Statement")
	_ = f.SetCellValue(summarySheet, "A3", "Asset class")
	_ = f.SetCellValue(summarySheet, "B3", stmt.AssetClass)
	_ = f.SetCellValue(summarySheet, "A4", "Holder")
	_ = f.SetCellValue(summarySheet, "B4", stmt.Owner)
	_ = f.SetCellValue(summarySheet, "A5", "Generated")
	_ = f.SetCellValue(summarySheet, "B5", stmt.GeneratedAt.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A6", "Shares")
	_ = f.SetCellValue(summarySheet, "B6", stmt.units(stmt.Position.Balance))
	_ = f.SetCellValue(summarySheet, "A7", "Unlocked shares")
	_ = f.SetCellValue(summarySheet, "B7", stmt.units(stmt.Position.Unlocked))
	_ = f.SetCellValue(summarySheet, "A8", "Pending redemption shares")
	_ = f.SetCellValue(summarySheet, "B8", stmt.units(stmt.Position.Committed))
	_ = f.SetCellValue(summarySheet, "A9", "Estimated value")
	_ = f.SetCellValue(summarySheet, "B9", stmt.units(stmt.Value))

	_ = f.SetCellValue(tranchesSheet, "A1", "Unlocks")
	_ = f.SetCellValue(tranchesSheet, "B1", "Shares")
	row := 2
	for _, tranche := range stmt.Position.Tranches {
		if tranche.Shares.IsZero() {
			continue
		}
		_ = f.SetCellValue(tranchesSheet, fmt.Sprintf("A%d", row), tranche.UnlockAt.UTC().Format(time.RFC3339))
		_ = f.SetCellValue(tranchesSheet, fmt.Sprintf("B%d", row), stmt.units(tranche.Shares))
		row++
	}

	_ = f.SetCellValue(requestsSheet, "A1", "ID")
	_ = f.SetCellValue(requestsSheet, "B1", "Requested")
	_ = f.SetCellValue(requestsSheet, "C1", "Settles")
	_ = f.SetCellValue(requestsSheet, "D1", "Receiver")
	_ = f.SetCellValue(requestsSheet, "E1", "Shares")
	_ = f.SetCellValue(requestsSheet, "F1", "Penalty")
	_ = f.SetCellValue(requestsSheet, "G1", "Status")
	for i, request := range stmt.Requests {
		row := i + 2
		_ = f.SetCellValue(requestsSheet, fmt.Sprintf("A%d", row), request.ID)
		_ = f.SetCellValue(requestsSheet, fmt.Sprintf("B%d", row), request.RequestTime.UTC().Format(time.RFC3339))
		_ = f.SetCellValue(requestsSheet, fmt.Sprintf("C%d", row), request.SettlementDate.UTC().Format(time.RFC3339))
		_ = f.SetCellValue(requestsSheet, fmt.Sprintf("D%d", row), request.Receiver)
		_ = f.SetCellValue(requestsSheet, fmt.Sprintf("E%d", row), stmt.units(request.Shares))
		_ = f.SetCellValue(requestsSheet, fmt.Sprintf("F%d", row), stmt.units(request.Penalty))
		_ = f.SetCellValue(requestsSheet, fmt.Sprintf("G%d", row), string(request.Status()))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
