package transfer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/sysmetic/backend/internal/contracts"
)

// Input feed columns. strategyId is optional when the caller supplies one.
const (
	colStrategyID        = "strategyId"
	colDate              = "date"
	colDailyProfitLoss   = "dailyProfitLoss"
	colDepositWithdrawal = "depositWithdrawal"
)

// ReadInputs parses an input feed CSV:
//
//	date,dailyProfitLoss,depositWithdrawal[,strategyId]
//
// strategyID is used for rows without a strategyId column. Column order is
// free; names match case-insensitively.
func ReadInputs(r io.Reader, strategyID int64) ([]contracts.DailyInput, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{colDate, colDailyProfitLoss, colDepositWithdrawal} {
		if _, ok := idx[strings.ToLower(required)]; !ok {
			return nil, fmt.Errorf("missing column %q: %w", required, contracts.ErrInvalidInput)
		}
	}
	idCol, hasID := idx[strings.ToLower(colStrategyID)]
	if !hasID && strategyID <= 0 {
		return nil, fmt.Errorf("no strategyId column and no strategy given: %w", contracts.ErrInvalidInput)
	}

	var inputs []contracts.DailyInput
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		field := func(name string) string {
			return strings.TrimSpace(record[idx[strings.ToLower(name)]])
		}

		in := contracts.DailyInput{StrategyID: strategyID}
		if hasID {
			id, err := strconv.ParseInt(strings.TrimSpace(record[idCol]), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: strategyId: %w", line, contracts.ErrInvalidInput)
			}
			in.StrategyID = id
		}

		if in.Date, err = time.Parse(contracts.DateLayout, field(colDate)); err != nil {
			return nil, fmt.Errorf("line %d: date %q: %w", line, field(colDate), contracts.ErrInvalidInput)
		}
		if in.DailyProfitLoss, err = parseAmount(field(colDailyProfitLoss)); err != nil {
			return nil, fmt.Errorf("line %d: dailyProfitLoss: %w", line, contracts.ErrInvalidInput)
		}
		if in.DepositWithdrawal, err = parseAmount(field(colDepositWithdrawal)); err != nil {
			return nil, fmt.Errorf("line %d: depositWithdrawal: %w", line, contracts.ErrInvalidInput)
		}

		inputs = append(inputs, in)
	}

	return inputs, nil
}

// parseAmount accepts plain or thousands-separated numbers; empty is zero
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// WriteInputs writes an input feed CSV that ReadInputs accepts
func WriteInputs(w io.Writer, inputs []contracts.DailyInput) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{colStrategyID, colDate, colDailyProfitLoss, colDepositWithdrawal}); err != nil {
		return err
	}
	for _, in := range inputs {
		if err := cw.Write([]string{
			strconv.FormatInt(in.StrategyID, 10),
			in.Date.Format(contracts.DateLayout),
			in.DailyProfitLoss.String(),
			in.DepositWithdrawal.String(),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type column[T any] struct {
	name  string
	value func(T) string
}

func d(v decimal.Decimal) string { return v.String() }
func n(v int) string             { return strconv.Itoa(v) }

// ledgerColumns is the export contract: names and order of ledger fields
var ledgerColumns = []column[*contracts.LedgerRow]{
	{"strategyId", func(r *contracts.LedgerRow) string { return strconv.FormatInt(r.StrategyID, 10) }},
	{"date", func(r *contracts.LedgerRow) string { return r.Date.Format(contracts.DateLayout) }},
	{"dailyProfitLoss", func(r *contracts.LedgerRow) string { return d(r.DailyProfitLoss) }},
	{"depositWithdrawal", func(r *contracts.LedgerRow) string { return d(r.DepositWithdrawal) }},
	{"principal", func(r *contracts.LedgerRow) string { return d(r.Principal) }},
	{"balance", func(r *contracts.LedgerRow) string { return d(r.Balance) }},
	{"referencePrice", func(r *contracts.LedgerRow) string { return d(r.ReferencePrice) }},
	{"cumulativeProfitLoss", func(r *contracts.LedgerRow) string { return d(r.CumulativeProfitLoss) }},
	{"cumulativeProfitLossRate", func(r *contracts.LedgerRow) string { return d(r.CumulativeProfitLossRate) }},
	{"maxCumulativeProfitLoss", func(r *contracts.LedgerRow) string { return d(r.MaxCumulativeProfitLoss) }},
	{"peak", func(r *contracts.LedgerRow) string { return d(r.Peak) }},
	{"peakRate", func(r *contracts.LedgerRow) string { return d(r.PeakRate) }},
	{"currentDrawdownAmount", func(r *contracts.LedgerRow) string { return d(r.CurrentDrawdownAmount) }},
	{"currentDrawdownRate", func(r *contracts.LedgerRow) string { return d(r.CurrentDrawdownRate) }},
	{"maxDrawdownAmount", func(r *contracts.LedgerRow) string { return d(r.MaxDrawdownAmount) }},
	{"maxDrawdownRate", func(r *contracts.LedgerRow) string { return d(r.MaxDrawdownRate) }},
	{"tradingDays", func(r *contracts.LedgerRow) string { return n(r.TradingDays) }},
	{"totalProfitDays", func(r *contracts.LedgerRow) string { return n(r.TotalProfitDays) }},
	{"totalLossDays", func(r *contracts.LedgerRow) string { return n(r.TotalLossDays) }},
	{"totalProfit", func(r *contracts.LedgerRow) string { return d(r.TotalProfit) }},
	{"totalLoss", func(r *contracts.LedgerRow) string { return d(r.TotalLoss) }},
	{"averageProfit", func(r *contracts.LedgerRow) string { return d(r.AverageProfit) }},
	{"averageLoss", func(r *contracts.LedgerRow) string { return d(r.AverageLoss) }},
	{"winRate", func(r *contracts.LedgerRow) string { return d(r.WinRate) }},
	{"profitFactor", func(r *contracts.LedgerRow) string { return d(r.ProfitFactor) }},
	{"roa", func(r *contracts.LedgerRow) string { return d(r.ROA) }},
	{"dailyPlRate", func(r *contracts.LedgerRow) string { return d(r.DailyPLRate) }},
	{"maxDailyProfit", func(r *contracts.LedgerRow) string { return d(r.MaxDailyProfit) }},
	{"maxDailyProfitRate", func(r *contracts.LedgerRow) string { return d(r.MaxDailyProfitRate) }},
	{"maxDailyLoss", func(r *contracts.LedgerRow) string { return d(r.MaxDailyLoss) }},
	{"maxDailyLossRate", func(r *contracts.LedgerRow) string { return d(r.MaxDailyLossRate) }},
	{"currentConsecutivePlDays", func(r *contracts.LedgerRow) string { return n(r.CurrentConsecutivePLDays) }},
	{"maxConsecutiveProfitDays", func(r *contracts.LedgerRow) string { return n(r.MaxConsecutiveProfitDays) }},
	{"maxConsecutiveLossDays", func(r *contracts.LedgerRow) string { return n(r.MaxConsecutiveLossDays) }},
	{"coefficientOfVariation", func(r *contracts.LedgerRow) string { return d(r.CoefficientOfVariation) }},
	{"sharpRatio", func(r *contracts.LedgerRow) string { return d(r.SharpRatio) }},
	{"kpRatio", func(r *contracts.LedgerRow) string { return d(r.KPRatio) }},
	{"smScore", func(r *contracts.LedgerRow) string { return d(r.SMScore) }},
	{"daysSincePeak", func(r *contracts.LedgerRow) string { return n(r.DaysSincePeak) }},
	{"recentOneYearReturn", func(r *contracts.LedgerRow) string { return d(r.RecentOneYearReturn) }},
	{"strategyOperationDays", func(r *contracts.LedgerRow) string { return n(r.StrategyOperationDays) }},
	{"cumulativeDepositAmount", func(r *contracts.LedgerRow) string { return d(r.CumulativeDepositAmount) }},
	{"cumulativeWithdrawAmount", func(r *contracts.LedgerRow) string { return d(r.CumulativeWithdrawAmount) }},
	{"cumulativeDepWdPrice", func(r *contracts.LedgerRow) string { return d(r.CumulativeDepWdPrice) }},
}

var monthlyColumns = []column[*contracts.MonthlySummaryRow]{
	{"strategyId", func(m *contracts.MonthlySummaryRow) string { return strconv.FormatInt(m.StrategyID, 10) }},
	{"year", func(m *contracts.MonthlySummaryRow) string { return n(m.Year) }},
	{"month", func(m *contracts.MonthlySummaryRow) string { return n(m.Month) }},
	{"averagePrincipal", func(m *contracts.MonthlySummaryRow) string { return d(m.AveragePrincipal) }},
	{"averageBalance", func(m *contracts.MonthlySummaryRow) string { return d(m.AverageBalance) }},
	{"depositWithdrawal", func(m *contracts.MonthlySummaryRow) string { return d(m.DepositWithdrawal) }},
	{"profitLoss", func(m *contracts.MonthlySummaryRow) string { return d(m.ProfitLoss) }},
	{"monthlyReturn", func(m *contracts.MonthlySummaryRow) string { return d(m.MonthlyReturn) }},
	{"cumulativeProfitLoss", func(m *contracts.MonthlySummaryRow) string { return d(m.CumulativeProfitLoss) }},
	{"cumulativeReturn", func(m *contracts.MonthlySummaryRow) string { return d(m.CumulativeReturn) }},
}

func writeTable[T any](w io.Writer, cols []column[T], items []T) error {
	cw := csv.NewWriter(w)

	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.name
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(cols))
	for _, item := range items {
		for i, c := range cols {
			record[i] = c.value(item)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteLedger exports ledger rows with their field names as header
func WriteLedger(w io.Writer, rows []*contracts.LedgerRow) error {
	return writeTable(w, ledgerColumns, rows)
}

// WriteMonthly exports monthly summaries with their field names as header
func WriteMonthly(w io.Writer, summaries []*contracts.MonthlySummaryRow) error {
	return writeTable(w, monthlyColumns, summaries)
}

// LedgerHeader returns the exported ledger column names in order
func LedgerHeader() []string {
	names := make([]string, len(ledgerColumns))
	for i, c := range ledgerColumns {
		names[i] = c.name
	}
	return names
}
