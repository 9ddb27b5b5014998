package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/opscrm/opscrm/internal/shared"
)

// Worksheet names of the payment export.
const (
	LaborSheet        = "Реестр выплат (трудовые)"
	SelfEmployedSheet = "Самозанятые (ГПХ)"
	// XLSXContentType is the media type of the export.
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

const moneyFormat = `#,##0.00 "₽"`

var (
	laborHeaders = []any{"№", "ФИО", "ИНН", "Банк", "БИК", "Р/С", "Сумма", "Назначение платежа"}
	seHeaders    = []any{"№", "ФИО", "ИНН", "Номер ГПХ", "Банк", "Р/С", "Сумма", "Назначение"}
	laborWidths  = []float64{5, 30, 15, 20, 12, 25, 15, 40}
	seWidths     = []float64{5, 30, 15, 20, 20, 25, 15, 40}
)

type exportStyles struct {
	title, subtitle, header, money, total, totalMoney int
}

func newExportStyles(f *excelize.File) (exportStyles, error) {
	numFmt := moneyFormat
	defs := []*excelize.Style{
		{Font: &excelize.Font{Bold: true, Size: 14}},
		{Font: &excelize.Font{Bold: true, Size: 12}},
		{
			Font:   &excelize.Font{Bold: true, Size: 11},
			Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D5E8F0"}},
			Border: []excelize.Border{{Type: "bottom", Color: "000000", Style: 1}},
		},
		{CustomNumFmt: &numFmt, Alignment: &excelize.Alignment{Horizontal: "right"}},
		{
			Font: &excelize.Font{Bold: true, Size: 12},
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"FFF2CC"}},
		},
		{
			Font:         &excelize.Font{Bold: true, Size: 12},
			Fill:         excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"FFF2CC"}},
			CustomNumFmt: &numFmt,
		},
	}
	ids := make([]int, len(defs))
	for i, def := range defs {
		id, err := f.NewStyle(def)
		if err != nil {
			return exportStyles{}, err
		}
		ids[i] = id
	}
	return exportStyles{title: ids[0], subtitle: ids[1], header: ids[2], money: ids[3], total: ids[4], totalMoney: ids[5]}, nil
}

// sheetWriter appends rows to one worksheet.
type sheetWriter struct {
	f      *excelize.File
	name   string
	styles exportStyles
	row    int
	err    error
}

func (w *sheetWriter) cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func (w *sheetWriter) banner(text string, style int) {
	if w.err != nil {
		return
	}
	w.row++
	from, to := w.cell(1, w.row), w.cell(8, w.row)
	if w.err = w.f.MergeCell(w.name, from, to); w.err != nil {
		return
	}
	if w.err = w.f.SetCellValue(w.name, from, text); w.err != nil {
		return
	}
	w.err = w.f.SetCellStyle(w.name, from, from, style)
}

func (w *sheetWriter) values(vals []any, style int) {
	if w.err != nil {
		return
	}
	w.row++
	start := w.cell(1, w.row)
	if w.err = w.f.SetSheetRow(w.name, start, &vals); w.err != nil {
		return
	}
	if style > 0 {
		w.err = w.f.SetCellStyle(w.name, start, w.cell(len(vals), w.row), style)
	}
}

func (w *sheetWriter) moneyCell(style int) {
	if w.err != nil {
		return
	}
	c := w.cell(7, w.row)
	w.err = w.f.SetCellStyle(w.name, c, c, style)
}

func (w *sheetWriter) widths(widths []float64) {
	for i, width := range widths {
		if w.err != nil {
			return
		}
		col, _ := excelize.ColumnNumberToName(i + 1)
		w.err = w.f.SetColWidth(w.name, col, col, width)
	}
}

// ExportInput is everything the workbook renders.
type ExportInput struct {
	OrgName     string
	Sheet       *SheetHeader
	Rows        []ExportRow
	GeneratedAt time.Time
}

// BuildWorkbook renders the payment registry as an xlsx workbook: a labor
// worksheet always, and a self-employed worksheet when such rows exist.
func BuildWorkbook(in ExportInput) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", LaborSheet); err != nil {
		_ = f.Close()
		return nil, err
	}
	_ = f.SetDocProps(&excelize.DocProperties{Creator: in.OrgName, Title: "Реестр выплат", Created: in.GeneratedAt.Format(time.RFC3339)})
	styles, err := newExportStyles(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	var labor, selfEmployed []ExportRow
	for _, r := range in.Rows {
		if r.SelfEmployed {
			selfEmployed = append(selfEmployed, r)
		} else {
			labor = append(labor, r)
		}
	}

	title := "Реестр выплат"
	period := ""
	purpose := "Заработная плата"
	if in.Sheet != nil {
		title = in.Sheet.Title
		period = shared.RUDate(in.Sheet.PeriodFrom) + " — " + shared.RUDate(in.Sheet.PeriodTo)
		purpose = fmt.Sprintf("Заработная плата за %s %d", strings.ToLower(shared.MonthName(in.Sheet.PeriodFrom.Month())), in.Sheet.PeriodFrom.Year())
	}

	w := &sheetWriter{f: f, name: LaborSheet, styles: styles}
	w.banner("РЕЕСТР НА ВЫПЛАТУ ЗАРАБОТНОЙ ПЛАТЫ", styles.title)
	w.banner(in.OrgName, styles.subtitle)
	w.banner("Ведомость: "+title, 0)
	w.banner(fmt.Sprintf("Период: %s    Дата формирования: %s", period, shared.RUDate(in.GeneratedAt)), 0)
	w.values(laborHeaders, styles.header)
	w.widths(laborWidths)
	var totalLabor float64
	for i, r := range labor {
		w.values([]any{i + 1, r.EmployeeName, r.INN, r.BankName, r.BIK, r.AccountNumber, r.Amount, purpose}, 0)
		w.moneyCell(styles.money)
		totalLabor += r.Amount
	}
	w.values([]any{"", "ИТОГО", "", "", "", "", totalLabor, ""}, styles.total)
	w.moneyCell(styles.totalMoney)
	if w.err != nil {
		_ = f.Close()
		return nil, w.err
	}

	if len(selfEmployed) > 0 {
		if _, err := f.NewSheet(SelfEmployedSheet); err != nil {
			_ = f.Close()
			return nil, err
		}
		w = &sheetWriter{f: f, name: SelfEmployedSheet, styles: styles}
		w.banner("РЕЕСТР НА ВЫПЛАТУ ПО ДОГОВОРАМ ГПХ (самозанятые)", styles.title)
		w.values(seHeaders, styles.header)
		w.widths(seWidths)
		var totalSE float64
		for i, r := range selfEmployed {
			contractPurpose := "Оплата по ГПХ"
			if r.ContractNumber != "" {
				contractPurpose += " №" + r.ContractNumber
			}
			w.values([]any{i + 1, r.EmployeeName, r.INN, r.ContractNumber, r.BankName, r.AccountNumber, r.Amount, contractPurpose}, 0)
			w.moneyCell(styles.money)
			totalSE += r.Amount
		}
		w.values([]any{"", "ИТОГО", "", "", "", "", totalSE, ""}, styles.total)
		w.moneyCell(styles.totalMoney)
		if w.err != nil {
			_ = f.Close()
			return nil, w.err
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

// ExportFilename names the attachment for a sheet, or "all" for the open registry.
func ExportFilename(sheetID int64, at time.Time) string {
	scope := "all"
	if sheetID > 0 {
		scope = fmt.Sprintf("%d", sheetID)
	}
	return fmt.Sprintf("payroll_%s_%d.xlsx", scope, at.UnixMilli())
}
