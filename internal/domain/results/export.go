package results

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/bebra552/TgGroopSoft/internal/domain/members"
	"github.com/bebra552/TgGroopSoft/internal/infra/apptime"
	"github.com/bebra552/TgGroopSoft/internal/infra/logger"
	"github.com/bebra552/TgGroopSoft/internal/infra/metrics"
	"github.com/bebra552/TgGroopSoft/internal/infra/storage"
)

// Format — формат файла выгрузки.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// SheetName — лист с участниками в XLSX.
const SheetName = "Members"

const fileNamePrefix = "telegram_members_extended_"

// DefaultFileName — "telegram_members_extended_YYYYmmdd_HHMMSS.<ext>".
func DefaultFileName(now time.Time, f Format) string {
	return fileNamePrefix + apptime.FileStamp(now) + "." + string(f)
}

// FormatOf определяет формат по расширению; всё, кроме .xlsx, — CSV.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return FormatXLSX
	}
	return FormatCSV
}

// ErrUnsafePath — имя файла выводит за пределы каталога выгрузки.
var ErrUnsafePath = errors.New("file name must stay inside the save directory")

// CheckFileName пропускает только то, что ResolvePath положит в saveDir:
// пустую строку, "csv"/"xlsx" или голое имя файла без каталогов.
func CheckFileName(in string) error {
	in = strings.TrimSpace(in)
	if in == "" {
		return nil
	}
	if filepath.IsAbs(in) || strings.ContainsAny(in, `/\`) || in == "." || in == ".." {
		return fmt.Errorf("%w: %q", ErrUnsafePath, in)
	}
	return nil
}

// ResolvePath превращает пользовательский ввод в путь файла:
// пусто → saveDir/<имя по умолчанию>.csv, "xlsx"/"csv" → имя по умолчанию
// нужного формата, каталог → файл по умолчанию в нём, относительный путь
// без каталога — внутри saveDir.
func ResolvePath(saveDir, in string, now time.Time) string {
	in = strings.TrimSpace(in)
	switch strings.ToLower(in) {
	case "":
		return filepath.Join(saveDir, DefaultFileName(now, FormatCSV))
	case "csv", "xlsx":
		return filepath.Join(saveDir, DefaultFileName(now, Format(strings.ToLower(in))))
	}
	if strings.HasSuffix(in, "/") || strings.HasSuffix(in, string(filepath.Separator)) {
		return filepath.Join(in, DefaultFileName(now, FormatCSV))
	}
	if !filepath.IsAbs(in) && filepath.Dir(in) == "." {
		return filepath.Join(saveDir, in)
	}
	return in
}

// WriteCSV пишет заголовок и строки в UTF-8 с CRLF-переводами строк.
func (s *Sink) WriteCSV(w io.Writer) error {
	return writeCSV(w, s.Records())
}

func writeCSV(w io.Writer, recs []members.Record) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	if err := cw.Write(members.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range recs {
		if err := cw.Write(r.Fields()); err != nil {
			return fmt.Errorf("write csv row %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX пишет книгу с листом SheetName.
func (s *Sink) WriteXLSX(w io.Writer) error {
	f, err := buildWorkbook(s.Records())
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func buildWorkbook(recs []members.Record) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(members.Columns))
	for i, c := range members.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write xlsx header: %w", err)
	}

	for i, r := range recs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		fields := r.Fields()
		row := make([]any, len(fields))
		for j, v := range fields {
			row[j] = v
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write xlsx row %d: %w", i+2, err)
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(members.Columns))
	if err == nil {
		_ = f.SetColWidth(SheetName, "A", lastCol, 18)
	}
	return f, nil
}

// Save атомарно сохраняет набор в path; формат — по расширению.
func (s *Sink) Save(path string) (Format, error) {
	if s.Len() == 0 {
		return "", ErrEmpty
	}
	format := FormatOf(path)

	var write func(io.Writer) error
	switch format {
	case FormatXLSX:
		write = s.WriteXLSX
	default:
		write = s.WriteCSV
	}
	if err := storage.AtomicWrite(path, storage.ExportFilePerm, write); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}

	metrics.ExportsTotal.WithLabelValues(string(format)).Inc()
	logger.Info("results saved",
		zap.String("path", path),
		zap.String("format", string(format)),
		zap.Int("records", s.Len()),
	)
	return format, nil
}
