package overrides

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aryanmotgi/Arcus-Sheets/internal/destination"
	pkgerrors "github.com/aryanmotgi/Arcus-Sheets/pkg/errors"
	"github.com/xuri/excelize/v2"
)

const backupSheet = "overrides"

// Backup writes every override record to w as an .xlsx workbook.
func (s *Service) Backup(ctx context.Context, w io.Writer) (int, error) {
	records, err := s.store.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	f, err := newBackupWorkbook(records)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write override backup")
	}
	return len(records), nil
}

// BackupToDir saves a timestamped backup under dir and returns its path.
func (s *Service) BackupToDir(ctx context.Context, dir string, now time.Time) (string, int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create backup dir")
	}
	records, err := s.store.ListAll(ctx)
	if err != nil {
		return "", 0, err
	}
	f, err := newBackupWorkbook(records)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	path := filepath.Join(dir, fmt.Sprintf("overrides-%s.xlsx", now.UTC().Format("20060102T150405Z")))
	if err := f.SaveAs(path); err != nil {
		return "", 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save override backup")
	}
	return path, len(records), nil
}

// Restore re-upserts every record of a backup workbook. Records already
// matching the store only have their timestamps refreshed.
func (s *Service) Restore(ctx context.Context, r io.Reader) (int, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "open override backup")
	}
	defer f.Close()

	rows, err := f.GetRows(backupSheet)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read override backup")
	}
	if len(rows) == 0 {
		return 0, nil
	}
	idx := destination.HeaderIndex(Schema(backupSheet), rows[0])
	restored := 0
	for _, row := range rows[1:] {
		rec, ok, _ := decodeRecord(idx, row)
		if !ok {
			continue
		}
		if _, err := s.Upsert(ctx, rec.OrderID, rec.OrderNumber, PatchFrom(rec)); err != nil {
			return restored, err
		}
		restored++
	}
	return restored, nil
}

func newBackupWorkbook(records []Record) (*excelize.File, error) {
	f := excelize.NewFile()
	index, err := f.NewSheet(backupSheet)
	if err != nil {
		f.Close()
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create backup sheet")
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "drop default sheet")
	}

	for i, row := range append([][]string{Columns}, recordRows(records)...) {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				f.Close()
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "address backup cell")
			}
			if err := f.SetCellStr(backupSheet, cell, v); err != nil {
				f.Close()
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write backup cell")
			}
		}
	}
	return f, nil
}

func recordRows(records []Record) [][]string {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = r.Cells()
	}
	return rows
}
