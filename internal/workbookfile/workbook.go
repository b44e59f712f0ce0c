// Package workbookfile implements the gateway's workbook interface against a
// local .xlsx file, so a deployment without the remote spreadsheet API keeps
// writing real cells that can later be opened or uploaded.
package workbookfile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/StepsArtworks/rollcall/internal/application"
	"github.com/StepsArtworks/rollcall/internal/gateway"
)

// Workbook is a file-backed implementation of gateway.Workbook. Access is
// serialized; excelize files are not safe for concurrent mutation.
type Workbook struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// Open returns a Workbook over the file at path, creating and seeding it with
// one worksheet per department when it does not exist yet.
func Open(path string, logger *slog.Logger) (*Workbook, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Workbook{path: path, logger: logger}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := w.create(); err != nil {
			return nil, err
		}
		logger.Info("created attendance workbook", "path", path)
	} else if err != nil {
		return nil, fmt.Errorf("workbookfile: stat %s: %w", path, err)
	}
	return w, nil
}

func (w *Workbook) create() error {
	file := excelize.NewFile()
	defer file.Close()

	for i, dept := range application.Departments() {
		sheet := string(dept)
		if i == 0 {
			if err := file.SetSheetName(file.GetSheetName(0), sheet); err != nil {
				return fmt.Errorf("workbookfile: rename initial sheet: %w", err)
			}
		} else {
			if _, err := file.NewSheet(sheet); err != nil {
				return fmt.Errorf("workbookfile: add sheet %s: %w", sheet, err)
			}
		}

		if err := file.SetCellStr(sheet, "A1", "ID"); err != nil {
			return err
		}
		if err := file.SetCellStr(sheet, "B1", "Name"); err != nil {
			return err
		}
		for row, employee := range gateway.MockRoster(dept) {
			if err := file.SetCellStr(sheet, fmt.Sprintf("A%d", row+2), employee.ID); err != nil {
				return err
			}
			if err := file.SetCellStr(sheet, fmt.Sprintf("B%d", row+2), employee.Name); err != nil {
				return err
			}
		}
	}

	if err := file.SaveAs(w.path); err != nil {
		return fmt.Errorf("workbookfile: save %s: %w", w.path, err)
	}
	return nil
}

// ListWorksheets returns the workbook's sheet names.
func (w *Workbook) ListWorksheets(ctx context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	file, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("workbookfile: open %s: %w", w.path, err)
	}
	defer file.Close()

	return file.GetSheetList(), nil
}

// UsedRange reads the worksheet's populated rows.
func (w *Workbook) UsedRange(ctx context.Context, worksheet string) ([][]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	file, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("workbookfile: open %s: %w", w.path, err)
	}
	defer file.Close()

	rows, err := file.GetRows(worksheet)
	if err != nil {
		return nil, fmt.Errorf("workbookfile: read %s: %w", worksheet, err)
	}
	return rows, nil
}

// WriteRange writes a rectangle of values starting at the range's top-left
// cell.
func (w *Workbook) WriteRange(ctx context.Context, worksheet, address string, values [][]string) error {
	start := address
	if idx := strings.IndexByte(address, ':'); idx >= 0 {
		start = address[:idx]
	}
	column, row, err := excelize.CellNameToCoordinates(start)
	if err != nil {
		return fmt.Errorf("workbookfile: bad address %q: %w", address, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	file, err := excelize.OpenFile(w.path)
	if err != nil {
		return fmt.Errorf("workbookfile: open %s: %w", w.path, err)
	}
	defer file.Close()

	for dy, rowValues := range values {
		for dx, value := range rowValues {
			cell, err := excelize.CoordinatesToCellName(column+dx, row+dy)
			if err != nil {
				return fmt.Errorf("workbookfile: cell name: %w", err)
			}
			if err := file.SetCellStr(worksheet, cell, value); err != nil {
				return fmt.Errorf("workbookfile: write %s!%s: %w", worksheet, cell, err)
			}
		}
	}

	if err := file.Save(); err != nil {
		return fmt.Errorf("workbookfile: save %s: %w", w.path, err)
	}
	return nil
}
