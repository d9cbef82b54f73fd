package export

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"
)

const sheet = "Sheet1"

// XLSXExporter writes snapshots as spreadsheet files: one timestamp column
// plus one column per channel, values rounded to whole units, gaps left as
// empty cells. Recent flushes go to the base directory, session flushes to
// a "full" subdirectory.
type XLSXExporter struct {
	dir string
	log *slog.Logger
}

func NewXLSX(dir string, log *slog.Logger) *XLSXExporter {
	if log == nil {
		log = slog.Default()
	}
	return &XLSXExporter{dir: dir, log: log}
}

func (x *XLSXExporter) Export(snap Snapshot) <-chan error {
	res := make(chan error, 1)
	go func() {
		defer close(res)
		path, err := x.write(snap)
		if err != nil {
			x.log.Error("export failed", "kind", snap.Kind, "error", err)
			res <- err
			return
		}
		x.log.Info("snapshot exported",
			"kind", snap.Kind, "rows", len(snap.Timestamps), "file", path)
		res <- nil
	}()
	return res
}

func (x *XLSXExporter) write(snap Snapshot) (string, error) {
	dir := x.dir
	if snap.Kind == KindSession {
		dir = filepath.Join(dir, "full")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetCellValue(sheet, "A1", "Timestamp"); err != nil {
		return "", err
	}
	for col, s := range snap.Series {
		cell, err := excelize.CoordinatesToCellName(col+2, 1)
		if err != nil {
			return "", err
		}
		if err := f.SetCellValue(sheet, cell, s.Name); err != nil {
			return "", err
		}
	}

	for row, ts := range snap.Timestamps {
		cell, err := excelize.CoordinatesToCellName(1, row+2)
		if err != nil {
			return "", err
		}
		if err := f.SetCellValue(sheet, cell, ts.Format("15:04:05")); err != nil {
			return "", err
		}
		for col, s := range snap.Series {
			if row >= len(s.Values) || !s.Values[row].OK {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+2, row+2)
			if err != nil {
				return "", err
			}
			if err := f.SetCellValue(sheet, cell, int(math.Round(s.Values[row].V))); err != nil {
				return "", err
			}
		}
	}

	name := fmt.Sprintf("%s_%s", time.Now().Format("2006-01-02_15-04-05"), snap.Session)
	if snap.Kind == KindSession {
		name += "_full"
	}
	path := filepath.Join(dir, name+".xlsx")
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	return path, nil
}
