// Package report renders the manual list of a period into a spreadsheet and
// mails it.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/email"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/model"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var Header = []string{"Navn", "CPR", "Aftaletype", "Beskrivelse"}

type Store interface {
	Query(ctx context.Context, p model.PeriodWindow) ([]model.ManualListEntry, error)
}

type Distributor interface {
	Send(ctx context.Context, msg email.Message) error
}

type Config struct {
	TempDir    string
	Recipients []string
	Body       string
}

type Generator struct {
	store  Store
	dist   Distributor
	cfg    Config
	logger *slog.Logger
}

// Result describes the report that was sent.
type Result struct {
	FileName string
	Subject  string
	Rows     int
}

func NewGenerator(store Store, dist Distributor, logger *slog.Logger, cfg Config) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{store: store, dist: dist, cfg: cfg, logger: logger}
}

func FileName(p model.PeriodWindow) string {
	start, end := p.ISO()
	return fmt.Sprintf("Ikke meddelte aftaler - Manuelliste %s_%s.xlsx", start, end)
}

func Subject(p model.PeriodWindow) string {
	start, end := p.Danish()
	return fmt.Sprintf("Manuel liste for perioden %s-%s", start, end)
}

// Generate builds and sends the report for p. A period without entries
// still yields a header-only sheet.
func (g *Generator) Generate(ctx context.Context, p model.PeriodWindow) (Result, error) {
	if len(g.cfg.Recipients) == 0 {
		return Result{}, errors.New("report: no recipients configured")
	}
	start, end := p.ISO()
	g.logger.Info("creating manual list report", "period_start", start, "period_end", end)

	if err := ClearDir(g.cfg.TempDir, g.logger); err != nil {
		return Result{}, fmt.Errorf("clear temp dir: %w", err)
	}
	defer func() {
		if err := ClearDir(g.cfg.TempDir, g.logger); err != nil {
			g.logger.Warn("clearing temp dir after report failed", "err", err)
		}
	}()

	entries, err := g.store.Query(ctx, p)
	if err != nil {
		return Result{}, fmt.Errorf("query manual list: %w", err)
	}

	if err := os.MkdirAll(g.cfg.TempDir, 0o750); err != nil {
		return Result{}, err
	}
	name := FileName(p)
	path := filepath.Join(g.cfg.TempDir, name)
	if err := writeSheet(path, entries); err != nil {
		return Result{}, fmt.Errorf("write sheet: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, err
	}
	rows, err := countDataRows(data)
	if err != nil {
		return Result{}, fmt.Errorf("read back sheet: %w", err)
	}

	res := Result{FileName: name, Subject: Subject(p), Rows: rows}
	err = g.dist.Send(ctx, email.Message{
		To:      g.cfg.Recipients,
		Subject: res.Subject,
		Body:    g.cfg.Body,
		HTML:    true,
		Attachments: []email.Attachment{{
			FileName:    name,
			ContentType: xlsxContentType,
			Data:        data,
		}},
	})
	if err != nil {
		return Result{}, fmt.Errorf("send report: %w", err)
	}

	g.logger.Info("manual list sent", "rows", rows, "recipients", g.cfg.Recipients, "file", name)
	return res, nil
}

// writeSheet writes the header as an ordinary first row, so it carries the
// same plain formatting as the data below it.
func writeSheet(path string, entries []model.ManualListEntry) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, e := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{e.Name, e.NationalID, e.AppointmentType, e.Reason}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

func countDataRows(data []byte) (int, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return len(rows) - 1, nil
}

// ClearDir removes everything inside dir. A missing dir is not an error.
func ClearDir(dir string, logger *slog.Logger) error {
	if dir == "" {
		return errors.New("temp dir not configured")
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		logger.Info("temp dir not empty, deleting files", "dir", dir, "count", len(entries))
	}
	for _, e := range entries {
		logger.Info("deleting temp file", "file", e.Name())
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
