package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/nemonet1337/zaiReconcile/internal/config"
	"github.com/nemonet1337/zaiReconcile/pkg/reconcile"
	"github.com/nemonet1337/zaiReconcile/pkg/reconcile/storage"
)

type ctxKey string

const serviceKey ctxKey = "service"

// app holds the service shared by the subcommands
type app struct {
	service *reconcile.Service
	store   *storage.PostgreSQLStore
	logger  *zap.Logger
}

func newOrgFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "org",
		Usage:    "Organization ID",
		Required: true,
		EnvVars:  []string{"RECONCILE_ORG_ID"},
	}
}

func initService(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("設定読み込みに失敗しました: %w", err)
	}

	logger, err := cfg.Logging.BuildLogger()
	if err != nil {
		return err
	}

	store, err := storage.NewPostgreSQLStore(cfg.DSN(), storage.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return fmt.Errorf("データベース接続に失敗しました: %w", err)
	}

	a := &app{
		service: reconcile.NewService(store, nil, logger, cfg.ServiceConfig()),
		store:   store,
		logger:  logger,
	}
	c.Context = context.WithValue(c.Context, serviceKey, a)
	return nil
}

func closeService(c *cli.Context) error {
	if a, ok := c.Context.Value(serviceKey).(*app); ok && a != nil {
		_ = a.logger.Sync()
		return a.store.Close()
	}
	return nil
}

func fromContext(c *cli.Context) (*app, error) {
	a, ok := c.Context.Value(serviceKey).(*app)
	if !ok || a == nil {
		return nil, fmt.Errorf("サービスが初期化されていません")
	}
	return a, nil
}

// createFile opens an export file for writing
var createFile = func(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

func reportFlags() []cli.Flag {
	return []cli.Flag{
		newOrgFlag(),
		&cli.StringFlag{
			Name:  "type",
			Usage: "Report type",
			Value: string(reconcile.ReportDetailed),
		},
		&cli.StringFlag{Name: "count-id", Usage: "Restrict to a single count session"},
		&cli.StringFlag{Name: "team-id", Usage: "Restrict to a team, or unassigned"},
		&cli.Float64Flag{
			Name:  "threshold",
			Usage: "Variance threshold in percent for the summary report",
			Value: reconcile.DefaultVarianceThreshold,
		},
		&cli.BoolFlag{Name: "financials", Usage: "Include financial columns in the detailed report"},
		&cli.BoolFlag{Name: "stock-analysis", Usage: "Include stock analysis columns in the detailed report"},
		&cli.BoolFlag{Name: "include-voided", Usage: "Include voided sessions"},
		&cli.StringFlag{Name: "from", Usage: "First count date (YYYY-MM-DD)"},
		&cli.StringFlag{Name: "to", Usage: "Last count date (YYYY-MM-DD)"},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output directory, or - for stdout",
			Value:   ".",
			EnvVars: []string{"EXPORT_OUTPUT_DIR"},
		},
	}
}

func main() {
	cliApp := &cli.App{
		Name:  "reconcile-export",
		Usage: "Generate inventory reconciliation exports and daily metrics",
		Commands: []*cli.Command{
			{
				Name:   "report",
				Usage:  "Generate a CSV export (detailed, summary, exceptions, team-performance, financial-impact)",
				Flags:  reportFlags(),
				Before: initService,
				After:  closeService,
				Action: runReport,
			},
			{
				Name:  "daily",
				Usage: "Print the daily metrics of a date as JSON",
				Flags: []cli.Flag{
					newOrgFlag(),
					&cli.StringFlag{Name: "date", Usage: "Target date (YYYY-MM-DD)", Required: true},
					&cli.StringFlag{Name: "team-id", Usage: "Restrict to a team"},
					&cli.StringSliceFlag{Name: "session", Usage: "Selected session IDs, or COMBINE"},
					&cli.BoolFlag{Name: "include-voided", Usage: "Include voided sessions"},
					&cli.BoolFlag{Name: "counted-only", Usage: "List counted items only"},
				},
				Before: initService,
				After:  closeService,
				Action: runDaily,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runReport(c *cli.Context) error {
	a, err := fromContext(c)
	if err != nil {
		return err
	}

	req, err := exportRequest(c)
	if err != nil {
		return err
	}

	export, err := a.service.Export(c.Context, req)
	if err != nil {
		return err
	}

	path, err := writeExport(export, c.String("output"), os.Stdout)
	if err != nil {
		return err
	}
	if path == "" {
		return nil
	}

	a.logger.Info("エクスポートを出力しました",
		zap.String("path", path),
		zap.Int("rows", len(export.Rows)),
		zap.Int("critical_items", export.Metadata.CriticalItems),
	)
	return nil
}

// exportRequest builds the export request from the report flags
func exportRequest(c *cli.Context) (reconcile.ExportRequest, error) {
	from, err := parseDate(c.String("from"))
	if err != nil {
		return reconcile.ExportRequest{}, err
	}
	to, err := parseDate(c.String("to"))
	if err != nil {
		return reconcile.ExportRequest{}, err
	}
	if !to.IsZero() {
		to = to.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}

	threshold := c.Float64("threshold")
	return reconcile.ExportRequest{
		OrganizationID: c.String("org"),
		Range:          reconcile.DateRange{From: from, To: to},
		Options: reconcile.ExportOptions{
			Type:                 reconcile.ReportType(c.String("type")),
			CountID:              c.String("count-id"),
			TeamID:               c.String("team-id"),
			VarianceThreshold:    &threshold,
			IncludeFinancials:    c.Bool("financials"),
			IncludeStockAnalysis: c.Bool("stock-analysis"),
			IncludeVoided:        c.Bool("include-voided"),
		},
	}, nil
}

// writeExport writes the CSV into the output directory, or to stdout when output is "-".
// A partially written file is removed. The returned path is empty for stdout.
// CSVを出力（失敗時は書きかけのファイルを削除）
func writeExport(export *reconcile.Export, output string, stdout io.Writer) (string, error) {
	if output == "-" {
		return "", export.WriteCSV(stdout)
	}

	path := filepath.Join(output, export.Filename)
	f, err := createFile(path)
	if err != nil {
		return "", fmt.Errorf("出力ファイルの作成に失敗しました %s: %w", path, err)
	}

	writeErr := export.WriteCSV(f)
	closeErr := f.Close()
	if writeErr == nil && closeErr == nil {
		return path, nil
	}

	err = fmt.Errorf("CSV出力に失敗しました %s: %w", path, closeErr)
	if writeErr != nil {
		err = fmt.Errorf("CSV出力に失敗しました %s: %w", path, writeErr)
	}
	if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
		return "", errors.Join(err, fmt.Errorf("書きかけのファイルを削除できませんでした: %w", rmErr))
	}
	return "", err
}

func runDaily(c *cli.Context) error {
	a, err := fromContext(c)
	if err != nil {
		return err
	}

	date, err := parseDate(c.String("date"))
	if err != nil {
		return err
	}

	req := reconcile.DailyRequest{
		OrganizationID: c.String("org"),
		Date:           date,
		Selection:      c.StringSlice("session"),
		IncludeVoided:  c.Bool("include-voided"),
		CountedOnly:    c.Bool("counted-only"),
	}
	if teamID := c.String("team-id"); teamID != "" {
		req.TeamID = &teamID
	}

	result, err := a.service.DailyMetrics(c.Context, req)
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, result)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(reconcile.FileDateLayout, v, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("日付はYYYY-MM-DD形式で指定してください: %s", v)
	}
	return t, nil
}
