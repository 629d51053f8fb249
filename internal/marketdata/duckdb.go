package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/saidsurucu/borsago/internal/logger"
	"github.com/saidsurucu/borsago/internal/types"
	"github.com/saidsurucu/borsago/pkg/errors"
)

// requiredColumns are the columns a history file must expose. A source
// missing any of them is rejected at Initialize time, before any simulation
// starts.
var requiredColumns = []string{"time", "open", "high", "low", "close", "volume"}

// DuckDBProvider serves OHLCV history out of CSV or Parquet files through an
// in-memory DuckDB view.
type DuckDBProvider struct {
	db        *sql.DB
	logger    *logger.Logger
	sq        squirrel.StatementBuilderType
	hasSymbol bool
}

// NewDuckDBProvider creates a provider backed by an in-memory DuckDB
// database. Call Initialize with a data file before requesting history.
func NewDuckDBProvider(log *logger.Logger) (*DuckDBProvider, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to open duckdb", err)
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &DuckDBProvider{
		db:        db,
		logger:    log,
		sq:        squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		hasSymbol: false,
	}, nil
}

// Initialize creates the market_data view over the given CSV or Parquet file
// and validates its schema.
func (d *DuckDBProvider) Initialize(path string) error {
	d.logger.Debug("Initializing DuckDB history provider", zap.String("path", path))

	// First drop the view if it exists
	if _, err := d.db.Exec(`DROP VIEW IF EXISTS market_data;`); err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to drop existing view", err)
	}

	var reader string

	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		reader = "read_parquet"
	case ".csv":
		reader = "read_csv_auto"
	default:
		return errors.Newf(errors.ErrCodeInvalidParameter, "unsupported data file extension: %s", filepath.Ext(path))
	}

	// Using raw SQL as squirrel doesn't support CREATE VIEW.
	query := fmt.Sprintf(`CREATE VIEW market_data AS SELECT * FROM %s('%s');`, reader, path)
	if _, err := d.db.Exec(query); err != nil {
		return errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to create view over %s", path)
	}

	return d.checkSchema()
}

// checkSchema validates the market_data view against requiredColumns and
// records whether a symbol column is present for filtering.
func (d *DuckDBProvider) checkSchema() error {
	rows, err := d.db.Query(`SELECT column_name FROM information_schema.columns WHERE table_name = 'market_data'`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to inspect schema", err)
	}
	defer rows.Close()

	present := make(map[string]bool)

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan column name", err)
		}

		present[strings.ToLower(name)] = true
	}

	if err := rows.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to iterate schema rows", err)
	}

	for _, col := range requiredColumns {
		if !present[col] {
			return errors.Newf(errors.ErrCodeMissingColumn, "data source is missing required column %q", col)
		}
	}

	d.hasSymbol = present["symbol"]

	return nil
}

// GetHistory implements HistoryProvider. The period window is anchored at the
// newest timestamp in the source when no explicit end is given.
func (d *DuckDBProvider) GetHistory(
	ctx context.Context,
	symbol string,
	period types.Period,
	interval types.Interval,
	start optional.Option[time.Time],
	end optional.Option[time.Time],
) ([]types.Bar, error) {
	if !period.IsValid() {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "invalid period %q", period)
	}

	if !interval.IsValid() {
		return nil, errors.Newf(errors.ErrCodeInvalidInterval, "invalid interval %q", interval)
	}

	endTime, err := d.resolveEnd(ctx, end)
	if err != nil {
		return nil, err
	}

	startTime := start
	if startTime.IsNone() {
		startTime = period.Start(endTime)
	}

	query := d.sq.
		Select("time", "open", "high", "low", "close", "volume").
		From("market_data").
		Where(squirrel.LtOrEq{"time": endTime}).
		OrderBy("time ASC")

	if startTime.IsSome() {
		query = query.Where(squirrel.GtOrEq{"time": startTime.Unwrap()})
	}

	if d.hasSymbol && symbol != "" {
		query = query.Where(squirrel.Eq{"symbol": symbol})
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build history query", err)
	}

	rows, err := d.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query history", err)
	}
	defer rows.Close()

	var bars []types.Bar

	for rows.Next() {
		var bar types.Bar
		if err := rows.Scan(&bar.Time, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to scan bar", err)
		}

		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to iterate history rows", err)
	}

	if len(bars) == 0 {
		return nil, errors.Newf(errors.ErrCodeNoDataFound, "no history for symbol %q (period %s, interval %s)", symbol, period, interval)
	}

	return bars, nil
}

// resolveEnd returns the explicit end time or the newest timestamp in the
// source.
func (d *DuckDBProvider) resolveEnd(ctx context.Context, end optional.Option[time.Time]) (time.Time, error) {
	if end.IsSome() {
		return end.Unwrap(), nil
	}

	var maxTime sql.NullTime

	row := d.db.QueryRowContext(ctx, `SELECT max(time) FROM market_data`)
	if err := row.Scan(&maxTime); err != nil {
		return time.Time{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to resolve end time", err)
	}

	if !maxTime.Valid {
		return time.Time{}, errors.New(errors.ErrCodeNoDataFound, "data source is empty")
	}

	return maxTime.Time, nil
}

// Close releases the underlying database handle.
func (d *DuckDBProvider) Close() error {
	return d.db.Close()
}
