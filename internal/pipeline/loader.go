package pipeline

import (
	"bytes"
	"context"
	"strings"
	"unicode"

	"go.uber.org/zap"
	xunicode "golang.org/x/text/encoding/unicode"

	"github.com/ajitpratap0/flightprep/pkg/acquire"
	"github.com/ajitpratap0/flightprep/pkg/artifact"
	"github.com/ajitpratap0/flightprep/pkg/errors"
	"github.com/ajitpratap0/flightprep/pkg/merge"
	"github.com/ajitpratap0/flightprep/pkg/metrics"
	"github.com/ajitpratap0/flightprep/pkg/optimize"
	"github.com/ajitpratap0/flightprep/pkg/rawio"
	"github.com/ajitpratap0/flightprep/pkg/table"
)

// Partition ids of the auxiliary reference tables
const (
	AirportsPartition       = "airports"
	CarriersPartition       = "carriers"
	PlaneDataPartition      = "plane-data"
	AirportDetailsPartition = "airports_details"
)

// AirportDetailsColumns names the columns of the headerless OpenFlights
// airports.dat file.
var AirportDetailsColumns = []string{
	"airportID", "name", "city", "country", "iata", "icao", "lat", "lon",
	"altitude", "timezone", "dst", "tz", "type", "source",
}

// Selection picks which yearly partitions Load merges
type Selection struct {
	all   bool
	years map[string]struct{}
}

// AllYears selects every partition whose id is purely numeric
func AllYears() Selection {
	return Selection{all: true}
}

// Years selects the named partitions; names without an artifact are ignored
func Years(years ...string) Selection {
	s := Selection{years: make(map[string]struct{}, len(years))}
	for _, y := range years {
		s.years[strings.TrimSpace(y)] = struct{}{}
	}
	return s
}

// Validate rejects a selection naming no years
func (s Selection) Validate() error {
	if !s.all && len(s.years) == 0 {
		return errors.New(errors.ErrorTypeValidation, "must have at least one year specified")
	}
	return nil
}

func (s Selection) matches(id string) bool {
	if s.all {
		return isNumeric(id)
	}
	_, ok := s.years[id]
	return ok
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Fetcher retrieves a remote file
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Loader is the query interface over the artifact cache
type Loader struct {
	cache     *artifact.Cache
	merger    *merge.Concatenator
	logger    *zap.Logger
	dir       string
	preparer  *acquire.Preparer
	converter *Converter

	detailsURL string
	fetcher    Fetcher
	optimizer  *optimize.Optimizer
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithPreparation makes Load bring dir up to date first: the preparer
// downloads or extracts the raw data and the converter turns it into
// artifacts. Either may be nil.
func WithPreparation(dir string, preparer *acquire.Preparer, converter *Converter) LoaderOption {
	return func(l *Loader) {
		l.dir = dir
		l.preparer = preparer
		l.converter = converter
	}
}

// WithAirportDetails enables AirportDetails, fetching url on a cache miss
func WithAirportDetails(url string, fetcher Fetcher, optimizer *optimize.Optimizer) LoaderOption {
	return func(l *Loader) {
		l.detailsURL = url
		l.fetcher = fetcher
		l.optimizer = optimizer
	}
}

// WithLoaderLogger sets the loader logger
func WithLoaderLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader creates a loader
func NewLoader(cache *artifact.Cache, merger *merge.Concatenator, opts ...LoaderOption) *Loader {
	l := &Loader{cache: cache, merger: merger, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Prepare acquires and converts raw data as configured by WithPreparation.
// It returns the conversion report, which is nil when no converter is set.
func (l *Loader) Prepare(ctx context.Context) (*Report, error) {
	if l.preparer != nil {
		if _, err := l.preparer.Prepare(ctx, l.dir); err != nil {
			return nil, err
		}
	}
	if l.converter == nil {
		return nil, nil
	}
	return l.converter.Run(ctx)
}

// Load prepares the data, then reads the selected partitions in id order,
// projected to columns (nil means all), and merges them into one table.
func (l *Loader) Load(ctx context.Context, sel Selection, columns []string) (*table.Table, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	if _, err := l.Prepare(ctx); err != nil {
		return nil, err
	}

	ids, err := l.cache.List()
	if err != nil {
		return nil, err
	}
	var selected []string
	for _, id := range ids {
		if sel.matches(id) {
			selected = append(selected, id)
		}
	}
	if len(selected) == 0 {
		return nil, errors.New(errors.ErrorTypeNotFound, "no partitions match the selection")
	}

	tables := make([]*table.Table, 0, len(selected))
	for _, id := range selected {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := l.cache.ReadColumns(id, columns)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}

	timer := metrics.NewTimer("merge")
	merged, err := l.merger.Concatenate(tables)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("partitions merged",
		zap.Strings("partitions", selected),
		zap.Int("rows", merged.NumRows()),
		zap.Duration("duration", timer.ObserveStage()))
	return merged, nil
}

// Airports returns the airports reference table
func (l *Loader) Airports() (*table.Table, error) {
	return l.cache.Read(AirportsPartition)
}

// Carriers returns the carriers reference table
func (l *Loader) Carriers() (*table.Table, error) {
	return l.cache.Read(CarriersPartition)
}

// PlaneData returns the plane data reference table
func (l *Loader) PlaneData() (*table.Table, error) {
	return l.cache.Read(PlaneDataPartition)
}

// AirportDetails returns the OpenFlights airport table, downloading,
// optimizing and caching it on first use.
func (l *Loader) AirportDetails(ctx context.Context) (*table.Table, error) {
	if l.cache.Exists(AirportDetailsPartition) {
		return l.cache.Read(AirportDetailsPartition)
	}
	if l.fetcher == nil || l.detailsURL == "" {
		return nil, errors.New(errors.ErrorTypeNotFound, "airport details are not cached and no source is configured")
	}

	l.logger.Info("fetching airport details", zap.String("url", l.detailsURL))
	body, err := l.fetcher.Fetch(ctx, l.detailsURL)
	if err != nil {
		return nil, err
	}
	reader := rawio.NewReader(rawio.Options{
		ColumnNames: AirportDetailsColumns,
		Encoding:    xunicode.UTF8,
	}, l.logger)
	t, err := reader.Read(ctx, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.TypeOf(err), "parse airport details")
	}
	if l.optimizer != nil {
		if err := l.optimizer.Optimize(t); err != nil {
			return nil, err
		}
	}
	if err := l.cache.Write(AirportDetailsPartition, t); err != nil {
		return nil, err
	}
	return t, nil
}
