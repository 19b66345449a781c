// Package optimize rewrites a table into its most compact safe
// representation: narrowed numeric widths, categorical text, parsed
// timestamps and, for flight records, timestamps derived from HHMM fields.
package optimize

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/flightprep/pkg/errors"
	"github.com/ajitpratap0/flightprep/pkg/table"
)

// DefaultDatetimeLayouts are tried in order when parsing datetime features.
var DefaultDatetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	table.TimestampLayout,
	"2006-01-02",
	"01/02/2006 15:04",
	"01/02/2006",
}

// Config controls optimizer decisions
type Config struct {
	Threshold Threshold
	// DatetimeFeatures names text columns parsed as timestamps instead of
	// being considered for categorical encoding.
	DatetimeFeatures []string
	DatetimeLayouts  []string
}

// Optimizer applies per-column narrowing to tables. It holds no per-table
// state and is safe for concurrent use on distinct tables.
type Optimizer struct {
	threshold Threshold
	datetime  map[string]struct{}
	layouts   []string
	logger    *zap.Logger
}

// New creates an optimizer
func New(cfg Config, logger *zap.Logger) (*Optimizer, error) {
	if err := cfg.Threshold.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid optimizer config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	layouts := cfg.DatetimeLayouts
	if len(layouts) == 0 {
		layouts = DefaultDatetimeLayouts
	}
	datetime := make(map[string]struct{}, len(cfg.DatetimeFeatures))
	for _, name := range cfg.DatetimeFeatures {
		datetime[name] = struct{}{}
	}
	return &Optimizer{
		threshold: cfg.Threshold,
		datetime:  datetime,
		layouts:   layouts,
		logger:    logger,
	}, nil
}

// Threshold returns the configured categorical threshold
func (o *Optimizer) Threshold() Threshold { return o.threshold }

type options struct {
	flightTimes bool
}

// Option tunes a single Optimize call
type Option func(*options)

// WithFlightTimes enables derivation of Departure, CRSDeparture, Arrival and
// CRSArrival from the HHMM and date-part columns.
func WithFlightTimes() Option {
	return func(o *options) { o.flightTimes = true }
}

// Optimize rewrites t in place. Logical values are unchanged except for the
// flight-time pass, which replaces seven columns with four timestamps.
func (o *Optimizer) Optimize(t *table.Table, opts ...Option) error {
	var cfg options
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.flightTimes {
		nulls, err := deriveFlightTimes(t)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "flight time derivation failed")
		}
		for name, n := range nulls {
			if n > 0 {
				o.logger.Debug("null derived timestamps",
					zap.String("column", name),
					zap.Int("rows", n))
			}
		}
	}

	schema := table.Describe(t, o.datetime)
	for _, field := range schema.Fields {
		col, _ := t.Column(field.Name)
		next, err := o.optimizeColumn(field, col)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "optimize column").
				WithDetail("column", field.Name)
		}
		if next == col {
			continue
		}
		if err := t.Set(field.Name, next); err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "replace column")
		}
		o.logger.Debug("column optimized",
			zap.String("column", field.Name),
			zap.Stringer("from", col.Kind()),
			zap.Stringer("to", next.Kind()),
			zap.Int64("bytes_before", col.MemoryUsage()),
			zap.Int64("bytes_after", next.MemoryUsage()))
	}
	return nil
}

func (o *Optimizer) optimizeColumn(field table.Field, col table.Column) (table.Column, error) {
	switch c := col.(type) {
	case *table.IntColumn:
		if c.Len() == 0 {
			return c, nil
		}
		w := table.SmallestWidth(c.Min(), c.Max())
		if w == c.Width() {
			return c, nil
		}
		return c.Narrow(w)
	case *table.FloatColumn:
		if narrowed, ok := c.Narrow32(); ok {
			return narrowed, nil
		}
		return c, nil
	case *table.TextColumn:
		switch field.Role {
		case table.RoleTime:
			return o.parseTimes(c), nil
		case table.RoleCategoricalCandidate:
			if o.threshold.Allows(c.Distinct(), c.Len()) {
				return table.EncodeText(c), nil
			}
		}
		return c, nil
	default:
		// categorical, timestamp and list columns are already final
		return col, nil
	}
}

func (o *Optimizer) parseTimes(c *table.TextColumn) *table.TimestampColumn {
	seconds := make([]int64, c.Len())
	valid := make([]bool, c.Len())
	for i := 0; i < c.Len(); i++ {
		s, ok := c.Value(i)
		if !ok {
			continue
		}
		if ts, ok := o.parseTime(strings.TrimSpace(s)); ok {
			seconds[i] = ts.Unix()
			valid[i] = true
		}
	}
	return table.NewTimestampColumn(seconds, valid)
}

func (o *Optimizer) parseTime(s string) (time.Time, bool) {
	for _, layout := range o.layouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
