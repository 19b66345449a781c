package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/flightprep/internal/pipeline"
	"github.com/ajitpratap0/flightprep/pkg/acquire"
	"github.com/ajitpratap0/flightprep/pkg/artifact"
	"github.com/ajitpratap0/flightprep/pkg/compression"
	"github.com/ajitpratap0/flightprep/pkg/config"
	"github.com/ajitpratap0/flightprep/pkg/errors"
	"github.com/ajitpratap0/flightprep/pkg/json"
	"github.com/ajitpratap0/flightprep/pkg/merge"
	"github.com/ajitpratap0/flightprep/pkg/optimize"
	"github.com/ajitpratap0/flightprep/pkg/rawio"
	"github.com/ajitpratap0/flightprep/pkg/table"
)

// app holds the wired components for one command invocation
type app struct {
	logger *zap.Logger
	cache  *artifact.Cache
	loader *pipeline.Loader
}

func newApp(cfg *config.Config, log *zap.Logger) (*app, error) {
	compCfg, err := cfg.Compression()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "artifact compression")
	}
	comp, err := compression.NewCompressor(compCfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "create artifact compressor")
	}
	cache, err := artifact.NewCache(cfg.ResolvedArtifactDir(),
		artifact.WithCompressor(comp),
		artifact.WithLogger(log.Named("artifact")))
	if err != nil {
		return nil, err
	}

	optimizer, err := optimize.New(cfg.Optimizer(), log.Named("optimize"))
	if err != nil {
		return nil, err
	}
	converter, err := pipeline.NewConverter(pipeline.ConverterConfig{
		DatasetsDir: cfg.DatasetsDir,
		Workers:     cfg.ResolvedWorkers(),
	}, cache, rawio.NewReader(rawio.Options{}, log.Named("rawio")), optimizer, log.Named("converter"))
	if err != nil {
		return nil, err
	}

	fetcher := acquire.NewFetcher(acquire.WithFetchLogger(log.Named("fetch")))
	var downloader acquire.Downloader
	if cfg.DatasetURL != "" {
		downloader = &acquire.HTTPDownloader{URL: cfg.DatasetURL, Fetcher: fetcher}
	}

	loader := pipeline.NewLoader(cache,
		merge.New(optimize.Threshold(cfg.Threshold), merge.WithLogger(log.Named("merge"))),
		pipeline.WithPreparation(cfg.DatasetsDir, acquire.NewPreparer(downloader, log.Named("acquire")), converter),
		pipeline.WithAirportDetails(cfg.AirportDetailsURL, fetcher, optimizer),
		pipeline.WithLoaderLogger(log.Named("loader")))

	return &app{logger: log, cache: cache, loader: loader}, nil
}

func (a *app) reference(ctx context.Context, name string) (*table.Table, error) {
	switch name {
	case pipeline.AirportsPartition:
		return a.loader.Airports()
	case pipeline.CarriersPartition:
		return a.loader.Carriers()
	case pipeline.PlaneDataPartition:
		return a.loader.PlaneData()
	case "airport-details", pipeline.AirportDetailsPartition:
		return a.loader.AirportDetails(ctx)
	}
	return nil, errors.Newf(errors.ErrorTypeValidation, "unknown reference table %q", name)
}

func writeRows(cmd *cobra.Command, t *table.Table, limit int, array bool) error {
	return encodeRows(cmd.OutOrStdout(), t, limit, array)
}

// encodeRows streams up to limit rows of t to w; limit <= 0 means all rows
func encodeRows(w io.Writer, t *table.Table, limit int, array bool) error {
	n := t.NumRows()
	if limit > 0 && limit < n {
		n = limit
	}
	enc := json.NewStreamingEncoder(w, array)
	for i := 0; i < n; i++ {
		row, err := t.Row(i)
		if err != nil {
			return err
		}
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return enc.Close()
}
