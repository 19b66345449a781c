package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/ajitpratap0/flightprep/pkg/acquire"
	"github.com/ajitpratap0/flightprep/pkg/artifact"
	"github.com/ajitpratap0/flightprep/pkg/errors"
	"github.com/ajitpratap0/flightprep/pkg/merge"
	"github.com/ajitpratap0/flightprep/pkg/optimize"
	"github.com/ajitpratap0/flightprep/pkg/rawio"
	"github.com/ajitpratap0/flightprep/pkg/table"
	"github.com/ajitpratap0/flightprep/pkg/testutil"
)

type PipelineSuite struct {
	testutil.DatasetSuite
	logger    *zap.Logger
	cache     *artifact.Cache
	optimizer *optimize.Optimizer
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.DatasetSuite.SetupTest()
	s.logger = testutil.TestLogger(s.T())

	cache, err := artifact.NewCache(s.Dir(), artifact.WithLogger(s.logger))
	s.Require().NoError(err)
	s.cache = cache

	opt, err := optimize.New(optimize.Config{Threshold: optimize.DefaultThreshold}, s.logger)
	s.Require().NoError(err)
	s.optimizer = opt
}

func (s *PipelineSuite) converter(reader TableReader) *Converter {
	if reader == nil {
		reader = rawio.NewReader(rawio.Options{}, s.logger)
	}
	c, err := NewConverter(ConverterConfig{DatasetsDir: s.Dir(), Workers: 2}, s.cache, reader, s.optimizer, s.logger)
	s.Require().NoError(err)
	return c
}

func (s *PipelineSuite) loader(opts ...LoaderOption) *Loader {
	opts = append([]LoaderOption{
		WithPreparation(s.Dir(), acquire.NewPreparer(nil, s.logger), s.converter(nil)),
		WithLoaderLogger(s.logger),
	}, opts...)
	return NewLoader(s.cache, merge.New(optimize.DefaultThreshold, merge.WithLogger(s.logger)), opts...)
}

func (s *PipelineSuite) TestConvertAllPartitions() {
	s.Stage(testutil.Flights1987, testutil.Flights1988, testutil.Airports, testutil.Carriers)

	report, err := s.converter(nil).Run(s.Context())
	s.Require().NoError(err)
	s.Equal(4, report.Count(StatusConverted))
	s.NotEmpty(report.RunID)
	s.Equal(2, report.Workers)

	// Raw files are gone; one artifact per partition remains.
	s.Equal([]string{"1987.fpa", "1988.fpa", "airports.fpa", "carriers.fpa"}, s.Files())

	// Results follow discovery order.
	var order []string
	for _, r := range report.Results {
		order = append(order, r.Partition)
	}
	s.Equal([]string{"1987", "1988", "airports", "carriers"}, order)
	s.Greater(report.Results[0].BytesBefore, report.Results[0].BytesAfter)

	flights, err := s.cache.Read("1987")
	s.Require().NoError(err)
	for _, gone := range []string{"Year", "Month", "DayofMonth", "DepTime", "CRSDepTime", "ArrTime", "CRSArrTime"} {
		_, ok := flights.Column(gone)
		s.False(ok, gone)
	}

	carrier, _ := flights.Column("UniqueCarrier")
	s.Require().IsType(&table.CategoricalColumn{}, carrier)
	s.Equal([]string{"AA", "PS", "UA"}, carrier.(*table.CategoricalColumn).Categories())

	flightNum, _ := flights.Column("FlightNum")
	s.Equal(table.Uint16, flightNum.(*table.IntColumn).Width())

	// The cancelled flight has no departure.
	dep, _ := flights.Column("Departure")
	s.True(dep.IsNull(3))
	first, ok := dep.(*table.TimestampColumn).Value(0)
	s.True(ok)
	s.Equal(time.Date(1987, 10, 14, 7, 41, 0, 0, time.UTC), first)

	// 2430 wraps to 00:30 on the same day.
	arr, _ := flights.Column("Arrival")
	wrapped, ok := arr.(*table.TimestampColumn).Value(5)
	s.True(ok)
	s.Equal(time.Date(1987, 10, 21, 0, 30, 0, 0, time.UTC), wrapped)

	carriers, err := s.loaderWithoutPreparation().Carriers()
	s.Require().NoError(err)
	row, err := carriers.Row(4)
	s.Require().NoError(err)
	s.Equal("Compañía Test", row["Description"])
}

func (s *PipelineSuite) loaderWithoutPreparation() *Loader {
	return NewLoader(s.cache, merge.New(optimize.DefaultThreshold))
}

func (s *PipelineSuite) TestRerunIsIdempotent() {
	s.Stage(testutil.Flights1987, testutil.Carriers)
	_, err := s.converter(nil).Run(s.Context())
	s.Require().NoError(err)
	before, err := os.ReadFile(s.cache.Path("1987"))
	s.Require().NoError(err)

	// Raw files reappear, e.g. after re-extracting the archive.
	s.Stage(testutil.Flights1987, testutil.Carriers)
	report, err := s.converter(nil).Run(s.Context())
	s.Require().NoError(err)
	s.Equal(2, report.Count(StatusSkipped))
	s.Equal(0, report.Count(StatusConverted))

	after, err := os.ReadFile(s.cache.Path("1987"))
	s.Require().NoError(err)
	s.Equal(before, after)
	s.Contains(s.Files(), testutil.Flights1987)
}

func (s *PipelineSuite) TestPartialFailureIsRetried() {
	s.Stage(testutil.Flights1987)
	broken := testutil.WriteCSV(s.T(), s.Dir(), "1989.csv", "Year,Month", "1989,1", "1989,2,extra")

	report, err := s.converter(nil).Run(s.Context())
	s.Require().Error(err)
	s.Contains(err.Error(), "1989")
	s.True(errors.IsType(err, errors.ErrorTypeData))

	s.Equal(1, report.Count(StatusConverted))
	failed := report.Failed()
	s.Require().Len(failed, 1)
	s.Equal("1989", failed[0].Partition)

	// No artifact for the failure, and its raw file is untouched.
	s.False(s.cache.Exists("1989"))
	s.FileExists(broken)
	s.True(s.cache.Exists("1987"))

	testutil.WriteCSV(s.T(), s.Dir(), "1989.csv", "Year,Month", "1989,1", "1989,2")
	report, err = s.converter(nil).Run(s.Context())
	s.Require().NoError(err)
	s.Require().Len(report.Results, 1)
	s.Equal(StatusConverted, report.Results[0].Status)
	s.True(s.cache.Exists("1989"))
}

func (s *PipelineSuite) TestDuplicatePartitionIDs() {
	s.Stage(testutil.Flights1987)
	testutil.WriteCSV(s.T(), s.Dir(), "1987.csv", "Year", "1987")

	_, err := s.converter(nil).Run(s.Context())
	s.Require().Error(err)
	s.True(errors.IsType(err, errors.ErrorTypeConflict))
	s.False(s.cache.Exists("1987"))
}

func (s *PipelineSuite) TestCanceledRunDispatchesNothing() {
	s.Stage(testutil.Flights1987, testutil.Flights1988)
	ctx, cancel := context.WithCancel(s.Context())
	cancel()

	report, err := s.converter(nil).Run(ctx)
	s.Require().ErrorIs(err, context.Canceled)
	s.Equal(2, report.Count(StatusCanceled))
	s.Equal([]string{testutil.Flights1987, testutil.Flights1988}, s.Files())
}

type panickingReader struct{}

func (panickingReader) ReadFile(context.Context, string) (*table.Table, error) {
	panic("corrupt block")
}

func (s *PipelineSuite) TestWorkerPanicBecomesFailure() {
	s.Stage(testutil.Carriers)

	report, err := s.converter(panickingReader{}).Run(s.Context())
	s.Require().Error(err)
	s.True(errors.IsType(err, errors.ErrorTypeInternal))
	s.Equal(1, report.Count(StatusFailed))
	s.Contains(s.Files(), testutil.Carriers)
}

func (s *PipelineSuite) TestLoadMergesSelectedYears() {
	s.Stage(testutil.Flights1987, testutil.Flights1988, testutil.Airports)
	l := s.loader()

	all, err := l.Load(s.Context(), AllYears(), []string{"UniqueCarrier", "Departure", "TailNum"})
	s.Require().NoError(err)
	s.Equal(12, all.NumRows())
	s.Equal([]string{"UniqueCarrier", "Departure", "TailNum"}, all.Names())

	carrier, _ := all.Column("UniqueCarrier")
	s.Require().IsType(&table.CategoricalColumn{}, carrier)
	cat := carrier.(*table.CategoricalColumn)
	s.Equal([]string{"AA", "PS", "UA", "PI"}, cat.Categories())
	v, _ := cat.Value(0)
	s.Equal("PS", v)
	v, _ = cat.Value(6)
	s.Equal("PI", v)

	// 1987 has no tail numbers at all; 1988 does.
	tail, _ := all.Column("TailNum")
	s.True(tail.IsNull(0))
	got, ok := tail.Format(6)
	s.True(ok)
	s.Equal("N712SW", got)

	one, err := l.Load(s.Context(), Years("1988", "2042"), nil)
	s.Require().NoError(err)
	s.Equal(6, one.NumRows())
}

func (s *PipelineSuite) TestLoadErrors() {
	s.Stage(testutil.Flights1987, testutil.Airports)
	l := s.loader()

	_, err := l.Load(s.Context(), Years(), nil)
	s.True(errors.IsType(err, errors.ErrorTypeValidation))

	_, err = l.Load(s.Context(), Years("1950"), nil)
	s.True(errors.IsType(err, errors.ErrorTypeNotFound))

	_, err = l.Load(s.Context(), AllYears(), []string{"NoSuchColumn"})
	s.True(errors.IsType(err, errors.ErrorTypeNotFound))

	_, err = l.PlaneData()
	s.True(errors.IsType(err, errors.ErrorTypeNotFound))

	airports, err := l.Airports()
	s.Require().NoError(err)
	s.Equal(4, airports.NumRows())
}

func (s *PipelineSuite) TestLoadExtractsArchiveFirst() {
	archive := filepath.Join(s.Dir(), "dataverse_files.zip")
	f, err := os.Create(archive)
	s.Require().NoError(err)
	zw := zip.NewWriter(f)
	for _, name := range []string{testutil.Flights1988, testutil.Carriers} {
		w, err := zw.Create(name)
		s.Require().NoError(err)
		_, err = w.Write(testutil.Fixture(s.T(), name))
		s.Require().NoError(err)
	}
	s.Require().NoError(zw.Close())
	s.Require().NoError(f.Close())

	tbl, err := s.loader().Load(s.Context(), AllYears(), []string{"Origin"})
	s.Require().NoError(err)
	s.Equal(6, tbl.NumRows())
	s.Equal([]string{"1988.fpa", "carriers.fpa", "dataverse_files.zip"}, s.Files())
}

const openFlightsSample = `1,"Goroka Airport","Goroka","Papua New Guinea","GKA","AYGA",-6.081689834590001,145.391998291,5282,10,"U","Pacific/Port_Moresby","airport","OurAirports"
3127,"Zürich Airport","Zurich","Switzerland","ZRH","LSZH",47.464699,8.54917,1416,1,"E","Europe/Zurich","airport","OurAirports"
9999,"Nowhere Strip","Nowhere","Nowhere","\N","\N",0,0,0,\N,"N","\N","airport","User"
`

func (s *PipelineSuite) TestAirportDetailsFetchedOnce() {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(openFlightsSample))
	}))
	defer srv.Close()

	fetcher := acquire.NewFetcher(acquire.WithRetryPolicy(acquire.NoRetryPolicy()))
	l := s.loader(WithAirportDetails(srv.URL, fetcher, s.optimizer))

	details, err := l.AirportDetails(s.Context())
	s.Require().NoError(err)
	s.Equal(AirportDetailsColumns, details.Names())
	s.Equal(3, details.NumRows())

	row, err := details.Row(1)
	s.Require().NoError(err)
	s.Equal("Zürich Airport", row["name"])
	s.Equal("ZRH", row["iata"])
	row, err = details.Row(2)
	s.Require().NoError(err)
	_, hasIATA := row["iata"]
	s.False(hasIATA)

	cached, err := l.AirportDetails(s.Context())
	s.Require().NoError(err)
	s.Equal(3, cached.NumRows())
	s.Equal(int32(1), hits.Load())
	s.True(s.cache.Exists(AirportDetailsPartition))
}

func TestAirportDetailsWithoutSource(t *testing.T) {
	cache, err := artifact.NewCache(t.TempDir())
	require.NoError(t, err)
	_, err = NewLoader(cache, merge.New(optimize.DefaultThreshold)).AirportDetails(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"2008.csv.bz2", "airports.csv", "notes.txt", ".1999.csv", "plane-data.csv", "1987.csv.bz2"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "2001.csv"), 0o755))

	tasks, err := Discover(dir)
	require.NoError(t, err)
	require.Len(t, tasks, 4)

	assert.Equal(t, Task{Partition: "1987", Path: filepath.Join(dir, "1987.csv.bz2"), Flights: true}, tasks[0])
	assert.Equal(t, "2008", tasks[1].Partition)
	assert.Equal(t, Task{Partition: "airports", Path: filepath.Join(dir, "airports.csv")}, tasks[2])
	assert.Equal(t, "plane-data", tasks[3].Partition)
	assert.False(t, tasks[3].Flights)

	_, err = Discover(filepath.Join(dir, "missing"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestSelection(t *testing.T) {
	all := AllYears()
	assert.True(t, all.matches("1987"))
	assert.False(t, all.matches("airports"))
	assert.False(t, all.matches("plane-data"))
	assert.False(t, all.matches(""))

	some := Years("1988", " 2007 ")
	assert.True(t, some.matches("2007"))
	assert.False(t, some.matches("1987"))
	assert.NoError(t, some.Validate())
	assert.Error(t, Years().Validate())
}

func TestReport(t *testing.T) {
	r := &Report{Results: []Result{
		{Partition: "1987", Status: StatusConverted, BytesBefore: 100, BytesAfter: 40},
		{Partition: "1988", Status: StatusSkipped},
		{Partition: "1989", Status: StatusFailed, Err: assert.AnError},
	}}
	assert.Equal(t, int64(60), r.BytesReclaimed())
	assert.Len(t, r.Failed(), 1)
	assert.InDelta(t, 0.4, r.Results[0].Ratio(), 1e-9)
	assert.Zero(t, r.Results[1].Ratio())
	assert.Contains(t, r.String(), "1 converted, 1 skipped, 1 failed, 0 canceled")
}
