package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// DatasetSuite provides a fresh datasets directory for every test
type DatasetSuite struct {
	suite.Suite
	ctx       context.Context
	cancel    context.CancelFunc
	dir       string
	startTime time.Time
}

// SetupSuite runs before all tests in the suite
func (s *DatasetSuite) SetupSuite() {
	s.startTime = time.Now()
}

// TearDownSuite runs after all tests in the suite
func (s *DatasetSuite) TearDownSuite() {
	s.T().Logf("dataset suite completed in %v", time.Since(s.startTime))
}

// SetupTest creates the datasets directory and a bounded context
func (s *DatasetSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), time.Minute)
	s.dir = filepath.Join(s.T().TempDir(), "datasets")
	require.NoError(s.T(), os.MkdirAll(s.dir, 0o755))
}

// TearDownTest releases the test context
func (s *DatasetSuite) TearDownTest() {
	s.cancel()
}

// Context returns the test context
func (s *DatasetSuite) Context() context.Context {
	return s.ctx
}

// Dir returns the datasets directory
func (s *DatasetSuite) Dir() string {
	return s.dir
}

// Stage copies fixtures into the datasets directory
func (s *DatasetSuite) Stage(names ...string) []string {
	return StageFixtures(s.T(), s.dir, names...)
}

// Files lists the datasets directory
func (s *DatasetSuite) Files() []string {
	return FileNames(s.T(), s.dir)
}

// IntegrationTest marks a test as an integration test
func IntegrationTest(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}
