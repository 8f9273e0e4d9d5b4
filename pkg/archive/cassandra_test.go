package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ArchiveTestSuite struct {
	suite.Suite
	config Config
}

func (s *ArchiveTestSuite) SetupTest() {
	s.config = DefaultConfig()
}

func (s *ArchiveTestSuite) TestDefaultConfig() {
	s.Equal("127.0.0.1", s.config.Address)
	s.Empty(s.config.Username)
	s.Empty(s.config.Password)
	s.Equal(time.Duration(0), s.config.ConnectionTimeout)
}

func (s *ArchiveTestSuite) TestConfigFromFlags() {
	// Flags are unparsed here, so the flag defaults must mirror DefaultConfig.
	s.Equal(s.config, ConfigFromFlags())
}

func (s *ArchiveTestSuite) TestNewIsNotConnected() {
	archive := New("analysis-1", s.config)
	s.NotNil(archive)
	s.Nil(archive.session)
}

func TestArchiveSuite(t *testing.T) {
	suite.Run(t, new(ArchiveTestSuite))
}
