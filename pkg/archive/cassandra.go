// Package archive persists analysis outputs in Cassandra so reporting tools
// can fetch them later by analysis id. It is strictly a consumer of the
// analysis packages; none of them depends on it.
package archive

import (
	"time"

	"github.com/gocql/gocql"
	"github.com/pkg/errors"

	"github.com/simsift/simsift/pkg/anova"
	"github.com/simsift/simsift/pkg/conf"
	"github.com/simsift/simsift/pkg/stats"
)

var (
	addressFlag = conf.NewStringFlag(
		"cassandra_address",
		"Address of Cassandra cluster used for archiving analysis outputs",
		"127.0.0.1",
	)
	usernameFlag = conf.NewStringFlag(
		"cassandra_username", "Username for Cassandra authentication", "")
	passwordFlag = conf.NewStringFlag(
		"cassandra_password", "Password for Cassandra authentication", "")
	timeoutFlag = conf.NewDurationFlag(
		"cassandra_timeout", "Connection timeout for Cassandra", 0)
)

// Config encodes the settings for connecting to the database.
type Config struct {
	Address           string
	Username          string
	Password          string
	ConnectionTimeout time.Duration
}

// DefaultConfig returns a setup which uses a Cassandra cluster running on
// localhost without any authentication.
func DefaultConfig() Config {
	return Config{
		Address: "127.0.0.1",
	}
}

// ConfigFromFlags applies the Cassandra settings from the command line flags
// and environment variables.
func ConfigFromFlags() Config {
	return Config{
		Address:           addressFlag.Value(),
		Username:          usernameFlag.Value(),
		Password:          passwordFlag.Value(),
		ConnectionTimeout: timeoutFlag.Value(),
	}
}

// Archive keeps the Cassandra session alive, holds the active configuration
// and the analysis id to tag stored rows with.
type Archive struct {
	analysisID string
	config     Config
	session    *gocql.Session
}

// New returns the Archive helper from an analysis id and configuration.
// Connect() still needs to be called to get an active Cassandra session.
func New(analysisID string, config Config) *Archive {
	return &Archive{
		analysisID: analysisID,
		config:     config,
	}
}

// Connect creates a session to the Cassandra cluster and prepares the
// keyspace and tables. This function should only be called once.
func (a *Archive) Connect() error {
	cluster := gocql.NewCluster(a.config.Address)
	cluster.Consistency = gocql.LocalOne
	cluster.ProtoVersion = 4
	cluster.Timeout = a.config.ConnectionTimeout

	if a.config.Username != "" && a.config.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: a.config.Username,
			Password: a.config.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return errors.Wrap(err, "creating Cassandra session failed")
	}
	a.session = session

	if err := session.Query("CREATE KEYSPACE IF NOT EXISTS simsift WITH REPLICATION = {'class': 'SimpleStrategy', 'replication_factor': 1};").Exec(); err != nil {
		return err
	}

	if err := session.Query("CREATE TABLE IF NOT EXISTS simsift.aggregates (analysis_id text, configuration text, metric text, time timestamp, mean double, stddev double, halfwidth double, count int, low_confidence boolean, PRIMARY KEY ((analysis_id), configuration, metric));").Exec(); err != nil {
		return err
	}

	if err := session.Query("CREATE TABLE IF NOT EXISTS simsift.effects (analysis_id text, metric text, effect text, time timestamp, percent double, imbalanced boolean, PRIMARY KEY ((analysis_id), metric, effect));").Exec(); err != nil {
		return err
	}

	return nil
}

// StoreAggregates writes one row per aggregate, tagged with the analysis id.
func (a *Archive) StoreAggregates(aggregates []stats.Aggregate) error {
	for _, aggregate := range aggregates {
		err := a.session.Query(
			`INSERT INTO simsift.aggregates (analysis_id, configuration, metric, time, mean, stddev, halfwidth, count, low_confidence) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.analysisID, aggregate.Configuration.ID(), aggregate.Metric, time.Now(),
			aggregate.Mean, aggregate.StdDev, aggregate.HalfWidth, aggregate.Count,
			aggregate.LowConfidence).Exec()
		if err != nil {
			return errors.Wrapf(err, "storing aggregate for configuration %q failed", aggregate.Configuration.ID())
		}
	}
	return nil
}

// StoreEffects writes one row per effect of the factor effect table.
func (a *Archive) StoreEffects(table anova.Table) error {
	for _, effect := range table.Effects {
		err := a.session.Query(
			`INSERT INTO simsift.effects (analysis_id, metric, effect, time, percent, imbalanced) VALUES (?, ?, ?, ?, ?, ?)`,
			a.analysisID, table.Metric, effect.Name, time.Now(),
			effect.Percent, table.Imbalanced).Exec()
		if err != nil {
			return errors.Wrapf(err, "storing effect %q failed", effect.Name)
		}
	}
	return nil
}

// AggregateRow is one archived aggregate fetched back from the database.
type AggregateRow struct {
	Configuration string
	Metric        string
	Mean          float64
	StdDev        float64
	HalfWidth     float64
	Count         int
	LowConfidence bool
}

// GetAggregates retrieves all aggregates stored under the analysis id.
func (a *Archive) GetAggregates() ([]AggregateRow, error) {
	var row AggregateRow

	out := []AggregateRow{}
	iter := a.session.Query(
		`SELECT configuration, metric, mean, stddev, halfwidth, count, low_confidence FROM simsift.aggregates WHERE analysis_id = ?`,
		a.analysisID).Iter()
	for iter.Scan(&row.Configuration, &row.Metric, &row.Mean, &row.StdDev, &row.HalfWidth, &row.Count, &row.LowConfidence) {
		out = append(out, row)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

// Clear deletes all rows associated with the current analysis id.
func (a *Archive) Clear() error {
	if err := a.session.Query(`DELETE FROM simsift.aggregates WHERE analysis_id = ?`, a.analysisID).Exec(); err != nil {
		return err
	}
	return a.session.Query(`DELETE FROM simsift.effects WHERE analysis_id = ?`, a.analysisID).Exec()
}

// Close shuts the Cassandra session down.
func (a *Archive) Close() {
	if a.session != nil {
		a.session.Close()
	}
}
