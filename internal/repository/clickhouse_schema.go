package repository

import "fmt"

// Column lists shared by the DDL below and the store queries. Every INSERT and
// SELECT goes through one of these so a renamed column cannot drift between
// the schema and the statements that touch it.
const (
	observationColumns = "item_id, source_id, price, currency, category, observed_at, raw_payload"
	estimateColumns    = "item_id, low, average, high, confidence, source_count, computed_at, stale"
	forecastColumns    = "item_id, horizon, series, direction, strength, generated_at, model_version"
	sourceColumns      = "source_id, display_name, specialization, reliability, observation_count, last_seen_at, is_active"
	eventColumns       = "id, subject_id, category, is_correct, accuracy_rating, correction, created_at, applied"
	metricColumns      = "category, accuracy_improvement, total_events, corrections, last_updated_at"
)

// SchemaStatements returns the DDL for the ClickHouse backend, ready to feed
// to Client.InitSchema. ReplacingMergeTree tables carry an extra version
// column so upserts are versioned re-inserts.
func SchemaStatements(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.observations (
		item_id String, source_id String, price Float64, currency String,
		category String, observed_at DateTime64(3), raw_payload String
	) ENGINE = MergeTree ORDER BY (item_id, observed_at)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.estimates_current (
		item_id String, low Float64, average Float64, high Float64,
		confidence Float64, source_count UInt32, computed_at DateTime64(3), stale UInt8
	) ENGINE = ReplacingMergeTree(computed_at) ORDER BY item_id`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.estimates_history (
		item_id String, low Float64, average Float64, high Float64,
		confidence Float64, source_count UInt32, computed_at DateTime64(3), stale UInt8
	) ENGINE = MergeTree ORDER BY (item_id, computed_at)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.forecasts (
		item_id String, horizon String, series String, direction String,
		strength Float64, generated_at DateTime64(3), model_version String
	) ENGINE = MergeTree ORDER BY (item_id, horizon, generated_at)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.sources (
		source_id String, display_name String, reliability Float64,
		specialization String, observation_count UInt64,
		last_seen_at DateTime64(3), is_active UInt8, updated_at DateTime64(3)
	) ENGINE = ReplacingMergeTree(updated_at) ORDER BY source_id`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.learning_events (
		id String, subject_id String, category String, is_correct Int8,
		accuracy_rating UInt8, correction String, created_at DateTime64(3),
		applied UInt8, updated_at DateTime64(3)
	) ENGINE = ReplacingMergeTree(updated_at) ORDER BY id`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.performance_metrics (
		category String, accuracy_improvement Float64, total_events UInt64,
		corrections UInt64, last_updated_at DateTime64(3)
	) ENGINE = ReplacingMergeTree(last_updated_at) ORDER BY category`, database),
	}
}
