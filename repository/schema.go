package repository

var schema = []string{
	`CREATE TABLE IF NOT EXISTS indicator_snapshots (
		symbol        TEXT        NOT NULL,
		time_interval TEXT        NOT NULL,
		snapshot      JSONB       NOT NULL,
		stored_at     TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (symbol, time_interval)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_indicator_snapshots_stored_at ON indicator_snapshots (stored_at)`,
	`CREATE TABLE IF NOT EXISTS market_data_cache (
		symbol     TEXT        NOT NULL,
		data_type  TEXT        NOT NULL,
		data       JSONB       NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (symbol, data_type)
	)`,
	`CREATE TABLE IF NOT EXISTS analyses (
		id            UUID PRIMARY KEY,
		symbol        TEXT             NOT NULL,
		time_interval TEXT             NOT NULL,
		signal        TEXT             NOT NULL,
		confidence    DOUBLE PRECISION NOT NULL,
		current_price DOUBLE PRECISION NOT NULL,
		summary       TEXT             NOT NULL,
		trend         TEXT             NOT NULL,
		insights      JSONB            NOT NULL DEFAULT '[]',
		risk_level    TEXT             NOT NULL,
		levels        JSONB,
		provider      TEXT             NOT NULL,
		created_at    TIMESTAMPTZ      NOT NULL,
		expires_at    TIMESTAMPTZ      NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analyses_symbol_created ON analyses (symbol, created_at DESC)`,
}
