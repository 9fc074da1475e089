package storage

// schema uses only DDL accepted by both MySQL 8 and SQLite.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS stock_ledger (
		location   VARCHAR(64)  NOT NULL,
		item_type  VARCHAR(64)  NOT NULL,
		item_key   VARCHAR(128) NOT NULL,
		quantity   BIGINT       NOT NULL,
		version    BIGINT       NOT NULL,
		updated_at DATETIME     NOT NULL,
		PRIMARY KEY (location, item_type, item_key),
		CHECK (quantity >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS stock_movements (
		location   VARCHAR(64)  NOT NULL,
		item_type  VARCHAR(64)  NOT NULL,
		item_key   VARCHAR(128) NOT NULL,
		seq        BIGINT       NOT NULL,
		delta      BIGINT       NOT NULL,
		balance    BIGINT       NOT NULL,
		reason     VARCHAR(16)  NOT NULL,
		reference  VARCHAR(64)  NOT NULL,
		created_at DATETIME     NOT NULL,
		PRIMARY KEY (location, item_type, item_key, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS deliveries (
		id                VARCHAR(36) NOT NULL PRIMARY KEY,
		sender_location   VARCHAR(64) NOT NULL,
		receiver_location VARCHAR(64) NOT NULL,
		version           BIGINT      NOT NULL,
		completed_at      DATETIME    NULL,
		created_at        DATETIME    NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS delivery_items (
		id                VARCHAR(36)  NOT NULL PRIMARY KEY,
		delivery_id       VARCHAR(36)  NOT NULL,
		item_type         VARCHAR(64)  NOT NULL,
		item_key          VARCHAR(128) NOT NULL,
		source_location   VARCHAR(64)  NOT NULL,
		declared_quantity BIGINT       NOT NULL,
		received_quantity BIGINT       NOT NULL,
		returned_quantity BIGINT       NOT NULL,
		status            VARCHAR(32)  NOT NULL,
		marked_by         VARCHAR(128) NOT NULL,
		assigned_to       VARCHAR(128) NOT NULL,
		resolution        VARCHAR(32)  NOT NULL,
		version           BIGINT       NOT NULL,
		created_at        DATETIME     NOT NULL,
		updated_at        DATETIME     NOT NULL,
		CONSTRAINT uq_delivery_item UNIQUE (delivery_id, item_type, item_key)
	)`,
}
