package database

var schema = []string{`
CREATE TABLE IF NOT EXISTS users (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    email VARCHAR(255) NOT NULL UNIQUE,
    credits INT NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
)`, `
CREATE TABLE IF NOT EXISTS listings (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    source_id VARCHAR(64) NULL,
    source_url VARCHAR(1024) NULL,
    title VARCHAR(255) NOT NULL,
    description TEXT NOT NULL,
    category VARCHAR(32) NOT NULL,
    city VARCHAR(128) NOT NULL,
    zone VARCHAR(255) NULL,
    phone VARCHAR(32) NULL,
    whatsapp VARCHAR(255) NULL,
    age INT NULL,
    photos JSON NOT NULL,
    price INT NULL,
    user_id BIGINT NULL,
    is_active TINYINT(1) NOT NULL DEFAULT 1,
    expires_at DATETIME NOT NULL,
    published_at DATETIME NOT NULL,
    bump_package VARCHAR(64) NULL,
    bump_time_slot VARCHAR(32) NULL,
    bump_count INT NOT NULL DEFAULT 0,
    max_bumps INT NOT NULL DEFAULT 0,
    next_bump_at DATETIME NULL,
    last_bump_at DATETIME NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    UNIQUE KEY uniq_listing_source (source_id),
    KEY idx_listing_contact_phone (category, city, phone),
    KEY idx_listing_contact_whatsapp (category, city, whatsapp(191)),
    KEY idx_listing_due (is_active, next_bump_at),
    KEY idx_listing_feed (category, city, is_active, published_at),
    FOREIGN KEY (user_id) REFERENCES users(id)
)`, `
CREATE TABLE IF NOT EXISTS promotion_products (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    code VARCHAR(64) NOT NULL UNIQUE,
    label VARCHAR(255) NOT NULL,
    kind VARCHAR(16) NOT NULL,
    quantity_per_window INT NOT NULL DEFAULT 1,
    duration_days INT NOT NULL DEFAULT 1,
    credits_cost INT NOT NULL,
    active TINYINT(1) NOT NULL DEFAULT 1,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    CHECK (quantity_per_window >= 1),
    CHECK (duration_days >= 1)
)`, `
CREATE TABLE IF NOT EXISTS purchases (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id BIGINT NOT NULL,
    listing_id BIGINT NOT NULL,
    product_id BIGINT NOT NULL,
    status VARCHAR(16) NOT NULL,
    started_at DATETIME NOT NULL,
    expires_at DATETIME NOT NULL,
    slot_template TEXT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    KEY idx_purchase_listing (listing_id, status),
    KEY idx_purchase_expiry (status, expires_at),
    FOREIGN KEY (user_id) REFERENCES users(id),
    FOREIGN KEY (listing_id) REFERENCES listings(id) ON DELETE CASCADE,
    FOREIGN KEY (product_id) REFERENCES promotion_products(id)
)`, `
CREATE TABLE IF NOT EXISTS bump_schedules (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    purchase_id BIGINT NOT NULL,
    listing_id BIGINT NOT NULL,
    window_tag VARCHAR(8) NOT NULL,
    run_at DATETIME NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
    KEY idx_schedule_due (listing_id, status, run_at),
    KEY idx_schedule_purchase (purchase_id, status),
    FOREIGN KEY (purchase_id) REFERENCES purchases(id) ON DELETE CASCADE
)`, `
CREATE TABLE IF NOT EXISTS bump_logs (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    listing_id BIGINT NOT NULL,
    time_slot VARCHAR(32) NOT NULL,
    success TINYINT(1) NOT NULL,
    error_message TEXT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    KEY idx_bump_log_listing (listing_id, created_at)
)`, `
CREATE TABLE IF NOT EXISTS ingestion_runs (
    id VARCHAR(36) PRIMARY KEY,
    status VARCHAR(16) NOT NULL,
    imported INT NOT NULL DEFAULT 0,
    updated INT NOT NULL DEFAULT 0,
    skipped INT NOT NULL DEFAULT 0,
    errors INT NOT NULL DEFAULT 0,
    error_sample TEXT NULL,
    started_at DATETIME NOT NULL,
    finished_at DATETIME NULL
)`,
}
