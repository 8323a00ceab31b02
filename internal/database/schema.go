package database

// Statements are applied one by one; the MySQL driver rejects multi-statement
// strings unless multiStatements=true is set on the DSN.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
    id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(255),
    email VARCHAR(255) NOT NULL,
    plan VARCHAR(16) NOT NULL DEFAULT 'free',
    questions_used INT NOT NULL DEFAULT 0,
    usage_reset_at TIMESTAMP NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    KEY idx_profiles_email (email)
)`,
	`CREATE TABLE IF NOT EXISTS chats (
    id CHAR(36) PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    title VARCHAR(255) NOT NULL,
    model VARCHAR(64) NOT NULL,
    messages JSON NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    KEY idx_chats_user_updated (user_id, updated_at),
    FOREIGN KEY (user_id) REFERENCES profiles(id) ON DELETE CASCADE
)`,
	`CREATE TABLE IF NOT EXISTS payment_orders (
    id VARCHAR(64) PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    plan VARCHAR(16) NOT NULL,
    amount INT NOT NULL,
    currency VARCHAR(8) NOT NULL,
    receipt VARCHAR(64) NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'created',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    KEY idx_orders_status_created (status, created_at),
    FOREIGN KEY (user_id) REFERENCES profiles(id)
)`,
	`CREATE TABLE IF NOT EXISTS payments (
    id VARCHAR(64) PRIMARY KEY,
    order_id VARCHAR(64) NOT NULL UNIQUE,
    user_id VARCHAR(64) NOT NULL,
    plan VARCHAR(16) NOT NULL,
    amount INT NOT NULL,
    currency VARCHAR(8) NOT NULL,
    signature VARCHAR(128) NOT NULL,
    status VARCHAR(16) NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (order_id) REFERENCES payment_orders(id),
    FOREIGN KEY (user_id) REFERENCES profiles(id)
)`,
	`CREATE TABLE IF NOT EXISTS question_logs (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    chat_id CHAR(36) NOT NULL,
    model VARCHAR(64) NOT NULL,
    plan VARCHAR(16) NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    KEY idx_question_logs_created (created_at),
    FOREIGN KEY (user_id) REFERENCES profiles(id) ON DELETE CASCADE
)`,
}
