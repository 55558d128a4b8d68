package database

// User queries
const (
	upsertUserQuery = `
		INSERT INTO users (id, username, first_name, phone_number, is_authenticated, created_at, last_active_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			phone_number = excluded.phone_number,
			last_active_at = CURRENT_TIMESTAMP
	`

	selectUserQuery = `
		SELECT id, username, first_name, phone_number, is_authenticated, created_at, last_active_at
		FROM users
		WHERE id = ?
	`

	selectUserByPhoneQuery = `
		SELECT id, username, first_name, phone_number, is_authenticated, created_at, last_active_at
		FROM users
		WHERE phone_number = ?
	`

	updateUserAuthenticatedQuery = `
		UPDATE users SET is_authenticated = ? WHERE id = ?
	`

	touchUserActivityQuery = `
		UPDATE users SET last_active_at = CURRENT_TIMESTAMP WHERE id = ?
	`

	selectAuthenticatedUsersQuery = `
		SELECT id, username, first_name, phone_number, is_authenticated, created_at, last_active_at
		FROM users
		WHERE is_authenticated = 1
		ORDER BY id
	`
)

// Credential queries
const (
	upsertCredentialQuery = `
		INSERT INTO credentials (user_id, session_blob, app_id, app_hash)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			session_blob = excluded.session_blob,
			app_id = excluded.app_id,
			app_hash = excluded.app_hash
	`

	selectCredentialQuery = `
		SELECT user_id, session_blob, app_id, app_hash, created_at, updated_at
		FROM credentials
		WHERE user_id = ?
	`

	deleteCredentialQuery = `
		DELETE FROM credentials WHERE user_id = ?
	`

	insertCredentialBackupQuery = `
		INSERT INTO credential_backups (user_id, session_blob, app_id, app_hash, reason)
		VALUES (?, ?, ?, ?, ?)
	`

	selectCredentialBackupsQuery = `
		SELECT id, user_id, session_blob, app_id, app_hash, reason, created_at
		FROM credential_backups
		WHERE user_id = ?
		ORDER BY id DESC
	`

	trimCredentialBackupsQuery = `
		DELETE FROM credential_backups
		WHERE user_id = ?
		AND id NOT IN (
			SELECT id FROM credential_backups
			WHERE user_id = ?
			ORDER BY id DESC
			LIMIT ?
		)
	`

	cleanupCredentialBackupsQuery = `
		DELETE FROM credential_backups
		WHERE created_at < datetime('now', '-' || ? || ' days')
	`
)

// Forwarding rule queries
const (
	insertRuleQuery = `
		INSERT INTO forwarding_rules (
			user_id, source_chat_id, source_chat_name, target_chat_id, target_chat_name,
			extract_pattern, header_text, footer_text, button_label, button_url, active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectRuleQuery = `
		SELECT id, user_id, source_chat_id, source_chat_name, target_chat_id, target_chat_name,
			   extract_pattern, header_text, footer_text, button_label, button_url, active, created_at
		FROM forwarding_rules
		WHERE id = ?
	`

	selectRulesForUserQuery = `
		SELECT id, user_id, source_chat_id, source_chat_name, target_chat_id, target_chat_name,
			   extract_pattern, header_text, footer_text, button_label, button_url, active, created_at
		FROM forwarding_rules
		WHERE user_id = ?
		ORDER BY id
	`

	selectActiveRulesForUserQuery = `
		SELECT id, user_id, source_chat_id, source_chat_name, target_chat_id, target_chat_name,
			   extract_pattern, header_text, footer_text, button_label, button_url, active, created_at
		FROM forwarding_rules
		WHERE user_id = ? AND active = 1
		ORDER BY id
	`

	updateRuleActiveQuery = `
		UPDATE forwarding_rules SET active = ? WHERE id = ?
	`

	purgeRuleQuery = `
		DELETE FROM forwarding_rules WHERE id = ?
	`
)
