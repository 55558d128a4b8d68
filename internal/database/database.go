package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"telerelay/internal/migrations"
	"telerelay/internal/models"
	"telerelay/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Database, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	// Validate database path to prevent directory traversal
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600) // #nosec G304 - path validated above
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema, err := migrations.GetInitialSchema()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to read schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	encryptor, err := NewEncryptor()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: encryptor}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// User operations

func (d *Database) SaveUser(ctx context.Context, user *models.User) error {
	encryptedPhone, err := d.encryptor.EncryptForLookupIfEnabled(user.PhoneNumber)
	if err != nil {
		return fmt.Errorf("failed to encrypt phone number: %w", err)
	}

	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, upsertUserQuery,
			user.ID, user.Username, user.FirstName, encryptedPhone, user.IsAuthenticated)
		return err
	}, "save user")
}

func (d *Database) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	return d.scanUser(d.db.QueryRowContext(ctx, selectUserQuery, userID))
}

// GetUserByPhone looks a user up by phone number. Phone numbers are
// stored with deterministic encryption so the lookup works against
// encrypted rows.
func (d *Database) GetUserByPhone(ctx context.Context, phoneNumber string) (*models.User, error) {
	encryptedPhone, err := d.encryptor.EncryptForLookupIfEnabled(phoneNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt phone number: %w", err)
	}
	return d.scanUser(d.db.QueryRowContext(ctx, selectUserByPhoneQuery, encryptedPhone))
}

func (d *Database) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var encryptedPhone string

	err := row.Scan(&user.ID, &user.Username, &user.FirstName, &encryptedPhone,
		&user.IsAuthenticated, &user.CreatedAt, &user.LastActiveAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.PhoneNumber, err = d.encryptor.DecryptIfEnabled(encryptedPhone)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt phone number: %w", err)
	}

	return user, nil
}

func (d *Database) SetUserAuthenticated(ctx context.Context, userID int64, authenticated bool) error {
	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, updateUserAuthenticatedQuery, authenticated, userID)
		return err
	}, "set user authenticated")
}

func (d *Database) TouchUserActivity(ctx context.Context, userID int64) error {
	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, touchUserActivityQuery, userID)
		return err
	}, "touch user activity")
}

func (d *Database) GetAllAuthenticatedUsers(ctx context.Context) ([]models.User, error) {
	rows, err := d.db.QueryContext(ctx, selectAuthenticatedUsersQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list authenticated users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []models.User
	for rows.Next() {
		var user models.User
		var encryptedPhone string
		if err := rows.Scan(&user.ID, &user.Username, &user.FirstName, &encryptedPhone,
			&user.IsAuthenticated, &user.CreatedAt, &user.LastActiveAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		user.PhoneNumber, err = d.encryptor.DecryptIfEnabled(encryptedPhone)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt phone number: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// Credential operations

// SaveCredential stores the live credential for a user. If a different
// credential is already stored it is snapshotted into the history
// first, and the history is trimmed to models.MaxCredentialBackups.
func (d *Database) SaveCredential(ctx context.Context, cred *models.Credential) error {
	existing, err := d.getCredentialRow(ctx, cred.UserID)
	if err != nil {
		return err
	}

	if existing != nil && existing.SessionBlob != cred.SessionBlob {
		if err := d.backupCredential(ctx, existing, "rotated"); err != nil {
			return err
		}
	}

	encryptedBlob, err := d.encryptor.EncryptIfEnabled(cred.SessionBlob)
	if err != nil {
		return fmt.Errorf("failed to encrypt session blob: %w", err)
	}
	encryptedHash, err := d.encryptor.EncryptIfEnabled(cred.AppHash)
	if err != nil {
		return fmt.Errorf("failed to encrypt app hash: %w", err)
	}

	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, upsertCredentialQuery,
			cred.UserID, encryptedBlob, cred.AppID, encryptedHash)
		return err
	}, "save credential")
}

// GetCredential returns the live credential for a user. When the live
// row is missing, the newest history snapshot is restored as live and
// returned, so a botched rotation never strands the user.
func (d *Database) GetCredential(ctx context.Context, userID int64) (*models.Credential, error) {
	cred, err := d.getCredentialRow(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cred != nil && cred.SessionBlob != "" {
		return cred, nil
	}

	backups, err := d.GetCredentialBackups(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(backups) == 0 {
		return nil, nil
	}

	restored := &models.Credential{
		UserID:      userID,
		SessionBlob: backups[0].SessionBlob,
		AppID:       backups[0].AppID,
		AppHash:     backups[0].AppHash,
	}
	if err := d.SaveCredential(ctx, restored); err != nil {
		return nil, fmt.Errorf("failed to restore credential from backup: %w", err)
	}

	return d.getCredentialRow(ctx, userID)
}

func (d *Database) getCredentialRow(ctx context.Context, userID int64) (*models.Credential, error) {
	cred := &models.Credential{}
	var encryptedBlob, encryptedHash string

	err := d.db.QueryRowContext(ctx, selectCredentialQuery, userID).Scan(
		&cred.UserID, &encryptedBlob, &cred.AppID, &encryptedHash,
		&cred.CreatedAt, &cred.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	cred.SessionBlob, err = d.encryptor.DecryptIfEnabled(encryptedBlob)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session blob: %w", err)
	}
	cred.AppHash, err = d.encryptor.DecryptIfEnabled(encryptedHash)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt app hash: %w", err)
	}

	return cred, nil
}

// ClearCredential snapshots and removes the live credential. Used when
// the transport reports the credential as permanently dead.
func (d *Database) ClearCredential(ctx context.Context, userID int64, reason string) error {
	existing, err := d.getCredentialRow(ctx, userID)
	if err != nil {
		return err
	}
	if existing != nil {
		if err := d.backupCredential(ctx, existing, reason); err != nil {
			return err
		}
	}

	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, deleteCredentialQuery, userID)
		return err
	}, "clear credential")
}

func (d *Database) backupCredential(ctx context.Context, cred *models.Credential, reason string) error {
	encryptedBlob, err := d.encryptor.EncryptIfEnabled(cred.SessionBlob)
	if err != nil {
		return fmt.Errorf("failed to encrypt session blob: %w", err)
	}
	encryptedHash, err := d.encryptor.EncryptIfEnabled(cred.AppHash)
	if err != nil {
		return fmt.Errorf("failed to encrypt app hash: %w", err)
	}

	err = retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, insertCredentialBackupQuery,
			cred.UserID, encryptedBlob, cred.AppID, encryptedHash, reason)
		return err
	}, "backup credential")
	if err != nil {
		return err
	}

	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, trimCredentialBackupsQuery,
			cred.UserID, cred.UserID, models.MaxCredentialBackups)
		return err
	}, "trim credential backups")
}

// GetCredentialBackups returns the credential history, newest first.
func (d *Database) GetCredentialBackups(ctx context.Context, userID int64) ([]models.CredentialBackup, error) {
	rows, err := d.db.QueryContext(ctx, selectCredentialBackupsQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credential backups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var backups []models.CredentialBackup
	for rows.Next() {
		var backup models.CredentialBackup
		var encryptedBlob, encryptedHash string
		if err := rows.Scan(&backup.ID, &backup.UserID, &encryptedBlob, &backup.AppID,
			&encryptedHash, &backup.Reason, &backup.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan credential backup: %w", err)
		}
		backup.SessionBlob, err = d.encryptor.DecryptIfEnabled(encryptedBlob)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt session blob: %w", err)
		}
		backup.AppHash, err = d.encryptor.DecryptIfEnabled(encryptedHash)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt app hash: %w", err)
		}
		backups = append(backups, backup)
	}

	return backups, rows.Err()
}

// CleanupCredentialBackups removes history entries past the retention
// window. The per-user cap is enforced on write; this sweeps the rest.
func (d *Database) CleanupCredentialBackups(retentionDays int) error {
	_, err := d.db.Exec(cleanupCredentialBackupsQuery, retentionDays)
	if err != nil {
		return fmt.Errorf("failed to cleanup credential backups: %w", err)
	}
	return nil
}
