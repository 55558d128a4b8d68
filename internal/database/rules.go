package database

import (
	"context"
	"database/sql"
	"fmt"

	"telerelay/internal/models"
)

// SaveRule inserts a forwarding rule and returns its assigned ID.
func (d *Database) SaveRule(ctx context.Context, rule *models.ForwardingRule) (int64, error) {
	var ruleID int64

	err := retryableDBOperationNoReturn(ctx, func() error {
		result, err := d.db.ExecContext(ctx, insertRuleQuery,
			rule.UserID, rule.SourceChatID, rule.SourceChatName,
			rule.TargetChatID, rule.TargetChatName,
			rule.ExtractPattern, rule.HeaderText, rule.FooterText,
			rule.ButtonLabel, rule.ButtonURL, rule.Active)
		if err != nil {
			return err
		}
		ruleID, err = result.LastInsertId()
		return err
	}, "save rule")
	if err != nil {
		return 0, err
	}

	return ruleID, nil
}

func (d *Database) GetRule(ctx context.Context, ruleID int64) (*models.ForwardingRule, error) {
	rule := &models.ForwardingRule{}

	err := d.db.QueryRowContext(ctx, selectRuleQuery, ruleID).Scan(
		&rule.ID, &rule.UserID, &rule.SourceChatID, &rule.SourceChatName,
		&rule.TargetChatID, &rule.TargetChatName,
		&rule.ExtractPattern, &rule.HeaderText, &rule.FooterText,
		&rule.ButtonLabel, &rule.ButtonURL, &rule.Active, &rule.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return rule, nil
}

func (d *Database) GetRulesForUser(ctx context.Context, userID int64) ([]models.ForwardingRule, error) {
	return d.queryRules(ctx, selectRulesForUserQuery, userID)
}

func (d *Database) GetActiveRulesForUser(ctx context.Context, userID int64) ([]models.ForwardingRule, error) {
	return d.queryRules(ctx, selectActiveRulesForUserQuery, userID)
}

func (d *Database) queryRules(ctx context.Context, query string, userID int64) ([]models.ForwardingRule, error) {
	rows, err := d.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []models.ForwardingRule
	for rows.Next() {
		var rule models.ForwardingRule
		if err := rows.Scan(&rule.ID, &rule.UserID, &rule.SourceChatID, &rule.SourceChatName,
			&rule.TargetChatID, &rule.TargetChatName,
			&rule.ExtractPattern, &rule.HeaderText, &rule.FooterText,
			&rule.ButtonLabel, &rule.ButtonURL, &rule.Active, &rule.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// SetRuleActive flips a rule's activation flag. Setting a rule to its
// current state is a no-op, so stop is idempotent.
func (d *Database) SetRuleActive(ctx context.Context, ruleID int64, active bool) error {
	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, updateRuleActiveQuery, active, ruleID)
		return err
	}, "set rule active")
}

// DeleteRule deactivates a rule but keeps the row for reactivation.
func (d *Database) DeleteRule(ctx context.Context, ruleID int64) error {
	return d.SetRuleActive(ctx, ruleID, false)
}

// PurgeRule permanently removes a rule.
func (d *Database) PurgeRule(ctx context.Context, ruleID int64) error {
	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, purgeRuleQuery, ruleID)
		return err
	}, "purge rule")
}
