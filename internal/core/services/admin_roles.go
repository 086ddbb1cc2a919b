package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poyrazK/adminguard/internal/core/domain"
	"github.com/poyrazK/adminguard/internal/core/ports"
)

// AdminRoles applies the checks an admin command makes before touching the
// authority, then audits the change on behalf of the acting admin.
type AdminRoles struct {
	authority ports.AdminAuthority
	store     ports.AuthorityStore
	audit     ports.AuditLog
	logger    *slog.Logger
}

var _ ports.AdminRoles = (*AdminRoles)(nil)

// NewAdminRoles wires the guards. audit may be nil.
func NewAdminRoles(authority ports.AdminAuthority, store ports.AuthorityStore, audit ports.AuditLog, logger *slog.Logger) *AdminRoles {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminRoles{
		authority: authority,
		store:     store,
		audit:     audit,
		logger:    logger,
	}
}

// Grant promotes a known, non-admin user.
func (r *AdminRoles) Grant(ctx context.Context, actorID, targetID int64) error {
	if err := r.validate(actorID, targetID); err != nil {
		return err
	}

	isAdmin, err := r.authority.CheckAdmin(ctx, targetID)
	if err != nil {
		return err
	}
	if isAdmin {
		return fmt.Errorf("%w: user %d is already an admin", domain.ErrConflict, targetID)
	}

	user, err := r.store.GetUser(ctx, targetID)
	if err != nil {
		return fmt.Errorf("%w: look up user %d: %w", domain.ErrTransient, targetID, err)
	}
	if user == nil {
		return fmt.Errorf("%w: user %d is not in the database", domain.ErrNotFound, targetID)
	}

	if err := r.authority.AddAdmin(ctx, targetID); err != nil {
		return err
	}

	payload := map[string]any{"target_id": targetID}
	if user.Username != "" {
		payload["target_username"] = user.Username
	}
	r.record(ctx, actorID, domain.ActionAdminAdd, payload)
	return nil
}

// Revoke demotes a current admin other than the actor.
func (r *AdminRoles) Revoke(ctx context.Context, actorID, targetID int64) error {
	if err := r.validate(actorID, targetID); err != nil {
		return err
	}
	if actorID == targetID {
		return fmt.Errorf("%w: admins cannot remove themselves", domain.ErrInvalidInput)
	}

	isAdmin, err := r.authority.CheckAdmin(ctx, targetID)
	if err != nil {
		return err
	}
	if !isAdmin {
		return fmt.Errorf("%w: user %d is not an admin", domain.ErrConflict, targetID)
	}

	if err := r.authority.RemoveAdmin(ctx, targetID); err != nil {
		return err
	}

	r.record(ctx, actorID, domain.ActionAdminRemove, map[string]any{"target_id": targetID})
	return nil
}

func (r *AdminRoles) validate(actorID, targetID int64) error {
	if actorID != 0 {
		if err := domain.ValidateUserID(actorID); err != nil {
			return err
		}
	}
	return domain.ValidateUserID(targetID)
}

// record never fails the change it documents.
func (r *AdminRoles) record(ctx context.Context, actorID int64, action string, payload map[string]any) {
	if actorID == 0 || r.audit == nil {
		return
	}
	if err := r.audit.Record(ctx, actorID, action, payload); err != nil {
		r.logger.Warn("audit record failed", "admin_id", actorID, "action", action, "error", err)
	}
}
