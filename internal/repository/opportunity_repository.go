package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/trustteams/trustteams-api/internal/models"
)

const opportunityColumns = `o.id, o.title, o.type, o.description, o.requirements, o.stipend, o.duration, o.location, o.status, o.closing_date, o.posted_by, o.contact_email, o.contact_phone, o.deleted_at, o.created_at, o.updated_at, u.name AS poster_name`

// OpportunityRepository provides database access for opportunity postings and
// their audit trail.
type OpportunityRepository struct {
	db *sqlx.DB
}

// NewOpportunityRepository creates a new instance of OpportunityRepository.
func NewOpportunityRepository(db *sqlx.DB) *OpportunityRepository {
	return &OpportunityRepository{db: db}
}

// FindByID returns a non-deleted opportunity with the poster's name joined.
func (r *OpportunityRepository) FindByID(ctx context.Context, id string) (*models.Opportunity, error) {
	query := fmt.Sprintf(`SELECT %s FROM opportunities o LEFT JOIN users u ON u.id = o.posted_by WHERE o.id = $1 AND o.deleted_at IS NULL LIMIT 1`, opportunityColumns)
	var opp models.Opportunity
	if err := r.db.GetContext(ctx, &opp, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find opportunity by id: %w", err)
	}
	return &opp, nil
}

// List returns non-deleted opportunities matching the filter, with total
// count for pagination.
func (r *OpportunityRepository) List(ctx context.Context, filter models.OpportunityFilter) ([]models.Opportunity, int, error) {
	baseQuery := `FROM opportunities o LEFT JOIN users u ON u.id = o.posted_by WHERE o.deleted_at IS NULL`
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(o.title) LIKE $%d OR LOWER(o.description) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("o.type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("o.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.PostedBy != "" {
		conditions = append(conditions, fmt.Sprintf("o.posted_by = $%d", len(args)+1))
		args = append(args, filter.PostedBy)
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"created_at":   true,
		"title":        true,
		"closing_date": true,
		"status":       true,
		"type":         true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	sortDir := strings.ToUpper(filter.SortDir)
	if sortDir != "ASC" && sortDir != "DESC" {
		sortDir = "DESC"
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY o.%s %s LIMIT %d OFFSET %d", opportunityColumns, baseQuery, sortBy, sortDir, limit, offset)
	var opportunities []models.Opportunity
	if err := r.db.SelectContext(ctx, &opportunities, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list opportunities: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count opportunities: %w", err)
	}

	return opportunities, total, nil
}

// CountForPoster returns total and still-open posting counts for one poster.
func (r *OpportunityRepository) CountForPoster(ctx context.Context, posterID string) (total, open int, err error) {
	const query = `SELECT COUNT(*) AS total_opportunities,
		COUNT(*) FILTER (WHERE status = 'open') AS open_opportunities
		FROM opportunities WHERE posted_by = $1 AND deleted_at IS NULL`
	var counts struct {
		Total int `db:"total_opportunities"`
		Open  int `db:"open_opportunities"`
	}
	if err := r.db.GetContext(ctx, &counts, query, posterID); err != nil {
		return 0, 0, fmt.Errorf("count opportunities for poster: %w", err)
	}
	return counts.Total, counts.Open, nil
}

// Create inserts the posting and its CREATE audit entry in one transaction.
func (r *OpportunityRepository) Create(ctx context.Context, opp *models.Opportunity) error {
	if opp.ID == "" {
		opp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if opp.CreatedAt.IsZero() {
		opp.CreatedAt = now
	}
	opp.UpdatedAt = now
	if opp.Status == "" {
		opp.Status = models.OpportunityOpen
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create opportunity: %w", err)
	}
	defer tx.Rollback()

	const query = `INSERT INTO opportunities (id, title, type, description, requirements, stipend, duration, location, status, closing_date, posted_by, contact_email, contact_phone, created_at, updated_at)
		VALUES (:id, :title, :type, :description, :requirements, :stipend, :duration, :location, :status, :closing_date, :posted_by, :contact_email, :contact_phone, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, opp); err != nil {
		return fmt.Errorf("create opportunity: %w", err)
	}

	if err := insertAudit(ctx, tx, opp.ID, models.AuditCreate, &opp.PostedBy, nil, snapshot(opp)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create opportunity: %w", err)
	}
	return nil
}

// Update replaces the editable fields and logs an UPDATE audit entry with
// before/after snapshots in one transaction.
func (r *OpportunityRepository) Update(ctx context.Context, before, after *models.Opportunity, changedBy string) error {
	after.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update opportunity: %w", err)
	}
	defer tx.Rollback()

	const query = `UPDATE opportunities SET title = :title, type = :type, description = :description, requirements = :requirements, stipend = :stipend, duration = :duration, location = :location, status = :status, closing_date = :closing_date, contact_email = :contact_email, contact_phone = :contact_phone, updated_at = :updated_at
		WHERE id = :id AND deleted_at IS NULL`
	if _, err := tx.NamedExecContext(ctx, query, after); err != nil {
		return fmt.Errorf("update opportunity: %w", err)
	}

	if err := insertAudit(ctx, tx, after.ID, models.AuditUpdate, &changedBy, snapshot(before), snapshot(after)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update opportunity: %w", err)
	}
	return nil
}

// SoftDelete sets deleted_at and logs a DELETE audit entry with the
// pre-delete snapshot. The row is retained for audit linkage.
func (r *OpportunityRepository) SoftDelete(ctx context.Context, opp *models.Opportunity, changedBy string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete opportunity: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE opportunities SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, opp.ID, now); err != nil {
		return fmt.Errorf("delete opportunity: %w", err)
	}

	if err := insertAudit(ctx, tx, opp.ID, models.AuditDelete, &changedBy, snapshot(opp), nil); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete opportunity: %w", err)
	}
	return nil
}

// CloseExpired flips every open, non-deleted, past-deadline posting to closed
// and appends one AUTO_CLOSE audit row per affected id. Idempotent: a second
// run finds nothing to do. Returns the affected ids.
func (r *OpportunityRepository) CloseExpired(ctx context.Context, now time.Time) ([]string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin close expired: %w", err)
	}
	defer tx.Rollback()

	var ids []string
	const query = `UPDATE opportunities SET status = 'closed', updated_at = $1
		WHERE status = 'open' AND deleted_at IS NULL AND closing_date IS NOT NULL AND closing_date < $1
		RETURNING id`
	if err := tx.SelectContext(ctx, &ids, query, now.UTC()); err != nil {
		return nil, fmt.Errorf("close expired opportunities: %w", err)
	}

	oldVals := types.JSONText(`{"status":"open"}`)
	newVals := types.JSONText(`{"status":"closed"}`)
	for _, id := range ids {
		if err := insertAudit(ctx, tx, id, models.AuditAutoClose, nil, &oldVals, &newVals); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit close expired: %w", err)
	}
	return ids, nil
}

// ListAudit returns the audit trail for one opportunity, newest first, with
// the acting user's name joined in.
func (r *OpportunityRepository) ListAudit(ctx context.Context, opportunityID string) ([]models.OpportunityAudit, error) {
	const query = `SELECT a.id, a.opportunity_id, a.action, a.changed_by, a.old_values, a.new_values, a.created_at, u.name AS changed_by_name
		FROM opportunity_audit a
		LEFT JOIN users u ON u.id = a.changed_by
		WHERE a.opportunity_id = $1
		ORDER BY a.created_at DESC`
	var entries []models.OpportunityAudit
	if err := r.db.SelectContext(ctx, &entries, query, opportunityID); err != nil {
		return nil, fmt.Errorf("list opportunity audit: %w", err)
	}
	return entries, nil
}

func insertAudit(ctx context.Context, tx *sqlx.Tx, opportunityID string, action models.AuditAction, changedBy *string, oldValues, newValues *types.JSONText) error {
	const query = `INSERT INTO opportunity_audit (id, opportunity_id, action, changed_by, old_values, new_values, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.ExecContext(ctx, query, uuid.NewString(), opportunityID, action, changedBy, oldValues, newValues, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert opportunity audit: %w", err)
	}
	return nil
}

// snapshot serializes the auditable fields of a posting. Marshal errors are
// impossible for this shape, so the result is used directly.
func snapshot(opp *models.Opportunity) *types.JSONText {
	view := map[string]interface{}{
		"title":         opp.Title,
		"type":          opp.Type,
		"description":   opp.Description,
		"requirements":  opp.Requirements,
		"stipend":       opp.Stipend,
		"duration":      opp.Duration,
		"location":      opp.Location,
		"status":        opp.Status,
		"closing_date":  opp.ClosingDate,
		"contact_email": opp.ContactEmail,
		"contact_phone": opp.ContactPhone,
	}
	raw, _ := json.Marshal(view)
	jt := types.JSONText(raw)
	return &jt
}
