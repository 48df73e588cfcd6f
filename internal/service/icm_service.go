package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/trustteams/trustteams-api/internal/models"
	appErrors "github.com/trustteams/trustteams-api/pkg/errors"
	"github.com/trustteams/trustteams-api/pkg/export"
)

type icmUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type icmOpportunityRepository interface {
	FindByID(ctx context.Context, id string) (*models.Opportunity, error)
	List(ctx context.Context, filter models.OpportunityFilter) ([]models.Opportunity, int, error)
	CountForPoster(ctx context.Context, posterID string) (total, open int, err error)
}

type icmApplicationRepository interface {
	ListForOpportunity(ctx context.Context, opportunityID string) ([]models.Application, error)
	CountForPoster(ctx context.Context, posterID string, since time.Time) (total, recent int, err error)
}

type icmProfileRepository interface {
	GetICMProfile(ctx context.Context, userID string) (*models.ICMProfile, error)
	UpsertICMProfile(ctx context.Context, profile *models.ICMProfile) error
}

// ICMService provides the industry manager view: own postings, per-posting
// applicants with export, activity stats, and the company profile document.
type ICMService struct {
	users         icmUserRepository
	opportunities icmOpportunityRepository
	applications  icmApplicationRepository
	profiles      icmProfileRepository
	csv           *export.CSVExporter
	pdf           *export.PDFExporter
	logger        *zap.Logger
}

// NewICMService constructs an ICMService instance.
func NewICMService(
	users icmUserRepository,
	opportunities icmOpportunityRepository,
	applications icmApplicationRepository,
	profiles icmProfileRepository,
	logger *zap.Logger,
) *ICMService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ICMService{
		users:         users,
		opportunities: opportunities,
		applications:  applications,
		profiles:      profiles,
		csv:           export.NewCSVExporter(),
		pdf:           export.NewPDFExporter(),
		logger:        logger,
	}
}

// MyOpportunities returns the manager's own postings.
func (s *ICMService) MyOpportunities(ctx context.Context, icmID string, limit, offset int) ([]models.Opportunity, *models.Pagination, error) {
	if _, err := s.managerCaller(ctx, icmID); err != nil {
		return nil, nil, err
	}

	filter := models.OpportunityFilter{PostedBy: icmID, Limit: limit, Offset: offset}
	items, total, err := s.opportunities.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list opportunities")
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return items, models.NewPagination(total, limit, offset), nil
}

// Applicants returns the applications to one of the manager's own postings.
func (s *ICMService) Applicants(ctx context.Context, icmID, opportunityID string) ([]models.Application, error) {
	if err := s.requireOwnPosting(ctx, icmID, opportunityID); err != nil {
		return nil, err
	}
	apps, err := s.applications.ListForOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applicants")
	}
	return apps, nil
}

// ExportApplicants renders the applicant list of one of the manager's own
// postings as CSV or PDF.
func (s *ICMService) ExportApplicants(ctx context.Context, icmID, opportunityID, format string) ([]byte, string, error) {
	if err := s.requireOwnPosting(ctx, icmID, opportunityID); err != nil {
		return nil, "", err
	}
	opp, err := s.opportunities.FindByID(ctx, opportunityID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load opportunity")
	}
	apps, err := s.applications.ListForOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applicants")
	}

	data := applicantDataset(apps)
	switch strings.ToLower(format) {
	case "", "csv":
		out, err := s.csv.Render(data)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return out, "text/csv", nil
	case "pdf":
		out, err := s.pdf.Render(data, fmt.Sprintf("Applicants - %s", opp.Title))
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return out, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

// Stats aggregates the manager's posting counts and applicant activity, with
// a rolling seven-day window for recent applications.
func (s *ICMService) Stats(ctx context.Context, icmID string) (*models.ICMStats, error) {
	if _, err := s.managerCaller(ctx, icmID); err != nil {
		return nil, err
	}

	totalOpps, openOpps, err := s.opportunities.CountForPoster(ctx, icmID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count opportunities")
	}
	since := time.Now().UTC().AddDate(0, 0, -7)
	totalApps, recentApps, err := s.applications.CountForPoster(ctx, icmID, since)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count applications")
	}

	return &models.ICMStats{
		TotalOpportunities: totalOpps,
		OpenOpportunities:  openOpps,
		TotalApplications:  totalApps,
		RecentApplications: recentApps,
	}, nil
}

// CompanyProfile returns the manager's company profile document, creating an
// empty one on first read.
func (s *ICMService) CompanyProfile(ctx context.Context, icmID string) (*models.ICMProfile, error) {
	if _, err := s.managerCaller(ctx, icmID); err != nil {
		return nil, err
	}
	profile, err := s.profiles.GetICMProfile(ctx, icmID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load company profile")
	}
	return profile, nil
}

// UpdateCompanyProfile replaces the supplied sections of the company profile.
func (s *ICMService) UpdateCompanyProfile(ctx context.Context, icmID string, req models.UpdateICMProfileRequest) (*models.ICMProfile, error) {
	if _, err := s.managerCaller(ctx, icmID); err != nil {
		return nil, err
	}

	current, err := s.profiles.GetICMProfile(ctx, icmID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load company profile")
	}

	if req.Company != nil {
		current.Company = req.Company
	}
	if req.Culture != nil {
		current.Culture = req.Culture
	}
	if req.Recruitment != nil {
		current.Recruitment = req.Recruitment
	}
	if req.Highlights != nil {
		current.Highlights = req.Highlights
	}
	if req.People != nil {
		current.People = req.People
	}

	if err := s.profiles.UpsertICMProfile(ctx, current); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save company profile")
	}
	return current, nil
}

func (s *ICMService) managerCaller(ctx context.Context, id string) (*models.User, error) {
	caller, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unknown caller")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load caller")
	}
	if !caller.Role.ManagerEquivalent() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "manager role required")
	}
	return caller, nil
}

func (s *ICMService) requireOwnPosting(ctx context.Context, icmID, opportunityID string) error {
	if _, err := s.managerCaller(ctx, icmID); err != nil {
		return err
	}
	opp, err := s.opportunities.FindByID(ctx, opportunityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "opportunity not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load opportunity")
	}
	if opp.PostedBy != icmID {
		return appErrors.Clone(appErrors.ErrForbidden, "not your opportunity")
	}
	return nil
}

func applicantDataset(apps []models.Application) export.Dataset {
	headers := []string{"Student", "Email", "Status", "GPA", "Applied", "Reviewed"}
	rows := make([]map[string]string, 0, len(apps))
	for _, app := range apps {
		row := map[string]string{
			"Student": deref(app.StudentName),
			"Email":   deref(app.StudentEmail),
			"Status":  string(app.Status),
			"Applied": app.ApplicationDate.Format("2006-01-02"),
		}
		if app.GPA != nil {
			row["GPA"] = fmt.Sprintf("%.2f", *app.GPA)
		}
		if app.ReviewedAt != nil {
			row["Reviewed"] = app.ReviewedAt.Format("2006-01-02")
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
