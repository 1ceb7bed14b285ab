package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/thesis-flow-api/internal/dto"
	"github.com/noah-isme/thesis-flow-api/internal/models"
	appErrors "github.com/noah-isme/thesis-flow-api/pkg/errors"
)

type juryStore interface {
	GetByTheme(ctx context.Context, themeID string) (*models.JuryDecision, error)
	Upsert(ctx context.Context, decision *models.JuryDecision) error
	UpsertWithCorrections(ctx context.Context, decision *models.JuryDecision, finalDocumentID string) error
}

type juryDocumentReader interface {
	GetActive(ctx context.Context, themeID string, docType models.DocumentType) (*models.Document, error)
}

type readinessGate interface {
	IsDefenseReady(ctx context.Context, themeID string) (bool, error)
}

type deliberationMetrics interface {
	ObserveDeliberation(decision models.JuryDecisionOutcome)
}

// JuryService records deliberation outcomes for defense-ready themes. One
// decision per theme, upsert semantics: a later deliberation replaces the
// earlier one.
type JuryService struct {
	repo      juryStore
	themes    themeReader
	docs      juryDocumentReader
	gate      readinessGate
	notifier  transitionNotifier
	audit     auditLogger
	progress  progressInvalidator
	metrics   deliberationMetrics
	validator *validator.Validate
	logger    *zap.Logger
}

// NewJuryService constructs the service.
func NewJuryService(repo juryStore, themes themeReader, docs juryDocumentReader, gate readinessGate, notifier transitionNotifier, audit auditLogger, progress progressInvalidator, metrics deliberationMetrics, validate *validator.Validate, logger *zap.Logger) *JuryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &JuryService{
		repo:      repo,
		themes:    themes,
		docs:      docs,
		gate:      gate,
		notifier:  notifier,
		audit:     audit,
		progress:  progress,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// RecordDecision validates and persists the deliberation outcome. APPROVED
// requires a grade; CORRECTIONS_REQUIRED requires a description and re-opens
// the final-version submission path in the same transaction. REJECTED is
// terminal; no resubmission path is defined here.
func (s *JuryService) RecordDecision(ctx context.Context, themeID string, req dto.RecordDecisionRequest, actor *models.JWTClaims) (*models.JuryDecision, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid deliberation payload")
	}

	theme, err := s.themes.GetByID(ctx, themeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "theme not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load theme")
	}

	switch req.Decision {
	case models.JuryDecisionApproved:
		if req.Grade == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "an approved decision requires a grade")
		}
	case models.JuryDecisionCorrectionsRequired:
		if strings.TrimSpace(req.CorrectionsDescription) == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "corrections require a description")
		}
	case models.JuryDecisionRejected:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported decision: %s", req.Decision))
	}

	ready, err := s.gate.IsDefenseReady(ctx, themeID)
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, appErrors.Clone(appErrors.ErrNotDefenseReady, "deliberation requires defense readiness")
	}

	now := time.Now().UTC()
	decision := &models.JuryDecision{
		ThemeID:                themeID,
		StudentID:              theme.StudentID,
		Decision:               req.Decision,
		Grade:                  req.Grade,
		Mention:                optionalText(req.Mention),
		CorrectionsRequired:    req.Decision == models.JuryDecisionCorrectionsRequired,
		CorrectionsDeadline:    req.CorrectionsDeadline,
		CorrectionsDescription: optionalText(req.CorrectionsDescription),
		Notes:                  optionalText(req.Notes),
		DecidedBy:              actor.UserID,
		DecidedAt:              now,
	}

	if decision.CorrectionsRequired {
		finalDoc, err := s.docs.GetActive(ctx, themeID, models.DocumentTypeFinalVersion)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrInvalidState, "no final version on record for corrections")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load final version")
		}
		if err := s.repo.UpsertWithCorrections(ctx, decision, finalDoc.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record corrections decision")
		}
	} else {
		if err := s.repo.Upsert(ctx, decision); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record jury decision")
		}
	}

	if s.progress != nil {
		s.progress.Invalidate(ctx, themeID)
	}
	if s.metrics != nil {
		s.metrics.ObserveDeliberation(decision.Decision)
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, Notification{
			RecipientID: theme.StudentID,
			Template:    NotificationJuryDecision,
			Subject:     "Jury deliberation recorded",
			Params: map[string]string{
				"theme_id": themeID,
				"decision": string(decision.Decision),
			},
		})
	}
	s.emitAudit(ctx, actor.UserID, decision)
	return decision, nil
}

// Get returns the authoritative decision for a theme.
func (s *JuryService) Get(ctx context.Context, themeID string, actor *models.JWTClaims) (*models.JuryDecision, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	decision, err := s.repo.GetByTheme(ctx, themeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no deliberation recorded for theme")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load jury decision")
	}
	if actor.Role == models.RoleStudent && decision.StudentID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return decision, nil
}

func (s *JuryService) emitAudit(ctx context.Context, userID string, decision *models.JuryDecision) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionJuryDeliberation,
		Resource:   "jury_decision",
		ResourceID: &decision.ID,
		NewValues:  []byte(fmt.Sprintf(`{"theme_id":"%s","decision":"%s"}`, decision.ThemeID, decision.Decision)),
		IPAddress:  "system",
		UserAgent:  "jury-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
