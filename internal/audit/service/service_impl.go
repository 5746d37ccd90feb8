package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	"github.com/smallbiznis/carebill/internal/audit/masking"
	"github.com/smallbiznis/carebill/internal/callercontext"
	"github.com/smallbiznis/carebill/internal/clock"
	obsctx "github.com/smallbiznis/carebill/internal/observability/context"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	targetType := strings.TrimSpace(entry.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	actorType, actorID := resolveActor(entry.Caller)
	client := obsctx.ClientFromContext(ctx)

	row := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  string(actorType),
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   normalize(entry.TargetID),
		Metadata:   datatypes.JSONMap(masking.MaskMetadata(entry.Metadata)),
		RequestID:  normalize(obsctx.RequestIDFromContext(ctx)),
		IPAddress:  normalize(client.IPAddress),
		UserAgent:  normalize(client.UserAgent),
		CreatedAt:  s.clock.Now().UTC(),
	}

	if err := s.repo.Insert(ctx, s.db, &row); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func resolveActor(caller callercontext.Caller) (auditdomain.ActorType, *string) {
	switch caller.Role {
	case callercontext.RolePatient:
		id := strconv.FormatInt(caller.PatientID, 10)
		return auditdomain.ActorTypePatient, &id
	case callercontext.RoleStaff, callercontext.RoleDoctor, callercontext.RoleAdmin:
		role := string(caller.Role)
		return auditdomain.ActorTypeStaff, &role
	case "":
		return auditdomain.ActorTypeGateway, nil
	default:
		return auditdomain.ActorTypeSystem, nil
	}
}

func normalize(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
