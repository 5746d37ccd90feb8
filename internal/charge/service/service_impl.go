package service

import (
	"context"
	"time"

	"github.com/smallbiznis/carebill/internal/charge/domain"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/config"
	encounterdomain "github.com/smallbiznis/carebill/internal/encounter/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Cfg        config.Config
	Encounters encounterdomain.Repository
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	loc        *time.Location
	encounters encounterdomain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("charge.service"),
		clock:      p.Clock,
		loc:        p.Cfg.Billing.Location(),
		encounters: p.Encounters,
	}
}

func (s *Service) Synthesize(ctx context.Context, patientID int64) ([]domain.BillItem, error) {
	visits, err := s.encounters.ListVisits(ctx, s.db, patientID)
	if err != nil {
		return nil, err
	}
	stays, err := s.encounters.ListStays(ctx, s.db, patientID)
	if err != nil {
		return nil, err
	}

	items := Synthesize(Input{
		Visits:   visits,
		Stays:    stays,
		Now:      s.clock.Now(),
		Location: s.loc,
	})

	s.log.Debug("synthesized bill items",
		zap.Int("visits", len(visits)),
		zap.Int("stays", len(stays)),
	)
	return items, nil
}
