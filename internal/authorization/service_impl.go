package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	"github.com/smallbiznis/carebill/internal/callercontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectBill         = "bill"
	ObjectPaymentOrder = "payment_order"
	ObjectPayment      = "payment"
	ObjectReceipt      = "receipt"
)

const (
	ActionBillView           = "bill.view"
	ActionPaymentOrderCreate = "payment_order.create"
	ActionPaymentView        = "payment.view"
	ActionPaymentRecord      = "payment.record_manual"
	ActionPaymentAllocate    = "payment.allocate"
	ActionReceiptView        = "receipt.view"
)

const actionAuthorizationDenied = "authorization.denied"

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, caller callercontext.Caller, object string, action string) error {
	if caller.Role == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(caller.Subject(), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("role", string(caller.Role)),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.auditDenied(ctx, caller, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) auditDenied(ctx context.Context, caller callercontext.Caller, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		Caller:     caller,
		Action:     actionAuthorizationDenied,
		TargetType: "authorization",
		TargetID:   object,
		Metadata: map[string]any{
			"object": object,
			"action": action,
			"role":   string(caller.Role),
		},
	})
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Patients reach only their own records; ownership is enforced by
		// the calling service.
		{"role:patient", ObjectBill, ActionBillView},
		{"role:patient", ObjectPaymentOrder, ActionPaymentOrderCreate},
		{"role:patient", ObjectPayment, ActionPaymentView},
		{"role:patient", ObjectReceipt, ActionReceiptView},

		{"role:doctor", ObjectBill, ActionBillView},

		{"role:staff", ObjectBill, ActionBillView},
		{"role:staff", ObjectPayment, ActionPaymentView},
		{"role:staff", ObjectPayment, ActionPaymentRecord},
		{"role:staff", ObjectReceipt, ActionReceiptView},

		{"role:system", ObjectPayment, ActionPaymentAllocate},
		{"role:system", ObjectPayment, ActionPaymentView},
		{"role:system", ObjectBill, ActionBillView},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	// admin inherits every staff capability
	if _, err := enforcer.AddGroupingPolicy("role:admin", "role:staff"); err != nil {
		return err
	}
	return nil
}
