package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"guardian-recovery/internal/event"
	"guardian-recovery/internal/metrics"
	"guardian-recovery/internal/model"
	"guardian-recovery/internal/revoke"
)

// RevokeService exposes the revoke helper with audit, metrics and events.
type RevokeService struct {
	// mu queues concurrent requests; the helper itself rejects overlap.
	mu      sync.Mutex
	helper  *revoke.Helper
	bus     event.Bus
	audit   *AuditService
	metrics *metrics.Recorder
	now     func() time.Time
}

func NewRevokeService(helper *revoke.Helper, bus event.Bus, audit *AuditService, recorder *metrics.Recorder) *RevokeService {
	return &RevokeService{helper: helper, bus: bus, audit: audit, metrics: recorder, now: time.Now}
}

func (s *RevokeService) MaxBatch() int {
	return s.helper.MaxBatch()
}

func (s *RevokeService) RevokeApproval(ctx context.Context, actor model.AuditActor, token common.Address, spender common.Address) (model.RevokeResult, error) {
	caller, err := model.ParseAddress(actor.Address)
	if err != nil {
		return model.RevokeResult{}, err
	}

	s.mu.Lock()
	result, err := s.helper.RevokeApproval(ctx, caller, token, spender)
	s.mu.Unlock()
	s.finish("approval.revoke", actor, token.Hex()+"/"+spender.Hex(), result, err)
	if err != nil {
		return model.RevokeResult{}, err
	}

	s.metrics.ObserveRevocation(string(result.Status))
	s.publish(event.TypeApprovalRevoked, caller, result)
	return result, nil
}

func (s *RevokeService) BatchRevokeApprovals(ctx context.Context, actor model.AuditActor, tokens []common.Address, spenders []common.Address) (model.BatchRevokeData, error) {
	caller, err := model.ParseAddress(actor.Address)
	if err != nil {
		return model.BatchRevokeData{}, err
	}

	s.mu.Lock()
	data, err := s.helper.BatchRevokeApprovals(ctx, caller, tokens, spenders)
	s.mu.Unlock()
	s.finish("approval.batch_revoke", actor, "", data, err)

	// Pairs processed before a ledger failure are already revoked.
	for _, result := range data.Results {
		s.metrics.ObserveRevocation(string(result.Status))
	}
	if len(data.Results) > 0 {
		s.publish(event.TypeApprovalBatchRevoked, caller, data)
	}
	return data, err
}

func (s *RevokeService) EmergencyRevoke(ctx context.Context, actor model.AuditActor, token common.Address, spender common.Address) (model.EmergencyMarker, error) {
	caller, err := model.ParseAddress(actor.Address)
	if err != nil {
		return model.EmergencyMarker{}, err
	}

	s.mu.Lock()
	marker, err := s.helper.EmergencyRevoke(ctx, caller, token, spender)
	s.mu.Unlock()
	s.finish("approval.emergency", actor, token.Hex()+"/"+spender.Hex(), marker, err)
	if err != nil {
		return model.EmergencyMarker{}, err
	}

	s.publish(event.TypeApprovalEmergency, caller, marker)
	return marker, nil
}

func (s *RevokeService) Allowance(ctx context.Context, owner common.Address, token common.Address, spender common.Address) (model.AllowanceData, error) {
	return s.helper.Allowance(ctx, owner, token, spender)
}

func (s *RevokeService) IsRevoked(owner common.Address, token common.Address, spender common.Address) bool {
	return s.helper.IsRevoked(owner, token, spender)
}

func (s *RevokeService) finish(action string, actor model.AuditActor, resource string, after any, err error) {
	s.metrics.ObserveOperation(action, err)
	if err == nil {
		s.audit.Log(action, actor, auditStatusSuccess, resource, nil, after, "")
		return
	}

	status := auditStatusFailed
	if model.Kind(err) != "" {
		status = auditStatusRejected
	} else {
		slog.Error("approval revocation failed", "action", action, "actor", actor.Address, "error", err)
	}
	s.audit.Log(action, actor, status, resource, nil, nil, err.Error())
}

func (s *RevokeService) publish(typ event.Type, actor common.Address, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.New(typ, actor.Hex(), payload, s.now()))
}
