package management

import (
	"context"

	"github.com/fabric-actor/kernel/internal/kernel"
	"github.com/fabric-actor/kernel/internal/model"
	"github.com/fabric-actor/kernel/internal/persistence"
	"github.com/fabric-actor/kernel/pkg/apierr"
	"github.com/fabric-actor/kernel/pkg/logger"
)

// ControllerObject is the orchestrator-role management surface: the
// shared CRUD base plus nothing role-specific, mirroring
// controller_management_object.py adding only bookkeeping the generic
// helper already covers.
type ControllerObject struct {
	*Base
}

// NewControllerObject builds a ControllerObject.
func NewControllerObject(k *kernel.Kernel, gw persistence.Gateway, access AccessChecker, log *logger.Logger) *ControllerObject {
	return &ControllerObject{Base: NewBase(k, gw, access, log)}
}

// BrokerObject adds the broker-role calls original_source's
// broker_management_object.py layers over the shared helper: listing
// delegations by state and the pool-info query a broker exposes to its
// clients.
type BrokerObject struct {
	*Base
}

// NewBrokerObject builds a BrokerObject.
func NewBrokerObject(k *kernel.Kernel, gw persistence.Gateway, access AccessChecker, log *logger.Logger) *BrokerObject {
	return &BrokerObject{Base: NewBase(k, gw, access, log)}
}

// ListDelegationsByState returns a snapshot of every delegation in the
// given state, the broker-specific analog of ListReservationsByState.
func (bo *BrokerObject) ListDelegationsByState(ctx context.Context, token string, state model.DelegationState) ([]model.Delegation, error) {
	var out []model.Delegation
	err := bo.call(ctx, token, "list_delegations", "delegation", "", func(k *kernel.Kernel) error {
		for _, d := range k.Delegations() {
			if d.State == state {
				out = append(out, *d)
			}
		}
		return nil
	})
	return out, err
}

// AuthorityObject adds the authority-role surface: direct inventory
// pool visibility (pool info is policy-internal and stays opaque here,
// per the non-goal on concrete scheduling policy; the management-plane
// hook simply reports unit counts it already tracks per reservation).
type AuthorityObject struct {
	*Base
}

// NewAuthorityObject builds an AuthorityObject.
func NewAuthorityObject(k *kernel.Kernel, gw persistence.Gateway, access AccessChecker, log *logger.Logger) *AuthorityObject {
	return &AuthorityObject{Base: NewBase(k, gw, access, log)}
}

// UnitsForReservation returns the units persisted against a reservation,
// the authority-specific query original_source's authority management
// object exposes alongside the shared CRUD surface.
func (ao *AuthorityObject) UnitsForReservation(ctx context.Context, token string, reservationID string) ([]*model.Unit, error) {
	if err := ao.access.Check(ctx, token, "list_units", "reservation", reservationID); err != nil {
		return nil, err
	}
	if ao.gw == nil {
		return nil, apierr.InternalError("no persistence gateway configured for unit lookup", nil)
	}
	return ao.gw.LoadUnitsByReservation(ctx, reservationID)
}
