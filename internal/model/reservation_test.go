package model

import (
	"testing"
	"time"
)

func TestReservationHappyPathClientTicketToLease(t *testing.T) {
	r := NewReservation("r1", "s1", CategoryClient)
	if r.Primary != Nascent || r.Pending != PendingNone {
		t.Fatalf("new reservation should start Nascent/None")
	}

	term := NewTerm(time.Unix(0, 0), time.Unix(3600, 0))
	r.Bind(ResourceSet{ResourceType: "vm", Units: 2}, term)
	if r.Primary != Ticketed || !r.CanSendRequest() {
		t.Fatalf("bind should leave Ticketed/None with the gate open")
	}

	r.BeginRedeem()
	if r.Primary != Ticketed || r.Pending != Redeeming || r.CanSendRequest() {
		t.Fatalf("begin-redeem should gate further requests")
	}

	r.CompleteRedeem(ResourceSet{ResourceType: "vm", Units: 2}, term)
	if r.Primary != Active || r.Pending != PendingNone {
		t.Fatalf("complete-redeem should reach Active/None, got %s", r.stateLabel())
	}
}

func TestReservationExtendCycleReachesActiveTicketedThenActive(t *testing.T) {
	r := NewReservation("r2", "s1", CategoryClient)
	term := NewTerm(time.Unix(0, 0), time.Unix(3600, 0))
	r.Bind(ResourceSet{Units: 1}, term)
	r.BeginRedeem()
	r.CompleteRedeem(ResourceSet{Units: 1}, term)

	r.BeginExtendTicket()
	if r.Pending != ExtendingTicket {
		t.Fatalf("expected pending ExtendingTicket")
	}
	extended := term.Extend(time.Hour)
	r.CompleteExtendTicket(ResourceSet{Units: 1}, extended)
	if r.Primary != ActiveTicketed {
		t.Fatalf("expected ActiveTicketed after ticket extension completes")
	}

	r.BeginExtendLease()
	r.CompleteExtendLease(ResourceSet{Units: 1}, extended)
	if r.Primary != Active || r.Pending != PendingNone {
		t.Fatalf("expected Active/None after lease extension completes, got %s", r.stateLabel())
	}
}

func TestReservationBeginRedeemRequiresTicketedNone(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on begin-redeem from Nascent")
		}
	}()
	r := NewReservation("r3", "s1", CategoryClient)
	r.BeginRedeem()
}

func TestReservationBlockedStateIsGatedAndExplicitlyCleared(t *testing.T) {
	r := NewReservation("r4", "s1", CategoryClient)
	term := NewTerm(time.Unix(0, 0), time.Unix(3600, 0))
	r.Bind(ResourceSet{Units: 1}, term)
	r.BeginRedeem()
	r.CompleteRedeem(ResourceSet{Units: 1}, term)

	r.Block()
	if r.CanSendRequest() {
		t.Fatalf("blocked reservation must gate")
	}
	r.Unblock()
	if !r.CanSendRequest() {
		t.Fatalf("unblock should reopen the gate")
	}
}

func TestReservationFailFromAnyNonTerminalState(t *testing.T) {
	r := NewReservation("r5", "s1", CategoryClient)
	r.Fail("policy rejected bind")
	if r.Primary != Failed {
		t.Fatalf("expected Failed, got %v", r.Primary)
	}
	// Fail is idempotent once terminal.
	r.Fail("again")
	if r.ErrorMessage != "policy rejected bind" {
		t.Fatalf("second Fail must not overwrite a terminal reservation's error")
	}
}

func TestReservationCloseRequiresPendingCloseState(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic completing close without pending Closing")
		}
	}()
	r := NewReservation("r6", "s1", CategoryClient)
	term := NewTerm(time.Unix(0, 0), time.Unix(3600, 0))
	r.Bind(ResourceSet{Units: 1}, term)
	r.BeginRedeem()
	r.CompleteRedeem(ResourceSet{Units: 1}, term)
	r.CompleteClose()
}

func TestUnitLifecycle(t *testing.T) {
	u := NewUnit("u1", "r1", "s1")
	u.BeginPriming()
	u.CompletePriming()
	if u.State != UnitActive {
		t.Fatalf("expected Active, got %v", u.State)
	}
	u.BeginClose()
	u.CompleteClose()
	if u.State != UnitDefault {
		t.Fatalf("expected released unit back to Default, got %v", u.State)
	}
}

func TestDelegationLifecycle(t *testing.T) {
	d := NewDelegation("d1", "s1", "broker-1")
	term := NewTerm(time.Unix(0, 0), time.Unix(3600, 0))
	d.Delegate(ResourceSet{Units: 10}, term)
	if d.State != DelegationDelegated {
		t.Fatalf("expected Delegated, got %v", d.State)
	}
	d.Reclaim()
	d.Redelegate(ResourceSet{Units: 5}, term)
	if d.State != DelegationDelegated || d.Resource.Units != 5 {
		t.Fatalf("expected redelegated with 5 units, got %v/%d", d.State, d.Resource.Units)
	}
	d.Close()
	if d.State != DelegationClosed {
		t.Fatalf("expected Closed, got %v", d.State)
	}
}

func TestSliceMembership(t *testing.T) {
	s := NewSlice("s1", "my-slice", "alice", SliceTypeClient)
	if !s.IsEmpty() {
		t.Fatalf("new slice should be empty")
	}
	s.AddReservation("r1")
	if s.IsEmpty() {
		t.Fatalf("slice with a reservation should not be empty")
	}
	s.RemoveReservation("r1")
	if !s.IsEmpty() {
		t.Fatalf("slice should be empty again after removing its only reservation")
	}
}
