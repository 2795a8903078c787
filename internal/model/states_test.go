package model

import "testing"

func TestAbsorbUpdateAliasesModifyingLease(t *testing.T) {
	if AbsorbUpdate != ModifyingLease {
		t.Fatalf("AbsorbUpdate = %v, want alias of ModifyingLease %v", AbsorbUpdate, ModifyingLease)
	}
}

func TestBlockedPendingStateIsGated(t *testing.T) {
	if !Blocked.Gated() {
		t.Fatalf("Blocked must gate new outbound RPC")
	}
	if PendingNone.Gated() {
		t.Fatalf("PendingNone must not gate")
	}
}

func TestHoldsResources(t *testing.T) {
	cases := map[PrimaryState]bool{
		Nascent:        false,
		Ticketed:       true,
		Active:         true,
		ActiveTicketed: true,
		CloseWait:      true,
		Closed:         false,
		Failed:         false,
	}
	for state, want := range cases {
		if got := HoldsResources(state); got != want {
			t.Errorf("HoldsResources(%v) = %v, want %v", state, got, want)
		}
	}
}

func TestTerminal(t *testing.T) {
	if !Closed.Terminal() || !Failed.Terminal() {
		t.Fatalf("Closed and Failed must be terminal")
	}
	if Active.Terminal() {
		t.Fatalf("Active must not be terminal")
	}
}
