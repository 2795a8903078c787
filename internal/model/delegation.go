package model

import "github.com/tidwall/gjson"

// Delegation represents a broker's or authority's grant of a pool of
// resources to a peer actor for the peer to sub-allocate, tracked
// separately from individual reservations (§4.2 last paragraph).
//
// Seq/Graph mirror original_source's delegation.py: sequence_out counts
// every update this side has generated, sequence_in is the highest
// sequence accepted from the peer, and Graph carries the peer's opaque
// resource-pool graph (an ARM/ADM slice, meaningless to the kernel
// beyond round-tripping it and, via GraphProperty, reading one field
// out of it without a full decode).
type Delegation struct {
	ID       string
	SliceID  string
	ActorID  string
	PeerID   string
	State    DelegationState
	Pending  DelegationPendingState
	Resource ResourceSet
	Term     Term
	Seq      Sequence
	Graph    []byte

	ErrorMessage   string
	PendingRecover bool

	Dirty bool
}

// NewDelegation builds a Nascent delegation awaiting Delegate.
func NewDelegation(id, sliceID, peerID string) *Delegation {
	return &Delegation{ID: id, SliceID: sliceID, PeerID: peerID, State: DelegationNascent, Pending: DelegationPendingNone}
}

func (d *Delegation) setState(to DelegationState, detail string) {
	validateDelegation(d.State, to, detail)
	d.State = to
	d.Dirty = true
}

func (d *Delegation) setPending(to DelegationPendingState) {
	d.Pending = to
	d.Dirty = true
}

// CanSendRequest reports whether the delegation's pending gate is open,
// i.e. no claim/reclaim round trip is already in flight.
func (d *Delegation) CanSendRequest() bool { return d.Pending == DelegationPendingNone }

// Delegate grants the resource pool to the peer: Nascent -> Delegated.
// Used for the synchronous, management-plane-local recording of a
// delegation that is not itself claimed over the RPC engine (e.g. a
// broker registering resources it owns outright).
func (d *Delegation) Delegate(resource ResourceSet, term Term) {
	d.setState(DelegationDelegated, "delegate")
	d.Resource = resource
	d.Term = term
}

// Reclaim pulls the delegation back, e.g. before re-issuing it with a
// different resource set: Delegated -> Reclaimed.
func (d *Delegation) Reclaim() {
	d.setState(DelegationReclaimed, "reclaim")
}

// Redelegate reissues a reclaimed delegation: Reclaimed -> Delegated.
func (d *Delegation) Redelegate(resource ResourceSet, term Term) {
	d.setState(DelegationDelegated, "redelegate")
	d.Resource = resource
	d.Term = term
}

// Close terminates the delegation from any non-terminal state.
func (d *Delegation) Close() {
	if d.State == DelegationClosed || d.State == DelegationFailed {
		return
	}
	d.setPending(DelegationPendingNone)
	d.setState(DelegationClosed, "close")
}

// Fail moves the delegation to its terminal Failed state, recording the
// notice that caused it (mirrors Reservation.Fail's ErrorMessage).
func (d *Delegation) Fail(reason string) {
	if d.State == DelegationClosed || d.State == DelegationFailed {
		return
	}
	d.ErrorMessage = reason
	d.setPending(DelegationPendingNone)
	d.setState(DelegationFailed, "fail: "+reason)
}

// BeginClaim opens the pending gate for an outbound claim round trip
// (§C.1): Nascent or Reclaimed delegations may be claimed; the primary
// state doesn't change until CompleteClaim folds the peer's grant in.
func (d *Delegation) BeginClaim() {
	if !d.CanSendRequest() {
		panic(&InvariantViolation{Entity: "delegation", From: d.Pending.String(), To: "Claiming", Detail: "claim already in flight"})
	}
	d.setPending(Claiming)
}

// CompleteClaim folds the peer's grant into the delegation once the
// claim round trip returns, closing the pending gate and incrementing
// sequence_out the way generate_update does in the grounding source.
func (d *Delegation) CompleteClaim(resource ResourceSet, term Term) {
	d.setState(DelegationDelegated, "claim")
	d.Resource = resource
	d.Term = term
	d.Seq.Out++
	d.setPending(DelegationPendingNone)
}

// BeginReclaim opens the pending gate for an outbound reclaim round
// trip.
func (d *Delegation) BeginReclaim() {
	if !d.CanSendRequest() {
		panic(&InvariantViolation{Entity: "delegation", From: d.Pending.String(), To: "Reclaiming", Detail: "claim already in flight"})
	}
	d.setPending(Reclaiming)
}

// CompleteReclaim folds the peer's reclaim acknowledgement into the
// delegation, closing the pending gate.
func (d *Delegation) CompleteReclaim() {
	d.setState(DelegationReclaimed, "reclaim")
	d.Seq.Out++
	d.setPending(DelegationPendingNone)
}

// AcceptUpdate records an inbound sequence number the way
// IncomingRPCEvent does for reservations, rejecting stale/duplicate
// deliveries at the same gate.
func (d *Delegation) AcceptUpdate(sequenceIn int) bool {
	if sequenceIn <= d.Seq.In {
		return false
	}
	d.Seq.In = sequenceIn
	d.Dirty = true
	return true
}

// LoadGraph replaces the opaque resource-pool graph blob, mirroring
// delegation.py's load_graph.
func (d *Delegation) LoadGraph(graph []byte) {
	d.Graph = graph
	d.Dirty = true
}

// GraphProperty reads a single field out of the opaque graph blob
// without unmarshaling it into a typed struct — the graph's shape is
// opaque to the kernel beyond this, so callers that only need one
// property (e.g. a node's site name) use gjson instead of a full
// decode.
func (d *Delegation) GraphProperty(path string) (string, bool) {
	if len(d.Graph) == 0 {
		return "", false
	}
	res := gjson.GetBytes(d.Graph, path)
	if !res.Exists() {
		return "", false
	}
	return res.String(), true
}
