package model

// Sequence tracks the at-most-once message numbering the RPC engine
// stamps on outbound requests (sequence_out) and validates on inbound
// responses (sequence_in), per §4.5.
type Sequence struct {
	In  int
	Out int
}

// Reservation is the core entity every actor's kernel schedules,
// persists, and drives through the composite state machine of §3/§4.2:
// a (PrimaryState, PendingState, JoinState) triple plus the term and
// resource-set history backing it.
type Reservation struct {
	ID          string
	SliceID     string
	ActorID     string
	Category    Category
	AuthorityID string
	BrokerID    string

	Primary PrimaryState
	Pending PendingState
	Join    JoinState

	RequestedTerm Term
	ApprovedTerm  Term
	Term          Term // currently granted/active term
	PreviousTerm  Term

	Requested ResourceSet
	Approved  ResourceSet
	Resources ResourceSet // currently granted/active resources

	Seq Sequence

	// UpdateData carries policy-opaque fields round-tripped on
	// extend/update RPCs (e.g. notices, config hints) that the kernel
	// never interprets.
	UpdateData map[string]string

	Dirty          bool // needs a persistence flush
	PendingRecover bool // recovery re-issued the in-flight outbound RPC
	ErrorMessage   string

	// DelegationID is set when this reservation's resources derive from
	// a delegation rather than a direct ticket/lease exchange.
	DelegationID string

	// BatchID groups nascent reservations awaiting admission into an
	// all-or-nothing review batch (§4.4's ticket-review semantics);
	// empty means the reservation is admitted on its own.
	BatchID string
}

// NewReservation builds a Nascent/None/None reservation ready for
// policy.bind.
func NewReservation(id, sliceID string, category Category) *Reservation {
	return &Reservation{
		ID:       id,
		SliceID:  sliceID,
		Category: category,
		Primary:  Nascent,
		Pending:  PendingNone,
		Join:     JoinNone,
	}
}

// CanSendRequest reports whether the pending gate allows a new outbound
// RPC for this reservation right now (§4.3).
func (r *Reservation) CanSendRequest() bool { return !r.Pending.Gated() }

func (r *Reservation) setPrimary(to PrimaryState, detail string) {
	validatePrimary("reservation", r.Primary, to, detail)
	r.Primary = to
	r.Dirty = true
}

func (r *Reservation) setPending(to PendingState) {
	r.Pending = to
	r.Dirty = true
}

// Bind records the policy's bind+allocate decision for a new
// reservation: Nascent/None -> Ticketed/None on success.
func (r *Reservation) Bind(approved ResourceSet, term Term) {
	r.setPrimary(Ticketed, "bind")
	r.Approved = approved
	r.ApprovedTerm = term
	r.setPending(PendingNone)
}

// BeginRedeem opens the pending gate for an outbound redeem request:
// Ticketed/None -> Ticketed/Redeeming.
func (r *Reservation) BeginRedeem() {
	if r.Primary != Ticketed || r.Pending != PendingNone {
		panic(&InvariantViolation{Entity: "reservation", From: r.stateLabel(), To: "Ticketed/Redeeming", Detail: "redeem requires Ticketed/None"})
	}
	r.setPending(Redeeming)
	r.Seq.Out++
}

// CompleteRedeem absorbs the authority's lease and clears the gate:
// Ticketed/Redeeming -> Active/None.
func (r *Reservation) CompleteRedeem(granted ResourceSet, term Term) {
	if r.Pending != Redeeming {
		panic(&InvariantViolation{Entity: "reservation", From: r.stateLabel(), To: "Active/None", Detail: "complete-redeem requires pending Redeeming"})
	}
	r.setPrimary(Active, "complete-redeem")
	r.Resources = granted
	r.Term = term
	r.setPending(PendingNone)
}

// BeginExtendTicket opens the gate for a ticket renewal request:
// Active/None -> Active/ExtendingTicket.
func (r *Reservation) BeginExtendTicket() {
	if r.Primary != Active || r.Pending != PendingNone {
		panic(&InvariantViolation{Entity: "reservation", From: r.stateLabel(), To: "Active/ExtendingTicket", Detail: "extend-ticket requires Active/None"})
	}
	r.setPending(ExtendingTicket)
	r.Seq.Out++
}

// CompleteExtendTicket absorbs the renewed ticket: the reservation
// carries both its active lease and the freshly extended ticket until
// the matching lease extension completes, hence ActiveTicketed.
func (r *Reservation) CompleteExtendTicket(approved ResourceSet, term Term) {
	if r.Pending != ExtendingTicket {
		panic(&InvariantViolation{Entity: "reservation", From: r.stateLabel(), To: "ActiveTicketed/None", Detail: "complete-extend-ticket requires pending ExtendingTicket"})
	}
	r.setPrimary(ActiveTicketed, "complete-extend-ticket")
	r.Approved = approved
	r.ApprovedTerm = term
	r.setPending(PendingNone)
}

// BeginExtendLease opens the gate for the matching lease extension:
// ActiveTicketed/None -> ActiveTicketed/ExtendingLease.
func (r *Reservation) BeginExtendLease() {
	if r.Primary != ActiveTicketed || r.Pending != PendingNone {
		panic(&InvariantViolation{Entity: "reservation", From: r.stateLabel(), To: "ActiveTicketed/ExtendingLease", Detail: "extend-lease requires ActiveTicketed/None"})
	}
	r.setPending(ExtendingLease)
	r.Seq.Out++
}

// CompleteExtendLease folds the newly extended ticket back into the
// active lease: ActiveTicketed/ExtendingLease -> Active/None.
func (r *Reservation) CompleteExtendLease(granted ResourceSet, term Term) {
	if r.Pending != ExtendingLease {
		panic(&InvariantViolation{Entity: "reservation", From: r.stateLabel(), To: "Active/None", Detail: "complete-extend-lease requires pending ExtendingLease"})
	}
	r.setPrimary(Active, "complete-extend-lease")
	r.Resources = granted
	r.PreviousTerm = r.Term
	r.Term = term
	r.setPending(PendingNone)
}

// AbsorbUpdateLease merges an unsolicited lease update from the
// authority (no matching outbound request) without touching Primary.
func (r *Reservation) AbsorbUpdateLease(resources ResourceSet, term Term) {
	r.Resources = resources
	r.Term = term
	r.Dirty = true
}

// Block marks the reservation Blocked: gated like any other pending
// state, and per §9 only cleared by an explicit Unblock call — never
// retried automatically on Tick.
func (r *Reservation) Block() { r.setPending(Blocked) }

// Unblock clears a Blocked pending state back to None.
func (r *Reservation) Unblock() {
	if r.Pending != Blocked {
		panic(&InvariantViolation{Entity: "reservation", From: r.stateLabel(), To: "*/None", Detail: "unblock requires pending Blocked"})
	}
	r.setPending(PendingNone)
}

// BeginClose starts an orderly close: any non-terminal primary state
// moves to its own value with pending Closing (or ClosingJoining if a
// pending request was already gating it and must be let to finish
// first — callers set Join accordingly before calling).
func (r *Reservation) BeginClose() {
	if r.Primary.Terminal() {
		return
	}
	if r.Pending.Gated() {
		r.setPending(ClosingJoining)
		return
	}
	r.setPending(Closing)
}

// CompleteClose finishes a close: */Closing or */ClosingJoining ->
// Closed/None.
func (r *Reservation) CompleteClose() {
	if r.Pending != Closing && r.Pending != ClosingJoining {
		panic(&InvariantViolation{Entity: "reservation", From: r.stateLabel(), To: "Closed/None", Detail: "complete-close requires pending Closing or ClosingJoining"})
	}
	r.setPrimary(Closed, "complete-close")
	r.setPending(PendingNone)
}

// Fail moves the reservation to the terminal Failed state from any
// non-terminal state, clearing the pending gate. Used on an
// unrecoverable Failed-RPC or a policy/plugin error.
func (r *Reservation) Fail(message string) {
	if r.Primary.Terminal() {
		return
	}
	r.setPrimary(Failed, "fail: "+message)
	r.ErrorMessage = message
	r.setPending(PendingNone)
}

func (r *Reservation) stateLabel() string {
	return r.Primary.String() + "/" + r.Pending.String()
}
