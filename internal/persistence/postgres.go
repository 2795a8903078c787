package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	_ "github.com/lib/pq"

	"github.com/fabric-actor/kernel/internal/model"
	"github.com/fabric-actor/kernel/pkg/apierr"
)

// Store is the Postgres-backed Gateway. Every mutation is one
// transactional statement per entity (§4.6); there is no batching
// across reservations, trading some throughput for the "every dirty
// entity is persisted or rolled back in the same tick" invariant being
// trivially true.
type Store struct {
	db                *sql.DB
	concreteFactories map[string]ConcreteFactory
}

var _ Gateway = (*Store)(nil)

// NewStore wraps an already-configured *sql.DB (see Connect, or
// pkg/config's ConnectionString for how the DSN is built).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, concreteFactories: make(map[string]ConcreteFactory)}
}

// RegisterConcreteFactory lets a plugin register how to rebuild a
// concrete ticket/lease bundle of the given kind after Decode.
func (s *Store) RegisterConcreteFactory(kind string, factory ConcreteFactory) {
	s.concreteFactories[kind] = factory
}

func (s *Store) FlushReservation(r *model.Reservation) error {
	data, err := s.marshalReservation(r)
	if err != nil {
		return err
	}
	ctx := context.Background()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reservations
			(id, slice_id, actor_id, category, authority_id, broker_id, delegation_id,
			 primary_state, pending_state, join_state, seq_in, seq_out,
			 error_message, pending_recover, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW())
		ON CONFLICT (id) DO UPDATE SET
			slice_id = $2, actor_id = $3, category = $4, authority_id = $5, broker_id = $6,
			delegation_id = $7, primary_state = $8, pending_state = $9, join_state = $10,
			seq_in = $11, seq_out = $12, error_message = $13, pending_recover = $14,
			data = $15, updated_at = NOW()
	`, r.ID, r.SliceID, r.ActorID, int(r.Category), r.AuthorityID, r.BrokerID, r.DelegationID,
		int(r.Primary), int(r.Pending), int(r.Join), r.Seq.In, r.Seq.Out,
		r.ErrorMessage, r.PendingRecover, data)
	if err != nil {
		return apierr.DatabaseError("flush-reservation", err)
	}
	return nil
}

func (s *Store) LoadReservation(ctx context.Context, id string) (*model.Reservation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, slice_id, actor_id, category, authority_id, broker_id, delegation_id,
		       primary_state, pending_state, join_state, seq_in, seq_out,
		       error_message, pending_recover, data
		FROM reservations WHERE id = $1
	`, id)
	r, err := s.scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NoSuchReservation(id)
	}
	if err != nil {
		return nil, apierr.DatabaseError("load-reservation", err)
	}
	return r, nil
}

func (s *Store) LoadReservationsBySlice(ctx context.Context, sliceID string) ([]*model.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, slice_id, actor_id, category, authority_id, broker_id, delegation_id,
		       primary_state, pending_state, join_state, seq_in, seq_out,
		       error_message, pending_recover, data
		FROM reservations WHERE slice_id = $1
	`, sliceID)
	if err != nil {
		return nil, apierr.DatabaseError("load-reservations-by-slice", err)
	}
	defer rows.Close()

	var out []*model.Reservation
	for rows.Next() {
		r, err := s.scanReservation(rows)
		if err != nil {
			return nil, apierr.DatabaseError("scan-reservation", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) DeleteReservation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	if err != nil {
		return apierr.DatabaseError("delete-reservation", err)
	}
	return nil
}

// scanner abstracts over *sql.Row and *sql.Rows, both of which expose Scan.
type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanReservation(row scanner) (*model.Reservation, error) {
	var (
		r                                        model.Reservation
		category, primary, pending, join         int
		data                                      []byte
	)
	if err := row.Scan(&r.ID, &r.SliceID, &r.ActorID, &category, &r.AuthorityID, &r.BrokerID,
		&r.DelegationID, &primary, &pending, &join, &r.Seq.In, &r.Seq.Out,
		&r.ErrorMessage, &r.PendingRecover, &data); err != nil {
		return nil, err
	}
	r.Category = model.Category(category)
	r.Primary = model.PrimaryState(primary)
	r.Pending = model.PendingState(pending)
	r.Join = model.JoinState(join)
	if err := s.unmarshalReservation(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) FlushDelegation(d *model.Delegation) error {
	data, err := json.Marshal(delegationDoc{Term: toTermDoc(d.Term)})
	if err != nil {
		return err
	}
	ctx := context.Background()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO delegations
			(id, slice_id, actor_id, peer_id, state, pending_state, units, resource_type,
			 seq_in, seq_out, graph, error_message, pending_recover, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		ON CONFLICT (id) DO UPDATE SET
			slice_id = $2, actor_id = $3, peer_id = $4, state = $5, pending_state = $6, units = $7,
			resource_type = $8, seq_in = $9, seq_out = $10, graph = $11, error_message = $12,
			pending_recover = $13, data = $14, updated_at = NOW()
	`, d.ID, d.SliceID, d.ActorID, d.PeerID, int(d.State), int(d.Pending), d.Resource.Units, d.Resource.ResourceType,
		d.Seq.In, d.Seq.Out, d.Graph, d.ErrorMessage, d.PendingRecover, data)
	if err != nil {
		return apierr.DatabaseError("flush-delegation", err)
	}
	return nil
}

func (s *Store) LoadDelegation(ctx context.Context, id string) (*model.Delegation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, slice_id, actor_id, peer_id, state, pending_state, units, resource_type,
		       seq_in, seq_out, graph, error_message, pending_recover, data
		FROM delegations WHERE id = $1
	`, id)
	d, err := scanDelegation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NoSuchDelegation(id)
	}
	if err != nil {
		return nil, apierr.DatabaseError("load-delegation", err)
	}
	return d, nil
}

func (s *Store) LoadDelegationsBySlice(ctx context.Context, sliceID string) ([]*model.Delegation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, slice_id, actor_id, peer_id, state, pending_state, units, resource_type,
		       seq_in, seq_out, graph, error_message, pending_recover, data
		FROM delegations WHERE slice_id = $1
	`, sliceID)
	if err != nil {
		return nil, apierr.DatabaseError("load-delegations-by-slice", err)
	}
	defer rows.Close()
	var out []*model.Delegation
	for rows.Next() {
		d, err := scanDelegation(rows)
		if err != nil {
			return nil, apierr.DatabaseError("scan-delegation", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) DeleteDelegation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM delegations WHERE id = $1`, id)
	if err != nil {
		return apierr.DatabaseError("delete-delegation", err)
	}
	return nil
}

type delegationDoc struct {
	Term termDoc `json:"term"`
}

func scanDelegation(row scanner) (*model.Delegation, error) {
	var (
		d                          model.Delegation
		state, pending, units      int
		resourceType, errorMessage string
		graph                      []byte
		pendingRecover             bool
		data                       []byte
	)
	if err := row.Scan(&d.ID, &d.SliceID, &d.ActorID, &d.PeerID, &state, &pending, &units, &resourceType,
		&d.Seq.In, &d.Seq.Out, &graph, &errorMessage, &pendingRecover, &data); err != nil {
		return nil, err
	}
	d.State = model.DelegationState(state)
	d.Pending = model.DelegationPendingState(pending)
	d.Resource = model.ResourceSet{Units: units, ResourceType: resourceType}
	d.Graph = graph
	d.ErrorMessage = errorMessage
	d.PendingRecover = pendingRecover
	var doc delegationDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	d.Term = fromTermDoc(doc.Term)
	return &d, nil
}

func (s *Store) FlushSlice(sl *model.Slice) error {
	data, err := json.Marshal(sliceDoc{Properties: sl.Properties})
	if err != nil {
		return err
	}
	ctx := context.Background()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO slices (id, name, owner_id, type, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET name = $2, owner_id = $3, type = $4, data = $5, updated_at = NOW()
	`, sl.ID, sl.Name, sl.OwnerID, int(sl.Type), data)
	if err != nil {
		return apierr.DatabaseError("flush-slice", err)
	}
	return nil
}

type sliceDoc struct {
	Properties map[string]string `json:"properties"`
}

func (s *Store) LoadSlice(ctx context.Context, id string) (*model.Slice, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, owner_id, type, data FROM slices WHERE id = $1`, id)
	sl, err := scanSlice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NoSuchSlice(id)
	}
	if err != nil {
		return nil, apierr.DatabaseError("load-slice", err)
	}
	return sl, nil
}

func (s *Store) LoadSlicesByOwner(ctx context.Context, ownerID string) ([]*model.Slice, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, owner_id, type, data FROM slices WHERE owner_id = $1`, ownerID)
	if err != nil {
		return nil, apierr.DatabaseError("load-slices-by-owner", err)
	}
	defer rows.Close()
	var out []*model.Slice
	for rows.Next() {
		sl, err := scanSlice(rows)
		if err != nil {
			return nil, apierr.DatabaseError("scan-slice", err)
		}
		out = append(out, sl)
	}
	return out, rows.Err()
}

func (s *Store) DeleteSlice(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM slices WHERE id = $1`, id)
	if err != nil {
		return apierr.DatabaseError("delete-slice", err)
	}
	return nil
}

func scanSlice(row scanner) (*model.Slice, error) {
	var (
		sl         model.Slice
		sliceType  int
		data       []byte
	)
	if err := row.Scan(&sl.ID, &sl.Name, &sl.OwnerID, &sliceType, &data); err != nil {
		return nil, err
	}
	sl.Type = model.SliceType(sliceType)
	sl.ReservationIDs = map[string]struct{}{}
	sl.DelegationIDs = map[string]struct{}{}
	var doc sliceDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	sl.Properties = doc.Properties
	if sl.Properties == nil {
		sl.Properties = map[string]string{}
	}
	return &sl, nil
}

func (s *Store) FlushUnit(u *model.Unit) error {
	data, err := json.Marshal(u.Properties)
	if err != nil {
		return err
	}
	ctx := context.Background()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO units (id, reservation_id, slice_id, state, parent_id, properties, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE SET
			reservation_id = $2, slice_id = $3, state = $4, parent_id = $5, properties = $6, updated_at = NOW()
	`, u.ID, u.ReservationID, u.SliceID, int(u.State), u.ParentID, data)
	if err != nil {
		return apierr.DatabaseError("flush-unit", err)
	}
	return nil
}

func (s *Store) LoadUnitsByReservation(ctx context.Context, reservationID string) ([]*model.Unit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reservation_id, slice_id, state, parent_id, properties
		FROM units WHERE reservation_id = $1
	`, reservationID)
	if err != nil {
		return nil, apierr.DatabaseError("load-units-by-reservation", err)
	}
	defer rows.Close()
	var out []*model.Unit
	for rows.Next() {
		var (
			u     model.Unit
			state int
			data  []byte
		)
		if err := rows.Scan(&u.ID, &u.ReservationID, &u.SliceID, &state, &u.ParentID, &data); err != nil {
			return nil, apierr.DatabaseError("scan-unit", err)
		}
		u.State = model.UnitState(state)
		if err := json.Unmarshal(data, &u.Properties); err != nil {
			return nil, apierr.DatabaseError("unmarshal-unit", err)
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

func (s *Store) DeleteUnit(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM units WHERE id = $1`, id)
	if err != nil {
		return apierr.DatabaseError("delete-unit", err)
	}
	return nil
}

func (s *Store) SaveActorRecord(ctx context.Context, actorID string, recovered bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actors (id, recovered, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET recovered = $2, updated_at = NOW()
	`, actorID, recovered)
	if err != nil {
		return apierr.DatabaseError("save-actor-record", err)
	}
	return nil
}

func (s *Store) LoadActorRecord(ctx context.Context, actorID string) (bool, error) {
	var recovered bool
	err := s.db.QueryRowContext(ctx, `SELECT recovered FROM actors WHERE id = $1`, actorID).Scan(&recovered)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apierr.DatabaseError("load-actor-record", err)
	}
	return recovered, nil
}
