package persistence

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/fabric-actor/kernel/internal/model"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestFlushReservationUpsertsRow(t *testing.T) {
	s, mock := newTestStore(t)
	r := model.NewReservation("r1", "s1", model.CategoryClient)

	mock.ExpectExec("INSERT INTO reservations").
		WithArgs(r.ID, r.SliceID, r.ActorID, int(r.Category), r.AuthorityID, r.BrokerID, r.DelegationID,
			int(r.Primary), int(r.Pending), int(r.Join), r.Seq.In, r.Seq.Out,
			r.ErrorMessage, r.PendingRecover, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.FlushReservation(r))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadReservationReturnsNoSuchReservationWhenMissing(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery("SELECT id, slice_id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(nil))

	_, err := s.LoadReservation(context.Background(), "missing")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadReservationRoundTripsResourceSet(t *testing.T) {
	s, mock := newTestStore(t)
	s.RegisterConcreteFactory("test-ticket", func() model.ConcreteSet { return &fakeConcreteSet{} })

	r := model.NewReservation("r2", "s1", model.CategoryClient)
	r.Resources = model.ResourceSet{
		ResourceType: "vm",
		Units:        4,
		Concrete:     &fakeConcreteSet{Kind_: "test-ticket", Payload: "abc"},
	}
	data, err := s.marshalReservation(r)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{
		"id", "slice_id", "actor_id", "category", "authority_id", "broker_id", "delegation_id",
		"primary_state", "pending_state", "join_state", "seq_in", "seq_out",
		"error_message", "pending_recover", "data",
	}).AddRow(r.ID, r.SliceID, r.ActorID, int(r.Category), r.AuthorityID, r.BrokerID, r.DelegationID,
		int(r.Primary), int(r.Pending), int(r.Join), r.Seq.In, r.Seq.Out,
		r.ErrorMessage, r.PendingRecover, data)

	mock.ExpectQuery("SELECT id, slice_id").WithArgs("r2").WillReturnRows(rows)

	loaded, err := s.LoadReservation(context.Background(), "r2")
	require.NoError(t, err)
	require.Equal(t, 4, loaded.Resources.Units)
	require.Equal(t, "vm", loaded.Resources.ResourceType)
	require.NotNil(t, loaded.Resources.Concrete)
	fc, ok := loaded.Resources.Concrete.(*fakeConcreteSet)
	require.True(t, ok)
	require.Equal(t, "abc", fc.Payload)
}

func TestFlushDelegationUpsertsRow(t *testing.T) {
	s, mock := newTestStore(t)
	d := model.NewDelegation("d1", "s1", "peer-1")
	d.Seq.In = 3
	d.Seq.Out = 4
	d.Graph = []byte(`{"units":2}`)

	mock.ExpectExec("INSERT INTO delegations").
		WithArgs(d.ID, d.SliceID, d.ActorID, d.PeerID, int(d.State), int(d.Pending),
			d.Resource.Units, d.Resource.ResourceType, d.Seq.In, d.Seq.Out, d.Graph,
			d.ErrorMessage, d.PendingRecover, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.FlushDelegation(d))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadDelegationRoundTripsSequenceAndGraph(t *testing.T) {
	s, mock := newTestStore(t)

	d := model.NewDelegation("d2", "s1", "peer-1")
	d.Resource = model.ResourceSet{ResourceType: "vm", Units: 8}
	d.Pending = model.Claiming
	d.Seq.In = 5
	d.Seq.Out = 6
	d.Graph = []byte(`{"nodes":[]}`)
	data, err := json.Marshal(delegationDoc{Term: toTermDoc(d.Term)})
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{
		"id", "slice_id", "actor_id", "peer_id", "state", "pending_state", "units", "resource_type",
		"seq_in", "seq_out", "graph", "error_message", "pending_recover", "data",
	}).AddRow(d.ID, d.SliceID, d.ActorID, d.PeerID, int(d.State), int(d.Pending), d.Resource.Units,
		d.Resource.ResourceType, d.Seq.In, d.Seq.Out, d.Graph, d.ErrorMessage, d.PendingRecover, data)

	mock.ExpectQuery("SELECT id, slice_id").WithArgs("d2").WillReturnRows(rows)

	loaded, err := s.LoadDelegation(context.Background(), "d2")
	require.NoError(t, err)
	require.Equal(t, model.Claiming, loaded.Pending)
	require.Equal(t, 5, loaded.Seq.In)
	require.Equal(t, 6, loaded.Seq.Out)
	require.Equal(t, []byte(`{"nodes":[]}`), loaded.Graph)
	require.Equal(t, 8, loaded.Resource.Units)
}

type fakeConcreteSet struct {
	Kind_   string
	Payload string
}

func (f *fakeConcreteSet) Kind() string { return f.Kind_ }
func (f *fakeConcreteSet) Units() int   { return 1 }
func (f *fakeConcreteSet) Encode() ([]byte, error) {
	return []byte(f.Kind_ + ":" + f.Payload), nil
}
func (f *fakeConcreteSet) Decode(data []byte) error {
	s := string(data)
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			f.Kind_ = s[:i]
			f.Payload = s[i+1:]
			return nil
		}
	}
	f.Payload = s
	return nil
}
