package persistence

import (
	"encoding/json"
	"time"

	"github.com/fabric-actor/kernel/internal/model"
)

// reservationDoc is the JSON blob stored in the reservations table's
// data column. Indexed columns (id, slice_id, primary_state,
// pending_state) are kept alongside it for query efficiency; the blob
// carries everything else, matching the teacher's metadata-jsonb
// pattern in store_admin_pattern.go.
type reservationDoc struct {
	RequestedTerm termDoc `json:"requested_term"`
	ApprovedTerm  termDoc `json:"approved_term"`
	Term          termDoc `json:"term"`
	PreviousTerm  termDoc `json:"previous_term"`

	Requested resourceSetDoc `json:"requested"`
	Approved  resourceSetDoc `json:"approved"`
	Resources resourceSetDoc `json:"resources"`

	UpdateData map[string]string `json:"update_data"`
}

type termDoc struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	NewStart time.Time `json:"new_start"`
}

func toTermDoc(t model.Term) termDoc {
	return termDoc{Start: t.Start, End: t.End, NewStart: t.NewStart}
}

func fromTermDoc(d termDoc) model.Term {
	return model.Term{Start: d.Start, End: d.End, NewStart: d.NewStart}
}

type resourceSetDoc struct {
	ResourceType string `json:"resource_type"`
	Units        int    `json:"units"`
	ConcreteKind string `json:"concrete_kind,omitempty"`
	ConcreteData []byte `json:"concrete_data,omitempty"`
}

// ConcreteFactory builds an empty ConcreteSet ready for Decode, given
// the kind string it was encoded under.
type ConcreteFactory func() model.ConcreteSet

// kindedConcreteSet is implemented by a ConcreteSet that wants to
// survive a persistence round-trip: Kind names the registered factory
// that rebuilds an empty instance of it on load.
type kindedConcreteSet interface {
	model.ConcreteSet
	Kind() string
}

func (s *Store) toResourceSetDoc(r model.ResourceSet) (resourceSetDoc, error) {
	doc := resourceSetDoc{ResourceType: r.ResourceType, Units: r.Units}
	if r.Concrete == nil {
		return doc, nil
	}
	kc, ok := r.Concrete.(kindedConcreteSet)
	if !ok {
		return doc, nil
	}
	data, err := kc.Encode()
	if err != nil {
		return doc, err
	}
	doc.ConcreteKind = kc.Kind()
	doc.ConcreteData = data
	return doc, nil
}

func (s *Store) fromResourceSetDoc(doc resourceSetDoc) (model.ResourceSet, error) {
	r := model.ResourceSet{ResourceType: doc.ResourceType, Units: doc.Units}
	if doc.ConcreteKind == "" {
		return r, nil
	}
	factory, ok := s.concreteFactories[doc.ConcreteKind]
	if !ok {
		return r, nil
	}
	concrete := factory()
	if err := concrete.Decode(doc.ConcreteData); err != nil {
		return r, err
	}
	r.Concrete = concrete
	return r, nil
}

func (s *Store) marshalReservation(r *model.Reservation) ([]byte, error) {
	requested, err := s.toResourceSetDoc(r.Requested)
	if err != nil {
		return nil, err
	}
	approved, err := s.toResourceSetDoc(r.Approved)
	if err != nil {
		return nil, err
	}
	resources, err := s.toResourceSetDoc(r.Resources)
	if err != nil {
		return nil, err
	}
	doc := reservationDoc{
		RequestedTerm: toTermDoc(r.RequestedTerm),
		ApprovedTerm:  toTermDoc(r.ApprovedTerm),
		Term:          toTermDoc(r.Term),
		PreviousTerm:  toTermDoc(r.PreviousTerm),
		Requested:     requested,
		Approved:      approved,
		Resources:     resources,
		UpdateData:    r.UpdateData,
	}
	return json.Marshal(doc)
}

func (s *Store) unmarshalReservation(data []byte, r *model.Reservation) error {
	var doc reservationDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	r.RequestedTerm = fromTermDoc(doc.RequestedTerm)
	r.ApprovedTerm = fromTermDoc(doc.ApprovedTerm)
	r.Term = fromTermDoc(doc.Term)
	r.PreviousTerm = fromTermDoc(doc.PreviousTerm)
	r.UpdateData = doc.UpdateData

	var err error
	if r.Requested, err = s.fromResourceSetDoc(doc.Requested); err != nil {
		return err
	}
	if r.Approved, err = s.fromResourceSetDoc(doc.Approved); err != nil {
		return err
	}
	if r.Resources, err = s.fromResourceSetDoc(doc.Resources); err != nil {
		return err
	}
	return nil
}

