package model

// ConcreteSet is the concrete resource bundle a ticket or lease carries
// once a broker or authority has actually allocated something — opaque
// to the kernel and meaningful only to the policy/plugin that produced
// it. Encode/Decode let the persistence gateway and the RPC engine
// serialize it without knowing its shape (the original source's
// IConcreteSet, §4.6 supplemented feature).
type ConcreteSet interface {
	Encode() ([]byte, error)
	Decode([]byte) error
	Units() int
}

// ResourceSet is the abstract (type, units) pair every reservation
// carries at the requested/approved/granted stages, plus an optional
// concrete bundle once a ticket or lease has actually been issued.
type ResourceSet struct {
	ResourceType string
	Units        int
	Concrete     ConcreteSet
}

// IsEmpty reports whether no units have been requested or granted.
func (r ResourceSet) IsEmpty() bool { return r.Units == 0 }

// HasConcrete reports whether a concrete bundle has been attached.
func (r ResourceSet) HasConcrete() bool { return r.Concrete != nil }
