package approval

// Kind identifies a workflow type. It is also the target tag of audit
// entries and notification references.
type Kind string

const (
	KindTransport   Kind = "transport"
	KindHighCost    Kind = "highcost"
	KindMaintenance Kind = "maintenance"
	KindRefueling   Kind = "refueling"
	KindService     Kind = "service"
)

var allKinds = []Kind{KindTransport, KindHighCost, KindMaintenance, KindRefueling, KindService}

func Kinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

func ParseKind(s string) (Kind, bool) {
	k := Kind(s)
	return k, k.Valid()
}

func (k Kind) Valid() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}

// HasTrip reports whether the kind carries a vehicle trip that can be completed.
func (k Kind) HasTrip() bool {
	return k == KindTransport || k == KindHighCost
}

// Ref points at one request of a given kind.
type Ref struct {
	Kind Kind  `json:"kind"`
	ID   int64 `json:"id"`
}
