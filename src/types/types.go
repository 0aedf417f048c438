package types

type Place struct {
	ID       int64          `json:"id"`
	Name     string         `json:"name"`
	User     string         `json:"user"`
	Location Location       `json:"location"`
	Meta     map[string]any `json:"meta"`
	Content  Content        `json:"content"`
}

type Content struct {
	// newest first
	Ratings      []Rating `json:"ratings"`
	TotalRatings int      `json:"totalRatings"`
	Average      float64  `json:"average"`
	MaxRating    int      `json:"maxRating"`
	// unix seconds, set once on create
	Created int64 `json:"created"`
}

type Rating struct {
	User  string `json:"user"`
	URL   string `json:"url"`
	Score int    `json:"score"`
}

// Neighbor is a single proximity result. Distance is in kilometers.
type Neighbor struct {
	ID       int64    `json:"id"`
	Location Location `json:"location"`
	Distance float64  `json:"distance"`
}

type OpType int

const (
	OpPut OpType = iota
	OpDelete
)

type Op struct {
	Type  OpType
	Key   []byte
	Value []byte
}

func Put(key, value []byte) Op {
	return Op{Type: OpPut, Key: key, Value: value}
}

func Delete(key []byte) Op {
	return Op{Type: OpDelete, Key: key}
}

// KV is the ordered key-value store the place store is layered on.
type KV interface {
	// Get returns ErrKeyNotFound when the key is absent.
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	// Batch applies all ops or none of them.
	Batch(ops []Op) error
	// Iterate visits keys in [lower, upper) in ascending order.
	Iterate(lower, upper []byte, fn func(key, value []byte) error) error
	IsClosed() bool
	Close() error
}

// ProximityFinder serves nearest-neighbor queries over stored places.
// prev and next are nil when the place did not exist before or is being removed.
type ProximityFinder interface {
	// IndexOps returns ops committed in the same batch as the record.
	IndexOps(id int64, prev, next *Location) []Op
	// Sync runs after the batch is committed.
	Sync(id int64, next *Location) error
	Nearest(q Location, limit int) ([]Neighbor, error)
}

// Rebuilder is implemented by finders that can rebuild their index from scratch.
type Rebuilder interface {
	Rebuild(points []Neighbor) error
}

type DataStore interface {
	Create(p *Payload) (*Place, error)
	Get(id int64) (*Place, error)
	Update(p *Payload, id int64) (*Place, error)
	Delete(id int64) error
	List(offset int) ([]Place, error)
	Count() (int, error)
	Nearest(q Location) ([]Neighbor, error)
	Limit() int
}
