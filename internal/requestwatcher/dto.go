package requestwatcher

import (
	"encoding/json"

	"github.com/Sh00ty/lbaas-driver/internal/models"
)

// Request is one northbound lifecycle call. Before/After carry the
// entity document named by Kind; the typed context fields carry the
// parents the entity hangs off, since parent links never travel in the
// documents themselves.
type Request struct {
	ID   string `json:"id"`
	Op   string `json:"op"`
	Kind string `json:"kind"`
	TsMs int64  `json:"ts_ms"`

	Before json.RawMessage `json:"before,omitempty"`
	After  json.RawMessage `json:"after,omitempty"`

	LoadBalancer  *models.LoadBalancer   `json:"loadbalancer,omitempty"`
	Listener      *models.Listener       `json:"listener,omitempty"`
	Pool          *models.Pool           `json:"pool,omitempty"`
	Policy        *models.L7Policy       `json:"policy,omitempty"`
	ACLGroup      *models.ACLGroup       `json:"acl_group,omitempty"`
	LoadBalancers []*models.LoadBalancer `json:"loadbalancers,omitempty"`
}

const (
	opCreate = "c"
	opUpdate = "u"
	opDelete = "d"
	opStats  = "s"
)

func decodePair[E any](req Request) (*E, *E, error) {
	var before, after *E
	if len(req.Before) > 0 {
		before = new(E)
		if err := json.Unmarshal(req.Before, before); err != nil {
			return nil, nil, err
		}
	}
	if len(req.After) > 0 {
		after = new(E)
		if err := json.Unmarshal(req.After, after); err != nil {
			return nil, nil, err
		}
	}
	return before, after, nil
}
