package models

// Ref is an id-only reference inside a service descriptor.
type Ref struct {
	ID string `json:"id"`
}

type ListenerSnapshot struct {
	Listener
	L7Policies    []Ref  `json:"l7_policies"`
	DefaultPoolID string `json:"default_pool_id,omitempty"`
}

type PoolSnapshot struct {
	Pool
	Members            []Ref               `json:"members"`
	L7Policies         []Ref               `json:"l7_policies"`
	SessionPersistence *SessionPersistence `json:"session_persistence,omitempty"`
}

type HealthMonitorSnapshot struct {
	HealthMonitor
	PoolID string `json:"pool_id"`
}

type DeviceSnapshot struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name,omitempty"`
	AdminStateUp         bool       `json:"admin_state_up"`
	MasqueradeMAC        string     `json:"masquerade_mac,omitempty"`
	LocalLinkInformation []LinkInfo `json:"local_link_information"`
}

// ServiceDescriptor is the point-in-time snapshot of a load balancer and
// its dependent graph, shaped for dispatch to an agent. It is a value,
// assembled fresh per dispatch and never persisted.
type ServiceDescriptor struct {
	LoadBalancer   *LoadBalancer           `json:"loadbalancer"`
	Listeners      []ListenerSnapshot      `json:"listeners"`
	Pools          []PoolSnapshot          `json:"pools"`
	HealthMonitors []HealthMonitorSnapshot `json:"healthmonitors"`
	Device         *DeviceSnapshot         `json:"device,omitempty"`
	ACLGroup       *ACLGroup               `json:"acl_group,omitempty"`
}
