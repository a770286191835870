package models

// Entity is the shared capability of every lbaas object: each one is
// attached to at most one load balancer, directly or through its parent
// chain. Root returns nil when the chain is broken.
type Entity interface {
	GetID() string
	Kind() EntityKind
	Root() *LoadBalancer
}

type LoadBalancer struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	TenantID           string `json:"tenant_id"`
	Provider           string `json:"provider"`
	VIPAddress         string `json:"vip_address"`
	VIPPortID          string `json:"vip_port_id"`
	VIPSubnetID        string `json:"vip_subnet_id"`
	AdminStateUp       bool   `json:"admin_state_up"`
	ProvisioningStatus Status `json:"provisioning_status"`
	OperatingStatus    string `json:"operating_status"`

	Listeners []*Listener `json:"-"`
	Pools     []*Pool     `json:"-"`
}

func (lb *LoadBalancer) GetID() string { return lb.ID }
func (lb *LoadBalancer) Kind() EntityKind { return KindLoadBalancer }
func (lb *LoadBalancer) Root() *LoadBalancer { return lb }

type Listener struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Protocol           string `json:"protocol"`
	ProtocolPort       int    `json:"protocol_port"`
	ConnectionLimit    int    `json:"connection_limit"`
	AdminStateUp       bool   `json:"admin_state_up"`
	ProvisioningStatus Status `json:"provisioning_status"`
	OperatingStatus    string `json:"operating_status"`

	LoadBalancer *LoadBalancer `json:"-"`
	DefaultPool  *Pool         `json:"-"`
	L7Policies   []*L7Policy   `json:"-"`
}

func (l *Listener) GetID() string { return l.ID }
func (l *Listener) Kind() EntityKind { return KindListener }

func (l *Listener) Root() *LoadBalancer { return l.LoadBalancer }

type SessionPersistence struct {
	Type       string `json:"type"`
	CookieName string `json:"cookie_name,omitempty"`
}

type Pool struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	Protocol           string              `json:"protocol"`
	LBAlgorithm        string              `json:"lb_algorithm"`
	AdminStateUp       bool                `json:"admin_state_up"`
	ProvisioningStatus Status              `json:"provisioning_status"`
	OperatingStatus    string              `json:"operating_status"`
	SessionPersistence *SessionPersistence `json:"-"`

	LoadBalancer  *LoadBalancer  `json:"-"`
	Members       []*Member      `json:"-"`
	HealthMonitor *HealthMonitor `json:"-"`
	L7Policies    []*L7Policy    `json:"-"`
}

func (p *Pool) GetID() string { return p.ID }
func (p *Pool) Kind() EntityKind { return KindPool }

func (p *Pool) Root() *LoadBalancer { return p.LoadBalancer }

type Member struct {
	ID                 string `json:"id"`
	TenantID           string `json:"tenant_id"`
	Address            string `json:"address"`
	ProtocolPort       int    `json:"protocol_port"`
	Weight             int    `json:"weight"`
	SubnetID           string `json:"subnet_id"`
	AdminStateUp       bool   `json:"admin_state_up"`
	ProvisioningStatus Status `json:"provisioning_status"`
	OperatingStatus    string `json:"operating_status"`

	Pool *Pool `json:"-"`
}

func (m *Member) GetID() string { return m.ID }
func (m *Member) Kind() EntityKind { return KindMember }

func (m *Member) Root() *LoadBalancer {
	if m.Pool == nil {
		return nil
	}
	return m.Pool.LoadBalancer
}

type HealthMonitor struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Delay              int    `json:"delay"`
	Timeout            int    `json:"timeout"`
	MaxRetries         int    `json:"max_retries"`
	HTTPMethod         string `json:"http_method,omitempty"`
	URLPath            string `json:"url_path,omitempty"`
	ExpectedCodes      string `json:"expected_codes,omitempty"`
	AdminStateUp       bool   `json:"admin_state_up"`
	ProvisioningStatus Status `json:"provisioning_status"`

	Pool *Pool `json:"-"`
}

func (hm *HealthMonitor) GetID() string { return hm.ID }
func (hm *HealthMonitor) Kind() EntityKind { return KindHealthMonitor }

func (hm *HealthMonitor) Root() *LoadBalancer {
	if hm.Pool == nil {
		return nil
	}
	return hm.Pool.LoadBalancer
}

type L7Policy struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Action             string `json:"action"`
	RedirectPoolID     string `json:"redirect_pool_id,omitempty"`
	RedirectURL        string `json:"redirect_url,omitempty"`
	Position           int    `json:"position"`
	AdminStateUp       bool   `json:"admin_state_up"`
	ProvisioningStatus Status `json:"provisioning_status"`

	Listener *Listener `json:"-"`
	Rules    []*L7Rule `json:"-"`
}

func (p *L7Policy) GetID() string { return p.ID }
func (p *L7Policy) Kind() EntityKind { return KindL7Policy }

func (p *L7Policy) Root() *LoadBalancer {
	if p.Listener == nil {
		return nil
	}
	return p.Listener.Root()
}

type L7Rule struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	CompareType        string `json:"compare_type"`
	Key                string `json:"key,omitempty"`
	Value              string `json:"value"`
	Invert             bool   `json:"invert"`
	AdminStateUp       bool   `json:"admin_state_up"`
	ProvisioningStatus Status `json:"provisioning_status"`

	Policy *L7Policy `json:"-"`
}

func (r *L7Rule) GetID() string { return r.ID }
func (r *L7Rule) Kind() EntityKind { return KindL7Rule }

func (r *L7Rule) Root() *LoadBalancer {
	if r.Policy == nil {
		return nil
	}
	return r.Policy.Root()
}

type ACLGroup struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	TenantID string   `json:"tenant_id"`
	Region   string   `json:"region,omitempty"`
	Entries  []string `json:"entries"`
}

type ACLBind struct {
	ListenerID string `json:"listener_id"`
	ACLGroupID string `json:"acl_group_id"`
	Type       string `json:"type"`
	Enabled    bool   `json:"enabled"`
}
