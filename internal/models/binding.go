package models

import "time"

// UnassignedDevice marks a binding row whose device lease is still in
// flight. Concurrent schedulers race for the lock over such rows.
const UnassignedDevice = "unassigned"

type Binding struct {
	LoadBalancerID string
	AgentID        string
	DeviceID       string
	CreatedAt      time.Time
}

func (b *Binding) Placeholder() bool {
	return b.DeviceID == UnassignedDevice
}

// Agent liveness and admin state are owned by the external health-reporting
// plane, this subsystem only reads them.
type Agent struct {
	ID           string
	Host         string
	Alive        bool
	AdminStateUp bool
	Capabilities map[string]string
	HeartbeatAt  time.Time
}

type LinkInfo struct {
	SwitchID   string `json:"switch_id,omitempty"`
	PortID     string `json:"port_id,omitempty"`
	SwitchInfo string `json:"switch_info,omitempty"`
	LBMac      string `json:"lb_mac,omitempty"`
}

type Device struct {
	ID                   string
	Name                 string
	AdminStateUp         bool
	MasqueradeMAC        string
	LocalLinkInformation []LinkInfo
}
