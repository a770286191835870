package models

type Status string

const (
	StatusPendingCreate Status = "pending-create"
	StatusPendingUpdate Status = "pending-update"
	StatusPendingDelete Status = "pending-delete"
	StatusActive        Status = "active"
	StatusError         Status = "error"
)

func (s Status) String() string {
	return string(s)
}

type EntityKind string

const (
	KindLoadBalancer  EntityKind = "loadbalancer"
	KindListener      EntityKind = "listener"
	KindPool          EntityKind = "pool"
	KindMember        EntityKind = "member"
	KindHealthMonitor EntityKind = "healthmonitor"
	KindL7Policy      EntityKind = "l7policy"
	KindL7Rule        EntityKind = "l7rule"
	KindACLGroup      EntityKind = "acl_group"
)

func (k EntityKind) String() string {
	return string(k)
}
