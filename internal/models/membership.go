package models

type AgentEventType int8

const (
	AgentEventUnknown AgentEventType = iota
	AgentEventJoined
	AgentEventSuspect
	AgentEventLeft
	AgentEventDead
)

// AgentEvent is a gossip membership transition for one agent host.
type AgentEvent struct {
	Type AgentEventType
	Host string
}
