package watcher

import "weebdomains/pkg/models"

// EventType defines the type of event being broadcast.
type EventType string

const (
	EventAccountChanged EventType = "account_changed"
	EventNetworkChanged EventType = "network_changed"
	EventCatalogUpdated EventType = "catalog_updated"
	EventPendingChanged EventType = "pending_changed"
	EventInputsChanged  EventType = "inputs_changed"
	EventOutcome        EventType = "outcome"
	EventSessionReset   EventType = "session_reset"
)

// Event represents a session state change.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data"`
}

// Subscriber is a channel that receives events.
type Subscriber chan Event

// Inputs is the mint/edit form.
type Inputs struct {
	Name    string `json:"name"`
	Record  string `json:"record"`
	Editing bool   `json:"editing"`
}

// Snapshot is a copy of the whole session state.
type Snapshot struct {
	Account         string                   `json:"account"`
	HasWallet       bool                     `json:"has_wallet"`
	Network         models.NetworkState      `json:"network"`
	RequiredNetwork string                   `json:"required_network"`
	Catalog         []models.ListedName      `json:"catalog"`
	Pending         *models.PendingOperation `json:"pending,omitempty"`
	Inputs          Inputs                   `json:"inputs"`
	Loading         bool                     `json:"loading"`
	LastOutcome     *models.Outcome          `json:"last_outcome,omitempty"`
}
