// Package instance defines the compute instance model shared by the fleet core
// and its providers.
package instance

import "strings"

// NotAvailable is reported for any field the provider did not return.
const NotAvailable = "N/A"

// ID identifies a single compute instance (e.g., "i-0abc123").
type ID string

// State is the lifecycle state of an instance.
type State string

const (
	StatePending      State = "pending"
	StateRunning      State = "running"
	StateStopping     State = "stopping"
	StateStopped      State = "stopped"
	StateShuttingDown State = "shutting-down"
	StateTerminated   State = "terminated"
)

// Is reports whether s matches other, ignoring case.
func (s State) Is(other State) bool {
	return strings.EqualFold(string(s), string(other))
}

// Tag is a key/value label attached to an instance.
type Tag struct {
	Key   string
	Value string
}

// Raw is an instance as the provider describes it.
// Optional fields are empty when the provider omitted them.
type Raw struct {
	ID        ID
	State     State
	Tags      []Tag
	PrivateIP string
	PublicIP  string
}

// Record is the reported shape of an instance.
// Every field is populated; missing values are NotAvailable.
type Record struct {
	InstanceID string `json:"InstanceId" yaml:"InstanceId"`
	Name       string `json:"Name" yaml:"Name"`
	State      string `json:"State" yaml:"State"`
	PrivateIP  string `json:"Private IP" yaml:"Private IP"`
	PublicIP   string `json:"Public IP" yaml:"Public IP"`
}

// NameFromTags returns the value of the first "Name" tag, or NotAvailable.
func NameFromTags(tags []Tag) string {
	for _, tag := range tags {
		if tag.Key == "Name" {
			return tag.Value
		}
	}
	return NotAvailable
}

// NewRecord converts a raw instance into its reported shape.
func NewRecord(r Raw) Record {
	return Record{
		InstanceID: orNA(string(r.ID)),
		Name:       NameFromTags(r.Tags),
		State:      orNA(string(r.State)),
		PrivateIP:  orNA(r.PrivateIP),
		PublicIP:   orNA(r.PublicIP),
	}
}

func orNA(v string) string {
	if v == "" {
		return NotAvailable
	}
	return v
}

// UniqueIDs collapses duplicates while keeping first-seen order.
// Empty identifiers are dropped.
func UniqueIDs(ids []ID) []ID {
	seen := make(map[ID]struct{}, len(ids))
	out := make([]ID, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// IDStrings converts ids for provider APIs that take plain strings.
func IDStrings(ids []ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
