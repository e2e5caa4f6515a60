// Package domain models endpoints observed during an engagement and the
// inventory agents upload for them.
package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/dejobratic/opsapi/internal/pagination"
)

var ErrInvalid = errors.New("invalid endpoint")

var (
	ErrEngagementRequired = fmt.Errorf("%w: engagement_uuid is required", ErrInvalid)
	ErrInvalidAddress     = fmt.Errorf("%w: ip and gateway entries must be IP addresses", ErrInvalid)
)

// Inventory holds the free-form JSON objects collected from a host. A nil
// field is absent.
type Inventory struct {
	SystemInfo            json.RawMessage `json:"system_info,omitempty"`
	RoutingTable          json.RawMessage `json:"routing_table,omitempty"`
	ARP                   json.RawMessage `json:"arp,omitempty"`
	InstalledApplications json.RawMessage `json:"installed_applications,omitempty"`
	Drivers               json.RawMessage `json:"drivers,omitempty"`
	PatchHistory          json.RawMessage `json:"patch_history,omitempty"`
}

func (i Inventory) IsEmpty() bool {
	return i.SystemInfo == nil && i.RoutingTable == nil && i.ARP == nil &&
		i.InstalledApplications == nil && i.Drivers == nil && i.PatchHistory == nil
}

// Normalize drops null fields and rejects anything but JSON objects.
func (i Inventory) Normalize() (Inventory, error) {
	var err error
	for _, f := range i.fields() {
		if *f.value, err = object(f.name, *f.value); err != nil {
			return Inventory{}, err
		}
	}
	return i, nil
}

// Merge overwrites the fields set in update and keeps the rest.
func (i Inventory) Merge(update Inventory) Inventory {
	set := update.fields()
	for n, f := range i.fields() {
		if *set[n].value != nil {
			*f.value = *set[n].value
		}
	}
	return i
}

type inventoryField struct {
	name  string
	value *json.RawMessage
}

func (i *Inventory) fields() []inventoryField {
	return []inventoryField{
		{"system_info", &i.SystemInfo},
		{"routing_table", &i.RoutingTable},
		{"arp", &i.ARP},
		{"installed_applications", &i.InstalledApplications},
		{"drivers", &i.Drivers},
		{"patch_history", &i.PatchHistory},
	}
}

func object(name string, raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: %s must be a JSON object", ErrInvalid, name)
	}
	return trimmed, nil
}

type Endpoint struct {
	ID           string   `json:"endpoint_uuid"`
	EngagementID string   `json:"engagement_uuid"`
	AgentID      *string  `json:"agent_uuid"`
	OSVersion    *string  `json:"os_version"`
	IP           []string `json:"ip"`
	Gateway      []string `json:"gateway"`
	Inventory
	CreatedAt time.Time `json:"created_at"`
}

func (e Endpoint) Validate() error {
	if e.EngagementID == "" {
		return ErrEngagementRequired
	}
	return nil
}

func (e Endpoint) Key() pagination.Cursor {
	return pagination.Cursor{Timestamp: e.CreatedAt, ID: e.ID}
}

// Summary is the list view: the endpoint without its inventory.
func (e Endpoint) Summary() Endpoint {
	e.Inventory = Inventory{}
	return e
}

// HasAddress reports whether addr, in canonical form, is one of the
// endpoint's IPs.
func (e Endpoint) HasAddress(addr string) bool {
	for _, ip := range e.IP {
		if ip == addr {
			return true
		}
	}
	return false
}

// NormalizeAddresses canonicalizes IP literals so stored and queried forms
// compare equal. A nil list becomes empty.
func NormalizeAddresses(addrs []string) ([]string, error) {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		addr, err := ParseAddress(a)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func ParseAddress(value string) (string, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(value))
	if err != nil {
		return "", ErrInvalidAddress
	}
	return addr.String(), nil
}

type Patch struct {
	EngagementID *string
	AgentID      *string
	OSVersion    *string
	IP           *[]string
	Gateway      *[]string
	Inventory    Inventory
}

func (p Patch) IsEmpty() bool {
	return p.EngagementID == nil && p.AgentID == nil && p.OSVersion == nil &&
		p.IP == nil && p.Gateway == nil && p.Inventory.IsEmpty()
}

func (p Patch) Apply(e Endpoint) Endpoint {
	if p.EngagementID != nil {
		e.EngagementID = *p.EngagementID
	}
	if p.AgentID != nil {
		e.AgentID = p.AgentID
	}
	if p.OSVersion != nil {
		e.OSVersion = p.OSVersion
	}
	if p.IP != nil {
		e.IP = *p.IP
	}
	if p.Gateway != nil {
		e.Gateway = *p.Gateway
	}
	e.Inventory = e.Inventory.Merge(p.Inventory)
	return e
}
