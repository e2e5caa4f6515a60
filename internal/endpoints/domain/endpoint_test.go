package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestInventoryNormalize(t *testing.T) {
	got, err := Inventory{
		SystemInfo: json.RawMessage(` {"hostname":"web-1"} `),
		ARP:        json.RawMessage(`null`),
	}.Normalize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got.SystemInfo) != `{"hostname":"web-1"}` {
		t.Errorf("expected trimmed system_info, got %s", got.SystemInfo)
	}
	if got.ARP != nil {
		t.Errorf("expected null arp to be dropped, got %s", got.ARP)
	}

	_, err = Inventory{Drivers: json.RawMessage(`["x"]`)}.Normalize()
	if !errors.Is(err, ErrInvalid) || !strings.Contains(err.Error(), "drivers") {
		t.Errorf("expected drivers to be rejected, got %v", err)
	}
}

func TestInventoryMerge(t *testing.T) {
	base := Inventory{SystemInfo: json.RawMessage(`{"a":1}`), Drivers: json.RawMessage(`{"d":1}`)}
	got := base.Merge(Inventory{Drivers: json.RawMessage(`{"d":2}`), ARP: json.RawMessage(`{}`)})

	if string(got.SystemInfo) != `{"a":1}` || string(got.Drivers) != `{"d":2}` || string(got.ARP) != `{}` {
		t.Errorf("unexpected merge result %+v", got)
	}
	if string(base.Drivers) != `{"d":1}` {
		t.Error("merge modified the receiver")
	}
}

func TestNormalizeAddresses(t *testing.T) {
	got, err := NormalizeAddresses([]string{" 10.0.0.1", "2001:DB8::0:1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0] != "10.0.0.1" || got[1] != "2001:db8::1" {
		t.Errorf("unexpected canonical forms %v", got)
	}

	empty, err := NormalizeAddresses(nil)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil list, got %v, %v", empty, err)
	}

	if _, err := NormalizeAddresses([]string{"10.0.0.0/24"}); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestPatchApply(t *testing.T) {
	os := "Windows 11"
	ips := []string{"10.0.0.2"}
	e := Endpoint{EngagementID: "e1", IP: []string{"10.0.0.1"}, Inventory: Inventory{ARP: json.RawMessage(`{}`)}}

	got := Patch{OSVersion: &os, IP: &ips, Inventory: Inventory{Drivers: json.RawMessage(`{}`)}}.Apply(e)

	if *got.OSVersion != os || got.IP[0] != "10.0.0.2" || got.EngagementID != "e1" {
		t.Errorf("unexpected patched endpoint %+v", got)
	}
	if got.ARP == nil || got.Drivers == nil {
		t.Error("expected inventory to be merged")
	}
	if !(Patch{}).IsEmpty() {
		t.Error("expected zero patch to be empty")
	}
}

func TestEndpointSummaryAndJSON(t *testing.T) {
	e := Endpoint{ID: "x", EngagementID: "e1", IP: []string{}, Gateway: []string{}, Inventory: Inventory{SystemInfo: json.RawMessage(`{"k":1}`)}}

	full, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(full), `"system_info":{"k":1}`) {
		t.Errorf("expected inventory to be flattened, got %s", full)
	}

	summary, err := json.Marshal(e.Summary())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(summary), "system_info") {
		t.Errorf("expected summary without inventory, got %s", summary)
	}
}
