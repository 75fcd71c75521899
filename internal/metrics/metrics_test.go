package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecord(t *testing.T) {
	m := New("")

	m.RecordSave(true)
	m.RecordSave(true)
	m.RecordSave(false)
	m.RecordGatewayOp("update_character", false)
	m.RecordRefusal("stretch_while_dying")
	m.RecordInvariantGuard()
	m.SetCatalogState(2)

	if got := testutil.ToFloat64(m.SavesTotal.WithLabelValues("success")); got != 2 {
		t.Errorf("saves success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SavesTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("saves failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.GatewayOps.WithLabelValues("update_character", "failed")); got != 1 {
		t.Errorf("gateway ops = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RefusalsTotal.WithLabelValues("stretch_while_dying")); got != 1 {
		t.Errorf("refusals = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.InvariantGuards); got != 1 {
		t.Errorf("invariant guards = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CatalogState); got != 2 {
		t.Errorf("catalog state = %v, want 2", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordSave(true)
	m.RecordGatewayOp("x", true)
	m.RecordRefusal("x")
	m.RecordInvariantGuard()
	m.SetCatalogState(1)
}

func TestNew_RegistryGathers(t *testing.T) {
	m := New("test")
	m.RecordSave(true)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "test_saves_total" {
			found = true
		}
	}
	if !found {
		t.Error("test_saves_total not gathered")
	}
}
