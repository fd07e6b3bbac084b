package memdomain

import "testing"

func TestPDRegistryIdempotent(t *testing.T) {
	r := NewPDRegistry()
	a := r.GetPD("mlx5_0")
	b := r.GetPD("mlx5_0")
	if a != b {
		t.Fatalf("expected same PD instance for repeated device context")
	}
	c := r.GetPD("mlx5_1")
	if a == c {
		t.Fatalf("expected distinct PDs for distinct device contexts")
	}
}

func TestMemMapRegistryRefcount(t *testing.T) {
	pds := NewPDRegistry()
	pd := pds.GetPD("mlx5_0")
	maps := NewMemMapRegistry()

	reg := func(addr uintptr, length int) (uint64, uint64, error) { return uint64(addr), 0, nil }
	unreg := func(addr uintptr, length int) {}

	m1 := maps.CreateMemMap(pd, AccessLocalWrite, reg, unreg)
	m2 := maps.CreateMemMap(pd, AccessLocalWrite, reg, unreg)
	if m1 != m2 {
		t.Fatalf("expected the same MemMap for identical (pd, flags)")
	}

	maps.FreeMemMap(m1)
	if _, ok := maps.maps[mapKey{pd: pd, flags: AccessLocalWrite}]; !ok {
		t.Fatalf("expected map to survive one Free while a second ref is outstanding")
	}
	maps.FreeMemMap(m2)
	if _, ok := maps.maps[mapKey{pd: pd, flags: AccessLocalWrite}]; ok {
		t.Fatalf("expected map to be removed once all refs are freed")
	}
}

func TestMemMapTranslateCoverage(t *testing.T) {
	pds := NewPDRegistry()
	pd := pds.GetPD("mlx5_0")
	maps := NewMemMapRegistry()

	reg := func(addr uintptr, length int) (uint64, uint64, error) { return uint64(addr) + 1, 0, nil }
	unreg := func(addr uintptr, length int) {}
	m := maps.CreateMemMap(pd, AccessLocalWrite, reg, unreg)

	if err := m.RegisterSpan(0x1000, 4096); err != nil {
		t.Fatalf("RegisterSpan: %v", err)
	}

	tr, err := m.Translate(0x1000, 512)
	if err != nil {
		t.Fatalf("Translate within span: %v", err)
	}
	if tr.LocalKey != 0x1001 {
		t.Fatalf("unexpected local key: %#x", tr.LocalKey)
	}

	if _, err := m.Translate(0x2000, 512); err == nil {
		t.Fatalf("expected error translating an address outside any registered span")
	}

	m.UnregisterSpan(0x1000, 4096)
	if _, err := m.Translate(0x1000, 512); err == nil {
		t.Fatalf("expected error translating an unregistered span")
	}
}

func TestDomainRegistryRefcount(t *testing.T) {
	pds := NewPDRegistry()
	pd := pds.GetPD("mlx5_0")
	domains := NewDomainRegistry()

	d1 := domains.GetMemoryDomain(pd, DomainTypeRDMA)
	d2 := domains.GetMemoryDomain(pd, DomainTypeRDMA)
	if d1 != d2 {
		t.Fatalf("expected the same MemoryDomain for identical (pd, type)")
	}
	d3 := domains.GetMemoryDomain(pd, DomainTypeTCP)
	if d1 == d3 {
		t.Fatalf("expected distinct domains for distinct types")
	}

	domains.PutMemoryDomain(d1)
	domains.PutMemoryDomain(d2)
	if _, ok := domains.domains[domainKey{pd: pd, domainType: DomainTypeRDMA}]; ok {
		t.Fatalf("expected RDMA domain to be removed once all refs are freed")
	}
}
