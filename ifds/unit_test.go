package ifds

import "testing"

func TestMethodResolver_InjectivePerMethod(t *testing.T) {
	r := methodByName()
	if r("a") == r("b") {
		t.Error("distinct methods should get distinct units under MethodResolver")
	}
	if r("a") != r("a") {
		t.Error("resolver must be pure/consistent across calls")
	}
	if r("a").Kind != MethodUnit {
		t.Errorf("expected MethodUnit, got %v", r("a").Kind)
	}
}

func TestClassResolver_GroupsByClass(t *testing.T) {
	classOf := map[string]string{"a.m1": "a", "a.m2": "a", "b.m1": "b"}
	r := ClassResolver(func(m string) string { return classOf[m] })
	if r("a.m1") != r("a.m2") {
		t.Error("methods in the same class should share a unit")
	}
	if r("a.m1") == r("b.m1") {
		t.Error("methods in different classes should not share a unit")
	}
	if r("a.m1").Kind != ClassUnit {
		t.Errorf("expected ClassUnit, got %v", r("a.m1").Kind)
	}
}

func TestPackageResolver_GroupsByPackage(t *testing.T) {
	pkgOf := map[string]string{"p1.A.m": "p1", "p1.B.m": "p1", "p2.C.m": "p2"}
	r := PackageResolver(func(m string) string { return pkgOf[m] })
	if r("p1.A.m") != r("p1.B.m") {
		t.Error("methods in the same package should share a unit")
	}
	if r("p1.A.m") == r("p2.C.m") {
		t.Error("methods in different packages should not share a unit")
	}
}

func TestSingletonResolver_OneUnitForEverything(t *testing.T) {
	r := SingletonResolver[string]()
	if r("anything") != r("something else entirely") {
		t.Error("singleton resolver must map every method to the same unit")
	}
}

func TestUnitKind_String(t *testing.T) {
	cases := map[UnitKind]string{
		MethodUnit:    "method",
		ClassUnit:     "class",
		PackageUnit:   "package",
		SingletonUnit: "singleton",
		UnknownUnit:   "unknown",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("UnitKind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
