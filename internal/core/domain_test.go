package core

import "testing"

func TestValidateCell(t *testing.T) {
	cases := []struct {
		name  string
		cat   Category
		field string
		month int
		ok    bool
	}{
		{"income field", CategoryIncome, FieldRentalIncome, 1, true},
		{"cogs field", CategoryCogs, "maintenance", 12, true},
		{"history count", CategoryHistory, "tripsTaken", 6, true},
		{"reimbursed bill suffix", CategoryReimbursedBills, "otherBill", 5, true},
		{"reimbursed bills reject bare other", CategoryReimbursedBills, "other", 5, false},
		{"unknown field", CategoryIncome, "bogus", 3, false},
		{"wrong category for field", CategoryCogs, FieldRentalIncome, 3, false},
		{"unknown category", Category("snacks"), "maintenance", 3, false},
		{"month zero", CategoryIncome, FieldRentalIncome, 0, false},
		{"month thirteen", CategoryIncome, FieldRentalIncome, 13, false},
	}
	for _, tc := range cases {
		err := ValidateCell(tc.cat, tc.field, tc.month)
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestYearLedgerFieldDefaults(t *testing.T) {
	l := NewYearLedger("car-1", 2025)

	if got := l.Field(CategoryIncome, 4, FieldRentalIncome); got != 0 {
		t.Fatalf("missing row should read 0, got %v", got)
	}

	l.SetField(CategoryIncome, 4, FieldRentalIncome, 1000)
	if got := l.Field(CategoryIncome, 4, FieldRentalIncome); got != 1000 {
		t.Fatalf("expected 1000, got %v", got)
	}
	if got := l.Field(CategoryIncome, 5, FieldRentalIncome); got != 0 {
		t.Fatalf("other month should stay 0, got %v", got)
	}
	if got := l.Field(CategoryIncome, 4, FieldGasIncome); got != 0 {
		t.Fatalf("missing field should read 0, got %v", got)
	}

	var nilLedger *YearLedger
	if got := nilLedger.Field(CategoryIncome, 4, FieldRentalIncome); got != 0 {
		t.Fatalf("nil ledger should read 0, got %v", got)
	}
}

func TestSplitModeDefaults(t *testing.T) {
	l := NewYearLedger("car-1", 2025)
	if got := l.SplitMode(3); got != Split50 {
		t.Fatalf("expected default Split50, got %v", got)
	}
	l.SplitModes[3] = Split70
	if got := l.SplitMode(3); got != Split70 {
		t.Fatalf("expected Split70, got %v", got)
	}
	if got := l.SplitMode(4); got != Split50 {
		t.Fatalf("month 4 should keep default, got %v", got)
	}

	mgmt, owner := Split70.DefaultPercentages()
	if mgmt != 30 || owner != 70 {
		t.Fatalf("Split70 defaults expected 30/70, got %v/%v", mgmt, owner)
	}
	mgmt, owner = Split50.DefaultPercentages()
	if mgmt != 50 || owner != 50 {
		t.Fatalf("Split50 defaults expected 50/50, got %v/%v", mgmt, owner)
	}
}

func TestSkiRacksOwnerDefaults(t *testing.T) {
	l := NewYearLedger("car-1", 2026)
	if got := l.SkiRacksOwner(1); got != SkiRacksGLA {
		t.Fatalf("expected default GLA, got %v", got)
	}
	l.SkiRacksOwners[1] = SkiRacksCarOwner
	if got := l.SkiRacksOwner(1); got != SkiRacksCarOwner {
		t.Fatalf("expected CAR_OWNER, got %v", got)
	}
	if err := SkiRacksOwner("NEIGHBOR").Validate(); err == nil {
		t.Fatal("expected invalid owner error")
	}
}

func TestDynamicSubcategoryValidate(t *testing.T) {
	ok := DynamicSubcategory{Category: CategoryCogs, Name: "Detailing"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (DynamicSubcategory{Category: CategoryIncome, Name: "x"}).Validate(); err == nil {
		t.Fatal("income must not accept subcategories")
	}
	if err := (DynamicSubcategory{Category: CategoryCogs, Name: "  "}).Validate(); err == nil {
		t.Fatal("blank name must be rejected")
	}
}
