package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/splitledger/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"ExpenseID", id.NewExpenseID, "exp_"},
		{"SettlementID", id.NewSettlementID, "stl_"},
		{"RelationshipID", id.NewRelationshipID, "frnd_"},
		{"GroupID", id.NewGroupID, "grp_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	i := id.New(id.PrefixExpense)
	if i.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if i.Prefix() != id.PrefixExpense {
		t.Errorf("expected prefix %q, got %q", id.PrefixExpense, i.Prefix())
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"ExpenseID", id.NewExpenseID, id.ParseExpenseID},
		{"SettlementID", id.NewSettlementID, id.ParseSettlementID},
		{"RelationshipID", id.NewRelationshipID, id.ParseRelationshipID},
		{"GroupID", id.NewGroupID, id.ParseGroupID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"ParseExpenseID rejects stl_", id.NewSettlementID().String(), id.ParseExpenseID},
		{"ParseSettlementID rejects frnd_", id.NewRelationshipID().String(), id.ParseSettlementID},
		{"ParseRelationshipID rejects grp_", id.NewGroupID().String(), id.ParseRelationshipID},
		{"ParseGroupID rejects exp_", id.NewExpenseID().String(), id.ParseGroupID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.parseFn(tt.input)
			if err == nil {
				t.Errorf("expected error for cross-type parse of %q, got nil", tt.input)
			}
		})
	}
}

func TestParseAny(t *testing.T) {
	ids := []id.ID{
		id.NewExpenseID(),
		id.NewSettlementID(),
		id.NewRelationshipID(),
		id.NewGroupID(),
	}

	for _, i := range ids {
		t.Run(i.String(), func(t *testing.T) {
			parsed, err := id.ParseAny(i.String())
			if err != nil {
				t.Fatalf("ParseAny(%q) failed: %v", i.String(), err)
			}
			if parsed.String() != i.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), i.String())
			}
		})
	}
}

func TestParseOptional(t *testing.T) {
	got, err := id.ParseOptional("", id.PrefixGroup)
	if err != nil {
		t.Fatalf("ParseOptional(empty) failed: %v", err)
	}
	if !got.IsNil() {
		t.Errorf("expected Nil for empty input, got %q", got.String())
	}

	g := id.NewGroupID()
	got, err = id.ParseOptional(g.String(), id.PrefixGroup)
	if err != nil {
		t.Fatalf("ParseOptional failed: %v", err)
	}
	if got.String() != g.String() {
		t.Errorf("mismatch: %q != %q", got.String(), g.String())
	}

	if _, err := id.ParseOptional(id.NewExpenseID().String(), id.PrefixGroup); err == nil {
		t.Error("expected error for wrong prefix")
	}
}

func TestParseEmpty(t *testing.T) {
	_, err := id.Parse("")
	if err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if i.Prefix() != "" {
		t.Errorf("expected empty prefix, got %q", i.Prefix())
	}
}

func TestMarshalUnmarshalText(t *testing.T) {
	original := id.NewExpenseID()
	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var restored id.ID
	if unmarshalErr := restored.UnmarshalText(data); unmarshalErr != nil {
		t.Fatalf("UnmarshalText failed: %v", unmarshalErr)
	}
	if restored.String() != original.String() {
		t.Errorf("mismatch: %q != %q", restored.String(), original.String())
	}

	var nilID id.ID
	data, err = nilID.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText(nil) failed: %v", err)
	}
	var restored2 id.ID
	if err := restored2.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText(nil) failed: %v", err)
	}
	if !restored2.IsNil() {
		t.Error("expected nil after round-trip of nil ID")
	}
}

func TestValueScan(t *testing.T) {
	original := id.NewSettlementID()
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned id.ID
	if scanErr := scanned.Scan(val); scanErr != nil {
		t.Fatalf("Scan failed: %v", scanErr)
	}
	if scanned.String() != original.String() {
		t.Errorf("mismatch: %q != %q", scanned.String(), original.String())
	}

	var nilID id.ID
	val, err = nilID.Value()
	if err != nil {
		t.Fatalf("Value(nil) failed: %v", err)
	}
	if val != nil {
		t.Errorf("expected nil value for nil ID, got %v", val)
	}

	var scanned2 id.ID
	if err := scanned2.Scan(""); err != nil {
		t.Fatalf("Scan(empty) failed: %v", err)
	}
	if !scanned2.IsNil() {
		t.Error("expected nil after scan of empty string")
	}
}

func TestUniqueness(t *testing.T) {
	a := id.NewExpenseID()
	b := id.NewExpenseID()
	if a.String() == b.String() {
		t.Errorf("two consecutive NewExpenseID() calls returned the same ID: %q", a.String())
	}
}
