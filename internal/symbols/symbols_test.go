package symbols

import "testing"

func TestParse(t *testing.T) {
	tbl, err := Parse("1:EURUSD,2:USDJPY,3:GBPUSD,4:AUDUSD,5:USDCAD")
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if tbl.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", tbl.Len())
	}

	all := tbl.All()
	if all[0].ID != 1 || all[0].Name != "EURUSD" {
		t.Fatalf("first entry = %+v", all[0])
	}
	if all[4].ID != 5 || all[4].Name != "USDCAD" {
		t.Fatalf("last entry = %+v", all[4])
	}

	id, ok := tbl.ID("GBPUSD")
	if !ok || id != 3 {
		t.Fatalf("ID(GBPUSD) = %d, %v", id, ok)
	}
	if _, ok := tbl.ID("BTCUSD"); ok {
		t.Fatalf("unknown name should not resolve")
	}

	if !tbl.Contains(2) {
		t.Fatalf("Contains(2) should be true")
	}
	if tbl.Contains(99) {
		t.Fatalf("Contains(99) should be false")
	}
}

func TestParse_Whitespace(t *testing.T) {
	tbl, err := Parse(" 1:EURUSD , 2:USDJPY ")
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if tbl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tbl.Len())
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		list string
	}{
		{"empty", ""},
		{"missing colon", "1EURUSD"},
		{"bad id", "x:EURUSD"},
		{"empty name", "1:"},
		{"duplicate id", "1:EURUSD,1:USDJPY"},
		{"duplicate name", "1:EURUSD,2:EURUSD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.list); err == nil {
				t.Fatalf("expected error for %q", tt.list)
			}
		})
	}
}
