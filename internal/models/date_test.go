package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDate_Normalizes(t *testing.T) {
	d := NewDate(2024, time.January, 32)
	if got := d.String(); got != "2024-02-01" {
		t.Errorf("NewDate(2024,1,32) = %s; want 2024-02-01", got)
	}
	if got := MustParseDate("2024-12-31").AddDays(7).String(); got != "2025-01-07" {
		t.Errorf("AddDays = %s; want 2025-01-07", got)
	}
}

func TestDate_JSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `"2024-01-03"`, "2024-01-03"},
		{"timestamp", `"2024-01-03T10:00:00Z"`, "2024-01-03"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var d Date
			if err := json.Unmarshal([]byte(tc.in), &d); err != nil {
				t.Fatalf("Unmarshal(%s) error: %v", tc.in, err)
			}
			if d.String() != tc.want {
				t.Errorf("got %s; want %s", d, tc.want)
			}
		})
	}

	var bad Date
	if err := json.Unmarshal([]byte(`"03/01/2024"`), &bad); err == nil {
		t.Error("expected error for non ISO date")
	}
}

func TestDate_Scan(t *testing.T) {
	var d Date
	if err := d.Scan("2024-05-06"); err != nil || d.String() != "2024-05-06" {
		t.Errorf("Scan(string) = %s, %v", d, err)
	}
	if err := d.Scan(time.Date(2024, 7, 8, 0, 0, 0, 0, time.UTC)); err != nil || d.String() != "2024-07-08" {
		t.Errorf("Scan(time) = %s, %v", d, err)
	}
	if err := d.Scan(nil); err != nil || !d.IsZero() {
		t.Errorf("Scan(nil) = %s, %v", d, err)
	}
	if err := d.Scan(42); err == nil {
		t.Error("Scan(int) should fail")
	}
}

func TestNewTransaction_Validate(t *testing.T) {
	valid := NewTransaction{
		Amount: decimal.RequireFromString("12.50"),
		Type:   Expense,
		Date:   MustParseDate("2024-01-01"),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid transaction rejected: %v", err)
	}

	cases := map[string]func(n *NewTransaction){
		"bad type":    func(n *NewTransaction) { n.Type = "transfer" },
		"zero amount": func(n *NewTransaction) { n.Amount = decimal.Zero },
		"negative":    func(n *NewTransaction) { n.Amount = decimal.NewFromInt(-3) },
		"no date":     func(n *NewTransaction) { n.Date = Date{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			n := valid
			mutate(&n)
			if err := n.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}
