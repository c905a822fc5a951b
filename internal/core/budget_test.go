package core

import "testing"

func TestBudgetKeyRoundTrip(t *testing.T) {
	cases := []struct {
		year, month int
		site        string
		want        string
	}{
		{2024, 6, "site-a", "2024-06_site-a"},
		{2024, 12, "main_office", "2024-12_main_office"},
		{999, 1, "x", "0999-01_x"},
	}
	for _, tc := range cases {
		key := BudgetKey(tc.year, tc.month, tc.site)
		if key != tc.want {
			t.Fatalf("BudgetKey = %q, want %q", key, tc.want)
		}
		y, m, site, err := ParseBudgetKey(key)
		if err != nil {
			t.Fatalf("ParseBudgetKey(%q): %v", key, err)
		}
		if y != tc.year || m != tc.month || site != tc.site {
			t.Fatalf("ParseBudgetKey(%q) = (%d, %d, %q)", key, y, m, site)
		}
	}
}

func TestParseBudgetKeyRejectsMalformed(t *testing.T) {
	for _, key := range []string{"", "2024-06", "2024-06_", "202406_site", "2024-13_site", "x-y_site"} {
		if _, _, _, err := ParseBudgetKey(key); err == nil {
			t.Fatalf("%q expected error", key)
		}
	}
}

func TestBudgetSettingValidate(t *testing.T) {
	good := BudgetSetting{SiteID: "site-a", Year: 2024, Month: 6, MonthlyBudget: 300000, SavingsGoal: 50000}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []BudgetSetting{
		{SiteID: "", Year: 2024, Month: 6},
		{SiteID: "s", Year: 2024, Month: 0},
		{SiteID: "s", Year: 2024, Month: 13},
		{SiteID: "s", Year: 2024, Month: 6, MonthlyBudget: -1},
	}
	for i, b := range bads {
		if err := b.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}
