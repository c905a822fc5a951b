package core

import (
	"errors"
	"testing"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{Date("2024-06-15"), true},
		{Date("2024-02-29"), true}, // leap year
		{Date("2023-02-29"), false},
		{Date("2024-13-01"), false},
		{Date("2024-06-00"), false},
		{Date("2024-6-15"), false}, // not zero-padded
		{Date(""), false},
		{Date("yesterday"), false},
	}
	for _, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%q expected ok, got %v", tc.d, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%q expected error", tc.d)
		}
	}
}

func TestDateComponents(t *testing.T) {
	d := NewDate(2024, 6, 15)
	if d != Date("2024-06-15") {
		t.Fatalf("NewDate: got %q", d)
	}
	if d.Year() != 2024 || d.Month() != 6 || d.Day() != 15 {
		t.Fatalf("components: got %d-%d-%d", d.Year(), d.Month(), d.Day())
	}
}

func TestDaysInMonth(t *testing.T) {
	cases := []struct {
		year, month, want int
	}{
		{2024, 2, 29},
		{2023, 2, 28},
		{2024, 4, 30},
		{2024, 12, 31},
	}
	for _, tc := range cases {
		if got := DaysInMonth(tc.year, tc.month); got != tc.want {
			t.Fatalf("DaysInMonth(%d, %d) = %d, want %d", tc.year, tc.month, got, tc.want)
		}
	}
}

func TestMonthRangeOrdering(t *testing.T) {
	first, last := MonthRange(2024, 6)
	if first != Date("2024-06-01") || last != Date("2024-06-30") {
		t.Fatalf("got [%s, %s]", first, last)
	}
	inside := Date("2024-06-15")
	if !(string(inside) >= string(first) && string(inside) <= string(last)) {
		t.Fatalf("lexicographic range check failed for %s", inside)
	}
	outside := Date("2024-07-01")
	if string(outside) <= string(last) {
		t.Fatalf("%s should sort after %s", outside, last)
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		ID:       "t1",
		Type:     Expense,
		Amount:   1500,
		Category: "food",
		Content:  "site lunch",
		Date:     Date("2024-06-15"),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name string
		mut  func(*Transaction)
		want error
	}{
		{"bad type", func(tx *Transaction) { tx.Type = "transfer" }, ErrInvalidType},
		{"negative amount", func(tx *Transaction) { tx.Amount = -1 }, ErrInvalidAmount},
		{"unknown category", func(tx *Transaction) { tx.Category = "gambling" }, ErrInvalidCategory},
		{"income category on expense", func(tx *Transaction) { tx.Category = "salary" }, ErrInvalidCategory},
		{"bad date", func(tx *Transaction) { tx.Date = "2024/06/15" }, ErrInvalidDate},
		{"too many images", func(tx *Transaction) {
			for i := 0; i < MaxAttachmentsPerKind+1; i++ {
				tx.Images = append(tx.Images, Attachment{Kind: AttachmentLocal, ID: "a"})
			}
		}, ErrTooManyFiles},
	}
	for _, tc := range cases {
		tx := good
		tc.mut(&tx)
		if err := tx.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestAttachmentValidate(t *testing.T) {
	if err := (Attachment{Kind: AttachmentLocal, ID: "a1"}).Validate(); err != nil {
		t.Fatalf("local: %v", err)
	}
	if err := (Attachment{Kind: AttachmentRemote, URL: "https://x/y"}).Validate(); err != nil {
		t.Fatalf("remote: %v", err)
	}
	bads := []Attachment{
		{Kind: AttachmentLocal},                                    // missing id
		{Kind: AttachmentLocal, ID: "a", URL: "https://x"},         // both refs
		{Kind: AttachmentRemote},                                   // missing url
		{Kind: "cloudish", ID: "a"},                                // unknown kind
	}
	for i, a := range bads {
		if err := a.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestAttachmentProjections(t *testing.T) {
	atts := []Attachment{
		{Kind: AttachmentRemote, URL: "https://x/1"},
		{Kind: AttachmentLocal, ID: "a1"},
		{Kind: AttachmentLocal, ID: "a2"},
	}
	ids := LocalIDs(atts)
	if len(ids) != 2 || ids[0] != "a1" || ids[1] != "a2" {
		t.Fatalf("LocalIDs: %v", ids)
	}
	urls := RemoteURLs(atts)
	if len(urls) != 1 || urls[0] != "https://x/1" {
		t.Fatalf("RemoteURLs: %v", urls)
	}
}

func TestCategories(t *testing.T) {
	if !ValidCategory(Expense, "food") {
		t.Fatal("food should be a valid expense category")
	}
	if ValidCategory(Income, "food") {
		t.Fatal("food should not be a valid income category")
	}
	cats := Categories(Expense)
	cats[0] = "mutated"
	if Categories(Expense)[0] == "mutated" {
		t.Fatal("Categories must return a copy")
	}
}
