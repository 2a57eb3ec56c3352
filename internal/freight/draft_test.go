package freight

import (
	"reflect"
	"testing"
	"time"
)

func fullDraft() Draft {
	return Draft{
		Date:         String("2024-05-10"),
		Origin:       String("Uberaba"),
		Destination:  String("Santos"),
		Tons:         Float(32.5),
		PricePerTon:  Float(120),
		Carrier:      String("Trans Rapido"),
		TicketNumber: String("T-889"),
		Plate:        String("ABC1D23"),
		DriverName:   String("Joao"),
	}
}

func TestDraftMissingFollowsRequiredOrder(t *testing.T) {
	d := fullDraft()
	d.Origin = nil
	d.Plate = String("   ")
	d.Tons = nil

	got := d.Missing()
	want := []Field{FieldOrigin, FieldTons, FieldPlate}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("missing = %v, want %v", got, want)
	}
	if len(fullDraft().Missing()) != 0 {
		t.Fatalf("expected complete draft to have no missing fields")
	}
}

func TestDraftDeriveTotal(t *testing.T) {
	d := fullDraft()
	d.DeriveTotal()
	if d.TotalValue == nil || *d.TotalValue != 3900 {
		t.Fatalf("expected derived total 3900, got %v", d.TotalValue)
	}

	supplied := fullDraft()
	supplied.TotalValue = Float(4000)
	supplied.DeriveTotal()
	if *supplied.TotalValue != 4000 {
		t.Fatalf("supplied total must not be overwritten, got %v", *supplied.TotalValue)
	}

	partial := Draft{Tons: Float(10)}
	partial.DeriveTotal()
	if partial.TotalValue != nil {
		t.Fatalf("expected no total without price per ton")
	}
}

func TestDraftFillOnlyListedAbsentFields(t *testing.T) {
	d := Draft{Origin: String("Uberaba")}
	src := Draft{
		Origin:      String("Campinas"),
		Destination: String("Santos"),
		Carrier:     String("Trans Rapido"),
		Plate:       String("XYZ9A87"),
	}
	d.Fill(src, []Field{FieldOrigin, FieldDestination, FieldPlate})

	if *d.Origin != "Uberaba" {
		t.Fatalf("known origin was overwritten: %s", *d.Origin)
	}
	if d.Destination == nil || *d.Destination != "Santos" {
		t.Fatalf("expected destination to be filled")
	}
	if d.Carrier != nil {
		t.Fatalf("carrier was not requested and must stay nil")
	}
	if d.Plate == nil || *d.Plate != "XYZ9A87" {
		t.Fatalf("expected plate to be filled")
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2024-05-10", "10/05/2024", "10/05/24", "10-05-2024", " 2024-05-10 "} {
		got, ok := ParseDate(in)
		if !ok || !got.Equal(want) {
			t.Fatalf("ParseDate(%q) = %v, %v", in, got, ok)
		}
	}
	if _, ok := ParseDate("ontem"); ok {
		t.Fatalf("expected unparseable date to fail")
	}
}

func TestFieldLabel(t *testing.T) {
	if FieldPricePerTon.Label() != "Preco por Tonelada" {
		t.Fatalf("unexpected label %q", FieldPricePerTon.Label())
	}
	if Field("other").Label() != "other" {
		t.Fatalf("unknown fields fall back to their name")
	}
}

func TestDraftDisplay(t *testing.T) {
	d := Draft{
		Tons:        Float(32.5),
		PricePerTon: Float(110),
		TotalValue:  Float(3575),
		Plate:       String(" ABC1D23 "),
	}
	cases := map[Field]string{
		FieldTons:        "32.5",
		FieldPricePerTon: "110",
		FieldTotalValue:  "3575.00",
		FieldPlate:       "ABC1D23",
		FieldOrigin:      "",
	}
	for field, want := range cases {
		if got := d.Display(field); got != want {
			t.Fatalf("Display(%s) = %q, want %q", field, got, want)
		}
	}
}
