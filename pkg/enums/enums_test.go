package enums

import "testing"

func strPtr(s string) *string { return &s }

func TestNormalizeFulfillmentStatus(t *testing.T) {
	cases := []struct {
		raw  *string
		want FulfillmentStatus
	}{
		{nil, FulfillmentStatusUnfulfilled},
		{strPtr(""), FulfillmentStatusUnfulfilled},
		{strPtr("null"), FulfillmentStatusUnfulfilled},
		{strPtr(" Partial "), FulfillmentStatusPartial},
		{strPtr("fulfilled"), FulfillmentStatusFulfilled},
		{strPtr("restocked"), FulfillmentStatusUnknown},
	}
	for _, tc := range cases {
		if got := NormalizeFulfillmentStatus(tc.raw); got != tc.want {
			t.Errorf("NormalizeFulfillmentStatus(%v) = %s, want %s", tc.raw, got, tc.want)
		}
	}
}

func TestFulfillmentStatusOpen(t *testing.T) {
	for _, s := range []FulfillmentStatus{FulfillmentStatusUnfulfilled, FulfillmentStatusPartial, FulfillmentStatusUnknown} {
		if !s.Open() {
			t.Errorf("expected %s to be open", s)
		}
	}
	if FulfillmentStatusFulfilled.Open() {
		t.Error("fulfilled must not be open")
	}
}

func TestParseFulfillmentStatus(t *testing.T) {
	if got, err := ParseFulfillmentStatus("partial"); err != nil || got != FulfillmentStatusPartial {
		t.Fatalf("unexpected parse result %s %v", got, err)
	}
	if _, err := ParseFulfillmentStatus("shipped"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestParseSyncTrigger(t *testing.T) {
	if got, err := ParseSyncTrigger("manual"); err != nil || got != SyncTriggerManual {
		t.Fatalf("unexpected parse result %s %v", got, err)
	}
	if _, err := ParseSyncTrigger("webhook"); err == nil {
		t.Fatal("expected error for unknown trigger")
	}
	if !SyncTriggerSchedule.IsValid() || SyncTrigger("x").IsValid() {
		t.Fatal("unexpected IsValid result")
	}
}
