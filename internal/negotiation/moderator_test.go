package negotiation

import "testing"

func TestModeratorFlagsContactExchange(t *testing.T) {
	m := NewContentModerator()

	cases := []struct {
		text   string
		reason string
	}{
		{"email me at investor@example.com for details", "email"},
		{"call me on +966 50 123 4567", "phone"},
		{"my number is 0512345678", "phone"},
		{"add me on WhatsApp", "external-platform"},
		{"im on Telegram", "external-platform"},
		{"تواصل معي على واتساب", "external-platform"},
		{"راسلني على سناب", "off-platform-contact"},
		{"let's contact me outside this app", "off-platform-contact"},
		{"just dm me", "off-platform-contact"},
	}

	for _, tc := range cases {
		flagged, reasons := m.Scan(tc.text)
		if !flagged {
			t.Errorf("%q should be flagged", tc.text)
			continue
		}
		found := false
		for _, r := range reasons {
			if r == tc.reason {
				found = true
			}
		}
		if !found {
			t.Errorf("%q: want reason %q, got %v", tc.text, tc.reason, reasons)
		}
	}
}

func TestModeratorPassesNormalNegotiation(t *testing.T) {
	m := NewContentModerator()

	clean := []string{
		"I can offer 50000 SAR for 10% equity",
		"The timeline of 12 months works for me",
		"أقترح استثمار 50000 ريال مقابل حصة 10%",
		"Can you go lower on the equity percentage?",
	}

	for _, text := range clean {
		if flagged, reasons := m.Scan(text); flagged {
			t.Errorf("%q wrongly flagged: %v", text, reasons)
		}
	}
}

func TestModeratorMultipleReasons(t *testing.T) {
	m := NewContentModerator()

	flagged, reasons := m.Scan("dm me on whatsapp at agent@deal.com")
	if !flagged {
		t.Fatal("should be flagged")
	}
	if len(reasons) < 3 {
		t.Fatalf("expected email, platform and contact reasons, got %v", reasons)
	}
}
