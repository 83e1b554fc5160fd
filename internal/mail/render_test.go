package mail

import (
	"strings"
	"testing"
	"time"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer("https://ligadeals.example/", "contact@ligadeals.example")
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return r
}

func TestContactNotice(t *testing.T) {
	r := newTestRenderer(t)
	m, err := r.ContactNotice(Contact{
		Name:    "דנה",
		Email:   "dana@example.com",
		Phone:   "+49 30 1234567",
		Message: "שורה ראשונה\nשורה שנייה",
		SentAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(m.To) != 1 || m.To[0] != "contact@ligadeals.example" {
		t.Fatalf("To = %v", m.To)
	}
	if m.ReplyTo != "dana@example.com" {
		t.Fatalf("ReplyTo = %q", m.ReplyTo)
	}
	if m.Subject != "הודעה חדשה מ-דנה - LigaDeals Berlin" {
		t.Fatalf("Subject = %q", m.Subject)
	}
	for _, want := range []string{`dir="rtl"`, "שורה ראשונה<br>שורה שנייה", "טלפון:", "mailto:dana@example.com", "במרץ 2026"} {
		if !strings.Contains(m.HTML, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
	if m.Category != CategoryContact {
		t.Fatalf("Category = %q", m.Category)
	}
}

func TestContactNotice_EscapesAndOmitsPhone(t *testing.T) {
	r := newTestRenderer(t)
	m, err := r.ContactNotice(Contact{
		Name:    `<script>alert(1)</script>`,
		Email:   "x@example.com",
		Message: "hello <b>world</b>",
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(m.HTML, "<script>") || strings.Contains(m.HTML, "<b>") {
		t.Fatal("user input was not escaped")
	}
	if strings.Contains(m.HTML, "טלפון:") {
		t.Fatal("phone block rendered without a phone")
	}
}

func TestThankYouAndWelcome_DefaultName(t *testing.T) {
	r := newTestRenderer(t)

	ty, err := r.ThankYou(Contact{Email: "a@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ty.HTML, defaultDisplayName) {
		t.Fatal("thank-you missing default display name")
	}
	if ty.To[0] != "a@example.com" || ty.Category != CategoryThankYou {
		t.Fatalf("thank-you = %+v", ty)
	}
	if !strings.Contains(ty.HTML, "contact@ligadeals.example") {
		t.Fatal("thank-you missing contact address")
	}

	w, err := r.Welcome(Subscriber{Email: "b@example.com", Name: "יוסי"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(w.HTML, "שלום יוסי") {
		t.Fatal("welcome missing name")
	}
	if !strings.Contains(w.HTML, "https://ligadeals.example/unsubscribe") {
		t.Fatal("welcome missing unsubscribe link")
	}
}

func TestSubscriberNotice(t *testing.T) {
	r := newTestRenderer(t)
	m, err := r.SubscriberNotice(Subscriber{Email: "c@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if m.Subject != "מנוי חדש לניוזלטר: c@example.com" {
		t.Fatalf("Subject = %q", m.Subject)
	}
	if strings.Contains(m.HTML, "שם:") {
		t.Fatal("name row rendered without a name")
	}
}

func TestHebrewDate(t *testing.T) {
	got := hebrewDate(time.Date(2026, 12, 15, 12, 0, 0, 0, time.UTC))
	if !strings.Contains(got, "15 בדצמבר 2026") {
		t.Fatalf("hebrewDate = %q", got)
	}
}
