package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/ligadeals/ligadeals-web/internal/xerrors"
)

//go:embed templates/*.html
var templateFS embed.FS

const defaultDisplayName = "חבר/ה יקר/ה"

var hebrewMonths = [...]string{
	"ינואר", "פברואר", "מרץ", "אפריל", "מאי", "יוני",
	"יולי", "אוגוסט", "ספטמבר", "אוקטובר", "נובמבר", "דצמבר",
}

var berlin = loadBerlin()

func loadBerlin() *time.Location {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		return time.UTC
	}
	return loc
}

// hebrewDate formats t like "1 במרץ 2026, 10:00" in Berlin time.
func hebrewDate(t time.Time) string {
	t = t.In(berlin)
	return fmt.Sprintf("%d ב%s %d, %02d:%02d", t.Day(), hebrewMonths[t.Month()-1], t.Year(), t.Hour(), t.Minute())
}

func displayName(name string) string {
	if strings.TrimSpace(name) == "" {
		return defaultDisplayName
	}
	return name
}

func lines(s string) []string {
	return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}

var funcs = template.FuncMap{
	"hebrewDate":  hebrewDate,
	"displayName": displayName,
	"lines":       lines,
}

// Contact is a submitted contact form.
type Contact struct {
	Name    string
	Email   string
	Phone   string
	Message string
	SentAt  time.Time
}

// Subscriber is a newsletter signup.
type Subscriber struct {
	Name   string
	Email  string
	SentAt time.Time
}

// Renderer builds complete messages from the embedded templates.
type Renderer struct {
	contact    *template.Template
	thankYou   *template.Template
	welcome    *template.Template
	subscriber *template.Template

	siteURL      string
	contactEmail string
}

func NewRenderer(siteURL, contactEmail string) (*Renderer, error) {
	r := &Renderer{siteURL: strings.TrimRight(siteURL, "/"), contactEmail: contactEmail}
	for _, t := range []struct {
		dst  **template.Template
		file string
	}{
		{&r.contact, "templates/contact.html"},
		{&r.thankYou, "templates/thankyou.html"},
		{&r.welcome, "templates/welcome.html"},
		{&r.subscriber, "templates/subscriber.html"},
	} {
		tpl, err := template.New("").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", t.file)
		if err != nil {
			return nil, xerrors.Wrapf(err, "parse %s", t.file)
		}
		*t.dst = tpl
	}
	return r, nil
}

type pageData struct {
	Name         string
	Email        string
	Phone        string
	Message      string
	SentAt       time.Time
	SiteURL      string
	ContactEmail string
}

func (r *Renderer) exec(t *template.Template, d pageData) (string, error) {
	d.SiteURL = r.siteURL
	d.ContactEmail = r.contactEmail
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", d); err != nil {
		return "", xerrors.Wrap(err, "render email")
	}
	return buf.String(), nil
}

// ContactNotice is the message to the site owner, replying to the sender.
func (r *Renderer) ContactNotice(c Contact) (Message, error) {
	html, err := r.exec(r.contact, pageData{Name: c.Name, Email: c.Email, Phone: c.Phone, Message: c.Message, SentAt: c.SentAt})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:       []string{r.contactEmail},
		ReplyTo:  c.Email,
		Subject:  fmt.Sprintf("הודעה חדשה מ-%s - LigaDeals Berlin", c.Name),
		HTML:     html,
		Category: CategoryContact,
	}, nil
}

// ThankYou is the auto reply to the sender.
func (r *Renderer) ThankYou(c Contact) (Message, error) {
	html, err := r.exec(r.thankYou, pageData{Name: c.Name})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:       []string{c.Email},
		Subject:  "תודה שפנית אלינו - LigaDeals Berlin",
		HTML:     html,
		Category: CategoryThankYou,
	}, nil
}

// Welcome goes to a new newsletter subscriber.
func (r *Renderer) Welcome(s Subscriber) (Message, error) {
	html, err := r.exec(r.welcome, pageData{Name: s.Name})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:       []string{s.Email},
		Subject:  "ברוכים הבאים ל-LigaDeals Berlin!",
		HTML:     html,
		Category: CategoryWelcome,
	}, nil
}

// SubscriberNotice tells the site owner about a signup.
func (r *Renderer) SubscriberNotice(s Subscriber) (Message, error) {
	html, err := r.exec(r.subscriber, pageData{Name: s.Name, Email: s.Email, SentAt: s.SentAt})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:       []string{r.contactEmail},
		Subject:  "מנוי חדש לניוזלטר: " + s.Email,
		HTML:     html,
		Category: CategorySubscriber,
	}, nil
}
