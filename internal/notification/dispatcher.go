package notification

import (
	"bytes"
	"context"
	"html/template"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/klubb/internal/email"
	"github.com/MrJamesThe3rd/klubb/internal/member"
)

const deliveryTimeout = 30 * time.Second

type Mailer interface {
	Send(ctx context.Context, msg email.Message) error
}

type Directory interface {
	Get(ctx context.Context, id uuid.UUID) (*member.Member, error)
}

// Dispatcher delivers notifications after the financial write that caused
// them has committed. Delivery is best effort: failures are logged and
// never retried.
type Dispatcher struct {
	repo      Repository
	members   Directory
	mailer    Mailer
	publicURL string

	wg sync.WaitGroup
}

// NewDispatcher returns a Dispatcher. mailer may be nil, in which case only
// in-app notifications are stored.
func NewDispatcher(repo Repository, members Directory, mailer Mailer, publicURL string) *Dispatcher {
	return &Dispatcher{
		repo:      repo,
		members:   members,
		mailer:    mailer,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// Notify schedules delivery and returns immediately. The request context's
// cancellation is not propagated.
func (d *Dispatcher) Notify(ctx context.Context, ns ...Notification) {
	if len(ns) == 0 {
		return
	}

	ctx = context.WithoutCancel(ctx)
	ns = slices.Clone(ns)

	d.wg.Go(func() {
		d.deliver(ctx, ns)
	})
}

// Close waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, ns []Notification) {
	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	rows := make([]*Notification, len(ns))
	for i := range ns {
		rows[i] = &ns[i]
	}

	if err := d.repo.CreateNotifications(ctx, rows); err != nil {
		slog.Error("failed to store notifications", "error", err, "count", len(rows))
	}

	if d.mailer == nil {
		return
	}

	for _, n := range ns {
		m, err := d.members.Get(ctx, n.MemberID)
		if err != nil {
			slog.Error("failed to look up notification recipient", "error", err, "member_id", n.MemberID)
			continue
		}

		if !m.Active || m.Email == "" {
			continue
		}

		body, err := d.render(m.Name, n)
		if err != nil {
			slog.Error("failed to render notification email", "error", err, "type", n.Type)
			continue
		}

		msg := email.Message{To: m.Email, Name: m.Name, Subject: n.Title, HTMLBody: body}
		if err := d.mailer.Send(ctx, msg); err != nil {
			slog.Error("failed to send notification email", "error", err, "member_id", n.MemberID, "type", n.Type)
		}
	}
}

var emailTemplate = template.Must(template.New("notification").Parse(`<p>Hei {{.Name}},</p>
<p>{{.Message}}</p>
{{- if .Link}}
<p><a href="{{.Link}}">Åpne i Klubb</a></p>
{{- end}}
`))

func (d *Dispatcher) render(name string, n Notification) (string, error) {
	link := ""
	if n.Link != "" {
		link = d.publicURL + n.Link
	}

	var buf bytes.Buffer

	err := emailTemplate.Execute(&buf, struct {
		Name, Message, Link string
	}{name, n.Message, link})
	if err != nil {
		return "", err
	}

	return buf.String(), nil
}
