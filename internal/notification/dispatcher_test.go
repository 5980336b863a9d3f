package notification_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/klubb/internal/email"
	"github.com/MrJamesThe3rd/klubb/internal/member"
	"github.com/MrJamesThe3rd/klubb/internal/notification"
)

type directory map[uuid.UUID]*member.Member

func (d directory) Get(_ context.Context, id uuid.UUID) (*member.Member, error) {
	m, ok := d[id]
	if !ok {
		return nil, member.ErrNotFound
	}

	return m, nil
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (r *recordingMailer) Send(_ context.Context, msg email.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sent = append(r.sent, msg)

	return r.err
}

func TestDispatcher_Notify(t *testing.T) {
	kari := &member.Member{ID: uuid.New(), Name: "Kari", Email: "kari@example.com", Active: true}
	ola := &member.Member{ID: uuid.New(), Name: "Ola", Email: "ola@example.com", Active: false}
	dir := directory{kari.ID: kari, ola.ID: ola}

	ns := []notification.Notification{
		{MemberID: kari.ID, Type: notification.TypeInvoiceCreated, Title: "Ny betalingsforespørsel", Message: "Du har fått en ny forespørsel på 300.00 kr.", Link: "/me/payment-requests"},
		{MemberID: ola.ID, Type: notification.TypeInvoiceCreated, Title: "Ny betalingsforespørsel"},
		{MemberID: uuid.New(), Type: notification.TypeInvoiceCreated, Title: "Ukjent"},
	}

	t.Run("StoresAndEmailsActiveMembers", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := notification.NewMockRepository(ctrl)
		repo.EXPECT().
			CreateNotifications(gomock.Any(), gomock.Len(3)).
			Return(nil)

		mailer := &recordingMailer{}
		d := notification.NewDispatcher(repo, dir, mailer, "https://klubb.no/")

		ctx, cancel := context.WithCancel(context.Background())
		d.Notify(ctx, ns...)
		cancel()
		d.Close()

		require.Len(t, mailer.sent, 1)
		assert.Equal(t, "kari@example.com", mailer.sent[0].To)
		assert.Equal(t, "Ny betalingsforespørsel", mailer.sent[0].Subject)
		assert.Contains(t, mailer.sent[0].HTMLBody, `href="https://klubb.no/me/payment-requests"`)
		assert.Contains(t, mailer.sent[0].HTMLBody, "Hei Kari")
	})

	t.Run("FailuresAreSwallowed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := notification.NewMockRepository(ctrl)
		repo.EXPECT().
			CreateNotifications(gomock.Any(), gomock.Any()).
			Return(errors.New("db down"))

		mailer := &recordingMailer{err: errors.New("smtp down")}
		d := notification.NewDispatcher(repo, dir, mailer, "")

		d.Notify(context.Background(), ns[0])
		d.Close()

		assert.Len(t, mailer.sent, 1)
	})

	t.Run("WithoutMailer", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := notification.NewMockRepository(ctrl)
		repo.EXPECT().CreateNotifications(gomock.Any(), gomock.Len(1)).Return(nil)

		d := notification.NewDispatcher(repo, dir, nil, "")
		d.Notify(context.Background(), ns[0])
		d.Notify(context.Background())
		d.Close()
	})
}
