package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insite-net/partage-api/internal/models"
	appErrors "github.com/insite-net/partage-api/pkg/errors"
)

type emailSenderStub struct {
	sent []*resend.SendEmailRequest
	err  error
}

func (s *emailSenderStub) SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.sent = append(s.sent, params)
	return &resend.SendEmailResponse{Id: "email-1"}, nil
}

func sampleSubmission() *models.Submission {
	lat, lon, acc := 45.764043, 4.835659, 12.6
	duration := 75
	return &models.Submission{
		ID:               testSubmissionID,
		Company:          "Dupont <BTP>",
		City:             strPtr("Lyon"),
		Department:       strPtr("69"),
		ProjectType:      models.ProjectTypeRenovation,
		Message:          strPtr("Toiture à refaire"),
		Latitude:         &lat,
		Longitude:        &lon,
		LocationAccuracy: &acc,
		AudioURL:         strPtr("https://cdn.example.com/audio-recordings/1_audio.webm"),
		AudioDuration:    &duration,
	}
}

func TestNotifySubmissionSendsEmail(t *testing.T) {
	sender := &emailSenderStub{}
	svc := NewNotificationService(sender, NotificationConfig{From: "Partage <noreply@example.com>", To: []string{"ops@example.com"}}, nil)
	svc.now = func() time.Time { return time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC) }

	id, err := svc.NotifySubmission(context.Background(), SubmissionNotice{
		Submission: sampleSubmission(),
		Photos:     []models.StoredFile{{Name: "toit.jpg", URL: "https://cdn.example.com/toit.jpg"}},
		Archive:    &models.ArchiveResult{ArchiveName: "Lyon_69_abcdef12", ArchiveURL: "https://cdn.example.com/archives/Lyon_69_abcdef12.zip"},
	})
	require.NoError(t, err)
	assert.Equal(t, "email-1", id)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "Nouveau projet - Dupont <BTP> (Rénovation)", msg.Subject)
	assert.Equal(t, []string{"ops@example.com"}, msg.To)
	assert.Contains(t, msg.Html, "Dupont &lt;BTP&gt;")
	assert.Contains(t, msg.Html, "45.764043, 4.835659")
	assert.Contains(t, msg.Html, "±13m")
	assert.Contains(t, msg.Html, "Durée: 1:15")
	assert.Contains(t, msg.Html, "Lyon_69_abcdef12")
	assert.Contains(t, msg.Html, "Photos (1)")
	assert.Contains(t, msg.Html, "02/05/2024 10:30:00")
}

func TestNotifySubmissionFailure(t *testing.T) {
	svc := NewNotificationService(&emailSenderStub{err: errors.New("rate limited")}, NotificationConfig{}, nil)

	_, err := svc.NotifySubmission(context.Background(), SubmissionNotice{Submission: sampleSubmission()})
	assert.ErrorIs(t, err, appErrors.ErrNotificationFailed)
}

func TestNotifySubmissionWithoutSender(t *testing.T) {
	dev := NewNotificationService(nil, NotificationConfig{DevMode: true}, nil)
	id, err := dev.NotifySubmission(context.Background(), SubmissionNotice{Submission: sampleSubmission()})
	require.NoError(t, err)
	assert.Empty(t, id)

	prod := NewNotificationService(nil, NotificationConfig{}, nil)
	_, err = prod.NotifySubmission(context.Background(), SubmissionNotice{Submission: sampleSubmission()})
	assert.ErrorIs(t, err, appErrors.ErrNotificationFailed)
}

func TestSubmissionSubjectNewProject(t *testing.T) {
	assert.Equal(t, "Nouveau projet - Martin (Projet neuf)", SubmissionSubject(&models.Submission{Company: "Martin", ProjectType: models.ProjectTypeNew}))
}
