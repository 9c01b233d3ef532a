package service

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"math"
	"time"
	_ "time/tzdata"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"

	"github.com/insite-net/partage-api/internal/models"
	appErrors "github.com/insite-net/partage-api/pkg/errors"
)

//go:embed templates/submission_email.html
var submissionEmailHTML string

var submissionEmailTemplate = template.Must(template.New("submission").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(submissionEmailHTML))

type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// NotificationConfig configures the submission notification.
type NotificationConfig struct {
	From string
	To   []string
	// DevMode logs the email instead of sending it when no API key is configured.
	DevMode bool
}

// SubmissionNotice carries what the notification email shows.
type SubmissionNotice struct {
	Submission *models.Submission
	Photos     []models.StoredFile
	Archive    *models.ArchiveResult
}

type submissionEmailData struct {
	Company       string
	City          string
	Department    string
	ProjectType   string
	Description   string
	HasLocation   bool
	Coordinates   string
	Accuracy      string
	MapsURL       string
	AudioURL      string
	AudioDuration string
	VideoURL      string
	VideoDuration string
	ArchiveURL    string
	ArchiveName   string
	Photos        []models.StoredFile
	ReceivedAt    string
}

// NotificationService emails a summary of every new submission through Resend.
type NotificationService struct {
	sender   emailSender
	cfg      NotificationConfig
	logger   *zap.Logger
	location *time.Location
	now      func() time.Time
}

// NewNotificationService builds the service. A nil sender is only accepted in dev mode.
func NewNotificationService(sender emailSender, cfg NotificationConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		loc = time.UTC
	}
	return &NotificationService{sender: sender, cfg: cfg, logger: logger, location: loc, now: time.Now}
}

// NewResendSender returns the Resend email API for apiKey, or nil when apiKey is empty.
func NewResendSender(apiKey string) emailSender {
	if apiKey == "" {
		return nil
	}
	return resend.NewClient(apiKey).Emails
}

// SubmissionSubject is the notification subject line.
func SubmissionSubject(s *models.Submission) string {
	return fmt.Sprintf("Nouveau projet - %s (%s)", s.Company, s.ProjectType.Label())
}

// NotifySubmission sends the email and returns the provider message id.
func (s *NotificationService) NotifySubmission(ctx context.Context, notice SubmissionNotice) (string, error) {
	subject := SubmissionSubject(notice.Submission)
	body, err := s.render(notice)
	if err != nil {
		return "", appErrors.WrapAs(err, appErrors.ErrNotificationFailed)
	}

	if s.sender == nil {
		if s.cfg.DevMode {
			s.logger.Info("email sent (dev mode)",
				zap.String("submission_id", notice.Submission.ID),
				zap.Strings("to", s.cfg.To),
				zap.String("subject", subject),
			)
			return "", nil
		}
		return "", appErrors.Clone(appErrors.ErrNotificationFailed, "Email service not configured")
	}

	resp, err := s.sender.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.cfg.From,
		To:      s.cfg.To,
		Subject: subject,
		Html:    body,
	})
	if err != nil {
		s.logger.Error("resend send failed", zap.String("submission_id", notice.Submission.ID), zap.Error(err))
		return "", appErrors.WrapAs(err, appErrors.ErrNotificationFailed)
	}
	s.logger.Info("submission email sent", zap.String("submission_id", notice.Submission.ID), zap.String("email_id", resp.Id))
	return resp.Id, nil
}

func (s *NotificationService) render(notice SubmissionNotice) (string, error) {
	sub := notice.Submission
	data := submissionEmailData{
		Company:     sub.Company,
		City:        deref(sub.City),
		Department:  deref(sub.Department),
		ProjectType: sub.ProjectType.Label(),
		Description: deref(sub.Message),
		Photos:      notice.Photos,
		ReceivedAt:  s.now().In(s.location).Format("02/01/2006 15:04:05"),
	}
	if sub.HasLocation() {
		data.HasLocation = true
		data.Coordinates = fmt.Sprintf("%.6f, %.6f", *sub.Latitude, *sub.Longitude)
		data.MapsURL = fmt.Sprintf("https://www.google.com/maps?q=%f,%f", *sub.Latitude, *sub.Longitude)
		if sub.LocationAccuracy != nil {
			data.Accuracy = fmt.Sprintf("%d", int(math.Round(*sub.LocationAccuracy)))
		}
	}
	if sub.HasAudio() {
		data.AudioURL = *sub.AudioURL
		data.AudioDuration = formatDuration(sub.AudioDuration)
	}
	if sub.HasVideo() {
		data.VideoURL = *sub.VideoURL
		data.VideoDuration = formatDuration(sub.VideoDuration)
	}
	if notice.Archive != nil {
		data.ArchiveURL = notice.Archive.ArchiveURL
		data.ArchiveName = notice.Archive.ArchiveName
	}

	var buf bytes.Buffer
	if err := submissionEmailTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render submission email: %w", err)
	}
	return buf.String(), nil
}

// formatDuration renders seconds as m:ss.
func formatDuration(seconds *int) string {
	if seconds == nil {
		return "N/A"
	}
	return fmt.Sprintf("%d:%02d", *seconds/60, *seconds%60)
}
