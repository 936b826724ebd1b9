package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/AnnoyBoT/internal/metrics"
	"github.com/Kerhoff/AnnoyBoT/internal/models"
	"github.com/Kerhoff/AnnoyBoT/internal/repository/memory"
)

type reply struct {
	token models.ReplyToken
	texts []string
}

type push struct {
	groupIDs []string
	texts    []string
	imageURL string
	silent   bool
}

type fakeMessenger struct {
	replies []reply
	pushes  []push
	pushErr error
}

func (m *fakeMessenger) Reply(_ context.Context, token models.ReplyToken, texts []string) error {
	m.replies = append(m.replies, reply{token: token, texts: texts})
	return nil
}

func (m *fakeMessenger) PushText(_ context.Context, groupIDs []string, texts []string, silent bool) error {
	m.pushes = append(m.pushes, push{groupIDs: groupIDs, texts: texts, silent: silent})
	return m.pushErr
}

func (m *fakeMessenger) PushImage(_ context.Context, groupIDs []string, imageURL string, silent bool) error {
	m.pushes = append(m.pushes, push{groupIDs: groupIDs, imageURL: imageURL, silent: silent})
	return m.pushErr
}

type fakeContent struct {
	downloaded []string
}

func (c *fakeContent) Download(_ context.Context, contentID string) (*models.Blob, error) {
	c.downloaded = append(c.downloaded, contentID)
	return &models.Blob{Path: "/nonexistent/" + contentID, ContentType: "image/jpeg", Extension: ".jpg"}, nil
}

type fakeUploader struct {
	uploaded []*models.Blob
}

func (u *fakeUploader) Upload(_ context.Context, blob *models.Blob) (string, error) {
	u.uploaded = append(u.uploaded, blob)
	return "https://bucket.example/" + blob.Path, nil
}

// failingRegistry fails every save
type failingRegistry struct {
	*memory.RegistryRepository
}

var errStoreDown = errors.New("store down")

func (failingRegistry) Save(context.Context, *models.ControllingGroup) error {
	return errStoreDown
}

type fixture struct {
	svc       *Service
	registry  *memory.RegistryRepository
	messenger *fakeMessenger
	content   *fakeContent
	uploader  *fakeUploader
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		registry:  memory.NewRegistryRepository(),
		messenger: &fakeMessenger{},
		content:   &fakeContent{},
		uploader:  &fakeUploader{},
	}
	f.svc = New(f.registry, f.messenger, f.content, f.uploader,
		metrics.New(prometheus.NewRegistry()), logger,
		Config{
			DashboardURL: "https://dash.example/dashboard",
			Now:          func() time.Time { return fixedNow },
		},
	)
	return f
}

// seed stores a configured controlling group with the given receiving groups
func (f *fixture) seed(t *testing.T, inviteCode string, receiving ...models.Group) *models.ControllingGroup {
	t.Helper()
	group := models.NewControllingGroup(controllingGroup)
	group.InviteCode = inviteCode
	for _, g := range receiving {
		group.AddReceivingGroup(g)
	}
	if err := f.registry.Save(context.Background(), group); err != nil {
		t.Fatal(err)
	}
	return group
}

func (f *fixture) load(t *testing.T) *models.ControllingGroup {
	t.Helper()
	group, err := f.registry.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return group
}

var (
	controllingGroup = models.Group{GroupID: "-100", GroupName: "admins"}
	groupBeta        = models.Group{GroupID: "-2", GroupName: "beta"}
	groupAlpha       = models.Group{GroupID: "-3", GroupName: "alpha"}
)

func groupSource(g models.Group, userID string) models.Source {
	return models.Source{Type: models.SourceGroup, GroupID: g.GroupID, GroupName: g.GroupName, UserID: userID}
}

func textEvent(g models.Group, userID, text string) models.MessageEvent {
	return models.MessageEvent{
		Source:     groupSource(g, userID),
		Message:    models.Message{Kind: models.MessageText, Text: text},
		ReplyToken: "token",
	}
}
