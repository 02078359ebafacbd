package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	slackapi "github.com/slack-go/slack"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zulandar/switchboard/internal/bus"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/store"
)

type recordedNote struct {
	Title string
	Body  string
}

// mockNotifier records deliveries.
type mockNotifier struct {
	mu    sync.Mutex
	notes []recordedNote
	err   error
}

func (m *mockNotifier) Notify(title, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.notes = append(m.notes, recordedNote{Title: title, Body: body})
	return nil
}

func (m *mockNotifier) Notes() []recordedNote {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]recordedNote, len(m.notes))
	copy(out, m.notes)
	return out
}

func (m *mockNotifier) waitNotes(t *testing.T, n int) []recordedNote {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if notes := m.Notes(); len(notes) >= n {
			return notes
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("never received %d notifications, have %d", n, len(m.Notes()))
	return nil
}

func openNotifyTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.SessionStatus{}, &models.ChatMessage{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return store.New(db)
}

func TestDaemon_ForwardsLifecycleEvents(t *testing.T) {
	b := bus.New()
	st := openNotifyTestStore(t)
	sink := &mockNotifier{}
	d, err := New(Opts{Bus: b, Store: st, Sinks: []Notifier{sink}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	// Wait for the wildcard subscription.
	deadline := time.Now().Add(2 * time.Second)
	for {
		b.Publish("adv-1", bus.Event{Kind: bus.KindSessionConnected, Phone: "555"})
		if len(sink.Notes()) > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	notes := sink.waitNotes(t, 1)
	if notes[0].Title != "Session connected" {
		t.Errorf("title = %q", notes[0].Title)
	}
	if !strings.Contains(notes[0].Body, "adv-1") || !strings.Contains(notes[0].Body, "555") {
		t.Errorf("body = %q", notes[0].Body)
	}
}

func TestDaemon_IgnoresMessageTraffic(t *testing.T) {
	sink := &mockNotifier{}
	d := &Daemon{sinks: []Notifier{sink}}

	d.handleEvent(bus.Event{Kind: bus.KindMessageReceived, TenantID: "adv-1", Text: "hola"})
	if len(sink.Notes()) != 0 {
		t.Errorf("message traffic reached the ops channel: %+v", sink.Notes())
	}

	d.handleEvent(bus.Event{Kind: bus.KindSessionClosed, TenantID: "adv-1"})
	if len(sink.Notes()) != 1 {
		t.Fatalf("notes = %d, want 1", len(sink.Notes()))
	}
}

func TestDaemon_SinkErrorDoesNotStopOthers(t *testing.T) {
	failing := &mockNotifier{err: errors.New("rate limited")}
	working := &mockNotifier{}
	d := &Daemon{sinks: []Notifier{failing, working}}

	d.handleEvent(bus.Event{Kind: bus.KindScanCodeReady, TenantID: "adv-1"})
	if len(working.Notes()) != 1 {
		t.Errorf("second sink notes = %d, want 1", len(working.Notes()))
	}
}

func TestBuildDigest_QuietDaySuppressed(t *testing.T) {
	st := openNotifyTestStore(t)

	title, body, err := BuildDigest(st, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("BuildDigest: %v", err)
	}
	if title != "" || body != "" {
		t.Errorf("quiet day produced digest: %q / %q", title, body)
	}
}

func TestBuildDigest_SummarizesPerTenant(t *testing.T) {
	st := openNotifyTestStore(t)

	for _, m := range []*models.ChatMessage{
		{TenantID: "adv-1", Counterparty: "521555", Direction: models.DirectionIncoming, Text: "hola"},
		{TenantID: "adv-1", Counterparty: "521555", Direction: models.DirectionOutgoing, Text: "buenas"},
		{TenantID: "adv-2", Counterparty: "521777", Direction: models.DirectionIncoming, Text: "precio?"},
	} {
		if err := st.AppendMessage(m); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.UpsertStatus("adv-1", "connected", "555", true); err != nil {
		t.Fatal(err)
	}

	title, body, err := BuildDigest(st, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("BuildDigest: %v", err)
	}
	if title != "Daily activity digest" {
		t.Errorf("title = %q", title)
	}
	if !strings.Contains(body, "3 messages across 2 tenants") {
		t.Errorf("body = %q", body)
	}
	if !strings.Contains(body, "adv-1: 2 messages (connected)") {
		t.Errorf("body missing adv-1 line: %q", body)
	}
	if !strings.Contains(body, "adv-2: 1 messages (unknown)") {
		t.Errorf("body missing adv-2 line: %q", body)
	}
}

func TestNextCronDuration(t *testing.T) {
	if d := nextCronDuration("not a cron"); d != 0 {
		t.Errorf("invalid expr = %v, want 0", d)
	}
	d := nextCronDuration("* * * * *")
	if d <= 0 || d > time.Minute {
		t.Errorf("every-minute expr = %v, want (0, 1m]", d)
	}
}

// mockSlackClient records PostMessage calls.
type mockSlackClient struct {
	channels []string
	err      error
}

func (m *mockSlackClient) PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error) {
	if m.err != nil {
		return "", "", m.err
	}
	m.channels = append(m.channels, channelID)
	return channelID, "123.456", nil
}

func TestSlackNotifier(t *testing.T) {
	if _, err := NewSlack(SlackOpts{Channel: "#ops"}); err == nil {
		t.Error("expected error without token or client")
	}
	if _, err := NewSlack(SlackOpts{Client: &mockSlackClient{}}); err == nil {
		t.Error("expected error without channel")
	}

	client := &mockSlackClient{}
	n, err := NewSlack(SlackOpts{Client: client, Channel: "#ops"})
	if err != nil {
		t.Fatalf("NewSlack: %v", err)
	}
	if err := n.Notify("Session closed", "Tenant adv-1 is disconnected."); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(client.channels) != 1 || client.channels[0] != "#ops" {
		t.Errorf("posted channels = %v", client.channels)
	}

	client.err = errors.New("channel_not_found")
	if err := n.Notify("t", "b"); err == nil {
		t.Error("expected post error to surface")
	}
}

// mockDiscordSession records embed sends.
type mockDiscordSession struct {
	embeds []*discordgo.MessageEmbed
	err    error
}

func (m *mockDiscordSession) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.embeds = append(m.embeds, embed)
	return &discordgo.Message{ID: "1"}, nil
}

func TestDiscordNotifier(t *testing.T) {
	if _, err := NewDiscord(DiscordOpts{ChannelID: "42"}); err == nil {
		t.Error("expected error without token or session")
	}

	sess := &mockDiscordSession{}
	n, err := NewDiscord(DiscordOpts{Session: sess, ChannelID: "42"})
	if err != nil {
		t.Fatalf("NewDiscord: %v", err)
	}
	if err := n.Notify("Session connected", "Tenant adv-1 is connected as 555."); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(sess.embeds) != 1 || sess.embeds[0].Title != "Session connected" {
		t.Errorf("embeds = %+v", sess.embeds)
	}
}
