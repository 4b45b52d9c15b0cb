package stats

import (
	"context"
	"testing"
	"time"
)

func testMsg(sender string, recipients []string, at time.Time, body string) *Message {
	return &Message{Sender: sender, Recipients: recipients, SentAt: at, Body: body}
}

func day(n int) time.Time {
	return time.Date(2024, 3, n, 10, 0, 0, 0, time.UTC)
}

func newTestClassifier(owners ...string) *Classifier {
	m := make(map[string]bool)
	for _, o := range owners {
		m[o] = true
	}
	return NewClassifier(&stubProber{owners: m})
}

func TestLocateAnchor_DirectRequest(t *testing.T) {
	c := newTestClassifier("o@x.com", "r@x.com")
	messages := []*Message{
		testMsg("o@x.com", []string{"r@x.com"}, day(1), "please review"),
		testMsg("r@x.com", []string{"o@x.com"}, day(3), "lgtm"),
	}
	anchor, driveBy, err := LocateAnchor(context.Background(), c, "o@x.com", messages, "r@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if anchor != 0 || driveBy {
		t.Errorf("direct request: got (%d, %v), want (0, false)", anchor, driveBy)
	}
}

func TestLocateAnchor_MailingListBroadcast(t *testing.T) {
	// Owner sent only to a list; every later replier is treated as asked.
	c := newTestClassifier("o@x.com", "r@x.com")
	messages := []*Message{
		testMsg("o@x.com", []string{"dev-list+review@x.com"}, day(1), "ptal"),
		testMsg("r@x.com", []string{"o@x.com"}, day(2), "done, lgtm"),
	}
	anchor, driveBy, err := LocateAnchor(context.Background(), c, "o@x.com", messages, "r@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if anchor != 0 || driveBy {
		t.Errorf("broadcast: got (%d, %v), want (0, false)", anchor, driveBy)
	}
}

func TestLocateAnchor_DriveByAfterOwnerRequest(t *testing.T) {
	// Owner asked someone else; r shows up uninvited.
	c := newTestClassifier("o@x.com", "a@x.com", "r@x.com")
	messages := []*Message{
		testMsg("o@x.com", []string{"a@x.com"}, day(1), "please review"),
		testMsg("r@x.com", []string{"o@x.com"}, day(2), "drive-by comment"),
	}
	anchor, driveBy, err := LocateAnchor(context.Background(), c, "o@x.com", messages, "r@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if anchor != 0 || !driveBy {
		t.Errorf("drive-by: got (%d, %v), want (0, true)", anchor, driveBy)
	}
}

func TestLocateAnchor_NotRequested(t *testing.T) {
	// r speaks before the owner ever sent anything.
	c := newTestClassifier("o@x.com", "r@x.com")
	messages := []*Message{
		testMsg("r@x.com", []string{"o@x.com"}, day(1), "unsolicited"),
		testMsg("o@x.com", []string{"r@x.com"}, day(2), "thanks"),
	}
	anchor, driveBy, err := LocateAnchor(context.Background(), c, "o@x.com", messages, "r@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if anchor != 0 || !driveBy {
		t.Errorf("unprompted message: got (%d, %v), want (0, true)", anchor, driveBy)
	}
}

func TestLocateAnchor_ThirdPartyRequest(t *testing.T) {
	c := newTestClassifier("o@x.com", "a@x.com", "r@x.com")
	messages := []*Message{
		testMsg("a@x.com", []string{"r@x.com"}, day(1), "can you take this one?"),
		testMsg("r@x.com", []string{"a@x.com"}, day(2), "sure"),
	}
	anchor, driveBy, err := LocateAnchor(context.Background(), c, "o@x.com", messages, "r@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if anchor != 0 || driveBy {
		t.Errorf("third-party request: got (%d, %v), want (0, false)", anchor, driveBy)
	}
}

func TestLocateAnchor_NoResolution(t *testing.T) {
	// Owner asked someone else and r never appears: fall back to the last
	// owner message, not drive-by.
	c := newTestClassifier("o@x.com", "a@x.com", "r@x.com")
	messages := []*Message{
		testMsg("o@x.com", []string{"a@x.com"}, day(1), "please review"),
		testMsg("a@x.com", []string{"o@x.com"}, day(2), "lgtm"),
		testMsg("o@x.com", []string{"a@x.com"}, day(3), "thanks"),
	}
	anchor, driveBy, err := LocateAnchor(context.Background(), c, "o@x.com", messages, "r@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if anchor != 2 || driveBy {
		t.Errorf("no resolution: got (%d, %v), want (2, false)", anchor, driveBy)
	}
}

func TestLocateAnchor_OwnerIsUser(t *testing.T) {
	c := newTestClassifier("o@x.com")
	messages := []*Message{testMsg("o@x.com", []string{"r@x.com"}, day(1), "ptal")}
	anchor, driveBy, err := LocateAnchor(context.Background(), c, "o@x.com", messages, "o@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if anchor != NoAnchor || driveBy {
		t.Errorf("owner as user: got (%d, %v), want (NoAnchor, false)", anchor, driveBy)
	}
}
