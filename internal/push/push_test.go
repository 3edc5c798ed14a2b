package push

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

var testNow = time.Unix(1_700_000_000, 0)

func TestParseTags(t *testing.T) {
	cases := []struct {
		in        string
		wantTitle string
		wantBody  string
	}{
		{"[URGENT] Server down", "URGENT", " Server down"},
		{"[A][B] message", "A | B", " message"},
		{"[alpha] [beta] done", "ALPHA | beta", "  done"},
		{"no tags here", "no tags here", "no tags here"},
		{"[] empty tag", "[] empty tag", "[] empty tag"},
		{"[a[b]] nested", "b", "] nested"},
		{"[x] [y z] and [", "X | y z", "  and ["},
	}
	for _, tc := range cases {
		title, body := ParseTags(tc.in)
		if title != tc.wantTitle || body != tc.wantBody {
			t.Fatalf("ParseTags(%q) = (%q, %q), want (%q, %q)", tc.in, title, body, tc.wantTitle, tc.wantBody)
		}
	}
}

func TestNormalizeLinkSplitsTags(t *testing.T) {
	n := Normalize(Raw{Type: TypeLink, Active: true, Title: "[A][B] message", URL: "https://example.com"}, ReferenceData{}, testNow)
	if n.Title != "A | B" || n.Body != "message" {
		t.Fatalf("got title=%q body=%q", n.Title, n.Body)
	}
	if n.URL != "https://example.com" {
		t.Fatalf("url = %q", n.URL)
	}
}

func TestNormalizeNoteDefaultsEachOther(t *testing.T) {
	n := Normalize(Raw{Type: TypeNote, Body: "  only body  "}, ReferenceData{}, testNow)
	if n.Title != "only body" || n.Body != "only body" {
		t.Fatalf("got title=%q body=%q", n.Title, n.Body)
	}

	n = Normalize(Raw{Type: TypeNote, Title: "only title"}, ReferenceData{}, testNow)
	if n.Body != "only title" {
		t.Fatalf("body = %q", n.Body)
	}
}

func TestNormalizeFile(t *testing.T) {
	n := Normalize(Raw{
		Type:     TypeFile,
		FileName: "report.pdf",
		FileURL:  "https://dl.example.com/report.pdf",
		ImageURL: "https://img.example.com/thumb.png",
	}, ReferenceData{}, testNow)
	if n.Title != "report.pdf" {
		t.Fatalf("title = %q", n.Title)
	}
	if n.URL != "https://dl.example.com/report.pdf" {
		t.Fatalf("url = %q", n.URL)
	}
	if n.Icon != "https://img.example.com/thumb.png" {
		t.Fatalf("icon = %q", n.Icon)
	}
}

func TestNormalizeMirror(t *testing.T) {
	n := Normalize(Raw{Type: TypeMirror, ApplicationName: "Slack", Title: "ping", Icon: "QUJD"}, ReferenceData{}, testNow)
	if n.Title != "[Slack] ping" {
		t.Fatalf("title = %q", n.Title)
	}
	if n.Body != "[Slack] ping" {
		t.Fatalf("body = %q", n.Body)
	}
	if n.Icon != "data:image/jpeg;base64,QUJD" {
		t.Fatalf("icon = %q", n.Icon)
	}

	n = Normalize(Raw{Type: TypeMirror, ApplicationName: "Slack", Body: "hello"}, ReferenceData{}, testNow)
	if n.Title != "Slack" || n.Body != "hello" {
		t.Fatalf("got title=%q body=%q", n.Title, n.Body)
	}
}

func TestNormalizeSMS(t *testing.T) {
	raw := Raw{
		Type: TypeSMSChanged,
		Notifications: []SMS{
			{Title: "+1 555 0100", Body: "see you", Timestamp: float64(testNow.Add(-5 * time.Minute).Unix())},
			{Title: "+1 555 0199", Body: "ignored"},
		},
	}
	n := Normalize(raw, ReferenceData{}, testNow)
	if n.Title != "New SMS from +1 555 0100" {
		t.Fatalf("title = %q", n.Title)
	}
	if n.Body != "see you\n5 minutes ago" {
		t.Fatalf("body = %q", n.Body)
	}
	if n.Icon != phoneIconURL {
		t.Fatalf("icon = %q", n.Icon)
	}
	if n.EmptySMS {
		t.Fatalf("expected EmptySMS=false")
	}
}

func TestNormalizeEmptySMSIsSuppressed(t *testing.T) {
	n := Normalize(Raw{Type: TypeSMSChanged, Active: true}, ReferenceData{}, testNow)
	if !n.EmptySMS {
		t.Fatalf("expected EmptySMS=true")
	}
	if ShouldShow(n) {
		t.Fatalf("empty sms should be suppressed")
	}
	if Reason(n) != ReasonEmptySMS {
		t.Fatalf("reason = %q", Reason(n))
	}
}

func TestNormalizeBlankNoteIsSuppressed(t *testing.T) {
	n := Normalize(Raw{Type: TypeNote, Active: true, Title: "   "}, ReferenceData{}, testNow)
	if n.Title != "" || n.Body != "" {
		t.Fatalf("title=%q body=%q, want both empty", n.Title, n.Body)
	}
	if Reason(n) != ReasonEmpty {
		t.Fatalf("reason = %q, want %q", Reason(n), ReasonEmpty)
	}
}

func TestNormalizeDetectsURLInTitle(t *testing.T) {
	n := Normalize(Raw{Type: TypeNote, Title: "deploy done see HTTPS://ci.example.com/run/42 now", Body: "x"}, ReferenceData{}, testNow)
	if n.URL != "HTTPS://ci.example.com/run/42" {
		t.Fatalf("url = %q", n.URL)
	}
}

func TestNormalizeUnknownTypePassesThrough(t *testing.T) {
	n := Normalize(Raw{Type: "dismissal", Body: "raw text", ImageURL: "https://x/y.png", ReceiverIden: "abc"},
		ReferenceData{Accounts: []Account{{Iden: "abcdef", ImageURL: "https://acct.png"}}}, testNow)
	if n.Type != "dismissal" {
		t.Fatalf("type = %q", n.Type)
	}
	if n.Title != "raw text" || n.Body != "raw text" {
		t.Fatalf("got title=%q body=%q", n.Title, n.Body)
	}
	if n.Icon != "https://x/y.png" {
		t.Fatalf("icon = %q", n.Icon)
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	raw := Raw{
		Iden: "ujpah72o0sjAoRtnM0jc", Type: TypeLink, Active: true,
		Title: "[ci][prod] build https://ci.example.com/1", Created: 10, Modified: 12,
		ClientIden: "c1",
	}
	ref := ReferenceData{Grants: []Grant{{Client: GrantClient{Iden: "c1", ImageURL: "https://ifttt.png"}}}}
	a := Normalize(raw, ref, testNow)
	b := Normalize(raw, ref, testNow)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("normalize not deterministic:\n%+v\n%+v", a, b)
	}
	if a.Icon != "https://ifttt.png" {
		t.Fatalf("icon = %q", a.Icon)
	}
}

func TestNormalizeClampsModified(t *testing.T) {
	n := Normalize(Raw{Type: TypeNote, Title: "x", Created: 100, Modified: 50}, ReferenceData{}, testNow)
	if n.Modified != 100 {
		t.Fatalf("modified = %v, want 100", n.Modified)
	}
}

func TestResolveIconPrecedence(t *testing.T) {
	ref := ReferenceData{
		Accounts: []Account{{Iden: "ujpah72o0", ImageURL: "https://account.png"}},
		Devices:  []Device{{Iden: "dev1", Icon: "laptop"}},
		Grants:   []Grant{{Client: GrantClient{Iden: "chan1", ImageURL: "https://channel.png"}}},
	}

	cases := []struct {
		name string
		raw  Raw
		want string
	}{
		{"account only", Raw{Type: TypeNote, ReceiverIden: "ujpah"}, "https://account.png"},
		{"device beats account", Raw{Type: TypeNote, ReceiverIden: "ujpah", SourceDeviceIden: "dev1"}, "http://www.pushbullet.com/img/deviceicons/laptop.png"},
		{"channel beats device", Raw{Type: TypeNote, ReceiverIden: "ujpah", SourceDeviceIden: "dev1", ClientIden: "chan1"}, "https://channel.png"},
		{"mirror data uri wins", Raw{Type: TypeMirror, Icon: "Zm9v", ClientIden: "chan1"}, "data:image/jpeg;base64,Zm9v"},
		{"sms phone icon", Raw{Type: TypeSMSChanged, ReceiverIden: "ujpah"}, phoneIconURL},
		{"nothing", Raw{Type: TypeNote}, ""},
	}
	for _, tc := range cases {
		if got := ResolveIcon(tc.raw, ref); got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestShouldShow(t *testing.T) {
	cases := []struct {
		name string
		p    Normalized
		want bool
	}{
		{"inactive note", Normalized{Type: TypeNote, Title: "t", Active: false}, false},
		{"inactive link", Normalized{Type: TypeLink, Title: "t", Active: false}, false},
		{"inactive mirror is fine", Normalized{Type: TypeMirror, Title: "t", Active: false}, true},
		{"self dismissed", Normalized{Type: TypeNote, Title: "t", Active: true, Direction: DirectionSelf, Dismissed: true}, false},
		{"incoming dismissed still shows", Normalized{Type: TypeNote, Title: "t", Active: true, Direction: DirectionIncoming, Dismissed: true}, true},
		{"blank active note", Normalized{Type: TypeNote, Active: true}, false},
		{"blank mirror", Normalized{Type: TypeMirror, Active: true}, false},
		{"body only", Normalized{Type: TypeNote, Body: "b", Active: true}, true},
		{"active note", Normalized{Type: TypeNote, Title: "t", Active: true}, true},
	}
	for _, tc := range cases {
		if got := ShouldShow(tc.p); got != tc.want {
			t.Fatalf("%s: ShouldShow = %v, want %v (reason %q)", tc.name, got, tc.want, Reason(tc.p))
		}
	}
}

func TestIsSnoozing(t *testing.T) {
	if !IsSnoozing(testNow, testNow.Add(time.Minute)) {
		t.Fatalf("expected snoozing before deadline")
	}
	if IsSnoozing(testNow, testNow) {
		t.Fatalf("snooze ends at deadline")
	}
	if IsSnoozing(testNow, time.Time{}) {
		t.Fatalf("zero deadline is not snoozing")
	}
}

func TestShouldDismiss(t *testing.T) {
	cases := []struct {
		p    Normalized
		want bool
	}{
		{Normalized{Direction: DirectionSelf}, true},
		{Normalized{Direction: DirectionSelf, TargetDeviceIden: "dev"}, false},
		{Normalized{Direction: DirectionSelf, Dismissed: true}, false},
		{Normalized{Direction: DirectionIncoming, TargetDeviceIden: "dev"}, true},
		{Normalized{Direction: DirectionIncoming, Dismissed: true}, false},
		{Normalized{Direction: DirectionOutgoing}, false},
	}
	for i, tc := range cases {
		if got := ShouldDismiss(tc.p); got != tc.want {
			t.Fatalf("case %d: ShouldDismiss = %v, want %v", i, got, tc.want)
		}
	}
}

func TestRelativeTime(t *testing.T) {
	got := RelativeTime(testNow.Add(-2*time.Hour), testNow)
	if !strings.HasSuffix(got, "ago") {
		t.Fatalf("RelativeTime = %q", got)
	}
}
