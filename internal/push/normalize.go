package push

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// reURL finds links embedded in a title.
var reURL = regexp.MustCompile(`(?i)\bhttps?://\S+`)

// Normalize decorates a raw push into its display form.
//
// It never fails: missing fields fall back to defaults and unknown types
// pass through with only the common handling (URL detection + trimming).
// now is only used to render relative times in SMS bodies.
func Normalize(raw Raw, ref ReferenceData, now time.Time) Normalized {
	n := Normalized{
		Type:             raw.Type,
		Iden:             raw.Iden,
		Title:            raw.Title,
		Body:             raw.Body,
		URL:              raw.URL,
		Created:          raw.Created,
		Modified:         raw.Modified,
		Direction:        raw.Direction,
		Dismissed:        raw.Dismissed,
		Active:           raw.Active,
		TargetDeviceIden: raw.TargetDeviceIden,
	}
	if n.Type == "" {
		n.Type = TypeNote
	}
	if n.Modified < n.Created {
		n.Modified = n.Created
	}

	switch n.Type {
	case TypeLink:
		normalizeLink(&n, raw, ref)
	case TypeNote:
		normalizeNote(&n, raw, ref)
	case TypeFile:
		normalizeFile(&n, raw, ref)
	case TypeMirror:
		normalizeMirror(&n, raw, ref)
	case TypeSMSChanged:
		normalizeSMS(&n, raw, ref, now)
	default:
		normalizeOther(&n, raw)
	}

	if n.URL == "" {
		n.URL = reURL.FindString(n.Title)
	}
	n.Title = strings.TrimSpace(n.Title)
	n.Body = strings.TrimSpace(n.Body)
	return n
}

func normalizeLink(n *Normalized, raw Raw, ref ReferenceData) {
	n.Icon = ResolveIcon(raw, ref)
	if n.Body == "" && n.Title != "" {
		n.Title, n.Body = ParseTags(n.Title)
	}
}

func normalizeNote(n *Normalized, raw Raw, ref ReferenceData) {
	defaultEachOther(n)
	n.Icon = ResolveIcon(raw, ref)
}

func normalizeFile(n *Normalized, raw Raw, ref ReferenceData) {
	if n.Title == "" {
		n.Title = raw.FileName
	}
	n.URL = raw.FileURL
	n.Icon = firstNonEmpty(raw.ImageURL, ResolveIcon(raw, ref))
}

func normalizeMirror(n *Normalized, raw Raw, ref ReferenceData) {
	switch {
	case raw.ApplicationName != "" && n.Title != "":
		n.Title = fmt.Sprintf("[%s] %s", raw.ApplicationName, n.Title)
	case raw.ApplicationName != "":
		n.Title = raw.ApplicationName
	}
	if n.Body == "" {
		n.Body = n.Title
	}
	n.URL = raw.FileURL
	n.Icon = firstNonEmpty(raw.ImageURL, ResolveIcon(raw, ref))
}

func normalizeSMS(n *Normalized, raw Raw, ref ReferenceData, now time.Time) {
	if len(raw.Notifications) == 0 {
		n.EmptySMS = true
		return
	}
	sms := raw.Notifications[0]
	n.Title = "New SMS from " + sms.Title
	n.Body = sms.Body + "\n" + RelativeTime(unixSeconds(sms.Timestamp), now)
	n.Icon = firstNonEmpty(raw.ImageURL, ResolveIcon(raw, ref))
}

// normalizeOther is the best-effort path for types we don't know about.
func normalizeOther(n *Normalized, raw Raw) {
	defaultEachOther(n)
	n.Icon = raw.ImageURL
}

func defaultEachOther(n *Normalized) {
	if n.Title == "" {
		n.Title = n.Body
	}
	if n.Body == "" {
		n.Body = n.Title
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// unixSeconds converts fractional unix seconds (the service's timestamp
// format) to a time.Time.
func unixSeconds(sec float64) time.Time {
	whole := int64(sec)
	frac := sec - float64(whole)
	return time.Unix(whole, int64(frac*float64(time.Second)))
}
