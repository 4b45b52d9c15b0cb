package stats

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	lgtmRE    = regexp.MustCompile(`(?i)\blgtm\b`)
	notLGTMRE = regexp.MustCompile(`(?i)\bnot lgtm\b`)
)

// SaysLGTM reports whether a message approves the change: an "lgtm" match
// outside quoted lines that is not a "not lgtm". The sender being the
// issue owner does not disqualify the match; self-approvals count on
// outgoing stats.
func SaysLGTM(m *Message) bool {
	return findInBody(m.Body, lgtmRE) && !findInBody(m.Body, notLGTMRE)
}

// findInBody matches the pattern against non-quoted lines only, so text
// echoed back in a reply does not count as a new statement.
func findInBody(body string, re *regexp.Regexp) bool {
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			continue
		}
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// ProcessIssue computes the (latency, lgtms, review type) triple for one
// user on one issue for the day being processed.
//
//   - start anchors the latency measurement: the anchor message's send
//     time, or the issue creation time when no better signal exists.
//   - anchorIndex and driveBy come from LocateAnchor; anchorIndex may be
//     NoAnchor.
//   - messages is the issue's full non-draft history sorted by send time,
//     already stripped of anything after dayToProcess.
//
// ok == false means no new signal exists for this user on this day and
// the caller must not persist anything. A signal counted on an earlier
// day is reported as ok == false too, which is what prevents double
// counting across days.
func ProcessIssue(start, dayToProcess time.Time, anchorIndex int, driveBy bool, issueOwner string, messages []*Message, user string) (latency int64, lgtms int, reviewType ReviewType, ok bool) {
	if len(messages) == 0 {
		panic("ProcessIssue: empty message list")
	}
	if anchorIndex != NoAnchor && (anchorIndex < 0 || anchorIndex >= len(messages)) {
		panic(fmt.Sprintf("ProcessIssue: anchor index %d out of range", anchorIndex))
	}
	if strings.Count(issueOwner, "@") != 1 {
		panic(fmt.Sprintf("ProcessIssue: malformed owner address %q", issueOwner))
	}
	if strings.Count(user, "@") != 1 {
		panic(fmt.Sprintf("ProcessIssue: malformed user address %q", user))
	}
	day := DateOf(dayToProcess)

	for _, m := range messages {
		if m.Sender == user && SaysLGTM(m) {
			lgtms++
		}
	}

	if user == issueOwner {
		sentOnDay := false
		for _, m := range messages {
			if DateOf(m.SentAt).Equal(day) {
				sentOnDay = true
				break
			}
		}
		if !sentOnDay {
			return UnknownLatency, 0, 0, false
		}
		// Outgoing activity has no review-latency concept.
		return UnknownLatency, lgtms, Outgoing, true
	}

	if anchorIndex == NoAnchor {
		// Neither the owner nor the user sent anything; no signal yet.
		return UnknownLatency, 0, 0, false
	}

	if driveBy {
		// NOT_REQUESTED when the user showed up before the owner ever
		// asked anyone; DRIVE_BY when a request existed but not for them.
		if messages[anchorIndex].Sender == user {
			reviewType = NotRequested
		} else {
			reviewType = DriveBy
		}
	} else {
		reviewType = Normal
	}

	for _, m := range messages[anchorIndex:] {
		if m.Sender != user {
			continue
		}
		if DateOf(m.SentAt).Before(day) {
			// Already counted on an earlier day.
			return UnknownLatency, 0, 0, false
		}
		return int64(m.SentAt.Sub(start) / time.Second), lgtms, reviewType, true
	}

	// The user never responded.
	if lgtms != 0 {
		panic("ProcessIssue: lgtm count without any message from user")
	}
	return UnknownLatency, 0, Ignored, true
}
