package stats

import (
	"context"
	"slices"
)

// NoAnchor is returned by LocateAnchor when no message is relevant for
// the user at all; the caller falls back to the issue creation time.
const NoAnchor = -1

// LocateAnchor finds the message that anchors latency measurement for
// user on an issue, plus whether the interaction looks like a drive-by.
// Messages must be sorted by send time. The returned index is guaranteed
// to be a message sent by either the issue owner or the user, or NoAnchor.
//
// The rules, in scan order:
//   - An owner message addressed to the user is a direct review request.
//   - An owner message whose recipients contain no real account (per the
//     classifier) is a broadcast, e.g. to a mailing list only; treat it
//     as a request to everyone so later repliers are not downgraded to
//     drive-by.
//   - A message from the user before any qualifying request is a
//     drive-by or a not-requested review, disambiguated by ProcessIssue.
//   - A third party's message addressed to the user counts as a request
//     made on the owner's behalf.
func LocateAnchor(ctx context.Context, c *Classifier, issueOwner string, messages []*Message, user string) (int, bool, error) {
	// The caller shortcuts owner == user; no anchor is meaningful there.
	if issueOwner == user {
		return NoAnchor, false, nil
	}

	lastOwnerIndex := NoAnchor
	for i, m := range messages {
		switch {
		case m.Sender == issueOwner:
			lastOwnerIndex = i
			if slices.Contains(m.Recipients, user) {
				return i, false, nil
			}
			var others []string
			for _, r := range m.Recipients {
				if r != m.Sender && r != issueOwner {
					others = append(others, r)
				}
			}
			real, err := c.RealAccounts(ctx, others)
			if err != nil {
				return NoAnchor, false, err
			}
			if len(real) == 0 {
				return i, false, nil
			}
		case m.Sender == user:
			// The owner never asked this user directly, maybe they were
			// on a cc alias. Measure from the owner's last message when
			// one exists, otherwise from the user's own message.
			if lastOwnerIndex != NoAnchor {
				return lastOwnerIndex, true, nil
			}
			return i, true, nil
		default:
			if slices.Contains(m.Recipients, user) {
				return i, false, nil
			}
		}
	}
	return lastOwnerIndex, false, nil
}
