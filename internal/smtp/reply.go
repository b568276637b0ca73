package smtp

import (
	"strings"

	"github.com/freightdesk/crm-backend/internal/models"
)

const replyPrefix = "Re:"

// BuildReply composes a reply to an inbound message. The reply inherits the
// original's threading headers so it lands in the same conversation: its
// References list is the original's list with the original's own id
// appended.
//
// A plain reply goes back to the original sender. With replyAll the original
// To and Cc recipients are kept as well, minus the replying account's own
// address. Duplicates are removed in both modes.
func BuildReply(original *models.MailMessage, sender models.Address, bodyText, bodyHTML string, replyAll bool) *OutgoingMessage {
	reply := &OutgoingMessage{
		From:       sender,
		Subject:    replySubject(original.Subject),
		BodyText:   bodyText,
		BodyHTML:   bodyHTML,
		InReplyTo:  original.MessageID,
		References: append(append([]string{}, original.References...), original.MessageID),
	}

	seen := map[string]bool{strings.ToLower(sender.Address): true}
	addTo := func(list []models.Address, dst *[]models.Address) {
		for _, a := range list {
			key := strings.ToLower(a.Address)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			*dst = append(*dst, a)
		}
	}

	addTo(original.From, &reply.To)
	if replyAll {
		addTo(original.To, &reply.To)
		addTo(original.Cc, &reply.Cc)
	}

	return reply
}

// replySubject prefixes the subject with "Re:" unless it already starts
// with that exact literal.
func replySubject(subject string) string {
	if strings.HasPrefix(subject, replyPrefix) {
		return subject
	}
	return replyPrefix + " " + subject
}
