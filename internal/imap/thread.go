package imap

// ResolveThreadID derives the conversation identifier for a message from its
// reply headers. The first entry of References is the root of the thread, so
// every reply in a conversation lands on the same id no matter how deep the
// chain runs. Messages that only carry In-Reply-To fall back to that single
// parent, and a message with no reply headers starts a thread of its own.
func ResolveThreadID(references []string, inReplyTo, messageID string) string {
	if len(references) > 0 {
		return references[0]
	}
	if inReplyTo != "" {
		return inReplyTo
	}
	return messageID
}
