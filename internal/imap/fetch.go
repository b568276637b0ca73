package imap

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/freightdesk/crm-backend/internal/config"
	"github.com/freightdesk/crm-backend/internal/models"
)

// FetchClient pulls new messages from a mailbox. Each call opens its own
// session and closes it before returning; no connection state is kept
// between cycles.
type FetchClient struct {
	ConnectTimeout time.Duration
	FirstSyncLimit int
	PerCycleLimit  int
}

func NewFetchClient(cfg *config.Config) *FetchClient {
	return &FetchClient{
		ConnectTimeout: cfg.ConnectTimeout,
		FirstSyncLimit: cfg.FirstSyncLimit,
		PerCycleLimit:  cfg.PerCycleLimit,
	}
}

// FetchResult is the outcome of one fetch pass over a folder.
type FetchResult struct {
	// Messages are parsed and ordered by ascending UID.
	Messages []*models.MailMessage
	// MaxUID is the highest UID observed across fetched messages, including
	// ones that failed to parse. Zero means nothing new was found.
	MaxUID uint32
	// Skipped counts messages dropped because their source could not be
	// parsed.
	Skipped int
}

// FetchSince retrieves messages with UID greater than watermark from the
// given folder. A zero watermark marks a mailbox that has never been synced:
// only the newest FirstSyncLimit messages are pulled so that connecting a
// years-old mailbox does not trigger a full-history import. Incremental
// passes are capped at PerCycleLimit per call; the rest is picked up by
// later cycles.
//
// Attachments of parsed messages are written under attachmentsDir.
func (f *FetchClient) FetchSince(session SessionConfig, folder string, watermark uint32, attachmentsDir string) (*FetchResult, error) {
	c, err := Connect(session, f.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Logout() }()

	mbox, err := c.Select(folder, true)
	if err != nil {
		return nil, fmt.Errorf("failed to select folder %s: %w", folder, err)
	}

	var uids []uint32
	if watermark == 0 {
		uids, err = f.initialUIDs(c, mbox)
	} else {
		uids, err = f.newUIDs(c, watermark)
	}
	if err != nil {
		return nil, err
	}

	result := &FetchResult{}
	if len(uids) == 0 {
		return result, nil
	}

	if err := f.fetchBodies(c, uids, attachmentsDir, result); err != nil {
		return nil, err
	}

	return result, nil
}

// initialUIDs picks the newest FirstSyncLimit messages by sequence number and
// resolves their UIDs.
func (f *FetchClient) initialUIDs(c *client.Client, mbox *imap.MailboxStatus) ([]uint32, error) {
	if mbox.Messages == 0 {
		return nil, nil
	}

	from := uint32(1)
	if mbox.Messages > uint32(f.FirstSyncLimit) {
		from = mbox.Messages - uint32(f.FirstSyncLimit) + 1
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddRange(from, mbox.Messages)

	messages := make(chan *imap.Message, f.FirstSyncLimit)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, []imap.FetchItem{imap.FetchUid}, messages)
	}()

	var uids []uint32
	for msg := range messages {
		uids = append(uids, msg.Uid)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to resolve initial UIDs: %w", err)
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

// newUIDs searches for UIDs above the watermark. Servers answer the range
// watermark+1:* with the last message even when nothing newer exists, so the
// result is filtered against the watermark again before use.
func (f *FetchClient) newUIDs(c *client.Client, watermark uint32) ([]uint32, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(watermark+1, 0)

	criteria := imap.NewSearchCriteria()
	criteria.Uid = seqSet

	found, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search for new messages: %w", err)
	}

	var uids []uint32
	for _, uid := range found {
		if uid > watermark {
			uids = append(uids, uid)
		}
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if len(uids) > f.PerCycleLimit {
		uids = uids[:f.PerCycleLimit]
	}
	return uids, nil
}

func (f *FetchClient) fetchBodies(c *client.Client, uids []uint32, attachmentsDir string, result *FetchResult) error {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchFlags, imap.FetchInternalDate, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	var fetched []*imap.Message
	for msg := range messages {
		fetched = append(fetched, msg)
	}
	if err := <-done; err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}

	sort.Slice(fetched, func(i, j int) bool { return fetched[i].Uid < fetched[j].Uid })

	for _, raw := range fetched {
		if raw.Uid > result.MaxUID {
			result.MaxUID = raw.Uid
		}
		parsed, err := ParseMessage(raw, section, attachmentsDir)
		if err != nil {
			log.Printf("Warning: skipping message uid %d: %v", raw.Uid, err)
			result.Skipped++
			continue
		}
		result.Messages = append(result.Messages, parsed)
	}

	return nil
}
