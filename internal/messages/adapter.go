// Package messages translates between kernel block primitives and the
// domain notion of a captured message.
//
// A message is a paragraph block carrying two custom attributes: a type
// marker (custom-mn-type="message") and the authoritative creation time
// (custom-mn-ts, RFC 3339). The same two markers are also embedded
// inline in the block body so the raw document stays readable.
package messages

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/soramir/inkwell/internal/models"
	"github.com/soramir/inkwell/internal/siyuan"
)

// Attribute keys and values marking a block as a captured message.
const (
	AttrType      = "custom-mn-type"
	AttrTimestamp = "custom-mn-ts"
	TypeMessage   = "message"
)

// kernelCreated is the layout of the blocks.created column.
const kernelCreated = "20060102150405"

var tsPattern = regexp.MustCompile(AttrTimestamp + `="([^"]+)"`)

// Adapter reads and writes message blocks under a capture document.
type Adapter struct {
	client *siyuan.Client
}

// NewAdapter creates a message adapter over a kernel client.
func NewAdapter(client *siyuan.Client) *Adapter {
	return &Adapter{client: client}
}

// Load returns all message blocks under docID in ascending creation
// order. Malformed timestamp markers never fail the load: the block's
// own creation time is used, and failing that, the current time.
func (a *Adapter) Load(ctx context.Context, docID string) ([]models.Message, error) {
	stmt := fmt.Sprintf(
		`SELECT id, content, ial, created FROM blocks WHERE type='p' AND root_id='%s' AND ial LIKE '%%%s="%s"%%' ORDER BY created ASC`,
		docID, AttrType, TypeMessage)
	rows, err := a.client.QuerySQL(ctx, stmt)
	if err != nil {
		return nil, err
	}

	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, models.Message{
			ID:          row.ID,
			Content:     row.Content,
			DisplayTime: messageTime(row).Format("15:04"),
			ISOTime:     messageISO(row),
		})
	}
	return msgs, nil
}

// messageISO extracts the authoritative timestamp marker, falling back
// to the block's created column verbatim.
func messageISO(row siyuan.SQLBlock) string {
	if m := tsPattern.FindStringSubmatch(row.IAL); m != nil {
		return m[1]
	}
	return row.Created
}

// messageTime resolves the display time for a row: marker, then block
// creation time, then now.
func messageTime(row siyuan.SQLBlock) time.Time {
	if m := tsPattern.FindStringSubmatch(row.IAL); m != nil {
		if t, err := time.Parse(time.RFC3339, m[1]); err == nil {
			return t
		}
	}
	if t, err := time.ParseInLocation(kernelCreated, row.Created, time.Local); err == nil {
		return t
	}
	return time.Now()
}

// Append persists one message as a new block under docID. The block is
// appended with inline markers, then tagged with the same values as
// queryable attributes. When the kernel acknowledges the append without
// an id, the message is returned without attribute tagging; it is still
// sent but will not be found by Load.
func (a *Adapter) Append(ctx context.Context, docID, content string, now time.Time) (models.Message, error) {
	iso := now.Format(time.RFC3339)
	markdown := fmt.Sprintf("%s\n{: %s=%q %s=%q}", content, AttrType, TypeMessage, AttrTimestamp, iso)

	blockID, err := a.client.AppendBlock(ctx, docID, "markdown", markdown)
	if err != nil {
		return models.Message{}, err
	}
	if blockID != "" {
		err := a.client.SetBlockAttrs(ctx, blockID, map[string]string{
			AttrType:      TypeMessage,
			AttrTimestamp: iso,
		})
		if err != nil {
			return models.Message{}, err
		}
	}
	return models.NewMessage(blockID, content, now), nil
}
