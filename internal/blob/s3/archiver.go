package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

// TradeArchiver implements domain.TradeArchiver. Trades that fall off the
// capped in-memory history are serialized to JSONL and uploaded so the full
// record survives the cap. The primary ledger never depends on these
// objects; they are write-only from the engine's perspective.
type TradeArchiver struct {
	client *Client
	prefix string
	now    func() time.Time
}

// NewTradeArchiver creates a TradeArchiver writing under the given key
// prefix (e.g. "trade-archive").
func NewTradeArchiver(client *Client, prefix string) *TradeArchiver {
	return &TradeArchiver{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

// Archive uploads one JSONL object containing the evicted trades. The key
// embeds the upload timestamp so batches never collide.
func (a *TradeArchiver) Archive(ctx context.Context, trades []domain.ClosedTrade) error {
	if len(trades) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, trade := range trades {
		if err := enc.Encode(trade); err != nil {
			return fmt.Errorf("s3blob: encode trade %s: %w", trade.ID, err)
		}
	}

	ts := a.now().UTC()
	key := fmt.Sprintf("%s/%s/trades-%s.jsonl",
		a.prefix, ts.Format("2006/01/02"), ts.Format("150405.000000000"))

	_, err := a.client.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.client.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put archive %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.TradeArchiver = (*TradeArchiver)(nil)
