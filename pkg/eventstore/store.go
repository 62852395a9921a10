package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/castingclouds/circuit-breaker-sub001/pkg/workflow"
	"github.com/redis/go-redis/v9"
)

// Logger is the narrow logging interface every core package accepts,
// matching the teacher's logger.Logger shape (common/logger).
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Store is the Redis-Streams-backed implementation of the event store
// (C1). One Redis Stream is provisioned per workflow; subjects are
// encoded as a field on each stream entry, with a companion index hash
// enforcing per-subject last-version-wins retention.
type Store struct {
	redis  *redis.Client
	logger Logger
}

// New creates a Store over an existing Redis client.
func New(client *redis.Client, logger Logger) *Store {
	return &Store{redis: client, logger: logger}
}

// EnsureStream is idempotent; it provisions the per-workflow stream
// lazily on first write, so no explicit call is required before
// PublishToken, but callers that want to pre-create the consumer group
// for durable processing (the dispatcher) call it to do so up front.
func (s *Store) EnsureStream(ctx context.Context, workflowID, consumerGroup string) error {
	stream := StreamName(workflowID)
	err := s.redis.XGroupCreateMkStream(ctx, stream, consumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return workflow.New(workflow.KindStoreError, "failed to ensure stream "+stream, err)
	}
	return nil
}

// writeEntry XADDs one (subject, payload) entry to the workflow's stream
// and returns the assigned entry ID.
func (s *Store) writeEntry(ctx context.Context, workflowID, subject string, payload []byte) (string, error) {
	id, err := s.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamName(workflowID),
		Values: map[string]interface{}{
			"subject": subject,
			"payload": string(payload),
		},
	}).Result()
	if err != nil {
		return "", workflow.New(workflow.KindStoreError, "XADD failed on "+StreamName(workflowID), err)
	}
	return id, nil
}

// indexSubject records entryID as the latest version for subject and
// deletes whatever entry it supersedes, enforcing per-subject
// max-messages=1. It is not atomic across the two Redis round-trips
// (HGET then XDEL/HSET); a concurrent duplicate publish can at worst
// leave a stale duplicate behind momentarily, which the broker's
// duplicate-window treats as benign (§4.1 failure semantics).
func (s *Store) indexSubject(ctx context.Context, workflowID, subject, entryID string) error {
	key := indexKey(workflowID)
	prev, err := s.redis.HGet(ctx, key, subject).Result()
	if err != nil && err != redis.Nil {
		return workflow.New(workflow.KindStoreError, "failed to read subject index", err)
	}
	if err := s.redis.HSet(ctx, key, subject, entryID).Err(); err != nil {
		return workflow.New(workflow.KindStoreError, "failed to update subject index", err)
	}
	if prev != "" && prev != entryID {
		if err := s.redis.XDel(ctx, StreamName(workflowID), prev).Err(); err != nil {
			s.logger.Warn("failed to trim superseded entry", "subject", subject, "entry_id", prev, "error", err)
		}
	}
	return nil
}

// nextSequence assigns the next monotone sequence number for a workflow
// (I4: non-decreasing across successive persisted versions of the same
// token — the counter is actually workflow-wide, which is a stronger
// guarantee than the invariant requires).
func (s *Store) nextSequence(ctx context.Context, workflowID string) (int64, error) {
	n, err := s.redis.Incr(ctx, seqCounterKey(workflowID)).Result()
	if err != nil {
		return 0, workflow.New(workflow.KindStoreError, "failed to assign sequence", err)
	}
	return n, nil
}

// PublishToken performs the two-phase metadata write (§4.1): an initial
// publish assigns log coordinates, then the token is updated with those
// coordinates and re-published so the persisted copy always carries its
// own sequence/timestamp/subject (fixing the race where readers would
// otherwise see pre-metadata versions).
func (s *Store) PublishToken(ctx context.Context, token *workflow.Token) error {
	subject := TokenSubject(token.WorkflowID, token.Place, token.ID)

	// Phase 1: placeholder publish to obtain broker-observable timestamp.
	placeholderID, err := s.writeEntry(ctx, token.WorkflowID, subject, []byte("{}"))
	if err != nil {
		return err
	}

	seq, err := s.nextSequence(ctx, token.WorkflowID)
	if err != nil {
		return err
	}
	ts, err := parseEntryTimestamp(placeholderID)
	if err != nil {
		ts = time.Now().UTC()
	}

	token.Sequence = seq
	token.LogTimestamp = ts
	token.CurrentSubject = subject
	if len(token.History) > 0 {
		token.History[len(token.History)-1].Sequence = seq
	}

	payload, err := json.Marshal(token)
	if err != nil {
		return workflow.New(workflow.KindStoreError, "failed to marshal token", err)
	}

	// Phase 2: re-publish the complete record carrying its own coordinates.
	finalID, err := s.writeEntry(ctx, token.WorkflowID, subject, payload)
	if err != nil {
		return err
	}

	if err := s.indexSubject(ctx, token.WorkflowID, subject, finalID); err != nil {
		return err
	}
	// The phase-1 placeholder is superseded by the phase-2 entry on the
	// same subject; remove it directly since indexSubject only knows
	// about the previously-indexed entry, not this publish's own
	// placeholder.
	if placeholderID != finalID {
		if err := s.redis.XDel(ctx, StreamName(token.WorkflowID), placeholderID).Err(); err != nil {
			s.logger.Warn("failed to remove placeholder entry", "entry_id", placeholderID, "error", err)
		}
	}

	if err := s.redis.SAdd(ctx, tokenSubjectsKey(token.WorkflowID, token.ID), subject).Err(); err != nil {
		return workflow.New(workflow.KindStoreError, "failed to record token subject", err)
	}

	s.logger.Debug("published token", "token_id", token.ID, "subject", subject, "sequence", seq)
	return nil
}

// parseEntryTimestamp extracts the millisecond timestamp embedded in a
// Redis stream entry ID ("<ms>-<seq>").
func parseEntryTimestamp(entryID string) (time.Time, error) {
	parts := strings.SplitN(entryID, "-", 2)
	ms, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

// readEntry fetches a single stream entry by ID and decodes its payload.
func (s *Store) readEntry(ctx context.Context, workflowID, entryID string) (*workflow.Token, error) {
	res, err := s.redis.XRange(ctx, StreamName(workflowID), entryID, entryID).Result()
	if err != nil {
		return nil, workflow.New(workflow.KindStoreError, "XRANGE failed", err)
	}
	if len(res) == 0 {
		return nil, nil
	}
	payload, _ := res[0].Values["payload"].(string)
	if payload == "" || payload == "{}" {
		return nil, nil
	}
	var tok workflow.Token
	if err := json.Unmarshal([]byte(payload), &tok); err != nil {
		// Corrupt payload: logged and skipped; no counter is kept, and
		// the entry is neither acknowledged nor removed.
		s.logger.Warn("corrupt token payload", "entry_id", entryID, "error", err)
		return nil, nil
	}
	return &tok, nil
}

// GetToken returns the authoritative current token for tokenID, scanning
// every subject the token has ever been published to and keeping the
// version with the greatest (log_timestamp, sequence) — the cross-place
// lookup contract of §4.1. Returns (nil, nil) if not found.
func (s *Store) GetToken(ctx context.Context, workflowID, tokenID string) (*workflow.Token, error) {
	subjects, err := s.redis.SMembers(ctx, tokenSubjectsKey(workflowID, tokenID)).Result()
	if err != nil {
		return nil, workflow.New(workflow.KindStoreError, "failed to list token subjects", err)
	}
	if len(subjects) == 0 {
		return nil, nil
	}

	var best *workflow.Token
	for _, subject := range subjects {
		entryID, err := s.redis.HGet(ctx, indexKey(workflowID), subject).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, workflow.New(workflow.KindStoreError, "failed to read subject index", err)
		}
		tok, err := s.readEntry(ctx, workflowID, entryID)
		if err != nil {
			return nil, err
		}
		if tok == nil || tok.ID != tokenID {
			continue
		}
		if best == nil || greaterVersion(tok, best) {
			best = tok
		}
	}
	return best, nil
}

func greaterVersion(a, b *workflow.Token) bool {
	if !a.LogTimestamp.Equal(b.LogTimestamp) {
		return a.LogTimestamp.After(b.LogTimestamp)
	}
	return a.Sequence > b.Sequence
}

// GetTokensInPlace returns every token whose latest version resides in
// place. It walks the subject index for entries matching
// cb.workflows.{id}.places.{place}.tokens.* and, since a moved token's
// old-place entry stays indexed, confirms each hit against GetToken. The
// index holds one entry per (token, place) pair ever published, so the
// scan grows with places visited, not with versions.
func (s *Store) GetTokensInPlace(ctx context.Context, workflowID, place string) ([]*workflow.Token, error) {
	entries, err := s.redis.HGetAll(ctx, indexKey(workflowID)).Result()
	if err != nil {
		return nil, workflow.New(workflow.KindStoreError, "failed to read subject index", err)
	}
	prefix := fmt.Sprintf("cb.workflows.%s.places.%s.tokens.", workflowID, place)
	var out []*workflow.Token
	for subject, entryID := range entries {
		if !strings.HasPrefix(subject, prefix) {
			continue
		}
		tok, err := s.readEntry(ctx, workflowID, entryID)
		if err != nil {
			return nil, err
		}
		if tok == nil || tok.Place != place {
			continue
		}
		latest, err := s.GetToken(ctx, workflowID, tok.ID)
		if err != nil {
			return nil, err
		}
		if latest == nil || latest.Place != place {
			continue
		}
		out = append(out, latest)
	}
	return out, nil
}

// ListWorkflowTokens returns all active tokens across every place.
func (s *Store) ListWorkflowTokens(ctx context.Context, workflowID string) ([]*workflow.Token, error) {
	entries, err := s.redis.HGetAll(ctx, indexKey(workflowID)).Result()
	if err != nil {
		return nil, workflow.New(workflow.KindStoreError, "failed to read subject index", err)
	}
	prefix := fmt.Sprintf("cb.workflows.%s.places.", workflowID)
	seen := make(map[string]bool)
	var out []*workflow.Token
	for subject, entryID := range entries {
		if !strings.HasPrefix(subject, prefix) {
			continue
		}
		wfID, _, tokenID, ok := ParseTokenSubject(subject)
		if !ok || wfID != workflowID || seen[tokenID] {
			continue
		}
		tok, err := s.readEntry(ctx, workflowID, entryID)
		if err != nil {
			return nil, err
		}
		if tok == nil {
			continue
		}
		seen[tokenID] = true
		out = append(out, tok)
	}
	return out, nil
}

// AppendEvent is a fire-and-forget publish to a non-token (events/
// definition) subject: no index entry is required since these are
// addressed separately by the dispatcher/streaming consumers rather
// than looked up by coordinate.
func (s *Store) AppendEvent(ctx context.Context, workflowID, subject string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return workflow.New(workflow.KindStoreError, "failed to marshal event payload", err)
	}
	_, err = s.writeEntry(ctx, workflowID, subject, raw)
	return err
}

// PublishDefinition publishes a workflow definition to its definition
// subject, indexed for GetDefinition lookups, and registers its
// identifier in the global workflow set so ListDefinitions can discover
// it (cmd/dispatcher's periodic scan and pkg/supervisor both enumerate
// every published workflow, not just look one up by name).
func (s *Store) PublishDefinition(ctx context.Context, def *workflow.WorkflowDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	subject := DefinitionSubject(def.Identifier)
	raw, err := json.Marshal(def)
	if err != nil {
		return workflow.New(workflow.KindStoreError, "failed to marshal definition", err)
	}
	entryID, err := s.writeEntry(ctx, def.Identifier, subject, raw)
	if err != nil {
		return err
	}
	if err := s.indexSubject(ctx, def.Identifier, subject, entryID); err != nil {
		return err
	}
	if err := s.redis.SAdd(ctx, workflowRegistryKey(), def.Identifier).Err(); err != nil {
		return workflow.New(workflow.KindStoreError, "failed to register workflow identifier", err)
	}
	return nil
}

// ListDefinitions returns every currently published workflow definition.
func (s *Store) ListDefinitions(ctx context.Context) ([]*workflow.WorkflowDefinition, error) {
	ids, err := s.redis.SMembers(ctx, workflowRegistryKey()).Result()
	if err != nil {
		return nil, workflow.New(workflow.KindStoreError, "failed to list registered workflows", err)
	}
	out := make([]*workflow.WorkflowDefinition, 0, len(ids))
	for _, id := range ids {
		def, err := s.GetDefinition(ctx, id)
		if err != nil {
			return nil, err
		}
		if def != nil {
			out = append(out, def)
		}
	}
	return out, nil
}

// GetDefinition returns the current published definition for workflowID.
func (s *Store) GetDefinition(ctx context.Context, workflowID string) (*workflow.WorkflowDefinition, error) {
	subject := DefinitionSubject(workflowID)
	entryID, err := s.redis.HGet(ctx, indexKey(workflowID), subject).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, workflow.New(workflow.KindStoreError, "failed to read definition index", err)
	}
	res, err := s.redis.XRange(ctx, StreamName(workflowID), entryID, entryID).Result()
	if err != nil {
		return nil, workflow.New(workflow.KindStoreError, "XRANGE failed", err)
	}
	if len(res) == 0 {
		return nil, nil
	}
	payload, _ := res[0].Values["payload"].(string)
	var def workflow.WorkflowDefinition
	if err := json.Unmarshal([]byte(payload), &def); err != nil {
		return nil, workflow.New(workflow.KindStoreError, "failed to unmarshal definition", err)
	}
	return &def, nil
}
