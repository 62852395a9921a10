// Package eventstore implements the event-sourced token store (C1): a
// subject-addressed log over Redis Streams, providing per-subject
// last-version-wins retention, monotone sequence numbers, read-only
// (non-acknowledging) query consumers, and durable acknowledging
// processing consumers.
//
// A single Redis Stream is provisioned per workflow (the broker-level
// analog of one NATS stream with subject filters): every entry carries a
// "subject" field so multiple logical subjects share one physical log,
// exactly as §6 specifies ("one stream per workflow ... subject filters").
// Per-subject retention (max-messages=1) is enforced in software: a
// companion Redis hash indexes the latest stream entry ID for each
// subject, and superseded entries are deleted on write.
package eventstore

import (
	"fmt"
	"strings"
)

// DefinitionSubject returns the subject a workflow's definition is
// published on: cb.workflows.{workflow_id}.definition.
func DefinitionSubject(workflowID string) string {
	return fmt.Sprintf("cb.workflows.%s.definition", workflowID)
}

// TokenSubject returns the unique-per-token subject for a token's version
// in a given place: cb.workflows.{workflow_id}.places.{place}.tokens.{token_id}.
//
// Per §9's pinned Open Question, the terminal token_id segment is always
// present; the shared-subject form (one subject per place, omitting
// token_id) is never produced, since per-subject last-version-wins
// retention would otherwise discard all but the most recently published
// token in that place (I3/I5).
func TokenSubject(workflowID, place, tokenID string) string {
	return fmt.Sprintf("cb.workflows.%s.places.%s.tokens.%s", workflowID, place, tokenID)
}

// TransitionsSubject returns the workflow's transition-events subject.
func TransitionsSubject(workflowID string) string {
	return fmt.Sprintf("cb.workflows.%s.events.transitions", workflowID)
}

// LifecycleSubject returns the workflow's lifecycle-events subject.
func LifecycleSubject(workflowID string) string {
	return fmt.Sprintf("cb.workflows.%s.events.lifecycle", workflowID)
}

// TokenSubjectPattern returns the glob used for a cross-place lookup of a
// given token: cb.workflows.{workflow_id}.places.*.tokens.{token_id}.
func TokenSubjectPattern(workflowID, tokenID string) string {
	return fmt.Sprintf("cb.workflows.%s.places.*.tokens.%s", workflowID, tokenID)
}

// ParseTokenSubject extracts (workflowID, place, tokenID) from a token
// subject. Returns ok=false if subject does not match the token-subject
// shape. P2 requires T.current_subject to parse back to
// (T.workflow_id, T.place, T.id).
func ParseTokenSubject(subject string) (workflowID, place, tokenID string, ok bool) {
	parts := strings.Split(subject, ".")
	// cb workflows {id} places {place} tokens {token_id}  -> 7 segments
	if len(parts) != 7 || parts[0] != "cb" || parts[1] != "workflows" || parts[3] != "places" || parts[5] != "tokens" {
		return "", "", "", false
	}
	return parts[2], parts[4], parts[6], true
}

// StreamName returns the broker stream name for a workflow:
// WORKFLOW_{UPPER(workflow_id)}.
func StreamName(workflowID string) string {
	return "WORKFLOW_" + strings.ToUpper(workflowID)
}

// indexKey returns the Redis hash key tracking, per subject, the entry ID
// of the latest version published on that subject within a workflow's
// stream (its retention index).
func indexKey(workflowID string) string {
	return fmt.Sprintf("%s:subject_index", StreamName(workflowID))
}

// tokenSubjectsKey returns the Redis set key tracking every subject a
// given token has ever been published on, so cross-place lookup does not
// require scanning the entire per-workflow stream.
func tokenSubjectsKey(workflowID, tokenID string) string {
	return fmt.Sprintf("%s:token:%s:subjects", StreamName(workflowID), tokenID)
}

func seqCounterKey(workflowID string) string {
	return fmt.Sprintf("%s:seq", StreamName(workflowID))
}

// workflowRegistryKey returns the Redis set key tracking every identifier
// ever published via PublishDefinition, independent of any single
// workflow's stream.
func workflowRegistryKey() string {
	return "cb:workflows:registry"
}
