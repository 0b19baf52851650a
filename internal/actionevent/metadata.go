package actionevent

import (
	"bytes"
	"encoding/json"
	"strings"

	"gorm.io/datatypes"
)

// MetadataKind names a metadata variant.
type MetadataKind string

const (
	KindNone        MetadataKind = "none"
	KindContent     MetadataKind = "content"
	KindReaction    MetadataKind = "reaction"
	KindMembership  MetadataKind = "membership"
	KindTransaction MetadataKind = "transaction"
	KindSurvey      MetadataKind = "survey"
	KindUnknown     MetadataKind = "unknown"
)

// Metadata is the structured context attached to an action.
type Metadata interface {
	Kind() MetadataKind
}

// ContentMetadata describes authored content: posts, comments, stories, listings.
type ContentMetadata struct {
	ContentID   string `json:"contentId,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	ParentID    string `json:"parentId,omitempty"`
	Title       string `json:"title,omitempty"`
}

func (ContentMetadata) Kind() MetadataKind { return KindContent }

// ReactionMetadata describes a reaction or vote on someone else's content.
type ReactionMetadata struct {
	TargetID   string `json:"targetId,omitempty"`
	TargetType string `json:"targetType,omitempty"`
	Reaction   string `json:"reaction,omitempty"`
	OwnerID    string `json:"ownerId,omitempty"`
}

func (ReactionMetadata) Kind() MetadataKind { return KindReaction }

// MembershipMetadata describes joining or following a group, event or user.
type MembershipMetadata struct {
	GroupID   string `json:"groupId,omitempty"`
	GroupType string `json:"groupType,omitempty"`
	Role      string `json:"role,omitempty"`
}

func (MembershipMetadata) Kind() MetadataKind { return KindMembership }

// TransactionMetadata describes a shop or marketplace transaction.
type TransactionMetadata struct {
	OrderID     string `json:"orderId,omitempty"`
	ListingID   string `json:"listingId,omitempty"`
	AmountMinor int64  `json:"amountMinor,omitempty"`
	Currency    string `json:"currency,omitempty"`
}

func (TransactionMetadata) Kind() MetadataKind { return KindTransaction }

// SurveyMetadata describes a survey or poll response.
type SurveyMetadata struct {
	SurveyID      string `json:"surveyId,omitempty"`
	QuestionCount int    `json:"questionCount,omitempty"`
	Completed     bool   `json:"completed,omitempty"`
}

func (SurveyMetadata) Kind() MetadataKind { return KindSurvey }

// UnknownMetadata keeps the raw object for triggers without a variant, or
// when the object does not match its variant.
type UnknownMetadata struct {
	Raw json.RawMessage
}

func (UnknownMetadata) Kind() MetadataKind { return KindUnknown }

func (m UnknownMetadata) MarshalJSON() ([]byte, error) {
	if len(m.Raw) == 0 {
		return []byte("null"), nil
	}
	return m.Raw, nil
}

// NoMetadata is returned when the event carries no metadata.
type NoMetadata struct{}

func (NoMetadata) Kind() MetadataKind { return KindNone }

var verbKinds = map[string]MetadataKind{
	"create":   KindContent,
	"post":     KindContent,
	"comment":  KindContent,
	"reply":    KindContent,
	"share":    KindContent,
	"publish":  KindContent,
	"story":    KindContent,
	"like":     KindReaction,
	"react":    KindReaction,
	"upvote":   KindReaction,
	"downvote": KindReaction,
	"vote":     KindReaction,
	"join":     KindMembership,
	"follow":   KindMembership,
	"connect":  KindMembership,
	"accept":   KindMembership,
	"invite":   KindMembership,
	"buy":      KindTransaction,
	"purchase": KindTransaction,
	"sell":     KindTransaction,
	"order":    KindTransaction,
	"listing":  KindTransaction,
	"answer":   KindSurvey,
	"respond":  KindSurvey,
	"submit":   KindSurvey,
	"survey":   KindSurvey,
}

// KindForTrigger maps a trigger id such as "tr-feed-create" to a variant by
// its last dash separated segment.
func KindForTrigger(triggerID string) MetadataKind {
	trimmed := strings.ToLower(strings.TrimSpace(triggerID))
	if idx := strings.LastIndex(trimmed, "-"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	if kind, ok := verbKinds[trimmed]; ok {
		return kind
	}
	return KindUnknown
}

// DecodeMetadata returns the variant for triggerID. Objects carrying fields
// the variant does not know fall back to UnknownMetadata so nothing is lost.
func DecodeMetadata(triggerID string, raw json.RawMessage) Metadata {
	if isNullJSON(raw) {
		return NoMetadata{}
	}

	var target Metadata
	switch KindForTrigger(triggerID) {
	case KindContent:
		target = &ContentMetadata{}
	case KindReaction:
		target = &ReactionMetadata{}
	case KindMembership:
		target = &MembershipMetadata{}
	case KindTransaction:
		target = &TransactionMetadata{}
	case KindSurvey:
		target = &SurveyMetadata{}
	default:
		return UnknownMetadata{Raw: raw}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return UnknownMetadata{Raw: raw}
	}

	switch v := target.(type) {
	case *ContentMetadata:
		return *v
	case *ReactionMetadata:
		return *v
	case *MembershipMetadata:
		return *v
	case *TransactionMetadata:
		return *v
	case *SurveyMetadata:
		return *v
	}
	return UnknownMetadata{Raw: raw}
}

type auditEnvelope struct {
	Kind MetadataKind `json:"kind"`
	Data Metadata     `json:"data,omitempty"`
}

// AuditJSON renders metadata for the point history column as
// {"kind": ..., "data": ...}.
func AuditJSON(m Metadata) (datatypes.JSON, error) {
	if m == nil {
		m = NoMetadata{}
	}
	env := auditEnvelope{Kind: m.Kind()}
	if m.Kind() != KindNone {
		env.Data = m
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
