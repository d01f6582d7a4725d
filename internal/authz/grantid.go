package authz

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"reviewline/internal/domain"
)

// Target is an addressable domain object: a type tag and an identifier.
type Target struct {
	Type string
	ID   string
}

// GrantID identifies one computed authorization grant. Grants are derived,
// never stored: the identifier packs the actor (empty for anonymous), the
// feature name and the target into one canonical string.
type GrantID struct {
	ActorID    string
	Feature    string
	TargetType string
	TargetID   string
}

// Canonical form: [actorUUID_]featureName_targetType_targetID. The actor
// segment is omitted entirely for anonymous grants. Feature names must not
// contain underscores so the form stays unambiguous.
func (g GrantID) String() string {
	parts := make([]string, 0, 4)
	if g.ActorID != "" {
		parts = append(parts, g.ActorID)
	}
	parts = append(parts, g.Feature, g.TargetType, g.TargetID)
	return strings.Join(parts, "_")
}

func (g GrantID) Target() Target {
	return Target{Type: g.TargetType, ID: g.TargetID}
}

var validTargetTypes = map[string]bool{
	domain.TypeSite:       true,
	domain.TypeCommunity:  true,
	domain.TypeCollection: true,
	domain.TypeItem:       true,
	domain.TypeBitstream:  true,
	domain.TypeEPerson:    true,
}

// ParseGrantID parses the canonical form back into its fields. It is
// strict: wrong segment count, an unknown target type code or a non-UUID
// actor or target segment all return ErrMalformed.
func ParseGrantID(s string) (GrantID, error) {
	segs := strings.Split(s, "_")
	var g GrantID
	switch len(segs) {
	case 3:
		g.Feature, g.TargetType, g.TargetID = segs[0], segs[1], segs[2]
	case 4:
		g.ActorID, g.Feature, g.TargetType, g.TargetID = segs[0], segs[1], segs[2], segs[3]
		if _, err := uuid.Parse(g.ActorID); err != nil {
			return GrantID{}, fmt.Errorf("%w: actor segment %q", ErrMalformed, g.ActorID)
		}
	default:
		return GrantID{}, fmt.Errorf("%w: %d segments", ErrMalformed, len(segs))
	}
	if g.Feature == "" {
		return GrantID{}, fmt.Errorf("%w: empty feature segment", ErrMalformed)
	}
	if !validTargetTypes[g.TargetType] {
		return GrantID{}, fmt.Errorf("%w: unknown target type %q", ErrMalformed, g.TargetType)
	}
	if _, err := uuid.Parse(g.TargetID); err != nil {
		return GrantID{}, fmt.Errorf("%w: target segment %q", ErrMalformed, g.TargetID)
	}
	return g, nil
}

// BuildID assembles the canonical identifier for an (actor, feature,
// target) triple. actorID may be empty for anonymous.
func BuildID(actorID, feature, targetType, targetID string) string {
	return GrantID{ActorID: actorID, Feature: feature, TargetType: targetType, TargetID: targetID}.String()
}
