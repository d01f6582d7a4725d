package domain

// Object type codes used in grant identifiers and resource lookups.
const (
	TypeSite       = "site"
	TypeCommunity  = "community"
	TypeCollection = "collection"
	TypeItem       = "item"
	TypeBitstream  = "bitstream"
	TypeEPerson    = "eperson"
)

type Site struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Community struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Collection struct {
	ID          string  `json:"id"`
	CommunityID string  `json:"community_id"`
	Name        string  `json:"name"`
	// ReviewGroupID names the group whose members review submissions.
	// Nil means the collection has no review step: submissions install
	// immediately and corrections auto-apply.
	ReviewGroupID *string `json:"review_group_id,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

type Item struct {
	ID           string `json:"id"`
	CollectionID string `json:"collection_id"`
	SubmitterID  string `json:"submitter_id"`
	InArchive    bool   `json:"in_archive"`
	Withdrawn    bool   `json:"withdrawn"`
	Discoverable bool   `json:"discoverable"`
	CreatedAt    string `json:"created_at" format:"date-time"`
	UpdatedAt    string `json:"updated_at" format:"date-time"`
}

// MetadataValue is one value of a schema.element.qualifier field on an item.
type MetadataValue struct {
	ItemID    string `json:"item_id"`
	Schema    string `json:"schema"`
	Element   string `json:"element"`
	Qualifier string `json:"qualifier,omitempty"`
	Value     string `json:"value"`
	Place     int    `json:"place"`
}

// Field returns the dotted field key, e.g. "dc.title" or "dc.contributor.author".
func (m MetadataValue) Field() string {
	key := m.Schema + "." + m.Element
	if m.Qualifier != "" {
		key += "." + m.Qualifier
	}
	return key
}

// WorkspaceItem is an in-progress submission still editable by its submitter.
type WorkspaceItem struct {
	ID           string `json:"id"`
	ItemID       string `json:"item_id"`
	CollectionID string `json:"collection_id"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

// WorkflowItem is a submission under review.
type WorkflowItem struct {
	ID           string `json:"id"`
	ItemID       string `json:"item_id"`
	CollectionID string `json:"collection_id"`
	State        string `json:"state" enum:"review"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

// PoolTask is an unclaimed review task visible to every member of the group.
type PoolTask struct {
	ID             string `json:"id"`
	WorkflowItemID string `json:"workflow_item_id"`
	GroupID        string `json:"group_id"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

// ClaimedTask is a review task exclusively owned by one reviewer.
type ClaimedTask struct {
	ID             string `json:"id"`
	WorkflowItemID string `json:"workflow_item_id"`
	OwnerID        string `json:"owner_id"`
	ClaimedAt      string `json:"claimed_at" format:"date-time"`
}

// Relationship is a typed directed link between two items.
type Relationship struct {
	ID            string `json:"id"`
	LeftItemID    string `json:"left_item_id"`
	RightItemID   string `json:"right_item_id"`
	LeftwardType  string `json:"leftward_type"`
	RightwardType string `json:"rightward_type"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

// Relationship labels for the correction link. The correction item is on
// the left, the original installed item on the right.
const (
	RelIsCorrectionOfItem = "isCorrectionOfItem"
	RelIsCorrectedByItem  = "isCorrectedByItem"
)

type Actor struct {
	ID        string `json:"id" format:"uuid"`
	Email     string `json:"email"`
	Admin     bool   `json:"admin"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Group struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
