package models

import (
	"time"
)

type Role string

const (
	RoleUser  = Role("USER")
	RoleAdmin = Role("ADMIN")
)

type ContentKind string

const (
	ContentKindComment = ContentKind("COMMENT")
	ContentKindReview  = ContentKind("REVIEW")
)

func (k ContentKind) Valid() bool {
	switch k {
	case ContentKindComment, ContentKindReview:
		return true
	default:
		return false
	}
}

type FlagStatus string

const (
	FlagStatusPending  = FlagStatus("PENDING")
	FlagStatusApproved = FlagStatus("APPROVED")
	FlagStatusRejected = FlagStatus("REJECTED")
)

// Terminal reports whether no further status transition is allowed.
func (s FlagStatus) Terminal() bool {
	return s == FlagStatusApproved || s == FlagStatusRejected
}

// User is provisioned lazily on first authenticated contact. The unique
// index on ExternalSubjectID is what makes concurrent first-contact
// provisioning safe; see identity.Resolver.
type User struct {
	ID                 uint `gorm:"primarykey"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ExternalSubjectID  string `gorm:"uniqueIndex;not null"`
	Email              string `gorm:"not null"`
	DisplayName        string
	Role               Role `gorm:"not null;default:USER"`
	NotifyOnModeration bool `gorm:"not null;default:true"`
}

// Content is created by the API layer. The moderation pipeline only
// reads ID, Kind, Body and AuthorID.
type Content struct {
	ID           uint `gorm:"primarykey"`
	CreatedAt    time.Time
	Kind         ContentKind `gorm:"not null;index"`
	Body         string      `gorm:"not null"`
	AuthorID     uint        `gorm:"not null;index"`
	ParentPostID uint
}

// FlaggedContent is created exactly once per (ContentID, ContentKind),
// always with status PENDING. Only admin decisions move it out of
// PENDING, and APPROVED/REJECTED are terminal.
type FlaggedContent struct {
	ID          uint `gorm:"primarykey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ContentID   uint        `gorm:"not null;index:idx_flagged_content,unique"`
	ContentKind ContentKind `gorm:"not null;index:idx_flagged_content,unique"`
	AuthorID    uint        `gorm:"not null;index"`
	Reason      string      `gorm:"not null"`
	Status      FlagStatus  `gorm:"not null;index;default:PENDING"`
}
