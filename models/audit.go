package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ActionKind string

const (
	ActionAssignIssue      ActionKind = "ASSIGN_ISSUE"
	ActionUploadResolution ActionKind = "UPLOAD_RESOLUTION"
	ActionCitizenVerify    ActionKind = "CITIZEN_VERIFY"
	ActionUpdateStatus     ActionKind = "UPDATE_STATUS"
	ActionReassignZone     ActionKind = "REASSIGN_ZONE"
	ActionCreateUser       ActionKind = "CREATE_USER"
)

// AuditEntry is append-only; nothing in the system edits or deletes one.
type AuditEntry struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Timestamp  time.Time          `bson:"timestamp" json:"timestamp"`
	ActorLabel string             `bson:"actorLabel" json:"actorLabel"`
	Action     ActionKind         `bson:"action" json:"action"`
	Details    string             `bson:"details" json:"details"`
	TargetID   string             `bson:"targetId,omitempty" json:"targetId,omitempty"`
}
