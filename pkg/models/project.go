// Package models contains the domain records described in §3: the durable
// shape of projects, chats, messages, executions, runs, token usage, and
// snapshots. These are plain structs — the Persistence Gateway (pkg/store)
// is solely responsible for mapping them to and from SQL rows.
package models

import "time"

// Project is the root of a workspace: a disk path, a name, and an optional
// vibe brief. Cascades to chats, executions, runs, and snapshots on delete.
type Project struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Path      string     `json:"path"`
	VibeBrief *VibeBrief `json:"vibeBrief,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// VibeBrief is the structured adjectives/metaphor/target-user/anti-references
// record produced by the vibe-intake action and attached to a Project.
type VibeBrief struct {
	Adjectives     []string `json:"adjectives"`
	Metaphor       string   `json:"metaphor"`
	TargetUser     string   `json:"targetUser"`
	AntiReferences []string `json:"antiReferences"`
}
