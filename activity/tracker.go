// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package activity

import (
	"time"

	"github.com/solvault-io/solvaultd/state"
)

// TouchIn records member activity inside the caller's unit of work: bumps
// lastActivityAt and clears the inactivity flags. Every propose, vote,
// execute and deposit ingest goes through here so the atomicity of the
// activity update matches the operation it rode in on.
func TouchIn(chain state.Chain, m *state.Member, now time.Time) error {
	m.LastActivityAt = now
	m.Inactive = false
	m.InactiveSince = nil
	m.RemovalEligibleAt = nil
	m.UpdatedAt = now
	return chain.PutMember(m)
}
