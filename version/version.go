// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package version

import "fmt"

const Client = "solvaultd"

// Current is the version of this build.
var Current = &Semantic{
	Major: 1,
	Minor: 0,
	Patch: 0,
}

// Semantic is a semantic version.
type Semantic struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

func (s *Semantic) String() string {
	return fmt.Sprintf("v%d.%d.%d", s.Major, s.Minor, s.Patch)
}
