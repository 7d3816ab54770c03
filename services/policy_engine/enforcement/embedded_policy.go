// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
This file bakes lease_safety_rules.yaml into the compiled binary. The legal
safety rules are fixed at build time and cannot be extended or altered on the
host filesystem at runtime.
*/

package enforcement

import (
	_ "embed"
)

// LeaseSafetyRules holds the raw content of 'lease_safety_rules.yaml'.
//
// Usage:
//
//	err := yaml.Unmarshal(enforcement.LeaseSafetyRules, &ruleFile)
//
//go:embed lease_safety_rules.yaml
var LeaseSafetyRules []byte
