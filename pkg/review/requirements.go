// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package review

import (
	"github.com/tombee/reviewdesk/pkg/adminapi"
)

// MinLetters is the minimum number of recommendation letters that stands
// in for a degree.
const MinLetters = 2

// Checklist is the minimum document set evaluated locally.
type Checklist struct {
	HasCV              bool `json:"has_cv"`
	HasBackgroundCheck bool `json:"has_background_check"`
	Degrees            int  `json:"degrees"`
	Letters            int  `json:"letters"`
}

// Check counts the documents that satisfy the minimum set. Rejected
// documents do not count.
func Check(c *adminapi.Collection) Checklist {
	var cl Checklist
	if c == nil {
		return cl
	}
	cl.HasCV = usable(c.CV)
	cl.HasBackgroundCheck = usable(c.BackgroundCheck)
	for _, d := range c.Certifications.Degrees {
		if usable(d) {
			cl.Degrees++
		}
	}
	for _, d := range c.Certifications.Letters {
		if usable(d) {
			cl.Letters++
		}
	}
	return cl
}

func usable(d *adminapi.Document) bool {
	return d != nil && d.Status != adminapi.StatusRejected
}

// Complete requires a CV, a background check and either a degree or
// MinLetters recommendation letters.
func (c Checklist) Complete() bool {
	return c.HasCV && c.HasBackgroundCheck && (c.Degrees > 0 || c.Letters >= MinLetters)
}

// Missing lists what the worker still has to provide.
func (c Checklist) Missing() []string {
	var out []string
	if !c.HasCV {
		out = append(out, "curriculum vitae")
	}
	if !c.HasBackgroundCheck {
		out = append(out, "background check")
	}
	if c.Degrees == 0 && c.Letters < MinLetters {
		out = append(out, "a degree or at least 2 recommendation letters")
	}
	return out
}

// Decision is a suggested final verdict.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	// DecisionUndecided means documents are still pending.
	DecisionUndecided Decision = "undecided"
)

// Suggest proposes a verdict: approve only when every document is
// approved and the checklist is complete, undecided while anything is
// pending, reject otherwise.
func Suggest(s *Status, c Checklist) Decision {
	switch {
	case s == nil || !s.HasDocuments:
		return DecisionReject
	case s.Pending > 0:
		return DecisionUndecided
	case s.Approved == s.Total && c.Complete():
		return DecisionApprove
	default:
		return DecisionReject
	}
}
