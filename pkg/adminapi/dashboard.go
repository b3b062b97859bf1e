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

package adminapi

import (
	"context"
	"net/http"
)

// DashboardStats is the overview shown on the dashboard.
type DashboardStats struct {
	Workers struct {
		Total      int            `json:"total"`
		Available  int            `json:"available"`
		Online     int            `json:"online"`
		Verified   int            `json:"verified"`
		ByCategory map[string]int `json:"byCategory"`
	} `json:"workers"`
	Clients struct {
		Total int `json:"total"`
	} `json:"clients"`
	Documents struct {
		Total         int `json:"total"`
		Pending       int `json:"pending"`
		Approved      int `json:"approved"`
		Rejected      int `json:"rejected"`
		Processed     int `json:"processed"`
		PendingByType struct {
			CV              int `json:"hojaDeVida"`
			BackgroundCheck int `json:"antecedentesJudiciales"`
			Degrees         int `json:"titulos"`
			Letters         int `json:"cartasRecomendacion"`
		} `json:"pendingByType"`
	} `json:"documents"`
	Activity *ActivityStats `json:"activity,omitempty"`
}

// ActivityStats counts recent activity windows.
type ActivityStats struct {
	Workers struct {
		Active24h int `json:"active_24h"`
		Active7d  int `json:"active_7d"`
		Active30d int `json:"active_30d"`
	} `json:"workers"`
	Documents struct {
		Processed24h int `json:"processed_24h"`
		Processed7d  int `json:"processed_7d"`
		Processed30d int `json:"processed_30d"`
		Uploaded24h  int `json:"uploaded_24h"`
		Uploaded7d   int `json:"uploaded_7d"`
		Uploaded30d  int `json:"uploaded_30d"`
	} `json:"documents"`
}

// DashboardService reads the dashboard overview.
type DashboardService struct {
	doer Doer
}

// Stats returns the dashboard overview.
func (s *DashboardService) Stats(ctx context.Context) (*DashboardStats, error) {
	return fetch[DashboardStats](ctx, s.doer, request(ctx, http.MethodGet, "/api/dashboard/stats", "dashboard_stats"))
}
