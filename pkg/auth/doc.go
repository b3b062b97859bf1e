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

// Package auth keeps the operator's session alive.
//
// A Session reads and writes the token pair and cached identity through a
// credentials.Store. A Coordinator performs silent token refresh for the
// request pipeline: concurrent requests rejected with 401 share a single
// exchange and are resumed in the order they arrived. When the exchange
// fails the stored credentials are cleared, each waiting request fails
// with its own original error and the SessionHandler is told the session
// is void.
package auth
