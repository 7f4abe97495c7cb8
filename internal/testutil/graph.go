// Package testutil provides a mock Microsoft Graph upstream shared by the
// drivepool test suites.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cecil-the-coder/drivepool/pkg/types"
)

// DefaultRootID is the drive root id served by a MockGraph
const DefaultRootID = "root-0001"

// MockGraph serves the token, drive root and item endpoints of one account.
// Refresh tokens are single use: each one is accepted exactly once and
// replaced by the token it returns.
type MockGraph struct {
	Server *httptest.Server
	RootID string

	mu            sync.Mutex
	refreshTokens map[string]bool
	accessTokens  map[string]bool
	files         map[string]string
	seq           int
	tokenStatus   int
	rootStatus    int
	itemStatus    int
	itemBody      string

	tokenCalls int32
	rootCalls  int32
	itemCalls  int32
}

// NewMockGraph starts a server that accepts initialRefreshToken once
func NewMockGraph(initialRefreshToken string) *MockGraph {
	m := &MockGraph{
		RootID:        DefaultRootID,
		refreshTokens: map[string]bool{initialRefreshToken: true},
		accessTokens:  make(map[string]bool),
		files:         make(map[string]string),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", m.handleToken)
	mux.HandleFunc("/graph/", m.handleGraph)
	m.Server = httptest.NewServer(mux)
	return m
}

// Close shuts the server down
func (m *MockGraph) Close() {
	m.Server.Close()
}

// GraphAPI returns the Graph base URL, ending in a slash
func (m *MockGraph) GraphAPI() string {
	return m.Server.URL + "/graph/"
}

// OAuthAPI returns the OAuth base URL, ending in a slash
func (m *MockGraph) OAuthAPI() string {
	return m.Server.URL + "/oauth/"
}

// ProviderConfig returns a provider record pointing at this mock's "me/drive"
func (m *MockGraph) ProviderConfig(id, refreshToken string) types.ProviderConfig {
	return types.ProviderConfig{
		ID:              id,
		ConnectTimeout:  2,
		WholeTimeout:    5,
		PoolIdleTimeout: 30,
		Region:          types.RegionGlobal,
		ClientID:        "client-" + id,
		ClientSecret:    "secret-" + id,
		DriveURL:        "me/drive",
		RedirectURL:     "http://localhost/callback",
		RefreshToken:    refreshToken,
	}
}

// AddFile makes path resolvable to downloadURL
func (m *MockGraph) AddFile(path, downloadURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = downloadURL
}

// SetTokenStatus forces the token endpoint to answer with status (0 restores)
func (m *MockGraph) SetTokenStatus(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenStatus = status
}

// SetRootStatus forces the drive root endpoint to answer with status (0 restores)
func (m *MockGraph) SetRootStatus(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rootStatus = status
}

// SetItemStatus forces item lookups to answer with status (0 restores)
func (m *MockGraph) SetItemStatus(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.itemStatus = status
}

// SetItemBody replaces successful item bodies with raw (empty restores)
func (m *MockGraph) SetItemBody(raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.itemBody = raw
}

// AcceptRefreshToken registers another single-use refresh token
func (m *MockGraph) AcceptRefreshToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshTokens[token] = true
}

// TokenCalls returns the number of token endpoint requests
func (m *MockGraph) TokenCalls() int { return int(atomic.LoadInt32(&m.tokenCalls)) }

// RootCalls returns the number of drive root requests
func (m *MockGraph) RootCalls() int { return int(atomic.LoadInt32(&m.rootCalls)) }

// ItemCalls returns the number of item requests
func (m *MockGraph) ItemCalls() int { return int(atomic.LoadInt32(&m.itemCalls)) }

func (m *MockGraph) handleToken(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.tokenCalls, 1)
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tokenStatus != 0 {
		writeJSON(w, m.tokenStatus, map[string]string{"error": "temporarily_unavailable"})
		return
	}
	if r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("redirect_uri") == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	used := r.PostForm.Get("refresh_token")
	if !m.refreshTokens[used] {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}
	delete(m.refreshTokens, used)

	m.seq++
	access := fmt.Sprintf("at-%d", m.seq)
	refresh := fmt.Sprintf("rt-%d", m.seq)
	m.accessTokens[access] = true
	m.refreshTokens[refresh] = true

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "Bearer",
		"expires_in":    3600,
	})
}

func (m *MockGraph) handleGraph(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	authorized := m.accessTokens[bearer]
	rest := strings.TrimPrefix(r.URL.Path, "/graph/")
	itemPrefix := "drives/" + m.RootID + "/root:"

	switch {
	case strings.HasPrefix(rest, itemPrefix):
		atomic.AddInt32(&m.itemCalls, 1)
		if !authorized {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "InvalidAuthenticationToken"})
			return
		}
		if m.itemStatus != 0 {
			writeJSON(w, m.itemStatus, map[string]string{"error": "forced"})
			return
		}
		if r.URL.Query().Get("$select") != "content.downloadUrl" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalidRequest"})
			return
		}
		link, ok := m.files[strings.TrimPrefix(rest, itemPrefix)]
		if !ok {
			// Graph answers a missing path under root: with 400
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "itemNotFound"})
			return
		}
		if m.itemBody != "" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(m.itemBody))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"@microsoft.graph.downloadUrl": link})

	case rest == "me/drive":
		atomic.AddInt32(&m.rootCalls, 1)
		if !authorized {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "InvalidAuthenticationToken"})
			return
		}
		if m.rootStatus != 0 {
			writeJSON(w, m.rootStatus, map[string]string{"error": "forced"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": m.RootID})

	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown route"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
