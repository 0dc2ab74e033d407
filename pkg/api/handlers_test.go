package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dndtracker/dndtracker/pkg/hub"
	"github.com/dndtracker/dndtracker/pkg/state"
	"github.com/dndtracker/dndtracker/pkg/store"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	encounterStore := store.NewMemoryStore("test-salt")
	pushHub := hub.New(encounterStore, time.Second)
	return NewServer(encounterStore, pushHub, nil).Router()
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeCreate(t *testing.T, rec *httptest.ResponseRecorder) CreateEncounterResponse {
	t.Helper()
	var resp CreateEncounterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) *state.State {
	t.Helper()
	var resp StateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.State)
	return resp.State
}

func createTestEncounter(t *testing.T, router *gin.Engine, name string) CreateEncounterResponse {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/encounters", gin.H{"name": name})
	require.Equal(t, http.StatusOK, rec.Code)
	return decodeCreate(t, rec)
}

func TestCreateAndFetchEncounter(t *testing.T) {
	router := newTestRouter(t)

	created := createTestEncounter(t, router, "Goblin Cave")
	assert.NotEmpty(t, created.EncounterID)
	assert.NotEmpty(t, created.HostToken)
	assert.NotEmpty(t, created.PlayerToken)
	assert.NotEqual(t, created.HostToken, created.PlayerToken)

	rec := doJSON(t, router, http.MethodGet,
		"/api/encounters/"+created.EncounterID+"?token="+created.PlayerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	st := decodeState(t, rec)
	assert.Equal(t, created.EncounterID, st.ID)
	assert.Equal(t, 1, st.Version)
	assert.Equal(t, state.StatusSetup, st.Status)
	assert.Equal(t, "Goblin Cave", st.Meta.Name)
}

func TestCreateEncounterValidation(t *testing.T) {
	router := newTestRouter(t)

	longName := make([]byte, 201)
	for i := range longName {
		longName[i] = 'x'
	}

	tests := []struct {
		name string
		body gin.H
	}{
		{name: "empty name", body: gin.H{"name": ""}},
		{name: "missing name", body: gin.H{}},
		{name: "name too long", body: gin.H{"name": string(longName)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/encounters", tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		})
	}
}

func TestGetEncounterFailures(t *testing.T) {
	router := newTestRouter(t)
	created := createTestEncounter(t, router, "Goblin Cave")

	tests := []struct {
		name     string
		path     string
		wantCode int
	}{
		{
			name:     "unknown encounter id",
			path:     "/api/encounters/no-such-id?token=" + created.HostToken,
			wantCode: http.StatusNotFound,
		},
		{
			// Invalid tokens look identical to unknown ids so encounter ids
			// cannot be probed.
			name:     "invalid token",
			path:     "/api/encounters/" + created.EncounterID + "?token=bogus",
			wantCode: http.StatusNotFound,
		},
		{
			name:     "missing token",
			path:     "/api/encounters/" + created.EncounterID,
			wantCode: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestHostActionPromotesStatus(t *testing.T) {
	router := newTestRouter(t)
	created := createTestEncounter(t, router, "Goblin Cave")

	rec := doJSON(t, router, http.MethodPost,
		"/api/encounters/"+created.EncounterID+"/actions",
		gin.H{"token": created.HostToken, "action": gin.H{"type": "NEXT_TURN"}})
	require.Equal(t, http.StatusOK, rec.Code)

	st := decodeState(t, rec)
	assert.Equal(t, 2, st.Version)
	assert.Equal(t, state.StatusRunning, st.Status)

	require.NotEmpty(t, st.Log)
	last := st.Log[len(st.Log)-1]
	assert.Equal(t, "timing", last["kind"])
	assert.Equal(t, "turn_end", last["timing"])
	assert.Nil(t, last["actorId"])
}

func TestPlayerCannotMutate(t *testing.T) {
	router := newTestRouter(t)
	created := createTestEncounter(t, router, "Goblin Cave")

	rec := doJSON(t, router, http.MethodPost,
		"/api/encounters/"+created.EncounterID+"/actions",
		gin.H{"token": created.PlayerToken, "action": gin.H{"type": "NEXT_TURN"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Version unchanged after the refusal.
	getRec := doJSON(t, router, http.MethodGet,
		"/api/encounters/"+created.EncounterID+"?token="+created.PlayerToken, nil)
	require.Equal(t, http.StatusOK, getRec.Code)
	assert.Equal(t, 1, decodeState(t, getRec).Version)
}

func TestRollThenChatByPlayer(t *testing.T) {
	router := newTestRouter(t)
	created := createTestEncounter(t, router, "Goblin Cave")

	rollRec := doJSON(t, router, http.MethodPost,
		"/api/encounters/"+created.EncounterID+"/rolls",
		gin.H{"token": created.PlayerToken, "roll": gin.H{"kind": "d20", "value": 12}})
	require.Equal(t, http.StatusOK, rollRec.Code)

	st := decodeState(t, rollRec)
	assert.Equal(t, 2, st.Version)
	require.NotEmpty(t, st.Log)
	assert.Equal(t, "roll", st.Log[len(st.Log)-1]["kind"])

	chatRec := doJSON(t, router, http.MethodPost,
		"/api/encounters/"+created.EncounterID+"/chat",
		gin.H{"token": created.PlayerToken, "message": "hello"})
	require.Equal(t, http.StatusOK, chatRec.Code)

	st = decodeState(t, chatRec)
	assert.Equal(t, 3, st.Version)
	require.NotEmpty(t, st.Chat)
	last := st.Chat[len(st.Chat)-1]
	assert.Equal(t, store.RolePlayer, last.Role)
	assert.Equal(t, "hello", last.Text)
	assert.Equal(t, "Player", last.WhoLabel)
	assert.Nil(t, last.ActorID)
}

func TestMutationFailureCodes(t *testing.T) {
	router := newTestRouter(t)
	created := createTestEncounter(t, router, "Goblin Cave")

	tests := []struct {
		name     string
		path     string
		body     gin.H
		wantCode int
	}{
		{
			name:     "roll with invalid token",
			path:     "/api/encounters/" + created.EncounterID + "/rolls",
			body:     gin.H{"token": "bogus", "roll": gin.H{"kind": "d20", "value": 1}},
			wantCode: http.StatusForbidden,
		},
		{
			name:     "chat with invalid token",
			path:     "/api/encounters/" + created.EncounterID + "/chat",
			body:     gin.H{"token": "bogus", "message": "hi"},
			wantCode: http.StatusForbidden,
		},
		{
			name:     "action on unknown encounter",
			path:     "/api/encounters/no-such-id/actions",
			body:     gin.H{"token": created.HostToken, "action": gin.H{"type": "NEXT_TURN"}},
			wantCode: http.StatusNotFound,
		},
		{
			name:     "chat message empty",
			path:     "/api/encounters/" + created.EncounterID + "/chat",
			body:     gin.H{"token": created.PlayerToken, "message": ""},
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name:     "action missing token",
			path:     "/api/encounters/" + created.EncounterID + "/actions",
			body:     gin.H{"action": gin.H{"type": "NEXT_TURN"}},
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name:     "roll missing roll record",
			path:     "/api/encounters/" + created.EncounterID + "/rolls",
			body:     gin.H{"token": created.PlayerToken},
			wantCode: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestChatMessageTooLong(t *testing.T) {
	router := newTestRouter(t)
	created := createTestEncounter(t, router, "Goblin Cave")

	long := make([]byte, 1001)
	for i := range long {
		long[i] = 'a'
	}

	rec := doJSON(t, router, http.MethodPost,
		"/api/encounters/"+created.EncounterID+"/chat",
		gin.H{"token": created.PlayerToken, "message": string(long)})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

// Length limits count characters, not bytes: multibyte text within the limit
// must pass even when its byte length exceeds it.
func TestLengthLimitsCountCharacters(t *testing.T) {
	router := newTestRouter(t)
	created := createTestEncounter(t, router, strings.Repeat("é", 200))

	tests := []struct {
		name     string
		path     string
		body     gin.H
		wantCode int
	}{
		{
			name:     "600-character multibyte message accepted",
			path:     "/api/encounters/" + created.EncounterID + "/chat",
			body:     gin.H{"token": created.PlayerToken, "message": strings.Repeat("é", 600)},
			wantCode: http.StatusOK,
		},
		{
			name:     "1000-character multibyte message accepted",
			path:     "/api/encounters/" + created.EncounterID + "/chat",
			body:     gin.H{"token": created.PlayerToken, "message": strings.Repeat("é", 1000)},
			wantCode: http.StatusOK,
		},
		{
			name:     "1001-character multibyte message rejected",
			path:     "/api/encounters/" + created.EncounterID + "/chat",
			body:     gin.H{"token": created.PlayerToken, "message": strings.Repeat("é", 1001)},
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name:     "201-character multibyte name rejected",
			path:     "/api/encounters",
			body:     gin.H{"name": strings.Repeat("é", 201)},
			wantCode: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "memory", resp["store"])
}
