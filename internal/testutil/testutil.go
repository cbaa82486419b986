package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"fms/internal/auth"
	"fms/internal/database"
	"fms/internal/models"
	"fms/internal/server"
)

// SetupTestDB opens an in-memory SQLite database with foreign keys enabled
// and the real migrations applied, plus an "admin" user.
func SetupTestDB(t *testing.T) *database.Store {
	t.Helper()
	store, err := database.Open(context.Background(), ":memory:", nil)
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if _, err := auth.CreateUser(context.Background(), store.DB, "admin", "changeme", "Administrator", "admin"); err != nil {
		t.Fatalf("Failed to create default admin user: %v", err)
	}
	return store
}

// CreateTestUser creates a user and returns its id.
func CreateTestUser(t *testing.T, store *database.Store, username, role string) int64 {
	t.Helper()
	id, err := auth.CreateUser(context.Background(), store.DB, username, "password", username+" Display", role)
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return id
}

// Approver is an actor holding the approval permission.
func Approver(id int64) models.Actor {
	return models.Actor{UserID: id, Username: "approver", Role: "manager", CanApprove: true}
}

// Clerk is an actor without the approval permission.
func Clerk(id int64) models.Actor {
	return models.Actor{UserID: id, Username: "clerk", Role: "user"}
}

// SeedItem inserts an inventory item and returns its id.
func SeedItem(t *testing.T, store *database.Store, sku, itemType string, quantity int64, unitPrice string) int64 {
	t.Helper()
	res, err := database.RunStatement(context.Background(), store.DB,
		`INSERT INTO inventory_items (sku, name, item_type, quantity, unit_price) VALUES (?, ?, ?, ?, ?)`,
		sku, sku+" name", itemType, quantity, decimal.RequireFromString(unitPrice))
	if err != nil {
		t.Fatalf("Failed to seed item %s: %v", sku, err)
	}
	return res.ID
}

// ItemQuantity reads the on-hand quantity of an item.
func ItemQuantity(t *testing.T, store *database.Store, itemID int64) int64 {
	t.Helper()
	var n int64
	if err := store.DB.QueryRow("SELECT quantity FROM inventory_items WHERE id = ?", itemID).Scan(&n); err != nil {
		t.Fatalf("Failed to read quantity of item %d: %v", itemID, err)
	}
	return n
}

// CountRows counts rows of table matching where (which may be empty).
func CountRows(t *testing.T, store *database.Store, table, where string, args ...any) int {
	t.Helper()
	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	var n int
	if err := store.DB.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("Failed to count %s: %v", table, err)
	}
	return n
}

// AuthedJSONRequest creates a request with a JSON body and a bearer token.
func AuthedJSONRequest(method, path string, body interface{}, token string) *http.Request {
	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(bodyBytes))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

// AssertStatus checks that the HTTP status code matches expected.
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// DecodeEnvelope decodes an API response envelope and extracts the data.
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode API envelope: %v", err)
	}
	dataBytes, _ := json.Marshal(resp.Data)
	if err := json.Unmarshal(dataBytes, v); err != nil {
		t.Fatalf("Failed to decode data from envelope: %v", err)
	}
}

// AsActor wraps h so every request runs on behalf of a.
func AsActor(h http.Handler, a models.Actor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r.WithContext(server.WithActor(r.Context(), a)))
	})
}

// Do serves a JSON request through h and returns the recorder.
func Do(h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, AuthedJSONRequest(method, path, body, ""))
	return w
}
