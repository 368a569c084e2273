package handlers

import (
	"strings"
	"testing"

	"github.com/cloudvault/backend/internal/models"
	"github.com/gofiber/fiber/v2"
)

func TestPasswordsRequireAuth(t *testing.T) {
	env := setupTestEnv(t)

	resp := performRequest(t, env.app, "GET", "/passwords/", nil, nil)
	assertStatus(t, resp, fiber.StatusUnauthorized)
}

func TestPasswordCreateAndGet(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "vault@example.com")

	create := performJSONRequest(t, env.app, "POST", "/passwords/", map[string]any{
		"serviceName": "mail.example.com",
		"username":    "vault",
		"password":    "MySecret123!",
	}, authHeaders(token))
	assertStatus(t, create, fiber.StatusCreated)

	body := decodeJSONMap(t, create)
	data, _ := body["data"].(map[string]any)
	entryID, _ := data["id"].(string)
	if entryID == "" {
		t.Fatalf("expected created entry id, got %+v", body)
	}
	if _, leaked := data["password"]; leaked {
		t.Fatal("create response must not carry the plaintext secret")
	}

	var stored models.PasswordEntry
	if err := env.db.First(&stored, "id = ?", entryID).Error; err != nil {
		t.Fatalf("failed loading stored entry: %v", err)
	}
	if stored.Ciphertext == "" || strings.Contains(stored.Ciphertext, "MySecret123!") {
		t.Fatal("secret was not encrypted at rest")
	}

	get := performRequest(t, env.app, "GET", "/passwords/"+entryID, nil, authHeaders(token))
	assertStatus(t, get, fiber.StatusOK)

	getBody := decodeJSONMap(t, get)
	getData, _ := getBody["data"].(map[string]any)
	if secret, _ := getData["password"].(string); secret != "MySecret123!" {
		t.Fatalf("expected decrypted secret in detail view, got %+v", getBody)
	}
}

func TestPasswordListOmitsSecrets(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "lister@example.com")

	create := performJSONRequest(t, env.app, "POST", "/passwords/", map[string]any{
		"serviceName": "example.com",
		"password":    "hidden-secret",
	}, authHeaders(token))
	assertStatus(t, create, fiber.StatusCreated)
	create.Body.Close()

	list := performRequest(t, env.app, "GET", "/passwords/", nil, authHeaders(token))
	assertStatus(t, list, fiber.StatusOK)

	body := decodeJSONMap(t, list)
	entries, _ := body["data"].([]any)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry, _ := entries[0].(map[string]any)
	for _, key := range []string{"password", "ciphertext", "iv"} {
		if _, leaked := entry[key]; leaked {
			t.Fatalf("list entry must not expose %q", key)
		}
	}
}

func TestPasswordUpdateRotatesSecret(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "updater@example.com")

	create := performJSONRequest(t, env.app, "POST", "/passwords/", map[string]any{
		"serviceName": "example.com",
		"password":    "old-secret",
	}, authHeaders(token))
	assertStatus(t, create, fiber.StatusCreated)
	data, _ := decodeJSONMap(t, create)["data"].(map[string]any)
	entryID, _ := data["id"].(string)

	var before models.PasswordEntry
	if err := env.db.First(&before, "id = ?", entryID).Error; err != nil {
		t.Fatalf("failed loading entry: %v", err)
	}

	update := performJSONRequest(t, env.app, "PUT", "/passwords/"+entryID, map[string]any{
		"password": "new-secret",
	}, authHeaders(token))
	assertStatus(t, update, fiber.StatusOK)
	update.Body.Close()

	var after models.PasswordEntry
	if err := env.db.First(&after, "id = ?", entryID).Error; err != nil {
		t.Fatalf("failed reloading entry: %v", err)
	}
	if after.IV == before.IV || after.Ciphertext == before.Ciphertext {
		t.Fatal("expected fresh iv and ciphertext after secret rewrite")
	}

	get := performRequest(t, env.app, "GET", "/passwords/"+entryID, nil, authHeaders(token))
	assertStatus(t, get, fiber.StatusOK)
	getData, _ := decodeJSONMap(t, get)["data"].(map[string]any)
	if secret, _ := getData["password"].(string); secret != "new-secret" {
		t.Fatalf("expected rotated secret, got %q", secret)
	}
}

func TestPasswordDelete(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "remover@example.com")

	create := performJSONRequest(t, env.app, "POST", "/passwords/", map[string]any{
		"serviceName": "example.com",
		"password":    "to-delete",
	}, authHeaders(token))
	assertStatus(t, create, fiber.StatusCreated)
	data, _ := decodeJSONMap(t, create)["data"].(map[string]any)
	entryID, _ := data["id"].(string)

	del := performRequest(t, env.app, "DELETE", "/passwords/"+entryID, nil, authHeaders(token))
	assertStatus(t, del, fiber.StatusOK)
	del.Body.Close()

	get := performRequest(t, env.app, "GET", "/passwords/"+entryID, nil, authHeaders(token))
	assertStatus(t, get, fiber.StatusNotFound)
}

func TestPasswordCrossUserIsolation(t *testing.T) {
	env := setupTestEnv(t)
	_, ownerToken := createTestUser(t, env.db, "owner@example.com")
	_, otherToken := createTestUser(t, env.db, "intruder@example.com")

	create := performJSONRequest(t, env.app, "POST", "/passwords/", map[string]any{
		"serviceName": "example.com",
		"password":    "private",
	}, authHeaders(ownerToken))
	assertStatus(t, create, fiber.StatusCreated)
	data, _ := decodeJSONMap(t, create)["data"].(map[string]any)
	entryID, _ := data["id"].(string)

	get := performRequest(t, env.app, "GET", "/passwords/"+entryID, nil, authHeaders(otherToken))
	assertStatus(t, get, fiber.StatusNotFound)

	del := performRequest(t, env.app, "DELETE", "/passwords/"+entryID, nil, authHeaders(otherToken))
	assertStatus(t, del, fiber.StatusNotFound)
}

func TestPasswordInvalidID(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "badid@example.com")

	resp := performRequest(t, env.app, "GET", "/passwords/not-a-uuid", nil, authHeaders(token))
	assertStatus(t, resp, fiber.StatusBadRequest)
}
