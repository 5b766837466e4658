package identity

import (
	"testing"
	"time"

	"github.com/dropDatabas3/docjohn/docstore"
)

func sampleUser() *User {
	end := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	return &User{
		ID:                   "u-1",
		UserName:             "Ada",
		NormalizedUserName:   "ADA",
		Email:                "ada@example.test",
		NormalizedEmail:      "ADA@EXAMPLE.TEST",
		EmailConfirmed:       true,
		PasswordHash:         "phc$argon2id$...",
		SecurityStamp:        "stamp-1",
		PhoneNumber:          "+10000000",
		PhoneNumberConfirmed: false,
		TwoFactorEnabled:     true,
		LockoutEnd:           &end,
		LockoutEnabled:       true,
		AccessFailedCount:    3,
		Claims: []Claim{
			{Type: "scope", Value: "read"},
			{Type: "scope", Value: "read"}, // duplicado intencional
		},
		Logins: []Login{{Provider: "google", ProviderKey: "g-123", DisplayName: "Google"}},
		Roles:  []RoleRef{{RoleID: "r-1", Name: "Admins", NormalizedName: "ADMINS"}},
		Tokens: []Token{{Provider: "totp", Name: "secret", Value: "s3cr3t"}},

		DocumentType: TypeUser,
	}
}

func TestUserRoundTrip(t *testing.T) {
	u := sampleUser()

	doc := EncodeUser(u)
	if doc.Type() != TypeUser {
		t.Fatalf("documentType = %q, want %q", doc.Type(), TypeUser)
	}
	if doc[docstore.FieldPartition] != TypeUser {
		t.Fatalf("partitionKey = %v, want %q", doc[docstore.FieldPartition], TypeUser)
	}

	got, err := DecodeUser(doc)
	if err != nil {
		t.Fatalf("DecodeUser: %v", err)
	}

	if got.ID != u.ID || got.UserName != u.UserName || got.NormalizedUserName != u.NormalizedUserName {
		t.Errorf("identity fields changed: %+v", got)
	}
	if got.Email != u.Email || got.NormalizedEmail != u.NormalizedEmail || got.EmailConfirmed != u.EmailConfirmed {
		t.Errorf("email fields changed: %+v", got)
	}
	if got.PasswordHash != u.PasswordHash || got.SecurityStamp != u.SecurityStamp {
		t.Errorf("credential fields changed: %+v", got)
	}
	if got.TwoFactorEnabled != u.TwoFactorEnabled || got.LockoutEnabled != u.LockoutEnabled {
		t.Errorf("flags changed: %+v", got)
	}
	if got.AccessFailedCount != 3 {
		t.Errorf("accessFailedCount = %d, want 3", got.AccessFailedCount)
	}
	if got.LockoutEnd == nil || !got.LockoutEnd.Equal(*u.LockoutEnd) {
		t.Errorf("lockoutEnd = %v, want %v", got.LockoutEnd, u.LockoutEnd)
	}

	if len(got.Claims) != 2 || got.Claims[0] != u.Claims[0] || got.Claims[1] != u.Claims[1] {
		t.Errorf("claims changed: %+v", got.Claims)
	}
	if len(got.Logins) != 1 || got.Logins[0] != u.Logins[0] {
		t.Errorf("logins changed: %+v", got.Logins)
	}
	if len(got.Roles) != 1 || got.Roles[0] != u.Roles[0] {
		t.Errorf("roles changed: %+v", got.Roles)
	}
	if len(got.Tokens) != 1 || got.Tokens[0] != u.Tokens[0] {
		t.Errorf("tokens changed: %+v", got.Tokens)
	}
}

func TestUserNilLockoutEnd(t *testing.T) {
	u := sampleUser()
	u.LockoutEnd = nil

	got, err := DecodeUser(EncodeUser(u))
	if err != nil {
		t.Fatalf("DecodeUser: %v", err)
	}
	if got.LockoutEnd != nil {
		t.Errorf("lockoutEnd = %v, want nil", got.LockoutEnd)
	}
}

func TestExtensionBagRoundTrip(t *testing.T) {
	// Un tipo derivado agrega campos fuera del esquema base; el codec los
	// preserva tal cual en cada ciclo encode/decode.
	u := sampleUser()
	u.Extra = map[string]any{
		"department": "physics",
		"badges":     []any{"alpha", "beta"},
		"profile":    map[string]any{"theme": "dark"},
	}

	got, err := DecodeUser(EncodeUser(u))
	if err != nil {
		t.Fatalf("DecodeUser: %v", err)
	}
	if got.Extra["department"] != "physics" {
		t.Errorf("department = %v", got.Extra["department"])
	}
	badges, _ := got.Extra["badges"].([]any)
	if len(badges) != 2 || badges[0] != "alpha" {
		t.Errorf("badges = %v", got.Extra["badges"])
	}
	profile, _ := got.Extra["profile"].(map[string]any)
	if profile["theme"] != "dark" {
		t.Errorf("profile = %v", got.Extra["profile"])
	}

	// Segundo ciclo: nada se pierde al reescribir.
	again, err := DecodeUser(EncodeUser(got))
	if err != nil {
		t.Fatalf("DecodeUser (second pass): %v", err)
	}
	if again.Extra["department"] != "physics" {
		t.Errorf("department lost on rewrite: %v", again.Extra)
	}
}

func TestExtensionBagCannotShadowBaseSchema(t *testing.T) {
	u := sampleUser()
	u.Extra = map[string]any{FieldUserName: "evil"}

	doc := EncodeUser(u)
	if doc[FieldUserName] != "Ada" {
		t.Fatalf("base field shadowed by extension bag: %v", doc[FieldUserName])
	}
}

func TestDecodeUserMissingDiscriminator(t *testing.T) {
	doc := docstore.Document{docstore.FieldID: "u-9", FieldUserName: "x"}
	if _, err := DecodeUser(doc); err == nil {
		t.Fatal("expected error for document without discriminator")
	}
}

func TestRoleRoundTrip(t *testing.T) {
	r := &Role{
		ID:             "r-1",
		Name:           "Admins",
		NormalizedName: "ADMINS",
		Claims:         []Claim{{Type: "perm", Value: "manage"}},
		DocumentType:   TypeRole,
		Extra:          map[string]any{"tier": "gold"},
	}

	got, err := DecodeRole(EncodeRole(r))
	if err != nil {
		t.Fatalf("DecodeRole: %v", err)
	}
	if got.ID != r.ID || got.Name != r.Name || got.NormalizedName != r.NormalizedName {
		t.Errorf("role fields changed: %+v", got)
	}
	if len(got.Claims) != 1 || got.Claims[0] != r.Claims[0] {
		t.Errorf("claims changed: %+v", got.Claims)
	}
	if got.Extra["tier"] != "gold" {
		t.Errorf("extension bag lost: %+v", got.Extra)
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("  Ada ") != "ADA" {
		t.Errorf("Normalize = %q", Normalize("  Ada "))
	}
}
