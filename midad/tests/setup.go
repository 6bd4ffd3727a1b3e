package tests

import (
	"bytes"
	"context"
	"testing"

	"midad_platform/midad/assistant"
	"midad_platform/midad/auth"
	"midad_platform/midad/realtime"
	"midad_platform/midad/schema"
	"midad_platform/midad/services"
	"midad_platform/midad/session"
	"midad_platform/midad/userdata"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	platform services.Platform
	api      chi.Router
	db       *gorm.DB
	data     *userdata.Manager
	feed     *realtime.MemoryFeed
	ai       *generatorStub
}

const (
	adminName     = "admin123"
	adminEmail    = "admin123@mail.com"
	adminPassword = "admin_password123"
)

// generatorStub stands in for the text generation provider in tests. It
// returns a canned reply, or a configured error.
type generatorStub struct {
	reply string
	err   error
}

func (g *generatorStub) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func setupTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	if err := db.AutoMigrate(schema.AllTables()...); err != nil {
		t.Fatal(err)
	}

	userAuth, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(new(bytes.Buffer)),
		auth.BasicProviderArgs{
			Secret:        []byte("290zcv02ai249"),
			AdminName:     adminName,
			AdminEmail:    adminEmail,
			AdminPassword: adminPassword,
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	data := userdata.NewManager(userdata.NewMemoryStore())
	feed := realtime.NewMemoryFeed()
	resolver := session.NewResolver(session.NewGormRecordStore(db), session.DefaultRetryPolicy())
	ai := &generatorStub{reply: "نص محسن"}

	platform := services.NewPlatform(db, userAuth, data, feed, resolver, ai, assistant.DefaultPrompts())

	return &testEnv{
		platform: platform,
		api:      platform.Routes(),
		db:       db,
		data:     data,
		feed:     feed,
		ai:       ai,
	}
}

func (t *testEnv) newClient() client {
	return client{api: t.api}
}

func (t *testEnv) newUser(name, role string) (client, error) {
	c := t.newClient()
	login, err := c.signup(name, name+"@mail.com", name+"_password", role)
	if err != nil {
		return client{}, err
	}

	if err := c.login(login); err != nil {
		return client{}, err
	}

	return c, nil
}

func (t *testEnv) adminClient() (client, error) {
	c := t.newClient()
	err := c.login(loginInfo{Email: adminEmail, Password: adminPassword})
	return c, err
}
