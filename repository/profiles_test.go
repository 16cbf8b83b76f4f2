package repository

import (
	"context"
	"database/sql"
	"io/fs"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	persistence "github.com/goliatone/go-persistence-bun"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/pestline/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	auth.PasswordHashCost = bcrypt.MinCost
}

func setupProfiles(t *testing.T) (*Profiles, func()) {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	client, err := persistence.New(PersistenceConfig{DSN: ":memory:"}, db, sqlitedialect.New())
	require.NoError(t, err)
	require.NoError(t, RegisterMigrations(client))
	require.NoError(t, client.Migrate(context.Background()))

	bunDB := client.DB()
	fixed := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	profiles := NewProfiles(bunDB, WithProfilesClock(func() time.Time { return fixed }))

	return profiles, func() {
		_ = bunDB.Close()
	}
}

func TestRegisterMigrations_CreatesProfilesTable(t *testing.T) {
	files, err := fs.Glob(GetMigrationsFS(), MigrationsDir+"/*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	profiles, cleanup := setupProfiles(t)
	defer cleanup()

	var count int
	err = profiles.db.NewSelect().
		TableExpr("sqlite_master").
		ColumnExpr("COUNT(*)").
		Where("type = 'table' AND name = ?", "profiles").
		Scan(context.Background(), &count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProfiles_CreateAndFind(t *testing.T) {
	profiles, cleanup := setupProfiles(t)
	defer cleanup()
	ctx := context.Background()

	created, err := profiles.Create(ctx, NewProfile{
		Email:    " Tech@Example.com ",
		Name:     "Field Tech",
		Phone:    "(650) 253-0000",
		Password: "correct horse",
	})
	require.NoError(t, err)
	assert.Equal(t, "tech@example.com", created.Email)
	assert.Equal(t, auth.RoleUser, created.Role)
	assert.Equal(t, "+16502530000", created.Phone)
	assert.False(t, created.IsApproved)
	assert.NotEqual(t, "correct horse", created.PasswordHash)

	profile, err := profiles.FindProfileByEmail(ctx, "TECH@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID.String(), profile.ID)
	assert.Equal(t, []string{auth.RoleUser}, profile.Roles())

	account, err := profiles.FindAccountByEmail(ctx, "tech@example.com")
	require.NoError(t, err)
	assert.NoError(t, auth.ComparePasswordAndHash("correct horse", account.PasswordHash))
}

func TestProfiles_FindMissing(t *testing.T) {
	profiles, cleanup := setupProfiles(t)
	defer cleanup()

	_, err := profiles.FindProfileByEmail(context.Background(), "ghost@example.com")
	require.Error(t, err)
	assert.True(t, auth.IsProfileNotFound(err))
	assert.ErrorIs(t, err, auth.ErrProfileNotFound)
}

func TestProfiles_CreateValidation(t *testing.T) {
	profiles, cleanup := setupProfiles(t)
	defer cleanup()
	ctx := context.Background()

	tests := []struct {
		name string
		in   NewProfile
	}{
		{name: "missing email", in: NewProfile{Name: "No Email"}},
		{name: "malformed email", in: NewProfile{Email: "not-an-email"}},
		{name: "unknown role", in: NewProfile{Email: "a@example.com", Role: "superuser"}},
		{name: "short password", in: NewProfile{Email: "b@example.com", Password: "short"}},
		{name: "bad phone", in: NewProfile{Email: "c@example.com", Phone: "12"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := profiles.Create(ctx, tt.in)
			assert.Error(t, err)
		})
	}

	_, err := profiles.Create(ctx, NewProfile{Email: "dup@example.com"})
	require.NoError(t, err)
	_, err = profiles.Create(ctx, NewProfile{Email: "DUP@example.com"})
	assert.Error(t, err)
}

func TestProfiles_SetApprovalAndRole(t *testing.T) {
	profiles, cleanup := setupProfiles(t)
	defer cleanup()
	ctx := context.Background()

	_, err := profiles.Create(ctx, NewProfile{Email: "tech@example.com"})
	require.NoError(t, err)

	require.NoError(t, profiles.SetApproval(ctx, "tech@example.com", true))
	require.NoError(t, profiles.SetRole(ctx, "tech@example.com", "Admin"))

	profile, err := profiles.FindProfileByEmail(ctx, "tech@example.com")
	require.NoError(t, err)
	assert.True(t, profile.IsApproved)
	assert.Equal(t, auth.RoleAdmin, profile.Role)

	assert.Error(t, profiles.SetRole(ctx, "tech@example.com", "owner"))

	err = profiles.SetApproval(ctx, "ghost@example.com", true)
	assert.True(t, repository.IsRecordNotFound(err))
	assert.True(t, goerrors.IsNotFound(err))
}

func TestProfiles_List(t *testing.T) {
	profiles, cleanup := setupProfiles(t)
	defer cleanup()
	ctx := context.Background()

	for _, email := range []string{"zed@example.com", "amy@example.com"} {
		_, err := profiles.Create(ctx, NewProfile{Email: email})
		require.NoError(t, err)
	}

	records, err := profiles.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "amy@example.com", records[0].Email)
	assert.Equal(t, "zed@example.com", records[1].Email)
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		phone   string
		region  string
		want    string
		wantErr bool
	}{
		{name: "empty", phone: "", region: "US", want: ""},
		{name: "national US", phone: "650-253-0000", region: "US", want: "+16502530000"},
		{name: "international", phone: "+44 20 7031 3000", region: "US", want: "+442070313000"},
		{name: "garbage", phone: "phone", region: "US", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.phone, tt.region)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
