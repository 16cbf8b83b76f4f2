package auth

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
)

// Local persistence keys of the cached role snapshot.
const (
	SnapshotKeyRoles       = "auth.roles"
	SnapshotKeyIsApproved  = "auth.is_approved"
	SnapshotKeyLoginMethod = "auth.login_method"
	SnapshotKeyOwner       = "auth.snapshot_email"
)

// SnapshotCache reads and writes the RoleSnapshot in a KeyValueStore. The
// keys move together under one lock, so a Load that follows a Clear
// never observes pre-clear values.
type SnapshotCache struct {
	mu sync.Mutex
	kv KeyValueStore
}

// NewSnapshotCache wraps kv.
func NewSnapshotCache(kv KeyValueStore) *SnapshotCache {
	if kv == nil {
		kv = NewMemoryStore()
	}
	return &SnapshotCache{kv: kv}
}

// Load returns the cached snapshot. ErrSnapshotMissing means nothing is
// cached; a KindCorrupted error means a value failed to parse. A partially
// populated snapshot is returned as is, check Complete before using it.
func (c *SnapshotCache) Load(ctx context.Context) (*RoleSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rawRoles, hasRoles, err := c.kv.Get(ctx, SnapshotKeyRoles)
	if err != nil {
		return nil, NewError(KindTransport, "read cached roles", err)
	}
	rawApproved, hasApproved, err := c.kv.Get(ctx, SnapshotKeyIsApproved)
	if err != nil {
		return nil, NewError(KindTransport, "read cached approval", err)
	}
	method, _, err := c.kv.Get(ctx, SnapshotKeyLoginMethod)
	if err != nil {
		return nil, NewError(KindTransport, "read cached login method", err)
	}
	owner, _, err := c.kv.Get(ctx, SnapshotKeyOwner)
	if err != nil {
		return nil, NewError(KindTransport, "read cached owner", err)
	}

	if !hasRoles && !hasApproved {
		return nil, ErrSnapshotMissing
	}

	snap := &RoleSnapshot{
		LoginMethod: strings.TrimSpace(method),
		Email:       strings.TrimSpace(owner),
	}

	if hasRoles {
		var roles []string
		if err := json.Unmarshal([]byte(rawRoles), &roles); err != nil {
			return nil, NewError(KindCorrupted, "parse cached roles", err)
		}
		snap.Roles = roles
	}

	if hasApproved {
		var approved bool
		if err := json.Unmarshal([]byte(rawApproved), &approved); err != nil {
			return nil, NewError(KindCorrupted, "parse cached approval", err)
		}
		snap.IsApproved = &approved
	}

	return snap, nil
}

// Store replaces the cached snapshot.
func (c *SnapshotCache) Store(ctx context.Context, snap RoleSnapshot) error {
	roles, err := json.Marshal(snap.Roles)
	if err != nil {
		return err
	}
	approved := false
	if snap.IsApproved != nil {
		approved = *snap.IsApproved
	}
	approvedRaw, err := json.Marshal(approved)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.kv.Set(ctx, SnapshotKeyRoles, string(roles)); err != nil {
		return NewError(KindTransport, "write cached roles", err)
	}
	if err := c.kv.Set(ctx, SnapshotKeyIsApproved, string(approvedRaw)); err != nil {
		return NewError(KindTransport, "write cached approval", err)
	}
	if err := c.setOrDelete(ctx, SnapshotKeyLoginMethod, snap.LoginMethod); err != nil {
		return NewError(KindTransport, "write cached login method", err)
	}
	if err := c.setOrDelete(ctx, SnapshotKeyOwner, snap.Email); err != nil {
		return NewError(KindTransport, "write cached owner", err)
	}
	return nil
}

// setOrDelete writes value under key, or removes key when value is empty so a
// previous owner's value does not survive.
func (c *SnapshotCache) setOrDelete(ctx context.Context, key, value string) error {
	if value == "" {
		return c.kv.Delete(ctx, key)
	}
	return c.kv.Set(ctx, key, value)
}

// Clear removes every snapshot key. Clearing an empty cache is a no-op.
func (c *SnapshotCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.kv.Delete(ctx, SnapshotKeyRoles, SnapshotKeyIsApproved, SnapshotKeyLoginMethod, SnapshotKeyOwner); err != nil {
		return NewError(KindTransport, "clear cached snapshot", err)
	}
	return nil
}
