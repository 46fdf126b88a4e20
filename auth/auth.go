// Package auth carries the caller identity through a context and decides
// whether a caller may run privileged reasoning operations or read derived
// metadata.
package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/c360studio/semreason/repository"
)

// ErrForbidden is returned when the caller lacks the required rights.
var ErrForbidden = errors.New("forbidden")

// Guest is the identity of unauthenticated callers.
const Guest = "_guest"

// system marks internal callers such as the background worker.
const system = "_system"

type callerKey struct{}

// WithCaller returns a context carrying the caller's user name.
func WithCaller(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, callerKey{}, user)
}

// System returns a context identifying the reasoning subsystem itself.
func System(ctx context.Context) context.Context {
	return WithCaller(ctx, system)
}

// Caller returns the user name carried by ctx, or Guest.
func Caller(ctx context.Context) string {
	if user, ok := ctx.Value(callerKey{}).(string); ok && user != "" {
		return user
	}
	return Guest
}

// IsSystem reports whether ctx identifies the reasoning subsystem.
func IsSystem(ctx context.Context) bool {
	return Caller(ctx) == system
}

// Authorizer is the authorization hook of the surrounding repository.
type Authorizer interface {
	// IsCallerAdmin reports whether the caller is the admin user or a
	// member of the admin group.
	IsCallerAdmin(ctx context.Context) bool

	// CanReadMetadata returns ErrForbidden when the caller may not read the
	// metadata of entry.
	CanReadMetadata(ctx context.Context, entry *repository.Entry) error
}

// StaticAuthorizer authorizes against a configured admin user and group.
// Admin settings can be swapped at runtime.
type StaticAuthorizer struct {
	mu         sync.RWMutex
	adminUser  string
	adminGroup map[string]struct{}

	// ReadPolicy decides non-admin metadata reads. Nil allows every read.
	ReadPolicy func(ctx context.Context, user string, entry *repository.Entry) bool
}

// NewStaticAuthorizer creates an authorizer for adminUser and the members
// of the admin group.
func NewStaticAuthorizer(adminUser string, adminGroup []string) *StaticAuthorizer {
	a := &StaticAuthorizer{}
	a.SetAdmins(adminUser, adminGroup)
	return a
}

// SetAdmins replaces the admin user and group members.
func (a *StaticAuthorizer) SetAdmins(adminUser string, adminGroup []string) {
	group := make(map[string]struct{}, len(adminGroup))
	for _, member := range adminGroup {
		if member != "" {
			group[member] = struct{}{}
		}
	}

	a.mu.Lock()
	a.adminUser = adminUser
	a.adminGroup = group
	a.mu.Unlock()
}

// IsCallerAdmin implements Authorizer. The system caller is always admin.
func (a *StaticAuthorizer) IsCallerAdmin(ctx context.Context) bool {
	user := Caller(ctx)
	if user == system {
		return true
	}
	if user == Guest {
		return false
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.adminUser != "" && user == a.adminUser {
		return true
	}
	_, member := a.adminGroup[user]
	return member
}

// CanReadMetadata implements Authorizer.
func (a *StaticAuthorizer) CanReadMetadata(ctx context.Context, entry *repository.Entry) error {
	if a.IsCallerAdmin(ctx) || a.ReadPolicy == nil {
		return nil
	}
	if !a.ReadPolicy(ctx, Caller(ctx), entry) {
		return ErrForbidden
	}
	return nil
}
