package registry

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"chat-sync/internal/apperrors"
	"chat-sync/internal/identity"
)

// Store is the shared, TTL-bound identity <-> handle mapping.
type Store interface {
	Bind(ctx context.Context, identity, handle string) (string, error)
	Unbind(ctx context.Context, handle string) (string, error)
	Refresh(ctx context.Context, handle string) (string, error)
	HandleFor(ctx context.Context, identity string) (string, bool, error)
	IdentityFor(ctx context.Context, handle string) (string, bool, error)
}

// ProfileWriter records profile side effects of connection lifecycle.
type ProfileWriter interface {
	EnsureProfile(ctx context.Context, identity, displayName, avatarURL string) error
	TouchLastSeen(ctx context.Context, identity string, timestamp int64) error
}

// Registration describes a completed register call.
type Registration struct {
	Identity string
	// Superseded is the handle previously bound to Identity, if any.
	Superseded string
}

// Registry maps identities to their single live connection handle.
type Registry struct {
	exchanger identity.Exchanger
	store     Store
	profiles  ProfileWriter
	timeout   time.Duration
	logger    *logrus.Logger
	now       func() time.Time
}

func New(exchanger identity.Exchanger, store Store, profiles ProfileWriter, timeout time.Duration, logger *logrus.Logger) *Registry {
	return &Registry{
		exchanger: exchanger,
		store:     store,
		profiles:  profiles,
		timeout:   timeout,
		logger:    logger,
		now:       time.Now,
	}
}

// Register exchanges authCode for an identity and binds it to handle, superseding any earlier handle.
func (r *Registry) Register(ctx context.Context, authCode, handle string) (Registration, error) {
	if handle == "" {
		return Registration{}, apperrors.NewValidationError("connection handle is required")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.exchanger.Exchange(ctx, authCode)
	if err != nil {
		if apperrors.GetCode(err) != apperrors.ErrCodeIdentityResolution {
			err = apperrors.NewIdentityResolutionError(err)
		}
		return Registration{}, err
	}

	prev, err := r.store.Bind(ctx, res.Identity, handle)
	if err != nil {
		return Registration{}, err
	}

	if err := r.profiles.EnsureProfile(ctx, res.Identity, res.DisplayName, res.AvatarURL); err != nil {
		r.logger.WithError(err).WithField("identity", res.Identity).Warn("ensure profile on register failed")
	}

	r.logger.WithFields(logrus.Fields{
		"identity":   res.Identity,
		"conn_id":    handle,
		"superseded": prev,
	}).Info("connection registered")

	return Registration{Identity: res.Identity, Superseded: prev}, nil
}

// LookupConnection returns the live handle of identity, if any.
func (r *Registry) LookupConnection(ctx context.Context, identity string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.store.HandleFor(ctx, identity)
}

// ResolveHandle returns the identity owning a connection-scoped handle.
func (r *Registry) ResolveHandle(ctx context.Context, handle string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	identity, ok, err := r.store.IdentityFor(ctx, handle)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperrors.NewNotFoundError("connection")
	}
	return identity, nil
}

// Refresh extends the lifetime of the mapping owned by handle.
func (r *Registry) Refresh(ctx context.Context, handle string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.store.Refresh(ctx, handle)
	return err
}

// Deregister removes the mapping owned by handle and records last-seen. Unknown handles are ignored.
func (r *Registry) Deregister(ctx context.Context, handle string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	identity, err := r.store.Unbind(ctx, handle)
	if err != nil {
		return err
	}
	if identity == "" {
		return nil
	}

	if err := r.profiles.TouchLastSeen(ctx, identity, r.now().Unix()); err != nil {
		return err
	}
	r.logger.WithFields(logrus.Fields{"identity": identity, "conn_id": handle}).Info("connection deregistered")
	return nil
}
