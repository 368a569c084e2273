package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloudvault/backend/internal/cache"
	"github.com/cloudvault/backend/internal/models"
	"github.com/cloudvault/backend/internal/passkeys"
	"github.com/cloudvault/backend/pkg/logger"
	"github.com/cloudvault/backend/pkg/utils"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

const challengeKeyPrefix = "webauthn:challenge:"

type ceremonyKind string

const (
	ceremonyRegistration   ceremonyKind = "registration"
	ceremonyAuthentication ceremonyKind = "authentication"
)

// challengeRecord is the pending-challenge payload cached per identity.
// There is exactly one per email: starting any new ceremony overwrites the
// previous one, and a verify against the wrong ceremony kind fails the same
// way as a missing challenge.
type challengeRecord struct {
	Ceremony ceremonyKind         `json:"ceremony"`
	Session  webauthn.SessionData `json:"session"`
}

type WebAuthnConfig struct {
	RPName       string
	RPID         string
	RPOrigin     string
	ChallengeTTL time.Duration
}

// LoginResult is returned after a fully verified authentication ceremony.
type LoginResult struct {
	Verified    bool        `json:"verified"`
	AccessToken string      `json:"accessToken"`
	User        UserSummary `json:"user"`
}

type UserSummary struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// WebAuthnService orchestrates the two-phase registration and
// authentication ceremonies. The server holds no state between phases
// beyond the challenge store entry.
type WebAuthnService struct {
	wa         *webauthn.WebAuthn
	registry   *passkeys.Registry
	challenges cache.Store
	ttl        time.Duration
}

func NewWebAuthnService(cfg WebAuthnConfig, registry *passkeys.Registry, challenges cache.Store) (*WebAuthnService, error) {
	ttl := cfg.ChallengeTTL
	if ttl <= 0 {
		ttl = 300 * time.Second
	}

	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPName,
		RPID:          cfg.RPID,
		RPOrigins:     []string{cfg.RPOrigin},
		// Discoverable credentials are not required; verification preferred.
		AuthenticatorSelection: protocol.AuthenticatorSelection{
			ResidentKey:      protocol.ResidentKeyRequirementDiscouraged,
			UserVerification: protocol.VerificationPreferred,
		},
		AttestationPreference: protocol.PreferNoAttestation,
		Timeouts: webauthn.TimeoutsConfig{
			Login: webauthn.TimeoutConfig{
				Enforce:    true,
				Timeout:    ttl,
				TimeoutUVD: ttl,
			},
			Registration: webauthn.TimeoutConfig{
				Enforce:    true,
				Timeout:    ttl,
				TimeoutUVD: ttl,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("webauthn config: %w", err)
	}

	return &WebAuthnService{
		wa:         wa,
		registry:   registry,
		challenges: challenges,
		ttl:        ttl,
	}, nil
}

// ceremonyUser adapts our identity records to the webauthn.User interface.
// The WebAuthn user handle is the user's uuid, never the email, so the
// credential stored on the authenticator does not leak the identity.
type ceremonyUser struct {
	id          []byte
	email       string
	displayName string
	creds       []webauthn.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte { return u.id }

func (u *ceremonyUser) WebAuthnName() string { return u.email }

func (u *ceremonyUser) WebAuthnDisplayName() string {
	if u.displayName != "" {
		return u.displayName
	}
	return u.email
}

func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential { return u.creds }

// WebAuthnIcon is deprecated but still part of the webauthn.User interface
// in this library version; no icon is served.
func (u *ceremonyUser) WebAuthnIcon() string { return "" }

func credentialFromPasskey(p models.Passkey) webauthn.Credential {
	var transports []protocol.AuthenticatorTransport
	if p.Transports != "" {
		var ts []string
		if err := json.Unmarshal([]byte(p.Transports), &ts); err == nil {
			for _, t := range ts {
				transports = append(transports, protocol.AuthenticatorTransport(t))
			}
		}
	}

	return webauthn.Credential{
		ID:        p.CredentialID,
		PublicKey: p.PublicKey,
		Authenticator: webauthn.Authenticator{
			SignCount: p.SignCount,
		},
		Transport: transports,
		Flags: webauthn.CredentialFlags{
			BackupEligible: p.DeviceType == models.DeviceTypeMultiDevice,
			BackupState:    p.BackedUp,
		},
	}
}

func transportsJSON(transports []protocol.AuthenticatorTransport) string {
	if len(transports) == 0 {
		return ""
	}
	ts := make([]string, len(transports))
	for i, t := range transports {
		ts[i] = string(t)
	}
	encoded, _ := json.Marshal(ts)
	return string(encoded)
}

func (s *WebAuthnService) putChallenge(ctx context.Context, email string, kind ceremonyKind, session *webauthn.SessionData) error {
	payload, err := json.Marshal(challengeRecord{Ceremony: kind, Session: *session})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDependency, err)
	}
	if err := s.challenges.Put(ctx, challengeKeyPrefix+email, payload, s.ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrDependency, err)
	}
	return nil
}

func (s *WebAuthnService) getChallenge(ctx context.Context, email string, kind ceremonyKind) (*webauthn.SessionData, error) {
	payload, err := s.challenges.Get(ctx, challengeKeyPrefix+email)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrNoChallenge
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}

	var record challengeRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, ErrNoChallenge
	}
	if record.Ceremony != kind {
		return nil, ErrNoChallenge
	}
	return &record.Session, nil
}

// BeginRegistration issues creation options for the identity: a fresh
// random challenge, the relying-party identity, and an exclusion list of
// every credential already registered for the email.
func (s *WebAuthnService) BeginRegistration(ctx context.Context, email, displayName string) (*protocol.CredentialCreation, error) {
	existing, err := s.registry.ListByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(existing))
	for _, p := range existing {
		exclusions = append(exclusions, credentialFromPasskey(p).Descriptor())
	}

	handle := uuid.New()
	if user, err := s.registry.FindUserByEmail(ctx, email); err == nil {
		handle = user.ID
	}

	handleBytes, err := handle.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}

	waUser := &ceremonyUser{id: handleBytes, email: email, displayName: displayName}

	options, session, err := s.wa.BeginRegistration(waUser, webauthn.WithExclusions(exclusions))
	if err != nil {
		logger.Error("webauthn_begin_registration_failed", err, map[string]interface{}{"email": email})
		return nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}

	if err := s.putChallenge(ctx, email, ceremonyRegistration, session); err != nil {
		return nil, err
	}

	return options, nil
}

// FinishRegistration verifies the attestation response against the cached
// challenge and, on success, persists the new passkey (creating the user on
// first registration). Every verification failure is reported generically.
func (s *WebAuthnService) FinishRegistration(ctx context.Context, email string, response []byte) error {
	session, err := s.getChallenge(ctx, email, ceremonyRegistration)
	if err != nil {
		return err
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(response))
	if err != nil {
		logger.Warn("webauthn_registration_parse_failed", map[string]interface{}{
			"email": email,
			"error": err.Error(),
		})
		return ErrValidation
	}

	// A parsed response consumes the challenge: the ceremony is terminal
	// whether verification succeeds or fails.
	s.dropChallenge(ctx, email)

	waUser := &ceremonyUser{id: session.UserID, email: email}

	credential, err := s.wa.CreateCredential(waUser, *session, parsed)
	if err != nil {
		logger.Warn("webauthn_registration_verification_failed", map[string]interface{}{
			"email": email,
			"error": err.Error(),
		})
		return ErrVerificationFailed
	}

	return s.persistCredential(ctx, email, session.UserID, credential)
}

// persistCredential stores a verified credential, creating the user on
// first registration with the ceremony-issued handle as their id.
func (s *WebAuthnService) persistCredential(ctx context.Context, email string, handleBytes []byte, credential *webauthn.Credential) error {
	handle, err := uuid.FromBytes(handleBytes)
	if err != nil {
		return ErrVerificationFailed
	}

	user, err := s.registry.FindOrCreateUser(ctx, email, email, handle)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDependency, err)
	}

	deviceType := models.DeviceTypeSingleDevice
	if credential.Flags.BackupEligible {
		deviceType = models.DeviceTypeMultiDevice
	}

	passkey := &models.Passkey{
		UserID:         user.ID,
		CredentialID:   credential.ID,
		PublicKey:      credential.PublicKey,
		WebAuthnUserID: handleBytes,
		SignCount:      credential.Authenticator.SignCount,
		Transports:     transportsJSON(credential.Transport),
		DeviceType:     deviceType,
		BackedUp:       credential.Flags.BackupState,
	}
	if err := s.registry.Create(ctx, passkey); err != nil {
		if errors.Is(err, passkeys.ErrConflict) {
			return ErrConflict
		}
		return fmt.Errorf("%w: %v", ErrDependency, err)
	}

	logger.Info("passkey_registered", map[string]interface{}{
		"user_id":     user.ID.String(),
		"device_type": string(deviceType),
	})

	return nil
}

// BeginLogin issues assertion options for the identity. Unknown identities
// still receive well-formed options with an empty allow-list, so the
// endpoint cannot be used to enumerate which emails have accounts.
func (s *WebAuthnService) BeginLogin(ctx context.Context, email string) (*protocol.CredentialAssertion, error) {
	existing, err := s.registry.ListByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}

	var (
		options *protocol.CredentialAssertion
		session *webauthn.SessionData
	)

	if len(existing) == 0 {
		options, session, err = s.wa.BeginDiscoverableLogin()
	} else {
		user, lookupErr := s.registry.FindUserByEmail(ctx, email)
		if lookupErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrDependency, lookupErr)
		}

		handleBytes, marshalErr := user.ID.MarshalBinary()
		if marshalErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrDependency, marshalErr)
		}

		creds := make([]webauthn.Credential, 0, len(existing))
		for _, p := range existing {
			creds = append(creds, credentialFromPasskey(p))
		}

		waUser := &ceremonyUser{id: handleBytes, email: email, displayName: user.Name, creds: creds}
		options, session, err = s.wa.BeginLogin(waUser)
	}
	if err != nil {
		logger.Error("webauthn_begin_login_failed", err, map[string]interface{}{"email": email})
		return nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}

	if err := s.putChallenge(ctx, email, ceremonyAuthentication, session); err != nil {
		return nil, err
	}

	return options, nil
}

// FinishLogin verifies the assertion, enforces counter monotonicity via the
// registry's compare-and-set, and mints a session token on success.
func (s *WebAuthnService) FinishLogin(ctx context.Context, email string, response []byte) (*LoginResult, error) {
	session, err := s.getChallenge(ctx, email, ceremonyAuthentication)
	if err != nil {
		return nil, err
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(response))
	if err != nil {
		logger.Warn("webauthn_login_parse_failed", map[string]interface{}{
			"email": email,
			"error": err.Error(),
		})
		return nil, ErrValidation
	}

	// A parsed response consumes the challenge: the ceremony is terminal
	// whether verification succeeds or fails.
	s.dropChallenge(ctx, email)

	// Lookup scoped to the claimed identity: a credential registered to
	// another account must not authenticate this one.
	passkey, err := s.registry.FindByCredentialID(ctx, parsed.RawID, email)
	if err != nil {
		if errors.Is(err, passkeys.ErrNotFound) {
			logger.Warn("webauthn_login_unknown_credential", map[string]interface{}{"email": email})
			return nil, ErrVerificationFailed
		}
		return nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}

	user, err := s.registry.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, ErrVerificationFailed
	}

	handleBytes, err := user.ID.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}

	waUser := &ceremonyUser{
		id:          handleBytes,
		email:       email,
		displayName: user.Name,
		creds:       []webauthn.Credential{credentialFromPasskey(*passkey)},
	}

	credential, err := s.wa.ValidateLogin(waUser, *session, parsed)
	if err != nil {
		logger.Warn("webauthn_login_verification_failed", map[string]interface{}{
			"email": email,
			"error": err.Error(),
		})
		return nil, ErrVerificationFailed
	}

	return s.completeLogin(ctx, user, passkey, credential)
}

// completeLogin enforces the counter rule and mints the session token for a
// signature-verified assertion. The registry compare-and-set is the sole
// counter authority; the library's CloneWarning flag is not consulted, as it
// also fires on the equal counters the multi-device rule permits.
func (s *WebAuthnService) completeLogin(ctx context.Context, user *models.User, passkey *models.Passkey, credential *webauthn.Credential) (*LoginResult, error) {
	// Strict monotonicity applies to single-device credentials once a counter
	// has moved; authenticators that never implement one report zero on both
	// sides and get the relaxed rule.
	relaxed := passkey.DeviceType == models.DeviceTypeMultiDevice ||
		(passkey.SignCount == 0 && credential.Authenticator.SignCount == 0)

	if err := s.registry.UpdateCounter(ctx, passkey.CredentialID, credential.Authenticator.SignCount, relaxed); err != nil {
		if errors.Is(err, passkeys.ErrCounterRegression) {
			logger.Error("passkey_clone_detected", err, map[string]interface{}{
				"user_id": user.ID.String(),
			})
			return nil, ErrCloneDetected
		}
		return nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}

	logger.Info("passkey_login", map[string]interface{}{"user_id": user.ID.String()})

	return &LoginResult{
		Verified:    true,
		AccessToken: token,
		User:        UserSummary{ID: user.ID, Email: user.Email},
	}, nil
}

func (s *WebAuthnService) dropChallenge(ctx context.Context, email string) {
	_ = s.challenges.Delete(ctx, challengeKeyPrefix+email)
}
