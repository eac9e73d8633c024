package identity

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// Sentinel errors for the token-acquisition outcomes the orchestrator must
// distinguish. The login façade maps these onto its public error taxonomy.
var (
	// ErrSilentUnavailable indicates no cached refresh session exists for the
	// account, so only an interactive login can produce a token.
	ErrSilentUnavailable = errors.New("no cached session available for silent acquisition")

	// ErrMFARequired indicates the provider refused a non-interactive grant
	// because multi-factor or conditional-access policy demands interaction.
	ErrMFARequired = errors.New("provider requires multi-factor interaction")

	// ErrExchangeFailed indicates a token-endpoint failure that is neither a
	// missing session nor an interaction requirement.
	ErrExchangeFailed = errors.New("token exchange failed")
)

// interactionErrorCodes are the OAuth error codes that mean the grant can only
// succeed interactively (conditional access, consent, MFA enrollment).
var interactionErrorCodes = []string{
	"interaction_required",
	"consent_required",
	"login_required",
}

// interactionSubcodes are provider sub-error markers for conditional-access
// and MFA policy (AADSTS 50076 = MFA required, 50079 = MFA enrollment,
// 53000-family = conditional access).
var interactionSubcodes = []string{
	"AADSTS50076",
	"AADSTS50079",
	"AADSTS53000",
	"AADSTS53001",
	"AADSTS53003",
}

// classifyTokenError maps a token-endpoint failure onto the sentinel set.
// Only OAuth-level rejections are classified; transport errors (no provider
// error body) stay generic so callers can retry without re-prompting.
// The returned error never embeds the response body, which may echo tokens.
func classifyTokenError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	code := retrieveErr.ErrorCode
	desc := retrieveErr.ErrorDescription

	for _, c := range interactionErrorCodes {
		if code == c {
			return fmt.Errorf("%w (%s)", ErrMFARequired, code)
		}
	}
	for _, sub := range interactionSubcodes {
		if strings.Contains(desc, sub) {
			return fmt.Errorf("%w (%s)", ErrMFARequired, sub)
		}
	}

	if code != "" {
		return fmt.Errorf("%w: provider returned %q", ErrExchangeFailed, code)
	}
	return fmt.Errorf("%w: provider returned HTTP %d", ErrExchangeFailed, retrieveErr.Response.StatusCode)
}
