package userman

import (
	"fmt"
	"time"

	"github.com/alexscott/userman/internal/db/controller/globalsetting"
	"github.com/alexscott/userman/internal/db/models"
	"github.com/alexscott/userman/internal/directory"
	"github.com/alexscott/userman/internal/uniuri"
)

// tokenKey is the global-blob key holding the reset token map.
const tokenKey = "passresettoken"

const tokenLength = 32

// ResetToken is one issued password reset token.
type ResetToken struct {
	ID        uint64 `json:"id"`
	IssuedAt  int64  `json:"time"`
	ExpiresAt int64  `json:"valid"`
}

// Tokens returns the live reset tokens keyed by token string. Expired
// entries are pruned and the pruned map is written back, so the blob
// never accumulates stale tokens.
func (u *Userman) Tokens() (map[string]ResetToken, error) {
	tokens := make(map[string]ResetToken)

	if _, err := globalsetting.Get(u.db, tokenKey, &tokens); err != nil {
		return nil, fmt.Errorf("failed to load reset tokens: %w", err)
	}

	now := u.now().Unix()
	pruned := false

	for token, t := range tokens {
		if t.ExpiresAt <= now {
			delete(tokens, token)

			pruned = true
		}
	}

	if pruned {
		if err := u.saveTokens(tokens); err != nil {
			return nil, err
		}
	}

	return tokens, nil
}

func (u *Userman) saveTokens(tokens map[string]ResetToken) error {
	if err := globalsetting.Set(u.db, tokenKey, tokens); err != nil {
		return fmt.Errorf("failed to store reset tokens: %w", err)
	}

	return nil
}

// GenerateToken issues a reset token for the user. An unexpired token
// already held by the user is returned as-is unless force is set, in
// which case it is replaced.
func (u *Userman) GenerateToken(uid uint64, validFor time.Duration, force bool) (string, error) {
	if _, err := u.aggregate().UserByID(uid); err != nil {
		return "", err
	}

	tokens, err := u.Tokens()
	if err != nil {
		return "", err
	}

	for token, t := range tokens {
		if t.ID != uid {
			continue
		}

		if !force {
			return token, nil
		}

		delete(tokens, token)
	}

	now := u.now()
	token := uniuri.NewLen(tokenLength)
	tokens[token] = ResetToken{
		ID:        uid,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(validFor).Unix(),
	}

	if err := u.saveTokens(tokens); err != nil {
		return "", err
	}

	return token, nil
}

// ValidateToken resolves a token to its user without consuming it.
func (u *Userman) ValidateToken(token string) (*models.User, error) {
	tokens, err := u.Tokens()
	if err != nil {
		return nil, err
	}

	t, ok := tokens[token]
	if !ok {
		return nil, ErrTokenNotFound
	}

	return u.aggregate().UserByID(t.ID)
}

// ResetPasswordWithToken sets the user's password and consumes the
// token. The token is spent even when the password change itself is
// refused, so it can never be retried.
func (u *Userman) ResetPasswordWithToken(token, password string) (directory.Status, error) {
	user, err := u.ValidateToken(token)
	if err != nil {
		return directory.Status{}, err
	}

	if errDrop := u.dropToken(token); errDrop != nil {
		return directory.Status{}, errDrop
	}

	if password == "" {
		return directory.Status{}, fmt.Errorf("%w: password must not be blank", directory.ErrValidation)
	}

	if err = u.checkWritable(user.DirectoryID, false); err != nil {
		return directory.Status{}, err
	}

	drv, err := u.driverByID(user.DirectoryID)
	if err != nil {
		return directory.Status{}, err
	}

	if !drv.Permissions().Can(directory.PermChangePassword) {
		return directory.Fail("directory %d does not support password changes", user.DirectoryID), nil
	}

	status := drv.UpdateUser(user.ID, user.Username, user.Username,
		user.DefaultExtension, user.Description, nil, password)

	return status, nil
}

// ResetAllTokens revokes every outstanding reset token.
func (u *Userman) ResetAllTokens() error {
	if err := globalsetting.Set(u.db, tokenKey, nil); err != nil {
		return fmt.Errorf("failed to clear reset tokens: %w", err)
	}

	return nil
}

func (u *Userman) dropToken(token string) error {
	tokens, err := u.Tokens()
	if err != nil {
		return err
	}

	if _, ok := tokens[token]; !ok {
		return nil
	}

	delete(tokens, token)

	return u.saveTokens(tokens)
}

// dropTokensOf removes any token owned by the user, used when the user
// is deleted.
func (u *Userman) dropTokensOf(uid uint64) error {
	tokens, err := u.Tokens()
	if err != nil {
		return err
	}

	changed := false

	for token, t := range tokens {
		if t.ID == uid {
			delete(tokens, token)

			changed = true
		}
	}

	if !changed {
		return nil
	}

	return u.saveTokens(tokens)
}
