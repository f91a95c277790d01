package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// authorize runs the phone/code/2FA login flow when the stored session is not
// yet authorized. Prompts come from the CLI layer via the Config callbacks.
func (c *Client) authorize(ctx context.Context) error {
	status, err := c.client.Auth().Status(ctx)
	if err != nil {
		return fmt.Errorf("auth status: %w", err)
	}
	if status.Authorized {
		return nil
	}

	if c.cfg.CodePrompt == nil {
		return errors.New("session not authorized and no code prompt configured")
	}

	flow := auth.NewFlow(promptAuth{cfg: c.cfg}, auth.SendCodeOptions{})
	if err := flow.Run(ctx, c.client.Auth()); err != nil {
		return fmt.Errorf("auth flow: %w", err)
	}
	c.logger.Info("telegram session authorized")
	return nil
}

// promptAuth adapts the CLI callbacks to gotd's UserAuthenticator.
type promptAuth struct {
	cfg Config
}

func (a promptAuth) Phone(_ context.Context) (string, error) {
	return a.cfg.Phone, nil
}

func (a promptAuth) Code(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
	return a.cfg.CodePrompt(ctx)
}

func (a promptAuth) Password(ctx context.Context) (string, error) {
	if a.cfg.PasswordPrompt == nil {
		return "", errors.New("2FA password required but no password prompt configured")
	}
	return a.cfg.PasswordPrompt(ctx)
}

func (a promptAuth) AcceptTermsOfService(_ context.Context, _ tg.HelpTermsOfService) error {
	return nil
}

func (a promptAuth) SignUp(_ context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errors.New("sign-up is not supported, register the account first")
}
