package sheets

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
)

// callbackPath is the loopback redirect path used by Authenticate.
const callbackPath = "/callback"

// Authenticate makes sure the client holds a usable token. A stored token
// is refreshed if needed; otherwise the consent flow runs: a loopback server
// is started, open is called with the consent URL, and Authenticate waits
// for the browser to be redirected back or for ctx to end.
func (c *Client) Authenticate(ctx context.Context, open func(authURL string)) error {
	if c.IsAuthenticated() {
		err := c.Refresh(ctx)
		if err == nil {
			return nil
		}
		c.logger.Info("token refresh failed, re-initiating consent", "error", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("start loopback listener: %w", err)
	}

	done := make(chan error, 1)
	app := fiber.New(fiber.Config{
		AppName:               "qrlog auth",
		DisableStartupMessage: true,
	})
	app.Get(callbackPath, c.CallbackHandler(func(err error) {
		select {
		case done <- err:
		default:
		}
	}))

	go func() {
		if err := app.Listener(ln); err != nil {
			c.logger.Debug("loopback server stopped", "error", err)
		}
	}()
	defer app.ShutdownWithTimeout(2 * time.Second)

	redirectURL := fmt.Sprintf("http://%s%s", ln.Addr().String(), callbackPath)
	open(c.AuthURL(redirectURL))

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CallbackHandler returns a handler that completes a consent flow from the
// redirect's query parameters. notify, if non-nil, receives the outcome.
func (c *Client) CallbackHandler(notify func(error)) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := c.callback(ctx.Query("state"), ctx.Query("code"), ctx.Query("error"))
		if notify != nil {
			notify(err)
		}

		ctx.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		if err != nil {
			status := fiber.StatusInternalServerError
			if errors.Is(err, ErrStateMismatch) {
				status = fiber.StatusBadRequest
			}
			return ctx.Status(status).SendString(fmt.Sprintf(callbackPage, "Authentication failed", html.EscapeString(err.Error())))
		}
		return ctx.SendString(fmt.Sprintf(callbackPage, "Google Sheets connected", "You can close this window and return to qrlog."))
	}
}

func (c *Client) callback(state, code, oauthErr string) error {
	if oauthErr != "" {
		c.mu.Lock()
		delete(c.pending, state)
		c.mu.Unlock()
		return fmt.Errorf("authorization denied: %s", oauthErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return c.HandleCallback(ctx, state, code)
}

const callbackPage = `<!DOCTYPE html>
<html>
<head>
    <title>qrlog</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
               display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0; }
        .container { text-align: center; padding: 40px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>%s</h1>
        <p>%s</p>
    </div>
</body>
</html>
`
