package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/desertthunder/vbx/internal/models"
	"github.com/desertthunder/vbx/internal/shared"
	"github.com/urfave/cli/v3"
)

type accountView struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Proxy  string `json:"proxy,omitempty"`
}

// AccountsList lists the configured accounts without their secrets.
func (r *Runner) AccountsList(ctx context.Context, cmd *cli.Command) error {
	views := make([]accountView, len(r.config.Accounts))
	for i, a := range r.config.Accounts {
		views[i] = accountView{Name: a.Name, Source: secretSource(a), Proxy: proxyHost(a.Proxy)}
	}

	if cmd.Bool("json") {
		return r.writeJSON(views, true)
	}

	if len(views) == 0 {
		r.writePlain("No accounts configured in %s\n", r.configName())
		return nil
	}

	r.writePlainHeader(fmt.Sprintf("Accounts (%d)", len(views)))
	for _, v := range views {
		line := fmt.Sprintf("• %s (%s)", v.Name, v.Source)
		if v.Proxy != "" {
			line += " via " + v.Proxy
		}
		r.writePlain("%s\n", line)
	}
	return nil
}

// AccountsCheck resolves a token for every account, or only --name, and reports the session behind it.
func (r *Runner) AccountsCheck(ctx context.Context, cmd *cli.Command) error {
	accounts, err := r.loadAccounts()
	if err != nil {
		return err
	}

	if name := cmd.String("name"); name != "" {
		var match []*models.Account
		for _, a := range accounts {
			if a.Name == name {
				match = append(match, a)
			}
		}
		if len(match) == 0 {
			return fmt.Errorf("%w: account %q", shared.ErrNotFound, name)
		}
		accounts = match
	}

	failed := 0
	for _, acct := range accounts {
		detail, err := r.checkAccount(ctx, acct)
		if err != nil {
			failed++
			r.logger.Error("account check failed", "account", acct.Name, "err", err)
			r.writePlain("✗ %s: %v\n", acct.Name, err)
			continue
		}
		r.writePlain("✓ %s: %s\n", acct.Name, detail)
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d accounts failed", shared.ErrCredential, failed, len(accounts))
	}
	return nil
}

func (r *Runner) checkAccount(ctx context.Context, acct *models.Account) (string, error) {
	if acct.Secret == "" {
		if acct.Token != "" {
			return "token configured, not verified", nil
		}
		return "", fmt.Errorf("%w: no session cookie", shared.ErrMissingCredentials)
	}

	if sc, ok := r.tokens.(sessionChecker); ok {
		info, err := sc.Session(ctx, acct)
		if err != nil {
			return "", err
		}
		if info.Token == "" {
			return "", fmt.Errorf("%w: session returned no access token", shared.ErrCredential)
		}
		detail := "session ok"
		if info.Email != "" {
			detail += " for " + info.Email
		}
		if info.Expires != "" {
			detail += ", expires " + info.Expires
		}
		return detail, nil
	}

	if r.tokens == nil {
		return "", fmt.Errorf("%w: no token fetcher available", shared.ErrNotImplemented)
	}
	token, err := r.tokens.FetchToken(ctx, acct)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", fmt.Errorf("%w: session returned no access token", shared.ErrCredential)
	}
	return "token ok", nil
}

// AccountsImport builds an [[accounts]] entry from a saved "Copy as cURL" command and prints it, or
// appends it to the configuration file with --append.
func (r *Runner) AccountsImport(ctx context.Context, cmd *cli.Command) error {
	name := cmd.String("name")
	curlFile := cmd.String("curl-file")
	cookieFile := cmd.String("cookie-file")

	for _, a := range r.config.Accounts {
		if a.Name == name {
			return fmt.Errorf("%w: account %q already exists", shared.ErrInvalidArgument, name)
		}
	}

	creds, err := shared.ParseCurlFile(curlFile)
	if err != nil {
		return fmt.Errorf("failed to parse cURL file: %w", err)
	}
	r.logger.Info("parsed cURL command", "file", curlFile, "cookie", creds.Cookie != "", "token", creds.Token != "")

	if cookieFile != "" && creds.Cookie != "" {
		if dir := filepath.Dir(cookieFile); dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return fmt.Errorf("failed to create cookie directory: %w", err)
			}
		}
		if err := os.WriteFile(cookieFile, []byte(creds.Cookie+"\n"), 0600); err != nil {
			return fmt.Errorf("failed to write cookie file: %w", err)
		}
		r.logger.Info("cookie saved", "path", cookieFile)
	} else {
		cookieFile = ""
	}

	entry := creds.ToAccountTOML(name, cookieFile)
	if !cmd.Bool("append") {
		r.writePlain("\n%s", entry)
		return nil
	}

	if r.configPath == "" {
		return fmt.Errorf("%w: no configuration file to append to", shared.ErrMissingArgument)
	}
	f, err := os.OpenFile(r.configPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString("\n" + entry); err != nil {
		return fmt.Errorf("failed to append account: %w", err)
	}
	r.writePlain("✓ Account %s added to %s\n", name, r.configPath)
	return nil
}

func secretSource(a shared.AccountConfig) string {
	switch {
	case a.Cookie != "":
		return "cookie"
	case a.CookieFile != "":
		return "cookie_file " + a.CookieFile
	case a.CurlFile != "":
		return "curl_file " + a.CurlFile
	case a.Token != "":
		return "token"
	default:
		return "missing"
	}
}

// proxyHost strips credentials from a proxy URL.
func proxyHost(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "proxy"
	}
	return u.Scheme + "://" + u.Host
}
