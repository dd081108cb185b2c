package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/loykin/extbox/internal/present"
	"github.com/loykin/extbox/pkg/client"
)

// command binds CLI handlers to a daemon client. The client is built on
// first use so persistent flags are already parsed.
type command struct {
	flags *GlobalFlags
	out   io.Writer
	api   *client.Client
}

func (c *command) apiClient() *client.Client {
	if c.api != nil {
		return c.api
	}
	cfg := client.DefaultConfig()
	cfg.BaseURL = c.flags.APIUrl
	cfg.Timeout = c.flags.APITimeout
	cfg.Insecure = c.flags.Insecure
	if c.flags.CACert != "" {
		cfg.TLS = &client.TLSClientConfig{Enabled: true, CACert: c.flags.CACert}
	}
	c.api = client.New(cfg)
	return c.api
}

// reachable fails fast with a hint when no daemon answers.
func (c *command) reachable(ctx context.Context) (*client.Client, error) {
	api := c.apiClient()
	if !api.IsReachable(ctx) {
		return nil, fmt.Errorf("daemon not reachable at %s - start it with 'extbox serve'", c.flags.APIUrl)
	}
	return api, nil
}

func (c *command) Status(ctx context.Context) error {
	api, err := c.reachable(ctx)
	if err != nil {
		return err
	}
	st, err := api.Status(ctx)
	if err != nil {
		return err
	}
	printJSON(c.out, st)
	return nil
}

func (c *command) Snapshot(ctx context.Context, key string) error {
	api, err := c.reachable(ctx)
	if err != nil {
		return err
	}
	if key == "" {
		all, err := api.Snapshots(ctx)
		if err != nil {
			return err
		}
		printJSON(c.out, all)
		return nil
	}
	e, err := api.Snapshot(ctx, key)
	if err != nil {
		return err
	}
	printJSON(c.out, e)
	return nil
}

// Presentation prints the title and compact line as text, then the
// expanded body.
func (c *command) Presentation(ctx context.Context) error {
	api, err := c.reachable(ctx)
	if err != nil {
		return err
	}
	p, err := api.Presentation(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.out, p.Title)
	_, _ = fmt.Fprintln(c.out, p.Compact)
	if p.Expanded != "" {
		_, _ = fmt.Fprintln(c.out)
		_, _ = fmt.Fprintln(c.out, p.Expanded)
	}
	return nil
}

func (c *command) Modules(ctx context.Context) error {
	api, err := c.reachable(ctx)
	if err != nil {
		return err
	}
	ms, err := api.Modules(ctx)
	if err != nil {
		return err
	}
	printJSON(c.out, ms)
	return nil
}

func (c *command) SetEnabled(ctx context.Context, key string, on bool) error {
	api, err := c.reachable(ctx)
	if err != nil {
		return err
	}
	if err := api.SetEnabled(ctx, key, on); err != nil {
		return err
	}
	state := "enabled"
	if !on {
		state = "disabled"
	}
	_, _ = fmt.Fprintf(c.out, "%s %s\n", key, state)
	return nil
}

func (c *command) Order(ctx context.Context, list string) error {
	keys := present.ParseOrder(list)
	if len(keys) == 0 {
		return fmt.Errorf("order requires at least one module key")
	}
	api, err := c.reachable(ctx)
	if err != nil {
		return err
	}
	if err := api.SetOrder(ctx, keys); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.out, strings.Join(keys, ","))
	return nil
}

func (c *command) PrefGet(ctx context.Context, key string) error {
	api, err := c.reachable(ctx)
	if err != nil {
		return err
	}
	v, err := api.Pref(ctx, key)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.out, v)
	return nil
}

func (c *command) PrefSet(ctx context.Context, key, value string) error {
	api, err := c.reachable(ctx)
	if err != nil {
		return err
	}
	return api.SetPref(ctx, key, value)
}

func (c *command) PrefsExport(ctx context.Context) error {
	api, err := c.reachable(ctx)
	if err != nil {
		return err
	}
	all, err := api.Prefs(ctx)
	if err != nil {
		return err
	}
	printJSON(c.out, all)
	return nil
}

// PrefsImport reads a JSON object from path, or from stdin when path is "-".
func (c *command) PrefsImport(ctx context.Context, path string, stdin io.Reader) error {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		// #nosec G304
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read prefs: %w", err)
	}
	if !json.Valid(raw) {
		return fmt.Errorf("read prefs: %s is not valid JSON", path)
	}
	api, err := c.reachable(ctx)
	if err != nil {
		return err
	}
	return api.ImportPrefs(ctx, raw)
}

func (c *command) ResetDaily(ctx context.Context) error {
	api, err := c.reachable(ctx)
	if err != nil {
		return err
	}
	return api.ResetDaily(ctx)
}

func (c *command) Screen(ctx context.Context, state string) error {
	var on bool
	switch strings.ToLower(state) {
	case "on":
		on = true
	case "off":
	default:
		return fmt.Errorf("screen state must be on or off, got %q", state)
	}
	api, err := c.reachable(ctx)
	if err != nil {
		return err
	}
	return api.Screen(ctx, on)
}

func (c *command) Unlock(ctx context.Context) error {
	api, err := c.reachable(ctx)
	if err != nil {
		return err
	}
	counted, err := api.Unlock(ctx)
	if err != nil {
		return err
	}
	printJSON(c.out, client.UnlockResult{Counted: counted})
	return nil
}

func (c *command) Steps(ctx context.Context, raw string) error {
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil || n < 0 {
		return fmt.Errorf("steps must be a non-negative number, got %q", raw)
	}
	api, err := c.reachable(ctx)
	if err != nil {
		return err
	}
	added, err := api.Steps(ctx, n)
	if err != nil {
		return err
	}
	printJSON(c.out, client.StepsResult{Added: added})
	return nil
}

func (c *command) Fap(ctx context.Context) error {
	api, err := c.reachable(ctx)
	if err != nil {
		return err
	}
	today, err := api.Fap(ctx)
	if err != nil {
		return err
	}
	printJSON(c.out, client.FapResult{Today: today})
	return nil
}

func (c *command) SpeedTest(ctx context.Context) error {
	api, err := c.reachable(ctx)
	if err != nil {
		return err
	}
	res, err := api.RunSpeedTest(ctx)
	if err != nil {
		return err
	}
	printJSON(c.out, res)
	return nil
}

func (c *command) History(ctx context.Context, key string, f HistoryFlags) error {
	api, err := c.reachable(ctx)
	if err != nil {
		return err
	}
	evs, err := api.History(ctx, key, f.Since, f.Limit)
	if err != nil {
		return err
	}
	printJSON(c.out, evs)
	return nil
}
